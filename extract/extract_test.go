package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minios-linux/i18nextract/lexer"
	"github.com/minios-linux/i18nextract/lockfile"
)

type recorded struct {
	domain, singular string
	plural           *string
	context, file    string
	line             int
}

type fakeRecorder struct {
	calls []recorded
}

func (r *fakeRecorder) Record(domain, singular string, plural *string, context, file string, line int) {
	r.calls = append(r.calls, recorded{domain, singular, plural, context, file, line})
}

func scan(t *testing.T, src string) Result {
	t.Helper()
	tokens, err := lexer.Tokenize([]byte(src))
	require.NoError(t, err)
	s, err := NewScanner(nil)
	require.NoError(t, err)
	return s.Scan("app/view.php", tokens)
}

func strp(s string) *string { return &s }

func TestScan_DomainMarker(t *testing.T) {
	res := scan(t, "<?php\necho __d('cake', 'Hello');\n")

	require.Len(t, res.Calls, 1)
	assert.Empty(t, res.Diagnostics)
	c := res.Calls[0]
	assert.Equal(t, "__d", c.Marker)
	assert.Equal(t, 2, c.Line)
	assert.Equal(t, Message{Domain: "cake", Singular: "Hello"}, c.Message)
}

func TestScan_Concatenation(t *testing.T) {
	res := scan(t, "<?php\n__('foo' . \"bar\");\n")

	require.Len(t, res.Calls, 1)
	assert.Equal(t, "foobar", res.Calls[0].Message.Singular)
	assert.Equal(t, DefaultDomain, res.Calls[0].Message.Domain)
}

func TestScan_ArityMismatchIsDiagnostic(t *testing.T) {
	res := scan(t, "<?php\n__n('only one');\n")

	assert.Empty(t, res.Calls)
	require.Len(t, res.Diagnostics, 1)
	d := res.Diagnostics[0]
	assert.Equal(t, "__n", d.Marker)
	assert.Equal(t, "'only one'", d.Source)
	assert.Equal(t, "Invalid marker content in app/view.php:2\n* __n('only one')", d.String())
}

func TestScan_VariableArgument(t *testing.T) {
	res := scan(t, "<?php\n__($name);\n__('ok');\n")

	require.Len(t, res.Calls, 1)
	assert.Equal(t, "ok", res.Calls[0].Message.Singular)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "$name", res.Diagnostics[0].Source)
}

func TestScan_AllMarkers(t *testing.T) {
	src := `<?php
__('s');
__n('s', 'p', $n);
__d('dom', 's');
__dn('dom', 's', 'p', 2);
__x('ctx', 's');
__xn('ctx', 's', 'p', 3);
__dx('dom', 'ctx', 's');
__dxn('dom', 'ctx', 's', 'p', 4);
`
	res := scan(t, src)
	require.Empty(t, res.Diagnostics)

	got := make(map[string]Message)
	for _, c := range res.Calls {
		got[c.Marker] = c.Message
	}
	assert.Equal(t, Message{Domain: "default", Singular: "s"}, got["__"])
	assert.Equal(t, Message{Domain: "default", Singular: "s", Plural: strp("p")}, got["__n"])
	assert.Equal(t, Message{Domain: "dom", Singular: "s"}, got["__d"])
	assert.Equal(t, Message{Domain: "dom", Singular: "s", Plural: strp("p")}, got["__dn"])
	assert.Equal(t, Message{Domain: "default", Context: "ctx", Singular: "s"}, got["__x"])
	assert.Equal(t, Message{Domain: "default", Context: "ctx", Singular: "s", Plural: strp("p")}, got["__xn"])
	assert.Equal(t, Message{Domain: "dom", Context: "ctx", Singular: "s"}, got["__dx"])
	assert.Equal(t, Message{Domain: "dom", Context: "ctx", Singular: "s", Plural: strp("p")}, got["__dxn"])
}

func TestScan_NumberArgument(t *testing.T) {
	res := scan(t, "<?php\n__d(42, 'x');\n")

	require.Len(t, res.Calls, 1)
	assert.Equal(t, Value{Text: "42", Number: true}, res.Calls[0].Args[0])
	assert.Equal(t, "42", res.Calls[0].Message.Domain)
}

func TestScan_StorageEscaping(t *testing.T) {
	res := scan(t, "<?php\n__(\"line\\nbreak \\\"q\\\"\");\n")

	require.Len(t, res.Calls, 1)
	assert.Equal(t, `line\nbreak \"q\"`, res.Calls[0].Message.Singular)
}

func TestScan_CallShapes(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		calls     []Message
		lines     []int
		diagnosed []string
	}{
		{
			name:  "nested call after the literal",
			src:   "<?php\n__('a', sprintf('%s', 'b'));\n",
			calls: []Message{{Domain: "default", Singular: "a"}},
			lines: []int{2},
		},
		{
			name:  "plural count is not a literal role",
			src:   "<?php\n__n('a', 'b', count($x));\n",
			calls: []Message{{Domain: "default", Singular: "a", Plural: strp("b")}},
			lines: []int{2},
		},
		{
			name:      "interpolated string",
			src:       "<?php\n__(\"Hello $name\");\n",
			diagnosed: []string{`"Hello $name"`},
		},
		{
			name:      "heredoc",
			src:       "<?php\n__(<<<EOT\nHello\nEOT\n);\n",
			diagnosed: []string{"<<<EOT\nHello\nEOT"},
		},
		{
			name:  "unclosed call at end of file",
			src:   "<?php\n__('x'",
			calls: []Message{{Domain: "default", Singular: "x"}},
			lines: []int{2},
		},
		{
			// A malformed open tag is recovered as code by the parser.
			name:  "misspelled open tag",
			src:   "<?p\n__('x');\n",
			calls: []Message{{Domain: "default", Singular: "x"}},
			lines: []int{2},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := scan(t, tc.src)

			var msgs []Message
			var lines []int
			for _, c := range res.Calls {
				msgs = append(msgs, c.Message)
				lines = append(lines, c.Line)
			}
			assert.Equal(t, tc.calls, msgs)
			assert.Equal(t, tc.lines, lines)

			require.Len(t, res.Diagnostics, len(tc.diagnosed))
			for i, want := range tc.diagnosed {
				assert.Equal(t, "__", res.Diagnostics[i].Marker)
				assert.Equal(t, 2, res.Diagnostics[i].Line)
				assert.Contains(t, res.Diagnostics[i].Source, want)
			}
		})
	}
}

func TestScanner_MayContain(t *testing.T) {
	s, err := NewScanner(nil)
	require.NoError(t, err)

	assert.True(t, s.MayContain([]byte("<?php echo __ ('x');")))
	assert.False(t, s.MayContain([]byte("<?php echo $__;")))
}

func TestNewScanner_RejectsBadMarker(t *testing.T) {
	_, err := NewScanner([]Marker{{Name: "t", Roles: []Role{RoleDomain}}})
	assert.Error(t, err)

	_, err = NewScanner([]Marker{})
	assert.Error(t, err)
}

func TestScanner_Fingerprint(t *testing.T) {
	a, err := NewScanner(nil)
	require.NoError(t, err)
	b, err := NewScanner([]Marker{{Name: "t", Roles: []Role{RoleSingular}}})
	require.NoError(t, err)

	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	assert.Equal(t, "t:singular", b.Fingerprint())
}

func TestDecodeLiteral(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "single", raw: `'it\'s'`, want: "it's"},
		{name: "single keeps escapes", raw: `'a\nb'`, want: `a\nb`},
		{name: "single backslash", raw: `'a\\b'`, want: `a\b`},
		{name: "double newline", raw: `"a\nb"`, want: "a\nb"},
		{name: "double dollar", raw: `"\$x"`, want: "$x"},
		{name: "double hex", raw: `"\x41"`, want: "A"},
		{name: "double octal", raw: `"\101"`, want: "A"},
		{name: "double unicode", raw: `"\u{e9}"`, want: "é"},
		{name: "double unknown", raw: `"\q"`, want: `\q`},
		{name: "binary prefix", raw: `b'x'`, want: "x"},
		{name: "crlf", raw: "'a\r\nb'", want: "a\nb"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DecodeLiteral(tc.raw)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecodeLiteral_Malformed(t *testing.T) {
	_, err := DecodeLiteral(`'open`)
	assert.Error(t, err)
}

func TestEscapeForStorage(t *testing.T) {
	assert.Equal(t, `a\nb\tc\\d\"e\001`, EscapeForStorage("a\nb\tc\\d\"e\x01"))
}

func TestNormalize_EscapesOnce(t *testing.T) {
	got, err := Normalize(`"a\n"`, `'b\\'`)
	require.NoError(t, err)
	assert.Equal(t, `a\nb\\`, got)
}

func TestDiagnostics_CorePathNotCounted(t *testing.T) {
	ds := Diagnostics{CorePath: "/lib/Cake"}
	ds.Add(Diagnostic{File: "/lib/Cake/View/x.php"})
	ds.Add(Diagnostic{File: "/app/View/y.php"})

	assert.Len(t, ds.Items, 2)
	assert.Equal(t, 1, ds.Count)
}

// ---------------------------------------------------------------------------
// Sources and runs
// ---------------------------------------------------------------------------

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return root
}

func TestFindSources(t *testing.T) {
	t.Parallel()

	root := writeTree(t, map[string]string{
		"app/Controller/a.php":  "<?php",
		"app/View/b.ctp":        "x",
		"app/tests/c.php":       "<?php",
		"app/README.md":         "x",
		"app/.git/d.php":        "<?php",
		"app/Vendor/lib/e.php":  "<?php",
		"app/Controller/f.json": "{}",
	})

	files, err := FindSources([]string{filepath.Join(root, "app"), filepath.Join(root, "app", "View")}, []string{"test", "Vendor"})
	require.NoError(t, err)

	var rel []string
	for _, f := range files {
		r, err := filepath.Rel(root, f)
		require.NoError(t, err)
		rel = append(rel, filepath.ToSlash(r))
	}
	assert.Equal(t, []string{"app/Controller/a.php", "app/View/b.ctp"}, rel)
	assert.Equal(t, "1 .ctp, 1 .php", DescribeFiles(files))
}

func TestFindSources_MissingPath(t *testing.T) {
	_, err := FindSources([]string{filepath.Join(t.TempDir(), "nope")}, nil)
	assert.Error(t, err)
}

func TestExcluded(t *testing.T) {
	sep := string(filepath.Separator)
	assert.True(t, Excluded(sep+"app"+sep+"tests.php", []string{"test"}))
	assert.False(t, Excluded(sep+"app"+sep+"latest.php", []string{"test"}))
	assert.False(t, Excluded(sep+"app"+sep+"x.php", []string{""}))
}

func TestRun_RecordsInFileOrder(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.php": "<?php\n__('one');\n__n('bad');\n",
		"b.php": "<?php\n\n__x('menu', 'one');\n",
		"c.php": "<?php echo 'nothing';\n",
	})
	files, err := FindSources([]string{root}, nil)
	require.NoError(t, err)

	s, err := NewScanner(nil)
	require.NoError(t, err)
	rec := &fakeRecorder{}
	var progress int
	rep, err := Run(context.Background(), files, rec, Options{
		Scanner:  s,
		Root:     root,
		Jobs:     3,
		Progress: func(done, total int) { progress = done },
	})
	require.NoError(t, err)

	assert.Equal(t, 3, rep.Files)
	assert.Equal(t, 3, rep.Scanned)
	assert.Equal(t, 2, rep.Calls)
	assert.Equal(t, 3, progress)
	require.Len(t, rec.calls, 2)
	assert.Equal(t, recorded{domain: "default", singular: "one", file: "./a.php", line: 2}, rec.calls[0])
	assert.Equal(t, recorded{domain: "default", singular: "one", context: "menu", file: "./b.php", line: 3}, rec.calls[1])

	require.Len(t, rep.Diagnostics.Items, 1)
	assert.Equal(t, 1, rep.Diagnostics.Count)
	assert.Equal(t, "./a.php", rep.Diagnostics.Items[0].File)
}

func TestRun_UnreadableFileIsReported(t *testing.T) {
	root := writeTree(t, map[string]string{"a.php": "<?php __('x');"})
	files := []string{filepath.Join(root, "a.php"), filepath.Join(root, "gone.php")}

	s, err := NewScanner(nil)
	require.NoError(t, err)
	rec := &fakeRecorder{}
	rep, err := Run(context.Background(), files, rec, Options{Scanner: s})
	require.NoError(t, err)

	assert.Len(t, rec.calls, 1)
	require.Len(t, rep.FileErrors, 1)
	assert.Equal(t, files[1], rep.FileErrors[0].File)
	assert.ErrorIs(t, rep.FileErrors[0], os.ErrNotExist)
}

func TestRun_CacheSkipsUnchangedFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.php": "<?php\n__d('dom', 'cached');\n__($bad);\n",
		"b.php": "<?php\n__('fresh');\n",
	})
	files, err := FindSources([]string{root}, nil)
	require.NoError(t, err)
	s, err := NewScanner(nil)
	require.NoError(t, err)

	cache, err := lockfile.Load(root, s.Fingerprint())
	require.NoError(t, err)
	first := &fakeRecorder{}
	_, err = Run(context.Background(), files, first, Options{Scanner: s, Cache: cache})
	require.NoError(t, err)
	require.NoError(t, cache.Save())

	require.NoError(t, os.WriteFile(files[1], []byte("<?php\n__('changed');\n"), 0644))

	cache, err = lockfile.Load(root, s.Fingerprint())
	require.NoError(t, err)
	second := &fakeRecorder{}
	rep, err := Run(context.Background(), files, second, Options{Scanner: s, Cache: cache})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Cached)
	assert.Equal(t, 1, rep.Scanned)
	assert.Equal(t, 1, rep.Diagnostics.Count)
	require.Len(t, second.calls, 2)
	assert.Equal(t, first.calls[0], second.calls[0])
	assert.Equal(t, "changed", second.calls[1].singular)
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s, err := NewScanner(nil)
	require.NoError(t, err)

	_, err = Run(ctx, []string{"a.php"}, &fakeRecorder{}, Options{Scanner: s})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDisplayName(t *testing.T) {
	root := filepath.Join(string(filepath.Separator), "srv", "app")
	assert.Equal(t, "./View/x.php", displayName(filepath.Join(root, "View", "x.php"), root))
	outside := filepath.Join(string(filepath.Separator), "lib", "y.php")
	assert.Equal(t, outside, displayName(outside, root))
	assert.True(t, strings.HasPrefix(displayName(filepath.Join(root, "z.php"), ""), string(filepath.Separator)))
}
