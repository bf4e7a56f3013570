package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minios-linux/i18nextract/config"
	"github.com/minios-linux/i18nextract/extract"
	"github.com/minios-linux/i18nextract/store"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name    string
		percent int
		width   int
		want    string
	}{
		{
			name:    "clamps below zero",
			percent: -10,
			width:   4,
			want:    colorRed + "░░░░" + colorReset + "   0%",
		},
		{
			name:    "mid range uses yellow",
			percent: 50,
			width:   4,
			want:    colorYellow + "██░░" + colorReset + "  50%",
		},
		{
			name:    "clamps above hundred",
			percent: 120,
			width:   4,
			want:    colorGreen + "████" + colorReset + " 100%",
		},
	}

	for _, tc := range tests {
		if got := progressBar(tc.percent, tc.width); got != tc.want {
			t.Fatalf("%s: progressBar() = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(filePath, []byte("ok"), 0644); err != nil {
		t.Fatalf("os.WriteFile() error: %v", err)
	}

	if !fileExists(filePath) {
		t.Fatalf("fileExists(file) = false, want true")
	}
	if fileExists(dir) {
		t.Fatalf("fileExists(directory) = true, want false")
	}
	if fileExists(filepath.Join(dir, "missing.txt")) {
		t.Fatalf("fileExists(missing) = true, want false")
	}
}

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestOpenStore(t *testing.T) {
	dir := writeProject(t, map[string]string{
		config.FileName: "languages: [en]\nstore:\n  bolt: data/messages.db\n",
	})
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	for _, kind := range []string{config.StoreMemory, config.StorePO, config.StoreBolt} {
		cfg.Store.Type = kind
		st, err := openStore(context.Background(), cfg)
		if err != nil {
			t.Fatalf("openStore(%s): %v", kind, err)
		}
		if err := st.Close(); err != nil {
			t.Fatalf("Close(%s): %v", kind, err)
		}
	}
	if !fileExists(filepath.Join(dir, "data", "messages.db")) {
		t.Fatal("bolt database not created")
	}

	cfg.Store.Type = config.StoreSQL
	cfg.Store.DSN = ""
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Fatal("sql store without DSN should fail")
	}
	cfg.Store.Type = "redis"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Fatal("unknown store type should fail")
	}
}

func TestExtractFlagsOverrideConfig(t *testing.T) {
	dir := writeProject(t, map[string]string{
		config.FileName: "languages: [en]\nexclude: [vendors]\nmerge: false\n",
	})
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}

	cmd := newExtractCmd()
	if err := cmd.ParseFlags([]string{
		"--languages", "fr,de",
		"--merge", "yes",
		"--jobs", "4",
		"--dry-run",
	}); err != nil {
		t.Fatal(err)
	}
	var a extractArgs
	a.languages = []string{"fr", "de"}
	a.merge = "yes"
	a.jobs = 4
	a.dryRun = true
	if err := a.apply(cmd, cfg); err != nil {
		t.Fatal(err)
	}

	if strings.Join(cfg.Languages, ",") != "fr,de" {
		t.Errorf("Languages = %v", cfg.Languages)
	}
	if !cfg.Merge || cfg.Jobs != 4 {
		t.Errorf("Merge = %v, Jobs = %d", cfg.Merge, cfg.Jobs)
	}
	if strings.Join(cfg.Exclude, ",") != "vendors" {
		t.Errorf("unchanged Exclude overwritten: %v", cfg.Exclude)
	}
	if cfg.Store.Type != config.StoreMemory {
		t.Errorf("--dry-run store = %q, want memory", cfg.Store.Type)
	}

	a.merge = "maybe"
	if err := a.apply(cmd, cfg); err == nil {
		t.Error("expected error for --merge maybe")
	}
}

func TestExtractorRun(t *testing.T) {
	setupLogging(&bytes.Buffer{}, false)

	dir := writeProject(t, map[string]string{
		config.FileName: "languages: [en, fr]\nexclude: [vendors]\nrelative_paths: true\n",
		"src/Controller/PostsController.php": `<?php
echo __('Hello');
echo __d('admin', 'Saved');
echo __n('one post', '%d posts', $n);
echo __($notLiteral);
`,
		"src/Template/index.ctp": `<h1><?= __('Hello') ?></h1>`,
		"vendors/lib/x.php":      `<?php __('ignored');`,
	})
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}

	mem := store.NewMemory()
	x, err := newExtractor(cfg, mem)
	if err != nil {
		t.Fatal(err)
	}

	report, stats, err := x.run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Files != 2 {
		t.Errorf("Files = %d, want 2", report.Files)
	}
	if report.Diagnostics.Count != 1 {
		t.Errorf("Diagnostics.Count = %d, want 1", report.Diagnostics.Count)
	}
	// 3 messages x 2 languages
	if stats.Inserted != 6 || stats.Skipped != 0 {
		t.Errorf("first run stats = %+v", stats)
	}
	if mem.Len() != 6 {
		t.Errorf("store has %d records, want 6", mem.Len())
	}

	hello := "Hello"
	recs, err := mem.Find(context.Background(), store.Query{
		Domain: "default",
		Locale: "fr",
		Key:    &store.Key{Singular: hello},
	})
	if err != nil || len(recs) != 1 {
		t.Fatalf("Find(Hello) = %v, %v", recs, err)
	}
	refs := *recs[0].Refs
	if !strings.Contains(refs, "src/Controller/PostsController.php:2") ||
		!strings.Contains(refs, "src/Template/index.ctp:1") {
		t.Errorf("Refs = %q", refs)
	}

	_, stats, err = x.run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inserted != 0 || stats.Skipped != 6 {
		t.Errorf("second run stats = %+v, want all skipped", stats)
	}
}

func TestRunExtract_InvalidConfig(t *testing.T) {
	setupLogging(&bytes.Buffer{}, false)
	dir := writeProject(t, map[string]string{})
	t.Setenv(config.EnvLanguages, "")
	os.Unsetenv(config.EnvLanguages)

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := runExtract(context.Background(), cfg, false); err != config.ErrNoLanguages {
		t.Fatalf("runExtract() = %v, want ErrNoLanguages", err)
	}
}

func TestSortedKeys(t *testing.T) {
	got := sortedKeys(map[string]string{"lang": "fr", "action": "index", "controller": "Posts"})
	if strings.Join(got, ",") != "action,controller,lang" {
		t.Fatalf("sortedKeys() = %v", got)
	}
}

func TestReportDiagnostics_ListsCorePathItems(t *testing.T) {
	setupLogging(&bytes.Buffer{}, false)

	ds := extract.Diagnostics{CorePath: "lib/Cake"}
	ds.Add(extract.Diagnostic{File: "lib/Cake/View/View.php", Line: 7, Marker: "__", Source: "$msg"})
	if ds.Count != 0 || len(ds.Items) != 1 {
		t.Fatalf("Count = %d, Items = %d, want 0 and 1", ds.Count, len(ds.Items))
	}

	var out bytes.Buffer
	reportDiagnostics(&out, ds, true)
	if !strings.Contains(out.String(), "lib/Cake/View/View.php:7") {
		t.Fatalf("--marker-error output = %q, want the core path item", out.String())
	}

	out.Reset()
	reportDiagnostics(&out, ds, false)
	if out.Len() != 0 {
		t.Fatalf("output without --marker-error = %q, want empty", out.String())
	}
}
