// Package pofile implements reading and writing of PO files following the
// GNU gettext format.
//
// Strings are kept in their escaped, in-file form: the text between the
// quotes, with continuation lines joined. Extracted messages are already
// stored with C-style escapes, so they go into a PO file unchanged and
// come back out byte for byte.
package pofile

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry represents a single translatable message in a PO file.
type Entry struct {
	// TranslatorComments are lines starting with "# " (translator comments).
	TranslatorComments []string
	// References are source code locations, lines starting with "#:".
	References []string
	// Flags are format flags, lines starting with "#,".
	Flags []string

	// MsgCtxt is nil when the entry has no msgctxt line.
	MsgCtxt *string
	// MsgID is the untranslated string.
	MsgID string
	// MsgIDPlural is nil for entries without a plural form.
	MsgIDPlural *string
	// MsgStr is the translated string (singular or the only form).
	MsgStr string
	// MsgStrPlural maps plural form index to translated string.
	MsgStrPlural map[int]string

	// Obsolete marks entries prefixed with "#~".
	Obsolete bool
}

// IsTranslated returns true if the entry has a non-empty translation.
func (e *Entry) IsTranslated() bool {
	if e.MsgID == "" {
		return false // header entry
	}
	if e.IsFuzzy() {
		return false
	}
	if e.MsgIDPlural != nil {
		for _, v := range e.MsgStrPlural {
			if v == "" {
				return false
			}
		}
		return len(e.MsgStrPlural) > 0
	}
	return e.MsgStr != ""
}

// IsFuzzy returns true if the entry is marked fuzzy.
func (e *Entry) IsFuzzy() bool {
	return e.HasFlag("fuzzy")
}

// HasFlag checks if a specific flag is present.
func (e *Entry) HasFlag(flag string) bool {
	for _, f := range e.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// Translations returns the translated forms in order: msgstr[0..n] for
// plural entries, otherwise msgstr alone. Untranslated entries yield nil.
func (e *Entry) Translations() []string {
	if e.MsgIDPlural != nil {
		if len(e.MsgStrPlural) == 0 {
			return nil
		}
		indices := make([]int, 0, len(e.MsgStrPlural))
		for idx := range e.MsgStrPlural {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		out := make([]string, 0, len(indices))
		empty := true
		for _, idx := range indices {
			out = append(out, e.MsgStrPlural[idx])
			empty = empty && e.MsgStrPlural[idx] == ""
		}
		if empty {
			return nil
		}
		return out
	}
	if e.MsgStr == "" {
		return nil
	}
	return []string{e.MsgStr}
}

// SetTranslations is the inverse of Translations.
func (e *Entry) SetTranslations(values []string) {
	e.MsgStr = ""
	e.MsgStrPlural = make(map[int]string)
	if e.MsgIDPlural == nil {
		if len(values) > 0 {
			e.MsgStr = values[0]
		}
		return
	}
	for i, v := range values {
		e.MsgStrPlural[i] = v
	}
}

// File represents a parsed PO file.
type File struct {
	// Header is the metadata entry (msgid "").
	Header *Entry
	// Entries are the translatable message entries.
	Entries []*Entry
}

// NewFile creates a new empty PO file.
func NewFile() *File {
	return &File{
		Header:  &Entry{},
		Entries: make([]*Entry, 0),
	}
}

// headerLines splits the escaped header msgstr into "Key: value" lines.
func headerLines(msgstr string) []string {
	return strings.Split(msgstr, `\n`)
}

// HeaderField returns a header field value by name.
func (f *File) HeaderField(name string) string {
	if f.Header == nil {
		return ""
	}
	for _, line := range headerLines(f.Header.MsgStr) {
		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			if strings.EqualFold(key, name) {
				return strings.TrimSpace(line[idx+1:])
			}
		}
	}
	return ""
}

// SetHeaderField sets a header field value.
func (f *File) SetHeaderField(name, value string) {
	if f.Header == nil {
		f.Header = &Entry{}
	}

	lines := headerLines(f.Header.MsgStr)
	found := false
	for i, line := range lines {
		if idx := strings.Index(line, ":"); idx > 0 {
			key := strings.TrimSpace(line[:idx])
			if strings.EqualFold(key, name) {
				lines[i] = name + ": " + value
				found = true
				break
			}
		}
	}
	if !found {
		// Insert before trailing empty line
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = append(lines[:len(lines)-1], name+": "+value, "")
		} else {
			lines = append(lines, name+": "+value)
		}
	}
	f.Header.MsgStr = strings.Join(lines, `\n`)
}

func sameCtxt(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Lookup finds a live entry by context and msgid. A nil ctxt only matches
// entries without msgctxt.
func (f *File) Lookup(ctxt *string, msgid string) *Entry {
	for _, e := range f.Entries {
		if e.MsgID == msgid && !e.Obsolete && sameCtxt(e.MsgCtxt, ctxt) {
			return e
		}
	}
	return nil
}

func strp(s string) *string { return &s }

// Parse reads a PO file from a reader.
func Parse(r io.Reader) (*File, error) {
	f := NewFile()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var current *Entry
	var lastField string // tracks the last msgid/msgstr/etc. field for multiline strings
	lineNum := 0
	blocks := 0

	// Only the first block can be the header; a later msgid "" is an entry.
	flush := func() {
		if current == nil {
			return
		}
		blocks++
		if blocks == 1 && current.MsgID == "" && current.MsgCtxt == nil && !current.Obsolete {
			f.Header = current
		} else {
			f.Entries = append(f.Entries, current)
		}
		current = nil
		lastField = ""
	}

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		// Empty line separates entries
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}

		if current == nil {
			current = &Entry{
				MsgStrPlural: make(map[int]string),
			}
		}

		// Handle obsolete entries
		if strings.HasPrefix(line, "#~ ") {
			current.Obsolete = true
			line = line[3:]
		}

		// Comment lines
		if strings.HasPrefix(line, "#") {
			switch {
			case strings.HasPrefix(line, "#:"):
				current.References = append(current.References, strings.TrimSpace(line[2:]))
			case strings.HasPrefix(line, "#,"):
				for _, flag := range strings.Split(line[2:], ",") {
					if flag = strings.TrimSpace(flag); flag != "" {
						current.Flags = append(current.Flags, flag)
					}
				}
			case strings.HasPrefix(line, "#.") || strings.HasPrefix(line, "#|"):
				// extracted comments and previous msgids are not kept
			default:
				current.TranslatorComments = append(current.TranslatorComments, strings.TrimPrefix(line[1:], " "))
			}
			continue
		}

		switch {
		case strings.HasPrefix(line, "msgctxt "):
			current.MsgCtxt = strp(unquote(strings.TrimPrefix(line, "msgctxt ")))
			lastField = "msgctxt"
		case strings.HasPrefix(line, "msgid_plural "):
			current.MsgIDPlural = strp(unquote(strings.TrimPrefix(line, "msgid_plural ")))
			lastField = "msgid_plural"
		case strings.HasPrefix(line, "msgid "):
			current.MsgID = unquote(strings.TrimPrefix(line, "msgid "))
			lastField = "msgid"
		case strings.HasPrefix(line, "msgstr["):
			var idx int
			n, err := fmt.Sscanf(line, "msgstr[%d]", &idx)
			if err != nil || n != 1 {
				return nil, fmt.Errorf("line %d: invalid msgstr index: %s", lineNum, line)
			}
			bracketEnd := strings.Index(line, "] ")
			if bracketEnd < 0 {
				return nil, fmt.Errorf("line %d: invalid msgstr format: %s", lineNum, line)
			}
			current.MsgStrPlural[idx] = unquote(line[bracketEnd+2:])
			lastField = fmt.Sprintf("msgstr[%d]", idx)
		case strings.HasPrefix(line, "msgstr "):
			current.MsgStr = unquote(strings.TrimPrefix(line, "msgstr "))
			lastField = "msgstr"
		case strings.HasPrefix(line, `"`):
			val := unquote(line)
			switch {
			case lastField == "msgctxt":
				*current.MsgCtxt += val
			case lastField == "msgid":
				current.MsgID += val
			case lastField == "msgid_plural":
				*current.MsgIDPlural += val
			case lastField == "msgstr":
				current.MsgStr += val
			case strings.HasPrefix(lastField, "msgstr["):
				var idx int
				fmt.Sscanf(lastField, "msgstr[%d]", &idx)
				current.MsgStrPlural[idx] += val
			}
		default:
			return nil, fmt.Errorf("line %d: unexpected content: %s", lineNum, line)
		}
	}

	// Flush last entry
	flush()

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading PO file: %w", err)
	}

	return f, nil
}

// ParseFile reads a PO file from disk.
func ParseFile(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Write writes the PO file to a writer.
func (f *File) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)

	if f.Header != nil {
		writeEntry(bw, f.Header)
	}

	for _, e := range f.Entries {
		fmt.Fprintln(bw)
		writeEntry(bw, e)
	}

	return bw.Flush()
}

// Bytes renders the PO file.
func (f *File) Bytes() []byte {
	var buf bytes.Buffer
	_ = f.Write(&buf)
	return buf.Bytes()
}

// WriteFile writes the PO file to disk, creating parent directories. The
// file is written to a temporary name first and renamed into place.
func (f *File) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, f.Bytes(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func writeEntry(w *bufio.Writer, e *Entry) {
	prefix := ""
	if e.Obsolete {
		prefix = "#~ "
	}

	for _, c := range e.TranslatorComments {
		fmt.Fprintf(w, "# %s\n", c)
	}
	for _, ref := range e.References {
		fmt.Fprintf(w, "#: %s\n", ref)
	}
	if len(e.Flags) > 0 {
		fmt.Fprintf(w, "#, %s\n", strings.Join(e.Flags, ", "))
	}

	if e.MsgCtxt != nil {
		writeQuotedField(w, prefix+"msgctxt", *e.MsgCtxt)
	}
	writeQuotedField(w, prefix+"msgid", e.MsgID)
	if e.MsgIDPlural != nil {
		writeQuotedField(w, prefix+"msgid_plural", *e.MsgIDPlural)
	}

	if e.MsgIDPlural != nil {
		indices := make([]int, 0, len(e.MsgStrPlural))
		for idx := range e.MsgStrPlural {
			indices = append(indices, idx)
		}
		sort.Ints(indices)
		if len(indices) == 0 {
			indices = []int{0, 1}
		}
		for _, idx := range indices {
			writeQuotedField(w, fmt.Sprintf("%smsgstr[%d]", prefix, idx), e.MsgStrPlural[idx])
		}
	} else {
		writeQuotedField(w, prefix+"msgstr", e.MsgStr)
	}
}

// writeQuotedField writes a field, breaking the value after each escaped
// newline the way xgettext does.
func writeQuotedField(w *bufio.Writer, field, value string) {
	parts := strings.SplitAfter(value, `\n`)
	if len(parts) <= 1 || (len(parts) == 2 && parts[1] == "") {
		fmt.Fprintf(w, "%s \"%s\"\n", field, value)
		return
	}

	fmt.Fprintf(w, "%s \"\"\n", field)
	for _, part := range parts {
		if part != "" {
			fmt.Fprintf(w, "\"%s\"\n", part)
		}
	}
}

// unquote strips the surrounding quotes and leaves escapes in place.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return s
	}
	return s[1 : len(s)-1]
}

// DateFormat is the layout of the POT-Creation-Date and PO-Revision-Date
// header fields.
const DateFormat = "2006-01-02 15:04-0700"

// MakeHeader creates a PO header for one domain and language.
func MakeHeader(domain, language string) *Entry {
	now := time.Now().UTC().Format(DateFormat)

	fields := []string{
		"Project-Id-Version: " + domain,
		"POT-Creation-Date: " + now,
		"PO-Revision-Date: " + now,
		"Language: " + language,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"Content-Transfer-Encoding: 8bit",
		"Plural-Forms: " + PluralFormsForLang(language),
		"",
	}

	return &Entry{
		TranslatorComments: []string{fmt.Sprintf("Messages for domain %q.", domain)},
		MsgStr:             strings.Join(fields, `\n`),
	}
}

// PluralFormsForLang returns the standard Plural-Forms header for a language code.
func PluralFormsForLang(lang string) string {
	// Normalize to base language
	base := lang
	if idx := strings.IndexAny(lang, "_-"); idx > 0 {
		base = lang[:idx]
	}

	switch base {
	case "ja", "ko", "zh", "vi", "th", "id", "ms":
		return "nplurals=1; plural=0;"
	case "fr", "pt":
		return "nplurals=2; plural=(n > 1);"
	case "ru", "uk", "be", "hr", "sr", "bs":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "pl":
		return "nplurals=3; plural=(n==1 ? 0 : n%10>=2 && n%10<=4 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "cs", "sk":
		return "nplurals=3; plural=(n==1 ? 0 : n>=2 && n<=4 ? 1 : 2);"
	case "ro":
		return "nplurals=3; plural=(n==1 ? 0 : (n==0 || (n%100 > 0 && n%100 < 20)) ? 1 : 2);"
	case "lt":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n%10>=2 && (n%100<10 || n%100>=20) ? 1 : 2);"
	case "lv":
		return "nplurals=3; plural=(n%10==1 && n%100!=11 ? 0 : n != 0 ? 1 : 2);"
	case "ar":
		return "nplurals=6; plural=(n==0 ? 0 : n==1 ? 1 : n==2 ? 2 : n%100>=3 && n%100<=10 ? 3 : n%100>=11 ? 4 : 5);"
	default:
		return "nplurals=2; plural=(n != 1);"
	}
}
