package extract

import (
	"fmt"
	"strings"

	"github.com/minios-linux/i18nextract/lexer"
)

// Diagnostic reports a marker call whose arguments did not match its
// signature.
type Diagnostic struct {
	File   string
	Line   int
	Marker string
	// Source is the raw token text between the call's parentheses.
	Source string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("Invalid marker content in %s:%d\n* %s(%s)", d.File, d.Line, d.Marker, d.Source)
}

// callSource rebuilds the text between the '(' at open and its matching
// ')'. Whitespace tokens were stripped, so tokens are joined as-is.
func callSource(tokens []lexer.Token, open int) string {
	var b strings.Builder
	depth := 1
	for i := open + 1; i < len(tokens); i++ {
		t := tokens[i]
		if t.Is("(") {
			depth++
		} else if t.Is(")") {
			depth--
			if depth == 0 {
				break
			}
		}
		b.WriteString(t.Text)
	}
	return b.String()
}

// Diagnostics accumulates the non-fatal problems of an extraction run.
type Diagnostics struct {
	// CorePath marks framework sources; diagnostics from files under it
	// are kept but not counted.
	CorePath string

	Items []Diagnostic
	Count int
}

// Add records d and bumps the counter unless d comes from CorePath.
func (ds *Diagnostics) Add(d Diagnostic) {
	ds.add(d, d.File)
}

// add is Add with the on-disk path given separately, for diagnostics
// whose File was rewritten relative to the project root.
func (ds *Diagnostics) add(d Diagnostic, path string) {
	ds.Items = append(ds.Items, d)
	if ds.CorePath == "" || !strings.Contains(path, ds.CorePath) {
		ds.Count++
	}
}
