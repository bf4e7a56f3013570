package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/minios-linux/i18nextract/lexer"
)

// Result is the outcome of scanning one token stream: the calls that
// matched and the call sites that did not.
type Result struct {
	Calls       []Call
	Diagnostics []Diagnostic
}

// Scanner runs a fixed set of markers over token streams. It holds no
// per-scan state and is safe for concurrent use.
type Scanner struct {
	markers []Marker
	quick   *regexp.Regexp
}

// NewScanner validates markers and builds a Scanner. A nil slice selects
// DefaultMarkers.
func NewScanner(markers []Marker) (*Scanner, error) {
	if markers == nil {
		markers = DefaultMarkers
	}
	if len(markers) == 0 {
		return nil, fmt.Errorf("no markers configured")
	}
	names := make([]string, 0, len(markers))
	for _, m := range markers {
		if err := m.Validate(); err != nil {
			return nil, err
		}
		names = append(names, regexp.QuoteMeta(m.Name))
	}
	return &Scanner{
		markers: markers,
		quick:   regexp.MustCompile(`(` + strings.Join(names, "|") + `)\s*\(`),
	}, nil
}

// Markers returns the configured markers.
func (s *Scanner) Markers() []Marker {
	return s.markers
}

// MayContain is a cheap pre-check: source without any "marker(" text
// cannot produce calls and need not be tokenized.
func (s *Scanner) MayContain(source []byte) bool {
	return s.quick.Match(source)
}

// Scan runs every marker over tokens. Each marker sees the full stream
// independently.
func (s *Scanner) Scan(file string, tokens []lexer.Token) Result {
	var res Result
	for _, m := range s.markers {
		r := ScanMarker(file, tokens, m)
		res.Calls = append(res.Calls, r.Calls...)
		res.Diagnostics = append(res.Diagnostics, r.Diagnostics...)
	}
	return res
}

// ScanMarker finds the call sites of a single marker.
func ScanMarker(file string, tokens []lexer.Token, m Marker) Result {
	var res Result
	for i := 0; len(tokens)-i > 1; i++ {
		tok := tokens[i]
		if tok.Kind != lexer.Ident || tok.Text != m.Name || !tokens[i+1].Is("(") {
			continue
		}
		open := i + 1
		end := closingParen(tokens, open)

		args, err := literalArgs(tokens[open+1:end], m.Arity())
		if err == nil && len(args) == m.Arity() {
			res.Calls = append(res.Calls, Call{
				Marker:  m.Name,
				File:    file,
				Line:    tok.Line,
				Args:    args,
				Message: m.Decode(args),
			})
			continue
		}
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			File:   file,
			Line:   tok.Line,
			Marker: m.Name,
			Source: callSource(tokens, open),
		})
	}
	return res
}

// closingParen returns the index of the ')' matching the '(' at open, or
// len(tokens) if the call is never closed.
func closingParen(tokens []lexer.Token, open int) int {
	depth := 0
	for i := open; i < len(tokens); i++ {
		switch {
		case tokens[i].Is("("):
			depth++
		case tokens[i].Is(")"):
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return len(tokens)
}

// literalArgs reads leading literal arguments until want values are
// collected or a token other than ',', a string or a number appears.
// Strings joined with '.' form a single value.
func literalArgs(tokens []lexer.Token, want int) ([]Value, error) {
	var args []Value
	pos := 0
	for pos < len(tokens) && len(args) < want {
		tok := tokens[pos]
		switch {
		case tok.Is(","):
			pos++
		case tok.Kind == lexer.Number:
			args = append(args, Value{Text: tok.Text, Number: true})
			pos++
		case tok.Kind == lexer.String:
			var pieces []string
			for pos < len(tokens) && (tokens[pos].Kind == lexer.String || tokens[pos].Is(".")) {
				if tokens[pos].Kind == lexer.String {
					pieces = append(pieces, tokens[pos].Text)
				}
				pos++
			}
			s, err := Normalize(pieces...)
			if err != nil {
				return nil, err
			}
			args = append(args, Value{Text: s})
		default:
			return args, nil
		}
	}
	return args, nil
}

// Marker returns the configured marker called name.
func (s *Scanner) Marker(name string) (Marker, bool) {
	for _, m := range s.markers {
		if m.Name == name {
			return m, true
		}
	}
	return Marker{}, false
}

// Fingerprint identifies the marker set, so cached scan results can be
// dropped when it changes.
func (s *Scanner) Fingerprint() string {
	parts := make([]string, 0, len(s.markers))
	for _, m := range s.markers {
		roles := make([]string, len(m.Roles))
		for i, r := range m.Roles {
			roles[i] = r.String()
		}
		parts = append(parts, m.Name+":"+strings.Join(roles, ","))
	}
	return strings.Join(parts, ";")
}
