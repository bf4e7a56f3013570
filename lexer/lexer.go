// Package lexer turns PHP source text into the flat token stream the
// marker scanner works on.
//
// Tokens come from the leaves of a tree-sitter-php parse tree. String
// literals, heredocs and variables are kept as single tokens rather than
// split into their children, so the stream looks like what a PHP
// tokenizer would produce: identifiers, literals and punctuation in
// source order, each tagged with its 1-based line.
package lexer

import (
	"fmt"
	"strings"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	ts_php "github.com/tree-sitter/tree-sitter-php/bindings/go"
)

// Kind classifies a token.
type Kind int

const (
	// Other is anything the scanner treats as opaque (keywords, comments,
	// variables, interpolated strings).
	Other Kind = iota
	// String is a constant string literal, quotes included.
	String
	// Ident is a bare name such as a function name.
	Ident
	// Number is an integer literal.
	Number
	// Whitespace covers whitespace and inline HTML outside <?php ?> tags.
	Whitespace
	// Punct is operator or delimiter punctuation.
	Punct
)

func (k Kind) String() string {
	switch k {
	case String:
		return "STRING_LITERAL"
	case Ident:
		return "IDENTIFIER"
	case Number:
		return "NUMBER"
	case Whitespace:
		return "WHITESPACE"
	case Punct:
		return "PUNCT"
	}
	return "OTHER"
}

// Token is a single lexical token.
type Token struct {
	Kind Kind
	Text string
	Line int
}

// Is reports whether t is punctuation with the given text.
func (t Token) Is(punct string) bool {
	return t.Kind == Punct && t.Text == punct
}

// php is created once; tree_sitter.Language values are immutable and
// safe to share between parsers.
var php = tree_sitter.NewLanguage(ts_php.LanguagePHP())

// Tokenize parses source and returns its tokens with whitespace and
// inline HTML removed.
func Tokenize(source []byte) ([]Token, error) {
	all, err := TokenizeAll(source)
	if err != nil {
		return nil, err
	}
	return Strip(all), nil
}

// TokenizeAll returns every token including inert ones. Parse errors are
// not reported: tree-sitter recovers and its best-effort tree is walked as
// is, so text after a malformed open tag such as "<?p" comes out as code.
func TokenizeAll(source []byte) ([]Token, error) {
	if len(source) == 0 {
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(php); err != nil {
		return nil, fmt.Errorf("loading php grammar: %w", err)
	}

	tree := parser.Parse(source, nil)
	if tree == nil {
		return nil, fmt.Errorf("parsing failed")
	}
	defer tree.Close()

	w := &walker{source: source}
	w.walk(tree.RootNode())
	return w.tokens, nil
}

// Strip drops whitespace and inline text tokens.
func Strip(tokens []Token) []Token {
	out := make([]Token, 0, len(tokens))
	for _, t := range tokens {
		if t.Kind != Whitespace {
			out = append(out, t)
		}
	}
	return out
}

type walker struct {
	source []byte
	tokens []Token
}

func (w *walker) emit(n *tree_sitter.Node, kind Kind) {
	w.tokens = append(w.tokens, Token{
		Kind: kind,
		Text: string(w.source[n.StartByte():n.EndByte()]),
		Line: int(n.StartPosition().Row) + 1,
	})
}

func (w *walker) walk(n *tree_sitter.Node) {
	if n == nil || n.IsMissing() {
		return
	}

	if n.IsNamed() {
		switch n.Kind() {
		case "string":
			w.emit(n, String)
			return
		case "encapsed_string":
			if isConstantEncapsed(n) {
				w.emit(n, String)
			} else {
				w.emit(n, Other)
			}
			return
		case "heredoc", "nowdoc", "variable_name", "comment", "float":
			w.emit(n, Other)
			return
		case "integer":
			w.emit(n, Number)
			return
		case "name":
			w.emit(n, Ident)
			return
		case "text":
			w.emit(n, Whitespace)
			return
		}
	}

	count := n.ChildCount()
	if count == 0 {
		if n.StartByte() == n.EndByte() {
			return
		}
		if n.IsNamed() {
			w.emit(n, Other)
		} else {
			w.emit(n, leafKind(string(w.source[n.StartByte():n.EndByte()])))
		}
		return
	}
	for i := uint(0); i < count; i++ {
		w.walk(n.Child(i))
	}
}

// isConstantEncapsed reports whether a double-quoted string has no
// interpolation, i.e. only literal content and escapes.
func isConstantEncapsed(n *tree_sitter.Node) bool {
	for i := uint(0); i < n.NamedChildCount(); i++ {
		switch n.NamedChild(i).Kind() {
		case "string_content", "escape_sequence":
		default:
			return false
		}
	}
	return true
}

// leafKind classifies an anonymous leaf: keywords are Other, everything
// made only of symbols is Punct.
func leafKind(text string) Kind {
	if strings.TrimSpace(text) == "" {
		return Whitespace
	}
	for _, r := range text {
		if r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r > 0x7f {
			return Other
		}
	}
	return Punct
}
