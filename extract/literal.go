package extract

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var singleQuoteUnescaper = strings.NewReplacer(`\'`, `'`, `\\`, `\`)

// DecodeLiteral returns the run-time value of a PHP string literal token,
// quotes included in raw.
func DecodeLiteral(raw string) (string, error) {
	if len(raw) > 0 && (raw[0] == 'b' || raw[0] == 'B') {
		raw = raw[1:]
	}
	if len(raw) < 2 || raw[len(raw)-1] != raw[0] {
		return "", fmt.Errorf("malformed string literal %q", raw)
	}
	quote, body := raw[0], raw[1:len(raw)-1]

	var s string
	switch quote {
	case '"':
		s = unescapeDouble(body)
	case '\'':
		s = singleQuoteUnescaper.Replace(body)
	default:
		return "", fmt.Errorf("unknown quote %q in %q", quote, raw)
	}
	return strings.ReplaceAll(s, "\r\n", "\n"), nil
}

// Normalize decodes one or more concatenated literal tokens and escapes
// the result for storage.
func Normalize(raws ...string) (string, error) {
	var b strings.Builder
	for _, raw := range raws {
		s, err := DecodeLiteral(raw)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return EscapeForStorage(b.String()), nil
}

// EscapeForStorage backslash-escapes control characters, backslash and
// double quote. Output never contains a raw byte below 0x20.
func EscapeForStorage(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' || c == '"':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20:
			b.WriteByte('\\')
			switch c {
			case '\n':
				b.WriteByte('n')
			case '\t':
				b.WriteByte('t')
			case '\r':
				b.WriteByte('r')
			case '\a':
				b.WriteByte('a')
			case '\v':
				b.WriteByte('v')
			case '\b':
				b.WriteByte('b')
			case '\f':
				b.WriteByte('f')
			default:
				fmt.Fprintf(&b, "%03o", c)
			}
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// unescapeDouble applies PHP double-quoted string escapes. Unknown
// sequences keep their backslash, as PHP does.
func unescapeDouble(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'v':
			b.WriteByte('\v')
		case 'e':
			b.WriteByte(0x1b)
		case 'f':
			b.WriteByte('\f')
		case '\\', '$', '"':
			b.WriteByte(next)
		case 'x':
			n := hexRun(s[i+2:], 2)
			if n == 0 {
				b.WriteString(`\x`)
				break
			}
			v, _ := strconv.ParseUint(s[i+2:i+2+n], 16, 8)
			b.WriteByte(byte(v))
			i += n
		case 'u':
			r, n, ok := unicodeEscape(s[i+2:])
			if !ok {
				b.WriteString(`\u`)
				break
			}
			b.WriteRune(r)
			i += n
		default:
			if next >= '0' && next <= '7' {
				n := 1
				for n < 3 && i+1+n < len(s) && s[i+1+n] >= '0' && s[i+1+n] <= '7' {
					n++
				}
				v, _ := strconv.ParseUint(s[i+1:i+1+n], 8, 16)
				b.WriteByte(byte(v))
				i += n - 1
				break
			}
			b.WriteByte('\\')
			b.WriteByte(next)
		}
		i++
	}
	return b.String()
}

// hexRun counts leading hex digits in s, up to max.
func hexRun(s string, max int) int {
	n := 0
	for n < max && n < len(s) && isHex(s[n]) {
		n++
	}
	return n
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

// unicodeEscape parses "{HEX}" at the start of s.
func unicodeEscape(s string) (rune, int, bool) {
	if len(s) < 3 || s[0] != '{' {
		return 0, 0, false
	}
	end := strings.IndexByte(s, '}')
	if end < 2 || hexRun(s[1:end], end-1) != end-1 {
		return 0, 0, false
	}
	v, err := strconv.ParseUint(s[1:end], 16, 32)
	if err != nil || !utf8.ValidRune(rune(v)) {
		return 0, 0, false
	}
	return rune(v), end + 1, true
}
