// Package route implements language-prefixed URL routes.
//
// A route template such as "/:controller/:action" becomes
// "/:lang/:controller/:action", where :lang only matches one of the
// configured languages. Templates that already place :lang somewhere are
// kept as they are.
package route

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// LangParam is the route parameter holding the language.
const LangParam = "lang"

// InflectDasherize maps CamelCase controller and action names to
// dashed URL segments.
const InflectDasherize = "dasherize"

// ErrNoLanguages is returned when neither options nor languages supply the
// lang alternation.
var ErrNoLanguages = errors.New("route: no languages")

// Options are the route options. Empty fields take their defaults.
type Options struct {
	// Lang is the alternation of accepted languages, e.g. "en|fr|de".
	// Defaults to the languages joined with "|".
	Lang string
	// Inflect defaults to "dasherize".
	Inflect string
	// Persist lists parameters carried over from the current request
	// when building URLs. Defaults to [lang].
	Persist []string
	// Patterns constrain other placeholders by regular expression.
	Patterns map[string]string
}

// Route is a compiled language-prefixed route.
type Route struct {
	Template string
	Defaults map[string]string
	Options  Options

	re     *regexp.Regexp
	names  []string
	checks map[string]*regexp.Regexp
}

var placeholder = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// New builds a route from template. A nil opts uses the defaults.
func New(template string, defaults map[string]string, opts *Options, languages []string) (*Route, error) {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Lang == "" {
		o.Lang = strings.Join(languages, "|")
	}
	if o.Lang == "" {
		return nil, ErrNoLanguages
	}
	if o.Inflect == "" {
		o.Inflect = InflectDasherize
	}
	if o.Persist == nil {
		o.Persist = []string{LangParam}
	}
	if defaults == nil {
		defaults = map[string]string{}
	}

	r := &Route{
		Template: Prefix(template),
		Defaults: defaults,
		Options:  o,
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

// Prefix adds the :lang segment to template unless it has one.
func Prefix(template string) string {
	if strings.Contains(template, ":"+LangParam) {
		return template
	}
	t := "/:" + LangParam + template
	if t == "/:"+LangParam+"/" {
		t = "/:" + LangParam
	}
	return t
}

func (r *Route) pattern(name string) string {
	if name == LangParam {
		return r.Options.Lang
	}
	if p, ok := r.Options.Patterns[name]; ok {
		return p
	}
	return `[^/]+`
}

func (r *Route) compile() error {
	var b strings.Builder
	b.WriteString("^")
	r.checks = make(map[string]*regexp.Regexp)
	last := 0
	for _, m := range placeholder.FindAllStringSubmatchIndex(r.Template, -1) {
		b.WriteString(regexp.QuoteMeta(r.Template[last:m[0]]))
		name := r.Template[m[2]:m[3]]
		r.names = append(r.names, name)
		check, err := regexp.Compile(`^(?:` + r.pattern(name) + `)$`)
		if err != nil {
			return fmt.Errorf("route %s: pattern for %s: %w", r.Template, name, err)
		}
		r.checks[name] = check
		fmt.Fprintf(&b, "(?P<%s>%s)", name, r.pattern(name))
		last = m[1]
	}
	b.WriteString(regexp.QuoteMeta(strings.TrimSuffix(r.Template[last:], "/")))
	b.WriteString("/?$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return fmt.Errorf("route %s: %w", r.Template, err)
	}
	r.re = re
	return nil
}

// Match parses path. It returns the defaults overlaid with the matched
// placeholders, with controller and action names camelized when the
// route dasherizes.
func (r *Route) Match(path string) (map[string]string, bool) {
	m := r.re.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	params := make(map[string]string, len(r.Defaults)+len(r.names))
	for k, v := range r.Defaults {
		params[k] = v
	}
	for i, name := range r.re.SubexpNames() {
		if i == 0 || name == "" {
			continue
		}
		v := m[i]
		if r.Options.Inflect == InflectDasherize {
			switch name {
			case "controller":
				v = Camelize(v)
			case "action":
				v = lowerFirst(Camelize(v))
			}
		}
		params[name] = v
	}
	return params, true
}

// Build renders the route for params, falling back to the defaults.
// Every placeholder must have a value matching its pattern.
func (r *Route) Build(params map[string]string) (string, error) {
	var err error
	out := placeholder.ReplaceAllStringFunc(r.Template, func(tok string) string {
		name := tok[1:]
		v, ok := params[name]
		if !ok {
			v, ok = r.Defaults[name]
		}
		if !ok || v == "" {
			if err == nil {
				err = fmt.Errorf("route %s: missing %s", r.Template, name)
			}
			return tok
		}
		if r.Options.Inflect == InflectDasherize && (name == "controller" || name == "action") {
			v = Dasherize(v)
		}
		if !r.checks[name].MatchString(v) {
			if err == nil {
				err = fmt.Errorf("route %s: %s %q does not match %s", r.Template, name, v, r.pattern(name))
			}
		}
		return v
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

// Persist returns params with the persisted parameters of current added
// where params has none.
func (r *Route) Persist(current, params map[string]string) map[string]string {
	out := make(map[string]string, len(params)+len(r.Options.Persist))
	for k, v := range params {
		out[k] = v
	}
	for _, k := range r.Options.Persist {
		if _, ok := out[k]; !ok {
			if v, ok := current[k]; ok {
				out[k] = v
			}
		}
	}
	return out
}

// Negotiate picks the best of languages for an Accept-Language header,
// or fallback when nothing matches.
func Negotiate(acceptLanguage string, languages []string, fallback string) string {
	if len(languages) == 0 {
		return fallback
	}
	tags := make([]language.Tag, len(languages))
	for i, l := range languages {
		tags[i] = language.Make(strings.ReplaceAll(l, "_", "-"))
	}
	desired, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(desired) == 0 {
		return fallback
	}
	_, idx, conf := language.NewMatcher(tags).Match(desired...)
	if conf == language.No {
		return fallback
	}
	return languages[idx]
}

// ---------------------------------------------------------------------------
// Inflection
// ---------------------------------------------------------------------------

// Dasherize turns "BlogPosts" or "viewAll" into "blog-posts" and "view-all".
func Dasherize(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		if r == '_' {
			b.WriteByte('-')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Camelize turns "blog-posts" into "BlogPosts".
func Camelize(s string) string {
	var b strings.Builder
	upper := true
	for _, r := range s {
		if r == '-' || r == '_' {
			upper = true
			continue
		}
		if upper {
			b.WriteRune(unicode.ToUpper(r))
			upper = false
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func lowerFirst(s string) string {
	for i, r := range s {
		return string(unicode.ToLower(r)) + s[i+len(string(r)):]
	}
	return s
}
