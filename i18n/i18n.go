// Package i18n looks up translated messages from a message store at run
// time.
//
// A Translator holds one domain and locale. It is built by rendering the
// stored records as a PO document and handing that to gotext, so plural
// selection follows the locale's Plural-Forms rule. Untranslated
// messages come back unchanged (standard gettext passthrough behavior).
//
// Usage:
//
//	tr, err := i18n.Load(ctx, st, "default", "fr")
//	fmt.Println(tr.T("Hello, world!"))
//	fmt.Println(tr.N("Found %d file", "Found %d files", count, count))
package i18n

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"

	"github.com/minios-linux/i18nextract/pofile"
	"github.com/minios-linux/i18nextract/store"
)

// Translator translates the messages of one domain and locale.
type Translator struct {
	Domain string
	Locale string

	po *gotext.Po
}

// Load reads every record of domain and locale from s.
func Load(ctx context.Context, s store.Store, domain, locale string) (*Translator, error) {
	recs, err := s.Find(ctx, store.Query{Domain: domain, Locale: locale})
	if err != nil {
		return nil, fmt.Errorf("loading %s/%s: %w", domain, locale, err)
	}
	po := gotext.NewPo()
	po.Parse(Render(domain, locale, recs).Bytes())
	return &Translator{Domain: domain, Locale: locale, po: po}, nil
}

// Render builds the PO document for records of one domain and locale.
func Render(domain, locale string, recs []store.Record) *pofile.File {
	f := pofile.NewFile()
	f.Header = pofile.MakeHeader(domain, locale)
	for _, r := range recs {
		// msgid "" without context is the header to gettext readers.
		if r.Singular == "" && r.Context == nil {
			continue
		}
		e := &pofile.Entry{
			MsgCtxt:     r.Context,
			MsgID:       r.Singular,
			MsgIDPlural: r.Plural,
		}
		e.SetTranslations(r.Translations)
		f.Entries = append(f.Entries, e)
	}
	return f
}

// T translates msgid. vars, when given, are applied with fmt.Sprintf.
func (t *Translator) T(msgid string, vars ...any) string {
	if t == nil || t.po == nil {
		return passthrough(msgid, vars...)
	}
	return t.po.Get(msgid, vars...)
}

// N translates a message with plural forms for count n.
func (t *Translator) N(singular, plural string, n int, vars ...any) string {
	if t == nil || t.po == nil {
		if n == 1 {
			return passthrough(singular, vars...)
		}
		return passthrough(plural, vars...)
	}
	return t.po.GetN(singular, plural, n, vars...)
}

// X translates msgid within a context.
func (t *Translator) X(context, msgid string, vars ...any) string {
	if t == nil || t.po == nil {
		return passthrough(msgid, vars...)
	}
	return t.po.GetC(msgid, context, vars...)
}

// XN translates a plural message within a context.
func (t *Translator) XN(context, singular, plural string, n int, vars ...any) string {
	if t == nil || t.po == nil {
		if n == 1 {
			return passthrough(singular, vars...)
		}
		return passthrough(plural, vars...)
	}
	return t.po.GetNC(singular, plural, n, context, vars...)
}

// passthrough formats msgid like gettext does for an unknown message.
func passthrough(msgid string, vars ...any) string {
	if len(vars) == 0 {
		return msgid
	}
	return fmt.Sprintf(msgid, vars...)
}

// DetectLanguage reads environment variables to determine the user's
// preferred language, following GNU gettext conventions.
func DetectLanguage() string {
	// GNU gettext priority: LANGUAGE > LC_ALL > LC_MESSAGES > LANG
	for _, env := range []string{"LANGUAGE", "LC_ALL", "LC_MESSAGES", "LANG"} {
		if val := os.Getenv(env); val != "" {
			// LANGUAGE can be a colon-separated list; take the first
			if env == "LANGUAGE" {
				parts := strings.SplitN(val, ":", 2)
				val = parts[0]
			}
			// Strip encoding suffix (e.g. "ru_RU.UTF-8" -> "ru_RU")
			if idx := strings.IndexByte(val, '.'); idx >= 0 {
				val = val[:idx]
			}
			// C and POSIX mean no translation
			if val == "C" || val == "POSIX" || val == "" {
				continue
			}
			return val
		}
	}
	return "en"
}
