// Package i18n selects the message printer used by the command line tools.
package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLang is the fallback language
var DefaultLang = language.English

// SupportedLangs are the languages numbers and counters are formatted for.
var SupportedLangs = []language.Tag{
	language.English,
	language.German,
}

var matcher = language.NewMatcher(SupportedLangs)

// MatchLanguage returns the best supported match for a list of language
// tags in Accept-Language form.
func MatchLanguage(accept string) language.Tag {
	tags, _, _ := language.ParseAcceptLanguage(accept)
	tag, _, _ := matcher.Match(tags...)
	return tag
}

// LocaleTag maps a POSIX locale such as "de_DE.UTF-8" to a supported tag.
func LocaleTag(locale string) language.Tag {
	if i := strings.IndexAny(locale, ".@"); i != -1 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return DefaultLang
	}
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return MatchLanguage(locale)
	}
	tag, _, _ = matcher.Match(tag)
	return tag
}

// NewCLIPrinter returns a printer for the locale named by LC_ALL or LANG.
func NewCLIPrinter() *message.Printer {
	lang := os.Getenv("LC_ALL")
	if lang == "" {
		lang = os.Getenv("LANG")
	}
	return message.NewPrinter(LocaleTag(lang))
}
