package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TitlePrefix starts every generated conversation title.
const TitlePrefix = "Topic: "

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

// MakeTitle builds a sidebar title from the first user message. The text is
// NFC-normalized, whitespace is collapsed and it is clipped to maxRunes with
// a trailing ellipsis when something was cut.
func MakeTitle(text string, maxRunes int) string {
	t := normalizeTitle(text)
	if maxRunes > 0 && utf8.RuneCountInString(t) > maxRunes {
		t = strings.TrimRight(string([]rune(t)[:maxRunes]), " ") + "…"
	}
	return TitlePrefix + t
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	return whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(s)), " ")
}

// normalizePrompt trims the prompt and folds it to NFC. Inner newlines are
// kept.
func normalizePrompt(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}
