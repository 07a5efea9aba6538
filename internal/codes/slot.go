package codes

import (
	"regexp"
	"strings"
)

// slotSynonyms maps long timetable words to the short forms the portal
// renders, so "Laboratory 1" and "Lab 01" normalize identically.
var slotSynonyms = map[string]string{
	"laboratory": "lab",
	"tutorial":   "tut",
	"practical":  "prac",
	"seminar":    "sem",
	"workshop":   "wks",
	"session":    "sess",
}

var (
	slotSpaces   = regexp.MustCompile(`\s+`)
	trailingNum  = regexp.MustCompile(`\b(\d)\b`)
	slotHyphens  = strings.NewReplacer("-", " ", "_", " ")
)

// NormalizeSlot canonicalizes a slot label for comparison: lowercase,
// hyphens and underscores become spaces, whitespace collapses, long
// activity words shorten, and bare single digits are zero-padded.
func NormalizeSlot(slot string) string {
	s := strings.ToLower(strings.TrimSpace(slot))
	if s == "" {
		return ""
	}
	s = slotHyphens.Replace(s)
	s = slotSpaces.ReplaceAllString(s, " ")
	words := strings.Split(s, " ")
	for i, w := range words {
		if short, ok := slotSynonyms[w]; ok {
			words[i] = short
		}
	}
	s = strings.Join(words, " ")
	s = trailingNum.ReplaceAllString(s, "0$1")
	return s
}

// SlotMatches reports whether a candidate's slot hint refers to the
// entry whose visible text is given. Matching is a normalized
// case-insensitive substring test in both directions, so "Lab 1"
// matches an entry row reading "Applied Laboratory 01 - Building B".
func SlotMatches(entryText, slotHint string) bool {
	hint := NormalizeSlot(slotHint)
	text := NormalizeSlot(entryText)
	if hint == "" || text == "" {
		return false
	}
	return strings.Contains(text, hint) || strings.Contains(hint, text)
}
