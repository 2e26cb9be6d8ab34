package safety

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// agePatterns are tried in order; the first pattern whose captured value is
// inside the accepted range wins. Order encodes priority among ambiguous
// phrasings and must not be rearranged.
var agePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*[- ]\s*year\s*[- ]\s*old\b`),
	regexp.MustCompile(`(?i)\b(\d{1,2})\s*(?:years?\s*old|yr\s*old|y/o)\b`),
	regexp.MustCompile(`(?i)\bage\s*(\d{1,2})\b`),
	regexp.MustCompile(`(?i)\bfor\s+(\d{1,2})\s*(?:years?\s*old)?\b`),
}

const (
	minChildAge = 1
	maxChildAge = 10
)

// ExtractAge pulls a child age out of free-form text, accepting phrasings
// like "7-year-old", "7 years old", "7 y/o", "age 7", and "for 7". The age
// must fall in [1,10]; a match outside that range does not stop later
// patterns from being tried.
func ExtractAge(text string) (int, bool) {
	for _, pattern := range agePatterns {
		m := pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		value, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if value >= minChildAge && value <= maxChildAge {
			return value, true
		}
	}
	return 0, false
}

// namePatterns are tried in order; "named" phrasings beat the generic
// "for X" fallback.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bnamed\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bcalled\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bname\s+is\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\b(?:child|son|daughter)\s+named\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\b(?:child|son|daughter)\s+([A-Za-z][A-Za-z'-]*)`),
	regexp.MustCompile(`(?i)\bfor\s+([A-Za-z][A-Za-z'-]*)`),
}

// nameStopwords are tokens the name patterns capture in common phrasings
// that can never be a child's name.
var nameStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {},
	"my": {}, "your": {}, "his": {}, "her": {}, "their": {}, "our": {}, "its": {},
	"this": {}, "that": {}, "me": {}, "him": {}, "them": {}, "us": {},
	"kid": {}, "kids": {}, "child": {}, "children": {},
	"son": {}, "daughter": {}, "boy": {}, "girl": {}, "baby": {}, "toddler": {},
	"story": {}, "stories": {}, "age": {}, "aged": {},
	"year": {}, "years": {}, "old": {},
	"today": {}, "tonight": {}, "tomorrow": {}, "bedtime": {},
}

// ExtractChildName pulls a child's name out of free-form text. The text is
// cleaned first; each pattern is scanned for its first plausible candidate
// (length two or more after trimming stray hyphens and apostrophes, and not
// a stopword). The returned name has its first letter capitalized.
func ExtractChildName(text string) (string, bool) {
	cleaned := CleanForModel(text)
	if cleaned == "" {
		return "", false
	}

	for _, pattern := range namePatterns {
		for _, m := range pattern.FindAllStringSubmatch(cleaned, -1) {
			candidate := strings.Trim(m[1], "'-")
			if len(candidate) < 2 {
				continue
			}
			if _, stop := nameStopwords[strings.ToLower(candidate)]; stop {
				continue
			}
			return capitalizeFirst(candidate), true
		}
	}
	return "", false
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
