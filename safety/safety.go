// Package safety screens free-form prompt and story text for a children's
// storytelling service. It provides model-input cleaning, a coarse keyword
// denylist, and pattern-based extraction of structured hints (child age,
// child name) from natural language.
//
// The denylist is deliberately soft: it catches gross violations without
// flagging normal storytelling vocabulary. False negatives are acceptable,
// false positives on words like "skill" are not, so every keyword is matched
// on word boundaries.
package safety

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// unsafeCategory pairs a denylist pattern with a human-readable label used in
// diagnostic output.
type unsafeCategory struct {
	label   string
	pattern *regexp.Regexp
}

var unsafeCategories = []unsafeCategory{
	{"violence", regexp.MustCompile(`\b(murder|kill|blood|gore|torture|weapon|gun|knife|stab|shoot)\b`)},
	{"sexual content", regexp.MustCompile(`\b(sex|sexual|naked|nude|porn|explicit)\b`)},
	{"profanity", regexp.MustCompile(`\b(fuck|shit|bitch|damn|hell|ass|crap)\b`)},
	{"harmful content", regexp.MustCompile(`\b(suicide|drug|alcohol|cigarette|abuse)\b`)},
}

// CleanForModel normalizes raw text for use as model input: control
// characters (code points below 0x20 and DEL) are stripped, runs of
// whitespace collapse to a single space, and the ends are trimmed.
// It is total and idempotent.
func CleanForModel(text string) string {
	stripped := strings.Map(func(r rune) rune {
		if r == 0x7F || (r < 0x20 && !unicode.IsSpace(r)) {
			return -1
		}
		return r
	}, text)
	return strings.Join(strings.Fields(stripped), " ")
}

// IsContentSafe reports whether text is acceptable for children. Empty or
// whitespace-only text is safe. Matching is case-insensitive and whole-word.
func IsContentSafe(text string) bool {
	if strings.TrimSpace(text) == "" {
		return true
	}
	lower := strings.ToLower(text)
	for _, cat := range unsafeCategories {
		if cat.pattern.MatchString(lower) {
			return false
		}
	}
	return true
}

// UnsafeReasons returns one message per denylist category that matches,
// listing the distinct offending tokens. Empty text yields no reasons.
func UnsafeReasons(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	lower := strings.ToLower(text)

	var reasons []string
	for _, cat := range unsafeCategories {
		matches := cat.pattern.FindAllString(lower, -1)
		if len(matches) == 0 {
			continue
		}
		seen := make(map[string]struct{}, len(matches))
		var tokens []string
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			tokens = append(tokens, m)
		}
		sort.Strings(tokens)
		reasons = append(reasons, fmt.Sprintf("contains %s keyword: %s", cat.label, strings.Join(tokens, ", ")))
	}
	return reasons
}
