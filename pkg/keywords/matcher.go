// Package keywords implements the comment keyword matcher.
//
// Matching is plain case-insensitive substring containment in list order:
// the first configured keyword found anywhere in the text wins. There is no
// word-boundary check, so "info" also matches "information".
package keywords

import "strings"

// Match returns the first keyword from list contained in text, compared
// case-insensitively. The keyword is returned as configured. Blank keywords
// never match.
func Match(text string, list []string) (string, bool) {
	if text == "" || len(list) == 0 {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, kw := range list {
		needle := strings.ToLower(strings.TrimSpace(kw))
		if needle == "" {
			continue
		}
		if strings.Contains(lower, needle) {
			return kw, true
		}
	}
	return "", false
}

// Normalize trims, lowercases and de-duplicates a keyword list while keeping
// the original order. It is applied to lists coming from the admin API.
func Normalize(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, kw := range list {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		out = append(out, kw)
	}
	return out
}
