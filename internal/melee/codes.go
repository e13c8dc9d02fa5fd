package melee

import (
	"fmt"
	"regexp"
	"strings"
)

var codePattern = regexp.MustCompile(`^([a-zA-Z]+)[\s\-_#]*(\d+)$`)

// FormatCode normalizes user input like "abc 123" to "ABC#123".
func FormatCode(input string) (string, error) {
	m := codePattern.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return "", fmt.Errorf("invalid code %q: expected letters followed by numbers", input)
	}
	return strings.ToUpper(m[1]) + "#" + m[2], nil
}

// IntersectFold returns the members of a also present in b, ignoring case.
func IntersectFold(a, b []string) []string {
	lower := make(map[string]struct{}, len(b))
	for _, v := range b {
		lower[strings.ToLower(v)] = struct{}{}
	}
	var out []string
	for _, v := range a {
		if _, ok := lower[strings.ToLower(v)]; ok {
			out = append(out, v)
		}
	}
	return out
}

// ContainsFold reports whether list holds item, ignoring case.
func ContainsFold(list []string, item string) bool {
	for _, v := range list {
		if strings.EqualFold(v, item) {
			return true
		}
	}
	return false
}

// UniqueFold drops later case-insensitive duplicates.
func UniqueFold(list []string) []string {
	seen := make(map[string]struct{}, len(list))
	out := make([]string, 0, len(list))
	for _, v := range list {
		k := strings.ToLower(v)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

// SameSet reports whether a and b hold the same values regardless of order.
func SameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}
