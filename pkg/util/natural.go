package util

import (
	"sort"
	"strconv"
	"strings"
)

// NaturalLess compares strings so that runs of digits are ordered by their
// numeric value: "frame 2" < "frame 10".
func NaturalLess(a, b string) bool {
	for a != "" && b != "" {
		ca, cb := a[0], b[0]
		if isDigit(ca) && isDigit(cb) {
			na, restA := splitDigits(a)
			nb, restB := splitDigits(b)
			if c := compareNumeric(na, nb); c != 0 {
				return c < 0
			}
			a, b = restA, restB
			continue
		}
		if ca != cb {
			return ca < cb
		}
		a, b = a[1:], b[1:]
	}
	return len(a) < len(b)
}

// SortNatural sorts s in place using NaturalLess
func SortNatural(s []string) {
	sort.SliceStable(s, func(i, j int) bool { return NaturalLess(s[i], s[j]) })
}

// TrailingNumber returns the last run of digits in s, e.g. 12 for
// "frame00012.jpg". ok is false when s has no digits.
func TrailingNumber(s string) (n int, ok bool) {
	end := strings.LastIndexFunc(s, func(r rune) bool { return r >= '0' && r <= '9' })
	if end < 0 {
		return 0, false
	}
	start := end
	for start > 0 && isDigit(s[start-1]) {
		start--
	}
	n, err := strconv.Atoi(s[start : end+1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func splitDigits(s string) (string, string) {
	i := 0
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	return s[:i], s[i:]
}

// compareNumeric compares two digit strings of any length without parsing
func compareNumeric(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	if len(a) != len(b) {
		if len(a) < len(b) {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
