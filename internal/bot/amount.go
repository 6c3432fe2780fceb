package bot

import (
	"regexp"
	"strconv"
)

const (
	minTopUp = 0.001
	maxTopUp = 1000
)

// Patterns are tried in order; the first one that matches and parses to an
// amount within [minTopUp, maxTopUp] wins.
var amountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*htr`),
	regexp.MustCompile(`(?i)top\s*up\s+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)add\s+(\d+(?:\.\d+)?)`),
	regexp.MustCompile(`(?i)deposit\s+(\d+(?:\.\d+)?)`),
}

// ExtractAmount pulls a top-up amount in HTR out of free text.
func ExtractAmount(message string) (float64, bool) {
	for _, p := range amountPatterns {
		m := p.FindStringSubmatch(message)
		if m == nil {
			continue
		}
		amount, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if amount >= minTopUp && amount <= maxTopUp {
			return amount, true
		}
	}
	return 0, false
}
