package report

import (
	"regexp"
	"strings"
)

// DefaultMaxBullets caps goal bullets per sprint.
const DefaultMaxBullets = 8

var goalSeparators = regexp.MustCompile(`;\s*|\.\s+|\s-\s+`)

// GoalBullets splits a free-text sprint goal into distinct bullet points on
// semicolons, sentence-ending periods and spaced hyphens. Duplicates are
// dropped case-insensitively, first occurrence kept.
func GoalBullets(goal string, max int) []string {
	g := strings.TrimSpace(goal)
	if g == "" || max <= 0 {
		return []string{}
	}

	g = strings.ReplaceAll(g, "\n", " ")
	g = strings.ReplaceAll(g, "  ", " ")

	out := []string{}
	seen := make(map[string]bool)
	for _, chunk := range goalSeparators.Split(g, -1) {
		c := strings.Trim(chunk, " -•\t")
		if c == "" {
			continue
		}
		key := strings.ToLower(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
		if len(out) == max {
			break
		}
	}
	return out
}
