// Package report turns raw fetch-script output into sprint summaries.
//
// The fetch script prints a CSV preview somewhere in its terminal output,
// often colored and sometimes with its rows collapsed onto one line. The
// pipeline is: ExtractRows, ParseRecord per row, GoalBullets and outcome
// resolution per record, then Render.
package report

import (
	"regexp"
	"strings"
)

const (
	// OldHeader is the eight-column preview header.
	OldHeader = "Board ID,Board Name,Sprint ID,Sprint Name,Sprint State,Start Date,End Date,Sprint Goal"
	// NewHeader adds the customer outcome column.
	NewHeader = OldHeader + ",Customer Outcome"
)

var (
	ansiPattern    = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)
	mergedRowSplit = regexp.MustCompile(`\s(\d+),`)
	dataRowPrefix  = regexp.MustCompile(`^\d+,`)
)

// StripANSI removes terminal CSI escape sequences.
func StripANSI(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}

// ExtractRows finds the preview table in raw script output and returns one
// candidate data row per element, in order. Output without a known header
// yields nil.
//
// Rows glued together on one line are split before every whitespace-led
// "<digits>,". A quoted field containing such a sequence is split too.
func ExtractRows(raw string) []string {
	text := StripANSI(raw)

	header := OldHeader
	if strings.Contains(text, NewHeader) {
		header = NewHeader
	}
	idx := strings.Index(text, header)
	if idx < 0 {
		return nil
	}

	preview := strings.Replace(text[idx:], header, header+"\n", 1)
	preview = mergedRowSplit.ReplaceAllString(preview, "\n$1,")

	var rows []string
	for _, line := range strings.Split(preview, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && dataRowPrefix.MatchString(line) {
			rows = append(rows, line)
		}
	}
	return rows
}
