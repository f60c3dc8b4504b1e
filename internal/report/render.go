package report

import (
	"context"
	"fmt"
	"strings"
)

// DisplayFilter selects which sections a report shows.
type DisplayFilter string

const (
	FilterAll          DisplayFilter = "all"
	FilterGoalsOnly    DisplayFilter = "goals_only"
	FilterOutcomesOnly DisplayFilter = "outcomes_only"
)

// ParseDisplayFilter accepts a known filter name; anything else is FilterAll.
func ParseDisplayFilter(s string) DisplayFilter {
	switch f := DisplayFilter(strings.TrimSpace(s)); f {
	case FilterGoalsOnly, FilterOutcomesOnly:
		return f
	default:
		return FilterAll
	}
}

func (f DisplayFilter) showsOutcomes() bool { return f != FilterGoalsOnly }
func (f DisplayFilter) showsGoals() bool    { return f != FilterOutcomesOnly }

// Placeholder lines for empty sections.
const (
	NoOutput          = "No output."
	NoGoalLine        = "  • (No sprint goal found)"
	NoOutcomeLine     = "  • Not specified"
	OutcomesUnsetLine = "  • Not set on epics for this sprint"
)

// Outcomes is the customer-outcome list for one record. Looked is set when a
// fallback lookup ran, which changes the placeholder shown for an empty list.
type Outcomes struct {
	Items  []string
	Looked bool
}

// OutcomeResolver supplies outcomes for a record. It must not fail.
type OutcomeResolver interface {
	Resolve(ctx context.Context, rec SprintRecord) Outcomes
}

// Enriched is a record ready for rendering.
type Enriched struct {
	Record   SprintRecord
	Goals    []string
	Outcomes Outcomes
}

// Summarize runs the full pipeline over raw fetch output. Outcomes are only
// resolved when the filter shows them. When no rows are found the cleaned raw
// text is returned instead, or NoOutput if that is blank.
func Summarize(ctx context.Context, raw string, filter DisplayFilter, outcomes OutcomeResolver) string {
	rows := ExtractRows(raw)
	if len(rows) == 0 {
		return Fallback(raw)
	}

	items := make([]Enriched, 0, len(rows))
	for _, rec := range ParseRecords(rows) {
		e := Enriched{
			Record: rec,
			Goals:  GoalBullets(rec.Goal, DefaultMaxBullets),
		}
		if filter.showsOutcomes() && outcomes != nil {
			e.Outcomes = outcomes.Resolve(ctx, rec)
		}
		items = append(items, e)
	}
	return Render(items, filter)
}

// Fallback is the display text for output that holds no preview rows.
func Fallback(raw string) string {
	if s := strings.TrimSpace(StripANSI(raw)); s != "" {
		return s
	}
	return NoOutput
}

// Render composes one block per record, separated by horizontal rules.
func Render(items []Enriched, filter DisplayFilter) string {
	blocks := make([]string, 0, len(items))
	for _, it := range items {
		blocks = append(blocks, renderBlock(it, filter))
	}
	return strings.TrimSpace(strings.Join(blocks, "\n---\n\n"))
}

func renderBlock(it Enriched, filter DisplayFilter) string {
	rec := it.Record

	var b strings.Builder
	fmt.Fprintf(&b, "**%s — %s**\n", rec.BoardName, rec.SprintName)
	fmt.Fprintf(&b, "📅 %s → %s\n", rec.StartDate, rec.EndDate)

	if filter.showsOutcomes() {
		b.WriteString("\n🎯 **Customer Outcome**\n")
		b.WriteString(outcomeBody(it.Outcomes))
		b.WriteString("\n")
	}
	if filter.showsGoals() {
		b.WriteString("\n📌 **Sprint Goal**\n")
		b.WriteString(goalBody(it.Goals))
		b.WriteString("\n")
	}
	return b.String()
}

func goalBody(goals []string) string {
	if len(goals) == 0 {
		return NoGoalLine
	}
	return bulletLines(goals)
}

func outcomeBody(o Outcomes) string {
	switch {
	case len(o.Items) > 0:
		return bulletLines(o.Items)
	case o.Looked:
		return OutcomesUnsetLine
	default:
		return NoOutcomeLine
	}
}

func bulletLines(items []string) string {
	lines := make([]string, len(items))
	for i, s := range items {
		lines[i] = "  • " + s
	}
	return strings.Join(lines, "\n")
}
