// Package outcome resolves customer outcomes for a sprint record.
package outcome

import (
	"context"
	"errors"
	"strings"

	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/soyeahso/sprintbot/internal/report"
)

// MaxOutcomes caps outcomes per record.
const MaxOutcomes = 8

// InlineSeparator joins outcomes in the preview's Customer Outcome column.
const InlineSeparator = " ; "

// ErrUnsupported is returned by a strategy whose calling form the installed
// outcomes tooling does not offer. The resolver moves to the next strategy.
var ErrUnsupported = errors.New("outcome lookup form not supported")

// Strategy is one way of looking up outcomes by sprint id.
type Strategy struct {
	Name  string
	Fetch func(ctx context.Context, sprintID string) ([]string, error)
}

// ScopedFunc looks outcomes up from an explicit scripts directory.
type ScopedFunc func(ctx context.Context, dir, sprintID string) ([]string, error)

// SprintFunc looks outcomes up by sprint id alone.
type SprintFunc func(ctx context.Context, sprintID string) ([]string, error)

// Scoped builds the (scripts dir, sprint id) strategy. It is unsupported
// when no directory is known or fn is nil.
func Scoped(dir string, fn ScopedFunc) Strategy {
	return Strategy{
		Name: "scoped",
		Fetch: func(ctx context.Context, sprintID string) ([]string, error) {
			if dir == "" || fn == nil {
				return nil, ErrUnsupported
			}
			return fn(ctx, dir, sprintID)
		},
	}
}

// SprintOnly builds the (sprint id) strategy.
func SprintOnly(fn SprintFunc) Strategy {
	return Strategy{
		Name: "sprint-only",
		Fetch: func(ctx context.Context, sprintID string) ([]string, error) {
			if fn == nil {
				return nil, ErrUnsupported
			}
			return fn(ctx, sprintID)
		},
	}
}

// Resolver prefers the record's inline outcomes and falls back to the
// strategies in order.
type Resolver struct {
	strategies []Strategy
	log        *logging.Logger
}

// NewResolver creates a resolver trying strategies in the given order.
func NewResolver(log *logging.Logger, strategies ...Strategy) *Resolver {
	return &Resolver{strategies: strategies, log: log.Sub("outcome")}
}

// Resolve implements report.OutcomeResolver. It never fails: lookup errors
// produce an empty list.
func (r *Resolver) Resolve(ctx context.Context, rec report.SprintRecord) report.Outcomes {
	if strings.TrimSpace(rec.CustomerOutcome) != "" {
		return report.Outcomes{Items: Inline(rec.CustomerOutcome)}
	}
	if rec.SprintID == "" || len(r.strategies) == 0 {
		return report.Outcomes{Items: []string{}}
	}
	return report.Outcomes{Items: r.lookup(ctx, rec.SprintID), Looked: true}
}

func (r *Resolver) lookup(ctx context.Context, sprintID string) []string {
	for _, s := range r.strategies {
		items, err := s.Fetch(ctx, sprintID)
		if errors.Is(err, ErrUnsupported) {
			r.log.Debug().Str("strategy", s.Name).Msg("outcome strategy unsupported, trying next")
			continue
		}
		if err != nil {
			r.log.Debug().Err(err).Str("strategy", s.Name).Str("sprint", sprintID).Msg("outcome lookup failed")
			return []string{}
		}
		return capped(items)
	}
	return []string{}
}

// Inline splits the preview's outcome column.
func Inline(text string) []string {
	out := []string{}
	for _, part := range strings.Split(text, InlineSeparator) {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return capped(out)
}

func capped(items []string) []string {
	if items == nil {
		return []string{}
	}
	if len(items) > MaxOutcomes {
		return items[:MaxOutcomes]
	}
	return items
}
