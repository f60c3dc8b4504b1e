package action

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Scripts names the script behind each action.
type Scripts struct {
	Fetch    string
	FetchAll string
	Push     string
	Outcomes string
}

// DefaultScripts are the script names shipped with the Jira/Miro tooling.
var DefaultScripts = Scripts{
	Fetch:    "fetch_sprint_details.sh",
	FetchAll: "fetch_all_team_sprint_details.sh",
	Push:     "push_to_miro_cards.sh",
	Outcomes: "fetch_customer_outcomes.sh",
}

// Actions exposes the sprint actions on top of an Invoker.
type Actions struct {
	inv     Invoker
	dir     string
	scripts Scripts
}

// New builds the action set. dir is the scripts directory, used to check for
// optional scripts before running them.
func New(inv Invoker, dir string, scripts Scripts) *Actions {
	if scripts.Fetch == "" {
		scripts.Fetch = DefaultScripts.Fetch
	}
	if scripts.FetchAll == "" {
		scripts.FetchAll = DefaultScripts.FetchAll
	}
	if scripts.Push == "" {
		scripts.Push = DefaultScripts.Push
	}
	if scripts.Outcomes == "" {
		scripts.Outcomes = DefaultScripts.Outcomes
	}
	return &Actions{inv: inv, dir: dir, scripts: scripts}
}

// Dir returns the scripts directory.
func (a *Actions) Dir() string { return a.dir }

// FetchSprintDetails pulls sprint rows for the given boards.
func (a *Actions) FetchSprintDetails(ctx context.Context, ids []int) Result {
	args := make([]string, 0, len(ids))
	for _, id := range ids {
		args = append(args, strconv.Itoa(id))
	}
	return a.inv.Invoke(ctx, a.scripts.Fetch, args...)
}

// FetchAllSprintDetails pulls sprint rows for every team the script knows.
func (a *Actions) FetchAllSprintDetails(ctx context.Context) Result {
	return a.inv.Invoke(ctx, a.scripts.FetchAll)
}

// PushGoals posts summarized goals to a Miro board. An empty teamFilter
// means all teams.
func (a *Actions) PushGoals(ctx context.Context, boardID, teamFilter string) Result {
	return a.inv.Invoke(ctx, a.scripts.Push, boardID, teamFilter)
}

// FetchCustomerOutcomes runs the outcomes script from the configured
// scripts directory.
func (a *Actions) FetchCustomerOutcomes(ctx context.Context, sprintID string) ([]string, error) {
	return a.FetchCustomerOutcomesIn(ctx, a.dir, sprintID)
}

// HasOutcomesScript reports whether dir holds the outcomes script.
func (a *Actions) HasOutcomesScript(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, a.scripts.Outcomes))
	return err == nil
}

// FetchCustomerOutcomesIn runs the outcomes script found in dir. A missing
// script yields no outcomes and no error; a script that cannot be started is
// an error.
func (a *Actions) FetchCustomerOutcomesIn(ctx context.Context, dir, sprintID string) ([]string, error) {
	script, err := filepath.Abs(filepath.Join(dir, a.scripts.Outcomes))
	if err != nil {
		return nil, fmt.Errorf("resolve outcomes script: %w", err)
	}
	if _, err := os.Stat(script); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("stat outcomes script: %w", err)
	}

	// A non-zero exit still yields whatever JSON lines were printed.
	res := a.inv.Invoke(ctx, script, sprintID)
	if res.ExitCode < 0 {
		return nil, fmt.Errorf("run outcomes script: %s", strings.TrimSpace(res.Stderr))
	}
	return ParseOutcomes(res.Stdout), nil
}

type outcomeLine struct {
	Epic    string `json:"epic"`
	Outcome string `json:"outcome"`
}

// ParseOutcomes decodes newline-delimited {"epic","outcome"} objects. Lines
// that do not decode, or carry a blank outcome, are skipped. Outcomes are
// de-duplicated case-insensitively in first-seen order.
func ParseOutcomes(stdout string) []string {
	out := []string{}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(strings.NewReader(stdout))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var ol outcomeLine
		if err := json.Unmarshal([]byte(line), &ol); err != nil {
			continue
		}
		o := strings.TrimSpace(ol.Outcome)
		if o == "" {
			continue
		}
		key := strings.ToLower(o)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}
