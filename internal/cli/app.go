package cli

import (
	"context"
	"path/filepath"

	"github.com/soyeahso/sprintbot/internal/action"
	"github.com/soyeahso/sprintbot/internal/agent"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/directory"
	"github.com/soyeahso/sprintbot/internal/hooks"
	"github.com/soyeahso/sprintbot/internal/llm"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/soyeahso/sprintbot/internal/metrics"
	"github.com/soyeahso/sprintbot/internal/outcome"
)

// core holds the pieces shared by every surface.
type core struct {
	actions  *action.Actions
	outcomes *outcome.Resolver
	boards   directory.Source
	hooks    *hooks.Manager
	metrics  *metrics.Recorder
}

// newCore wires the script actions, outcome lookup and team directory. None
// of them needs an LLM.
func newCore(cfg config.Config, log *logging.Logger) *core {
	s := cfg.Scripts
	inv := action.NewScriptInvoker(s.Dir, s.Shell, log)
	acts := action.New(inv, s.Dir, action.Scripts{
		Fetch:    s.Fetch,
		FetchAll: s.FetchAll,
		Push:     s.Push,
		Outcomes: s.Outcomes,
	})

	h := hooks.NewManager(log)
	h.Trace(log)

	return &core{
		actions: acts,
		outcomes: outcomeResolver(acts, homeScriptsDir(), log),
		boards:  directory.FileSource(boardIDsPath(cfg)),
		hooks:   h,
		metrics: metrics.New(),
	}
}

// outcomeResolver looks outcomes up in the configured scripts directory and,
// when that directory has no outcomes script, in the install's own scripts
// directory under SPRINTBOT_HOME.
func outcomeResolver(acts *action.Actions, homeScripts string, log *logging.Logger) *outcome.Resolver {
	scoped := func(ctx context.Context, dir, sprintID string) ([]string, error) {
		if !acts.HasOutcomesScript(dir) {
			return nil, outcome.ErrUnsupported
		}
		return acts.FetchCustomerOutcomesIn(ctx, dir, sprintID)
	}
	var installed outcome.SprintFunc
	if homeScripts != "" {
		installed = func(ctx context.Context, sprintID string) ([]string, error) {
			return acts.FetchCustomerOutcomesIn(ctx, homeScripts, sprintID)
		}
	}
	return outcome.NewResolver(log,
		outcome.Scoped(acts.Dir(), scoped),
		outcome.SprintOnly(installed),
	)
}

func homeScriptsDir() string {
	if paths.Base == "" {
		return ""
	}
	return filepath.Join(paths.Base, "scripts")
}

// boardIDsPath resolves a relative board ids file against the scripts
// directory, where the Jira tooling keeps it.
func boardIDsPath(cfg config.Config) string {
	p := cfg.Directory.BoardIDsFile
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(cfg.Scripts.Dir, p)
}

// newRouter builds the request router. It fails when no LLM is configured.
func (c *core) newRouter(cfg config.Config, log *logging.Logger) (*agent.Router, error) {
	reg, err := llm.NewRegistryFromConfig(cfg.LLM, log)
	if err != nil {
		return nil, err
	}
	client, err := reg.Default()
	if err != nil {
		return nil, err
	}

	r := agent.NewRouter(
		agent.RouterConfig{DefaultMiroBoardID: cfg.Miro.DefaultBoardID},
		agent.NewClassifier(client, log),
		c.boards,
		c.actions,
		c.outcomes,
		agent.NewMemorySessionStore(cfg.Session.MaxMessages),
		log,
	)
	r.SetHooks(c.hooks)
	r.SetMetrics(c.metrics)
	return r, nil
}
