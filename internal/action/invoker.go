// Package action runs the external Jira and Miro shell scripts.
package action

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/soyeahso/sprintbot/internal/logging"
)

// Result is the captured outcome of one script run.
type Result struct {
	OK       bool
	Stdout   string
	Stderr   string
	ExitCode int
}

// Invoker runs a named script with positional arguments. Implementations
// block until the process exits and never retry.
type Invoker interface {
	Invoke(ctx context.Context, script string, args ...string) Result
}

// ScriptInvoker runs scripts from a directory through a shell.
type ScriptInvoker struct {
	Dir   string
	Shell string
	log   *logging.Logger
}

// NewScriptInvoker creates an invoker rooted at dir. An empty shell means bash.
func NewScriptInvoker(dir, shell string, log *logging.Logger) *ScriptInvoker {
	if shell == "" {
		shell = "bash"
	}
	return &ScriptInvoker{Dir: dir, Shell: shell, log: log.Sub("action")}
}

// Path returns the absolute location of a script.
func (s *ScriptInvoker) Path(script string) string {
	if filepath.IsAbs(script) {
		return script
	}
	p := filepath.Join(s.Dir, script)
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

// Invoke runs "<shell> <dir>/<script> args..." with the scripts directory as
// working directory. A process that cannot be started reports ExitCode -1
// with the launch error in Stderr.
func (s *ScriptInvoker) Invoke(ctx context.Context, script string, args ...string) Result {
	argv := append([]string{s.Path(script)}, args...)
	cmd := exec.CommandContext(ctx, s.Shell, argv...)
	cmd.Dir = s.Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	s.log.Debug().
		Str("script", script).
		Strs("args", args).
		Msg("running script")

	start := time.Now()
	err := cmd.Run()

	res := Result{
		OK:     err == nil,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.Stderr = strings.TrimSpace(res.Stderr + "\n" + fmt.Sprintf("%s: %v", script, err))
		}
	}

	ev := s.log.Info()
	if !res.OK {
		ev = s.log.Warn()
	}
	ev.Str("script", script).
		Int("exitCode", res.ExitCode).
		Int("stdoutBytes", len(res.Stdout)).
		Dur("duration", time.Since(start)).
		Msg("script finished")

	return res
}
