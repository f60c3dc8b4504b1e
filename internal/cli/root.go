package cli

import (
	"errors"
	"io"
	"os"

	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/logging"
	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// loaded by the root command before any subcommand runs
	paths config.Paths
	cfg   config.Config
	log   *logging.Logger
)

// annotationRawConfig marks commands that edit the config file directly and
// must work even when it does not parse.
const annotationRawConfig = "rawConfig"

// ExitError carries a process exit code other than 1.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }

func (e *ExitError) Unwrap() error { return e.Err }

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sprintbot",
		Short: "Sprintbot answers sprint questions from Jira and pushes goals to Miro",
		Long: "Sprintbot turns chat requests into sprint reports. It classifies each request with an LLM,\n" +
			"runs the Jira and Miro scripts and replies with a summary. It serves the CLI, a WebSocket\n" +
			"gateway, IRC, Telegram and scheduled reports.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			paths, err = config.ResolvePaths()
			if err != nil {
				return err
			}
			if cfgFile != "" {
				paths.Config = cfgFile
			}
			cfg = config.Defaults()
			if cmd.Annotations[annotationRawConfig] == "" {
				if cfg, err = config.Load(paths.Config); err != nil {
					return err
				}
			}
			if logLevel != "" {
				cfg.Logging.Level = logLevel
			}
			log = logging.NewStyled(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Style)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.sprintbot/config.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (trace, debug, info, warn, error, fatal, silent)")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newChatCmd())
	cmd.AddCommand(newListTeamsCmd())
	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newGatewayCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	return run(os.Args[1:], os.Stdout, os.Stderr)
}

func run(args []string, stdout, stderr io.Writer) error {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	err := cmd.Execute()
	if err != nil {
		cmd.PrintErrln("Error:", err)
	}
	return err
}
