package cli

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/soyeahso/sprintbot/internal/action"
	"github.com/soyeahso/sprintbot/internal/directory"
	"github.com/soyeahso/sprintbot/internal/report"
	"github.com/spf13/cobra"
)

// NoBoardsHint is printed by fetch when the team matches nothing.
const NoBoardsHint = "No matching boards. Try: sprintbot list-teams"

// MiroBoardURL returns the browser URL of a Miro board.
func MiroBoardURL(boardID string) string {
	return "https://miro.com/app/board/" + url.PathEscape(boardID) + "/"
}

func newListTeamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list-teams",
		Short: "List the teams and board ids from the board ids file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := newCore(cfg, log).boards()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if d.Len() == 0 {
				fmt.Fprintf(out, "No teams found in %s\n", boardIDsPath(cfg))
				return nil
			}
			for _, b := range d.Boards() {
				fmt.Fprintf(out, "%s: %d\n", b.Team, b.BoardID)
			}
			return nil
		},
	}
}

func newFetchCmd() *cobra.Command {
	var (
		team   string
		filter string
		raw    bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Fetch sprint goals and outcomes without the LLM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c := newCore(cfg, log)

			var res action.Result
			if directory.IsAll(team) {
				res = c.actions.FetchAllSprintDetails(ctx)
			} else {
				d, err := c.boards()
				if err != nil {
					return err
				}
				ids := d.Resolve(directory.NormalizeQuery(team))
				if len(ids) == 0 {
					return &ExitError{Code: 2, Err: errors.New(NoBoardsHint)}
				}
				res = c.actions.FetchSprintDetails(ctx, ids)
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			summary := report.Summarize(ctx, res.Stdout, report.ParseDisplayFilter(filter), c.outcomes)
			if err := printReply(cmd.OutOrStdout(), summary, raw); err != nil {
				return err
			}
			return actionError("fetch", res, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "team name or board id (default all teams)")
	cmd.Flags().StringVar(&filter, "filter", string(report.FilterAll), "all, goals_only or outcomes_only")
	cmd.Flags().BoolVar(&raw, "raw", false, "print plain text even on a terminal")
	return cmd
}

func newPushCmd() *cobra.Command {
	var team string
	cmd := &cobra.Command{
		Use:   "push <miro-board-id>",
		Short: "Push sprint goals to a Miro board without the LLM",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			boardID := cfg.Miro.DefaultBoardID
			if len(args) == 1 {
				boardID = strings.TrimSpace(args[0])
			}
			if boardID == "" {
				return errors.New("missing Miro board id: pass it or set MIRO_BOARD_ID")
			}
			teamFilter := ""
			if !directory.IsAll(team) {
				teamFilter = strings.TrimSpace(team)
			}

			res := newCore(cfg, log).actions.PushGoals(cmd.Context(), boardID, teamFilter)
			out := cmd.OutOrStdout()
			if s := strings.TrimSpace(res.Stdout); s != "" {
				fmt.Fprintln(out, s)
			}
			if err := actionError("push", res, cmd.ErrOrStderr()); err != nil {
				return err
			}
			fmt.Fprintf(out, "Board: %s\n", MiroBoardURL(boardID))
			return nil
		},
	}
	cmd.Flags().StringVar(&team, "team", "", "only push this team (default all teams)")
	return cmd
}

// actionError writes the script's stderr and reports a failed run.
func actionError(name string, res action.Result, stderr io.Writer) error {
	if s := strings.TrimSpace(report.StripANSI(res.Stderr)); s != "" {
		fmt.Fprintln(stderr, s)
	}
	if res.OK {
		return nil
	}
	return fmt.Errorf("%s script failed with exit code %d", name, res.ExitCode)
}
