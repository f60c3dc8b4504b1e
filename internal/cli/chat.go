package cli

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/soyeahso/sprintbot/internal/domain"
	"github.com/spf13/cobra"
)

func newChatCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "chat <request...>",
		Short: "Answer one request, e.g. sprintbot chat fetch sprint goals for Aqua",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			router, err := newCore(cfg, log).newRouter(cfg, log)
			if err != nil {
				return err
			}

			key := domain.SessionKey{ChannelID: "cli", ChatID: "local"}
			reply, err := router.Handle(ctx, key, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return printReply(cmd.OutOrStdout(), reply.Text, raw)
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print plain text even on a terminal")
	return cmd
}
