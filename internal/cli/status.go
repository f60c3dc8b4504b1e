package cli

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/gateway"
	"github.com/soyeahso/sprintbot/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var (
		url     string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration and, when reachable, the running gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			printLocalStatus(out)

			if url == "" {
				url = gatewayURL(cfg.Gateway)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			st, err := remoteStatus(ctx, url, cfg.Gateway.Auth)
			if err != nil {
				fmt.Fprintf(out, "\nGateway: not reachable at %s (%v)\n", url, err)
				return nil
			}
			printRemoteStatus(out, url, st)
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "url", "", "gateway WebSocket URL (default from gateway.port)")
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "gateway connect timeout")
	return cmd
}

// gatewayURL is the loopback WebSocket URL of the configured gateway.
func gatewayURL(gw config.GatewayConfig) string {
	return "ws://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(gw.Port)) + "/ws"
}

func remoteStatus(ctx context.Context, url string, auth config.GatewayAuth) (gateway.StatusResponse, error) {
	resolved := gateway.ResolveAuth(auth)
	r, err := gateway.Dial(ctx, url,
		gateway.ClientInfo{ID: "sprintbot-cli", DisplayName: "sprintbot status", Version: version.Version},
		&gateway.ConnectAuth{Token: resolved.Token, Password: resolved.Password},
	)
	if err != nil {
		return gateway.StatusResponse{}, err
	}
	defer r.Close()

	var st gateway.StatusResponse
	err = r.Call(ctx, "status", nil, &st)
	return st, err
}

func printLocalStatus(w io.Writer) {
	fmt.Fprintln(w, version.Info())
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Config:    %s\n", paths.Config)
	fmt.Fprintf(w, "Scripts:   %s (shell %s)\n", cfg.Scripts.Dir, cfg.Scripts.Shell)
	fmt.Fprintf(w, "Boards:    %s\n", boardIDsPath(cfg))
	fmt.Fprintf(w, "LLM:       provider=%s model=%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	fmt.Fprintf(w, "Gateway:   port=%d bind=%s auth=%s\n", cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode)
	fmt.Fprintf(w, "Session:   scope=%s maxMessages=%d\n", cfg.Session.Scope, cfg.Session.MaxMessages)

	if irc := cfg.Channels.IRC; irc != nil {
		fmt.Fprintf(w, "IRC:       server=%s nick=%s channels=%s tls=%v\n",
			irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
	} else {
		fmt.Fprintln(w, "IRC:       (not configured)")
	}
	if tg := cfg.Channels.Telegram; tg != nil {
		fmt.Fprintf(w, "Telegram:  allowedChats=%d\n", len(tg.AllowedChats))
	} else {
		fmt.Fprintln(w, "Telegram:  (not configured)")
	}
	for _, job := range cfg.Schedule.Jobs {
		fmt.Fprintf(w, "Job:       %s %q -> %s/%s\n", job.Name, job.Cron, job.Channel, job.ChatID)
	}

	if issues := config.Validate(&cfg); len(issues) > 0 {
		fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
		for _, issue := range issues {
			fmt.Fprintf(w, "  - %s\n", issue)
		}
	}
}

func printRemoteStatus(w io.Writer, url string, st gateway.StatusResponse) {
	fmt.Fprintf(w, "\nGateway:   running at %s\n", url)
	fmt.Fprintf(w, "  version  %s (commit %s)\n", st.Build.Version, st.Build.Commit)
	fmt.Fprintf(w, "  uptime   %s\n", (time.Duration(st.UptimeSeconds) * time.Second).String())
	fmt.Fprintf(w, "  clients  %d\n", st.Clients)
	fmt.Fprintf(w, "  sessions %d\n", st.Sessions)
	for _, ch := range st.Channels {
		state := "stopped"
		switch {
		case ch.Connected:
			state = "connected"
		case ch.Running:
			state = "running"
		}
		line := fmt.Sprintf("  channel  %s %s", ch.ChannelID, state)
		if ch.LastError != "" {
			line += " (" + ch.LastError + ")"
		}
		fmt.Fprintln(w, line)
	}
}
