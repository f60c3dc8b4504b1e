package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/soyeahso/sprintbot/internal/channel"
	"github.com/soyeahso/sprintbot/internal/channel/irc"
	"github.com/soyeahso/sprintbot/internal/channel/telegram"
	"github.com/soyeahso/sprintbot/internal/config"
	"github.com/soyeahso/sprintbot/internal/gateway"
	"github.com/soyeahso/sprintbot/internal/routing"
	"github.com/soyeahso/sprintbot/internal/scheduler"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the sprintbot gateway",
	}

	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the WebSocket gateway, chat channels and scheduled reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port != 0 {
				cfg.Gateway.Port = port
			}
			if bind != "" {
				cfg.Gateway.Bind = bind
			}
			if issues := config.Validate(&cfg); len(issues) > 0 {
				for _, issue := range issues {
					log.Error().Str("path", issue.Path).Msg(issue.Message)
				}
				return fmt.Errorf("config validation failed with %d issue(s)", len(issues))
			}

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				log.Warn().Err(err).Msg("raw config unavailable; config.get will find nothing")
				raw = map[string]any{}
			}

			c := newCore(cfg, log)
			router, err := c.newRouter(cfg, log)
			if err != nil {
				return err
			}

			channels := channel.NewRegistry(log)
			if cfg.Channels.IRC != nil {
				channels.Register(irc.New(*cfg.Channels.IRC, log))
			}
			if cfg.Channels.Telegram != nil {
				channels.Register(telegram.New(*cfg.Channels.Telegram, log))
			}

			sched := scheduler.New(router, channels, log)
			sched.SetHooks(c.hooks)
			for _, job := range cfg.Schedule.Jobs {
				if err := sched.Add(job); err != nil {
					return err
				}
			}

			srv := gateway.New(cfg.Gateway, log,
				gateway.WithChat(router),
				gateway.WithSessions(router.Sessions()),
				gateway.WithBoards(c.boards),
				gateway.WithChannels(channels),
				gateway.WithSchedule(sched),
				gateway.WithHooks(c.hooks),
				gateway.WithMetrics(c.metrics),
				gateway.WithConfigRaw(raw),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error { return srv.Start(gctx) })

			inbound := routing.NewRouter(channels, router, cfg.Session.Scope, log)
			if channels.Count() > 0 {
				inbound.Wire(gctx)
				channels.StartAll(gctx)
				log.Info().
					Strs("channels", channels.List()).
					Str("scope", cfg.Session.Scope).
					Msg("message routing active")
			}
			g.Go(func() error {
				<-gctx.Done()
				channels.StopAll(context.Background())
				channels.Wait()
				inbound.Wait()
				return nil
			})

			sched.Start(gctx)
			g.Go(func() error {
				<-gctx.Done()
				sched.Stop()
				return nil
			})

			return g.Wait()
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "override gateway port")
	cmd.Flags().StringVar(&bind, "bind", "", "override bind mode (loopback, lan)")

	return cmd
}
