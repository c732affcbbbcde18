package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-voiceform/internal/log"
	"github.com/teslashibe/go-voiceform/pkg/openai"
	"github.com/teslashibe/go-voiceform/pkg/room"
	"github.com/teslashibe/go-voiceform/pkg/voice"
	"github.com/teslashibe/go-voiceform/pkg/worker"
)

// consoleRoom is the room a console session runs in.
const consoleRoom = "console"

func newConsoleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Talk to the agent by typing in the terminal",
		Long: "Runs one session of the configured agent over chat completions. " +
			"Type a line to speak, Ctrl-D to end the session. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logLevel == "" {
				logLevel = "warn"
			}
			cfg, err := setup(true)
			if err != nil {
				return err
			}
			logger := log.New(os.Stderr, cfg.LogLevel, false)
			slog.SetDefault(logger)

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			comps, err := buildComponents(cfg, logger)
			if err != nil {
				return err
			}
			if comps.journal != nil {
				go comps.journal.Run(ctx)
			}

			w, err := worker.New(worker.Options{
				Agent:   comps.def.Name,
				Prewarm: comps.prewarm,
				Entrypoint: worker.SessionEntrypoint(worker.SessionConfig{
					Definition: definitionFromProcess,
					Runtime: func(vc voice.Config) (voice.Runtime, error) {
						c, err := openai.New(vc, openai.WithLogger(logger))
						if err != nil {
							return nil, err
						}
						return c, nil
					},
					Voice: voiceConfig(cfg, voice.ProviderConsole),
				}),
			}, logger)
			if err != nil {
				return err
			}

			// One job that lasts until the runtime reaches EOF.
			rooms := room.NewManager(logger)
			defer rooms.Close()
			jobs := make(chan worker.Job, 1)
			jobs <- worker.NewJob(rooms.Room(consoleRoom), make(chan struct{}))
			close(jobs)

			return w.Run(ctx, jobs)
		},
	}
}
