package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-voiceform/internal/config"
	"github.com/teslashibe/go-voiceform/internal/log"
	"github.com/teslashibe/go-voiceform/pkg/hub"
	"github.com/teslashibe/go-voiceform/pkg/realtime"
	"github.com/teslashibe/go-voiceform/pkg/room"
	"github.com/teslashibe/go-voiceform/pkg/voice"
	"github.com/teslashibe/go-voiceform/pkg/web"
	"github.com/teslashibe/go-voiceform/pkg/worker"
)

type serveOptions struct {
	addr      string
	staticDir string
	ice       []string
}

func (o *serveOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.addr, "addr", "", "Listen address (default "+config.DefaultAddr+")")
	cmd.Flags().StringVar(&o.staticDir, "static", "web", "Directory served at / when present")
	cmd.Flags().StringSliceVar(&o.ice, "ice", nil, "STUN/TURN server URLs for WebRTC participants")
}

func newStartCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the agent worker and the web server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := setup(true)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, opts)
		},
	}
	opts.register(cmd)
	return cmd
}

func newDevCommand() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "dev",
		Short: "Like start, with debug logging and runtime debug output",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logLevel == "" {
				logLevel = "debug"
			}
			cfg, err := setup(true)
			if err != nil {
				return err
			}
			cfg.Debug = true
			return serve(cmd.Context(), cfg, opts)
		},
	}
	opts.register(cmd)
	return cmd
}

// serve runs rooms, the dispatcher, the worker, the event hub and the web
// server until SIGINT or SIGTERM.
func serve(parent context.Context, cfg config.Config, opts *serveOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Init(cfg.LogLevel)
	logger := log.L()
	if opts.addr != "" {
		cfg.Addr = opts.addr
	}

	comps, err := buildComponents(cfg, logger)
	if err != nil {
		return err
	}

	var roomOpts []room.Option
	if len(opts.ice) > 0 {
		roomOpts = append(roomOpts, room.WithICEServers(opts.ice...))
	}
	rooms := room.NewManager(logger, roomOpts...)
	defer rooms.Close()
	dispatcher := worker.NewDispatcher(rooms)

	events := hub.New(logger, hub.DefaultHistory)
	sessions := worker.NewSessions()

	w, err := worker.New(worker.Options{
		Agent:   comps.def.Name,
		Prewarm: comps.prewarm,
		Entrypoint: worker.SessionEntrypoint(worker.SessionConfig{
			Definition: definitionFromProcess,
			Runtime:    realtime.NewRuntime,
			Voice:      voiceConfig(cfg, voice.ProviderRealtime),
			Hub:        events,
			Sessions:   sessions,
		}),
	}, logger)
	if err != nil {
		return err
	}
	if err := w.Prewarm(); err != nil {
		return err
	}

	srv := web.NewServer(cfg.Addr, web.Deps{
		Agent:     comps.def,
		Rooms:     rooms,
		Hub:       events,
		Worker:    w,
		Sessions:  sessions,
		Orders:    comps.orders,
		CheckIns:  comps.checkins,
		Journal:   comps.journal,
		StaticDir: opts.staticDir,
		Logger:    logger,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		events.Run(ctx)
	}()
	if comps.journal != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			comps.journal.Run(ctx)
		}()
	}

	workerErr := make(chan error, 1)
	go func() { workerErr <- w.Run(ctx, dispatcher.Jobs()) }()

	logger.Info("voiceform started", "agent", comps.def.Name, "addr", cfg.Addr, "journal", comps.journal != nil)
	err = srv.Run(ctx)
	stop()

	if werr := <-workerErr; werr != nil && !errors.Is(werr, context.Canceled) {
		err = errors.Join(err, werr)
	}
	wg.Wait()
	logger.Info("voiceform stopped")
	return err
}
