package main

import (
	"errors"
	"log/slog"

	"github.com/teslashibe/go-voiceform/internal/config"
	"github.com/teslashibe/go-voiceform/pkg/agent"
	"github.com/teslashibe/go-voiceform/pkg/agent/barista"
	"github.com/teslashibe/go-voiceform/pkg/agent/wellness"
	"github.com/teslashibe/go-voiceform/pkg/journal"
	"github.com/teslashibe/go-voiceform/pkg/store"
	"github.com/teslashibe/go-voiceform/pkg/voice"
	"github.com/teslashibe/go-voiceform/pkg/worker"
)

const procAgent = "agent"

// components are the stores and the agent shared by every job of a process.
type components struct {
	def      agent.Definition
	orders   *store.OrderStore
	checkins *store.CheckInLog
	journal  *journal.Journal
}

// buildComponents selects the agent from cfg. The journal is only created
// for the wellness agent and only when OAuth credentials are configured.
func buildComponents(cfg config.Config, logger *slog.Logger) (*components, error) {
	c := &components{}
	switch cfg.Agent {
	case config.AgentWellness:
		c.checkins = store.NewCheckInLog(cfg.CheckInLogPath())
		if cfg.Journal.Enabled() {
			j, err := journal.New(journal.Config{
				ClientID:     cfg.Journal.ClientID,
				ClientSecret: cfg.Journal.ClientSecret,
				RedirectURL:  cfg.Journal.RedirectURL,
				DocumentID:   cfg.Journal.DocumentID,
				TokenPath:    cfg.Journal.TokenPath,
				Logger:       logger,
			})
			switch {
			case errors.Is(err, journal.ErrDisabled):
			case err != nil:
				return nil, err
			default:
				c.journal = j
				c.checkins.OnAppend(j.Mirror)
			}
		}
		c.def = wellness.Definition(wellness.Options{Log: c.checkins, Logger: logger})
	default:
		c.orders = store.NewOrderStore(cfg.OrdersPath())
		c.def = barista.Definition(barista.Options{Shop: cfg.ShopName, Orders: c.orders})
	}
	return c, nil
}

// prewarm stores the agent definition on the process.
func (c *components) prewarm(proc *worker.Process) error {
	if err := c.def.Validate(); err != nil {
		return err
	}
	proc.Set(procAgent, c.def)
	return nil
}

func definitionFromProcess(jc *worker.JobContext) (agent.Definition, error) {
	v, ok := jc.Proc.Get(procAgent)
	if !ok {
		return agent.Definition{}, errors.New("agent not prewarmed")
	}
	return v.(agent.Definition), nil
}

// voiceConfig maps the OpenAI section of cfg onto a runtime config.
func voiceConfig(cfg config.Config, provider voice.Provider) voice.Config {
	vc := voice.DefaultConfig().WithProvider(provider).WithDebug(cfg.Debug)
	vc.APIKey = cfg.OpenAI.APIKey
	vc.BaseURL = cfg.OpenAI.BaseURL
	if cfg.OpenAI.Model != "" {
		vc.Model = cfg.OpenAI.Model
	}
	if cfg.OpenAI.RealtimeURL != "" {
		vc.URL = cfg.OpenAI.RealtimeURL
	}
	if cfg.OpenAI.RealtimeModel != "" {
		vc.RealtimeModel = cfg.OpenAI.RealtimeModel
	}
	if cfg.OpenAI.Voice != "" {
		vc = vc.WithVoice(cfg.OpenAI.Voice)
	}
	return vc
}
