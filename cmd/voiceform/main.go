// Command voiceform runs the voice form-filling agents: a coffee order
// barista and a wellness check-in companion.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-voiceform/internal/config"
)

// Global flags shared by every command.
var (
	configPath string
	logLevel   string
	agentName  string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "voiceform",
		Short:        "Voice agents that fill in forms through conversation",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to the YAML config file (default: ./"+config.DefaultConfigFile+" if present)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&agentName, "agent", "", "Agent to run: barista or wellness")

	root.AddCommand(
		newStartCommand(),
		newDevCommand(),
		newConsoleCommand(),
		newOrdersCommand(),
		newCheckInsCommand(),
	)
	return root
}

// loadConfig reads .env files, the config file and the environment, then
// applies the global flags.
func loadConfig() (config.Config, error) {
	if _, err := config.LoadDotEnv("."); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if agentName != "" {
		cfg.Agent = agentName
	}
	return cfg, nil
}

// setup loads and validates the configuration.
func setup(needRuntime bool) (config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return cfg, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(needRuntime); err != nil {
		return cfg, err
	}
	return cfg, nil
}
