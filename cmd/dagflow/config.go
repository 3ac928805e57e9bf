package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/drblury/dagflow/internal/runtime/config"
)

// loadConfig reads the YAML file named by --config over the defaults and
// applies flag overrides. The result is validated.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Defaults()

	if path := flagValue(cmd, "config"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}
	if level := flagValue(cmd, "log-level"); level != "" {
		cfg.LogLevel = level
	}

	if err := config.ValidateConfig(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// flagValue looks name up among the local and inherited persistent flags.
func flagValue(cmd *cobra.Command, name string) string {
	if f := cmd.Flag(name); f != nil {
		return f.Value.String()
	}
	return ""
}
