// Command lumen is a local-first conversational agent: it routes each
// request to a specialist profile, injects matching skills, streams the
// model's answer and runs the tools it asks for.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"lumen-agent/internal/adapter/tui/theme"
	"lumen-agent/internal/adapter/tui/uxerror"
	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/config"
)

var version = "dev"

func main() {
	if err := buildRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, theme.TextError.Render(theme.SymbolError)+" "+uxerror.Humanize(err).Render())
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "lumen",
		Short:         "Local-first conversational agent",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Path to YAML configuration file")

	root.AddCommand(
		buildChatCmd(&configPath),
		buildServeCmd(&configPath),
		buildRouteCmd(&configPath),
		buildSkillsCmd(&configPath),
	)
	return root
}

// defaultConfigPath honours LUMEN_CONFIG, then ./lumen.yaml.
func defaultConfigPath() string {
	if p := os.Getenv("LUMEN_CONFIG"); p != "" {
		return p
	}
	return "lumen.yaml"
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrConfigLoad, path, err)
	}
	return cfg, nil
}
