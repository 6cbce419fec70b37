package main

import (
	"strings"

	"github.com/spf13/cobra"
)

func buildRouteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "route [query]",
		Short: "Show which specialist a query would be routed to",
		Long: `Classify a query without generating an answer. Prints the chosen
profile, the fallback, every profile's score and the skills that would be
injected. Prefix the query with "@<agent>" to force a profile.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			c, err := a.router.Classify(cmd.Context(), query, nil)
			if err != nil {
				return err
			}
			printClassification(cmd.OutOrStdout(), c, a.router.Rank(c.Query))
			return nil
		},
	}
}
