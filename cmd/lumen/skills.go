package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/usecase/skills"
)

// buildSkillsCmd creates the "skills" command group.
func buildSkillsCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "Inspect the skill library",
		Long: `Inspect the skills injected into prompts.

Skills are markdown files in skills.dir, either <name>.md or
<name>/SKILL.md, with YAML frontmatter naming the skill, its description
and capabilities.`,
	}
	cmd.AddCommand(
		buildSkillsListCmd(configPath),
		buildSkillsShowCmd(configPath),
		buildSkillsMatchCmd(configPath),
	)
	return cmd
}

func buildSkillsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List discovered skills",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSkills(cmd, *configPath, func(ctx context.Context, a *app) error {
				list, err := a.skills.List(ctx)
				if err != nil {
					return err
				}
				printSkillList(cmd.OutOrStdout(), list)
				return nil
			})
		},
	}
}

func buildSkillsShowCmd(configPath *string) *cobra.Command {
	var showContent bool
	cmd := &cobra.Command{
		Use:   "show [name]",
		Short: "Show skill details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSkills(cmd, *configPath, func(ctx context.Context, a *app) error {
				s, err := a.skills.Load(ctx, args[0])
				if err != nil {
					return err
				}
				printSkill(cmd.OutOrStdout(), s, showContent)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&showContent, "content", false, "Show the full instructions")
	return cmd
}

func buildSkillsMatchCmd(configPath *string) *cobra.Command {
	var agentID string
	cmd := &cobra.Command{
		Use:   "match [query]",
		Short: "Show the skills a query would pull in",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSkills(cmd, *configPath, func(ctx context.Context, a *app) error {
				q := skills.Query{Text: strings.Join(args, " "), AgentID: agentID}
				for _, p := range a.router.Profiles() {
					if p.ID == agentID {
						q.Preferred = p.PreferredSkills
					}
				}
				printMatches(cmd.OutOrStdout(), a.matcher.FindRelevantSkills(ctx, q))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&agentID, "agent", domain.GeneralAgentID, "Profile whose preferred skills apply")
	return cmd
}

func withSkills(cmd *cobra.Command, configPath string, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if !cfg.Skills.Enabled {
		return fmt.Errorf("skills: %w", domain.ErrDisabled)
	}
	a, err := buildApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}
