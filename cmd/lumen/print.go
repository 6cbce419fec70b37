package main

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"lumen-agent/internal/adapter/tui/theme"
	"lumen-agent/internal/domain"
	"lumen-agent/internal/usecase/multiagent"
)

func printSkillList(w io.Writer, list []domain.SkillMetadata) {
	if len(list) == 0 {
		fmt.Fprintln(w, theme.Dim.Render("no skills indexed"))
		return
	}
	for _, s := range list {
		mark := theme.TextSuccess.Render(theme.SymbolSuccess)
		if !s.Enabled {
			mark = theme.TextMuted.Render("-")
		}
		fmt.Fprintf(w, "%s %s  %s\n", mark, theme.Bold.Render(s.Name), theme.Dim.Render(s.Description))
		if len(s.Capabilities) > 0 {
			fmt.Fprintf(w, "    %s\n", theme.TextMuted.Render(strings.Join(s.Capabilities, ", ")))
		}
	}
}

func printSkill(w io.Writer, s domain.Skill, showContent bool) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n%s\n", theme.Bold.Render(s.Metadata.Name), s.Metadata.Description)
	fmt.Fprintf(&sb, "%s %v\n", theme.TextMuted.Render("enabled:"), s.Metadata.Enabled)
	if len(s.Metadata.Capabilities) > 0 {
		fmt.Fprintf(&sb, "%s %s\n", theme.TextMuted.Render("capabilities:"), strings.Join(s.Metadata.Capabilities, ", "))
	}
	if s.Source != "" {
		fmt.Fprintf(&sb, "%s %s", theme.TextMuted.Render("source:"), s.Source)
	}
	fmt.Fprintln(w, theme.Card.Render(strings.TrimRight(sb.String(), "\n")))
	if showContent {
		fmt.Fprintln(w, s.Instructions)
	}
}

func printMatches(w io.Writer, matches []domain.SkillMatch) {
	if len(matches) == 0 {
		fmt.Fprintln(w, theme.Dim.Render("no matching skills"))
		return
	}
	for _, m := range matches {
		fmt.Fprintf(w, "%s %-24s %s %.2f  %s\n",
			theme.SymbolBullet, m.Name, theme.TextInfo.Render(theme.Confidence(m.Confidence, 10)),
			m.Confidence, theme.Dim.Render(m.Reason))
	}
}

func printClassification(w io.Writer, c domain.Classification, ranked []multiagent.Ranked) {
	mode := "scored"
	if c.Explicit {
		mode = "explicit"
	}
	fmt.Fprintf(w, "%s %s %s (%s, confidence %.2f)\n",
		theme.TextAccent.Render(theme.SymbolArrowR), theme.Bold.Render(c.Primary.Name),
		theme.Dim.Render(c.Primary.ID), mode, c.Confidence)
	fmt.Fprintf(w, "  fallback: %s\n", c.Fallback.ID)
	if c.Query != "" {
		fmt.Fprintf(w, "  query:    %q\n", c.Query)
	}
	fmt.Fprintln(w)
	for _, r := range ranked {
		fmt.Fprintf(w, "  %-12s %6.2f\n", r.Profile.ID, r.Score)
	}
	if len(c.Skills) > 0 {
		fmt.Fprintln(w)
		printMatches(w, c.Skills)
	}
}

func printScores(w io.Writer, profiles []domain.AgentProfile, scores map[string]domain.AgentScore) {
	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	slices.Sort(ids)
	fmt.Fprintf(w, "%s\n", theme.Bold.Render(fmt.Sprintf("%-12s %8s %8s %8s", "agent", "success", "total", "boost")))
	for _, id := range ids {
		s := scores[id]
		fmt.Fprintf(w, "%-12s %8.2f %8d %8.2f\n", id, s.SuccessRate(), s.Total, s.DynamicBoost)
	}
}
