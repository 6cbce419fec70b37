package usecase

import (
	"fmt"
	"strings"
	"time"

	"lumen-agent/internal/domain"
)

// DefaultPersona is the base system prompt when none is configured.
const DefaultPersona = "You are Lumen, a helpful assistant running on a local language model. " +
	"Think step by step, be accurate, and answer in the user's language."

// toolProtocol tells the model how to request a tool.
const toolProtocol = "To use a tool, reply with a fenced block tagged tool_call containing a JSON object " +
	"with the keys \"tool\" and \"parameters\", for example:\n" +
	"```tool_call\n{\"tool\": \"calculate\", \"parameters\": {\"expression\": \"17 * 23\"}}\n```\n" +
	"You may emit several blocks. Tool results arrive in the next user message named tool_results. " +
	"When no tool is needed, answer directly without any tool_call block."

// ContextBuilder assembles the message list for a generation round.
type ContextBuilder struct {
	persona     string
	maxMessages int
	guard       *ContextGuard
}

// NewContextBuilder creates a builder. maxMessages <= 0 disables the count
// limit.
func NewContextBuilder(persona string, maxMessages int) *ContextBuilder {
	if strings.TrimSpace(persona) == "" {
		persona = DefaultPersona
	}
	return &ContextBuilder{persona: persona, maxMessages: maxMessages}
}

// SetGuard enables token budgeting.
func (cb *ContextBuilder) SetGuard(g *ContextGuard) {
	cb.guard = g
}

// System renders the system message: persona, profile prompt, skills, hints
// and the tool catalog with the call protocol.
func (cb *ContextBuilder) System(profile domain.AgentProfile, skills []domain.SkillMatch, hints []string, tools []domain.ToolSchema) domain.Message {
	var sb strings.Builder
	sb.WriteString(cb.persona)

	if profile.SystemPrompt != "" {
		fmt.Fprintf(&sb, "\n\n## Role: %s\n%s", profileTitle(profile), profile.SystemPrompt)
	}

	if len(skills) > 0 {
		sb.WriteString("\n\n## Skills")
		for _, s := range skills {
			fmt.Fprintf(&sb, "\n### %s\n", s.Name)
			if s.Instructions != "" {
				sb.WriteString(strings.TrimSpace(s.Instructions))
			} else {
				sb.WriteString(s.Reason)
			}
		}
	}

	if len(tools) > 0 {
		sb.WriteString("\n\n## Tools\n")
		sb.WriteString(formatToolCatalog(tools))
		sb.WriteString("\n")
		sb.WriteString(toolProtocol)
	}

	if len(hints) > 0 {
		sb.WriteString("\n\n## Hints")
		for _, h := range hints {
			sb.WriteString("\n- ")
			sb.WriteString(h)
		}
	}

	return domain.Message{Role: domain.RoleSystem, Content: sb.String(), Timestamp: time.Now()}
}

// Build assembles system message plus the trimmed history.
func (cb *ContextBuilder) Build(system domain.Message, history []domain.Message) []domain.Message {
	hist := cb.truncateHistory(history)
	if cb.guard != nil {
		hist = cb.guard.Fit(system, hist)
	}
	out := make([]domain.Message, 0, 1+len(hist))
	out = append(out, system)
	return append(out, hist...)
}

func profileTitle(p domain.AgentProfile) string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}

func formatToolCatalog(tools []domain.ToolSchema) string {
	var sb strings.Builder
	for _, t := range tools {
		fmt.Fprintf(&sb, "- %s: %s\n", t.Name, t.Description)
		if len(t.Parameters) > 0 {
			fmt.Fprintf(&sb, "  parameters: %s\n", t.Parameters)
		}
	}
	return sb.String()
}

// FormatToolResults renders one round of tool runs as the content of the
// synthetic tool_results message.
func FormatToolResults(runs []domain.ToolRun) string {
	var sb strings.Builder
	sb.WriteString("Tool results:")
	for i, r := range runs {
		status := "ok"
		if !r.Result.Success {
			status = "error"
		}
		fmt.Fprintf(&sb, "\n[%d] %s (%s):\n%s", i+1, r.Call.Tool, status, r.Result.Output)
	}
	return sb.String()
}

func (cb *ContextBuilder) truncateHistory(history []domain.Message) []domain.Message {
	if cb.maxMessages <= 0 || len(history) <= cb.maxMessages {
		return history
	}

	// Keep groups from the end until the message budget is used up.
	groups := groupMessages(history)
	var kept [][]domain.Message
	total := 0
	for i := len(groups) - 1; i >= 0; i-- {
		groupLen := len(groups[i])
		if total+groupLen > cb.maxMessages && total > 0 {
			break
		}
		kept = append(kept, groups[i])
		total += groupLen
	}

	result := make([]domain.Message, 0, total)
	for i := len(kept) - 1; i >= 0; i-- {
		result = append(result, kept[i]...)
	}
	return result
}

// groupMessages partitions history into atomic groups. An assistant message
// directly followed by a tool_results message forms one group.
func groupMessages(msgs []domain.Message) [][]domain.Message {
	var groups [][]domain.Message
	for i := 0; i < len(msgs); i++ {
		msg := msgs[i]
		if msg.Role == domain.RoleAssistant && i+1 < len(msgs) && msgs[i+1].Name == domain.ToolResultsName {
			groups = append(groups, []domain.Message{msg, msgs[i+1]})
			i++
			continue
		}
		groups = append(groups, []domain.Message{msg})
	}
	return groups
}
