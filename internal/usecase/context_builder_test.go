package usecase

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen-agent/internal/domain"
)

func TestContextBuilderSystemSections(t *testing.T) {
	cb := NewContextBuilder("", 0)
	profile := domain.AgentProfile{ID: "code-expert", Name: "Code Expert", SystemPrompt: "Write clean code."}
	skills := []domain.SkillMatch{
		{Name: "python-basics", Instructions: "  Use f-strings.  "},
		{Name: "unloaded", Reason: "capability \"python\""},
	}
	tools := []domain.ToolSchema{{
		Name:        domain.ToolExecutePython,
		Description: "Run Python code",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}}

	msg := cb.System(profile, skills, []string{"use the sandbox"}, tools)
	assert.Equal(t, domain.RoleSystem, msg.Role)
	assert.Contains(t, msg.Content, DefaultPersona)
	assert.Contains(t, msg.Content, "## Role: Code Expert\nWrite clean code.")
	assert.Contains(t, msg.Content, "### python-basics\nUse f-strings.")
	assert.Contains(t, msg.Content, "### unloaded\ncapability \"python\"")
	assert.Contains(t, msg.Content, "- execute_python: Run Python code\n  parameters: {\"type\":\"object\"}")
	assert.Contains(t, msg.Content, "```tool_call")
	assert.Contains(t, msg.Content, "## Hints\n- use the sandbox")
}

func TestContextBuilderSystemMinimal(t *testing.T) {
	cb := NewContextBuilder("Be brief.", 0)
	msg := cb.System(domain.AgentProfile{ID: "general"}, nil, nil, nil)
	assert.Equal(t, "Be brief.", msg.Content)
}

func TestContextBuilderTruncatesByGroups(t *testing.T) {
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "u1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Name: domain.ToolResultsName, Content: "r1"},
		{Role: domain.RoleUser, Content: "u2"},
	}
	sys := domain.Message{Role: domain.RoleSystem, Content: "s"}

	out := NewContextBuilder("", 3).Build(sys, history)
	require.Len(t, out, 4)
	assert.Equal(t, "s", out[0].Content)
	assert.Equal(t, "a1", out[1].Content)
	assert.Equal(t, "r1", out[2].Content)

	// A tool round is never split: with room for two messages only the
	// newest group survives.
	out = NewContextBuilder("", 2).Build(sys, history)
	require.Len(t, out, 2)
	assert.Equal(t, "u2", out[1].Content)

	out = NewContextBuilder("", 0).Build(sys, history)
	assert.Len(t, out, 5)
}

func TestContextGuardFitsBudget(t *testing.T) {
	g := NewContextGuard(30, charCounter{}, nil)
	sys := domain.Message{Role: domain.RoleSystem, Content: "sys"}
	history := []domain.Message{
		{Role: domain.RoleUser, Content: "aaaaaaaaaa"},
		{Role: domain.RoleAssistant, Content: "b"},
		{Role: domain.RoleUser, Name: domain.ToolResultsName, Content: "c"},
		{Role: domain.RoleUser, Content: "d"},
	}

	out := g.Fit(sys, history)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Content)
	assert.Equal(t, "d", out[2].Content)
	assert.Equal(t, 15, g.Count(out))
}

func TestContextGuardKeepsNewestGroup(t *testing.T) {
	g := NewContextGuard(1, charCounter{}, nil)
	out := g.Fit(domain.Message{Content: "long system prompt"}, []domain.Message{
		{Role: domain.RoleUser, Content: "old"},
		{Role: domain.RoleUser, Content: "newest question"},
	})
	require.Len(t, out, 1)
	assert.Equal(t, "newest question", out[0].Content)
}

func TestContextGuardDefaultBudget(t *testing.T) {
	assert.Equal(t, DefaultContextTokens, NewContextGuard(0, charCounter{}, nil).MaxTokens())
}

func TestContextBuilderAppliesGuard(t *testing.T) {
	cb := NewContextBuilder("p", 0)
	cb.SetGuard(NewContextGuard(12, charCounter{}, nil))
	out := cb.Build(domain.Message{Content: "s"}, []domain.Message{
		{Role: domain.RoleUser, Content: "first"},
		{Role: domain.RoleUser, Content: "x"},
	})
	require.Len(t, out, 2)
	assert.Equal(t, "x", out[1].Content)
}

func TestFormatToolResults(t *testing.T) {
	got := FormatToolResults([]domain.ToolRun{
		{Call: domain.ToolCall{Tool: domain.ToolCalculate}, Result: domain.ToolResult{Success: true, Output: "4"}},
		{Call: domain.ToolCall{Tool: domain.ToolAnalyzeImage}, Result: domain.ToolResult{Output: "capability unavailable"}},
	})
	assert.Equal(t, "Tool results:\n[1] calculate (ok):\n4\n[2] analyze_image (error):\ncapability unavailable", got)
}
