// Package uxerror translates raw errors into user-facing messages with
// recovery hints for the interactive CLI.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"lumen-agent/internal/adapter/tui/theme"
	"lumen-agent/internal/domain"
)

// FriendlyError is a user-facing error with suggestions for recovery.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for terminal output.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n  ")
		sb.WriteString(fe.Message)
	}
	if len(fe.Hints) > 0 {
		sb.WriteString("\n  Suggestions:")
		for _, h := range fe.Hints {
			fmt.Fprintf(&sb, "\n    %s %s", theme.SymbolBullet, h)
		}
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

var patterns = []errorPattern{
	// Domain sentinels first so errors.Is sees through wrapping.
	{
		match: is(domain.ErrTurnInFlight),
		produce: constantError("Still Working", "The previous request has not finished yet.",
			[]string{"Wait for the answer", "Press Ctrl-C to stop the running request"}),
	},
	{
		match:   is(domain.ErrTurnCancelled),
		produce: constantError("Stopped", "The request was cancelled before it finished.", nil),
	},
	{
		match: is(domain.ErrCircuitOpen),
		produce: constantError("Model Unavailable", "Recent generation attempts failed, so requests are paused briefly.",
			[]string{"Check that the model server is running", "Retry in a few seconds"}),
	},
	{
		match: is(domain.ErrGenerationFailure),
		produce: constantError("Generation Failed", "The language model did not produce a response.",
			[]string{"Check llm.base_url and llm.model in config", "Verify the model is pulled on the local server"}),
	},
	{
		match: is(domain.ErrSkillRegistryUnavailable),
		produce: constantError("Skills Unavailable", "The skill directory could not be read.",
			[]string{"Check skills.dir in config", "Disable skills with skills.enabled: false"}),
	},
	{
		match: is(domain.ErrEmbeddingFailed),
		produce: constantError("Embedding Failed", "Similarity matching could not reach the embedding service.",
			[]string{"Check skills.similarity.base_url", "Disable skills.similarity.enabled"}),
	},
	{
		match: is(domain.ErrPathOutsideSandbox),
		produce: constantError("Sandbox Violation", "A tool tried to write outside the sandbox directory.",
			[]string{"Check tools.sandbox_dir in config"}),
	},
	{
		match: is(domain.ErrConfigLoad),
		produce: constantError("Invalid Configuration", "The configuration file could not be loaded.",
			[]string{"Check the YAML syntax", "Run with --config pointing at a valid file"}),
	},
	{
		match: is(domain.ErrStatsStore),
		produce: constantError("Stats Store Error", "Learned scores could not be read or written.",
			[]string{"Check store.path is writable", "Disable persistence with store.enabled: false"}),
	},

	// External failures only surface as text.
	{
		match: containsAny("connection refused", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the model server.",
			[]string{"Start the local model server", "Verify llm.base_url in config"}),
	},
	{
		match: containsAny("deadline exceeded", "timeout"),
		produce: constantError("Request Timed Out", "The request took too long to complete.",
			[]string{"Try a shorter prompt", "Increase agent.turn_timeout or llm.stream_timeout"}),
	},
	{
		match: containsAny("401", "unauthorized", "invalid api key"),
		produce: constantError("Authentication Failed", "The API key was rejected.",
			[]string{"Set LUMEN_LLM_API_KEY", "Verify the key has not expired"}),
	},
	{
		match: containsAny("429", "rate limit", "too many requests"),
		produce: constantError("Rate Limited", "Too many requests were sent.",
			[]string{"Wait a moment before retrying"}),
	},
}

// Humanize converts a raw error into a FriendlyError with recovery hints.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with LUMEN_LOGGER_LEVEL=debug for more details"},
		Raw:     err.Error(),
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// containsAny matches errors whose text contains any of substrs,
// case-insensitively.
func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, message string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: message, Hints: hints, Raw: err.Error()}
	}
}
