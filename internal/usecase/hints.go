package usecase

import (
	"regexp"
)

// IntentTrigger adds Hint to the system context when Pattern matches the
// user query.
type IntentTrigger struct {
	Pattern *regexp.Regexp
	Hint    string
}

// IntentHints is a prompt-engineering nudge. It never creates tool calls;
// the fenced tool_call protocol stays the only control path.
type IntentHints struct {
	triggers []IntentTrigger
}

// DefaultIntentTriggers covers the closed tool set in English and German.
func DefaultIntentTriggers() []IntentTrigger {
	return []IntentTrigger{
		{
			Pattern: regexp.MustCompile(`(?i)\d+(\.\d+)?\s*[-+*/^%]\s*\d+|\b(calculate|berechne|rechne|wie ?viel ist)\b`),
			Hint:    "The request involves arithmetic: use the calculate tool instead of computing in your head.",
		},
		{
			Pattern: regexp.MustCompile(`(?i)\b(create|write|save|erstelle|speichere|schreibe)\b.*\b(file|datei|document|dokument)\b`),
			Hint:    "The user wants a file: use the create_file tool with a name and the full content.",
		},
		{
			Pattern: regexp.MustCompile(`(?i)\b(run|execute|führe|ausführen)\b.*\b(code|script|skript|python|javascript|js)\b`),
			Hint:    "The user wants code executed: use execute_python or execute_javascript and report the output.",
		},
		{
			Pattern: regexp.MustCompile(`(?i)\b(image|picture|photo|bild|foto|screenshot)\b`),
			Hint:    "An image may be attached: use analyze_image to look at it before answering.",
		},
		{
			Pattern: regexp.MustCompile(`(?i)\b(my documents|meine dokumente|in the pdf|im pdf|uploaded|hochgeladen)\b`),
			Hint:    "The answer is likely in the user's documents: use search_documents first.",
		},
	}
}

// NewIntentHints creates hints from triggers; none means the defaults.
func NewIntentHints(triggers ...IntentTrigger) *IntentHints {
	if len(triggers) == 0 {
		triggers = DefaultIntentTriggers()
	}
	return &IntentHints{triggers: triggers}
}

// Match returns the hints whose triggers match query, in trigger order.
func (h *IntentHints) Match(query string) []string {
	if h == nil || query == "" {
		return nil
	}
	var out []string
	for _, t := range h.triggers {
		if t.Pattern.MatchString(query) {
			out = append(out, t.Hint)
		}
	}
	return out
}
