package multiagent

import "lumen-agent/internal/domain"

// DefaultProfiles returns the built-in specialist table. Capabilities mix
// English and German keywords.
func DefaultProfiles() []domain.AgentProfile {
	return []domain.AgentProfile{
		{
			ID:           domain.GeneralAgentID,
			Name:         "General Assistant",
			Description:  "Everyday questions and conversation",
			Capabilities: []string{"help", "hilfe", "explain", "erkläre", "question", "frage"},
			SystemPrompt: "You are a helpful general assistant. Answer clearly and concisely.",
			Priority:     1,
		},
		{
			ID:           "code-expert",
			Name:         "Code Expert",
			Description:  "Writing, reviewing and debugging code",
			Capabilities: []string{"code", "python", "javascript", "function", "funktion", "bug", "debug", "refactor", "script", "programm"},
			Pattern:      `(?i)\b(def|class|import|console\.log|stack ?trace|exception)\b`,
			SystemPrompt: "You are a senior software engineer. Prefer runnable code and explain trade-offs briefly.",
			Priority:     2,
			PreferredSkills: []string{
				"code-review",
				"python-best-practices",
			},
		},
		{
			ID:           "data-analyst",
			Name:         "Data Analyst",
			Description:  "Data exploration, statistics and charts",
			Capabilities: []string{"data", "daten", "csv", "excel", "pandas", "matplotlib", "statistik", "statistics", "diagramm", "chart", "analyse"},
			Pattern:      `(?i)\b(diagramm|chart|plot|graph)\w*`,
			SystemPrompt: "You are a data analyst. Inspect the data first, then compute and visualise results with Python.",
			Priority:     2,
			PreferredSkills: []string{
				"data-visualization",
				"pandas-analysis",
			},
		},
		{
			ID:           "researcher",
			Name:         "Researcher",
			Description:  "Finding and summarising information from documents",
			Capabilities: []string{"research", "recherche", "search", "suche", "document", "dokument", "source", "quelle", "summarize", "zusammenfassung"},
			Pattern:      `(?i)\b(find|finde|look up|nachschlagen)\b`,
			SystemPrompt: "You are a careful researcher. Ground every claim in the provided documents and cite sources.",
			Priority:     1.5,
			PreferredSkills: []string{
				"document-search",
			},
		},
		{
			ID:           "writer",
			Name:         "Writer",
			Description:  "Drafting and editing prose",
			Capabilities: []string{"write", "schreibe", "text", "email", "brief", "letter", "essay", "artikel", "article", "formuliere"},
			SystemPrompt: "You are a skilled writer. Match the requested tone and keep the structure clear.",
			Priority:     1.5,
			PreferredSkills: []string{
				"writing-style",
			},
		},
		{
			ID:           "math-expert",
			Name:         "Math Expert",
			Description:  "Calculations, equations and proofs",
			Capabilities: []string{"calculate", "berechne", "rechne", "math", "mathe", "equation", "gleichung", "formula", "formel", "prozent", "percent"},
			Pattern:      `\d+\s*[-+*/^%]\s*\d+`,
			SystemPrompt: "You are a mathematician. Show the steps and use the calculate tool for arithmetic.",
			Priority:     2,
		},
	}
}
