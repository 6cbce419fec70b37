package multiagent

import (
	"log/slog"
	"strings"

	"lumen-agent/internal/infra/logger"
)

// PrefixRouter parses an @agent-name prefix from a query.
type PrefixRouter struct {
	known  map[string]string // lowercase name -> agent id
	logger *slog.Logger
}

// NewPrefixRouter creates a router for the given names. agentNames maps
// lowercase names to agent ids.
func NewPrefixRouter(agentNames map[string]string, l *slog.Logger) *PrefixRouter {
	return &PrefixRouter{known: agentNames, logger: logger.Component(l, "prefix_router")}
}

// Match returns the agent id named by a leading @prefix and the query with
// the prefix removed. ok is false when there is no prefix or the name is
// unknown; rest is then the unchanged query.
func (r *PrefixRouter) Match(query string) (agentID, rest string, ok bool) {
	content := strings.TrimSpace(query)
	if !strings.HasPrefix(content, "@") {
		return "", query, false
	}

	name, remainder, _ := strings.Cut(content[1:], " ")
	name = strings.ToLower(strings.TrimRight(name, ":,"))

	if id, found := r.known[name]; found {
		r.logger.Debug("prefix matched agent", "prefix", name, "agent_id", id)
		return id, strings.TrimSpace(remainder), true
	}
	r.logger.Debug("unknown prefix, scoring normally", "prefix", name)
	return "", query, false
}
