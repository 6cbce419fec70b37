package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"time"

	"lumen-agent/internal/domain"
)

// --- Mocks ---

// mockGenerator replays one fragment list per Generate call. When rounds
// run out it answers "done".
type mockGenerator struct {
	mu        sync.Mutex
	rounds    [][]string
	genErr    map[int]error // Generate error by call index
	streamErr map[int]error // Next error after the fragments, by call index
	block     bool          // Next blocks until ctx is done once fragments run out
	requests  []domain.GenerationRequest
	closed    int
}

func (m *mockGenerator) Name() string { return "mock" }

func (m *mockGenerator) Generate(_ context.Context, req domain.GenerationRequest) (domain.TokenStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	if err := m.genErr[idx]; err != nil {
		return nil, err
	}
	frags := []string{"done"}
	if idx < len(m.rounds) {
		frags = m.rounds[idx]
	}
	return &mockStream{gen: m, frags: frags, err: m.streamErr[idx], block: m.block}, nil
}

func (m *mockGenerator) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockGenerator) request(i int) domain.GenerationRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[i]
}

type mockStream struct {
	gen   *mockGenerator
	frags []string
	err   error
	block bool
	pos   int
}

func (s *mockStream) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos < len(s.frags) {
		s.pos++
		return s.frags[s.pos-1], nil
	}
	if s.err != nil {
		return "", s.err
	}
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return "", io.EOF
}

func (s *mockStream) Close() error {
	s.gen.mu.Lock()
	s.gen.closed++
	s.gen.mu.Unlock()
	return nil
}

// mockExecutor answers every call with "<tool> ok" unless configured.
type mockExecutor struct {
	mu      sync.Mutex
	calls   []domain.ToolCall
	results map[domain.ToolName]domain.ToolResult
	errs    map[domain.ToolName]error
	delay   map[domain.ToolName]time.Duration
	panics  map[domain.ToolName]bool
	release chan struct{} // when set, Execute waits for it
}

func (m *mockExecutor) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, len(domain.AllTools))
	for i, n := range domain.AllTools {
		out[i] = domain.ToolSchema{Name: n, Description: "test " + string(n), Parameters: json.RawMessage(`{"type":"object"}`)}
	}
	return out
}

func (m *mockExecutor) Execute(_ context.Context, call domain.ToolCall, _ domain.ToolContext) (domain.ToolResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call)
	d := m.delay[call.Tool]
	release := m.release
	m.mu.Unlock()

	if release != nil {
		<-release
	}
	if d > 0 {
		time.Sleep(d)
	}
	if m.panics[call.Tool] {
		panic("exploded")
	}
	if err := m.errs[call.Tool]; err != nil {
		return domain.ToolResult{}, err
	}
	if r, ok := m.results[call.Tool]; ok {
		return r, nil
	}
	return domain.ToolResult{Success: true, Output: string(call.Tool) + " ok"}, nil
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// mockRouter returns a fixed classification and records outcomes.
type mockRouter struct {
	mu       sync.Mutex
	cls      domain.Classification
	err      error
	outcomes []string
	recent   [][]string
}

func (r *mockRouter) Classify(_ context.Context, query string, recent []string) (domain.Classification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recent = append(r.recent, recent)
	if r.err != nil {
		return domain.Classification{}, r.err
	}
	c := r.cls
	c.Query = query
	return c, nil
}

func (r *mockRouter) RecordOutcome(agentID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	verdict := "fail"
	if success {
		verdict = "ok"
	}
	r.outcomes = append(r.outcomes, agentID+":"+verdict)
}

func (r *mockRouter) AmendOutcome(agentID string, success bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	verdict := "fail"
	if success {
		verdict = "ok"
	}
	r.outcomes = append(r.outcomes, agentID+":amend-"+verdict)
}

func (r *mockRouter) outcomeList() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

// mockSkills fills instructions and records usage.
type mockSkills struct {
	mu    sync.Mutex
	usage []string
}

func (s *mockSkills) Attach(_ context.Context, matches []domain.SkillMatch) []domain.SkillMatch {
	out := make([]domain.SkillMatch, len(matches))
	for i, m := range matches {
		m.Instructions = "instructions for " + m.Name
		out[i] = m
	}
	return out
}

func (s *mockSkills) RecordUsage(name string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verdict := "fail"
	if success {
		verdict = "ok"
	}
	s.usage = append(s.usage, name+":"+verdict)
}

func (s *mockSkills) AmendUsage(name string, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verdict := "fail"
	if success {
		verdict = "ok"
	}
	s.usage = append(s.usage, name+":amend-"+verdict)
}

// recordingBus implements domain.EventBus by recording every event.
type recordingBus struct {
	mu     sync.Mutex
	events []domain.Event
}

func (b *recordingBus) Emit(e domain.Event)          { b.record(e) }
func (b *recordingBus) EmitImmediate(e domain.Event) { b.record(e) }
func (b *recordingBus) Subscribe(domain.EventType, domain.EventHandler) func() {
	return func() {}
}
func (b *recordingBus) SubscribeAll(domain.EventHandler) func() { return func() {} }
func (b *recordingBus) Snapshot() []domain.Event              { return b.all() }

func (b *recordingBus) record(e domain.Event) {
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

func (b *recordingBus) all() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.events...)
}

func (b *recordingBus) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range b.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// charCounter counts one token per rune.
type charCounter struct{}

func (charCounter) Count(s string) int { return len([]rune(s)) }

var errBackendDown = errors.New("backend down")

func toolBlock(tool, params string) string {
	return "```tool_call\n{\"tool\": \"" + tool + "\", \"parameters\": " + params + "}\n```"
}

func userMsg(content string) domain.Message {
	return domain.Message{Role: domain.RoleUser, Content: content}
}
