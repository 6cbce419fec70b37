package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/infra/lru"
	"lumen-agent/internal/infra/metrics"
	"lumen-agent/internal/infra/tracer"
	"lumen-agent/internal/usecase/streamfilter"
	"lumen-agent/internal/usecase/toolcall"
)

// Loop defaults.
const (
	DefaultMaxIterations   = 3
	DefaultFallbackMessage = "Sorry, I could not produce an answer right now. Please try again."

	turnMemorySize = 64
)

// SkillSource loads skill content for a turn and learns from outcomes.
type SkillSource interface {
	Attach(ctx context.Context, matches []domain.SkillMatch) []domain.SkillMatch
	RecordUsage(name string, success bool)
	AmendUsage(name string, success bool)
}

// AgentDeps holds injected dependencies for the agent.
type AgentDeps struct {
	Generator       domain.Generator
	Tools           domain.ToolExecutor
	Router          domain.Classifier // optional, nil = always DefaultProfile
	Skills          SkillSource       // optional
	Parser          *toolcall.Parser  // optional, nil = built from Tools.Schemas()
	ContextBuilder  *ContextBuilder   // optional, nil = default persona, no limits
	Hints           *IntentHints      // optional, nil = no hints
	Bus             domain.EventBus   // optional, nil = no events
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	DefaultProfile  domain.AgentProfile
	MaxIterations   int
	ParallelTools   bool
	Markers         []streamfilter.MarkerPair
	Options         domain.GenerateOptions
	FallbackMessage string
	TurnTimeout     time.Duration
}

// TurnRequest is the input of one turn. Callbacks run synchronously on the
// turn goroutine.
type TurnRequest struct {
	Messages []domain.Message
	Tools    domain.ToolContext
	// Options overrides the agent's generation options when set.
	Options *domain.GenerateOptions
	// Recent names the skills used by the conversation's latest turns,
	// newest last.
	Recent      []string
	OnText      func(fragment string)
	OnReasoning func(fragment string)
	OnStatus    func(status domain.Status)
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	TurnID     string            `json:"turn_id"`
	Text       string            `json:"text"`
	Reasoning  string            `json:"reasoning,omitempty"`
	Iterations int               `json:"iterations"`
	Status     domain.TurnStatus `json:"status"`
	Warning    string            `json:"warning,omitempty"`
	Agent      string            `json:"agent"`
	Skills     []string          `json:"skills,omitempty"`
	ToolRuns   []domain.ToolRun  `json:"tool_runs,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// turnRecord remembers what a finished turn used and the verdict already
// counted for it, so feedback replaces the verdict instead of adding one.
type turnRecord struct {
	agentID string
	skills  []string
	rated   bool
	success bool
}

// turn is the mutable state of one RunTurn call. status is only touched by
// the turn goroutine; the counters are shared with tool goroutines.
type turn struct {
	id        string
	req       TurnRequest
	res       *TurnResult
	status    domain.Status
	start     time.Time
	completed atomic.Int32
	failed    atomic.Int32

	// stepMu orders step events against detach. Once the turn has been
	// stopped, background tool calls publish nothing more.
	stepMu   sync.RWMutex
	detached bool
}

// Agent drives the generate -> parse -> execute loop. At most one turn is
// in flight at a time.
type Agent struct {
	deps   AgentDeps
	guard  TurnGuard
	logger *slog.Logger
	turns  *lru.Cache[string, turnRecord]

	feedbackMu sync.Mutex
}

// NewAgent creates an agent with the given dependencies.
func NewAgent(deps AgentDeps) *Agent {
	if deps.MaxIterations <= 0 {
		deps.MaxIterations = DefaultMaxIterations
	}
	if deps.FallbackMessage == "" {
		deps.FallbackMessage = DefaultFallbackMessage
	}
	if deps.ContextBuilder == nil {
		deps.ContextBuilder = NewContextBuilder("", 0)
	}
	if deps.DefaultProfile.ID == "" {
		deps.DefaultProfile = domain.AgentProfile{ID: domain.GeneralAgentID, Name: "General Assistant"}
	}
	if deps.Parser == nil {
		var schemas []domain.ToolSchema
		if deps.Tools != nil {
			schemas = deps.Tools.Schemas()
		}
		deps.Parser = toolcall.NewFromSchemas(schemas, toolcall.Options{Logger: deps.Logger})
	}
	return &Agent{
		deps:   deps,
		logger: logger.Component(deps.Logger, "agent"),
		turns:  lru.New[string, turnRecord](turnMemorySize),
	}
}

// Stop cancels the in-flight turn. Buffered tokens are discarded and the
// stream is closed; dispatched tools finish but their results are dropped.
// It reports whether a turn was running.
func (a *Agent) Stop() bool {
	stopped := a.guard.Stop()
	if stopped {
		a.logger.Info("turn stop requested")
	}
	return stopped
}

// Busy reports whether a turn is in flight.
func (a *Agent) Busy() bool { return a.guard.Active() != "" }

// RunTurn drives one user turn to completion. It returns ErrTurnInFlight
// immediately when another turn is running. Absorbed failures (tools,
// parsing, classification) never surface here; generation failures return
// the fallback text together with an error wrapping ErrGenerationFailure,
// and cancellation returns ErrTurnCancelled.
func (a *Agent) RunTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	turnID := ulid.Make().String()
	ctx, release, err := a.guard.Acquire(ctx, turnID)
	if err != nil {
		return nil, err
	}
	defer release()

	if a.deps.TurnTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.deps.TurnTimeout)
		defer cancel()
	}
	ctx = domain.ContextWithTurnID(ctx, turnID)
	ctx, span := tracer.StartSpan(ctx, "agent.run_turn",
		trace.WithAttributes(tracer.StringAttr("turn.id", turnID)),
	)

	t := &turn{id: turnID, req: req, start: time.Now(), res: &TurnResult{TurnID: turnID}}
	err = a.runTurn(ctx, t)
	t.res.Duration = time.Since(t.start)
	a.finish(t)

	span.SetAttributes(
		tracer.StringAttr("turn.status", string(t.res.Status)),
		tracer.IntAttr("turn.iterations", t.res.Iterations),
		tracer.StringAttr("agent.id", t.res.Agent),
	)
	tracer.Finish(span, err)
	return t.res, err
}

func (a *Agent) runTurn(ctx context.Context, t *turn) error {
	query := domain.LastUserContent(t.req.Messages)
	cls := a.classify(ctx, t, query)
	t.res.Agent = cls.Primary.ID

	publishEvent(a.deps.Bus, false, domain.EventAgentRouted, t.id, "", domain.AgentRoutedPayload{
		Agent:      cls.Primary.ID,
		Fallback:   cls.Fallback.ID,
		Confidence: cls.Confidence,
		Skills:     matchNames(cls.Skills),
		Explicit:   cls.Explicit,
	})
	publishEvent(a.deps.Bus, true, domain.EventPlanStarted, t.id, "", domain.PlanStartedPayload{
		Title:     profileTitle(cls.Primary),
		Goal:      query,
		StepCount: a.deps.MaxIterations,
		Agent:     cls.Primary.ID,
	})

	a.setStatus(t, domain.StatusPlanning)
	skills := cls.Skills
	if a.deps.Skills != nil && len(skills) > 0 {
		skills = a.deps.Skills.Attach(ctx, skills)
	}
	t.res.Skills = matchNames(skills)

	var hints []string
	if a.deps.Hints != nil {
		hints = a.deps.Hints.Match(query)
	}
	system := a.deps.ContextBuilder.System(cls.Primary, skills, hints, a.schemas())
	conv := a.deps.ContextBuilder.Build(system, t.req.Messages)

	opts := a.deps.Options
	if t.req.Options != nil {
		opts = *t.req.Options
	}

	for i := 1; i <= a.deps.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			return a.interrupted(t, err)
		}
		t.res.Iterations = i

		text, err := a.generateRound(ctx, t, conv, opts, i)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return a.interrupted(t, ctxErr)
			}
			return a.generationFailed(t, err)
		}
		t.res.Text = text

		parsed := a.deps.Parser.Parse(text)
		for _, s := range parsed.Skipped {
			a.logger.Debug("tool call block skipped", "turn_id", t.id, "iteration", i, "block", s.Block, "reason", s.Reason)
		}
		if len(parsed.Calls) == 0 {
			t.res.Status = domain.TurnCompleted
			return nil
		}

		runs, err := a.runTools(ctx, t, i, parsed.Calls)
		if err != nil {
			return a.interrupted(t, err)
		}
		t.res.ToolRuns = append(t.res.ToolRuns, runs...)

		now := time.Now()
		conv = append(conv,
			domain.Message{Role: domain.RoleAssistant, Content: text, Timestamp: now},
			domain.Message{Role: domain.RoleUser, Name: domain.ToolResultsName, Content: FormatToolResults(runs), Timestamp: now},
		)
		a.logger.Debug("tool round finished", "turn_id", t.id, "iteration", i, "tool_calls", len(runs))
	}

	t.res.Status = domain.TurnMaxIterations
	t.res.Warning = fmt.Sprintf("stopped after %d iterations without a final answer", a.deps.MaxIterations)
	a.logger.Warn("iteration bound reached", "turn_id", t.id, "max_iterations", a.deps.MaxIterations)
	return nil
}

// classify asks the router for a profile. Router failures fall back to the
// default profile.
func (a *Agent) classify(ctx context.Context, t *turn, query string) domain.Classification {
	a.setStatus(t, domain.StatusAnalyzing)
	fallback := domain.Classification{Primary: a.deps.DefaultProfile, Fallback: a.deps.DefaultProfile, Query: query}
	if a.deps.Router == nil {
		return fallback
	}
	cls, err := a.deps.Router.Classify(ctx, query, slices.Clone(t.req.Recent))
	if err != nil {
		if !errors.Is(err, domain.ErrClassificationFailure) {
			err = fmt.Errorf("%w: %w", domain.ErrClassificationFailure, err)
		}
		a.logger.Warn("classification failed, using default profile", "turn_id", t.id, "error", err)
		return fallback
	}
	return cls
}

// generateRound streams one generation through a fresh filter, forwarding
// visible fragments as they arrive. It returns the visible text.
func (a *Agent) generateRound(ctx context.Context, t *turn, conv []domain.Message, opts domain.GenerateOptions, iteration int) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.generate",
		trace.WithAttributes(
			tracer.IntAttr("iteration", iteration),
			tracer.StringAttr("backend", a.deps.Generator.Name()),
		),
	)
	defer span.End()

	stepID := ulid.Make().String()
	started := time.Now()
	a.setStatus(t, domain.StatusThinking)
	publishEvent(a.deps.Bus, false, domain.EventStepStarted, t.id, stepID, domain.StepPayload{
		Title:     "Generating response",
		Iteration: iteration,
	})

	fail := func(err error) (string, error) {
		t.failed.Add(1)
		tracer.RecordError(span, err)
		publishEvent(a.deps.Bus, false, domain.EventStepFailed, t.id, stepID, domain.StepPayload{
			Title:      "Generating response",
			Iteration:  iteration,
			DurationMs: time.Since(started).Milliseconds(),
			Error:      err.Error(),
		})
		return "", err
	}

	stream, err := a.deps.Generator.Generate(ctx, domain.NewGenerationRequest(conv, opts))
	if err != nil {
		return fail(err)
	}
	defer stream.Close()

	filter := streamfilter.New(a.deps.Markers...)
	var visible strings.Builder
	deliver := func(c streamfilter.Chunk) {
		if c.Reasoning != "" {
			if t.req.OnReasoning != nil {
				t.req.OnReasoning(c.Reasoning)
			}
			publishEvent(a.deps.Bus, false, domain.EventReasoningDelta, t.id, stepID, domain.DeltaPayload{Content: c.Reasoning, Iteration: iteration})
		}
		if c.Visible == "" {
			return
		}
		a.setStatus(t, domain.StatusGenerating)
		visible.WriteString(c.Visible)
		if t.req.OnText != nil {
			t.req.OnText(c.Visible)
		}
		publishEvent(a.deps.Bus, false, domain.EventTextDelta, t.id, stepID, domain.DeltaPayload{Content: c.Visible, Iteration: iteration})
	}

	for {
		frag, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fail(err)
		}
		deliver(filter.Write(frag))
	}
	deliver(filter.End())
	t.res.Reasoning += filter.Reasoning()

	t.completed.Add(1)
	publishEvent(a.deps.Bus, false, domain.EventStepCompleted, t.id, stepID, domain.StepPayload{
		Title:      "Generating response",
		Iteration:  iteration,
		DurationMs: time.Since(started).Milliseconds(),
	})
	tracer.SetOK(span)
	return visible.String(), nil
}

// interrupted maps a context error to the turn outcome: a turn timeout is a
// generation failure, anything else is a cancellation.
func (a *Agent) interrupted(t *turn, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !a.guard.Stopped() {
		return a.generationFailed(t, fmt.Errorf("%w: %w", domain.ErrTimeout, err))
	}
	t.res.Status = domain.TurnCancelled
	a.logger.Info("turn cancelled", "turn_id", t.id, "iteration", t.res.Iterations)
	return domain.NewDomainError("Agent.RunTurn", domain.ErrTurnCancelled, t.id)
}

// generationFailed substitutes the fallback message for the answer.
func (a *Agent) generationFailed(t *turn, err error) error {
	backend := a.deps.Generator.Name()
	a.deps.Metrics.GenerationFailed(backend)
	a.logger.Error("generation failed", "turn_id", t.id, "backend", backend, "iteration", t.res.Iterations, "error", err)

	t.res.Status = domain.TurnFailed
	t.res.Text = a.deps.FallbackMessage
	if t.req.OnText != nil {
		t.req.OnText(a.deps.FallbackMessage)
	}
	publishEvent(a.deps.Bus, false, domain.EventTextDelta, t.id, "", domain.DeltaPayload{Content: a.deps.FallbackMessage, Iteration: t.res.Iterations})
	return domain.NewDomainError("Agent.RunTurn", fmt.Errorf("%w: %w", domain.ErrGenerationFailure, err), backend)
}

// finish reports the terminal state and records outcomes.
func (a *Agent) finish(t *turn) {
	a.setStatus(t, domain.StatusIdle)
	a.deps.Metrics.TurnFinished(string(t.res.Status), t.res.Iterations)
	publishEvent(a.deps.Bus, true, domain.EventPlanCompleted, t.id, "", domain.PlanCompletedPayload{
		Status:     t.res.Status,
		DurationMs: t.res.Duration.Milliseconds(),
		Completed:  int(t.completed.Load()),
		Failed:     int(t.failed.Load()),
		Iterations: t.res.Iterations,
		Warning:    t.res.Warning,
	})

	rec := turnRecord{agentID: t.res.Agent, skills: t.res.Skills}
	switch t.res.Status {
	case domain.TurnCompleted:
		rec.rated, rec.success = true, true
	case domain.TurnFailed:
		rec.rated, rec.success = true, false
	}
	if rec.rated {
		a.recordOutcome(rec, rec.success)
	}
	a.feedbackMu.Lock()
	a.turns.Put(t.id, rec)
	a.feedbackMu.Unlock()

	a.logger.Info("turn finished",
		"turn_id", t.id,
		"agent_id", t.res.Agent,
		"status", t.res.Status,
		"iterations", t.res.Iterations,
		"tool_calls", len(t.res.ToolRuns),
		"duration", t.res.Duration,
	)
}

// setStatus reports a phase transition once. Only the turn goroutine calls it.
func (a *Agent) setStatus(t *turn, s domain.Status) {
	if t.status == s {
		return
	}
	t.status = s
	if t.req.OnStatus != nil {
		t.req.OnStatus(s)
	}
	publishEvent(a.deps.Bus, true, domain.EventStatusChanged, t.id, "", domain.StatusPayload{Status: s})
}

// RecordFeedback applies a user verdict to the profile and skills used in
// a recent turn. The verdict replaces the one counted when the turn
// finished; repeating the same verdict changes nothing.
func (a *Agent) RecordFeedback(turnID string, success bool) error {
	a.feedbackMu.Lock()
	defer a.feedbackMu.Unlock()
	rec, ok := a.turns.Get(turnID)
	if !ok {
		return domain.NewDomainError("Agent.RecordFeedback", domain.ErrNotFound, turnID)
	}
	switch {
	case !rec.rated:
		a.recordOutcome(rec, success)
	case rec.success != success:
		a.amendOutcome(rec, success)
	default:
		return nil
	}
	rec.rated, rec.success = true, success
	a.turns.Put(turnID, rec)
	return nil
}

func (a *Agent) recordOutcome(rec turnRecord, success bool) {
	if a.deps.Router != nil && rec.agentID != "" {
		a.deps.Router.RecordOutcome(rec.agentID, success)
	}
	if a.deps.Skills != nil {
		for _, name := range rec.skills {
			a.deps.Skills.RecordUsage(name, success)
		}
	}
}

func (a *Agent) amendOutcome(rec turnRecord, success bool) {
	if a.deps.Router != nil && rec.agentID != "" {
		a.deps.Router.AmendOutcome(rec.agentID, success)
	}
	if a.deps.Skills != nil {
		for _, name := range rec.skills {
			a.deps.Skills.AmendUsage(name, success)
		}
	}
}

func (a *Agent) schemas() []domain.ToolSchema {
	if a.deps.Tools == nil {
		return nil
	}
	return a.deps.Tools.Schemas()
}

func matchNames(matches []domain.SkillMatch) []string {
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Name
	}
	return out
}
