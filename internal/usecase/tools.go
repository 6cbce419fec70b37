package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/tracer"
)

// runTools executes one round of calls. Calls run on a context detached
// from cancellation: when the turn is stopped the call in flight finishes
// in the background without emitting events, queued sequential calls are
// skipped and the context error is returned.
func (a *Agent) runTools(ctx context.Context, t *turn, iteration int, calls []domain.ToolCall) ([]domain.ToolRun, error) {
	status := domain.StatusCoding
	for _, c := range calls {
		if !c.Tool.IsCodeTool() {
			status = domain.StatusCalculating
			break
		}
	}
	a.setStatus(t, status)

	toolCtx := context.WithoutCancel(ctx)
	done := make(chan []domain.ToolRun, 1)
	go func() { done <- a.executeTools(toolCtx, t, iteration, calls) }()

	select {
	case runs := <-done:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return runs, nil
	case <-ctx.Done():
		t.detach()
		a.logger.Info("turn stopped during tool execution, results will be discarded",
			"turn_id", t.id, "tool_calls", len(calls))
		return nil, ctx.Err()
	}
}

// executeTools runs calls in parallel or in order. Results are collected in
// an indexed slice so they keep the original call order.
func (a *Agent) executeTools(ctx context.Context, t *turn, iteration int, calls []domain.ToolCall) []domain.ToolRun {
	runs := make([]domain.ToolRun, len(calls))
	if !a.deps.ParallelTools || len(calls) == 1 {
		for i, c := range calls {
			if t.isDetached() {
				break
			}
			runs[i] = a.executeTool(ctx, t, iteration, c)
		}
		return runs
	}

	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Go(func() {
			runs[i] = a.executeTool(ctx, t, iteration, c)
		})
	}
	wg.Wait()
	return runs
}

// executeTool runs a single call. Errors and panics become failed results.
func (a *Agent) executeTool(ctx context.Context, t *turn, iteration int, call domain.ToolCall) domain.ToolRun {
	ctx, span := tracer.StartSpan(ctx, "agent.execute_tool",
		trace.WithAttributes(
			tracer.StringAttr("tool.name", string(call.Tool)),
			tracer.IntAttr("iteration", iteration),
		),
	)
	defer span.End()

	stepID := ulid.Make().String()
	t.publishStep(a.deps.Bus, true, domain.EventToolStarted, stepID, domain.ToolStartedPayload{
		Tool:       call.Tool,
		Parameters: call.Parameters,
	})

	start := time.Now()
	result, err := a.safeExecute(ctx, call, t.req.Tools)
	d := time.Since(start)
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", domain.ErrToolExecution, call.Tool, err)
		result = domain.ToolResult{Success: false, Output: err.Error()}
	}

	if result.Success {
		t.completed.Add(1)
		tracer.SetOK(span)
	} else {
		t.failed.Add(1)
		if err == nil {
			err = fmt.Errorf("%w: %s", domain.ErrToolExecution, result.Output)
		}
		tracer.RecordError(span, err)
		a.logger.Debug("tool call failed", "turn_id", t.id, "tool", call.Tool, "error", err)
	}
	a.deps.Metrics.ToolExecuted(string(call.Tool), result.Success, d)

	t.publishStep(a.deps.Bus, true, domain.EventToolCompleted, stepID, domain.ToolCompletedPayload{
		Tool:       call.Tool,
		Success:    result.Success,
		Output:     result.Output,
		DurationMs: d.Milliseconds(),
	})
	if result.Artifact != nil {
		t.publishStep(a.deps.Bus, false, domain.EventArtifactCreated, stepID, domain.ArtifactPayload{Artifact: *result.Artifact})
	}

	return domain.ToolRun{Call: call, Result: result, Duration: d}
}

// publishStep emits a tool step event unless the turn has been detached.
func (t *turn) publishStep(bus domain.EventBus, immediate bool, eventType domain.EventType, stepID string, payload any) {
	t.stepMu.RLock()
	defer t.stepMu.RUnlock()
	if t.detached {
		return
	}
	publishEvent(bus, immediate, eventType, t.id, stepID, payload)
}

func (t *turn) detach() {
	t.stepMu.Lock()
	t.detached = true
	t.stepMu.Unlock()
}

func (t *turn) isDetached() bool {
	t.stepMu.RLock()
	defer t.stepMu.RUnlock()
	return t.detached
}

func (a *Agent) safeExecute(ctx context.Context, call domain.ToolCall, tc domain.ToolContext) (res domain.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool panicked: %v", r)
		}
	}()
	if a.deps.Tools == nil {
		return domain.ToolResult{}, domain.ErrCapabilityUnavailable
	}
	return a.deps.Tools.Execute(ctx, call, tc)
}
