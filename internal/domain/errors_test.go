package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDomainErrorFormat(t *testing.T) {
	err := NewDomainError("Tool.Execute", ErrUnknownTool, "tool 'foo'")
	want := "Tool.Execute: tool 'foo': unknown tool"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorFormatNoDetail(t *testing.T) {
	err := NewDomainError("Agent.RunTurn", ErrTurnInFlight, "")
	want := "Agent.RunTurn: a turn is already in flight"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestDomainErrorUnwrap(t *testing.T) {
	err := NewDomainError("Sandbox.Resolve", ErrPathOutsideSandbox, "../etc/passwd")
	if !errors.Is(err, ErrPathOutsideSandbox) {
		t.Error("errors.Is should match ErrPathOutsideSandbox")
	}
}

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"direct sentinel", ErrGenerationFailure, CodeGenerationFailure},
		{"domain error", NewDomainError("Op", ErrCapabilityUnavailable, "code"), CodeCapabilityUnavailable},
		{"wrapped", fmt.Errorf("round 2: %w", ErrTurnCancelled), CodeTurnCancelled},
		{"gateway auth", fmt.Errorf("ws: %w", ErrGatewayAuthFailed), CodeGatewayAuth},
		{"unknown", fmt.Errorf("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeOf(tt.err))
		})
	}
}

func TestAllSentinelsHaveCodes(t *testing.T) {
	require.NotEmpty(t, errorCodeMap)
	for sentinel, code := range errorCodeMap {
		assert.NotEmpty(t, code, "sentinel %v has empty code", sentinel)
		assert.NotEqual(t, CodeUnknown, code, "sentinel %v maps to UNKNOWN", sentinel)
	}
}

func TestWrapOp(t *testing.T) {
	assert.Nil(t, WrapOp("anything", nil))

	inner := WrapOp("inner", ErrToolExecution)
	outer := WrapOp("outer", inner)
	assert.Equal(t, "outer: inner: tool execution failed", outer.Error())
	assert.True(t, errors.Is(outer, ErrToolExecution))
	assert.Equal(t, CodeToolExecution, ErrorCodeOf(outer))
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, IsRetryableError(ErrRateLimit))
	assert.True(t, IsRetryableError(WrapOp("x", ErrTimeout)))
	assert.False(t, IsRetryableError(ErrUnknownTool))
}
