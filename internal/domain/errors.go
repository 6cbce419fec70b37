package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrDisabled     = fmt.Errorf("disabled")
)

// Sentinel errors for the agent runtime.
var (
	ErrGenerationFailure        = fmt.Errorf("generation failed")
	ErrToolExecution            = fmt.Errorf("tool execution failed")
	ErrToolParse                = fmt.Errorf("tool call could not be parsed")
	ErrUnknownTool              = fmt.Errorf("unknown tool")
	ErrCapabilityUnavailable    = fmt.Errorf("capability unavailable")
	ErrClassificationFailure    = fmt.Errorf("classification failed")
	ErrSkillRegistryUnavailable = fmt.Errorf("skill registry unavailable")
	ErrTurnInFlight             = fmt.Errorf("a turn is already in flight")
	ErrTurnCancelled            = fmt.Errorf("turn cancelled")
	ErrConfigLoad               = fmt.Errorf("failed to load configuration")
	ErrPathOutsideSandbox       = fmt.Errorf("path is outside sandbox boundary")
	ErrEmbeddingFailed          = fmt.Errorf("embedding generation failed")
	ErrStatsStore               = fmt.Errorf("stats store operation failed")

	// Resilience errors.
	ErrRateLimit   = fmt.Errorf("rate limit exceeded")
	ErrCircuitOpen = fmt.Errorf("circuit breaker open")
	ErrAuthInvalid = fmt.Errorf("authentication failed")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Tool.Execute")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for monitoring and the gateway.
type ErrorCode string

const (
	CodeUnknown               ErrorCode = "UNKNOWN"
	CodeNotFound              ErrorCode = "NOT_FOUND"
	CodeInvalidInput          ErrorCode = "INVALID_INPUT"
	CodeTimeout               ErrorCode = "TIMEOUT"
	CodeDisabled              ErrorCode = "DISABLED"
	CodeGenerationFailure     ErrorCode = "GENERATION_FAILURE"
	CodeToolExecution         ErrorCode = "TOOL_EXECUTION"
	CodeToolParse             ErrorCode = "TOOL_PARSE"
	CodeUnknownTool           ErrorCode = "UNKNOWN_TOOL"
	CodeCapabilityUnavailable ErrorCode = "CAPABILITY_UNAVAILABLE"
	CodeClassificationFailure ErrorCode = "CLASSIFICATION_FAILURE"
	CodeSkillRegistry         ErrorCode = "SKILL_REGISTRY_UNAVAILABLE"
	CodeTurnInFlight          ErrorCode = "TURN_IN_FLIGHT"
	CodeTurnCancelled         ErrorCode = "TURN_CANCELLED"
	CodeConfigLoad            ErrorCode = "CONFIG_LOAD"
	CodePathOutsideSandbox    ErrorCode = "PATH_OUTSIDE_SANDBOX"
	CodeEmbeddingFailed       ErrorCode = "EMBEDDING_FAILED"
	CodeStatsStore            ErrorCode = "STATS_STORE"
	CodeRateLimit             ErrorCode = "RATE_LIMIT"
	CodeCircuitOpen           ErrorCode = "CIRCUIT_OPEN"
	CodeAuthInvalid           ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth           ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound     ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload     ErrorCode = "RPC_INVALID_PAYLOAD"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:                 CodeNotFound,
	ErrInvalidInput:             CodeInvalidInput,
	ErrTimeout:                  CodeTimeout,
	ErrDisabled:                 CodeDisabled,
	ErrGenerationFailure:        CodeGenerationFailure,
	ErrToolExecution:            CodeToolExecution,
	ErrToolParse:                CodeToolParse,
	ErrUnknownTool:              CodeUnknownTool,
	ErrCapabilityUnavailable:    CodeCapabilityUnavailable,
	ErrClassificationFailure:    CodeClassificationFailure,
	ErrSkillRegistryUnavailable: CodeSkillRegistry,
	ErrTurnInFlight:             CodeTurnInFlight,
	ErrTurnCancelled:            CodeTurnCancelled,
	ErrConfigLoad:               CodeConfigLoad,
	ErrPathOutsideSandbox:       CodePathOutsideSandbox,
	ErrEmbeddingFailed:          CodeEmbeddingFailed,
	ErrStatsStore:               CodeStatsStore,
	ErrRateLimit:                CodeRateLimit,
	ErrCircuitOpen:              CodeCircuitOpen,
	ErrAuthInvalid:              CodeAuthInvalid,
	ErrGatewayAuthFailed:        CodeGatewayAuth,
	ErrRPCMethodNotFound:        CodeRPCMethodNotFound,
	ErrRPCInvalidPayload:        CodeRPCInvalidPayload,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// ErrGatewayAuthFailed wraps ErrAuthInvalid; check the more specific one first.
	if errors.Is(err, ErrGatewayAuthFailed) {
		return CodeGatewayAuth
	}
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
