package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Wrap with NewDomainError to add operation context.
var (
	ErrNotFound      = fmt.Errorf("not found")
	ErrDuplicate     = fmt.Errorf("duplicate")
	ErrInvalidInput  = fmt.Errorf("invalid input")
	ErrProviderError = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrNoActiveSession  = fmt.Errorf("no active session")
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrUnknownAgent     = fmt.Errorf("route decision names unknown agent")
	ErrBadDecision      = fmt.Errorf("route decision malformed")
	ErrMessageStore     = fmt.Errorf("message store operation failed")
	ErrTemplate         = fmt.Errorf("prompt template failed")

	// Resilience errors surfaced by completion providers.
	ErrRateLimit       = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid     = fmt.Errorf("authentication failed")
	ErrContextOverflow = fmt.Errorf("context window exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.PursueGoal")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail (session/agent/message ids)
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

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
	CodeNoActiveSession  ErrorCode = "NO_ACTIVE_SESSION"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeUnknownAgent     ErrorCode = "UNKNOWN_AGENT"
	CodeBadDecision      ErrorCode = "BAD_DECISION"
	CodeMessageStore     ErrorCode = "MESSAGE_STORE"
	CodeTemplate         ErrorCode = "TEMPLATE"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"
	CodeContextOverflow  ErrorCode = "CONTEXT_OVERFLOW"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,
	ErrNoActiveSession:  CodeNoActiveSession,
	ErrProviderNotFound: CodeProviderNotFound,
	ErrUnknownAgent:     CodeUnknownAgent,
	ErrBadDecision:      CodeBadDecision,
	ErrMessageStore:     CodeMessageStore,
	ErrTemplate:         CodeTemplate,
	ErrRateLimit:        CodeRateLimit,
	ErrAuthInvalid:      CodeAuthInvalid,
	ErrContextOverflow:  CodeContextOverflow,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code, ok := errorCodeMap[de.Err]; ok {
			return code
		}
	}

	// Walk the error chain with errors.Is.
	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
