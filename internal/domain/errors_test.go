package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestDomainErrorMessage(t *testing.T) {
	err := NewDomainError("Router.PursueGoal", ErrUnknownAgent, "agent=ghost session=s1")
	want := "Router.PursueGoal: agent=ghost session=s1: route decision names unknown agent"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrUnknownAgent) {
		t.Error("errors.Is should match the wrapped sentinel")
	}
}

func TestDomainErrorNoDetail(t *testing.T) {
	err := NewDomainError("Agent.Send", ErrNoActiveSession, "")
	want := "Agent.Send: no active session"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestWrapOp(t *testing.T) {
	if WrapOp("op", nil) != nil {
		t.Error("WrapOp(nil) should be nil")
	}
	err := WrapOp("History.Restore", ErrMessageStore)
	if !errors.Is(err, ErrMessageStore) {
		t.Errorf("wrapped error should match sentinel, got %v", err)
	}
}

func TestErrorCodeOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{nil, CodeUnknown},
		{ErrUnknownAgent, CodeUnknownAgent},
		{NewDomainError("op", ErrBadDecision, "x"), CodeBadDecision},
		{fmt.Errorf("outer: %w", ErrRateLimit), CodeRateLimit},
		{errors.New("something else"), CodeUnknown},
	}
	for _, c := range cases {
		if got := ErrorCodeOf(c.err); got != c.want {
			t.Errorf("ErrorCodeOf(%v) = %s, want %s", c.err, got, c.want)
		}
	}
}

func TestDomainErrorCode(t *testing.T) {
	de := NewDomainError("op", ErrNoActiveSession, "")
	if de.Code() != CodeNoActiveSession {
		t.Errorf("Code() = %s, want %s", de.Code(), CodeNoActiveSession)
	}
	de = NewDomainError("op", errors.New("opaque"), "")
	if de.Code() != CodeUnknown {
		t.Errorf("Code() = %s, want %s", de.Code(), CodeUnknown)
	}
}
