package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/docflow/internal/core/domain"
)

type observerFake struct {
	retries int
	states  []string
}

func (o *observerFake) ObserveRetry(string) { o.retries++ }

func (o *observerFake) ObserveBreakerState(_ string, state string) {
	o.states = append(o.states, state)
}

func fastConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func TestExecuteRetriesServerErrors(t *testing.T) {
	observer := &observerFake{}
	exec := NewExecutor(fastConfig(), WithObserver(observer))

	attempts := 0
	err := exec.Execute(context.Background(), "webhook.send", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &StatusError{Operation: "webhook", Code: http.StatusBadGateway}
		}
		return nil
	}, ClassifyHTTP)
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 || observer.retries != 2 {
		t.Fatalf("expected 3 attempts and 2 observed retries, got %d/%d", attempts, observer.retries)
	}
}

func TestExecuteDoesNotRetryClientErrors(t *testing.T) {
	exec := NewExecutor(fastConfig())

	attempts := 0
	err := exec.Execute(context.Background(), "webhook.send", func(context.Context) error {
		attempts++
		return &StatusError{Operation: "webhook", Code: http.StatusUnprocessableEntity}
	}, ClassifyHTTP)

	var status *StatusError
	if !errors.As(err, &status) || status.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAfterFailures(t *testing.T) {
	observer := &observerFake{}
	exec := NewExecutor(Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     time.Millisecond,
		RetryMaxBackoff:         time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}, WithObserver(observer))

	errDown := errors.New("connection refused")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
			return errDown
		}, nil)
		if !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected failure, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, nil)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(observer.states) == 0 || observer.states[0] != gobreaker.StateOpen.String() {
		t.Fatalf("expected open transition to be observed, got %v", observer.states)
	}
}

func TestNilExecutorRunsOnce(t *testing.T) {
	var exec *Executor
	calls := 0
	if err := exec.Execute(context.Background(), "op", func(context.Context) error {
		calls++
		return nil
	}, nil); err != nil || calls != 1 {
		t.Fatalf("expected one direct call, got %d (%v)", calls, err)
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		retryable bool
		record    bool
	}{
		{"too many requests", &StatusError{Code: http.StatusTooManyRequests}, true, true},
		{"server error", fmt.Errorf("send: %w", &StatusError{Code: http.StatusServiceUnavailable}), true, true},
		{"not found", &StatusError{Code: http.StatusNotFound}, false, false},
		{"canceled", context.Canceled, false, false},
		{"open breaker", gobreaker.ErrOpenState, true, true},
		{"other", errors.New("boom"), false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ClassifyHTTP(tc.err)
			if got.Retryable != tc.retryable || got.RecordFailure != tc.record {
				t.Fatalf("ClassifyHTTP(%v) = %+v", tc.err, got)
			}
		})
	}
}

func TestTemporaryWrapsRetryableOnly(t *testing.T) {
	retryable := Temporary("webhook send", &StatusError{Code: http.StatusBadGateway}, ClassifyHTTP)
	if !domain.IsKind(retryable, domain.ErrTemporary) {
		t.Fatalf("expected temporary, got %v", retryable)
	}
	permanent := Temporary("webhook send", &StatusError{Code: http.StatusBadRequest}, ClassifyHTTP)
	if domain.IsKind(permanent, domain.ErrTemporary) {
		t.Fatalf("client errors must stay permanent: %v", permanent)
	}
	if Temporary("op", nil, ClassifyHTTP) != nil {
		t.Fatalf("nil stays nil")
	}
}
