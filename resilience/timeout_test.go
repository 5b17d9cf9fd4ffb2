package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTimeout_Execute(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})

	err := timeout.Execute(context.Background(), func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("Execute() error = %v, want nil", err)
	}
}

func TestTimeout_Execute_PropagatesError(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})
	want := errors.New("backend down")

	err := timeout.Execute(context.Background(), func(_ context.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Execute() error = %v, want %v", err, want)
	}
}

func TestTimeout_Execute_DeadlineExceeded(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: 20 * time.Millisecond})

	err := timeout.Execute(context.Background(), func(ctx context.Context) error {
		select {
		case <-time.After(time.Second):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Execute() error = %v, want ErrTimeout", err)
	}
}

func TestTimeout_Execute_CanceledContext(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := timeout.Execute(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
}

func TestNewTimeout_Default(t *testing.T) {
	timeout := NewTimeout(TimeoutConfig{})
	if timeout.Config().Timeout != 30*time.Second {
		t.Errorf("default Timeout = %v, want 30s", timeout.Config().Timeout)
	}
}

func TestExecuteWithTimeout(t *testing.T) {
	err := ExecuteWithTimeout(context.Background(), time.Second, func(_ context.Context) error {
		return nil
	})
	if err != nil {
		t.Errorf("ExecuteWithTimeout() error = %v, want nil", err)
	}
}
