package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestResultConstructors(t *testing.T) {
	h := Healthy("ok")
	if h.Status != StatusHealthy || h.Message != "ok" || h.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", h)
	}

	cause := errors.New("connection refused")
	u := Unhealthy("down", cause).WithDetails(map[string]any{"attempts": 3})
	if u.Status != StatusUnhealthy || !errors.Is(u.Error, cause) {
		t.Errorf("Unhealthy() = %+v", u)
	}
	if u.Details["attempts"] != 3 {
		t.Errorf("Details = %v", u.Details)
	}
}

func TestAggregatorCheckAll(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: time.Second})
	agg.Register("up", NewCheckerFunc("up", func(context.Context) Result {
		return Healthy("ok")
	}))
	agg.Register("slow", NewCheckerFunc("slow", func(context.Context) Result {
		return Degraded("lagging")
	}))
	agg.Register("down", NewCheckerFunc("down", func(context.Context) Result {
		return Unhealthy("gone", nil)
	}))

	results := agg.CheckAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results["up"].Status != StatusHealthy {
		t.Errorf("up = %v", results["up"].Status)
	}
	if got := agg.OverallStatus(results); got != StatusUnhealthy {
		t.Errorf("OverallStatus = %v, want unhealthy", got)
	}

	agg.Unregister("down")
	results = agg.CheckAll(context.Background())
	if got := agg.OverallStatus(results); got != StatusDegraded {
		t.Errorf("OverallStatus after unregister = %v, want degraded", got)
	}
}

func TestAggregatorCheckNamed(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	agg.Register("up", NewCheckerFunc("up", func(context.Context) Result {
		return Healthy("ok")
	}))

	result, err := agg.Check(context.Background(), "up")
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if result.Status != StatusHealthy {
		t.Errorf("Status = %v", result.Status)
	}
	if result.Duration <= 0 {
		t.Error("Duration not recorded")
	}

	if _, err := agg.Check(context.Background(), "missing"); !errors.Is(err, ErrCheckerNotFound) {
		t.Errorf("Check(missing) = %v, want ErrCheckerNotFound", err)
	}
}

func TestAggregatorTimeout(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{Timeout: 50 * time.Millisecond})
	agg.Register("stuck", NewCheckerFunc("stuck", func(ctx context.Context) Result {
		<-ctx.Done()
		time.Sleep(100 * time.Millisecond)
		return Healthy("too late")
	}))

	results := agg.CheckAll(context.Background())
	result := results["stuck"]
	if result.Status != StatusUnhealthy {
		t.Errorf("Status = %v, want unhealthy", result.Status)
	}
	if !errors.Is(result.Error, ErrCheckTimeout) {
		t.Errorf("Error = %v, want ErrCheckTimeout", result.Error)
	}
}

func TestOverallStatusEmpty(t *testing.T) {
	agg := NewAggregator(AggregatorConfig{})
	if got := agg.OverallStatus(nil); got != StatusHealthy {
		t.Errorf("OverallStatus(nil) = %v, want healthy", got)
	}
}
