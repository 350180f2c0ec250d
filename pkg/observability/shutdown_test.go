package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"
)

func TestShutdownManager_RunsStepsInReverseOrder(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, &http.Server{}, time.Second)

	var order []string
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		order = append(order, "postgres")
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		order = append(order, "redis")
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		order = append(order, "otel")
		return nil
	})

	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	want := []string{"otel", "redis", "postgres"}
	if len(order) != len(want) {
		t.Fatalf("Expected %d steps, got %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("Steps out of order: got %v, want %v", order, want)
		}
	}
}

func TestShutdownManager_CollectsStepErrors(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, time.Second)

	stepErr := errors.New("flush failed")
	ran := false
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		ran = true
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		return stepErr
	})

	err := sm.Shutdown()
	if !errors.Is(err, stepErr) {
		t.Fatalf("Expected the step error to surface, got %v", err)
	}
	if !ran {
		t.Error("A failing step must not stop the remaining steps")
	}
}

func TestShutdownManager_DeadlineStopsRemainingSteps(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)
	sm := NewShutdownManager(logger, nil, 50*time.Millisecond)

	var skipped bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		skipped = true
		return nil
	})
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	if err := sm.Shutdown(); err == nil {
		t.Fatal("Expected an error after the deadline")
	}
	if skipped {
		t.Error("Steps after the deadline must not run")
	}
}

func TestShutdownManager_DrainsServerFirst(t *testing.T) {
	logger := NewLogger(InfoLevel, io.Discard)

	srv := &http.Server{}
	sm := NewShutdownManager(logger, srv, time.Second)

	var afterDrain bool
	sm.RegisterShutdownFunc(func(ctx context.Context) error {
		afterDrain = true
		return nil
	})

	// Shutdown on a never-started server returns immediately; the step
	// still runs afterwards.
	if err := sm.Shutdown(); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if !afterDrain {
		t.Error("Cleanup steps must run after the server drain")
	}
}

func TestNewShutdownManager_DefaultTimeout(t *testing.T) {
	sm := NewShutdownManager(NewLogger(InfoLevel, io.Discard), nil, 0)
	if sm.timeout != 30*time.Second {
		t.Errorf("Expected 30s default timeout, got %v", sm.timeout)
	}
}
