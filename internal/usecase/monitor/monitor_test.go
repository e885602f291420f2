package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
)

func TestLoop_SuccessShrinksIntervalTowardMin(t *testing.T) {
	cfg := Interval{Min: 10 * time.Millisecond, Start: 40 * time.Millisecond, Max: 200 * time.Millisecond, Step: 10 * time.Millisecond}
	l := NewLoop(1, KindPendingOrders, cfg, func(ctx context.Context) error { return nil }, nil)

	l.reschedule(nil)
	if got := l.CurrentInterval(); got != 30*time.Millisecond {
		t.Fatalf("interval = %v, want 30ms", got)
	}
	l.reschedule(nil)
	l.reschedule(nil)
	if got := l.CurrentInterval(); got != cfg.Min {
		t.Fatalf("interval = %v, want floor at Min (%v)", got, cfg.Min)
	}
}

func TestLoop_RateLimitedBacksOffExponentially(t *testing.T) {
	cfg := Interval{Min: 15 * time.Second, Start: 90 * time.Second, Max: 120 * time.Second}
	l := NewLoop(1, KindPendingOrders, cfg, nil, nil)

	l.reschedule(xerr.RateLimited("test", errors.New("429")))
	if got := l.CurrentInterval(); got != 120*time.Second {
		t.Fatalf("interval = %v, want capped at Max (120s)", got)
	}
	if l.ErrorCount() != 1 {
		t.Fatalf("errorCount = %d, want 1", l.ErrorCount())
	}
}

func TestLoop_TrailingCleanerErrorInflatesIntervalByErrorCount(t *testing.T) {
	cfg := Table[KindTrailingCleaner]
	l := NewLoop(1, KindTrailingCleaner, cfg, nil, nil)

	l.reschedule(errors.New("boom"))
	if got := l.CurrentInterval(); got != 7*time.Minute {
		t.Fatalf("interval after 1st error = %v, want 7m (5m + 1*2m)", got)
	}
	l.reschedule(errors.New("boom"))
	if got := l.CurrentInterval(); got != 9*time.Minute {
		t.Fatalf("interval after 2nd error = %v, want 9m (5m + 2*2m)", got)
	}
}

func TestLoop_TrailingCleanerErrorCapsAt15Minutes(t *testing.T) {
	cfg := Table[KindTrailingCleaner]
	l := NewLoop(1, KindTrailingCleaner, cfg, nil, nil)

	for i := 0; i < 10; i++ {
		l.reschedule(errors.New("boom"))
	}
	if got := l.CurrentInterval(); got != 15*time.Minute {
		t.Fatalf("interval = %v, want capped at 15m", got)
	}
}

func TestLoop_NonRateLimitedErrorLeavesIntervalUnchangedForOtherKinds(t *testing.T) {
	cfg := Table[KindOrphanOrders]
	l := NewLoop(1, KindOrphanOrders, cfg, nil, nil)

	before := l.CurrentInterval()
	l.reschedule(errors.New("boom"))
	if got := l.CurrentInterval(); got != before {
		t.Fatalf("interval changed to %v, want unchanged %v", got, before)
	}
	if l.ErrorCount() != 1 {
		t.Fatalf("errorCount = %d, want 1", l.ErrorCount())
	}
}

func TestLoop_StartRunsCallbackAndStopsCleanly(t *testing.T) {
	cfg := Interval{Min: 5 * time.Millisecond, Start: 5 * time.Millisecond, Max: 20 * time.Millisecond}
	calls := make(chan struct{}, 8)
	l := NewLoop(1, KindPendingOrders, cfg, func(ctx context.Context) error {
		select {
		case calls <- struct{}{}:
		default:
		}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx, 0)

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("callback never ran")
	}
	l.Stop()
}

func TestLoop_LastFullScanDefaultsZeroUntilMarked(t *testing.T) {
	cfg := Interval{Min: 60 * time.Second, Start: 120 * time.Second, Max: 300 * time.Second}
	l := NewLoop(1, KindOrphanOrders, cfg, func(ctx context.Context) error { return nil }, nil)

	if !l.LastFullScan().IsZero() {
		t.Fatal("expected zero LastFullScan before any scan is marked")
	}

	now := time.Now()
	l.MarkFullScan(now)
	if !l.LastFullScan().Equal(now) {
		t.Fatalf("LastFullScan = %v, want %v", l.LastFullScan(), now)
	}
}
