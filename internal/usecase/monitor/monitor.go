// Package monitor implements the generic adaptive-interval self-scheduling
// loop used by every monitor kind (pendingOrders, orphanOrders, takeProfit,
// trailingCleaner, trailingSync) per spec §4.5.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/nyx-quant/perpsup/internal/infrastructure/logger"
	"github.com/nyx-quant/perpsup/internal/infrastructure/xerr"
)

// Kind names a monitor type, used for logging and the MonitorRateState key
// (spec §3).
type Kind string

const (
	KindPendingOrders   Kind = "pendingOrders"
	KindOrphanOrders    Kind = "orphanOrders"
	KindTakeProfit      Kind = "takeProfit"
	KindTrailingCleaner Kind = "trailingCleaner"
	KindTrailingSync    Kind = "trailingSync"
)

// Interval is the {min, max, start} tuple for a monitor kind (spec §4.5 table).
type Interval struct {
	Min   time.Duration
	Start time.Duration
	Max   time.Duration
	// Step is the interval decrement applied on success; defaults to 1s.
	Step time.Duration
	// WarmUp delays the first tick beyond Start (trailingSync: 1 min).
	WarmUp time.Duration
}

// Callback is one monitor cycle's unit of work.
type Callback func(ctx context.Context) error

// RateState mirrors spec §3's MonitorRateState: in-memory per (botId, kind).
type RateState struct {
	mu           sync.Mutex
	Interval     time.Duration
	Min          time.Duration
	Max          time.Duration
	ErrorCount   int
	LastErrorAt  time.Time
	LastFullScan time.Time
}

func (rs *RateState) snapshot() (interval time.Duration, errorCount int) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.Interval, rs.ErrorCount
}

func (rs *RateState) lastFullScan() time.Time {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.LastFullScan
}

func (rs *RateState) markFullScan(at time.Time) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.LastFullScan = at
}

// Loop is one self-scheduling monitor instance for one (botId, kind).
type Loop struct {
	BotID int64
	Kind  Kind

	state           *RateState
	cb              Callback
	step            time.Duration
	trailingCleaner bool

	log *logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewLoop constructs a monitor loop, not yet started.
func NewLoop(botID int64, kind Kind, cfg Interval, cb Callback, log *logger.Logger) *Loop {
	step := cfg.Step
	if step == 0 {
		step = time.Second
	}
	if log == nil {
		log = logger.Default()
	}
	return &Loop{
		BotID:           botID,
		Kind:            kind,
		state:           &RateState{Interval: cfg.Start, Min: cfg.Min, Max: cfg.Max},
		cb:              cb,
		step:            step,
		trailingCleaner: kind == KindTrailingCleaner,
		log:             log.WithComponent("monitor").WithBotID(botID).WithField("kind", string(kind)),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Start runs the self-scheduling loop until Stop is called. warmUp delays
// the first tick (used by trailingSync's 1-minute warm-up per spec §4.4/§4.5).
func (l *Loop) Start(ctx context.Context, warmUp time.Duration) {
	go l.run(ctx, warmUp)
}

func (l *Loop) run(ctx context.Context, warmUp time.Duration) {
	defer close(l.done)

	if warmUp > 0 {
		t := time.NewTimer(warmUp)
		select {
		case <-t.C:
		case <-l.stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		}
	}

	for {
		interval, _ := l.state.snapshot()
		t := time.NewTimer(interval)

		select {
		case <-l.stopCh:
			t.Stop()
			return
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		// Stop is checked again right before invoking the callback so a
		// StopBot racing the timer never lets a new tick start (spec §4.5
		// cancellation: "a stop signal is checked before scheduling the next
		// tick").
		select {
		case <-l.stopCh:
			return
		default:
		}

		err := l.cb(ctx)
		l.reschedule(err)
	}
}

// reschedule applies spec §4.5's adaptive-interval rules.
func (l *Loop) reschedule(err error) {
	l.state.mu.Lock()
	defer l.state.mu.Unlock()

	if err == nil {
		l.state.Interval = maxDuration(l.state.Min, l.state.Interval-l.step)
		l.state.ErrorCount = 0
		return
	}

	if xerr.Is(err, xerr.KindRateLimited) {
		l.state.Interval = minDuration(l.state.Max, l.state.Interval*2)
		l.state.ErrorCount++
		l.state.LastErrorAt = time.Now()
		l.log.Warn("rate limited, backing off to %s (errorCount=%d)", l.state.Interval, l.state.ErrorCount)
		return
	}

	l.log.Error("monitor cycle failed: %v", err)
	l.state.ErrorCount++
	l.state.LastErrorAt = time.Now()

	if l.trailingCleaner {
		// spec §4.5: "min(15min, 5min + errorCount × 2min)".
		inflated := 5*time.Minute + time.Duration(l.state.ErrorCount)*2*time.Minute
		l.state.Interval = minDuration(15*time.Minute, inflated)
	}
	// Other kinds: next interval unchanged by default.
}

// Stop cancels the loop. A tick already executing completes and its
// reschedule still updates the interval, but Stop returns only after the run
// goroutine observes the stop signal and exits, so no further tick fires
// (spec §8.9, §5).
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.stopCh) })
	<-l.done
}

// CurrentInterval exposes the live interval for metrics (SPEC_FULL §D).
func (l *Loop) CurrentInterval() time.Duration {
	interval, _ := l.state.snapshot()
	return interval
}

// ErrorCount exposes the live error count for metrics/backoff property tests.
func (l *Loop) ErrorCount() int {
	_, count := l.state.snapshot()
	return count
}

// LastFullScan exposes MonitorRateState's auxiliary full-scan timestamp
// (spec §3), used by orphanOrders to gate its every-5-minutes full-account
// sweep (spec §4.5).
func (l *Loop) LastFullScan() time.Time {
	return l.state.lastFullScan()
}

// MarkFullScan records that a full-account scan just ran.
func (l *Loop) MarkFullScan(at time.Time) {
	l.state.markFullScan(at)
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// Table is the spec §4.5 interval table for each monitor kind.
var Table = map[Kind]Interval{
	KindPendingOrders:   {Min: 15 * time.Second, Start: 90 * time.Second, Max: 120 * time.Second},
	KindOrphanOrders:    {Min: 60 * time.Second, Start: 120 * time.Second, Max: 300 * time.Second},
	KindTakeProfit:      {Min: 30 * time.Second, Start: 120 * time.Second, Max: 300 * time.Second},
	KindTrailingCleaner: {Min: 5 * time.Minute, Start: 5 * time.Minute, Max: 15 * time.Minute},
	KindTrailingSync:    {Min: 5 * time.Minute, Start: 5 * time.Minute, Max: 5 * time.Minute, WarmUp: time.Minute},
}
