// Package risk guards a single bot's capital and drawdown limits ahead of
// order execution (SPEC_FULL §C.9, derived from BotConfig's risk fields).
package risk

import (
	"sync"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
)

// cooldownDuration pauses a bot after it trips its consecutive-loss guard.
const cooldownDuration = 5 * time.Minute

// maxConsecutiveLoss halts new entries until cooldownDuration elapses.
const maxConsecutiveLoss = 3

// CheckResult is the outcome of a risk gate.
type CheckResult struct {
	Allowed bool
	Reason  string
}

// Checker enforces one bot's MaxNegativePnlStopPct / CapitalPercentage
// guards across its running lifetime.
type Checker struct {
	botID             int64
	maxNegativePnlPct float64
	capitalPercentage float64

	mu              sync.RWMutex
	sessionPnLPct   float64
	consecutiveLoss int
	cooldownUntil   time.Time
	halted          bool
	haltReason      string
}

// NewChecker builds a Checker scoped to cfg's risk parameters.
func NewChecker(cfg *entity.BotConfig) *Checker {
	return &Checker{
		botID:             cfg.BotID,
		maxNegativePnlPct: cfg.MaxNegativePnlStopPct,
		capitalPercentage: cfg.CapitalPercentage,
	}
}

// CanTrade reports whether the bot may submit a new entry order.
func (c *Checker) CanTrade() CheckResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.halted {
		return CheckResult{Allowed: false, Reason: "trading halted: " + c.haltReason}
	}
	if time.Now().Before(c.cooldownUntil) {
		return CheckResult{Allowed: false, Reason: "in cooldown until " + c.cooldownUntil.Format(time.RFC3339)}
	}
	if c.maxNegativePnlPct > 0 && c.sessionPnLPct < -c.maxNegativePnlPct {
		return CheckResult{Allowed: false, Reason: "max negative pnl% exceeded"}
	}
	return CheckResult{Allowed: true}
}

// CheckCapitalAllocation validates notional against the bot's
// capitalPercentage share of available margin (spec §3).
func (c *Checker) CheckCapitalAllocation(notional, availableMargin float64) CheckResult {
	allowed := availableMargin * (c.capitalPercentage / 100)
	if notional > allowed {
		return CheckResult{Allowed: false, Reason: "order notional exceeds allocated capital share"}
	}
	return CheckResult{Allowed: true}
}

// RecordTrade folds a closed trade's realized pnl% into the session total
// and arms the cooldown after consecutive losses.
func (c *Checker) RecordTrade(pnlPct float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sessionPnLPct += pnlPct

	if pnlPct < 0 {
		c.consecutiveLoss++
		if c.consecutiveLoss >= maxConsecutiveLoss {
			c.cooldownUntil = time.Now().Add(cooldownDuration)
			c.consecutiveLoss = 0
		}
	} else {
		c.consecutiveLoss = 0
	}
}

// Halt stops the bot's trading immediately (e.g. on repeated exchange errors).
func (c *Checker) Halt(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = true
	c.haltReason = reason
}

// Resume clears a halt and the consecutive-loss counter.
func (c *Checker) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = false
	c.haltReason = ""
	c.consecutiveLoss = 0
}

// ResetSession zeroes the accumulated session pnl%.
func (c *Checker) ResetSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionPnLPct = 0
}

// Status reports the checker's current state for the dashboard.
func (c *Checker) Status() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]interface{}{
		"botId":            c.botID,
		"halted":           c.halted,
		"haltReason":       c.haltReason,
		"sessionPnLPct":    c.sessionPnLPct,
		"consecutiveLoss":  c.consecutiveLoss,
		"inCooldown":       time.Now().Before(c.cooldownUntil),
		"cooldownUntil":    c.cooldownUntil,
	}
}
