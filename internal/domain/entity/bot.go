package entity

import (
	"strconv"
	"time"
)

// Timeframe is the enum of candle intervals a bot can analyze (spec §3).
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe30m Timeframe = "30m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// Millis returns the timeframe's duration in milliseconds, used by the
// ON_CANDLE_CLOSE scheduling formula in spec §4.4.
func (t Timeframe) Millis() int64 {
	switch t {
	case Timeframe1m:
		return 60_000
	case Timeframe5m:
		return 5 * 60_000
	case Timeframe15m:
		return 15 * 60_000
	case Timeframe30m:
		return 30 * 60_000
	case Timeframe1h:
		return 60 * 60_000
	case Timeframe4h:
		return 4 * 60 * 60_000
	case Timeframe1d:
		return 24 * 60 * 60_000
	default:
		return 60_000
	}
}

// ExecutionMode selects the decision-tick cadence (spec §3, §4.4).
type ExecutionMode string

const (
	ExecutionRealtime      ExecutionMode = "REALTIME"
	ExecutionOnCandleClose ExecutionMode = "ON_CANDLE_CLOSE"
)

// BotStatus is the persisted lifecycle state (spec §4.3).
type BotStatus string

const (
	BotStatusStopped  BotStatus = "stopped"
	BotStatusStarting BotStatus = "starting"
	BotStatusRunning  BotStatus = "running"
	BotStatusError    BotStatus = "error"
)

// StrategyALPHAFLOW is the strategy name that forces ON_CANDLE_CLOSE
// regardless of the stored execution mode (spec §4.4).
const StrategyALPHAFLOW = "ALPHA_FLOW"

// StrategyDEFAULT is the baseline strategy name (spec §8 S1 example).
const StrategyDEFAULT = "DEFAULT"

// BotConfig is the durable, per-bot configuration record (spec §3).
type BotConfig struct {
	BotID    int64
	BotName  string
	StrategyName string

	APIKey    string
	APISecret string

	Timeframe     Timeframe
	ExecutionMode ExecutionMode

	CapitalPercentage    float64
	MaxOpenOrders        int
	MaxNegativePnlStopPct float64
	MinProfitPercentage  float64
	MaxSlippagePct       float64

	// Trailing-stop parameters (spec §4.7, §4.8).
	EnableTrailing             bool
	TrailingStopActivationPct  float64
	TrailingStopDistancePct    float64
	EnableHybridStopStrategy   bool
	InitialStopAtrMultiplier   float64
	TrailingStopAtrMultiplier  float64
	PartialTakeProfitAtrMultiplier float64
	PartialTakeProfitPercentage    float64

	// Feature switches (spec §3).
	EnablePostOnly       bool
	EnableMarketFallback bool
	EnableOrphanMonitor  bool
	EnablePendingMonitor bool
	EnableHeikinAshi     bool

	AuthorizedTokens []string // empty = all

	Enabled bool
	Status  BotStatus

	StartTime       time.Time
	NextValidationAt time.Time

	BotClientOrderID int64
	OrderCounter     int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EffectiveExecutionMode applies the ALPHA_FLOW / Heikin-Ashi coercion rule
// from spec §4.4.
func (c *BotConfig) EffectiveExecutionMode() ExecutionMode {
	if c.StrategyName == StrategyALPHAFLOW || c.EnableHeikinAshi {
		return ExecutionOnCandleClose
	}
	return c.ExecutionMode
}

// EffectiveTrailingActivationPct resolves the Open Question from spec §9:
// TrailingStopActivationPct is authoritative when set, MinProfitPercentage
// is the fallback (see SPEC_FULL.md §C.7 and DESIGN.md).
func (c *BotConfig) EffectiveTrailingActivationPct() float64 {
	if c.TrailingStopActivationPct != 0 {
		return c.TrailingStopActivationPct
	}
	return c.MinProfitPercentage
}

// NextClientOrderID formats the clientId tag for a given counter value
// (spec glossary: "${botId}_${botClientOrderId}_${orderCounter}").
func (c *BotConfig) NextClientOrderID(counter int64) string {
	return OwnerBotClientPrefix(c.BotID, c.BotClientOrderID) + strconv.FormatInt(counter, 10)
}
