package risk

import (
	"testing"
	"time"

	"github.com/nyx-quant/perpsup/internal/domain/entity"
)

func newChecker(maxNegPnl, capitalPct float64) *Checker {
	return NewChecker(&entity.BotConfig{BotID: 1, MaxNegativePnlStopPct: maxNegPnl, CapitalPercentage: capitalPct})
}

func TestCanTrade_AllowsByDefault(t *testing.T) {
	c := newChecker(10, 20)
	if res := c.CanTrade(); !res.Allowed {
		t.Fatalf("expected CanTrade to allow, got reason %q", res.Reason)
	}
}

func TestCanTrade_BlocksWhenSessionPnLBreachesMaxNegative(t *testing.T) {
	c := newChecker(5, 20)
	c.RecordTrade(-3)
	c.RecordTrade(-3)

	if res := c.CanTrade(); res.Allowed {
		t.Fatal("expected CanTrade to block once session pnl% drops below -maxNegativePnlPct")
	}
}

func TestCanTrade_BlocksAfterHalt(t *testing.T) {
	c := newChecker(10, 20)
	c.Halt("exchange errors")

	res := c.CanTrade()
	if res.Allowed {
		t.Fatal("expected CanTrade to block after Halt")
	}
	if res.Reason != "trading halted: exchange errors" {
		t.Fatalf("reason = %q", res.Reason)
	}

	c.Resume()
	if res := c.CanTrade(); !res.Allowed {
		t.Fatalf("expected CanTrade to allow after Resume, got %q", res.Reason)
	}
}

func TestRecordTrade_ThirdConsecutiveLossArmsCooldown(t *testing.T) {
	c := newChecker(100, 20)
	c.RecordTrade(-1)
	c.RecordTrade(-1)
	if res := c.CanTrade(); !res.Allowed {
		t.Fatal("expected CanTrade to still allow after only 2 consecutive losses")
	}

	c.RecordTrade(-1)
	if res := c.CanTrade(); res.Allowed {
		t.Fatal("expected CanTrade to block once the cooldown arms on the 3rd consecutive loss")
	}
}

func TestRecordTrade_WinResetsConsecutiveLossStreak(t *testing.T) {
	c := newChecker(100, 20)
	c.RecordTrade(-1)
	c.RecordTrade(-1)
	c.RecordTrade(2)
	c.RecordTrade(-1)
	c.RecordTrade(-1)

	if res := c.CanTrade(); !res.Allowed {
		t.Fatal("expected a win to reset the consecutive-loss streak, so 2 losses after it should not trip the cooldown")
	}
}

func TestCheckCapitalAllocation_RejectsOversizedNotional(t *testing.T) {
	c := newChecker(100, 10)

	if res := c.CheckCapitalAllocation(500, 10000); !res.Allowed {
		t.Fatalf("expected 500 notional against 10%% of 10000 margin to be allowed, got %q", res.Reason)
	}
	if res := c.CheckCapitalAllocation(1500, 10000); res.Allowed {
		t.Fatal("expected 1500 notional to exceed 10% of 10000 margin")
	}
}

func TestStatus_ReflectsHaltAndCooldownState(t *testing.T) {
	c := newChecker(100, 20)
	c.cooldownUntil = time.Now().Add(time.Minute)

	status := c.Status()
	if status["inCooldown"] != true {
		t.Fatalf("status[inCooldown] = %v, want true", status["inCooldown"])
	}
	if status["botId"] != int64(1) {
		t.Fatalf("status[botId] = %v, want 1", status["botId"])
	}
}
