package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCircuitBreakerTripsOnDailyLoss(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(dec("100"), dec("0.5"), fixedClock(now))
	cb.Initialize(dec("1000"))

	cb.Update(dec("899"))
	if ok, _ := cb.CanTrade(); ok {
		t.Error("breaker should trip once daily loss exceeds the limit")
	}
}

func TestCircuitBreakerTripsOnDrawdown(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(dec("100000"), dec("0.2"), fixedClock(now))
	cb.Initialize(dec("1000"))

	cb.Update(dec("1200")) // new high water mark
	cb.Update(dec("950"))  // 20.8% off the high, breaches 20%
	if ok, _ := cb.CanTrade(); ok {
		t.Error("breaker should trip once drawdown from high water mark exceeds the limit")
	}
}

func TestCircuitBreakerStaysArmedUnderLimits(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(dec("100"), dec("0.5"), fixedClock(now))
	cb.Initialize(dec("1000"))

	cb.Update(dec("980"))
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("breaker should not trip for a small loss under the limit")
	}
}

func TestCircuitBreakerRequiresManualReset(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(dec("100"), dec("0.5"), fixedClock(now))
	cb.Initialize(dec("1000"))

	cb.Update(dec("800"))
	cb.Update(dec("1500")) // equity recovers, but the trip should stick
	if ok, _ := cb.CanTrade(); ok {
		t.Error("a tripped breaker should not self-clear on equity recovery")
	}

	cb.Reset()
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("breaker should permit trading again after an explicit Reset")
	}
}

func TestCircuitBreakerRollsOverDayStart(t *testing.T) {
	day1 := time.Date(2026, 7, 29, 23, 0, 0, 0, time.UTC)
	clock := day1
	cb := NewCircuitBreaker(dec("50"), dec("0.9"), func() time.Time { return clock })
	cb.Initialize(dec("1000"))

	cb.Update(dec("970")) // 30 down, under the 50 daily limit
	if ok, _ := cb.CanTrade(); !ok {
		t.Fatal("breaker tripped before day rollover unexpectedly")
	}

	clock = day1.Add(2 * time.Hour) // crosses into 2026-07-30 UTC
	cb.Update(dec("940"))           // first reading of the new day becomes its baseline, so daily PnL is 0
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("breaker should reset its daily baseline on UTC day rollover")
	}
}

func TestCircuitBreakerIgnoresNegativeEquityReading(t *testing.T) {
	now := time.Date(2026, 7, 29, 12, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(dec("100"), dec("0.5"), fixedClock(now))
	cb.Initialize(dec("1000"))

	cb.Update(decimal.NewFromInt(-1))
	if ok, _ := cb.CanTrade(); !ok {
		t.Error("a negative equity reading should be ignored, not tripped on")
	}
}

func TestCircuitBreakerEmergencyStop(t *testing.T) {
	cb := NewCircuitBreaker(dec("100"), dec("0.5"), nil)
	cb.Initialize(dec("1000"))

	cb.EmergencyStop("operator halt")
	ok, reason := cb.CanTrade()
	if ok {
		t.Error("breaker should be tripped after EmergencyStop")
	}
	if reason != "operator halt" {
		t.Errorf("reason = %q, want %q", reason, "operator halt")
	}
}
