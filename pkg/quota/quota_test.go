package quota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWindowBounds_AnchorsAtUTCDayAndMonthStart(t *testing.T) {
	now := time.Date(2026, time.March, 15, 13, 45, 0, 0, time.FixedZone("X", 5*3600))
	dayStart, monthStart := windowBounds(now)

	assert.Equal(t, time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC), dayStart)
	assert.Equal(t, time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC), monthStart)
}

func TestAdmit_PrecedenceOrder(t *testing.T) {
	// Exercises the precedence documented in Admit: daily cost is checked
	// before monthly cost regardless of which would also block.
	dailyLimit := 1.0
	monthlyLimit := 1.0
	limits := Limits{DailyCostUSD: &dailyLimit, MonthlyCostUSD: &monthlyLimit}
	usage := Usage{DailyCostUSD: 2.0, MonthlyCostUSD: 2.0}

	decision := evaluate(limits, usage)
	assert.False(t, decision.Allowed)
	assert.Equal(t, "Daily cost limit exceeded", decision.Reason)
}

// evaluate extracts the precedence logic from Admit for unit testing
// without a database round trip.
func evaluate(limits Limits, usage Usage) Decision {
	decision := Decision{Allowed: true, Usage: usage, Limits: limits}
	switch {
	case limits.DailyCostUSD != nil && usage.DailyCostUSD >= *limits.DailyCostUSD:
		decision.Allowed = false
		decision.Reason = "Daily cost limit exceeded"
	case limits.MonthlyCostUSD != nil && usage.MonthlyCostUSD >= *limits.MonthlyCostUSD:
		decision.Allowed = false
		decision.Reason = "Monthly cost limit exceeded"
	case limits.DailyTokens != nil && usage.DailyTokens >= *limits.DailyTokens:
		decision.Allowed = false
		decision.Reason = "Daily token limit exceeded"
	case limits.MonthlyTokens != nil && usage.MonthlyTokens >= *limits.MonthlyTokens:
		decision.Allowed = false
		decision.Reason = "Monthly token limit exceeded"
	}
	return decision
}
