// Package quota implements the Quota Service (C9): rolling usage counters,
// admission checks, alerts, and usage logging, grounded on
// original_source/backend/app/services/quota_service.py's exact window and
// precedence semantics.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aihub-platform/backend/pkg/metrics"
)

// Dimension names a limit axis, used to key alerts.
type Dimension string

const (
	DimensionDailyCost      Dimension = "daily_cost"
	DimensionMonthlyCost    Dimension = "monthly_cost"
	DimensionDailyTokens    Dimension = "daily_tokens"
	DimensionMonthlyTokens  Dimension = "monthly_tokens"
)

type Limits struct {
	DailyCostUSD   *float64
	MonthlyCostUSD *float64
	DailyTokens    *int
	MonthlyTokens  *int
	AlertThreshold int
}

type Usage struct {
	DailyCostUSD   float64
	MonthlyCostUSD float64
	DailyTokens    int
	MonthlyTokens  int
}

type Decision struct {
	Allowed bool
	Reason  string // set when Allowed is false: which dimension blocked
	Usage   Usage
	Limits  Limits
}

type Alert struct {
	Dimension    Dimension
	PercentUsed  float64
	IsExceeded   bool
}

// Pricer resolves cost for logging, shared with C7's pricing cache.
type Pricer interface {
	Cost(ctx context.Context, model string, promptTokens, completionTokens int) float64
}

type Service struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// windowBounds returns the UTC day-start and month-start boundaries for now,
// matching the original service's anchored windows.
func windowBounds(now time.Time) (dayStart, monthStart time.Time) {
	u := now.UTC()
	dayStart = time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	monthStart = time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return
}

// loadLimits fetches the user-scope quota if present, else the global quota.
// User scope overrides global entirely (no merge): if a user row exists its
// limits are used as-is, absent limits within it mean no bound on that
// dimension even if the global row has one.
func (s *Service) loadLimits(ctx context.Context, userID *string) (Limits, error) {
	if userID != nil {
		limits, err := s.queryQuotaRow(ctx, "user", *userID)
		if err == nil {
			return limits, nil
		}
		if err != pgx.ErrNoRows {
			return Limits{}, err
		}
	}
	limits, err := s.queryQuotaRow(ctx, "global", "")
	if err != nil {
		if err == pgx.ErrNoRows {
			return Limits{AlertThreshold: 80}, nil
		}
		return Limits{}, err
	}
	return limits, nil
}

func (s *Service) queryQuotaRow(ctx context.Context, scope, scopeID string) (Limits, error) {
	var row pgx.Row
	if scope == "global" {
		row = s.pool.QueryRow(ctx, `
			SELECT daily_cost_limit_usd, monthly_cost_limit_usd, daily_token_limit, monthly_token_limit, alert_threshold_percent
			FROM usage_quotas WHERE scope = 'global' AND scope_id IS NULL
		`)
	} else {
		row = s.pool.QueryRow(ctx, `
			SELECT daily_cost_limit_usd, monthly_cost_limit_usd, daily_token_limit, monthly_token_limit, alert_threshold_percent
			FROM usage_quotas WHERE scope = $1 AND scope_id = $2
		`, scope, scopeID)
	}

	var l Limits
	err := row.Scan(&l.DailyCostUSD, &l.MonthlyCostUSD, &l.DailyTokens, &l.MonthlyTokens, &l.AlertThreshold)
	if err != nil {
		return Limits{}, err
	}
	return l, nil
}

func (s *Service) currentUsage(ctx context.Context, userID *string, now time.Time) (Usage, error) {
	dayStart, monthStart := windowBounds(now)

	scopeFilter := ""
	args := []any{dayStart}
	if userID != nil {
		scopeFilter = " AND conversation_id IN (SELECT id FROM conversations WHERE user_id = $2)"
		args = append(args, *userID)
	}

	var u Usage
	err := s.pool.QueryRow(ctx, `
		SELECT coalesce(sum(cost_usd), 0), coalesce(sum(total_tokens), 0)
		FROM usage_logs WHERE created_at >= $1`+scopeFilter, args...).
		Scan(&u.DailyCostUSD, &u.DailyTokens)
	if err != nil {
		return Usage{}, fmt.Errorf("computing daily usage: %w", err)
	}

	args[0] = monthStart
	err = s.pool.QueryRow(ctx, `
		SELECT coalesce(sum(cost_usd), 0), coalesce(sum(total_tokens), 0)
		FROM usage_logs WHERE created_at >= $1`+scopeFilter, args...).
		Scan(&u.MonthlyCostUSD, &u.MonthlyTokens)
	if err != nil {
		return Usage{}, fmt.Errorf("computing monthly usage: %w", err)
	}

	return u, nil
}

// Admit checks whether a new call is permitted, in the precedence order
// daily cost, monthly cost, daily tokens, monthly tokens (spec §4.9). The
// first applicable limit with used >= limit blocks and short-circuits.
func (s *Service) Admit(ctx context.Context, userID *string) (Decision, error) {
	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return Decision{}, fmt.Errorf("loading quota limits: %w", err)
	}
	usage, err := s.currentUsage(ctx, userID, time.Now())
	if err != nil {
		return Decision{}, fmt.Errorf("computing current usage: %w", err)
	}

	decision := Decision{Allowed: true, Usage: usage, Limits: limits}

	var blockedDimension Dimension
	switch {
	case limits.DailyCostUSD != nil && usage.DailyCostUSD >= *limits.DailyCostUSD:
		decision.Allowed = false
		decision.Reason = "Daily cost limit exceeded"
		blockedDimension = DimensionDailyCost
	case limits.MonthlyCostUSD != nil && usage.MonthlyCostUSD >= *limits.MonthlyCostUSD:
		decision.Allowed = false
		decision.Reason = "Monthly cost limit exceeded"
		blockedDimension = DimensionMonthlyCost
	case limits.DailyTokens != nil && usage.DailyTokens >= *limits.DailyTokens:
		decision.Allowed = false
		decision.Reason = "Daily token limit exceeded"
		blockedDimension = DimensionDailyTokens
	case limits.MonthlyTokens != nil && usage.MonthlyTokens >= *limits.MonthlyTokens:
		decision.Allowed = false
		decision.Reason = "Monthly token limit exceeded"
		blockedDimension = DimensionMonthlyTokens
	}

	if !decision.Allowed {
		metrics.QuotaDenialsTotal.WithLabelValues(string(blockedDimension)).Inc()
	}

	return decision, nil
}

// Alerts returns one alert per (dimension, period) where percent_used
// reaches the alert threshold, independent of the hard Admit block.
func (s *Service) Alerts(ctx context.Context, userID *string) ([]Alert, error) {
	limits, err := s.loadLimits(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading quota limits: %w", err)
	}
	usage, err := s.currentUsage(ctx, userID, time.Now())
	if err != nil {
		return nil, fmt.Errorf("computing current usage: %w", err)
	}

	threshold := float64(limits.AlertThreshold)
	if threshold <= 0 {
		threshold = 80
	}

	var alerts []Alert
	check := func(dim Dimension, used float64, limit *float64) {
		if limit == nil || *limit <= 0 {
			return
		}
		percent := used / *limit * 100
		if percent >= threshold {
			alerts = append(alerts, Alert{Dimension: dim, PercentUsed: percent, IsExceeded: percent >= 100})
		}
	}
	checkInt := func(dim Dimension, used int, limit *int) {
		if limit == nil || *limit <= 0 {
			return
		}
		f := float64(*limit)
		check(dim, float64(used), &f)
	}

	check(DimensionDailyCost, usage.DailyCostUSD, limits.DailyCostUSD)
	check(DimensionMonthlyCost, usage.MonthlyCostUSD, limits.MonthlyCostUSD)
	checkInt(DimensionDailyTokens, usage.DailyTokens, limits.DailyTokens)
	checkInt(DimensionMonthlyTokens, usage.MonthlyTokens, limits.MonthlyTokens)

	return alerts, nil
}

// LogUsage computes cost via pricer and writes a usage_logs row.
func (s *Service) LogUsage(ctx context.Context, pricer Pricer, assistantID, conversationID, messageID *string, model string, promptTokens, completionTokens int) error {
	cost := 0.0
	if pricer != nil {
		cost = pricer.Cost(ctx, model, promptTokens, completionTokens)
	}
	totalTokens := promptTokens + completionTokens

	_, err := s.pool.Exec(ctx, `
		INSERT INTO usage_logs (assistant_id, conversation_id, message_id, model, prompt_tokens, completion_tokens, total_tokens, cost_usd)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, assistantID, conversationID, messageID, model, promptTokens, completionTokens, totalTokens, cost)
	if err != nil {
		return fmt.Errorf("logging usage: %w", err)
	}
	return nil
}
