// Package budget enforces per-tenant monthly spend caps. Spend is the sum
// of completed request costs recorded in the request log, so enforcement
// lags a request behind reality; the cap is a cost control, not an exact
// ledger.
package budget

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rudironsoni/Synaxis-sub005/models"
	"github.com/rudironsoni/Synaxis-sub005/repositories"
)

// ReasonBudgetExceeded marks a denial caused by the monthly cap.
const ReasonBudgetExceeded = "budget_exceeded"

// Decision reports the outcome of a budget check.
type Decision struct {
	// Allowed is true when the request may proceed.
	Allowed bool

	// Spend is the tenant's month-to-date completed spend.
	Spend decimal.Decimal

	// Limit is the tenant's monthly cap; zero means uncapped.
	Limit decimal.Decimal

	// Reason is set when the request was denied.
	Reason string

	// FailOpen marks a decision made while the spend store was
	// unreachable.
	FailOpen bool
}

// Service checks tenant spend against monthly budgets.
type Service struct {
	repo   repositories.RequestLogRepository
	logger *zap.Logger
	nowFn  func() time.Time
}

// NewService creates a new budget service.
func NewService(repo repositories.RequestLogRepository, logger *zap.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
		nowFn:  time.Now,
	}
}

// CheckBudget compares the tenant's month-to-date spend against its cap.
// Tenants without a configured budget are always allowed. If the spend
// store is unreachable the check fails open and logs, matching the quota
// tracker's availability-over-enforcement policy.
func (s *Service) CheckBudget(ctx context.Context, tenant *models.Tenant) Decision {
	if !tenant.HasBudget() {
		return Decision{Allowed: true}
	}

	spend, err := s.repo.MonthlySpend(ctx, tenant.ID, s.monthStart())
	if err != nil {
		s.logger.Warn("budget store unreachable, failing open",
			zap.String("tenant", tenant.Key),
			zap.Error(err))
		return Decision{Allowed: true, Limit: tenant.MonthlyBudget, FailOpen: true}
	}

	if spend.GreaterThanOrEqual(tenant.MonthlyBudget) {
		s.logger.Info("tenant over monthly budget",
			zap.String("tenant", tenant.Key),
			zap.String("spend", spend.String()),
			zap.String("budget", tenant.MonthlyBudget.String()))
		return Decision{
			Allowed: false,
			Spend:   spend,
			Limit:   tenant.MonthlyBudget,
			Reason:  ReasonBudgetExceeded,
		}
	}

	return Decision{Allowed: true, Spend: spend, Limit: tenant.MonthlyBudget}
}

// monthStart returns midnight UTC on the first of the current month.
func (s *Service) monthStart() time.Time {
	now := s.nowFn().UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// CostOf computes the decimal cost of a completed request on the given
// route. A per-model override prices prompt and completion tokens
// separately; otherwise the provider's flat rate covers the token total.
// Free-tier routes with no configured rate cost zero.
func CostOf(provider *models.ProviderConfig, modelPath string, promptTokens, completionTokens int) decimal.Decimal {
	if mc := provider.CostFor(modelPath); mc != nil {
		in := decimal.NewFromFloat(mc.InputPerToken).Mul(decimal.NewFromInt(int64(promptTokens)))
		out := decimal.NewFromFloat(mc.OutputPerToken).Mul(decimal.NewFromInt(int64(completionTokens)))
		return in.Add(out)
	}

	total := decimal.NewFromInt(int64(promptTokens + completionTokens))
	return decimal.NewFromFloat(provider.CostPerToken).Mul(total)
}
