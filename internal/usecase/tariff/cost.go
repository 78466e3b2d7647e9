package tariff

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

// Fees is the fixed per-entry fee schedule.
type Fees struct {
	MPF float64 // merchandise processing fee, applies to every entry
	HMF float64 // harbor maintenance fee, ocean entries only
}

// Calculator computes landed cost from a resolved duty and entry context.
type Calculator struct {
	resolver Resolver
	fees     Fees
	logger   *zap.Logger
}

// NewCalculator creates a cost calculator.
func NewCalculator(resolver Resolver, fees Fees, logger *zap.Logger) *Calculator {
	return &Calculator{resolver: resolver, fees: fees, logger: logger}
}

// TotalCost resolves the duty for the context and aggregates fees.
func (c *Calculator) TotalCost(ctx context.Context, tc domain.TariffContext) (domain.CostBreakdown, error) {
	if err := tc.Validate(); err != nil {
		return domain.CostBreakdown{}, err
	}

	duty, err := c.resolver.Resolve(ctx, tc.Classification, tc.Country)
	if err != nil {
		return domain.CostBreakdown{}, fmt.Errorf("resolve duty: %w", err)
	}

	rate := c.parseRate(duty.Rate)

	dutyAmount := 0.0
	if rate > 0 {
		dutyAmount = tc.BaseCost * rate / 100
	}

	total := tc.BaseCost + dutyAmount
	fees := []string{"MPF"}
	total += c.fees.MPF
	if hasOcean(tc.TransportModes) {
		total += c.fees.HMF
		fees = append(fees, "HMF")
	}

	rateLabel := "Free"
	if rate > 0 {
		rateLabel = strconv.FormatFloat(rate, 'f', -1, 64) + "%"
	}

	return domain.CostBreakdown{
		Country:     tc.Country,
		BaseCost:    tc.BaseCost,
		TariffRate:  rateLabel,
		RatePercent: rate,
		DutyAmount:  round2(dutyAmount),
		AppliedFees: fees,
		TotalCost:   round2(total),
	}, nil
}

// parseRate turns a duty literal into a percentage. "Free" and unparseable
// notation both come out as 0; the latter is logged because landed cost must
// still be computable.
func (c *Calculator) parseRate(raw string) float64 {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || strings.Contains(s, "free") {
		return 0
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(strings.ReplaceAll(s, "%", "")), 64)
	if err != nil {
		c.logger.Warn("Unrecognized tariff rate format", zap.String("rate", raw))
		return 0
	}
	return rate
}

func hasOcean(modes []string) bool {
	for _, m := range modes {
		if strings.EqualFold(strings.TrimSpace(m), "ocean") {
			return true
		}
	}
	return false
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
