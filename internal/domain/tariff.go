package domain

import (
	"fmt"
	"time"
)

// TariffContext is the per-request input to tariff resolution. Owned by one
// resolution call and never mutated after construction.
type TariffContext struct {
	Classification ClassificationRecord
	Country        string
	BaseCost       float64
	TransportModes []string
	EntryDate      time.Time
}

// Validate checks the context shape at the service boundary.
func (c *TariffContext) Validate() error {
	if err := c.Classification.Validate(); err != nil {
		return err
	}
	if c.Country == "" {
		return fmt.Errorf("country is required: %w", ErrValidation)
	}
	if c.BaseCost < 0 {
		return fmt.Errorf("base cost must not be negative: %w", ErrValidation)
	}
	return nil
}

// ResolvedDuty is the outcome of tariff resolution: either a literal rate
// string (general or column-2 branch) or a matched program with its duty
// fragment.
type ResolvedDuty struct {
	ProgramCode string // empty unless a program matched
	Rate        string // literal rate or the program's duty fragment
}

// IsProgram reports whether a special-duty program matched.
func (d ResolvedDuty) IsProgram() bool { return d.ProgramCode != "" }

// CostBreakdown is the landed-cost computation result. Derived on demand,
// never cached.
type CostBreakdown struct {
	Country     string   `json:"country"`
	BaseCost    float64  `json:"base_cost"`
	TariffRate  string   `json:"tariff_rate"`
	RatePercent float64  `json:"tariff_rate_percent"`
	DutyAmount  float64  `json:"duty_amount"`
	AppliedFees []string `json:"applied_fees"`
	TotalCost   float64  `json:"total_cost"`
}
