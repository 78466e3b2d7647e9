package tariff

import (
	"context"

	"github.com/clearlane/htsnav/internal/domain"
)

// ProgramRules reads duty program eligibility rules.
type ProgramRules interface {
	// FindByCodes returns the rules matching any of the codes, in stable
	// declaration order.
	FindByCodes(ctx context.Context, codes []string) ([]domain.DutyProgramRule, error)
}

// Resolver determines the applicable duty for a classification and country.
type Resolver interface {
	Resolve(ctx context.Context, c domain.ClassificationRecord, country string) (domain.ResolvedDuty, error)
}
