package tariff

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

// Service resolves duty rates. Resolution is a pure function of
// (classification, country); the only external input is the read-mostly
// program rule table.
type Service struct {
	rules   ProgramRules
	column2 map[string]struct{}
	logger  *zap.Logger
}

// NewService creates a resolver. column2Countries is the fixed embargo list
// from configuration.
func NewService(rules ProgramRules, column2Countries []string, logger *zap.Logger) *Service {
	set := make(map[string]struct{}, len(column2Countries))
	for _, c := range column2Countries {
		set[strings.TrimSpace(c)] = struct{}{}
	}
	return &Service{rules: rules, column2: set, logger: logger}
}

// Resolve evaluates the three branches in strict order: embargo, program,
// general. The first branch that produces a duty wins.
func (s *Service) Resolve(ctx context.Context, c domain.ClassificationRecord, country string) (domain.ResolvedDuty, error) {
	country = strings.TrimSpace(country)
	if country == "" {
		return domain.ResolvedDuty{}, fmt.Errorf("country is required: %w", domain.ErrValidation)
	}

	if _, embargoed := s.column2[country]; embargoed {
		// an embargoed country with no column-2 rate means the reference
		// data is corrupt, so this is a hard error rather than a fallback
		if c.Column2Rate == "" {
			return domain.ResolvedDuty{}, fmt.Errorf("classification %s, country %s: %w",
				c.Code, country, domain.ErrMissingRate)
		}
		return domain.ResolvedDuty{Rate: c.Column2Rate}, nil
	}

	if c.SpecificRate != "" {
		if duty, ok := s.resolveProgram(ctx, c, country); ok {
			return duty, nil
		}
	}

	return domain.ResolvedDuty{Rate: c.GeneralRate}, nil
}

// resolveProgram runs the program branch. Any miss (no parseable codes, no
// matching rules, no country-eligible rule, lookup failure) reports !ok and
// the caller falls through to the general rate.
func (s *Service) resolveProgram(ctx context.Context, c domain.ClassificationRecord, country string) (domain.ResolvedDuty, bool) {
	parsed := ParseDutyNotation(c.SpecificRate)
	if len(parsed.Codes) == 0 {
		s.logger.Debug("No program codes in specific rate",
			zap.String("classification", c.Code),
			zap.String("specific_rate", c.SpecificRate))
		return domain.ResolvedDuty{}, false
	}

	rules, err := s.rules.FindByCodes(ctx, parsed.Codes)
	if err != nil {
		s.logger.Error("Program rule lookup failed",
			zap.String("classification", c.Code),
			zap.Strings("codes", parsed.Codes),
			zap.Error(err))
		return domain.ResolvedDuty{}, false
	}
	if len(rules) == 0 {
		s.logger.Debug("No program rules match parsed codes",
			zap.Strings("codes", parsed.Codes))
		return domain.ResolvedDuty{}, false
	}

	// rules arrive in declaration order; the first country-eligible rule
	// with a parsed fragment wins
	for _, rule := range rules {
		if !rule.EligibleFor(country) {
			continue
		}
		for _, pd := range parsed.Details {
			if pd.Program == rule.ProgramCode {
				return domain.ResolvedDuty{ProgramCode: pd.Program, Rate: pd.DutyInfo}, true
			}
		}
	}
	return domain.ResolvedDuty{}, false
}
