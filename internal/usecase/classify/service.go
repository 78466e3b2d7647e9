// Package classify resolves user queries into HTS classification candidates.
package classify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clearlane/htsnav/internal/domain"
)

// CodeLookup is the structured schedule access the service needs (ISP).
type CodeLookup interface {
	LookupByPrefix(ctx context.Context, prefix string) ([]domain.ClassificationRecord, error)
}

// Searcher is the free-text retrieval access the service needs (ISP).
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Evidence, error)
}

const maxSpecLevels = 10

// Metadata keys of schedule-derived passages in the vector index.
const (
	metaCode         = "HTS_Number"
	metaDescription  = "Description"
	metaGeneralRate  = "General_Rate_of_Duty"
	metaSpecificRate = "Specific_Rate_of_Duty"
	metaColumn2Rate  = "Column_2_Rate_of_Duty"
	metaLevelPrefix  = "Spec_Level_"
)

// Service routes a query to the structured code lookup when it is all digits,
// and to hybrid retrieval otherwise.
type Service struct {
	codes  CodeLookup
	search Searcher
	logger *zap.Logger
}

// New creates a classification service.
func New(codes CodeLookup, search Searcher, logger *zap.Logger) *Service {
	return &Service{codes: codes, search: search, logger: logger}
}

// Candidates returns classification records matching the query, best first.
// A digit query (dots and whitespace ignored) is a prefix match against the
// schedule; anything else goes through retrieval and the passage metadata is
// mapped back into records.
func (s *Service) Candidates(ctx context.Context, query string, limit int) ([]domain.ClassificationRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}

	if domain.IsDigitQuery(query) {
		records, err := s.codes.LookupByPrefix(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("code lookup: %w", err)
		}
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		return records, nil
	}

	evidence, err := s.search.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval lookup: %w", err)
	}
	return s.fromEvidence(evidence), nil
}

// BestMatch returns the top candidate for the query, or ErrNotFound.
func (s *Service) BestMatch(ctx context.Context, query string) (domain.ClassificationRecord, error) {
	records, err := s.Candidates(ctx, query, 1)
	if err != nil {
		return domain.ClassificationRecord{}, err
	}
	if len(records) == 0 {
		return domain.ClassificationRecord{}, fmt.Errorf("no classification for %q: %w", query, domain.ErrNotFound)
	}
	return records[0], nil
}

// fromEvidence maps retrieval metadata into classification records. Passages
// without a code are narrative text around the schedule, not candidates.
func (s *Service) fromEvidence(evidence []domain.Evidence) []domain.ClassificationRecord {
	records := make([]domain.ClassificationRecord, 0, len(evidence))
	for _, ev := range evidence {
		code := domain.NormalizeHTSDigits(ev.Meta[metaCode])
		if code == "" {
			continue
		}
		rec := domain.ClassificationRecord{
			Code:         code,
			Description:  ev.Meta[metaDescription],
			SpecLevels:   specLevels(ev.Meta),
			GeneralRate:  ev.Meta[metaGeneralRate],
			SpecificRate: ev.Meta[metaSpecificRate],
			Column2Rate:  ev.Meta[metaColumn2Rate],
			FreeText:     ev.Content,
		}
		if err := rec.Validate(); err != nil {
			s.logger.Warn("Dropping malformed classification payload",
				zap.String("id", ev.ID),
				zap.Error(err))
			continue
		}
		records = append(records, rec)
	}
	return records
}

// specLevels collects Spec_Level_1..10 in order, dropping empty and "nan"
// placeholders the source spreadsheets use for missing levels.
func specLevels(meta map[string]string) []string {
	var levels []string
	for i := 1; i <= maxSpecLevels; i++ {
		v := strings.TrimSpace(meta[metaLevelPrefix+strconv.Itoa(i)])
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		levels = append(levels, v)
	}
	return levels
}
