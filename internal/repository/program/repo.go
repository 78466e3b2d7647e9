// Package program reads duty program eligibility rules from Postgres.
package program

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/clearlane/htsnav/internal/domain"
)

// Repo implements the duty program rule lookup over the tariff_programs table.
type Repo struct {
	db *sql.DB
}

// New creates a program repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

// FindByCodes returns the rules whose program code matches any of the given
// codes, ordered by declaration (id). The caller relies on this order for
// deterministic first-match resolution. Codes not present in the table are
// silently absent from the result.
func (r *Repo) FindByCodes(ctx context.Context, codes []string) ([]domain.DutyProgramRule, error) {
	if len(codes) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(codes))
	args := make([]any, len(codes))
	for i, c := range codes {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = c
	}

	query := fmt.Sprintf(`
SELECT id, tariff_program, "group", countries, description
FROM tariff_programs
WHERE tariff_program IN (%s)
ORDER BY id
`, strings.Join(placeholders, ", "))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tariff_programs: %w", err)
	}
	defer rows.Close()

	var rules []domain.DutyProgramRule
	for rows.Next() {
		var (
			id                 int64
			code, group        string
			countries, descrip sql.NullString
		)
		if err := rows.Scan(&id, &code, &group, &countries, &descrip); err != nil {
			return nil, fmt.Errorf("scan tariff_programs row: %w", err)
		}

		rules = append(rules, domain.DutyProgramRule{
			ID:          id,
			ProgramCode: code,
			Group:       group,
			Countries:   parseCountries(countries.String),
			Description: descrip.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tariff_programs rows: %w", err)
	}
	return rules, nil
}

// parseCountries splits the semicolon-separated country list into a set.
func parseCountries(raw string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, c := range strings.Split(raw, ";") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		set[c] = struct{}{}
	}
	return set
}
