// Package classification reads HTS schedule rows from Postgres.
package classification

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/clearlane/htsnav/internal/domain"
)

// Repo implements the structured code lookup over the hts_codes table.
type Repo struct {
	db *sql.DB
}

// New creates a classification repository.
func New(db *sql.DB) *Repo {
	return &Repo{db: db}
}

const lookupQuery = `
SELECT hts_number, description,
	general_rate_of_duty, specific_rate_of_duty, column_2_rate_of_duty,
	spec_level_1, spec_level_2, spec_level_3, spec_level_4, spec_level_5,
	spec_level_6, spec_level_7, spec_level_8, spec_level_9, spec_level_10,
	text
FROM hts_codes
WHERE hts_digits LIKE $1 || '%'
ORDER BY hts_digits
`

// LookupByPrefix returns all schedule rows whose digit form starts with the
// given prefix. The prefix is normalized (dots and whitespace stripped)
// before matching. No rows is not an error; callers decide whether an empty
// result matters.
func (r *Repo) LookupByPrefix(ctx context.Context, prefix string) ([]domain.ClassificationRecord, error) {
	digits := domain.NormalizeHTSDigits(prefix)
	if digits == "" {
		return nil, fmt.Errorf("empty classification prefix: %w", domain.ErrValidation)
	}

	rows, err := r.db.QueryContext(ctx, lookupQuery, digits)
	if err != nil {
		return nil, fmt.Errorf("query hts_codes by prefix %q: %w", digits, err)
	}
	defer rows.Close()

	var records []domain.ClassificationRecord
	for rows.Next() {
		var (
			number, description                sql.NullString
			generalRate, specificRate, column2 sql.NullString
			levels                             [10]sql.NullString
			freeText                           sql.NullString
		)
		if err := rows.Scan(
			&number, &description,
			&generalRate, &specificRate, &column2,
			&levels[0], &levels[1], &levels[2], &levels[3], &levels[4],
			&levels[5], &levels[6], &levels[7], &levels[8], &levels[9],
			&freeText,
		); err != nil {
			return nil, fmt.Errorf("scan hts_codes row: %w", err)
		}

		records = append(records, domain.ClassificationRecord{
			Code:         domain.NormalizeHTSDigits(number.String),
			Description:  description.String,
			SpecLevels:   collapseLevels(levels[:]),
			GeneralRate:  generalRate.String,
			SpecificRate: specificRate.String,
			Column2Rate:  column2.String,
			FreeText:     freeText.String,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate hts_codes rows: %w", err)
	}
	return records, nil
}

// collapseLevels drops empty and "nan" placeholder levels, keeping the
// outer-to-inner order of the populated ones. Source data uses the literal
// string "nan" for missing levels.
func collapseLevels(levels []sql.NullString) []string {
	var out []string
	for _, l := range levels {
		v := strings.TrimSpace(l.String)
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		out = append(out, v)
	}
	return out
}
