package domain

// DutyProgramRule is a special-duty program eligibility rule from the
// reference table. Eligibility is computed at resolution time by code+country
// membership; there is no stored link to classifications.
type DutyProgramRule struct {
	ID          int64 // declaration order, the stable tie-break key
	ProgramCode string
	Group       string
	Countries   map[string]struct{}
	Description string
}

// EligibleFor reports whether the rule covers the given country.
func (r *DutyProgramRule) EligibleFor(country string) bool {
	_, ok := r.Countries[country]
	return ok
}
