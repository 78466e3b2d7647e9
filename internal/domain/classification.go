package domain

import (
	"fmt"
	"strings"
)

// ClassificationRecord is a validated HTS classification row. Immutable once
// produced by a lookup; duty rate fields keep the schedule's raw notation.
type ClassificationRecord struct {
	Code         string   // 10 normalized digits
	Description  string
	SpecLevels   []string // hierarchical classification text, outer to inner
	GeneralRate  string
	SpecificRate string
	Column2Rate  string
	FreeText     string
}

// NormalizeHTSDigits strips dots and whitespace from an HTS code or prefix.
func NormalizeHTSDigits(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, ".", "")
	return s
}

// IsDigitQuery reports whether the query should hit the structured code lookup
// (all digits after normalization) rather than free-text retrieval.
func IsDigitQuery(s string) bool {
	s = NormalizeHTSDigits(s)
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Validate checks the record shape once at the data-access boundary.
// Internal logic never re-validates.
func (c *ClassificationRecord) Validate() error {
	if c.Code == "" {
		return fmt.Errorf("classification code is empty: %w", ErrValidation)
	}
	for _, r := range c.Code {
		if r < '0' || r > '9' {
			return fmt.Errorf("classification code %q is not numeric: %w", c.Code, ErrValidation)
		}
	}
	return nil
}
