// Package tariff resolves duty rates and computes landed cost.
package tariff

import (
	"regexp"
	"strings"
)

// ProgramDuty pairs a program code with the duty text preceding its
// parenthesized code list.
type ProgramDuty struct {
	Program  string
	DutyInfo string
}

// ParsedDuty is the structured form of a raw duty-rate string.
type ParsedDuty struct {
	Codes   []string // unique accepted codes, in first-seen order
	Details []ProgramDuty
}

// codeShape accepts the three program-code forms seen in schedule notation:
// 1-3 uppercase letters with optional trailing +, a single alphanumeric with
// trailing *, or a 10-digit HTS heading range.
var codeShape = regexp.MustCompile(`^(?:[A-Z]{1,3}\+?|\w\*|\d{4}\.\d{2}\.\d{2}(?:-\d{4}\.\d{2}\.\d{2})?)$`)

// ParseDutyNotation scans a raw duty-rate string for <prefix>(<code-list>)
// segments and extracts program codes with their duty fragments. Codes that
// do not match a known shape are silently dropped. Malformed input degrades
// to an empty result; this function never fails.
func ParseDutyNotation(raw string) ParsedDuty {
	var parsed ParsedDuty
	seen := make(map[string]bool)

	rest := raw
	for {
		open := strings.IndexByte(rest, '(')
		if open < 0 {
			break
		}
		closing := strings.IndexByte(rest[open:], ')')
		if closing < 0 {
			break
		}
		closing += open

		prefix := strings.TrimSpace(rest[:open])
		inside := rest[open+1 : closing]
		rest = rest[closing+1:]

		dutyInfo := prefix
		if dutyInfo == "" {
			dutyInfo = "Free"
		}

		for _, code := range strings.Split(inside, ",") {
			code = strings.TrimSpace(code)
			if code == "" || !codeShape.MatchString(code) {
				continue
			}
			if !seen[code] {
				seen[code] = true
				parsed.Codes = append(parsed.Codes, code)
			}
			parsed.Details = append(parsed.Details, ProgramDuty{Program: code, DutyInfo: dutyInfo})
		}
	}

	return parsed
}
