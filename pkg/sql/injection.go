package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a literal that looks like an injection payload.
type InjectionCheckResult struct {
	Literal     string // The unquoted literal value
	Fingerprint string // libinjection fingerprint of the detected pattern
}

// CheckLiteral runs libinjection over one string literal taken from a
// generated statement. Returns nil when the literal is clean.
//
// Example:
//
//	CheckLiteral("North")                            // nil
//	CheckLiteral("1 UNION SELECT * FROM passwords")  // Fingerprint "1UE*k" (or similar)
func CheckLiteral(value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{Literal: value, Fingerprint: string(fingerprint)}
}

// CheckLiterals returns a result for every literal that failed the check.
func CheckLiterals(values []string) []*InjectionCheckResult {
	var results []*InjectionCheckResult
	for _, v := range values {
		if r := CheckLiteral(v); r != nil {
			results = append(results, r)
		}
	}
	return results
}
