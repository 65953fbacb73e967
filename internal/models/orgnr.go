package models

import (
	"fmt"
	"regexp"
	"strings"
)

// OrgNumber is a canonicalized Swedish organisation number: exactly 10
// ASCII digits, no dash, no spaces.
type OrgNumber string

var orgNumberPattern = regexp.MustCompile(`^\d{10}$`)

// CanonicalizeOrgNumber strips dashes, spaces, and non-breaking spaces from
// a raw organisation number string and validates the 10-digit shape.
func CanonicalizeOrgNumber(raw string) (OrgNumber, error) {
	cleaned := strings.NewReplacer("-", "", " ", "", " ", "").Replace(raw)
	if !orgNumberPattern.MatchString(cleaned) {
		return "", fmt.Errorf("invalid organisation number %q: expected 10 digits", raw)
	}
	return OrgNumber(cleaned), nil
}

// String returns the canonical 10-digit form.
func (o OrgNumber) String() string {
	return string(o)
}

// Dashed returns the conventional NNNNNN-NNNN display form.
func (o OrgNumber) Dashed() string {
	s := string(o)
	if len(s) != 10 {
		return s
	}
	return s[:6] + "-" + s[6:]
}
