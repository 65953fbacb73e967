package scraped

import (
	"strconv"
	"strings"
	"time"
)

// parseBirthDate parses the "DD.MM.YYYY" format allabolag.se's company
// pages use for a board member's birth date (the person page itself uses
// "YYYY-MM-DD", see parsePersonBirthDate).
func parseBirthDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return nil
	}
	day, err1 := strconv.Atoi(parts[0])
	month, err2 := strconv.Atoi(parts[1])
	year, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return nil
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	return &t
}

// parseSwedishDate parses either "YYYY-MM-DD" or "DD.MM.YYYY".
func parseSwedishDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if strings.Contains(s, "-") {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return &t
		}
		return nil
	}
	if strings.Contains(s, ".") {
		return parseBirthDate(s)
	}
	return nil
}

// parseInt converts a JSON-decoded number or Swedish-formatted numeric
// string (thousands separated by non-breaking spaces, decimal comma) into
// an int, the way the site renders revenue/profit/employee counts.
func parseInt(v any) *int {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		n := int(val)
		return &n
	case string:
		cleaned := strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(val)
		if cleaned == "" {
			return nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		n := int(f)
		return &n
	default:
		return nil
	}
}
