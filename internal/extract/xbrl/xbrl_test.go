package xbrl

import (
	"strings"
	"testing"

	"github.com/ternarybob/bolagsradar/internal/models"
)

func TestExtractFromXHTMLTaggedDirectors(t *testing.T) {
	doc := `<?xml version="1.0"?>
<html xmlns:ix="http://www.xbrl.org/2013/inlineXBRL">
<body>
<ix:nonNumeric name="se-gen-base:ForetradareTilltalsnamn" contextRef="c1">Anna</ix:nonNumeric>
<ix:nonNumeric name="se-gen-base:ForetradareEfternamn" contextRef="c1">Svensson</ix:nonNumeric>
<ix:nonNumeric name="se-gen-base:Foretradarroll" contextRef="c1">Styrelseordförande</ix:nonNumeric>
<ix:nonNumeric name="se-gen-base:ForetradareTilltalsnamn" contextRef="c2">Björn</ix:nonNumeric>
<ix:nonNumeric name="se-gen-base:ForetradareEfternamn" contextRef="c2">Karlsson</ix:nonNumeric>
<ix:nonNumeric name="se-gen-base:Foretradarroll" contextRef="c2">Verkställande direktör</ix:nonNumeric>
</body>
</html>`

	result := ExtractFromXHTML([]byte(doc), 0.0)

	if len(result.Directors) != 2 {
		t.Fatalf("want 2 directors, got %d: %+v", len(result.Directors), result.Directors)
	}

	byRole := make(map[string]ExtractedDirector)
	for _, d := range result.Directors {
		byRole[d.RoleNormalized] = d
	}

	chair, ok := byRole["board_chair"]
	if !ok {
		t.Fatalf("expected a board_chair director, got %+v", result.Directors)
	}
	if chair.FirstName != "Anna" || chair.LastName != "Svensson" {
		t.Errorf("unexpected chair name: %+v", chair)
	}

	ceo, ok := byRole["ceo"]
	if !ok {
		t.Fatalf("expected a ceo director, got %+v", result.Directors)
	}
	if ceo.FirstName != "Björn" {
		t.Errorf("unexpected ceo name: %+v", ceo)
	}

	if result.Confidence <= 0 {
		t.Errorf("expected positive overall confidence, got %f", result.Confidence)
	}
}

func TestExtractFromXHTMLNoFieldsFallsBackToRegex(t *testing.T) {
	doc := `<html><body><p>Styrelsen: >Erik Lundgren, Styrelseledamot<</p></body></html>`

	result := ExtractFromXHTML([]byte(doc), 0.0)

	if len(result.Warnings) == 0 {
		t.Errorf("expected a warning when no XBRL fields are present")
	}
	if len(result.Directors) != 1 {
		t.Fatalf("want 1 regex-extracted director, got %d: %+v", len(result.Directors), result.Directors)
	}
	if result.Directors[0].RoleNormalized != "board_member" {
		t.Errorf("want board_member, got %s", result.Directors[0].RoleNormalized)
	}
}

func TestFinancialsFromFields(t *testing.T) {
	doc := `<?xml version="1.0"?>
<html xmlns:ix="http://www.xbrl.org/2013/inlineXBRL">
<body>
<ix:nonFraction name="se-gen-base:Nettoomsattning" contextRef="period1">1 234 567</ix:nonFraction>
<ix:nonFraction name="se-gen-base:AretsResultat" contextRef="period1">-50000</ix:nonFraction>
<ix:nonFraction name="se-gen-base:MedelantalAnstallda" contextRef="period1">12</ix:nonFraction>
</body>
</html>`

	result := ExtractFromXHTML([]byte(doc), 0.0)

	if len(result.Financials) != 1 {
		t.Fatalf("want 1 financials row, got %d: %+v", len(result.Financials), result.Financials)
	}

	fin := result.Financials[0]
	if fin.Revenue == nil || *fin.Revenue != 1234567 {
		t.Errorf("unexpected revenue: %+v", fin.Revenue)
	}
	if fin.NetProfit == nil || *fin.NetProfit != -50000 {
		t.Errorf("unexpected net profit: %+v", fin.NetProfit)
	}
	if fin.EmployeeCount == nil || *fin.EmployeeCount != 12 {
		t.Errorf("unexpected employee count: %+v", fin.EmployeeCount)
	}
}

func TestNormalizeRole(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"Verkställande direktör", "ceo"},
		{"VD", "ceo"},
		{"Styrelseledamot", "board_member"},
		{"Styrelsesuppleant", "board_alternate"},
		{"Auktoriserad revisor", "auditor_authorized"},
		{"something unrecognized", "unknown"},
	}

	for _, tt := range tests {
		if got := normalizeRole(tt.raw); got != tt.want {
			t.Errorf("normalizeRole(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestDedupeDirectorsKeepsHighestConfidence(t *testing.T) {
	directors := []ExtractedDirector{
		{FirstName: "Anna", LastName: "Svensson", Confidence: 0.5},
		{FirstName: "Anna", LastName: "Svensson", Confidence: 0.9},
		{FirstName: "Björn", LastName: "Karlsson", Confidence: 0.7},
	}

	deduped := dedupeDirectors(directors)
	if len(deduped) != 2 {
		t.Fatalf("want 2 unique directors, got %d", len(deduped))
	}

	for _, d := range deduped {
		if d.nameKey() == "anna svensson" && d.Confidence != 0.9 {
			t.Errorf("expected deduped Anna Svensson to keep confidence 0.9, got %f", d.Confidence)
		}
	}
}

func TestDedupeDirectorsFoldsNameVariants(t *testing.T) {
	directors := []ExtractedDirector{
		{FirstName: "Åsa", LastName: "Öberg-Lindqvist", Confidence: 0.4},
		{FirstName: "asa", LastName: "oberg lindqvist", Confidence: 0.95},
		{FirstName: "  Åsa ", LastName: "Öberg  Lindqvist", Confidence: 0.6},
	}

	deduped := dedupeDirectors(directors)
	if len(deduped) != 1 {
		t.Fatalf("want 1 unique director after diacritics/hyphen/whitespace folding, got %d", len(deduped))
	}
	if deduped[0].Confidence != 0.95 {
		t.Errorf("expected deduped director to keep highest confidence 0.95, got %f", deduped[0].Confidence)
	}
}

func TestNameKeyFoldsDiacriticsHyphensAndWhitespace(t *testing.T) {
	tests := []struct {
		d    ExtractedDirector
		want string
	}{
		{ExtractedDirector{FirstName: "Åsa", LastName: "Öberg-Lindqvist"}, "asa oberg lindqvist"},
		{ExtractedDirector{FirstName: "  Erik ", LastName: "  Lindström  "}, "erik lindstrom"},
		{ExtractedDirector{FirstName: "Jean-Paul", LastName: "Müller"}, "jean paul muller"},
	}

	for _, tt := range tests {
		if got := tt.d.nameKey(); got != tt.want {
			t.Errorf("nameKey(%q %q) = %q, want %q", tt.d.FirstName, tt.d.LastName, got, tt.want)
		}
	}
}

func TestToDirectorRecord(t *testing.T) {
	orgNr, err := models.CanonicalizeOrgNumber("556677-8899")
	if err != nil {
		t.Fatalf("canonicalize org number: %v", err)
	}

	d := ExtractedDirector{
		FirstName:      "Anna",
		LastName:       "Svensson",
		Role:           "Styrelseordförande",
		RoleNormalized: "board_chair",
	}

	record := d.ToDirectorRecord(orgNr)
	if record.OrgNr != orgNr {
		t.Errorf("expected org number to be carried through")
	}
	if record.NormalizedRole != models.RoleBoardChair {
		t.Errorf("want RoleBoardChair, got %s", record.NormalizedRole)
	}
	if record.Name != "Anna Svensson" {
		t.Errorf("unexpected name: %q", record.Name)
	}
}

func TestFromSignaturePage(t *testing.T) {
	page := strings.Join([]string{
		"Styrelsens underskrift",
		"Styrelseordförande",
		"Anna Svensson",
		"Verkställande direktör",
		"Björn Karlsson",
	}, "\n")

	directors := FromSignaturePage(page)
	if len(directors) == 0 {
		t.Fatalf("expected at least one director extracted from signature page")
	}

	for _, d := range directors {
		if d.Confidence <= 0 || d.Confidence > 1 {
			t.Errorf("confidence out of range: %f", d.Confidence)
		}
	}
}
