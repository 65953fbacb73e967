// Package xbrl extracts director and financial data from the inline XBRL
// (iXBRL) markup Bolagsverket returns for a filed annual report.
package xbrl

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// diacriticsFold decomposes a string to NFD, strips combining marks, and
// recomposes to NFC, turning e.g. "Åsa Öberg" into "Asa Oberg"; foldName
// then lowercases, turns hyphens into spaces and collapses whitespace. Director
// names come from two independently-OCR'd/hand-keyed sources (the scraped
// site and XBRL filings) that don't always agree on accents, so the
// dedup key needs to fold them away.
var diacriticsFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

func foldName(s string) string {
	folded, _, err := transform.String(diacriticsFold, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.ReplaceAll(folded, "-", " ")
	return strings.Join(strings.Fields(folded), " ")
}

// Field is one ix:nonNumeric or ix:nonFraction tag pulled out of the
// document, keyed by its local (namespace-stripped) XBRL field name.
type Field struct {
	Name       string
	Value      string
	ContextRef string
}

// ExtractedDirector is one director/officer candidate found in the
// document, before it is folded into a models.DirectorRecord by the
// Registry Adapter (which has the organisation number and job context
// this package intentionally doesn't need to know about).
type ExtractedDirector struct {
	FirstName      string
	LastName       string
	Role           string
	RoleNormalized string
	Confidence     float64
	SourceField    string
}

func (d ExtractedDirector) nameKey() string {
	return foldName(d.FirstName + " " + d.LastName)
}

// ExtractedFinancials is one fiscal year's headline figures pulled from
// ix:nonFraction numeric tags for a single contextRef (reporting period).
// The fiscal year itself comes from the filing's cover metadata, which
// this package does not parse; ToFinancials takes it as a parameter.
type ExtractedFinancials struct {
	Revenue         *float64
	OperatingProfit *float64
	NetProfit       *float64
	TotalAssets     *float64
	Equity          *float64
	EmployeeCount   *int
}

// Result is what ExtractFromZip/ExtractFromXHTML hand back: a best-effort
// read of a single annual report, with a confidence score the caller (the
// Registry Adapter) can compare against Config.Limits.MinConfidence before
// accepting it without a fallback pass.
type Result struct {
	Directors      []ExtractedDirector
	Financials     []ExtractedFinancials
	SignatureDate  *time.Time
	Confidence     float64
	Warnings       []string
	ProcessingTime time.Duration
}

// roleMappings mirrors the Python extractor's ROLE_MAPPINGS table,
// Swedish board/officer role strings to the fixed normalized vocabulary.
var roleMappings = map[string]string{
	"verkställande direktör":      "ceo",
	"vd":                          "ceo",
	"vice verkställande direktör": "vice_ceo",
	"vice vd":                     "vice_ceo",
	"styrelseordförande":          "board_chair",
	"styrelsens ordförande":       "board_chair",
	"ordförande":                  "board_chair",
	"styrelseledamot":             "board_member",
	"ledamot":                     "board_member",
	"styrelsesuppleant":           "board_alternate",
	"suppleant":                   "board_alternate",
	"arbetstagarrepresentant":     "employee_rep",
	"extern ledamot":              "external_member",
	"auktoriserad revisor":        "auditor_authorized",
	"godkänd revisor":             "auditor_approved",
	"huvudansvarig revisor":       "auditor_principal",
	"revisor":                     "auditor",
}

var firstNamePatterns = []string{
	"UnderskriftFaststallelseintygForetradareTilltalsnamn",
	"UnderskriftHandlingTilltalsnamn",
	"ForetradareTilltalsnamn",
	"Tilltalsnamn",
}

var lastNamePatterns = []string{
	"UnderskriftFaststallelseintygForetradareEfternamn",
	"UnderskriftHandlingEfternamn",
	"ForetradareEfternamn",
	"Efternamn",
}

var rolePatterns = []string{
	"UnderskriftFaststallelseintygForetradareForetradarroll",
	"UnderskriftHandlingForetradarroll",
	"ForetradareForetradarroll",
	"Foretradarroll",
}

var datePatterns = []string{
	"UnderskriftFastallelseintygDatum",
	"UnderskriftDatum",
	"UndertecknandeDatum",
}

// financialTags maps an iXBRL numeric tag's local name to the
// ExtractedFinancials field it populates.
var financialTags = map[string]string{
	"Nettoomsattning":       "revenue",
	"RorelseresultatEfterFinansiellaPoster": "operating_profit",
	"AretsResultat":         "net_profit",
	"Tillgangar":            "total_assets",
	"EgetKapital":           "equity",
	"MedelantalAnstallda":   "employee_count",
}

var regexDirectorPattern = regexp.MustCompile(
	`>([A-ZÅÄÖ][a-zåäöéè]+(?:\s+[A-ZÅÄÖ][a-zåäöéè]+){1,3})\s*,?\s*(Styrelse(?:ledamot|ns ordförande|suppleant)?|VD|Verkställande direktör)[^<]*<`)

var regexFieldPattern = regexp.MustCompile(`(?i)<ix:nonNumeric[^>]*name="([^"]+)"[^>]*>([^<]+)</ix:nonNumeric>`)

// ExtractFromZip opens a Bolagsverket annual-report ZIP and extracts from
// the first XHTML/HTML/XML member it contains.
func ExtractFromZip(zipBytes []byte, minConfidence float64) (Result, error) {
	start := time.Now()
	zr, err := zip.NewReader(bytes.NewReader(zipBytes), int64(len(zipBytes)))
	if err != nil {
		return Result{Warnings: []string{fmt.Sprintf("invalid zip file: %v", err)}}, nil
	}

	var xhtml []byte
	for _, f := range zr.File {
		lower := strings.ToLower(f.Name)
		if strings.HasSuffix(lower, ".xhtml") || strings.HasSuffix(lower, ".html") || strings.HasSuffix(lower, ".xml") {
			rc, err := f.Open()
			if err != nil {
				return Result{}, fmt.Errorf("open %s in report zip: %w", f.Name, err)
			}
			content, err := io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return Result{}, fmt.Errorf("read %s in report zip: %w", f.Name, err)
			}
			xhtml = content
			break
		}
	}

	if xhtml == nil {
		return Result{Warnings: []string{"no xhtml/xml file found in report zip"}}, nil
	}

	result := extractFromXHTML(xhtml, minConfidence)
	result.ProcessingTime = time.Since(start)
	return result, nil
}

// ExtractFromXHTML extracts directly from an already-unpacked XHTML
// document, for callers (and tests) that don't start from a ZIP.
func ExtractFromXHTML(xhtml []byte, minConfidence float64) Result {
	start := time.Now()
	result := extractFromXHTML(xhtml, minConfidence)
	result.ProcessingTime = time.Since(start)
	return result
}

func extractFromXHTML(xhtml []byte, minConfidence float64) Result {
	var result Result

	fields, warning := extractFields(xhtml)
	if warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	if len(fields) == 0 {
		result.Warnings = append(result.Warnings, "no XBRL fields found in document")
		result.Directors = extractDirectorsRegex(xhtml)
	} else {
		result.Directors = directorsFromFields(fields)
		result.Financials = financialsFromFields(fields)
		result.SignatureDate = signatureDateFromFields(fields)
	}

	result.Confidence = overallConfidence(result.Directors)

	filtered := result.Directors[:0]
	for _, d := range result.Directors {
		if d.Confidence >= minConfidence {
			filtered = append(filtered, d)
		}
	}
	result.Directors = dedupeDirectors(filtered)

	return result
}

// xbrlDoc/xbrlElem are a minimal recursive-descent shape sufficient to
// walk every element looking for ix:nonNumeric/ix:nonFraction tags,
// regardless of how deeply the taxonomy nests them.
type xbrlElem struct {
	XMLName    xml.Name
	Attrs      []xml.Attr `xml:",any,attr"`
	Content    string     `xml:",chardata"`
	Children   []xbrlElem `xml:",any"`
}

func (e xbrlElem) attr(local string) (string, bool) {
	for _, a := range e.Attrs {
		if a.Name.Local == local {
			return a.Value, true
		}
	}
	return "", false
}

func (e xbrlElem) text() string {
	var b strings.Builder
	b.WriteString(e.Content)
	for _, c := range e.Children {
		b.WriteString(c.text())
	}
	return strings.TrimSpace(b.String())
}

func extractFields(xhtml []byte) ([]Field, string) {
	var root xbrlElem
	decoder := xml.NewDecoder(bytes.NewReader(xhtml))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose
	decoder.Entity = xml.HTMLEntity

	if err := decoder.Decode(&root); err != nil {
		return regexFields(xhtml), fmt.Sprintf("XML parse error, falling back to regex: %v", err)
	}

	var fields []Field
	walkElem(root, &fields)
	return fields, ""
}

func walkElem(e xbrlElem, out *[]Field) {
	local := e.XMLName.Local
	if local == "nonNumeric" || local == "nonFraction" {
		if name, ok := e.attr("name"); ok {
			if text := e.text(); text != "" {
				contextRef, _ := e.attr("contextRef")
				*out = append(*out, Field{Name: name, Value: text, ContextRef: contextRef})
			}
		}
	}
	for _, c := range e.Children {
		walkElem(c, out)
	}
}

func regexFields(xhtml []byte) []Field {
	var fields []Field
	for _, m := range regexFieldPattern.FindAllStringSubmatch(string(xhtml), -1) {
		name := m[1]
		value := strings.TrimSpace(m[2])
		if name != "" && value != "" {
			fields = append(fields, Field{Name: name, Value: value})
		}
	}
	return fields
}

func localName(field string) string {
	if i := strings.LastIndex(field, ":"); i >= 0 {
		return field[i+1:]
	}
	return field
}

func directorsFromFields(fields []Field) []ExtractedDirector {
	var firstNames, lastNames, roles []Field

	for _, f := range fields {
		name := localName(f.Name)
		switch {
		case containsAny(name, firstNamePatterns):
			firstNames = append(firstNames, f)
		case containsAny(name, lastNamePatterns):
			lastNames = append(lastNames, f)
		case containsAny(name, rolePatterns):
			roles = append(roles, f)
		}
	}

	var directors []ExtractedDirector
	for i, first := range firstNames {
		firstName := first.Value
		var lastName string
		if i < len(lastNames) {
			lastName = lastNames[i].Value
		}

		role, roleNormalized := "", "unknown"
		if i < len(roles) {
			role = roles[i].Value
			roleNormalized = normalizeRole(role)
		}

		if firstName == "" || (lastName == "" && role == "") {
			continue
		}
		if strings.Contains(roleNormalized, "auditor") {
			continue
		}

		directors = append(directors, ExtractedDirector{
			FirstName:      firstName,
			LastName:       lastName,
			Role:           role,
			RoleNormalized: roleNormalized,
			Confidence:     directorConfidence(firstName, lastName, role),
			SourceField:    first.Name,
		})
	}
	return directors
}

func extractDirectorsRegex(xhtml []byte) []ExtractedDirector {
	var directors []ExtractedDirector
	for _, m := range regexDirectorPattern.FindAllStringSubmatch(string(xhtml), -1) {
		fullName := strings.TrimSpace(m[1])
		role := strings.TrimSpace(m[2])
		parts := strings.Fields(fullName)

		var firstName, lastName string
		if len(parts) > 0 {
			firstName = parts[0]
		}
		if len(parts) > 1 {
			lastName = strings.Join(parts[1:], " ")
		}

		directors = append(directors, ExtractedDirector{
			FirstName:      firstName,
			LastName:       lastName,
			Role:           role,
			RoleNormalized: normalizeRole(role),
			Confidence:     0.6,
			SourceField:    "regex",
		})
	}
	return directors
}

func financialsFromFields(fields []Field) []ExtractedFinancials {
	byContext := make(map[string]*ExtractedFinancials)
	var order []string

	for _, f := range fields {
		target, ok := financialTags[localName(f.Name)]
		if !ok {
			continue
		}

		ctx := f.ContextRef
		fin, seen := byContext[ctx]
		if !seen {
			fin = &ExtractedFinancials{}
			byContext[ctx] = fin
			order = append(order, ctx)
		}

		applyFinancialValue(fin, target, f.Value)
	}

	result := make([]ExtractedFinancials, 0, len(order))
	for _, ctx := range order {
		result = append(result, *byContext[ctx])
	}
	return result
}

func applyFinancialValue(fin *ExtractedFinancials, target, raw string) {
	cleaned := strings.NewReplacer(" ", "", " ", "", ",", ".").Replace(raw)

	if target == "employee_count" {
		n, err := strconv.Atoi(cleaned)
		if err == nil {
			fin.EmployeeCount = &n
		}
		return
	}

	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return
	}
	switch target {
	case "revenue":
		fin.Revenue = &v
	case "operating_profit":
		fin.OperatingProfit = &v
	case "net_profit":
		fin.NetProfit = &v
	case "total_assets":
		fin.TotalAssets = &v
	case "equity":
		fin.Equity = &v
	}
}

var swedishMonths = map[string]int{
	"januari": 1, "februari": 2, "mars": 3, "april": 4, "maj": 5, "juni": 6,
	"juli": 7, "augusti": 8, "september": 9, "oktober": 10, "november": 11, "december": 12,
}

var swedishDatePattern = regexp.MustCompile(`(\d{1,2})\s+(\w+)\s+(\d{4})`)

func signatureDateFromFields(fields []Field) *time.Time {
	for _, f := range fields {
		name := localName(f.Name)
		if !containsAny(name, datePatterns) {
			continue
		}
		if t, err := time.Parse("2006-01-02", f.Value); err == nil {
			return &t
		}
		if m := swedishDatePattern.FindStringSubmatch(f.Value); m != nil {
			day, _ := strconv.Atoi(m[1])
			month, ok := swedishMonths[strings.ToLower(m[2])]
			year, _ := strconv.Atoi(m[3])
			if ok && day > 0 && year > 0 {
				t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
				return &t
			}
		}
	}
	return nil
}

func normalizeRole(role string) string {
	lower := strings.ToLower(strings.TrimSpace(role))
	if normalized, ok := roleMappings[lower]; ok {
		return normalized
	}
	for pattern, normalized := range roleMappings {
		if strings.Contains(lower, pattern) {
			return normalized
		}
	}
	return "unknown"
}

func directorConfidence(firstName, lastName, role string) float64 {
	confidence := 0.5
	if firstName != "" && lastName != "" {
		confidence += 0.25
	}
	if normalizeRole(role) != "unknown" {
		confidence += 0.2
	}
	if firstName != "" && len(firstName) >= 2 && strings.ToUpper(firstName[:1]) == firstName[:1] {
		confidence += 0.05
	}
	if confidence > 1.0 {
		confidence = 1.0
	}
	return confidence
}

func overallConfidence(directors []ExtractedDirector) float64 {
	if len(directors) == 0 {
		return 0.0
	}

	var sum float64
	roles := make(map[string]bool)
	for _, d := range directors {
		sum += d.Confidence
		roles[d.RoleNormalized] = true
	}
	avg := sum / float64(len(directors))

	if roles["ceo"] {
		avg += 0.1
	}
	if roles["board_chair"] {
		avg += 0.1
	}
	if roles["board_member"] {
		avg += 0.05
	}
	if len(directors) < 2 {
		avg *= 0.8
	}
	if len(directors) > 15 {
		avg *= 0.7
	}
	if avg > 1.0 {
		avg = 1.0
	}
	return avg
}

func dedupeDirectors(directors []ExtractedDirector) []ExtractedDirector {
	seen := make(map[string]ExtractedDirector)
	var order []string
	for _, d := range directors {
		key := d.nameKey()
		if existing, ok := seen[key]; !ok || d.Confidence > existing.Confidence {
			if !ok {
				order = append(order, key)
			}
			seen[key] = d
		}
	}

	result := make([]ExtractedDirector, 0, len(order))
	for _, key := range order {
		result = append(result, seen[key])
	}
	return result
}

// ToFinancials converts an extracted fiscal year's figures into the
// registry's canonical shape. fiscalYear/periodStart/periodEnd come from
// the filing's cover metadata, which this package does not parse.
func (f ExtractedFinancials) ToFinancials(fiscalYear int, periodStart, periodEnd time.Time) models.Financials {
	return models.Financials{
		FiscalYear:      fiscalYear,
		PeriodStart:     periodStart,
		PeriodEnd:       periodEnd,
		Revenue:         f.Revenue,
		OperatingProfit: f.OperatingProfit,
		NetProfit:       f.NetProfit,
		TotalAssets:     f.TotalAssets,
		Equity:          f.Equity,
		EmployeeCount:   f.EmployeeCount,
		Currency:        "SEK",
	}
}

var normalizedRoleByString = map[string]models.NormalizedRole{
	"ceo":                 models.RoleCEO,
	"vice_ceo":            models.RoleViceCEO,
	"board_chair":         models.RoleBoardChair,
	"board_member":        models.RoleBoardMember,
	"board_alternate":     models.RoleBoardAlternate,
	"employee_rep":        models.RoleEmployeeRep,
	"external_member":     models.RoleExternalMember,
	"auditor":             models.RoleAuditor,
	"auditor_principal":   models.RoleAuditorPrincipal,
	"auditor_approved":    models.RoleAuditorApproved,
	"auditor_authorized":  models.RoleAuditorAuthorized,
}

// ToDirectorRecord converts an extracted director into the registry's
// canonical shape. Callers (the Registry stage handler) supply the
// organisation number, since this package deliberately knows nothing
// about job context.
func (d ExtractedDirector) ToDirectorRecord(orgNr models.OrgNumber) models.DirectorRecord {
	role, ok := normalizedRoleByString[d.RoleNormalized]
	if !ok {
		role = models.RoleUnknown
	}

	name := strings.TrimSpace(d.FirstName + " " + d.LastName)
	return models.DirectorRecord{
		OrgNr:          orgNr,
		PersonType:     models.PersonTypePerson,
		Name:           name,
		NormalizedRole: role,
		RawRole:        d.Role,
	}
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
