package scraped

import (
	"fmt"
	"time"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// PersonRef is one board/management role entry found on a company page,
// keyed by allabolag's internal person ID.
type PersonRef struct {
	Name        string
	BirthDate   *time.Time
	AllabolagID string
	Role        string
	RoleGroup   string // "Management", "Board", "Revision", "Other"
}

// Company is the parsed shape of an allabolag.se company page's
// __NEXT_DATA__ payload.
type Company struct {
	OrgNr               string
	Name                string
	LegalName           string
	Status              string
	StatusDate          *time.Time
	RegistrationDate    *time.Time
	CompanyType         string
	SNICode             string
	SNIName             string
	Municipality        string
	County              string
	ParentOrgNr         string
	ParentName          string
	Revenue             *int // KSEK
	Profit              *int // KSEK
	Employees           *int
	AllabolagCompanyID  string
	Persons             []PersonRef
}

// ParseCompany extracts a Company from a company page's raw HTML.
func ParseCompany(html string) (*Company, error) {
	data, err := extractNextData(html)
	if err != nil {
		return nil, err
	}

	props := pageProps(data)
	if props == nil {
		return nil, fmt.Errorf("scraped: __NEXT_DATA__ has no props.pageProps")
	}

	companyData := asMap(props["company"])
	if companyData == nil {
		return nil, fmt.Errorf("scraped: pageProps has no company data")
	}

	rolesData := asMap(companyData["roles"])
	persons := extractPersons(rolesData)

	corpStructure := asMap(companyData["corporateStructure"])
	var parentOrgNr, parentName string
	if corpStructure != nil {
		if raw := asString(corpStructure["parentCompanyOrganisationNumber"]); raw != "" {
			if orgNr, err := models.CanonicalizeOrgNumber(raw); err == nil {
				parentOrgNr = orgNr.String()
			}
		}
		parentName = asString(corpStructure["parentCompanyName"])
	}

	industry := asMap(companyData["currentIndustry"])
	location := asMap(companyData["location"])
	domicile := asMap(companyData["domicile"])
	status := asMap(companyData["status"])

	var companyType string
	if ct := asMap(companyData["companyType"]); ct != nil {
		companyType = asString(ct["name"])
	}

	// location (postal/visitor address) takes precedence over domicile
	// (registered seat), matching the spec's stated field-precedence
	// rule for addresses — the reverse of the Python original, which
	// always preferred domicile.
	municipality := asString(location["municipality"])
	if municipality == "" {
		municipality = asString(domicile["municipality"])
	}
	county := asString(location["county"])
	if county == "" {
		county = asString(domicile["county"])
	}

	return &Company{
		OrgNr:              normalizeCompanyOrgNr(asString(companyData["orgnr"])),
		Name:               asString(companyData["name"]),
		LegalName:          asString(companyData["legalName"]),
		Status:             asString(status["status"]),
		StatusDate:         parseSwedishDate(asString(status["statusDate"])),
		RegistrationDate:   parseSwedishDate(asString(companyData["registrationDate"])),
		CompanyType:        companyType,
		SNICode:            asString(industry["code"]),
		SNIName:            asString(industry["name"]),
		Municipality:       municipality,
		County:             county,
		ParentOrgNr:        parentOrgNr,
		ParentName:         parentName,
		Revenue:            parseInt(companyData["revenue"]),
		Profit:             parseInt(companyData["profit"]),
		Employees:          parseInt(companyData["employees"]),
		AllabolagCompanyID: asString(companyData["companyId"]),
		Persons:            persons,
	}, nil
}

func normalizeCompanyOrgNr(raw string) string {
	orgNr, err := models.CanonicalizeOrgNumber(raw)
	if err != nil {
		return ""
	}
	return orgNr.String()
}

func extractPersons(rolesData map[string]any) []PersonRef {
	if rolesData == nil {
		return nil
	}

	var persons []PersonRef
	seen := make(map[string]bool)

	for _, groupAny := range asSlice(rolesData["roleGroups"]) {
		group := asMap(groupAny)
		groupName := asString(group["name"])
		if groupName == "" {
			groupName = "Other"
		}
		for _, roleAny := range asSlice(group["roles"]) {
			role := asMap(roleAny)
			if asString(role["type"]) != "Person" {
				continue
			}
			id := fmt.Sprint(role["id"])
			persons = append(persons, PersonRef{
				Name:        asString(role["name"]),
				BirthDate:   parseBirthDate(asString(role["birthDate"])),
				AllabolagID: id,
				Role:        asString(role["role"]),
				RoleGroup:   groupName,
			})
			seen[id] = true
		}
	}

	for _, key := range []string{"chairman", "manager"} {
		person := asMap(rolesData[key])
		if person == nil || asString(person["type"]) != "Person" {
			continue
		}
		id := fmt.Sprint(person["id"])
		if seen[id] {
			continue
		}
		group := "Board"
		if key == "manager" {
			group = "Management"
		}
		persons = append(persons, PersonRef{
			Name:        asString(person["name"]),
			BirthDate:   parseBirthDate(asString(person["birthDate"])),
			AllabolagID: id,
			Role:        asString(person["role"]),
			RoleGroup:   group,
		})
		seen[id] = true
	}

	return persons
}

// ToCompanyRecord maps the scraped shape onto the registry's canonical
// CompanyRecord. stage identifies this as the source of the record for
// the Job Store's provenance tracking.
func (c *Company) ToCompanyRecord(orgNr models.OrgNumber, stage models.Stage) models.CompanyRecord {
	record := models.CompanyRecord{
		OrgNr:        orgNr,
		Name:         c.Name,
		LegalForm:    c.CompanyType,
		Status:       normalizeCompanyStatus(c.Status),
		RegisteredAt: c.RegistrationDate,
		Address: models.Address{
			Municipality: c.Municipality,
			County:       c.County,
		},
		UpdatedAt:   time.Now(),
		SourceStage: stage,
	}

	if c.SNICode != "" {
		record.IndustryCodes = []models.IndustryCode{{
			Code:        c.SNICode,
			Description: c.SNIName,
			Primary:     true,
		}}
	}

	return record
}

// normalizeCompanyStatus maps allabolag's status strings onto
// CompanyRecord's fixed vocabulary; anything unrecognized degrades to
// "active" rather than failing validation outright, since allabolag only
// shows a handful of terminal statuses and the registry stage is the
// authoritative source for the rest.
func normalizeCompanyStatus(raw string) string {
	switch raw {
	case "ACTIVE", "Aktivt":
		return "active"
	case "BANKRUPTCY", "Konkurs":
		return "bankruptcy"
	case "LIQUIDATION", "Likvidation":
		return "liquidation"
	case "DEREGISTERED", "Avregistrerat":
		return "deregistered"
	case "MERGED", "Fusionerat":
		return "merged"
	default:
		return "active"
	}
}

// ToDirectorRecord maps a company-page role entry onto the registry's
// canonical DirectorRecord shape.
func (p PersonRef) ToDirectorRecord(orgNr models.OrgNumber) models.DirectorRecord {
	record := models.DirectorRecord{
		OrgNr:          orgNr,
		PersonType:     models.PersonTypePerson,
		Name:           p.Name,
		PersonEntityID: p.AllabolagID,
		NormalizedRole: normalizeAllabolagRole(p.Role),
		RawRole:        p.Role,
	}
	if p.BirthDate != nil {
		year := p.BirthDate.Year()
		record.BirthYear = &year
	}
	return record
}
