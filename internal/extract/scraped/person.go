package scraped

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/bolagsradar/internal/models"
)

// Role is one company this person holds a role at, as reported on their
// allabolag.se person page.
type Role struct {
	CompanyOrgNr     string
	CompanyName      string
	Role             string
	CompanyStatus    string
	CompanyEmployees *int
	CompanyRevenue   *int // KSEK, most recent fiscal year's SDI ("summa disponibelt inkomst") figure
}

// Connection is another person connected to this one through shared
// company directorships.
type Connection struct {
	PersonID            string
	Name                string
	Gender              string
	NumSharedCompanies  int
}

// Person is the parsed shape of an allabolag.se person page's
// __NEXT_DATA__ payload — richer than a company page's embedded role
// entry because it carries a full birth date and every company the
// person is connected to, not just the one being crawled.
type Person struct {
	AllabolagPersonID string
	Name              string
	BirthDate         *time.Time
	YearOfBirth       *int
	Age               *int
	Gender            string
	Roles             []Role
	Connections       []Connection
}

// BuildPersonURL constructs the canonical person-page URL from a name and
// allabolag person ID, matching the site's /befattning/{slug}/-/{id}
// routing scheme.
func BuildPersonURL(name, personID string) string {
	slug := strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	slug = url.PathEscape(slug)
	return fmt.Sprintf("https://www.allabolag.se/befattning/%s/-/%s", slug, personID)
}

// ParsePerson extracts a Person from a person page's raw HTML.
func ParsePerson(html string) (*Person, error) {
	data, err := extractNextData(html)
	if err != nil {
		return nil, err
	}

	props := pageProps(data)
	if props == nil {
		return nil, fmt.Errorf("scraped: __NEXT_DATA__ has no props.pageProps")
	}

	rolePerson := asMap(props["rolePerson"])
	if rolePerson == nil {
		return nil, fmt.Errorf("scraped: pageProps has no rolePerson data")
	}

	return &Person{
		AllabolagPersonID: fmt.Sprint(rolePerson["personId"]),
		Name:              asString(rolePerson["name"]),
		BirthDate:         parsePersonBirthDate(asString(rolePerson["birthDate"])),
		YearOfBirth:       parseInt(rolePerson["yearOfBirth"]),
		Age:               parseInt(rolePerson["age"]),
		Gender:            asString(rolePerson["gender"]),
		Roles:             extractRoles(rolePerson),
		Connections:       extractConnections(rolePerson),
	}, nil
}

// parsePersonBirthDate parses the "YYYY-MM-DD" format person pages use,
// distinct from a company page's role entry, which truncates to
// "DD.MM.YYYY" (see parseBirthDate in convert.go).
func parsePersonBirthDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return &t
	}
	return nil
}

func extractRoles(rolePerson map[string]any) []Role {
	var roles []Role
	for _, roleAny := range asSlice(rolePerson["roles"]) {
		roleData := asMap(roleAny)
		if asString(roleData["type"]) != "Company" {
			continue
		}

		var revenue *int
		accounts := asSlice(roleData["companyAccounts"])
		if len(accounts) > 0 {
			latest := asMap(accounts[0])
			for _, accAny := range asSlice(latest["accounts"]) {
				acc := asMap(accAny)
				if asString(acc["code"]) == "SDI" {
					revenue = parseInt(acc["amount"])
					break
				}
			}
		}

		status := asMap(roleData["status"])
		statusStr := "UNKNOWN"
		if status != nil {
			if s := asString(status["status"]); s != "" {
				statusStr = s
			}
		}

		roles = append(roles, Role{
			CompanyOrgNr:     normalizeCompanyOrgNr(fmt.Sprint(roleData["id"])),
			CompanyName:      asString(roleData["name"]),
			Role:             asString(roleData["role"]),
			CompanyStatus:    statusStr,
			CompanyEmployees: parseInt(roleData["companyNumberOfEmployees"]),
			CompanyRevenue:   revenue,
		})
	}
	return roles
}

func extractConnections(rolePerson map[string]any) []Connection {
	var connections []Connection
	for _, connAny := range asSlice(rolePerson["connections"]) {
		conn := asMap(connAny)
		shared := 0
		if n := parseInt(conn["numberOfConnections"]); n != nil {
			shared = *n
		}
		connections = append(connections, Connection{
			PersonID:           fmt.Sprint(conn["personId"]),
			Name:               asString(conn["name"]),
			Gender:             asString(conn["gender"]),
			NumSharedCompanies: shared,
		})
	}
	return connections
}

// ToDirectorRecords maps every company role this person holds onto a
// DirectorRecord for that company's org number. Unlike a company page's
// role entry, a person page has no board-appointment date — only the
// Registry Adapter (Bolagsverket's dokumentlista) carries that.
func (p *Person) ToDirectorRecords() []models.DirectorRecord {
	records := make([]models.DirectorRecord, 0, len(p.Roles))
	for _, role := range p.Roles {
		orgNr, err := models.CanonicalizeOrgNumber(role.CompanyOrgNr)
		if err != nil {
			continue
		}

		record := models.DirectorRecord{
			OrgNr:          orgNr,
			PersonType:     models.PersonTypePerson,
			Name:           p.Name,
			PersonEntityID: p.AllabolagPersonID,
			NormalizedRole: normalizeAllabolagRole(role.Role),
			RawRole:        role.Role,
		}
		if p.BirthDate != nil {
			year := p.BirthDate.Year()
			record.BirthYear = &year
		} else if p.YearOfBirth != nil {
			record.BirthYear = p.YearOfBirth
		}
		records = append(records, record)
	}
	return records
}
