package scraped

import (
	"testing"

	"github.com/ternarybob/bolagsradar/internal/models"
)

const companyPageFixture = `<!DOCTYPE html><html><body>
<script id="__NEXT_DATA__" type="application/json">
{
  "props": {
    "pageProps": {
      "company": {
        "orgnr": "556677-8899",
        "name": "Exempel Aktiebolag",
        "legalName": "Exempel Aktiebolag",
        "registrationDate": "2001-03-14",
        "status": {"status": "ACTIVE", "statusDate": "2001-03-14"},
        "companyType": {"name": "Aktiebolag"},
        "currentIndustry": {"code": "62010", "name": "Dataprogrammering"},
        "domicile": {"municipality": "Stockholm", "county": "Stockholm"},
        "revenue": "12 345",
        "profit": "1 000",
        "employees": "8",
        "companyId": "abc123",
        "roles": {
          "roleGroups": [
            {
              "name": "Board",
              "roles": [
                {"type": "Person", "id": 1, "name": "Anna Svensson", "role": "Styrelseordförande", "birthDate": "12.05.1970"}
              ]
            }
          ],
          "manager": {"type": "Person", "id": 2, "name": "Björn Karlsson", "role": "Verkställande direktör", "birthDate": "03.11.1980"}
        }
      }
    }
  }
}
</script>
</body></html>`

func TestParseCompany(t *testing.T) {
	company, err := ParseCompany(companyPageFixture)
	if err != nil {
		t.Fatalf("ParseCompany: %v", err)
	}

	if company.OrgNr != "5566778899" {
		t.Errorf("want org nr 5566778899, got %q", company.OrgNr)
	}
	if company.Name != "Exempel Aktiebolag" {
		t.Errorf("unexpected name: %q", company.Name)
	}
	if company.SNICode != "62010" {
		t.Errorf("unexpected SNI code: %q", company.SNICode)
	}
	if company.Revenue == nil || *company.Revenue != 12345 {
		t.Errorf("unexpected revenue: %+v", company.Revenue)
	}
	if company.Employees == nil || *company.Employees != 8 {
		t.Errorf("unexpected employee count: %+v", company.Employees)
	}
	if len(company.Persons) != 2 {
		t.Fatalf("want 2 persons, got %d: %+v", len(company.Persons), company.Persons)
	}
}

func TestParseCompanyMissingNextData(t *testing.T) {
	_, err := ParseCompany("<html><body>no next data here</body></html>")
	if err != ErrNoNextData {
		t.Errorf("want ErrNoNextData, got %v", err)
	}
}

func TestToCompanyRecord(t *testing.T) {
	company, err := ParseCompany(companyPageFixture)
	if err != nil {
		t.Fatalf("ParseCompany: %v", err)
	}

	record := company.ToCompanyRecord("5566778899", "registry")
	if record.Status != "active" {
		t.Errorf("want normalized status 'active', got %q", record.Status)
	}
	if len(record.IndustryCodes) != 1 || record.IndustryCodes[0].Code != "62010" {
		t.Errorf("unexpected industry codes: %+v", record.IndustryCodes)
	}
}

const personPageFixture = `<!DOCTYPE html><html><body>
<script id="__NEXT_DATA__" type="application/json">
{
  "props": {
    "pageProps": {
      "rolePerson": {
        "personId": 42,
        "name": "Anna Svensson",
        "birthDate": "1970-05-12",
        "gender": "F",
        "roles": [
          {
            "type": "Company",
            "id": "556677-8899",
            "name": "Exempel Aktiebolag",
            "role": "Styrelseordförande",
            "status": {"status": "ACTIVE"},
            "companyNumberOfEmployees": "8",
            "companyAccounts": [
              {"accounts": [{"code": "SDI", "amount": "12345"}]}
            ]
          }
        ],
        "connections": [
          {"personId": 99, "name": "Björn Karlsson", "gender": "M", "numberOfConnections": 3}
        ]
      }
    }
  }
}
</script>
</body></html>`

func TestParsePerson(t *testing.T) {
	person, err := ParsePerson(personPageFixture)
	if err != nil {
		t.Fatalf("ParsePerson: %v", err)
	}

	if person.Name != "Anna Svensson" {
		t.Errorf("unexpected name: %q", person.Name)
	}
	if person.BirthDate == nil || person.BirthDate.Year() != 1970 {
		t.Errorf("unexpected birth date: %+v", person.BirthDate)
	}
	if len(person.Roles) != 1 {
		t.Fatalf("want 1 role, got %d", len(person.Roles))
	}
	if person.Roles[0].CompanyRevenue == nil || *person.Roles[0].CompanyRevenue != 12345 {
		t.Errorf("unexpected revenue: %+v", person.Roles[0].CompanyRevenue)
	}
	if len(person.Connections) != 1 || person.Connections[0].Name != "Björn Karlsson" {
		t.Errorf("unexpected connections: %+v", person.Connections)
	}
}

func TestToDirectorRecords(t *testing.T) {
	person, err := ParsePerson(personPageFixture)
	if err != nil {
		t.Fatalf("ParsePerson: %v", err)
	}

	records := person.ToDirectorRecords()
	if len(records) != 1 {
		t.Fatalf("want 1 director record, got %d", len(records))
	}
	if records[0].OrgNr.String() != "5566778899" {
		t.Errorf("unexpected org nr: %q", records[0].OrgNr.String())
	}
	if records[0].NormalizedRole != models.RoleBoardChair {
		t.Errorf("want RoleBoardChair, got %s", records[0].NormalizedRole)
	}
}

func TestBuildPersonURL(t *testing.T) {
	got := BuildPersonURL("Jens Anders Finnäs", "11337210")
	want := "https://www.allabolag.se/befattning/jens-anders-finn%C3%A4s/-/11337210"
	if got != want {
		t.Errorf("BuildPersonURL() = %q, want %q", got, want)
	}
}
