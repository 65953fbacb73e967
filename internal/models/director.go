package models

import "time"

// PersonType distinguishes a natural person from a corporate entity
// holding a board role (a company can sit on another company's board).
type PersonType string

const (
	PersonTypePerson PersonType = "person"
	PersonTypeEntity PersonType = "entity"
)

// NormalizedRole is a director or officer role mapped onto a fixed,
// Swedish-registry-specific vocabulary so downstream consumers never
// have to pattern-match on raw Swedish role strings.
type NormalizedRole string

const (
	RoleCEO               NormalizedRole = "ceo"
	RoleViceCEO           NormalizedRole = "vice_ceo"
	RoleBoardChair        NormalizedRole = "board_chair"
	RoleBoardMember       NormalizedRole = "board_member"
	RoleBoardAlternate    NormalizedRole = "board_alternate"
	RoleEmployeeRep       NormalizedRole = "employee_rep"
	RoleExternalMember    NormalizedRole = "external_member"
	RoleAuditor           NormalizedRole = "auditor"
	RoleAuditorPrincipal  NormalizedRole = "auditor_principal"
	RoleAuditorApproved   NormalizedRole = "auditor_approved"
	RoleAuditorAuthorized NormalizedRole = "auditor_authorized"
	RoleUnknown           NormalizedRole = "unknown"
)

// DirectorRecord is one person or entity's role on a company's board,
// as reported by the registry or derived from a scraped profile page.
type DirectorRecord struct {
	OrgNr          OrgNumber      `validate:"required,len=10"`
	PersonType     PersonType     `validate:"required,oneof=person entity"`
	Name           string         `validate:"required"`
	PersonEntityID string         // the Registry's internal identifier for this person/entity, if available
	NormalizedRole NormalizedRole `validate:"required"`
	RawRole        string         // the untranslated role string as reported
	AppointedAt    *time.Time
	ResignedAt     *time.Time
	BirthYear      *int `validate:"omitempty,gte=1900,lte=2100"` // Swedish registries commonly expose birth year only, not full date
}

// Validate checks a DirectorRecord against its struct tags.
func (d *DirectorRecord) Validate() error {
	return validate.Struct(d)
}
