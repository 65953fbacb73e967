package models

import "testing"

func TestCompanyRecordValidate(t *testing.T) {
	valid := CompanyRecord{
		OrgNr:       OrgNumber("5560360793"),
		Name:        "Acme AB",
		LegalForm:   "aktiebolag",
		Status:      "active",
		SourceStage: StageRegistry,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on a well-formed record returned error: %v", err)
	}

	missingName := valid
	missingName.Name = ""
	if err := missingName.Validate(); err == nil {
		t.Error("Validate() with empty Name: expected error, got nil")
	}

	badStatus := valid
	badStatus.Status = "dissolved"
	if err := badStatus.Validate(); err == nil {
		t.Error("Validate() with unrecognized Status: expected error, got nil")
	}

	badOrgNr := valid
	badOrgNr.OrgNr = OrgNumber("123")
	if err := badOrgNr.Validate(); err == nil {
		t.Error("Validate() with short OrgNr: expected error, got nil")
	}
}

func TestDirectorRecordValidate(t *testing.T) {
	valid := DirectorRecord{
		OrgNr:          OrgNumber("5560360793"),
		PersonType:     PersonTypePerson,
		Name:           "Anna Andersson",
		NormalizedRole: RoleBoardMember,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Validate() on a well-formed record returned error: %v", err)
	}

	badPersonType := valid
	badPersonType.PersonType = PersonType("alien")
	if err := badPersonType.Validate(); err == nil {
		t.Error("Validate() with unrecognized PersonType: expected error, got nil")
	}

	badBirthYear := valid
	year := 1850
	badBirthYear.BirthYear = &year
	if err := badBirthYear.Validate(); err == nil {
		t.Error("Validate() with implausible BirthYear: expected error, got nil")
	}
}
