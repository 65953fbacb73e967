package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// CompanyRecord is the canonical view of a registered company assembled
// from the Registry Adapter and the Graph Sink's enrichment pass.
type CompanyRecord struct {
	OrgNr         OrgNumber      `validate:"required,len=10"`
	Name          string         `validate:"required"`
	LegalForm     string         `validate:"required"`
	Status        string         `validate:"required,oneof=active bankruptcy liquidation deregistered merged"` // e.g. "active", "bankruptcy", "liquidation", "deregistered"
	RegisteredAt  *time.Time
	Address       Address
	IndustryCodes []IndustryCode
	Financials    []Financials
	UpdatedAt     time.Time
	SourceStage   Stage `validate:"required"` // which stage last wrote this record
}

// Validate checks a CompanyRecord against its struct tags before it is
// handed to the Graph Sink; a record that fails validation is logged and
// dropped rather than forwarded downstream.
func (c *CompanyRecord) Validate() error {
	return validate.Struct(c)
}

// Address is a Swedish postal address as reported to the registry.
type Address struct {
	Street       string
	Co           string // "c/o" line, often present for small companies
	PostalCode   string
	City         string
	Municipality string
	County       string
}

// IndustryCode is one SNI (Svensk näringsgrensindelning) classification
// entry; a company may carry more than one, ranked by prominence.
type IndustryCode struct {
	Code        string // 5-digit SNI code
	Description string
	Primary     bool
}

// Financials is one fiscal year's headline figures, as reported in an
// annual report (tagged XBRL fields, regex fallback, or PDF signature
// page).
type Financials struct {
	FiscalYear      int
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Revenue         *float64
	OperatingProfit *float64
	NetProfit       *float64
	TotalAssets     *float64
	Equity          *float64
	EmployeeCount   *int
	Currency        string // ISO 4217, almost always "SEK"
}
