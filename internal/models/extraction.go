package models

import "time"

// ExtractionMethod records which technique produced an ExtractionResult,
// so downstream consumers can weigh confidence accordingly.
type ExtractionMethod string

const (
	MethodTaggedFields     ExtractionMethod = "tagged_fields"
	MethodRegexFallback    ExtractionMethod = "regex_fallback"
	MethodPDFSignaturePage ExtractionMethod = "pdf_signature_page"
	MethodJSONEmbedded     ExtractionMethod = "json_embedded"
)

// ExtractionResult is the Document Extractor's output for one annual
// report document: the financial accounts it found, the directors named
// on the signature page, and a confidence score reflecting how reliable
// the extraction method was for this particular document.
type ExtractionResult struct {
	OrgNr       OrgNumber
	Method      ExtractionMethod
	Accounts    []Financials
	Directors   []DirectorRecord
	Confidence  float64 // 0.0-1.0, per spec.md's confidence formulas
	ExtractedAt time.Time
	Warnings    []string // non-fatal issues encountered during extraction (e.g. unparsed date)
}
