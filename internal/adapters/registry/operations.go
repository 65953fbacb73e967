package registry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/ternarybob/bolagsradar/internal/fetch"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/orchestrator"
)

// FetchCompany retrieves the registry's base company record for orgnr.
// A 404 is not an error: it means the registry has no record for this
// orgnr, and the caller should treat the stage as completed with no
// record rather than retry.
func (a *Adapter) FetchCompany(ctx context.Context, orgNr models.OrgNumber) (*models.CompanyRecord, error) {
	var resp organisationResponse
	err := a.doJSON(ctx, "/organisationer/"+orgNr.String(), &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	record := models.CompanyRecord{
		OrgNr:        orgNr,
		Name:         companyName(resp),
		LegalForm:    resp.JuridiskForm.Beskrivning,
		Status:       normalizeRegistryStatus(resp.Status.Beskrivning),
		RegisteredAt: parseRegistryDate(resp.Organisationsdatum.Registreringsdatum),
		Address: models.Address{
			Street:     resp.PostadressOrganisation.Postadress.Utdelningsadress,
			PostalCode: resp.PostadressOrganisation.Postadress.Postnummer,
			City:       resp.PostadressOrganisation.Postadress.Postort,
		},
		SourceStage: models.StageRegistry,
	}

	for i, sni := range resp.NaringsgrenOrganisation.Sni {
		if sni.Kod == "" {
			continue
		}
		record.IndustryCodes = append(record.IndustryCodes, models.IndustryCode{
			Code:        sni.Kod,
			Description: sni.Beskrivning,
			Primary:     i == 0,
		})
	}

	return &record, nil
}

func companyName(resp organisationResponse) string {
	for _, n := range resp.Organisationsnamn.OrganisationsnamnLista {
		if n.Organisationsnamntyp.Kod == "FORETAGSNAMN" {
			return n.Namn
		}
	}
	if len(resp.Organisationsnamn.OrganisationsnamnLista) > 0 {
		return resp.Organisationsnamn.OrganisationsnamnLista[0].Namn
	}
	return ""
}

func normalizeRegistryStatus(beskrivning string) string {
	switch beskrivning {
	case "Aktiv", "Registrerad":
		return "active"
	case "Konkurs":
		return "bankruptcy"
	case "Likvidation":
		return "liquidation"
	case "Avregistrerad":
		return "deregistered"
	case "Fusionerad":
		return "merged"
	default:
		return "active"
	}
}

// ListAnnualReports lists the annual reports the registry has on file
// for orgnr, in the order the registry returns them (no sorting is
// applied; Process picks the latest by reporting period via latestReport).
func (a *Adapter) ListAnnualReports(ctx context.Context, orgNr models.OrgNumber) ([]DocumentInfo, error) {
	var resp dokumentlistaResponse
	err := a.doJSON(ctx, "/dokumentlista/"+orgNr.String(), &resp)
	if errors.Is(err, errNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	reports := make([]DocumentInfo, 0, len(resp.Dokument))
	for _, d := range resp.Dokument {
		reports = append(reports, DocumentInfo{
			DocumentID:         d.DokumentId,
			FileFormat:         fileFormat(d.DokumentTyp.Kod),
			ReportingPeriodEnd: parseRegistryDate(d.Rakenskapsperiod.PeriodTill),
			RegistrationDate:   parseRegistryDate(d.InlamnadDatum),
		})
	}
	return reports, nil
}

// DownloadDocument fetches the raw bytes of one filed document (a ZIP of
// tagged XBRL markup, or a PDF) by its registry document id, through the
// same Polite Fetcher machinery as doJSON.
func (a *Adapter) DownloadDocument(ctx context.Context, documentID string) ([]byte, error) {
	if err := a.throttle(ctx); err != nil {
		return nil, err
	}

	url := a.baseURL + "/dokument/" + documentID

	var statusCode int
	var body []byte
	_, err := a.retry.ExecuteWithRetry(ctx, a.logger, func() (int, error) {
		sc, b, reqErr := fetch.Get(ctx, a.httpClient, url, "", documentMaxBodySize)
		statusCode, body = sc, b
		return sc, reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("registry adapter: download document %s: %w", documentID, err)
	}

	if statusCode == http.StatusTooManyRequests {
		return nil, &orchestrator.RateLimitedError{Host: a.baseURL, RetryAfter: defaultRegistryRetryAfter}
	}

	sample := body
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	switch a.blockDetect.Classify(a.baseURL, statusCode, string(sample), nil, nil) {
	case fetch.OutcomeBlocked:
		return nil, &orchestrator.BlockedError{Host: a.baseURL, Reason: fmt.Sprintf("status %d", statusCode)}
	case fetch.OutcomeFatal, fetch.OutcomeRetryable:
		return nil, fmt.Errorf("registry adapter: download document %s returned %d", documentID, statusCode)
	}

	return body, nil
}

// HealthCheck verifies the registry API and OAuth2 credentials are
// working by requesting a lightweight, always-present organisation
// record.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	statusCode, _, err := fetch.Get(ctx, a.httpClient, a.baseURL+"/organisationer/health", "", a.maxBodySize)
	return err == nil && statusCode < 500
}
