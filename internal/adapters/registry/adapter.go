// Package registry implements the Registry Adapter: an OAuth2
// client-credentials client over the official company registry's REST
// API, guarded by a static eligibility gate and a source-specific
// rate-limit floor tighter than the Polite Fetcher's general pacing.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/extract/pdf"
	"github.com/ternarybob/bolagsradar/internal/extract/xbrl"
	"github.com/ternarybob/bolagsradar/internal/fetch"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/orchestrator"
	"github.com/ternarybob/bolagsradar/internal/rawstore"
)

// documentMaxBodySize caps a downloaded annual report (ZIP of tagged
// XBRL, or PDF) well above the general fetch body cap: these filings are
// legitimately large and aren't subject to the same anti-scraping body
// limit the Scraped Adapter applies to HTML pages.
const documentMaxBodySize = 64 * 1024 * 1024

// defaultRegistryRetryAfter is used when the registry's 429 response
// doesn't carry a Retry-After header.
const defaultRegistryRetryAfter = 30 * time.Second

// DocumentInfo describes one filed annual report as listed by
// ListAnnualReports, mirroring spec.md §4.5.2's DocumentInfo shape.
type DocumentInfo struct {
	DocumentID         string
	FileFormat         string // "xbrl" or "pdf"
	ReportingPeriodEnd *time.Time
	RegistrationDate   *time.Time
}

// Adapter is the Registry Adapter described in spec.md §4.5.2. All three
// operations share one OAuth2 token source (golang.org/x/oauth2's
// internal caching already refreshes ahead of expiry), and calls are
// serialized behind minInterval to respect the source's own rate limit
// on top of whatever the Polite Fetcher enforces elsewhere.
type Adapter struct {
	baseURL      string
	httpClient   *http.Client
	minInterval  time.Duration
	pdfExtractor *pdf.Extractor
	rawStore     *rawstore.Store
	retry        *fetch.RetryPolicy
	blockDetect  *fetch.BlockDetector
	maxBodySize  int64

	mu          sync.Mutex
	lastRequest time.Time

	logger arbor.ILogger
}

// New builds a Registry Adapter from pipeline configuration. The OAuth2
// token source is created eagerly but the token itself is acquired
// lazily, on the first outbound request, by the oauth2 transport. When
// cfg.Storage.StoreRawDocs is set, downloaded annual reports are also
// persisted through a raw-document side store before extraction.
func New(cfg *common.Config, logger arbor.ILogger) *Adapter {
	oauthConfig := &clientcredentials.Config{
		ClientID:     cfg.Secrets.RegistryClientID,
		ClientSecret: cfg.Secrets.RegistryClientSecret,
		TokenURL:     cfg.Secrets.RegistryTokenURL,
	}

	ctx := context.Background()
	httpClient := oauthConfig.Client(ctx)
	httpClient.Timeout = cfg.Timing.RequestTimeout

	var store *rawstore.Store
	if cfg.Storage.StoreRawDocs {
		store = rawstore.New(cfg.Storage.RawDocDir, cfg.Storage.GzipRawDocs, logger)
	}

	return &Adapter{
		baseURL:      cfg.Sources.RegistryBaseURL,
		httpClient:   httpClient,
		minInterval:  cfg.Timing.RegistryMinInterval,
		pdfExtractor: pdf.NewExtractor(logger, ""),
		rawStore:     store,
		retry:        fetch.NewRetryPolicyFromConfig(cfg.Retry.MaxRetries, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff, cfg.Retry.BackoffFactor),
		blockDetect:  fetch.NewBlockDetector(cfg.Limits.MaxConsecutiveBlocks),
		maxBodySize:  int64(cfg.Limits.MaxBodySize),
		logger:       logger,
	}
}

// Stage identifies this adapter as the Registry stage's handler.
func (a *Adapter) Stage() models.Stage {
	return models.StageRegistry
}

// Process implements orchestrator.StageHandler. It fetches the base
// company record, lists annual reports, downloads and extracts the most
// recent one, and returns the merged result as the stage payload.
type stageResult struct {
	Company          *models.CompanyRecord
	Directors        []models.DirectorRecord
	ExtractionResult *models.ExtractionResult
	Ineligible       bool
}

func (a *Adapter) Process(ctx context.Context, job models.Job) ([]byte, error) {
	if !IsEligible(job.OrgNr.String()) {
		a.logger.Debug().Str("org_nr", job.OrgNr.String()).Msg("Registry adapter: org number ineligible, skipping")
		payload, err := models.EncodePayload(models.StageRegistry, stageResult{Ineligible: true})
		if err != nil {
			return nil, err
		}
		return payload.Payload, nil
	}

	company, err := a.FetchCompany(ctx, job.OrgNr)
	if err != nil {
		return nil, err
	}
	if company == nil {
		payload, err := models.EncodePayload(models.StageRegistry, stageResult{})
		if err != nil {
			return nil, err
		}
		return payload.Payload, nil
	}

	result := stageResult{Company: company}

	reports, err := a.ListAnnualReports(ctx, job.OrgNr)
	if err != nil {
		a.logger.Warn().Err(err).Str("org_nr", job.OrgNr.String()).Msg("Registry adapter: failed to list annual reports")
	} else if len(reports) > 0 {
		latest := latestReport(reports)
		content, err := a.DownloadDocument(ctx, latest.DocumentID)
		if err != nil {
			a.logger.Warn().Err(err).Str("org_nr", job.OrgNr.String()).Str("document_id", latest.DocumentID).Msg("Registry adapter: failed to download document")
		} else {
			if a.rawStore != nil {
				ext := "pdf"
				if latest.FileFormat != "pdf" {
					ext = "zip"
				}
				if _, err := a.rawStore.Write(job.OrgNr, models.StageRegistry, ext, content); err != nil {
					a.logger.Warn().Err(err).Str("org_nr", job.OrgNr.String()).Msg("Registry adapter: failed to persist raw document side output")
				}
			}
			extraction := a.extractDocument(job.OrgNr, latest, content)
			result.ExtractionResult = extraction
			result.Directors = extraction.Directors
			if len(extraction.Accounts) > 0 {
				result.Company.Financials = extraction.Accounts
			}
		}
	}

	payload, err := models.EncodePayload(models.StageRegistry, result)
	if err != nil {
		return nil, err
	}
	return payload.Payload, nil
}

func latestReport(reports []DocumentInfo) DocumentInfo {
	latest := reports[0]
	for _, r := range reports[1:] {
		if r.ReportingPeriodEnd == nil {
			continue
		}
		if latest.ReportingPeriodEnd == nil || r.ReportingPeriodEnd.After(*latest.ReportingPeriodEnd) {
			latest = r
		}
	}
	return latest
}

// extractDocument runs the Document Extractor's three-shape cascade
// (tagged XBRL in a ZIP, regex fallback, PDF signature page) over
// whichever format the registry returned.
func (a *Adapter) extractDocument(orgNr models.OrgNumber, doc DocumentInfo, content []byte) *models.ExtractionResult {
	fiscalYear := 0
	var periodStart, periodEnd time.Time
	if doc.ReportingPeriodEnd != nil {
		fiscalYear = doc.ReportingPeriodEnd.Year()
		periodEnd = *doc.ReportingPeriodEnd
	}

	if doc.FileFormat == "pdf" {
		page, err := a.pdfExtractor.ExtractSignaturePage(content, xbrl.SignatureMarkers())
		if err != nil {
			return &models.ExtractionResult{OrgNr: orgNr, Method: models.MethodPDFSignaturePage, Warnings: []string{err.Error()}}
		}
		directors := xbrl.FromSignaturePage(page.Text)
		records := make([]models.DirectorRecord, 0, len(directors))
		for _, d := range directors {
			records = append(records, d.ToDirectorRecord(orgNr))
		}
		return &models.ExtractionResult{
			OrgNr:       orgNr,
			Method:      models.MethodPDFSignaturePage,
			Directors:   records,
			ExtractedAt: time.Now(),
		}
	}

	result, err := xbrl.ExtractFromZip(content, 0.5)
	if err != nil {
		return &models.ExtractionResult{OrgNr: orgNr, Method: models.MethodTaggedFields, Warnings: []string{err.Error()}}
	}

	directors := make([]models.DirectorRecord, 0, len(result.Directors))
	for _, d := range result.Directors {
		directors = append(directors, d.ToDirectorRecord(orgNr))
	}
	accounts := make([]models.Financials, 0, len(result.Financials))
	for _, f := range result.Financials {
		accounts = append(accounts, f.ToFinancials(fiscalYear, periodStart, periodEnd))
	}

	method := models.MethodTaggedFields
	if len(result.Directors) == 0 {
		method = models.MethodRegexFallback
	}

	return &models.ExtractionResult{
		OrgNr:       orgNr,
		Method:      method,
		Accounts:    accounts,
		Directors:   directors,
		Confidence:  result.Confidence,
		ExtractedAt: time.Now(),
		Warnings:    result.Warnings,
	}
}

// throttle blocks until at least minInterval has passed since the last
// outbound request, enforcing the registry's own rate-limit floor on top
// of the Polite Fetcher's general host pacing (spec.md §5).
func (a *Adapter) throttle(ctx context.Context) error {
	a.mu.Lock()
	wait := a.minInterval - time.Since(a.lastRequest)
	a.mu.Unlock()

	if wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}

	a.mu.Lock()
	a.lastRequest = time.Now()
	a.mu.Unlock()
	return nil
}

// doJSON issues a GET request against the registry API through the
// Polite Fetcher (fetch.GetWithHeaders, fetch.RetryPolicy, fetch.BlockDetector) and
// decodes a JSON response into v. A 429 is checked ahead of
// classification and surfaced as a *orchestrator.RateLimitedError so the
// orchestrator defers the job without counting an attempt, per spec.md
// §5 — distinct from an actual anti-bot block, which this API is
// unlikely to produce but the shared classifier still guards against.
func (a *Adapter) doJSON(ctx context.Context, path string, v any) error {
	if err := a.throttle(ctx); err != nil {
		return err
	}

	url := a.baseURL + path
	headers := map[string]string{"Accept": "application/json"}

	var statusCode int
	var body []byte
	_, err := a.retry.ExecuteWithRetry(ctx, a.logger, func() (int, error) {
		sc, b, reqErr := fetch.GetWithHeaders(ctx, a.httpClient, url, "", headers, a.maxBodySize)
		statusCode, body = sc, b
		return sc, reqErr
	})
	if err != nil {
		return fmt.Errorf("registry adapter: request %s: %w", path, err)
	}

	if statusCode == http.StatusTooManyRequests {
		return &orchestrator.RateLimitedError{Host: a.baseURL, RetryAfter: defaultRegistryRetryAfter}
	}

	sample := body
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	switch a.blockDetect.Classify(a.baseURL, statusCode, string(sample), nil, nil) {
	case fetch.OutcomeBlocked:
		return &orchestrator.BlockedError{Host: a.baseURL, Reason: fmt.Sprintf("status %d", statusCode)}
	case fetch.OutcomeFatal:
		if statusCode == http.StatusNotFound {
			return errNotFound
		}
		return fmt.Errorf("registry adapter: %s returned %d: %s", path, statusCode, string(sample))
	case fetch.OutcomeRetryable:
		return fmt.Errorf("registry adapter: %s still retryable status %d after retry budget exhausted", path, statusCode)
	}

	if v == nil {
		return nil
	}
	return json.Unmarshal(body, v)
}

var errNotFound = fmt.Errorf("registry adapter: not found")

// Close releases the adapter's HTTP client resources.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
