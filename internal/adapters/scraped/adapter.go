// Package scraped implements the Scraped Adapter: it fetches a company's
// page from the third-party aggregator site through the Polite Fetcher,
// hands the body to internal/extract/scraped for parsing, and optionally
// runs a second pass against each discovered director's person page.
package scraped

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/bolagsradar/internal/common"
	extractscraped "github.com/ternarybob/bolagsradar/internal/extract/scraped"
	"github.com/ternarybob/bolagsradar/internal/fetch"
	"github.com/ternarybob/bolagsradar/internal/models"
	"github.com/ternarybob/bolagsradar/internal/orchestrator"
	"github.com/ternarybob/bolagsradar/internal/rawstore"
)

// Result is what one FetchCompanyPage call yields: the canonical record plus
// whatever directors the company page itself carried, and optionally the
// richer per-person profiles from the second pass.
type Result struct {
	Company    *models.CompanyRecord
	Directors  []models.DirectorRecord
	RawJSON    []byte // the raw HTML of the fetched (or headless-rendered) company page, __NEXT_DATA__ script included; the JSON blob is not split out of it
	Persons    []*extractscraped.Person
	NotFound   bool
}

// Adapter is the Scraped Adapter described in spec.md §4.5.3.
type Adapter struct {
	host         string
	client       *http.Client
	limiter      *fetch.RateLimiter
	retry        *fetch.RetryPolicy
	blockDetect  *fetch.BlockDetector
	blockMarkers []string
	userAgents   *fetch.UserAgentRotator
	camouflage   *fetch.Camouflage
	maxBodySize  int64
	personPass   bool
	jsRenderer   *jsRenderer
	rawStore     *rawstore.Store
	logger       arbor.ILogger
}

// New builds a Scraped Adapter from the pipeline configuration.
func New(cfg *common.Config, logger arbor.ILogger) *Adapter {
	a := &Adapter{
		host:         cfg.Sources.ScrapedHost,
		client:       fetch.NewClient(cfg.Timing.RequestTimeout),
		limiter:      fetch.NewRateLimiter(cfg.Timing.MinDelay, cfg.Timing.MaxDelay),
		retry:        fetch.NewRetryPolicyFromConfig(cfg.Retry.MaxRetries, cfg.Retry.InitialBackoff, cfg.Retry.MaxBackoff, cfg.Retry.BackoffFactor),
		blockDetect:  fetch.NewBlockDetector(cfg.Limits.MaxConsecutiveBlocks),
		blockMarkers: cfg.Behavior.BlockMarkers,
		userAgents:   fetch.NewUserAgentRotator(cfg.Behavior.UserAgent, cfg.Behavior.UserAgentPool, cfg.Behavior.RotateUserAgent),
		camouflage:   fetch.NewCamouflage(cfg.Behavior.RandomPageInterval, cfg.Behavior.RandomPageProb),
		maxBodySize:  int64(cfg.Limits.MaxBodySize),
		personPass:   cfg.Behavior.PersonProfilePass,
		logger:       logger,
	}
	if cfg.Behavior.ScrapedUseChromedp {
		a.jsRenderer = newJSRenderer(cfg.Behavior.UserAgent, cfg.Timing.RequestTimeout, logger)
	}
	if cfg.Storage.StoreRawDocs {
		a.rawStore = rawstore.New(cfg.Storage.RawDocDir, cfg.Storage.GzipRawDocs, logger)
	}
	return a
}

// Stage identifies this adapter as the Scraped stage's handler.
func (a *Adapter) Stage() models.Stage {
	return models.StageScraped
}

// Process implements orchestrator.StageHandler: it fetches, parses, and
// returns the encoded Result as the stage's payload.
func (a *Adapter) Process(ctx context.Context, job models.Job) ([]byte, error) {
	result, err := a.FetchCompanyPage(ctx, job.OrgNr)
	if err != nil {
		return nil, err
	}

	if result.NotFound || result.Company == nil {
		payload, err := models.EncodePayload(models.StageScraped, result)
		if err != nil {
			return nil, err
		}
		return payload.Payload, nil
	}

	if a.personPass {
		a.runPersonPass(ctx, result)
	}

	payload, err := models.EncodePayload(models.StageScraped, result)
	if err != nil {
		return nil, err
	}
	return payload.Payload, nil
}

// FetchCompanyPage constructs the canonical company URL, fetches it
// through the Polite Fetcher, and parses the result.
func (a *Adapter) FetchCompanyPage(ctx context.Context, orgNr models.OrgNumber) (*Result, error) {
	url := fmt.Sprintf("https://%s/%s", a.host, orgNr.String())

	if err := a.limiter.Wait(ctx, url); err != nil {
		return nil, err
	}

	var statusCode int
	var body []byte
	_, err := a.retry.ExecuteWithRetry(ctx, a.logger, func() (int, error) {
		sc, b, reqErr := fetch.Get(ctx, a.client, url, a.userAgents.Next(), a.maxBodySize)
		statusCode, body = sc, b
		return sc, reqErr
	})
	if err != nil {
		return nil, fmt.Errorf("scraped adapter: fetch %s: %w", url, err)
	}

	a.camouflage.MaybeEmit(ctx, a.client, a.host, a.userAgents.Next())

	sample := body
	if len(sample) > 4096 {
		sample = sample[:4096]
	}
	switch a.blockDetect.Classify(a.host, statusCode, string(sample), nil, a.blockMarkers) {
	case fetch.OutcomeBlocked:
		return nil, &orchestrator.BlockedError{Host: a.host, Reason: fmt.Sprintf("status %d matched block markers", statusCode)}
	case fetch.OutcomeFatal:
		if statusCode == http.StatusNotFound {
			return &Result{NotFound: true}, nil
		}
		return nil, fmt.Errorf("scraped adapter: fatal status %d fetching %s", statusCode, url)
	case fetch.OutcomeRetryable:
		return nil, fmt.Errorf("scraped adapter: status %d still retryable after retry budget exhausted", statusCode)
	}

	company, err := extractscraped.ParseCompany(string(body))
	if err != nil {
		if err != extractscraped.ErrNoNextData {
			return nil, fmt.Errorf("scraped adapter: parse company page: %w", err)
		}
		if a.jsRenderer == nil {
			return &Result{NotFound: true}, nil
		}

		a.logger.Debug().Str("org_nr", orgNr.String()).Msg("Scraped adapter: no __NEXT_DATA__ in initial HTML, falling back to headless rendering")
		rendered, renderErr := a.jsRenderer.Render(ctx, url)
		if renderErr != nil {
			a.logger.Warn().Err(renderErr).Str("org_nr", orgNr.String()).Msg("Scraped adapter: headless fallback failed")
			return &Result{NotFound: true}, nil
		}

		company, err = extractscraped.ParseCompany(rendered)
		if err != nil {
			if err == extractscraped.ErrNoNextData {
				return &Result{NotFound: true}, nil
			}
			return nil, fmt.Errorf("scraped adapter: parse rendered company page: %w", err)
		}
		body = []byte(rendered)
	}

	if a.rawStore != nil {
		if _, err := a.rawStore.Write(orgNr, models.StageScraped, "html", body); err != nil {
			a.logger.Warn().Err(err).Str("org_nr", orgNr.String()).Msg("Scraped adapter: failed to persist raw document side output")
		}
	}

	record := company.ToCompanyRecord(orgNr, models.StageScraped)
	directors := make([]models.DirectorRecord, 0, len(company.Persons))
	for _, p := range company.Persons {
		directors = append(directors, p.ToDirectorRecord(orgNr))
	}

	return &Result{
		Company:   &record,
		Directors: directors,
		RawJSON:   body,
	}, nil
}

// runPersonPass fetches each director's person page for the richer
// role/connection profile. Failures here are logged and swallowed: the
// company-page result already satisfies the stage, this pass is a
// best-effort enrichment.
func (a *Adapter) runPersonPass(ctx context.Context, result *Result) {
	for _, d := range result.Directors {
		if d.PersonEntityID == "" || d.Name == "" {
			continue
		}
		personURL := extractscraped.BuildPersonURL(d.Name, d.PersonEntityID)

		if err := a.limiter.Wait(ctx, personURL); err != nil {
			return
		}

		var statusCode int
		var body []byte
		_, err := a.retry.ExecuteWithRetry(ctx, a.logger, func() (int, error) {
			sc, b, reqErr := fetch.Get(ctx, a.client, personURL, a.userAgents.Next(), a.maxBodySize)
			statusCode, body = sc, b
			return sc, reqErr
		})
		if err != nil {
			a.logger.Warn().Err(err).Str("person_url", personURL).Msg("Person profile pass: fetch failed")
			continue
		}
		if statusCode != http.StatusOK {
			continue
		}

		person, err := extractscraped.ParsePerson(string(body))
		if err != nil {
			a.logger.Debug().Err(err).Str("person_url", personURL).Msg("Person profile pass: parse failed")
			continue
		}
		result.Persons = append(result.Persons, person)
	}
}

// HealthCheck verifies the site is reachable by requesting its root page.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	url := fmt.Sprintf("https://%s/", a.host)
	statusCode, _, err := fetch.Get(ctx, a.client, url, a.userAgents.Next(), a.maxBodySize)
	return err == nil && statusCode < 500
}

// Close releases the adapter's HTTP client resources and, if the headless
// rendering fallback was ever started, its browser instance.
func (a *Adapter) Close() error {
	a.client.CloseIdleConnections()
	if a.jsRenderer != nil {
		a.jsRenderer.Close()
	}
	return nil
}
