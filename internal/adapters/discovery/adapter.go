// Package discovery implements the Discovery Adapter: a bulk-enumeration
// client against the statistical agency's company register, authenticated
// via mutual TLS, that produces a stream of new organisation numbers to
// seed the pipeline with.
package discovery

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/pkcs12"

	"github.com/ternarybob/bolagsradar/internal/common"
	"github.com/ternarybob/bolagsradar/internal/fetch"
	"github.com/ternarybob/bolagsradar/internal/models"
)

// Record is one entry FetchPage returns: a discovered orgnr plus whatever
// coarse metadata the source attached, kept opaque (raw_fields) rather
// than strictly typed since the agency's schema is outside this core's
// concern.
type Record struct {
	OrgNr     string
	RawFields map[string]any
}

// Filters narrow a discovery page, per spec.md §4.5.1.
type Filters struct {
	LegalFormCode string
	OnlyActive    bool
}

// maxPage is the source-configurable page-size ceiling; requests above
// it are rejected by the upstream API.
const maxPage = 2000

// Adapter is the Discovery Adapter described in spec.md §4.5.1.
type Adapter struct {
	baseURL    string
	httpClient *http.Client
	logger     arbor.ILogger
}

// New builds a Discovery Adapter, loading the client certificate bundle
// (PKCS#12, password-protected) from configuration for mutual TLS.
// golang.org/x/crypto/pkcs12 decodes the bundle into the tls.Certificate
// shape fetch.NewMTLSClient wraps into an http.Client.
func New(cfg *common.Config, logger arbor.ILogger) (*Adapter, error) {
	cert, err := loadClientCertificate(cfg.Secrets.DiscoveryCertPath, cfg.Secrets.DiscoveryCertPass)
	if err != nil {
		return nil, fmt.Errorf("discovery adapter: load client certificate: %w", err)
	}

	return &Adapter{
		baseURL:    cfg.Sources.DiscoveryBaseURL,
		httpClient: fetch.NewMTLSClient(cfg.Timing.RequestTimeout, cert),
		logger:     logger,
	}, nil
}

func loadClientCertificate(path, password string) (tls.Certificate, error) {
	if path == "" {
		return tls.Certificate{}, fmt.Errorf("no discovery_cert_path configured")
	}
	pfxData, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, err
	}

	privateKey, cert, err := pkcs12.Decode(pfxData, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode pkcs12 bundle: %w", err)
	}

	return tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}, nil
}

// CountAvailable returns the total number of organisations matching
// filters, for sizing a seed run.
func (a *Adapter) CountAvailable(ctx context.Context, filters Filters) (int, error) {
	var body struct {
		Total int `json:"total"`
	}
	if err := a.get(ctx, "/companies/count", filters, 0, 0, &body); err != nil {
		return 0, err
	}
	return body.Total, nil
}

// FetchPage retrieves one page of discovered organisations.
func (a *Adapter) FetchPage(ctx context.Context, offset, limit int, filters Filters) ([]Record, error) {
	if limit > maxPage {
		limit = maxPage
	}
	if limit <= 0 {
		limit = maxPage
	}

	var body struct {
		Items []struct {
			OrgNr  string         `json:"orgnr"`
			Fields map[string]any `json:"fields"`
		} `json:"items"`
	}
	if err := a.get(ctx, "/companies", filters, offset, limit, &body); err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(body.Items))
	for _, item := range body.Items {
		if _, err := models.CanonicalizeOrgNumber(item.OrgNr); err != nil {
			a.logger.Debug().Str("raw_orgnr", item.OrgNr).Msg("Discovery adapter: skipping malformed orgnr")
			continue
		}
		records = append(records, Record{OrgNr: item.OrgNr, RawFields: item.Fields})
	}
	return records, nil
}

func (a *Adapter) get(ctx context.Context, path string, filters Filters, offset, limit int, v any) error {
	u, err := url.Parse(a.baseURL + path)
	if err != nil {
		return err
	}
	q := u.Query()
	if filters.LegalFormCode != "" {
		q.Set("legal_form_code", filters.LegalFormCode)
	}
	if filters.OnlyActive {
		q.Set("only_active", "true")
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
		q.Set("offset", strconv.Itoa(offset))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discovery adapter: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discovery adapter: %s returned %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

// HealthCheck verifies the mTLS handshake and API reachability.
func (a *Adapter) HealthCheck(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode < 500
}

// Close releases the adapter's HTTP client resources.
func (a *Adapter) Close() error {
	a.httpClient.CloseIdleConnections()
	return nil
}
