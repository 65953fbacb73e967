package discovery

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/ternarybob/arbor"

	"context"
)

func newTestAdapter(srv *httptest.Server) *Adapter {
	return &Adapter{baseURL: srv.URL, httpClient: srv.Client(), logger: arbor.NewLogger()}
}

func TestCountAvailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/companies/count" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"total": 42}`))
	}))
	defer srv.Close()

	total, err := newTestAdapter(srv).CountAvailable(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("CountAvailable: unexpected error %v", err)
	}
	if total != 42 {
		t.Errorf("CountAvailable() = %d, want 42", total)
	}
}

func TestFetchPageCapsLimitAndFiltersMalformedOrgNrs(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"items": [
			{"orgnr": "5560360793", "fields": {"name": "Valid AB"}},
			{"orgnr": "not-an-orgnr", "fields": {}}
		]}`))
	}))
	defer srv.Close()

	records, err := newTestAdapter(srv).FetchPage(context.Background(), 0, maxPage+500, Filters{LegalFormCode: "AB", OnlyActive: true})
	if err != nil {
		t.Fatalf("FetchPage: unexpected error %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("FetchPage: want 1 valid record, got %d: %+v", len(records), records)
	}
	if records[0].OrgNr != "5560360793" {
		t.Errorf("records[0].OrgNr = %q, want 5560360793", records[0].OrgNr)
	}

	if got := gotQuery.Get("limit"); got != "2000" {
		t.Errorf("limit query param = %q, want capped at maxPage (2000)", got)
	}
	if got := gotQuery.Get("legal_form_code"); got != "AB" {
		t.Errorf("legal_form_code query param = %q, want AB", got)
	}
	if got := gotQuery.Get("only_active"); got != "true" {
		t.Errorf("only_active query param = %q, want true", got)
	}
}

func TestFetchPageDefaultsLimitWhenZero(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`{"items": []}`))
	}))
	defer srv.Close()

	if _, err := newTestAdapter(srv).FetchPage(context.Background(), 0, 0, Filters{}); err != nil {
		t.Fatalf("FetchPage: unexpected error %v", err)
	}
	if got := gotQuery.Get("limit"); got != "2000" {
		t.Errorf("limit query param with limit=0 = %q, want default maxPage (2000)", got)
	}
}

func TestGetSurfacesServerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := newTestAdapter(srv).CountAvailable(context.Background(), Filters{}); err == nil {
		t.Error("CountAvailable on 500: want error, got nil")
	}
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if !newTestAdapter(srv).HealthCheck(context.Background()) {
		t.Error("HealthCheck: want true for a 200 response")
	}
}

func TestLoadClientCertificateRequiresPath(t *testing.T) {
	if _, err := loadClientCertificate("", "irrelevant"); err == nil {
		t.Error("loadClientCertificate with empty path: want error, got nil")
	}
}
