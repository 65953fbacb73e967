package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGetReturnsStatusAndBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "bolagsradar-test" {
			t.Errorf("User-Agent header = %q, want bolagsradar-test", got)
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	status, body, err := Get(context.Background(), client, srv.URL, "bolagsradar-test", 1024)
	if err != nil {
		t.Fatalf("Get: unexpected error %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("Get status = %d, want 200", status)
	}
	if string(body) != "hello" {
		t.Errorf("Get body = %q, want hello", string(body))
	}
}

func TestGetCapsBodySize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	_, body, err := Get(context.Background(), client, srv.URL, "", 4)
	if err != nil {
		t.Fatalf("Get: unexpected error %v", err)
	}
	if len(body) != 4 {
		t.Errorf("Get body length = %d, want capped at 4", len(body))
	}
}

func TestContextAwareTransportRejectsCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("should not be reached"))
	}))
	defer srv.Close()

	client := NewClient(5 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := Get(ctx, client, srv.URL, "", 1024)
	if err == nil {
		t.Fatal("Get with a cancelled context: want an error, got nil")
	}
}
