package govlinesdk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestsDoNotMutateClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "k-1" {
			t.Errorf("missing api key header")
		}
		w.Write([]byte(`{"total":3}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.APIKey = "k-1"
	// a zero-value client without an http.Client must still work
	c.HTTPClient = nil

	stats, err := c.Dashboard(context.Background(), "2024-06-01", "2024-06-30")
	if err != nil {
		t.Fatalf("dashboard: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total %d", stats.Total)
	}
	if c.HTTPClient != nil {
		t.Fatalf("request must not assign fields on the shared client")
	}
}

func TestNewSetsHTTPClient(t *testing.T) {
	c := New("http://localhost")
	if c.HTTPClient == nil {
		t.Fatalf("expected a default http client")
	}
}

func TestErrorResponsesBecomeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"invalid_transition"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.BearerToken = "t"
	_, err := c.SetCycleStatus(context.Background(), "c-1", "done", nil)
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict {
		t.Fatalf("status %d", apiErr.StatusCode)
	}
}
