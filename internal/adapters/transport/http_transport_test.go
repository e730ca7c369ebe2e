package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTransportGet(t *testing.T) {
	var gotAuth, gotLang, gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotLang = r.Header.Get("Accept-Language")
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"d":{"results":[]}}`))
	}))
	defer srv.Close()

	tr := NewHTTPTransport(nil)
	h := http.Header{}
	h.Set("Authorization", "Basic dTpw")
	h.Set("Accept-Language", "en-US,en;q=0.8")

	resp, err := tr.Get(context.Background(), srv.URL+"/odata?$top=1&$format=json", h)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if resp.StatusCode != http.StatusOK || string(resp.Body) != `{"d":{"results":[]}}` {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Body)
	}
	if gotAuth != "Basic dTpw" || gotLang != "en-US,en;q=0.8" {
		t.Fatalf("headers not forwarded: auth=%q lang=%q", gotAuth, gotLang)
	}
	if gotQuery != "$top=1&$format=json" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
}

func TestHTTPTransportNon2xxIsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	resp, err := NewHTTPTransport(nil).Get(context.Background(), srv.URL, nil)
	if err != nil {
		t.Fatalf("non-2xx must not be an error: %v", err)
	}
	if resp.StatusCode != http.StatusInternalServerError || resp.Status == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestHTTPTransportCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHTTPTransport(nil).Get(ctx, srv.URL, nil); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
