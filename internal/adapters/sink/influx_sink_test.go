package sink

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/ghalamif/SensorLens/internal/domain"
)

func TestInfluxSinkWriteBatch(t *testing.T) {
	var (
		mu    sync.Mutex
		body  string
		query string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/write" {
			http.NotFound(w, r)
			return
		}
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(b)
		query = r.URL.RawQuery
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := influxdb2.NewClient(srv.URL, "token")
	defer client.Close()

	sink := NewInfluxSink(client, "lab", "telemetry", "")
	if err := sink.WriteBatch(context.Background(), testBatch(time.Unix(1465941485, 0))); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if !strings.HasPrefix(body, "sensor_phone,") {
		t.Fatalf("unexpected measurement in %q", body)
	}
	if !strings.Contains(body, "batch_id=batch-1") || !strings.Contains(body, "device_id=2ad39033") {
		t.Fatalf("missing tags in %q", body)
	}
	if !strings.Contains(body, "altitude_n=0.5") || !strings.Contains(body, "accel_mag=0.97") {
		t.Fatalf("missing fields in %q", body)
	}
	if !strings.Contains(query, "bucket=telemetry") || !strings.Contains(query, "org=lab") {
		t.Fatalf("unexpected query %q", query)
	}
}

func TestInfluxSinkServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"code":"unauthorized","message":"unauthorized access"}`))
	}))
	defer srv.Close()

	client := influxdb2.NewClient(srv.URL, "bad")
	defer client.Close()

	sink := NewInfluxSink(client, "lab", "telemetry", "m")
	if err := sink.WriteBatch(context.Background(), testBatch(time.Now())); err == nil {
		t.Fatalf("expected error from rejected write")
	}
	if err := sink.WriteBatch(context.Background(), &domain.Batch{}); err != nil {
		t.Fatalf("empty batch must not be written: %v", err)
	}
}
