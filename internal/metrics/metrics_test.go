package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
)

func findMetric(t *testing.T, m *Metrics, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if labelsMatch(metric.GetLabel(), labels) {
				return metric
			}
		}
	}
	return nil
}

func labelsMatch(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(want) == 0 {
		return true
	}
	found := 0
	for _, lp := range pairs {
		if v, ok := want[lp.GetName()]; ok && v == lp.GetValue() {
			found++
		}
	}
	return found == len(want)
}

func TestRecorders(t *testing.T) {
	m := New("test")
	m.RecordUpload("file", 10)
	m.RecordUpload("file", 5)
	m.RecordUploadError("too_large")
	m.RecordConsumed()
	m.RecordDeleted("text")
	m.RecordExpired("sweep", 3)
	m.RecordExpired("lazy", 0)
	m.RecordBackendError("minio", "store")
	m.ObserveRequest("GET", "/api/file/{code}", 404, 20*time.Millisecond)

	if got := findMetric(t, m, "dropfade_uploads_total", map[string]string{"kind": "file"}); got == nil || got.GetCounter().GetValue() != 2 {
		t.Fatalf("unexpected uploads_total: %v", got)
	}
	if got := findMetric(t, m, "dropfade_upload_bytes_total", map[string]string{"kind": "file"}); got == nil || got.GetCounter().GetValue() != 15 {
		t.Fatalf("unexpected upload_bytes_total: %v", got)
	}
	if got := findMetric(t, m, "dropfade_expired_total", map[string]string{"path": "sweep"}); got == nil || got.GetCounter().GetValue() != 3 {
		t.Fatalf("unexpected expired_total: %v", got)
	}
	if got := findMetric(t, m, "dropfade_expired_total", map[string]string{"path": "lazy"}); got != nil {
		t.Fatalf("zero expirations should not create a series")
	}
	if findMetric(t, m, "dropfade_http_requests_total", map[string]string{"route": "/api/file/{code}", "status": "404"}) == nil {
		t.Fatalf("expected http_requests_total series")
	}
	if findMetric(t, m, "dropfade_backend_errors_total", map[string]string{"backend": "minio", "op": "store"}) == nil {
		t.Fatalf("expected backend_errors_total series")
	}
}

func TestTrackRecords(t *testing.T) {
	m := New("test")
	n := 4
	m.TrackRecords(func() int { return n })
	got := findMetric(t, m, "dropfade_records", nil)
	if got == nil || got.GetGauge().GetValue() != 4 {
		t.Fatalf("unexpected records gauge: %v", got)
	}
	n = 1
	if got := findMetric(t, m, "dropfade_records", nil); got.GetGauge().GetValue() != 1 {
		t.Fatalf("gauge should follow the callback")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordUpload("file", 1)
	m.RecordUploadError("x")
	m.RecordConsumed()
	m.RecordDeleted("file")
	m.RecordExpired("sweep", 1)
	m.RecordBackendError("memory", "delete")
	m.ObserveRequest("GET", "/", 200, time.Millisecond)
	m.TrackRecords(func() int { return 0 })
	if m.Registry() != nil {
		t.Fatalf("nil metrics should have no registry")
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestHandlerExposition(t *testing.T) {
	m := New("1.2.3")
	m.RecordConsumed()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	text := string(body)

	for _, want := range []string{
		"dropfade_consumed_total 1",
		`dropfade_info{version="1.2.3"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("exposition missing %q", want)
		}
	}
}
