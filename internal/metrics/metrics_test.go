package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func withTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	origReg := prometheus.DefaultRegisterer
	origGather := prometheus.DefaultGatherer
	reg := prometheus.NewRegistry()
	prometheus.DefaultRegisterer = reg
	prometheus.DefaultGatherer = reg
	t.Cleanup(func() {
		prometheus.DefaultRegisterer = origReg
		prometheus.DefaultGatherer = origGather
	})
	return reg
}

func TestNoopMetrics(t *testing.T) {
	var m Noop
	m.IncRequests("text_to_speech")
	m.IncRequestFailures("text_to_speech", "synthesis")
	m.ObserveSynthesisDuration(0.5)
	m.IncUploads("s3", StatusOK)
	m.IncSweeps(StatusOK)
	m.AddSweptFiles(3)
}

func TestPromMetrics(t *testing.T) {
	reg := withTestRegistry(t)
	m := NewProm("kokoro")
	m.IncRequests("text_to_speech")
	m.IncRequestFailures("text_to_speech", "synthesis")
	m.ObserveSynthesisDuration(0.5)
	m.IncUploads("s3", StatusFailed)
	m.IncSweeps(StatusOK)
	m.AddSweptFiles(2)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if !hasMetric(families, "kokoro_requests_total", map[string]string{"tool": "text_to_speech"}) {
		t.Fatalf("expected requests metric")
	}
	if !hasMetric(families, "kokoro_request_failures_total", map[string]string{"tool": "text_to_speech", "reason": "synthesis"}) {
		t.Fatalf("expected request_failures metric")
	}
	if !hasMetric(families, "kokoro_synthesis_duration_seconds", nil) {
		t.Fatalf("expected synthesis_duration metric")
	}
	if !hasMetric(families, "kokoro_uploads_total", map[string]string{"backend": "s3", "status": "failed"}) {
		t.Fatalf("expected uploads metric")
	}
	if !hasMetric(families, "kokoro_sweeps_total", map[string]string{"status": "ok"}) {
		t.Fatalf("expected sweeps metric")
	}
	if !hasMetric(families, "kokoro_swept_files_total", nil) {
		t.Fatalf("expected swept_files metric")
	}
}

func TestHandler(t *testing.T) {
	withTestRegistry(t)
	m := NewProm("kokoro")
	m.IncRequests("list_voices")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected metrics output")
	}
}

func hasMetric(families []*dto.MetricFamily, name string, labels map[string]string) bool {
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if matchLabels(metric.GetLabel(), labels) {
				return true
			}
		}
	}
	return false
}

func matchLabels(pairs []*dto.LabelPair, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	found := 0
	for _, pair := range pairs {
		if val, ok := labels[pair.GetName()]; ok && pair.GetValue() == val {
			found++
		}
	}
	return found == len(labels)
}
