package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewSurveyCollector_RegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSurveyCollector(reg)
	if err != nil {
		t.Fatalf("NewSurveyCollector: %v", err)
	}

	collector.HTTPRequests.WithLabelValues("/v1/heatmap", http.MethodGet, "200").Inc()
	collector.ObserveRecompute("applied", 3*time.Millisecond)
	collector.ObserveSample("accepted")
	collector.SetSurveyCounts(4, 2, 9, 1)
	collector.StrengthClampTotal.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	byName := map[string]*dto.MetricFamily{}
	for _, mf := range families {
		byName[mf.GetName()] = mf
	}

	for _, name := range []string{
		"mapper_http_requests_total",
		"mapper_recomputes_total",
		"mapper_recompute_duration_seconds",
		"mapper_samples_ingested_total",
		"mapper_calibration_points",
		"mapper_active_anchors",
		"mapper_gap_cells",
		"mapper_recommended_sites",
		"mapper_strength_clamps_total",
	} {
		if _, ok := byName[name]; !ok {
			t.Errorf("metric %s not registered", name)
		}
	}

	gaps := byName["mapper_gap_cells"]
	if got := gaps.GetMetric()[0].GetGauge().GetValue(); got != 9 {
		t.Errorf("gap cells gauge = %v, want 9", got)
	}
}

func TestNewSurveyCollector_ToleratesReRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSurveyCollector(reg)
	if err != nil {
		t.Fatalf("first NewSurveyCollector: %v", err)
	}
	second, err := NewSurveyCollector(reg)
	if err != nil {
		t.Fatalf("second NewSurveyCollector: %v", err)
	}
	if first.RecomputeTotal != second.RecomputeTotal {
		t.Error("expected re-registration to reuse the existing counter vec")
	}
}

func TestSurveyCollector_MiddlewareCountsByStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSurveyCollector(reg)
	if err != nil {
		t.Fatalf("NewSurveyCollector: %v", err)
	}

	handler := collector.Middleware("/v1/position", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/position", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var found bool
	for _, mf := range families {
		if mf.GetName() != "mapper_http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["route"] == "/v1/position" && labels["method"] == http.MethodGet && labels["code"] == "404" {
				found = true
				if got := m.GetCounter().GetValue(); got != 2 {
					t.Errorf("request count = %v, want 2", got)
				}
			}
		}
	}
	if !found {
		t.Error("expected a 404-labeled series for /v1/position")
	}
}

func TestSurveyCollector_AddStrengthClamps(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSurveyCollector(reg)
	if err != nil {
		t.Fatalf("NewSurveyCollector: %v", err)
	}

	collector.AddStrengthClamps(3)
	collector.AddStrengthClamps(2)
	collector.AddStrengthClamps(0)
	collector.AddStrengthClamps(-1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "mapper_strength_clamps_total" {
			continue
		}
		if got := mf.GetMetric()[0].GetCounter().GetValue(); got != 5 {
			t.Errorf("clamp counter = %v, want 5", got)
		}
		return
	}
	t.Fatal("mapper_strength_clamps_total not gathered")
}

func TestSurveyCollector_NilSafe(t *testing.T) {
	var collector *SurveyCollector
	collector.ObserveRecompute("applied", time.Millisecond)
	collector.ObserveSample("stale")
	collector.AddStrengthClamps(1)
	collector.SetSurveyCounts(0, 0, 0, 0)
}
