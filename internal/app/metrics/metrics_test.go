package metrics

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	io_prometheus_client "github.com/prometheus/client_model/go"
)

func TestInstrumentHandlerRecordsMetrics(t *testing.T) {
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/executions/exec-1", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}

	if !metricCounterGreaterOrEqual(t, "orchestrator_http_requests_total", map[string]string{
		"method": "GET",
		"path":   "/executions/:id",
		"status": "202",
	}, 1) {
		t.Fatalf("expected http request counter to increment")
	}

	if !metricHistogramCountGreaterOrEqual(t, "orchestrator_http_request_duration_seconds", map[string]string{
		"method": "GET",
		"path":   "/executions/:id",
	}, 1) {
		t.Fatalf("expected http duration histogram to record samples")
	}
}

func TestInstrumentHandler_MetricsPathPassthrough(t *testing.T) {
	called := false
	handler := InstrumentHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Error("expected /metrics path to pass through to handler")
	}
}

func TestRecordExecutionTerminal(t *testing.T) {
	RecordExecutionTerminal("completed")
	if !metricCounterGreaterOrEqual(t, "orchestrator_executions_executions_total", map[string]string{
		"status": "completed",
	}, 1) {
		t.Fatal("expected executions counter to increment")
	}

	RecordExecutionTerminal("")
	if !metricCounterGreaterOrEqual(t, "orchestrator_executions_executions_total", map[string]string{
		"status": "unknown",
	}, 1) {
		t.Fatal("expected empty status to record as unknown")
	}
}

func TestRecordStepDuration(t *testing.T) {
	RecordStepDuration("fetch_items", 2*time.Second)
	if !metricHistogramCountGreaterOrEqual(t, "orchestrator_executions_step_duration_seconds", map[string]string{
		"stage": "fetch_items",
	}, 1) {
		t.Fatal("expected step duration histogram to record")
	}

	RecordStepDuration("", -time.Second)
	if !metricHistogramCountGreaterOrEqual(t, "orchestrator_executions_step_duration_seconds", map[string]string{
		"stage": "unknown",
	}, 1) {
		t.Fatal("expected unlabeled/negative duration to still record under unknown")
	}
}

func TestRecordRegistrationAttempt(t *testing.T) {
	RecordRegistrationAttempt("shopify", "completed")
	if !metricCounterGreaterOrEqual(t, "orchestrator_registration_registrations_total", map[string]string{
		"platform": "shopify",
		"status":   "completed",
	}, 1) {
		t.Fatal("expected registration counter to increment")
	}

	RecordRegistrationAttempt("", "")
	if !metricCounterGreaterOrEqual(t, "orchestrator_registration_registrations_total", map[string]string{
		"platform": "unknown",
		"status":   "unknown",
	}, 1) {
		t.Fatal("expected empty labels to fall back to unknown")
	}
}

func TestRecordAlert(t *testing.T) {
	RecordAlert("critical")
	if !metricCounterGreaterOrEqual(t, "orchestrator_alerts_alerts_total", map[string]string{
		"severity": "critical",
	}, 1) {
		t.Fatal("expected alerts counter to increment")
	}
}

func metricCounterGreaterOrEqual(t *testing.T, name string, labels map[string]string, min float64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetCounter() != nil {
				return metric.GetCounter().GetValue() >= min
			}
		}
	}
	return false
}

func metricHistogramCountGreaterOrEqual(t *testing.T, name string, labels map[string]string, min uint64) bool {
	t.Helper()
	families, err := Registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if labelsMatch(metric, labels) && metric.GetHistogram() != nil {
				return metric.GetHistogram().GetSampleCount() >= min
			}
		}
	}
	return false
}

func labelsMatch(metric *io_prometheus_client.Metric, labels map[string]string) bool {
	if len(metric.GetLabel()) < len(labels) {
		return false
	}
	matched := 0
	for _, lbl := range metric.GetLabel() {
		if val, ok := labels[lbl.GetName()]; ok && val == lbl.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestCanonicalPath(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"", "/"},
		{"/", "/"},
		{"//", "/"},
		{"/healthz", "/healthz"},
		{"/executions", "/executions"},
		{"/executions/", "/executions"},
		{"/executions/exec-123", "/executions/:id"},
		{"/executions/exec-123/steps", "/executions/:id"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := canonicalPath(tt.input)
			if result != tt.expected {
				t.Errorf("canonicalPath(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	sr := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}
	sr.WriteHeader(http.StatusNotFound)
	if sr.status != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", sr.status)
	}

	rec2 := httptest.NewRecorder()
	sr2 := &statusRecorder{ResponseWriter: rec2, status: 0}
	n, err := sr2.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 bytes written, got %d", n)
	}
	if sr2.status != http.StatusOK {
		t.Errorf("expected default status 200, got %d", sr2.status)
	}
}

func TestHandler(t *testing.T) {
	h := Handler()
	if h == nil {
		t.Fatal("Handler() should return non-nil handler")
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected non-empty metrics response")
	}
}

func TestObservationHooks(t *testing.T) {
	hooks := ObservationHooks("test_ns", "test_sub", "test_op")

	if hooks.OnStart == nil {
		t.Fatal("OnStart should not be nil")
	}
	if hooks.OnComplete == nil {
		t.Fatal("OnComplete should not be nil")
	}

	hooks.OnStart(nil, map[string]string{"execution_id": "exec-1"})
	hooks.OnComplete(nil, map[string]string{"execution_id": "exec-1"}, nil, 100*time.Millisecond)
	hooks.OnComplete(nil, map[string]string{"execution_id": "exec-1"}, fmt.Errorf("boom"), 50*time.Millisecond)

	hooks2 := ObservationHooks("test_ns", "test_sub", "test_op")
	if hooks2.OnStart == nil || hooks2.OnComplete == nil {
		t.Fatal("cached hooks should be valid")
	}
}

func TestMetaLabel(t *testing.T) {
	tests := []struct {
		name     string
		meta     map[string]string
		expected string
	}{
		{"nil map", nil, "unknown"},
		{"empty map", map[string]string{}, "unknown"},
		{"execution_id key", map[string]string{"execution_id": "exec-1"}, "exec-1"},
		{"item_id key", map[string]string{"item_id": "item-1"}, "item-1"},
		{"batch_id key", map[string]string{"batch_id": "batch-1"}, "batch-1"},
		{"execution_id takes precedence", map[string]string{"execution_id": "exec-1", "item_id": "item-1"}, "exec-1"},
		{"empty execution_id falls through", map[string]string{"execution_id": "", "item_id": "item-1"}, "item-1"},
		{"all empty returns unknown", map[string]string{"execution_id": "", "item_id": ""}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := metaLabel(tt.meta)
			if result != tt.expected {
				t.Errorf("metaLabel(%v) = %q, want %q", tt.meta, result, tt.expected)
			}
		})
	}
}

func TestSpecificHookFactories(t *testing.T) {
	tests := []struct {
		name  string
		hooks func() any
	}{
		{"OrchestratorStageHooks", func() any { return OrchestratorStageHooks() }},
		{"RegistrationDispatchHooks", func() any { return RegistrationDispatchHooks() }},
		{"SchedulerTickHooks", func() any { return SchedulerTickHooks() }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.hooks() == nil {
				t.Errorf("%s() returned nil", tt.name)
			}
		})
	}
}
