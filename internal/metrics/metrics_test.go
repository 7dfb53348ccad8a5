package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/taskboard/internal/model"
)

// findMetric は名前とラベルが一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPRequest_CountsByRouteAndStatus はHTTPリクエストがルート・ステータス別に記録されることを検証する。
func TestRecordHTTPRequest_CountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, "/api/boards/{boardId}", 200, 10*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, "/api/boards/{boardId}", 200, 20*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, "/api/boards/{boardId}", 404, 5*time.Millisecond)

	ok := findMetric(t, reg, "taskboard_http_requests_total", map[string]string{
		"method": "GET", "route": "/api/boards/{boardId}", "status": "200",
	})
	if ok == nil {
		t.Fatal("taskboard_http_requests_total{status=200} not found")
	}
	if val := ok.GetCounter().GetValue(); val != 2 {
		t.Errorf("http_requests_total{status=200} = %v, want 2", val)
	}

	notFound := findMetric(t, reg, "taskboard_http_requests_total", map[string]string{"status": "404"})
	if notFound == nil || notFound.GetCounter().GetValue() != 1 {
		t.Errorf("http_requests_total{status=404} = %v, want 1", notFound)
	}

	h := findMetric(t, reg, "taskboard_http_request_duration_seconds", map[string]string{"route": "/api/boards/{boardId}"})
	if h == nil {
		t.Fatal("taskboard_http_request_duration_seconds not found")
	}
	if h.GetHistogram().GetSampleCount() != 3 {
		t.Errorf("sample_count = %d, want 3", h.GetHistogram().GetSampleCount())
	}
}

// TestRecordStoreOperation_ClassifiesResult はストア操作の結果がok/not_found/errorに分類されることを検証する。
func TestRecordStoreOperation_ClassifiesResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordStoreOperation("DeleteTask", nil, time.Millisecond)
	c.RecordStoreOperation("DeleteTask", model.ErrNotFound, time.Millisecond)
	c.RecordStoreOperation("DeleteTask", fmt.Errorf("wrapped: %w", model.ErrNotFound), time.Millisecond)
	c.RecordStoreOperation("DeleteTask", errors.New("disk full"), time.Millisecond)

	tests := []struct {
		result string
		want   float64
	}{
		{ResultOK, 1},
		{ResultNotFound, 2},
		{ResultError, 1},
	}
	for _, tt := range tests {
		m := findMetric(t, reg, "taskboard_store_operations_total", map[string]string{
			"operation": "DeleteTask", "result": tt.result,
		})
		if m == nil {
			t.Errorf("store_operations_total{result=%s} not found", tt.result)
			continue
		}
		if val := m.GetCounter().GetValue(); val != tt.want {
			t.Errorf("store_operations_total{result=%s} = %v, want %v", tt.result, val, tt.want)
		}
	}

	h := findMetric(t, reg, "taskboard_store_operation_duration_seconds", map[string]string{"operation": "DeleteTask"})
	if h == nil || h.GetHistogram().GetSampleCount() != 4 {
		t.Errorf("store_operation_duration_seconds sample_count = %v, want 4", h)
	}
}

// TestRecordRateLimited_IncrementsCounterWithLabel はレート制限カウンタが種別ラベル付きで増加することを検証する。
func TestRecordRateLimited_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRateLimited("auth")
	c.RecordRateLimited("auth")
	c.RecordRateLimited("general")

	auth := findMetric(t, reg, "taskboard_rate_limited_total", map[string]string{"limit_type": "auth"})
	if auth == nil || auth.GetCounter().GetValue() != 2 {
		t.Errorf("rate_limited_total{limit_type=auth} = %v, want 2", auth)
	}
	general := findMetric(t, reg, "taskboard_rate_limited_total", map[string]string{"limit_type": "general"})
	if general == nil || general.GetCounter().GetValue() != 1 {
		t.Errorf("rate_limited_total{limit_type=general} = %v, want 1", general)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodPost, "/api/boards", 200, 30*time.Millisecond)
	c.RecordStoreOperation("CreateBoard", nil, time.Millisecond)
	c.RecordRateLimited("general")

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"taskboard_http_requests_total",
		"taskboard_http_request_duration_seconds",
		"taskboard_store_operations_total",
		"taskboard_store_operation_duration_seconds",
		"taskboard_rate_limited_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordRateLimited("auth")
	c2.RecordRateLimited("auth")
	c2.RecordRateLimited("auth")

	m1 := findMetric(t, reg1, "taskboard_rate_limited_total", nil)
	m2 := findMetric(t, reg2, "taskboard_rate_limited_total", nil)

	if m1 == nil || m1.GetCounter().GetValue() != 1 {
		t.Errorf("reg1 rate_limited = %v, want 1", m1)
	}
	if m2 == nil || m2.GetCounter().GetValue() != 2 {
		t.Errorf("reg2 rate_limited = %v, want 2", m2)
	}
}
