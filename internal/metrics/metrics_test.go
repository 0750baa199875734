package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/hitoshi/weekly/internal/httpclient"
)

// findMetric はレジストリから指定名・ラベル値のメトリクスを探す。
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
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string)
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
	if c := NewCollector(prometheus.NewRegistry()); c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPRequest_CountsByRouteAndStatus はルートとステータス別に数えることを検証する。
func TestRecordHTTPRequest_CountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, "/weekly/{username}", 200, 10*time.Millisecond)
	c.RecordHTTPRequest(http.MethodGet, "/weekly/{username}", 200, 20*time.Millisecond)
	c.RecordHTTPRequest(http.MethodPost, "/edit/{username}/{date}", 401, time.Millisecond)

	m := findMetric(t, reg, "weekly_http_requests_total", map[string]string{
		"method": "GET", "route": "/weekly/{username}", "status_code": "200",
	})
	if v := m.GetCounter().GetValue(); v != 2 {
		t.Errorf("http_requests_total = %v, want 2", v)
	}
	m = findMetric(t, reg, "weekly_http_requests_total", map[string]string{
		"method": "POST", "status_code": "401",
	})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("http_requests_total{401} = %v, want 1", v)
	}

	h := findMetric(t, reg, "weekly_http_request_duration_seconds", map[string]string{"route": "/weekly/{username}"})
	if n := h.GetHistogram().GetSampleCount(); n != 2 {
		t.Errorf("sample_count = %d, want 2", n)
	}
}

// TestRecordHTTPRequest_UnmatchedRoute は空のルートをunmatchedとして記録することを検証する。
func TestRecordHTTPRequest_UnmatchedRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, "", 404, time.Millisecond)

	findMetric(t, reg, "weekly_http_requests_total", map[string]string{"route": "unmatched", "status_code": "404"})
}

// TestObserveUpstream_RecordsStatusAndLatency は上流呼び出しが記録されることを検証する。
func TestObserveUpstream_RecordsStatusAndLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveUpstream(http.MethodPost, 200, 100*time.Millisecond)
	c.ObserveUpstream(http.MethodPost, 0, 2*time.Second)

	m := findMetric(t, reg, "weekly_oidc_requests_total", map[string]string{"method": "POST", "status_code": "0"})
	if v := m.GetCounter().GetValue(); v != 1 {
		t.Errorf("oidc_requests_total{0} = %v, want 1", v)
	}

	h := findMetric(t, reg, "weekly_oidc_request_duration_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordSession_CountsByOutcome はセッション結果別に数えることを検証する。
func TestRecordSession_CountsByOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSession("valid")
	c.RecordSession("refreshed")
	c.RecordSession("valid")

	if v := findMetric(t, reg, "weekly_sessions_total", map[string]string{"outcome": "valid"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("sessions_total{valid} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "weekly_sessions_total", map[string]string{"outcome": "refreshed"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("sessions_total{refreshed} = %v, want 1", v)
	}
}

// TestRecordWeeklyUpdated_IncrementsCounter は週報保存カウンタが増加することを検証する。
func TestRecordWeeklyUpdated_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWeeklyUpdated()
	c.RecordWeeklyUpdated()

	if v := findMetric(t, reg, "weekly_posts_updated_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("posts_updated_total = %v, want 2", v)
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat はHandlerがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPRequest(http.MethodGet, "/", 302, time.Millisecond)
	c.ObserveUpstream(http.MethodGet, 200, time.Millisecond)
	c.RecordSession("invalid")
	c.RecordWeeklyUpdated()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"weekly_http_requests_total",
		"weekly_http_request_duration_seconds",
		"weekly_oidc_requests_total",
		"weekly_sessions_total",
		"weekly_posts_updated_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsInterfaces はCollectorが利用側のインターフェースを満たすことを検証する。
func TestCollector_ImplementsInterfaces(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())
	var _ MetricsCollector = c
	var _ httpclient.Observer = c
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordWeeklyUpdated()
	c2.RecordWeeklyUpdated()
	c2.RecordWeeklyUpdated()

	if v := findMetric(t, reg1, "weekly_posts_updated_total", nil).GetCounter().GetValue(); v != 1 {
		t.Errorf("reg1 posts_updated = %v, want 1", v)
	}
	if v := findMetric(t, reg2, "weekly_posts_updated_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("reg2 posts_updated = %v, want 2", v)
	}
}
