package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRender(t *testing.T) {
	r := New()
	r.RecordRender("http", "natal", "ok", 0.2)
	r.RecordRender("http", "natal", "ok", 0.3)
	r.RecordRender("ws", "synastry", "sink_failure", 0.1)

	if got := testutil.ToFloat64(r.renders.WithLabelValues("http", "natal", "ok")); got != 2 {
		t.Errorf("http/natal/ok = %v, want 2", got)
	}
	if got := testutil.ToFloat64(r.renders.WithLabelValues("ws", "synastry", "sink_failure")); got != 1 {
		t.Errorf("ws/synastry/sink_failure = %v, want 1", got)
	}
}

func TestRecordDelivery(t *testing.T) {
	r := New()
	r.RecordDelivery("webrtc", 10, 44144, 3)
	r.RecordDelivery("webrtc", 5, 100, 0)

	if got := testutil.ToFloat64(r.frames.WithLabelValues("webrtc")); got != 15 {
		t.Errorf("frames = %v, want 15", got)
	}
	if got := testutil.ToFloat64(r.bytesSent.WithLabelValues("webrtc")); got != 44244 {
		t.Errorf("bytes = %v, want 44244", got)
	}
	if got := testutil.ToFloat64(r.sinkWaits.WithLabelValues("webrtc")); got != 3 {
		t.Errorf("waits = %v, want 3", got)
	}
}

func TestStreamStartedGauge(t *testing.T) {
	r := New()
	done1 := r.StreamStarted("http")
	done2 := r.StreamStarted("http")
	if got := testutil.ToFloat64(r.active.WithLabelValues("http")); got != 2 {
		t.Errorf("active = %v, want 2", got)
	}
	done1()
	done2()
	if got := testutil.ToFloat64(r.active.WithLabelValues("http")); got != 0 {
		t.Errorf("active = %v, want 0", got)
	}
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.RecordCache(true)
	if got := testutil.ToFloat64(b.cacheLookup.WithLabelValues("hit")); got != 0 {
		t.Errorf("second recorder saw %v hits", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordCache(false)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `astrosonic_cache_lookups_total{result="miss"} 1`) {
		t.Errorf("metrics output missing cache counter:\n%s", body)
	}
}
