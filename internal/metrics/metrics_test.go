package metrics

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	r.Transition("create", nil)
	r.Escalation("alert")
	r.Archived()
	r.Sweep(time.Second, 0)
	if r.Registry() != nil {
		t.Error("expected nil registry for nil recorder")
	}
}

func TestRecorder_CountsTransitions(t *testing.T) {
	r := New()
	r.Transition("out", nil)
	r.Transition("out", nil)
	r.Transition("out", errors.New("cannot out to current location"))

	if got := testutil.ToFloat64(r.transitions.WithLabelValues("out")); got != 2 {
		t.Errorf("expected 2 accepted outs, got %v", got)
	}
	if got := testutil.ToFloat64(r.rejections.WithLabelValues("out")); got != 1 {
		t.Errorf("expected 1 rejected out, got %v", got)
	}
}

func TestRecorder_EscalationIgnoresEmptyLevel(t *testing.T) {
	r := New()
	r.Escalation("")
	r.Escalation("warning")

	if got := testutil.ToFloat64(r.escalations.WithLabelValues("warning")); got != 1 {
		t.Errorf("expected 1 warning, got %v", got)
	}
}

func TestRecorder_HandlerServesMetrics(t *testing.T) {
	r := New()
	r.Archived()

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "hallpass_passes_archived_total 1") {
		t.Errorf("expected archived counter in exposition output")
	}
}
