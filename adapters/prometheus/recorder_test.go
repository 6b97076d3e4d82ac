package prometheus

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"github.com/goliatone/go-integrations/core"
)

func findFamily(t *testing.T, r *Recorder, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestMetricName(t *testing.T) {
	cases := map[string]string{
		"integrations.webhooks.handle.total": "integrations_webhooks_handle_total",
		" integrations.http-requests ":       "integrations_http_requests",
		"9lives":                             "_9lives",
		"ns:metric":                          "ns:metric",
	}
	for in, want := range cases {
		if got := MetricName(in); got != want {
			t.Fatalf("MetricName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRecorder_CountersKeepFirstLabelSet(t *testing.T) {
	r := New()
	ctx := context.Background()
	r.IncCounter(ctx, "integrations.webhooks.handle", 1, map[string]string{"platform": "github", "status": "success"})
	r.IncCounter(ctx, "integrations.webhooks.handle", 2, map[string]string{"platform": "github", "status": "success"})
	r.IncCounter(ctx, "integrations.webhooks.handle", 1, map[string]string{"platform": "shopify", "extra": "dropped"})

	family := findFamily(t, r, "integrations_webhooks_handle_total")
	if len(family.GetMetric()) != 2 {
		t.Fatalf("expected two label combinations, got %d", len(family.GetMetric()))
	}
	totals := map[string]float64{}
	for _, metric := range family.GetMetric() {
		var platform, status string
		for _, pair := range metric.GetLabel() {
			switch pair.GetName() {
			case "platform":
				platform = pair.GetValue()
			case "status":
				status = pair.GetValue()
			case "extra":
				t.Fatalf("unexpected extra label")
			}
		}
		totals[platform+"/"+status] = metric.GetCounter().GetValue()
	}
	if totals["github/success"] != 3 || totals["shopify/"] != 1 {
		t.Fatalf("unexpected counter values: %v", totals)
	}
}

func TestRecorder_HistogramAndHandler(t *testing.T) {
	r := New(WithBuckets([]float64{10, 100}))
	var recorder core.MetricsRecorder = r
	ctx := context.Background()
	recorder.ObserveHistogram(ctx, "integrations.http.duration_ms", 42, map[string]string{"route": "/healthz"})
	recorder.ObserveHistogram(ctx, "integrations.http.duration_ms", 7, map[string]string{"route": "/healthz"})

	family := findFamily(t, r, "integrations_http_duration_ms")
	histogram := family.GetMetric()[0].GetHistogram()
	if histogram.GetSampleCount() != 2 || histogram.GetSampleSum() != 49 {
		t.Fatalf("unexpected histogram: count=%d sum=%v", histogram.GetSampleCount(), histogram.GetSampleSum())
	}

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `integrations_http_duration_ms_count{route="/healthz"} 2`) {
		t.Fatalf("expected histogram in exposition, got:\n%s", body)
	}
}

func TestRecorder_IgnoresBlankNamesAndNegativeCounts(t *testing.T) {
	r := New()
	r.IncCounter(context.Background(), "  ", 1, nil)
	r.IncCounter(context.Background(), "integrations.skipped", -1, nil)
	families, err := r.Registry().Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 0 {
		t.Fatalf("expected no metrics, got %d", len(families))
	}
}
