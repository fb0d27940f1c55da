package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "pending-payment-sweep"
	metrics.ObserveDuration(job, 250*time.Millisecond)
	metrics.IncSuccess(job)
	metrics.IncFailure(job)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_success_total", "job", job); err != nil {
		t.Fatalf("fetch success: %v", err)
	} else if got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "cron_job_failure_total", "job", job); err != nil {
		t.Fatalf("fetch failure: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}

	if got, err := fetchHistogramSum(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
}

func TestGateMetricsCountAdmissionsAndCredits(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewGateMetrics(reg)

	metrics.IncAdmitted("api_key")
	metrics.IncAdmitted("api_key")
	metrics.IncDenied("QUOTA_EXCEEDED")
	metrics.AddCreditsConsumed("fetch/video", 10)
	metrics.AddCreditsConsumed("fetch/video", 0) // no-op

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "gate_admitted_total", "caller", "api_key"); err != nil {
		t.Fatalf("fetch admitted: %v", err)
	} else if got != 2 {
		t.Fatalf("expected admitted=2, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "gate_denied_total", "reason", "QUOTA_EXCEEDED"); err != nil {
		t.Fatalf("fetch denied: %v", err)
	} else if got != 1 {
		t.Fatalf("expected denied=1, got %f", got)
	}

	if got, err := fetchCounterValue(mfs, "gate_credits_consumed_total", "operation", "fetch/video"); err != nil {
		t.Fatalf("fetch credits: %v", err)
	} else if got != 10 {
		t.Fatalf("expected credits=10, got %f", got)
	}
}

func TestNilRegistererProducesNoopMetrics(t *testing.T) {
	cron := NewCronJobMetrics(nil)
	cron.IncSuccess("whatever")
	gate := NewGateMetrics(nil)
	gate.IncDenied("whatever")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
