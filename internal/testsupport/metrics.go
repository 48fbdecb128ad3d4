package testsupport

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Metric names shared by the grouping tests.
const (
	GroupingEventsMetric        = "grouper_grouping_events_total"
	GroupingDurationMetric      = "grouper_grouping_duration_seconds"
	BackgroundComparisonsMetric = "grouper_grouping_background_comparisons_total"
	ConfigFallbacksMetric       = "grouper_grouping_config_fallbacks_total"
)

// GetMetricValue sums every series of metricName whose labels contain
// labelFilter. Counters and gauges contribute their value, histograms their
// sample count. A metric that was never observed reads as 0.
func GetMetricValue(t *testing.T, metricName string, labelFilter map[string]string) float64 {
	t.Helper()

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err, "gather metrics")

	var total float64
	for _, family := range families {
		if family.GetName() != metricName {
			continue
		}
		for _, m := range family.GetMetric() {
			if hasLabels(m, labelFilter) {
				total += sampleValue(m)
			}
		}
	}
	return total
}

// GroupingEvents reads the grouped event counter for one config and status.
func GroupingEvents(t *testing.T, configID, status string) float64 {
	t.Helper()
	return GetMetricValue(t, GroupingEventsMetric, map[string]string{"config": configID, "status": status})
}

// BackgroundComparisons reads the background evaluations of configID across
// every result.
func BackgroundComparisons(t *testing.T, configID string) float64 {
	t.Helper()
	return GetMetricValue(t, BackgroundComparisonsMetric, map[string]string{"config": configID})
}

// AssertMetricDelta asserts that fn moves metricName by exactly expectedDelta.
func AssertMetricDelta(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	before := GetMetricValue(t, metricName, labels)
	fn()
	after := GetMetricValue(t, metricName, labels)

	assert.Equal(t, expectedDelta, after-before, "metric %s%v delta mismatch", metricName, labels)
}

// AssertMetricDeltaAsync is AssertMetricDelta for work that completes in the
// background, such as the warmer loop.
func AssertMetricDeltaAsync(t *testing.T, metricName string, labels map[string]string, expectedDelta float64, fn func()) {
	t.Helper()

	want := GetMetricValue(t, metricName, labels) + expectedDelta
	fn()

	require.Eventually(t, func() bool {
		return GetMetricValue(t, metricName, labels) == want
	}, 2*time.Second, 50*time.Millisecond, "metric %s%v never reached %.0f", metricName, labels, want)
}

// AssertHistogramRecorded asserts that a histogram holds at least one sample.
func AssertHistogramRecorded(t *testing.T, metricName string, labels map[string]string) {
	t.Helper()
	assert.Positive(t, GetMetricValue(t, metricName, labels), "histogram %s%v has no samples", metricName, labels)
}

func sampleValue(m *dto.Metric) float64 {
	switch {
	case m.GetCounter() != nil:
		return m.GetCounter().GetValue()
	case m.GetGauge() != nil:
		return m.GetGauge().GetValue()
	case m.GetHistogram() != nil:
		return float64(m.GetHistogram().GetSampleCount())
	}
	return 0
}

func hasLabels(m *dto.Metric, filter map[string]string) bool {
	for name, value := range filter {
		found := false
		for _, pair := range m.GetLabel() {
			if pair.GetName() == name {
				found = pair.GetValue() == value
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
