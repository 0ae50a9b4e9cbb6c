package entities

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractMetrics(t *testing.T) {
	got := ExtractMetrics("Success rate: 94.5%, response time: 450 ms, transaction volume: 125,000")

	assert.Equal(t, map[string]float64{
		"success_rate":       94.5,
		"response_time_ms":   450,
		"transaction_volume": 125000,
	}, got)
}

func TestExtractMetricsNamedDurations(t *testing.T) {
	got := ExtractMetrics("latency: 120ms\nprocessing time: 3 seconds\nrequest count: 1,024")

	assert.Equal(t, 120.0, got["latency_ms"])
	assert.Equal(t, 3.0, got["processing_time"])
	assert.Equal(t, 1024.0, got["request_count"])
}

func TestExtractMetricsWholeNumbers(t *testing.T) {
	got := ExtractMetrics("response time: 450 ms, latency: 12.5ms, total transactions: 2,500")

	assert.Equal(t, 450.0, got["response_time_ms"])
	assert.Equal(t, 2500.0, got["total_transactions"])
	assert.NotContains(t, got, "latency_ms")
	for _, key := range []string{"response_time_ms", "total_transactions"} {
		assert.Equal(t, math.Trunc(got[key]), got[key], key)
	}
}

func TestExtractMetricsEmpty(t *testing.T) {
	assert.Empty(t, ExtractMetrics("nothing measurable"))
}

func TestExtractKeyValuePairs(t *testing.T) {
	got := ExtractKeyValuePairs("Status: SUCCESS\nBank Name = HDFC; Response Time: 450ms")

	assert.Equal(t, map[string]string{
		"status":        "SUCCESS",
		"bank_name":     "HDFC",
		"response_time": "450ms",
	}, got)
}
