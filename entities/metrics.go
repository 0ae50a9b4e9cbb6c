package entities

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	percentagePattern  = regexp.MustCompile(`(?i)(\w+(?:\s+\w+)?)\s*[:\s]+\s*([0-9]+(?:\.[0-9]+)?)\s*%`)
	successRatePattern = regexp.MustCompile(`(?i)success rate[:\s]+([0-9]+(?:\.[0-9]+)?)\s*%`)
	keyValuePattern    = regexp.MustCompile(`(\w+(?:\s+\w+)?)\s*[:=]\s*([^\n,;]+)`)

	durationPatterns = []struct {
		key string
		re  *regexp.Regexp
	}{
		{"response_time_ms", regexp.MustCompile(`(?i)response time[:\s]+([0-9]+)\s*ms`)},
		{"latency_ms", regexp.MustCompile(`(?i)latency[:\s]+([0-9]+)\s*ms`)},
		{"processing_time", regexp.MustCompile(`(?i)processing time[:\s]+([0-9]+)\s*(?:ms|seconds?)`)},
	}

	volumePatterns = []struct {
		key string
		re  *regexp.Regexp
	}{
		{"transaction_volume", regexp.MustCompile(`(?i)transaction volume[:\s]+([0-9,]+)`)},
		{"total_transactions", regexp.MustCompile(`(?i)total transactions[:\s]+([0-9,]+)`)},
		{"request_count", regexp.MustCompile(`(?i)request count[:\s]+([0-9,]+)`)},
	}
)

// ExtractMetrics parses percentage metrics ("success rate: 94.5%"), durations and volumes.
// Every metric is a float64. Durations and volumes are parsed as integers and carried as
// whole-valued floats, with thousands separators stripped.
func ExtractMetrics(text string) map[string]float64 {
	metrics := make(map[string]float64)

	for _, m := range percentagePattern.FindAllStringSubmatch(text, -1) {
		if v, err := strconv.ParseFloat(m[2], 64); err == nil {
			metrics[normalizeKey(m[1])] = v
		}
	}

	if m := successRatePattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			metrics["success_rate"] = v
		}
	}

	for _, p := range durationPatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(m[1]); err == nil {
				metrics[p.key] = float64(v)
			}
		}
	}

	for _, p := range volumePatterns {
		if m := p.re.FindStringSubmatch(text); m != nil {
			if v, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", "")); err == nil {
				metrics[p.key] = float64(v)
			}
		}
	}

	return metrics
}

// ExtractKeyValuePairs parses "key: value" and "key = value" pairs. Keys are lower-cased
// with spaces replaced by underscores; a later duplicate key wins.
func ExtractKeyValuePairs(text string) map[string]string {
	pairs := make(map[string]string)
	for _, m := range keyValuePattern.FindAllStringSubmatch(text, -1) {
		pairs[normalizeKey(m[1])] = strings.TrimSpace(m[2])
	}
	return pairs
}

func normalizeKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
}
