// Package entities pulls structured facts out of payment-operations text: money amounts,
// identifiers, dates, endpoints and error codes via a fixed regex battery, plus organizations,
// persons and locations from an external named-entity tagger.
package entities

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Bucket names.
const (
	Organizations  = "organizations"
	Persons        = "persons"
	Locations      = "locations"
	Dates          = "dates"
	Amounts        = "amounts"
	TransactionIDs = "transaction_ids"
	AccountNumbers = "account_numbers"
	APIEndpoints   = "api_endpoints"
	ErrorCodes     = "error_codes"
	IPAddresses    = "ip_addresses"
	URLs           = "urls"
	Banks          = "banks"
)

// NER input is capped to keep tagging calls cheap.
const nerSampleLimit = 1000

// Span is one entity returned by a tagger.
type Span struct {
	Group string  `json:"entity_group"`
	Word  string  `json:"word"`
	Score float64 `json:"score"`
}

// Tagger is a named-entity recognition service.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Span, error)
}

// Bundle maps a bucket name to the distinct strings found for it.
type Bundle map[string][]string

// Counts returns the size of every non-empty bucket.
func (b Bundle) Counts() map[string]int {
	counts := make(map[string]int, len(b))
	for k, v := range b {
		if len(v) > 0 {
			counts[k] = len(v)
		}
	}
	return counts
}

// Has reports whether the bucket holds at least one value.
func (b Bundle) Has(bucket string) bool {
	return len(b[bucket]) > 0
}

func (b Bundle) add(bucket string, values ...string) {
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if !contains(b[bucket], v) {
			b[bucket] = append(b[bucket], v)
		}
	}
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

type pattern struct {
	bucket string
	re     *regexp.Regexp
}

var battery = []pattern{
	{Amounts, regexp.MustCompile(`(?i)₹\s*([0-9,]+(?:\.[0-9]{2})?)`)},
	{Amounts, regexp.MustCompile(`(?i)INR\s*([0-9,]+(?:\.[0-9]{2})?)`)},
	{Amounts, regexp.MustCompile(`(?i)Rs\.?\s*([0-9,]+(?:\.[0-9]{2})?)`)},
	{Amounts, regexp.MustCompile(`(?i)\$\s*([0-9,]+(?:\.[0-9]{2})?)`)},

	{TransactionIDs, regexp.MustCompile(`(?i)(?:TXN|TRANS|TRANSACTION)[_\s]*(?:ID|NUMBER)?[:\s]*([A-Z0-9]{8,20})`)},
	{TransactionIDs, regexp.MustCompile(`(?i)(?:REF|REFERENCE)[_\s]*(?:ID|NUMBER)?[:\s]*([A-Z0-9]{8,20})`)},
	{TransactionIDs, regexp.MustCompile(`(?i)\b[A-Z]{3}[0-9]{10,}\b`)},

	{AccountNumbers, regexp.MustCompile(`(?i)(?:ACCOUNT|ACC)[_\s]*(?:NO|NUMBER)?[:\s]*([X\d]{4,20})`)},
	{AccountNumbers, regexp.MustCompile(`\b\d{4}[-\s]?\d{4}[-\s]?\d{4}[-\s]?\d{4}\b`)},

	{Dates, regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)},
	{Dates, regexp.MustCompile(`\d{2}/\d{2}/\d{4}`)},
	{Dates, regexp.MustCompile(`\d{2}-\d{2}-\d{4}`)},
	{Dates, regexp.MustCompile(`(?i)(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2},?\s+\d{4}`)},

	{APIEndpoints, regexp.MustCompile(`(?i)/api/v?\d*/[\w/\-]+`)},
	{APIEndpoints, regexp.MustCompile(`(?i)(?:GET|POST|PUT|DELETE|PATCH)\s+([\w/\-]+)`)},

	{ErrorCodes, regexp.MustCompile(`(?i)(?:ERROR|ERR)[_\s]*(?:CODE)?[:\s]*([A-Z0-9_\-]{3,10})`)},
	{ErrorCodes, regexp.MustCompile(`\b[45]\d{2}\b`)},

	{IPAddresses, regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	{URLs, regexp.MustCompile("https?://[^\\s<>\"{}|\\\\^`\\[\\]]+")},
}

var nerBuckets = map[string]string{
	"ORG": Organizations,
	"PER": Persons,
	"LOC": Locations,
}

type Extractor struct {
	tagger Tagger
	logger *slog.Logger
}

// New returns an Extractor. A nil tagger disables the organization/person/location buckets.
func New(tagger Tagger, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{tagger: tagger, logger: logger}
}

// Extract never fails: a tagger error is logged and the regex buckets are still returned.
func (e *Extractor) Extract(ctx context.Context, text string) Bundle {
	b := make(Bundle)

	if e.tagger != nil && strings.TrimSpace(text) != "" {
		spans, err := e.tagger.Tag(ctx, truncateRunes(text, nerSampleLimit))
		if err != nil {
			e.logger.Warn("named-entity tagging failed, continuing with pattern matches", "error", err)
		}
		for _, s := range spans {
			if bucket, ok := nerBuckets[strings.ToUpper(s.Group)]; ok {
				b.add(bucket, s.Word)
			}
		}
	}

	for _, p := range battery {
		b.add(p.bucket, findAll(p.re, text)...)
	}
	b.add(Banks, BankNames(text)...)

	e.logger.Debug("extracted entities", "counts", b.Counts())
	return b
}

// findAll returns the first capture group of every match, or the whole match for patterns
// without groups.
func findAll(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > 1 {
			out = append(out, m[1])
		} else {
			out = append(out, m[0])
		}
	}
	return out
}

var bankNames = []string{
	"SBI", "State Bank", "HDFC", "ICICI", "Axis Bank", "Kotak",
	"Yes Bank", "IndusInd", "Bank of Baroda", "Punjab National",
	"Canara Bank", "Union Bank", "Bank of India", "Indian Bank",
	"IDBI", "Federal Bank", "RBL", "Paytm Payments Bank",
}

// BankNames returns the known Indian banks mentioned in text, in list order.
func BankNames(text string) []string {
	upper := strings.ToUpper(text)
	var found []string
	for _, name := range bankNames {
		if strings.Contains(upper, strings.ToUpper(name)) {
			found = append(found, name)
		}
	}
	return found
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
