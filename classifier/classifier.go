// Package classifier assigns ingested documents to one of the fixed document types.
//
// A keyword rule pass runs first; a zero-shot model is always consulted as well and its label
// is used whenever the rule signal is not strong enough.
package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fabfab/stakeholder-rag/errs"
	"github.com/fabfab/stakeholder-rag/profile"
)

const (
	MethodRule = "rule"
	MethodML   = "ml"

	// RuleConfidence is reported for every strong rule decision.
	RuleConfidence = 0.85
	// DegradedConfidence is reported for a weak rule candidate adopted because the model was unreachable.
	DegradedConfidence = 0.5

	strongMatchThreshold = 3
	filenameBonus        = 2
	sampleLimit          = 1000
)

// Label is one scored candidate returned by a zero-shot model, best first.
type Label struct {
	Name  string
	Score float64
}

// ZeroShot classifies text against a caller-provided set of labels.
type ZeroShot interface {
	ClassifyZeroShot(ctx context.Context, text string, labels []string) ([]Label, error)
}

// Result is the immutable classification of a single document.
type Result struct {
	DocType       profile.DocType `json:"doc_type"`
	Confidence    float64         `json:"confidence"`
	RelevantRoles []profile.Role  `json:"relevant_roles"`
	Method        string          `json:"method"`
	RuleCandidate profile.DocType `json:"rule_candidate,omitempty"`
	Degraded      bool            `json:"degraded,omitempty"`
}

type Classifier struct {
	catalog  *profile.Catalog
	zeroShot ZeroShot
	logger   *slog.Logger
}

func New(catalog *profile.Catalog, zeroShot ZeroShot, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{catalog: catalog, zeroShot: zeroShot, logger: logger}
}

// Classify decides the document type of text. It fails only for empty text, or when the
// zero-shot model is unavailable and the rule pass found nothing to fall back on.
func (c *Classifier) Classify(ctx context.Context, text, filename string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, errs.Validation("document text is empty")
	}

	candidate, strong := c.ruleCandidate(text, filename)
	label, score, mlErr := c.mlCandidate(ctx, text)

	var res Result
	switch {
	case candidate != "" && strong:
		res = Result{DocType: candidate, Confidence: RuleConfidence, Method: MethodRule}
	case mlErr == nil:
		res = Result{DocType: label, Confidence: score, Method: MethodML}
	case candidate != "":
		c.logger.Warn("zero-shot classification unavailable, using weak rule match",
			"file", filename, "doc_type", candidate, "error", mlErr)
		res = Result{DocType: candidate, Confidence: DegradedConfidence, Method: MethodRule, Degraded: true}
	default:
		return Result{}, fmt.Errorf("classify %q: %w", filename, mlErr)
	}

	if mlErr != nil && !res.Degraded {
		c.logger.Warn("zero-shot classification unavailable", "file", filename, "error", mlErr)
		res.Degraded = true
	}

	res.RuleCandidate = candidate
	res.RelevantRoles = c.catalog.RolesFor(res.DocType)

	c.logger.Info("classified document",
		"file", filename,
		"doc_type", res.DocType,
		"confidence", res.Confidence,
		"method", res.Method,
	)
	return res, nil
}

// RuleScores returns the keyword score of every document type for text and filename.
func (c *Classifier) RuleScores(text, filename string) map[profile.DocType]int {
	lowerText := strings.ToLower(text)
	lowerName := strings.ToLower(filename)

	scores := make(map[profile.DocType]int, len(c.catalog.DocTypes))
	for _, dt := range c.catalog.DocTypes {
		score := distinctMatches(lowerText, dt.Keywords)
		if lowerName != "" && distinctMatches(lowerName, dt.Keywords) > 0 {
			score += filenameBonus
		}
		scores[dt.Type] = score
	}
	return scores
}

// ruleCandidate returns the best scoring type, if any, and whether it is a strong match.
func (c *Classifier) ruleCandidate(text, filename string) (profile.DocType, bool) {
	scores := c.RuleScores(text, filename)

	var best profile.DocType
	bestScore := 0
	for _, dt := range c.catalog.DocTypes {
		if scores[dt.Type] > bestScore {
			best, bestScore = dt.Type, scores[dt.Type]
		}
	}
	if best == "" {
		return "", false
	}

	dt, _ := c.catalog.DocType(best)
	return best, distinctMatches(strings.ToLower(text), dt.Keywords) >= strongMatchThreshold
}

func (c *Classifier) mlCandidate(ctx context.Context, text string) (profile.DocType, float64, error) {
	if c.zeroShot == nil {
		return "", 0, errs.Service("zero-shot", fmt.Errorf("no model configured"))
	}

	ids := c.catalog.DocTypeIDs()
	labels := make([]string, len(ids))
	for i, id := range ids {
		labels[i] = string(id)
	}

	got, err := c.zeroShot.ClassifyZeroShot(ctx, truncateRunes(text, sampleLimit), labels)
	if err != nil {
		return "", 0, errs.Service("zero-shot", err)
	}
	for _, l := range got {
		if dt := profile.DocType(l.Name); c.catalog.IsDocType(dt) {
			return dt, clamp01(l.Score), nil
		}
	}
	return "", 0, errs.Service("zero-shot", fmt.Errorf("no label from the document type set in %d results", len(got)))
}

func distinctMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
