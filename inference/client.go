// Package inference calls hosted zero-shot classification and named-entity models over the
// Hugging Face Inference API wire format.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/fabfab/stakeholder-rag/classifier"
	"github.com/fabfab/stakeholder-rag/config"
	"github.com/fabfab/stakeholder-rag/entities"
	"github.com/fabfab/stakeholder-rag/errs"
)

type Options struct {
	BaseURL        string
	Token          string
	ZeroShotModel  string
	NERModel       string
	Timeout        time.Duration
	RequestsPerSec float64
}

func OptionsFromConfig(cfg config.InferenceConfig) Options {
	return Options{
		BaseURL:        cfg.BaseURL,
		Token:          cfg.Token,
		ZeroShotModel:  cfg.ZeroShotModel,
		NERModel:       cfg.NERModel,
		Timeout:        cfg.Timeout,
		RequestsPerSec: cfg.RequestsPerSec,
	}
}

// Client is safe for concurrent use. All calls share one rate limiter.
type Client struct {
	baseURL  string
	token    string
	zeroShot string
	ner      string
	timeout  time.Duration
	limiter  *rate.Limiter
	http     *http.Client
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	limit := rate.Inf
	if opts.RequestsPerSec > 0 {
		limit = rate.Limit(opts.RequestsPerSec)
	}
	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		token:    opts.Token,
		zeroShot: opts.ZeroShotModel,
		ner:      opts.NERModel,
		timeout:  timeout,
		limiter:  rate.NewLimiter(limit, 1),
		http:     &http.Client{Timeout: timeout},
	}
}

type zeroShotRequest struct {
	Inputs     string           `json:"inputs"`
	Parameters zeroShotSettings `json:"parameters"`
}

type zeroShotSettings struct {
	CandidateLabels []string `json:"candidate_labels"`
	MultiLabel      bool     `json:"multi_label"`
}

type zeroShotResponse struct {
	Labels []string  `json:"labels"`
	Scores []float64 `json:"scores"`
}

type labelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// ClassifyZeroShot returns labels ordered by descending score.
func (c *Client) ClassifyZeroShot(ctx context.Context, text string, labels []string) ([]classifier.Label, error) {
	body := zeroShotRequest{
		Inputs:     text,
		Parameters: zeroShotSettings{CandidateLabels: labels, MultiLabel: false},
	}

	raw, err := c.call(ctx, c.zeroShot, body)
	if err != nil {
		return nil, errs.Service("zero-shot classification", err)
	}

	out, err := decodeZeroShot(raw)
	if err != nil {
		return nil, errs.Service("zero-shot classification", err)
	}
	return out, nil
}

// decodeZeroShot accepts both the classic {labels, scores} object and the newer list of
// {label, score} pairs.
func decodeZeroShot(raw []byte) ([]classifier.Label, error) {
	var obj zeroShotResponse
	if err := json.Unmarshal(raw, &obj); err == nil && len(obj.Labels) > 0 {
		if len(obj.Labels) != len(obj.Scores) {
			return nil, fmt.Errorf("zero-shot response has %d labels and %d scores", len(obj.Labels), len(obj.Scores))
		}
		out := make([]classifier.Label, len(obj.Labels))
		for i := range obj.Labels {
			out[i] = classifier.Label{Name: obj.Labels[i], Score: obj.Scores[i]}
		}
		return out, nil
	}

	var list []labelScore
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode zero-shot response: %w", err)
	}
	if len(list) == 0 {
		return nil, fmt.Errorf("zero-shot response contained no labels")
	}
	out := make([]classifier.Label, len(list))
	for i, l := range list {
		out[i] = classifier.Label{Name: l.Label, Score: l.Score}
	}
	return out, nil
}

type nerRequest struct {
	Inputs     string      `json:"inputs"`
	Parameters nerSettings `json:"parameters"`
}

type nerSettings struct {
	AggregationStrategy string `json:"aggregation_strategy"`
}

// Tag runs named-entity recognition with simple aggregation of sub-word tokens.
func (c *Client) Tag(ctx context.Context, text string) ([]entities.Span, error) {
	raw, err := c.call(ctx, c.ner, nerRequest{
		Inputs:     text,
		Parameters: nerSettings{AggregationStrategy: "simple"},
	})
	if err != nil {
		return nil, errs.Service("named-entity recognition", err)
	}

	var spans []entities.Span
	if err := json.Unmarshal(raw, &spans); err != nil {
		return nil, errs.Service("named-entity recognition", fmt.Errorf("decode ner response: %w", err))
	}
	return spans, nil
}

func (c *Client) call(ctx context.Context, model string, payload any) ([]byte, error) {
	if model == "" {
		return nil, fmt.Errorf("no model configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal inference request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/models/"+model, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create inference request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call inference API: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("inference API returned status %s: %s", resp.Status, strings.TrimSpace(string(data)))
	}
	return data, nil
}

var (
	_ classifier.ZeroShot = (*Client)(nil)
	_ entities.Tagger     = (*Client)(nil)
)
