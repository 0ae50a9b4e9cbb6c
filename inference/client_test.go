package inference

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/stakeholder-rag/classifier"
	"github.com/fabfab/stakeholder-rag/entities"
	"github.com/fabfab/stakeholder-rag/errs"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:       srv.URL,
		Token:         "hf_test",
		ZeroShotModel: "facebook/bart-large-mnli",
		NERModel:      "dslim/bert-base-NER",
		Timeout:       2 * time.Second,
	})
}

func TestClassifyZeroShot(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/facebook/bart-large-mnli", r.URL.Path)
		assert.Equal(t, "Bearer hf_test", r.Header.Get("Authorization"))

		var req zeroShotRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"upi_transaction", "partnership_sla"}, req.Parameters.CandidateLabels)
		assert.False(t, req.Parameters.MultiLabel)

		_, _ = w.Write([]byte(`{"sequence":"x","labels":["partnership_sla","upi_transaction"],"scores":[0.81,0.19]}`))
	})

	got, err := c.ClassifyZeroShot(context.Background(), "uptime report", []string{"upi_transaction", "partnership_sla"})
	require.NoError(t, err)
	assert.Equal(t, []classifier.Label{{Name: "partnership_sla", Score: 0.81}, {Name: "upi_transaction", Score: 0.19}}, got)
}

func TestClassifyZeroShotListFormat(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[{"label":"compliance_report","score":0.66}]`))
	})

	got, err := c.ClassifyZeroShot(context.Background(), "kyc", []string{"compliance_report"})
	require.NoError(t, err)
	assert.Equal(t, []classifier.Label{{Name: "compliance_report", Score: 0.66}}, got)
}

func TestTag(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/dslim/bert-base-NER", r.URL.Path)

		var req nerRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "simple", req.Parameters.AggregationStrategy)

		_, _ = w.Write([]byte(`[{"entity_group":"ORG","score":0.99,"word":"HDFC Bank","start":0,"end":9}]`))
	})

	got, err := c.Tag(context.Background(), "HDFC Bank settled")
	require.NoError(t, err)
	assert.Equal(t, []entities.Span{{Group: "ORG", Word: "HDFC Bank", Score: 0.99}}, got)
}

func TestNonSuccessStatusIsExternalError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"Model is currently loading"}`, http.StatusServiceUnavailable)
	})

	_, err := c.Tag(context.Background(), "x")
	assert.ErrorIs(t, err, errs.ErrExternalService)
	assert.ErrorContains(t, err, "currently loading")

	_, err = c.ClassifyZeroShot(context.Background(), "x", []string{"a"})
	assert.ErrorIs(t, err, errs.ErrExternalService)
}

func TestMissingModelFails(t *testing.T) {
	c := NewClient(Options{BaseURL: "http://127.0.0.1:1"})
	_, err := c.Tag(context.Background(), "x")
	assert.ErrorContains(t, err, "no model configured")
}
