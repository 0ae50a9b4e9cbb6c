package chat

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/stakeholder-rag/llm"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
)

type stubLLM struct {
	answer   string
	err      error
	block    bool
	messages []llm.Message
}

func (s *stubLLM) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	s.messages = messages
	if s.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

var _ llm.Client = (*stubLLM)(nil)

type streamingLLM struct {
	stubLLM
	chunks []string
}

func (s *streamingLLM) GenerateStream(_ context.Context, messages []llm.Message, fn func(string) error) error {
	s.messages = messages
	for _, c := range s.chunks {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

var _ llm.Streamer = (*streamingLLM)(nil)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newAssembler(client llm.Client, timeout time.Duration) *Assembler {
	return NewAssembler(client, profile.Default(), timeout, discardLogger())
}

func sampleDocs() []retrieval.SearchResult {
	return []retrieval.SearchResult{
		{ID: "1", Text: "HDFC uptime was 99.95% for Q3, meeting the partnership SLA.", Score: 0.9, Source: "hdfc_sla.md", DocType: profile.DocPartnershipSLA},
		{ID: "2", Text: "Callback latency to HDFC averaged 420 ms.", Score: 0.5, Source: "api.json", DocType: profile.DocBankAPIResponse},
	}
}

func TestConfidence(t *testing.T) {
	assert.InDelta(t, 70.0, Confidence(sampleDocs()), 1e-9)
	assert.Zero(t, Confidence(nil))
	assert.Equal(t, 100.0, Confidence([]retrieval.SearchResult{{Score: 1.4}}))
}

func TestPromptLayout(t *testing.T) {
	a := newAssembler(&stubLLM{}, 0)
	docs := sampleDocs()
	docs[0].Text = strings.Repeat("u", 450)

	msgs := a.Prompt("How is HDFC doing?", docs, profile.RoleBankAllianceLead)

	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Equal(t, profile.Default().MustRole(profile.RoleBankAllianceLead).AnswerPreamble, msgs[0].Content)
	body := msgs[1].Content
	assert.True(t, strings.HasPrefix(body, "Context from documents:\n[Document 1]\nType: partnership_sla\nContent: "+strings.Repeat("u", 400)+"\n"))
	assert.Contains(t, body, "[Document 2]\nType: bank_api_response\nContent: Callback latency to HDFC averaged 420 ms.")
	assert.Contains(t, body, "Question: How is HDFC doing?")
	assert.True(t, strings.HasSuffix(body, "Provide a clear, natural answer based on the context. Be conversational and helpful."))

	empty := a.Prompt("Anything?", nil, profile.RoleProductLead)
	assert.Contains(t, empty[1].Content, "Context from documents:\nNo relevant documents found.")
}

func TestCleanAnswer(t *testing.T) {
	assert.Equal(t, "Uptime held at 99.9%.", CleanAnswer("As a Bank Alliance Lead, Uptime held at 99.9%."))
	assert.Equal(t, "Errors dropped.", CleanAnswer("From a technical standpoint, Errors dropped.  "))
	assert.Equal(t, "Notably, as a Product Lead, I see growth.", CleanAnswer("Notably, as a Product Lead, I see growth."))
}

func TestGenerateUsesModelAnswer(t *testing.T) {
	client := &stubLLM{answer: "As a Technical Lead, Latency is within budget."}
	got := newAssembler(client, time.Second).Generate(context.Background(), "latency?", sampleDocs(), profile.RoleTechLead, nil)

	assert.True(t, got.Generated)
	assert.Equal(t, "Latency is within budget.", got.Answer)
	assert.InDelta(t, 70.0, got.Confidence, 1e-9)
	assert.Equal(t, 2, got.ContextUsed)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "hdfc_sla.md", got.Sources[0].Source)
}

func TestGenerateFallsBackWithSources(t *testing.T) {
	docs := sampleDocs()
	docs[0].Text = strings.Repeat("s", 320)

	got := newAssembler(&stubLLM{err: errors.New("connection refused")}, time.Second).
		Generate(context.Background(), "q", docs, profile.RoleBankAllianceLead, nil)

	assert.False(t, got.Generated)
	assert.Equal(t, 60.0, got.Confidence)
	assert.Equal(t, "Based on the available documentation:\n\n"+strings.Repeat("s", 300)+"...\n\n"+unavailableNotice, got.Answer)
	assert.Len(t, got.Sources, 2)
}

func TestGenerateFallsBackWithoutSources(t *testing.T) {
	got := newAssembler(&stubLLM{err: errors.New("500")}, time.Second).
		Generate(context.Background(), "q", nil, profile.RoleProductLead, nil)

	assert.Equal(t, 30.0, got.Confidence)
	assert.True(t, strings.HasPrefix(got.Answer, "I don't have enough context to answer this question."))
	assert.Empty(t, got.Sources)
}

func TestGenerateTimesOut(t *testing.T) {
	start := time.Now()
	got := newAssembler(&stubLLM{block: true}, 20*time.Millisecond).
		Generate(context.Background(), "q", sampleDocs(), profile.RoleTechLead, nil)

	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, got.Generated)
	assert.Equal(t, 60.0, got.Confidence)
}

func TestGenerateTreatsEmptyAnswerAsFailure(t *testing.T) {
	got := newAssembler(&stubLLM{answer: "  "}, time.Second).Generate(context.Background(), "q", nil, profile.RoleTechLead, nil)
	assert.False(t, got.Generated)
}

func TestGenerateStreams(t *testing.T) {
	client := &streamingLLM{chunks: []string{"Uptime ", "", "held."}}
	var streamed []string

	got := newAssembler(client, time.Second).Generate(context.Background(), "q", sampleDocs(), profile.RoleBankAllianceLead, func(s string) error {
		streamed = append(streamed, s)
		return nil
	})

	assert.Equal(t, []string{"Uptime ", "held."}, streamed)
	assert.Equal(t, "Uptime held.", got.Answer)
	assert.True(t, got.Generated)
}

func TestGenerateStreamStripsRolePrefix(t *testing.T) {
	client := &streamingLLM{chunks: []string{"As a Pro", "duct Lead, ", "volume ", "grew."}}
	var streamed []string

	got := newAssembler(client, time.Second).Generate(context.Background(), "q", sampleDocs(), profile.RoleProductLead, func(s string) error {
		streamed = append(streamed, s)
		return nil
	})

	assert.Equal(t, []string{"volume ", "grew."}, streamed)
	assert.Equal(t, "volume grew.", got.Answer)
	assert.Equal(t, got.Answer, strings.TrimSpace(strings.Join(streamed, "")))
	assert.True(t, got.Generated)
}

func TestGenerateStreamFlushesShortAnswer(t *testing.T) {
	client := &streamingLLM{chunks: []string{"As"}}
	var streamed []string

	got := newAssembler(client, time.Second).Generate(context.Background(), "q", sampleDocs(), profile.RoleProductLead, func(s string) error {
		streamed = append(streamed, s)
		return nil
	})

	assert.Equal(t, []string{"As"}, streamed)
	assert.Equal(t, "As", got.Answer)
}

func TestGenerateStreamTreatsEmptyAnswerAsFailure(t *testing.T) {
	client := &streamingLLM{chunks: []string{"", "  "}}
	var streamed []string

	got := newAssembler(client, time.Second).Generate(context.Background(), "q", sampleDocs(), profile.RoleTechLead, func(s string) error {
		streamed = append(streamed, s)
		return nil
	})

	assert.Empty(t, streamed)
	assert.False(t, got.Generated)
	assert.Equal(t, 60.0, got.Confidence)
	assert.True(t, strings.HasPrefix(got.Answer, "Based on the available documentation:"))
}
