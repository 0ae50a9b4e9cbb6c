package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/stakeholder-rag/boundary"
	"github.com/fabfab/stakeholder-rag/errs"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
	"github.com/fabfab/stakeholder-rag/router"
)

type stubRetriever struct {
	results []retrieval.SearchResult
	err     error
	got     retrieval.QueryRequest
	calls   int
}

func (s *stubRetriever) Query(_ context.Context, req retrieval.QueryRequest) ([]retrieval.SearchResult, error) {
	s.calls++
	s.got = req
	return s.results, s.err
}

func newService(retriever Retriever, client *stubLLM) *Service {
	catalog := profile.Default()
	logger := discardLogger()
	return NewService(
		router.New(catalog, logger),
		retriever,
		boundary.New(catalog, logger),
		NewAssembler(client, catalog, 0, logger),
		logger,
	)
}

func TestChatRoutesRetrievesAndValidates(t *testing.T) {
	retriever := &stubRetriever{results: []retrieval.SearchResult{
		{ID: "api", Text: "Callback latency to HDFC averaged 420 ms.", Score: 0.5, Source: "api.json", DocType: profile.DocBankAPIResponse},
		{ID: "sla", Text: "HDFC uptime was 99.95% for Q3.", Score: 0.9, Source: "hdfc_sla.md", DocType: profile.DocPartnershipSLA},
	}}
	client := &stubLLM{answer: "As a Bank Alliance Lead, HDFC uptime met the SLA agreement with our partner."}
	svc := newService(retriever, client)

	got, err := svc.Chat(context.Background(), Request{Question: "What is our SLA uptime with HDFC?", TopK: 2, Namespace: "ops"})

	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.Equal(t, profile.RoleBankAllianceLead, got.Role)
	assert.Equal(t, retrieval.QueryRequest{Question: "What is our SLA uptime with HDFC?", Role: profile.RoleBankAllianceLead, TopK: 2, Namespace: "ops"}, retriever.got)
	assert.Equal(t, "HDFC uptime met the SLA agreement with our partner.", got.Answer)
	assert.True(t, got.RoleAdherence)
	assert.True(t, got.Generated)
	assert.InDelta(t, 70.0, got.Confidence, 1e-9)
	assert.Equal(t, 2, got.ContextUsed)
	require.Len(t, got.Sources, 2)
	assert.Equal(t, "hdfc_sla.md", got.Sources[0].Source, "partnership SLA sources come first for this role")
	assert.Equal(t, "partner relationships, SLA performance, contractual obligations", got.RoleContext.Focus)

	require.Len(t, client.messages, 2)
	assert.Contains(t, client.messages[1].Content, "Question: As a Bank Alliance Lead focused on partnerships and SLAs: What is our SLA uptime with HDFC?")
}

func TestChatHonorsExplicitRole(t *testing.T) {
	retriever := &stubRetriever{}
	svc := newService(retriever, &stubLLM{answer: "Audit risk stays low under current KYC checks."})

	got, err := svc.Chat(context.Background(), Request{Question: "What is our SLA uptime with HDFC?", Role: profile.RoleComplianceLead})

	require.NoError(t, err)
	assert.Equal(t, profile.RoleComplianceLead, got.Role)
	assert.Equal(t, profile.RoleComplianceLead, retriever.got.Role)
	assert.True(t, got.RoleAdherence)
	assert.Zero(t, got.Confidence)
}

func TestChatFlagsOutOfBoundsAnswer(t *testing.T) {
	svc := newService(&stubRetriever{}, &stubLLM{answer: "Conversion and customer adoption rose, the API endpoint helped."})

	got, err := svc.Chat(context.Background(), Request{Question: "How is conversion trending?"})

	require.NoError(t, err)
	assert.Equal(t, profile.RoleProductLead, got.Role)
	assert.False(t, got.RoleAdherence)
	assert.Equal(t, "Conversion and customer adoption rose, the API endpoint helped.", got.Answer)
}

func TestChatRejectsEmptyQuestion(t *testing.T) {
	retriever := &stubRetriever{}
	svc := newService(retriever, &stubLLM{})

	got, err := svc.Chat(context.Background(), Request{Question: "   ", Role: "nobody"})

	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.False(t, got.Success)
	assert.Equal(t, errorAnswer, got.Answer)
	assert.Equal(t, profile.RoleProductLead, got.Role)
	assert.NotEmpty(t, got.Error)
	assert.Zero(t, retriever.calls)
}

func TestChatReportsRetrievalFailure(t *testing.T) {
	storeErr := errs.Service("postgres", errors.New("connection reset"))
	svc := newService(&stubRetriever{err: storeErr}, &stubLLM{})

	got, err := svc.Chat(context.Background(), Request{Question: "Why did the API timeout?"})

	assert.ErrorIs(t, err, errs.ErrExternalService)
	assert.False(t, got.Success)
	assert.Equal(t, profile.RoleTechLead, got.Role)
	assert.Equal(t, errorAnswer, got.Answer)
	assert.NotNil(t, got.Sources)
}

func TestChatSurvivesGenerationFailure(t *testing.T) {
	retriever := &stubRetriever{results: []retrieval.SearchResult{{Text: "KYC audit pending", Score: 0.8, DocType: profile.DocComplianceReport}}}
	svc := newService(retriever, &stubLLM{err: errors.New("timeout")})

	got, err := svc.Chat(context.Background(), Request{Question: "Any KYC audit findings?"})

	require.NoError(t, err)
	assert.True(t, got.Success)
	assert.False(t, got.Generated)
	assert.Equal(t, 60.0, got.Confidence)
	assert.Contains(t, got.Answer, "KYC audit pending")
}
