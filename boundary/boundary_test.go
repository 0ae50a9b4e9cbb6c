package boundary

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
)

func newValidator() *Validator {
	return New(profile.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEnhanceQuery(t *testing.T) {
	got := newValidator().EnhanceQuery("How did UPI volume trend?", profile.RoleProductLead)

	assert.Equal(t, "As a Product Lead focused on business metrics and user behavior: How did UPI volume trend?"+
		"\n\nAnswer ONLY from the Product Lead's perspective. Ignore information outside your domain.", got)
}

func TestFilterAndPriorityIsStable(t *testing.T) {
	in := []retrieval.SearchResult{
		{ID: "sla-1", DocType: profile.DocPartnershipSLA},
		{ID: "txn-1", DocType: profile.DocUPITransaction},
		{ID: "kyc-1", DocType: profile.DocComplianceReport},
		{ID: "api-1", DocType: profile.DocBankAPIResponse},
		{ID: "sla-2", DocType: profile.DocPartnershipSLA},
		{ID: "txn-2", DocType: profile.DocUPITransaction},
		{ID: "kyc-2", DocType: profile.DocComplianceReport},
	}

	got := newValidator().FilterAndPriority(in, profile.RoleTechLead)

	ids := make([]string, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"api-1", "txn-1", "txn-2", "sla-1", "kyc-1", "sla-2", "kyc-2"}, ids)
	assert.Equal(t, "sla-1", in[0].ID, "input must not be reordered")
}

func TestValidateAdherence(t *testing.T) {
	v := newValidator()

	cases := []struct {
		name   string
		answer string
		role   profile.Role
		want   bool
	}{
		{"two required terms", "Customer adoption grew and the success rate held steady.", profile.RoleProductLead, true},
		{"one required term", "Customers were happy overall.", profile.RoleProductLead, false},
		{"forbidden beats required", "Customer adoption dipped because the API endpoint timed out.", profile.RoleProductLead, false},
		{"forbidden term is case-insensitive", "Our kyc backlog hurt customer adoption and transaction rate.", profile.RoleProductLead, false},
		{"tech vocabulary", "The integration error was a system performance issue.", profile.RoleTechLead, true},
		{"nothing relevant", "Sounds good.", profile.RoleComplianceLead, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, v.ValidateAdherence(tc.answer, tc.role))
		})
	}
}

func TestViolations(t *testing.T) {
	forbidden, required := newValidator().Violations("Audit risk is rising; see the SLA and KYC findings.", profile.RoleComplianceLead)

	assert.Equal(t, []string{"sla"}, forbidden)
	assert.Equal(t, []string{"kyc", "audit", "risk"}, required)
}

func TestFormatResponseKeepsAnswer(t *testing.T) {
	v := newValidator()
	answer := "Uptime stayed above the SLA for HDFC."
	sources := []retrieval.Preview{{Source: "sla.md", DocType: profile.DocPartnershipSLA, RelevanceScore: 0.9}}

	got := v.FormatResponse(answer, sources, profile.RoleBankAllianceLead)

	assert.Equal(t, answer, got.Answer)
	assert.Equal(t, profile.RoleBankAllianceLead, got.Role)
	assert.Equal(t, 1, got.SourceCount)
	require.Len(t, got.Sources, 1)

	empty := v.FormatResponse("", nil, profile.RoleProductLead)
	assert.NotNil(t, empty.Sources)
	assert.Zero(t, empty.SourceCount)
	assert.False(t, empty.RoleAdherence)
}
