package router

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fabfab/stakeholder-rag/profile"
)

func newTestRouter() *Router {
	return New(profile.Default(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRouteDefaultsWhenNothingMatches(t *testing.T) {
	r := newTestRouter()
	assert.Equal(t, profile.RoleProductLead, r.Route("hello there, how are you?", ""))
}

func TestRouteExplicitRoleWins(t *testing.T) {
	r := newTestRouter()

	d := r.Decide("what is our SLA uptime with HDFC?", profile.RoleComplianceLead)
	assert.Equal(t, profile.RoleComplianceLead, d.Role)
	assert.True(t, d.Explicit)
}

func TestRouteIgnoresInvalidExplicitRole(t *testing.T) {
	r := newTestRouter()
	assert.Equal(t, profile.RoleTechLead, r.Route("debug the endpoint timeout", "cfo"))
}

func TestRouteHighWeightKeywords(t *testing.T) {
	r := newTestRouter()

	cases := map[string]profile.Role{
		"show me kpi and retention":            profile.RoleProductLead,
		"why does the endpoint hit a timeout?": profile.RoleTechLead,
		"any aml or fraud flags?":              profile.RoleComplianceLead,
		"renew the contract with our partner":  profile.RoleBankAllianceLead,
	}
	for query, want := range cases {
		t.Run(query, func(t *testing.T) {
			d := r.Decide(query, "")
			assert.Equal(t, want, d.Role)
			assert.Positive(t, d.Scores[want])
		})
	}
}

func TestRouteSLAQueryGoesToBankAlliance(t *testing.T) {
	r := newTestRouter()

	d := r.Decide("What is our SLA uptime with HDFC?", "")
	assert.Equal(t, profile.RoleBankAllianceLead, d.Role)
	assert.Equal(t, 11, d.Scores[profile.RoleBankAllianceLead])
}

func TestRouteTieBreaksByCanonicalOrder(t *testing.T) {
	r := newTestRouter()

	// "growth" scores 5 for product_lead, "latency" scores 5 for tech_lead.
	query := "growth versus latency"
	d := r.Decide(query, "")
	assert.Equal(t, d.Scores[profile.RoleProductLead], d.Scores[profile.RoleTechLead])

	for i := 0; i < 20; i++ {
		assert.Equal(t, profile.RoleProductLead, r.Route(query, ""))
	}
}

func TestScoreWeights(t *testing.T) {
	scores := Score(profile.Default(), "KYC policy report")
	// kyc high(5) + policy medium(2) + report low(1)
	assert.Equal(t, 8, scores[profile.RoleComplianceLead])
}

func TestDocTypePriority(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, []profile.DocType{profile.DocComplianceReport, profile.DocUPITransaction}, r.DocTypePriority(profile.RoleComplianceLead))
	assert.Equal(t, []profile.DocType{profile.DocUPITransaction}, r.DocTypePriority("unknown"))
}

func TestRoleContextFallsBack(t *testing.T) {
	r := newTestRouter()

	assert.Equal(t, "technical and solution-oriented", r.RoleContext(profile.RoleTechLead).Tone)
	assert.Equal(t, r.RoleContext(profile.RoleProductLead), r.RoleContext("unknown"))
}

func TestRolesListing(t *testing.T) {
	roles := newTestRouter().Roles()

	assert.Len(t, roles, 4)
	assert.Equal(t, profile.RoleProductLead, roles[0].Role)
	assert.Equal(t, "Bank Alliance Lead", roles[3].DisplayName)
}
