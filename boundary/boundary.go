// Package boundary keeps answers inside a stakeholder's lane: it frames queries for a role,
// orders sources by the role's document priorities and checks generated answers against the
// role's vocabulary.
package boundary

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
)

const minRequiredTerms = 2

// Formatted is an answer annotated with its adherence check. The answer text is never altered.
type Formatted struct {
	Answer        string              `json:"answer"`
	Role          profile.Role        `json:"role"`
	Sources       []retrieval.Preview `json:"sources"`
	SourceCount   int                 `json:"source_count"`
	RoleAdherence bool                `json:"role_adherence"`
}

type Validator struct {
	catalog *profile.Catalog
	logger  *slog.Logger
}

func New(catalog *profile.Catalog, logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{catalog: catalog, logger: logger}
}

// EnhanceQuery frames query for role.
func (v *Validator) EnhanceQuery(query string, role profile.Role) string {
	p := v.catalog.MustRole(role)
	return p.QueryPrefix + query + "\n\nAnswer ONLY from the " + p.Name + "'s perspective. Ignore information outside your domain."
}

// FilterAndPriority returns a copy of sources ordered by the role's document priority.
// Types the role does not list go last; ties keep their input order.
func (v *Validator) FilterAndPriority(sources []retrieval.SearchResult, role profile.Role) []retrieval.SearchResult {
	priority := v.catalog.MustRole(role).DocTypes
	rank := make(map[profile.DocType]int, len(priority))
	for i, dt := range priority {
		rank[dt] = i
	}
	key := func(dt profile.DocType) int {
		if r, ok := rank[dt]; ok {
			return r
		}
		return len(priority)
	}

	out := append([]retrieval.SearchResult(nil), sources...)
	sort.SliceStable(out, func(i, j int) bool {
		return key(out[i].DocType) < key(out[j].DocType)
	})
	return out
}

// Violations lists the forbidden and required terms of role found in answer.
func (v *Validator) Violations(answer string, role profile.Role) (forbidden, required []string) {
	p := v.catalog.MustRole(role)
	lower := strings.ToLower(answer)
	for _, term := range p.ForbiddenTerms {
		if t := strings.ToLower(term); t != "" && strings.Contains(lower, t) {
			forbidden = append(forbidden, t)
		}
	}
	seen := make(map[string]bool, len(p.RequiredTerms))
	for _, term := range p.RequiredTerms {
		t := strings.ToLower(term)
		if t == "" || seen[t] {
			continue
		}
		if strings.Contains(lower, t) {
			seen[t] = true
			required = append(required, t)
		}
	}
	return forbidden, required
}

// ValidateAdherence reports whether answer stays within role: no forbidden term, and at
// least two distinct required terms.
func (v *Validator) ValidateAdherence(answer string, role profile.Role) bool {
	forbidden, required := v.Violations(answer, role)
	if len(forbidden) > 0 {
		v.logger.Warn("answer uses forbidden terms", "role", role, "terms", forbidden)
		return false
	}
	if len(required) < minRequiredTerms {
		v.logger.Warn("answer lacks role vocabulary", "role", role, "found", required)
		return false
	}
	return true
}

func (v *Validator) FormatResponse(answer string, sources []retrieval.Preview, role profile.Role) Formatted {
	if sources == nil {
		sources = []retrieval.Preview{}
	}
	return Formatted{
		Answer:        answer,
		Role:          role,
		Sources:       sources,
		SourceCount:   len(sources),
		RoleAdherence: v.ValidateAdherence(answer, role),
	}
}
