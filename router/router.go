// Package router decides which stakeholder lens a query is answered through.
package router

import (
	"log/slog"
	"strings"

	"github.com/fabfab/stakeholder-rag/profile"
)

// Decision is the outcome of routing a single query.
type Decision struct {
	Role     profile.Role
	Scores   map[profile.Role]int
	Explicit bool
}

// RoleSummary describes a role for listings.
type RoleSummary struct {
	Role             profile.Role      `json:"role"`
	DisplayName      string            `json:"display_name"`
	Focus            string            `json:"focus"`
	Concerns         string            `json:"concerns"`
	Tone             string            `json:"tone"`
	DocumentPriority []profile.DocType `json:"document_priority"`
}

type Router struct {
	catalog *profile.Catalog
	logger  *slog.Logger
}

func New(catalog *profile.Catalog, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{catalog: catalog, logger: logger}
}

// Route returns the role a query should be answered as. It never fails.
func (r *Router) Route(query string, explicit profile.Role) profile.Role {
	return r.Decide(query, explicit).Role
}

// Decide routes a query and reports the per-role scores. A valid explicit role always wins.
// Otherwise the highest weighted keyword score wins, ties go to the earliest role in the
// catalog, and a query matching nothing falls back to the default role.
func (r *Router) Decide(query string, explicit profile.Role) Decision {
	if explicit != "" && r.catalog.IsRole(explicit) {
		r.logger.Info("using explicit role", "role", explicit)
		return Decision{Role: explicit, Explicit: true}
	}

	scores := Score(r.catalog, query)

	best := r.catalog.DefaultRole
	bestScore := 0
	for _, id := range r.catalog.RoleIDs() {
		if scores[id] > bestScore {
			best, bestScore = id, scores[id]
		}
	}

	r.logger.Debug("role scores", "scores", scores)
	if bestScore == 0 {
		r.logger.Info("no stakeholder keywords matched, using default role", "role", best)
	} else {
		r.logger.Info("routed query", "role", best, "score", bestScore)
	}

	return Decision{Role: best, Scores: scores}
}

// Score sums the keyword weights of every role found as substrings of the lower-cased query.
func Score(catalog *profile.Catalog, query string) map[profile.Role]int {
	q := strings.ToLower(query)
	scores := make(map[profile.Role]int, len(catalog.Roles))
	for _, role := range catalog.Roles {
		total := 0
		total += profile.WeightHigh * countMatches(q, role.Keywords.High)
		total += profile.WeightMedium * countMatches(q, role.Keywords.Medium)
		total += profile.WeightLow * countMatches(q, role.Keywords.Low)
		scores[role.ID] = total
	}
	return scores
}

func countMatches(text string, keywords []string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			n++
		}
	}
	return n
}

// DocTypePriority returns the preferred document types for role, most important first.
func (r *Router) DocTypePriority(role profile.Role) []profile.DocType {
	p, ok := r.catalog.Role(role)
	if !ok {
		return []profile.DocType{profile.DocUPITransaction}
	}
	return append([]profile.DocType(nil), p.DocTypes...)
}

// RoleContext returns the focus/concerns/tone/avoid description of role, or the default
// role's context when role is unknown.
func (r *Router) RoleContext(role profile.Role) profile.RoleContext {
	return r.catalog.MustRole(role).Context
}

// Roles summarizes every configured role in canonical order.
func (r *Router) Roles() []RoleSummary {
	out := make([]RoleSummary, 0, len(r.catalog.Roles))
	for _, p := range r.catalog.Roles {
		out = append(out, RoleSummary{
			Role:             p.ID,
			DisplayName:      p.Name,
			Focus:            p.Context.Focus,
			Concerns:         p.Context.Concerns,
			Tone:             p.Context.Tone,
			DocumentPriority: r.DocTypePriority(p.ID),
		})
	}
	return out
}
