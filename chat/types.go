package chat

import (
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/retrieval"
)

// Request is a single question put to the service. Role is optional; an empty or unknown
// role lets the router decide.
type Request struct {
	Question  string       `json:"question"`
	Role      profile.Role `json:"role,omitempty"`
	TopK      int          `json:"top_k,omitempty"`
	Namespace string       `json:"namespace,omitempty"`
}

// RoutedAnswer is the final answer returned to callers.
type RoutedAnswer struct {
	Success       bool                `json:"success"`
	Answer        string              `json:"answer"`
	Role          profile.Role        `json:"stakeholder"`
	Confidence    float64             `json:"confidence"`
	Sources       []retrieval.Preview `json:"sources"`
	ContextUsed   int                 `json:"context_used"`
	RoleAdherence bool                `json:"role_adherence"`
	RoleContext   profile.RoleContext `json:"stakeholder_context"`
	Generated     bool                `json:"generated"`
	Error         string              `json:"error,omitempty"`
}

// Assembled is the assembler's answer before boundary checks.
type Assembled struct {
	Answer      string
	Confidence  float64
	Sources     []retrieval.Preview
	ContextUsed int
	// Generated is false when the answer came from the fallback path.
	Generated bool
}
