// Package profile holds the static role and document-type tables that drive routing,
// classification and answer boundaries. Tables are decoded from YAML into typed structs and
// validated once at startup; nothing mutates them afterwards.
package profile

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role identifies one of the four stakeholder personas.
type Role string

const (
	RoleProductLead      Role = "product_lead"
	RoleTechLead         Role = "tech_lead"
	RoleComplianceLead   Role = "compliance_lead"
	RoleBankAllianceLead Role = "bank_alliance_lead"
)

// DocType identifies one of the fixed document categories.
type DocType string

const (
	DocUPITransaction   DocType = "upi_transaction"
	DocBankAPIResponse  DocType = "bank_api_response"
	DocComplianceReport DocType = "compliance_report"
	DocPartnershipSLA   DocType = "partnership_sla"
)

// Keyword weights used by the router.
const (
	WeightHigh   = 5
	WeightMedium = 2
	WeightLow    = 1
)

var (
	requiredRoles    = []Role{RoleProductLead, RoleTechLead, RoleComplianceLead, RoleBankAllianceLead}
	requiredDocTypes = []DocType{DocUPITransaction, DocBankAPIResponse, DocComplianceReport, DocPartnershipSLA}
)

//go:embed profiles.yaml
var defaultProfiles []byte

// WeightedKeywords groups router keywords by weight tier.
type WeightedKeywords struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
	Low    []string `yaml:"low"`
}

// RoleContext is the natural-language lens attached to every answer.
type RoleContext struct {
	Focus    string `yaml:"focus" json:"focus"`
	Concerns string `yaml:"concerns" json:"concerns"`
	Tone     string `yaml:"tone" json:"tone"`
	Avoid    string `yaml:"avoid" json:"avoided_topics"`
}

// RoleProfile is the full static configuration of one stakeholder role.
type RoleProfile struct {
	ID             Role             `yaml:"id"`
	Name           string           `yaml:"name"`
	Keywords       WeightedKeywords `yaml:"keywords"`
	RequiredTerms  []string         `yaml:"required_terms"`
	ForbiddenTerms []string         `yaml:"forbidden_terms"`
	// DocTypes is both the set of relevant document types and their priority order.
	DocTypes       []DocType   `yaml:"doc_types"`
	Context        RoleContext `yaml:"context"`
	QueryPrefix    string      `yaml:"query_prefix"`
	AnswerPreamble string      `yaml:"answer_preamble"`
	Persona        string      `yaml:"persona"`
}

// DocTypeProfile describes a document category and the keywords the rule classifier looks for.
type DocTypeProfile struct {
	Type        DocType  `yaml:"type"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
}

// Catalog is the validated set of role and document-type tables. Roles keep their
// declaration order, which is the canonical order used for tie-breaking.
type Catalog struct {
	DefaultRole Role             `yaml:"default_role"`
	Roles       []RoleProfile    `yaml:"roles"`
	DocTypes    []DocTypeProfile `yaml:"doc_types"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Load(bytes.NewReader(defaultProfiles))
	if err != nil {
		panic(fmt.Errorf("embedded profiles: %w", err))
	}
	return c
}

// LoadFile reads and validates a catalog from a YAML file.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load decodes and validates a catalog.
func Load(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Catalog) normalize() {
	for i := range c.Roles {
		r := &c.Roles[i]
		r.Keywords.High = lowerAll(r.Keywords.High)
		r.Keywords.Medium = lowerAll(r.Keywords.Medium)
		r.Keywords.Low = lowerAll(r.Keywords.Low)
	}
	for i := range c.DocTypes {
		c.DocTypes[i].Keywords = lowerAll(c.DocTypes[i].Keywords)
	}
}

// Validate fails fast on missing roles or doc types and dangling references.
func (c *Catalog) Validate() error {
	seenRoles := make(map[Role]bool, len(c.Roles))
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("profiles: role with empty id")
		}
		if seenRoles[r.ID] {
			return fmt.Errorf("profiles: duplicate role %q", r.ID)
		}
		seenRoles[r.ID] = true
	}
	for _, want := range requiredRoles {
		if !seenRoles[want] {
			return fmt.Errorf("profiles: missing role %q", want)
		}
	}

	seenTypes := make(map[DocType]bool, len(c.DocTypes))
	for _, d := range c.DocTypes {
		if seenTypes[d.Type] {
			return fmt.Errorf("profiles: duplicate doc type %q", d.Type)
		}
		if len(d.Keywords) == 0 {
			return fmt.Errorf("profiles: doc type %q has no keywords", d.Type)
		}
		seenTypes[d.Type] = true
	}
	for _, want := range requiredDocTypes {
		if !seenTypes[want] {
			return fmt.Errorf("profiles: missing doc type %q", want)
		}
	}

	if !seenRoles[c.DefaultRole] {
		return fmt.Errorf("profiles: default role %q is not a configured role", c.DefaultRole)
	}

	for _, r := range c.Roles {
		if len(r.Keywords.High)+len(r.Keywords.Medium)+len(r.Keywords.Low) == 0 {
			return fmt.Errorf("profiles: role %q has no routing keywords", r.ID)
		}
		if len(r.DocTypes) == 0 {
			return fmt.Errorf("profiles: role %q has no document types", r.ID)
		}
		for _, dt := range r.DocTypes {
			if !seenTypes[dt] {
				return fmt.Errorf("profiles: role %q references unknown doc type %q", r.ID, dt)
			}
		}
		if r.Name == "" {
			return fmt.Errorf("profiles: role %q has no display name", r.ID)
		}
	}
	return nil
}

// Role looks up a role profile.
func (c *Catalog) Role(id Role) (RoleProfile, bool) {
	for _, r := range c.Roles {
		if r.ID == id {
			return r, true
		}
	}
	return RoleProfile{}, false
}

// MustRole returns the profile for id, or the default role's profile when id is unknown.
func (c *Catalog) MustRole(id Role) RoleProfile {
	if r, ok := c.Role(id); ok {
		return r
	}
	r, _ := c.Role(c.DefaultRole)
	return r
}

// IsRole reports whether id names a configured role.
func (c *Catalog) IsRole(id Role) bool {
	_, ok := c.Role(id)
	return ok
}

// RoleIDs returns every role in canonical order.
func (c *Catalog) RoleIDs() []Role {
	ids := make([]Role, len(c.Roles))
	for i, r := range c.Roles {
		ids[i] = r.ID
	}
	return ids
}

// DocType looks up a document-type profile.
func (c *Catalog) DocType(t DocType) (DocTypeProfile, bool) {
	for _, d := range c.DocTypes {
		if d.Type == t {
			return d, true
		}
	}
	return DocTypeProfile{}, false
}

// IsDocType reports whether t is one of the fixed document types.
func (c *Catalog) IsDocType(t DocType) bool {
	_, ok := c.DocType(t)
	return ok
}

// DocTypeIDs returns every document type in declaration order.
func (c *Catalog) DocTypeIDs() []DocType {
	ids := make([]DocType, len(c.DocTypes))
	for i, d := range c.DocTypes {
		ids[i] = d.Type
	}
	return ids
}

// RolesFor returns every role whose document types include t, in canonical order.
func (c *Catalog) RolesFor(t DocType) []Role {
	roles := make([]Role, 0, len(c.Roles))
	for _, r := range c.Roles {
		if slices.Contains(r.DocTypes, t) {
			roles = append(roles, r.ID)
		}
	}
	return roles
}

// ParseRole converts user input into a Role; unknown or empty input yields ok=false.
func (c *Catalog) ParseRole(s string) (Role, bool) {
	id := Role(strings.ToLower(strings.TrimSpace(s)))
	if id == "" || !c.IsRole(id) {
		return "", false
	}
	return id, true
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
