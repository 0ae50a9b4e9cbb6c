package retrieval

import (
	"strings"

	"github.com/fabfab/stakeholder-rag/ingestion"
	"github.com/fabfab/stakeholder-rag/profile"
)

// Ingestion stages in execution order. IngestResult.Stage names the stage that failed, or
// StageIndexed once a document is fully stored.
const (
	StageExtracted         = "extracted"
	StageClassified        = "classified"
	StageEntitiesExtracted = "entities_extracted"
	StageChunked           = "chunked"
	StageEmbedded          = "embedded"
	StageIndexed           = "indexed"
)

// Metadata keys attached to every stored vector.
const (
	MetaText       = "text"
	MetaSource     = "source"
	MetaDocType    = "doc_type"
	MetaRoles      = "stakeholders"
	MetaConfidence = "confidence"
	MetaChunkIndex = "chunk_index"
	MetaChunkCount = "chunk_count"
	MetaHasAmounts = "has_amounts"
	MetaHasDates   = "has_dates"
	MetaDocumentID = "document_id"
	// MetaEntities holds the document's entity counts per category.
	MetaEntities = "entities"
)

const previewRunes = 200

// Document is raw text awaiting ingestion.
type Document struct {
	Text   string
	Source string
	Kind   ingestion.Kind
}

// Chunk is a slice of a classified document, ready to embed.
type Chunk struct {
	Text          string
	Source        string
	DocType       profile.DocType
	Confidence    float64
	RelevantRoles []profile.Role
	Entities      map[string]int
	Index         int
	Count         int
}

// SearchResult is one retrieved chunk.
type SearchResult struct {
	ID       string          `json:"id"`
	Text     string          `json:"text"`
	Score    float64         `json:"score"`
	Source   string          `json:"source"`
	DocType  profile.DocType `json:"doc_type"`
	Metadata map[string]any  `json:"metadata,omitempty"`
}

// RoleTag returns the comma-joined role list the chunk was stored with.
func (r SearchResult) RoleTag() string {
	tag, _ := r.Metadata[MetaRoles].(string)
	return tag
}

// VisibleTo reports whether the chunk may be shown to role. Untagged chunks are visible to everyone.
func (r SearchResult) VisibleTo(role profile.Role) bool {
	tag := strings.TrimSpace(r.RoleTag())
	if tag == "" {
		return true
	}
	for _, part := range strings.Split(tag, ",") {
		if profile.Role(strings.TrimSpace(part)) == role {
			return true
		}
	}
	return false
}

// ToPreview condenses the result for display.
func (r SearchResult) ToPreview() Preview {
	text := strings.TrimSpace(r.Text)
	if runes := []rune(text); len(runes) > previewRunes {
		text = string(runes[:previewRunes]) + "..."
	}
	return Preview{
		Source:         r.Source,
		DocType:        r.DocType,
		RelevanceScore: r.Score,
		Preview:        text,
	}
}

type Preview struct {
	Source         string          `json:"source"`
	DocType        profile.DocType `json:"doc_type"`
	RelevanceScore float64         `json:"relevance_score"`
	Preview        string          `json:"preview"`
}

// Previews maps results to previews, keeping their order.
func Previews(results []SearchResult) []Preview {
	out := make([]Preview, len(results))
	for i, r := range results {
		out[i] = r.ToPreview()
	}
	return out
}

// IngestResult reports the outcome of ingesting one document. Err carries the underlying
// failure for callers that need errors.Is; Error is its display form.
type IngestResult struct {
	Success       bool            `json:"success"`
	Source        string          `json:"source"`
	DocumentID    string          `json:"document_id,omitempty"`
	DocType       profile.DocType `json:"doc_type,omitempty"`
	Confidence    float64         `json:"confidence"`
	Method        string          `json:"classification_method,omitempty"`
	RelevantRoles []profile.Role  `json:"relevant_roles,omitempty"`
	ChunksCreated int             `json:"chunks_created"`
	ChunksIndexed int             `json:"chunks_indexed"`
	EntityCounts  map[string]int  `json:"entity_counts,omitempty"`
	Metadata      map[string]any  `json:"metadata,omitempty"`
	Stage         string          `json:"stage"`
	Error         string          `json:"error,omitempty"`
	Err           error           `json:"-"`
}

// BatchResult tallies a directory ingestion.
type BatchResult struct {
	Results   []IngestResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
}

// Total is the number of documents attempted.
func (b BatchResult) Total() int {
	return b.Succeeded + b.Failed
}

type QueryRequest struct {
	Question  string
	Role      profile.Role
	TopK      int
	Namespace string
	Filter    map[string]any
}
