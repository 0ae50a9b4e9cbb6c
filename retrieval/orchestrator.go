// Package retrieval runs documents through classification, entity extraction, chunking and
// embedding into the vector store, and serves role-filtered similarity search over them.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/fabfab/stakeholder-rag/classifier"
	"github.com/fabfab/stakeholder-rag/embeddings"
	"github.com/fabfab/stakeholder-rag/entities"
	"github.com/fabfab/stakeholder-rag/errs"
	"github.com/fabfab/stakeholder-rag/ingestion"
	"github.com/fabfab/stakeholder-rag/profile"
	"github.com/fabfab/stakeholder-rag/vectorstore"
)

const (
	defaultTopK         = 3
	defaultPreviewLimit = 1000
)

type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

type DocumentClassifier interface {
	Classify(ctx context.Context, text, filename string) (classifier.Result, error)
}

type EntityExtractor interface {
	Extract(ctx context.Context, text string) entities.Bundle
}

type Splitter interface {
	Split(text string) []string
}

// IndexedDocument describes a stored document for graph projection.
type IndexedDocument struct {
	ID         string
	Source     string
	DocType    profile.DocType
	Confidence float64
	Roles      []profile.Role
	Entities   entities.Bundle
	Chunks     int
}

// GraphSink receives every successfully indexed document.
type GraphSink interface {
	SyncDocument(ctx context.Context, doc IndexedDocument) error
}

// Deps are the collaborators an Orchestrator drives. Graph is optional.
type Deps struct {
	Extractor  TextExtractor
	Classifier DocumentClassifier
	Entities   EntityExtractor
	Splitter   Splitter
	Embedder   embeddings.Embedder
	Store      vectorstore.Store
	Graph      GraphSink
}

type Options struct {
	Namespace    string
	TopK         int
	PreviewLimit int
}

type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func New(deps Deps, opts Options, logger *slog.Logger) (*Orchestrator, error) {
	switch {
	case deps.Classifier == nil:
		return nil, fmt.Errorf("classifier is not configured")
	case deps.Entities == nil:
		return nil, fmt.Errorf("entity extractor is not configured")
	case deps.Splitter == nil:
		return nil, fmt.Errorf("splitter is not configured")
	case deps.Embedder == nil:
		return nil, fmt.Errorf("embedder is not configured")
	case deps.Store == nil:
		return nil, fmt.Errorf("vector store is not configured")
	}
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.PreviewLimit <= 0 {
		opts.PreviewLimit = defaultPreviewLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logger}, nil
}

// IngestFile extracts the text of path and ingests it.
func (o *Orchestrator) IngestFile(ctx context.Context, path, namespace string) IngestResult {
	kind, err := ingestion.DetectKind(path)
	if err != nil {
		return o.fail(IngestResult{Source: path}, StageExtracted, err)
	}
	if o.deps.Extractor == nil {
		return o.fail(IngestResult{Source: path}, StageExtracted, fmt.Errorf("text extractor is not configured"))
	}

	text, err := o.deps.Extractor.ExtractText(ctx, path)
	if err != nil {
		return o.fail(IngestResult{Source: path}, StageExtracted, err)
	}
	return o.IngestDocument(ctx, Document{Text: text, Source: path, Kind: kind}, namespace)
}

// IngestText ingests text that is already in memory.
func (o *Orchestrator) IngestText(ctx context.Context, text, source, namespace string) IngestResult {
	return o.IngestDocument(ctx, Document{Text: text, Source: source, Kind: ingestion.KindText}, namespace)
}

// IngestDocument runs one document through every stage. A failing stage stops the document
// and is reported in the result; nothing is retried.
func (o *Orchestrator) IngestDocument(ctx context.Context, doc Document, namespace string) IngestResult {
	if namespace == "" {
		namespace = o.opts.Namespace
	}
	res := IngestResult{Source: doc.Source, DocumentID: uuid.NewString()}
	log := o.logger.With("source", doc.Source, "namespace", namespace)

	if strings.TrimSpace(doc.Text) == "" {
		return o.fail(res, StageExtracted, errs.Validation("no text extracted"))
	}
	log.Debug("text extracted", "runes", len([]rune(doc.Text)))

	class, err := o.deps.Classifier.Classify(ctx, doc.Text, filepath.Base(doc.Source))
	if err != nil {
		return o.fail(res, StageClassified, err)
	}
	res.DocType = class.DocType
	res.Confidence = class.Confidence
	res.Method = class.Method
	res.RelevantRoles = class.RelevantRoles
	log.Info("document classified", "doc_type", class.DocType, "confidence", class.Confidence, "method", class.Method)

	bundle := o.deps.Entities.Extract(ctx, doc.Text)
	res.EntityCounts = bundle.Counts()
	res.Metadata = classifier.ExtractMetadata(doc.Text, class.DocType)
	if metrics := entities.ExtractMetrics(doc.Text); len(metrics) > 0 {
		res.Metadata["metrics"] = metrics
	}
	log.Debug("entities extracted", "counts", res.EntityCounts)

	texts := o.deps.Splitter.Split(doc.Text)
	if len(texts) == 0 {
		return o.fail(res, StageChunked, fmt.Errorf("document produced no chunks"))
	}
	res.ChunksCreated = len(texts)

	chunks := make([]Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = Chunk{
			Text:          t,
			Source:        doc.Source,
			DocType:       class.DocType,
			Confidence:    class.Confidence,
			RelevantRoles: class.RelevantRoles,
			Entities:      res.EntityCounts,
			Index:         i,
			Count:         len(texts),
		}
	}

	vectors, err := o.deps.Embedder.Embed(ctx, texts)
	if err != nil {
		return o.fail(res, StageEmbedded, err)
	}
	if len(vectors) != len(chunks) {
		return o.fail(res, StageEmbedded, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	records := make([]vectorstore.Record, len(chunks))
	for i, c := range chunks {
		records[i] = vectorstore.Record{
			ID:       uuid.NewString(),
			Vector:   vectors[i],
			Text:     c.Text,
			Metadata: c.metadata(res.DocumentID, o.opts.PreviewLimit),
		}
	}
	if err := o.deps.Store.Upsert(ctx, namespace, records); err != nil {
		return o.fail(res, StageIndexed, err)
	}
	res.ChunksIndexed = len(records)
	res.Stage = StageIndexed
	res.Success = true
	log.Info("document indexed", "doc_type", res.DocType, "chunks", res.ChunksIndexed)

	if o.deps.Graph != nil {
		err := o.deps.Graph.SyncDocument(ctx, IndexedDocument{
			ID:         res.DocumentID,
			Source:     doc.Source,
			DocType:    class.DocType,
			Confidence: class.Confidence,
			Roles:      class.RelevantRoles,
			Entities:   bundle,
			Chunks:     res.ChunksIndexed,
		})
		if err != nil {
			log.Warn("graph sync failed", "error", err)
		}
	}
	return res
}

// IngestDirectory ingests every supported file under dir. A failing document is recorded and
// the walk continues; only an unreadable directory is an error.
func (o *Orchestrator) IngestDirectory(ctx context.Context, dir, namespace string) (BatchResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return BatchResult{}, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return BatchResult{}, errs.Validation(dir + " is not a directory")
	}

	var batch BatchResult
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			o.logger.Warn("skipping unreadable path", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !ingestion.Supported(path) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		res := o.IngestFile(ctx, path, namespace)
		batch.Results = append(batch.Results, res)
		if res.Success {
			batch.Succeeded++
		} else {
			batch.Failed++
		}
		return nil
	})
	if err != nil {
		return batch, fmt.Errorf("walk %s: %w", dir, err)
	}

	o.logger.Info("directory ingested", "dir", dir, "succeeded", batch.Succeeded, "failed", batch.Failed, "total", batch.Total())
	return batch, nil
}

// Query returns the chunks most similar to the question. With a role, twice TopK candidates
// are fetched and only chunks visible to that role are kept.
func (o *Orchestrator) Query(ctx context.Context, req QueryRequest) ([]SearchResult, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, errs.Validation("question cannot be empty")
	}
	topK := req.TopK
	if topK <= 0 {
		topK = o.opts.TopK
	}
	namespace := req.Namespace
	if namespace == "" {
		namespace = o.opts.Namespace
	}

	vec, err := embeddings.EmbedOne(ctx, o.deps.Embedder, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	fetch := topK
	if req.Role != "" {
		fetch = 2 * topK
	}
	matches, err := o.deps.Store.Query(ctx, vectorstore.Query{
		Namespace: namespace,
		Vector:    vec,
		TopK:      fetch,
		Filter:    req.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	results := make([]SearchResult, 0, len(matches))
	for _, m := range matches {
		r := fromMatch(m)
		if req.Role != "" && !r.VisibleTo(req.Role) {
			continue
		}
		results = append(results, r)
		if len(results) == topK {
			break
		}
	}
	o.logger.Debug("retrieved chunks", "role", req.Role, "candidates", len(matches), "kept", len(results))
	return results, nil
}

func (o *Orchestrator) Stats(ctx context.Context) (vectorstore.Stats, error) {
	stats, err := o.deps.Store.Stats(ctx)
	if err != nil {
		return vectorstore.Stats{}, fmt.Errorf("vector store stats: %w", err)
	}
	return stats, nil
}

func (o *Orchestrator) fail(res IngestResult, stage string, err error) IngestResult {
	res.Success = false
	res.Stage = stage
	res.Err = errs.Stage(stage, res.Source, err)
	res.Error = err.Error()
	if errors.Is(err, errs.ErrUnsupportedInput) || errors.Is(err, errs.ErrValidation) {
		o.logger.Warn("document rejected", "source", res.Source, "stage", stage, "error", err)
	} else {
		o.logger.Error("ingestion stage failed", "source", res.Source, "stage", stage, "error", err)
	}
	return res
}

func (c Chunk) metadata(documentID string, previewLimit int) map[string]any {
	preview := c.Text
	if runes := []rune(preview); len(runes) > previewLimit {
		preview = string(runes[:previewLimit])
	}
	roles := make([]string, len(c.RelevantRoles))
	for i, r := range c.RelevantRoles {
		roles[i] = string(r)
	}
	return map[string]any{
		MetaText:       preview,
		MetaSource:     c.Source,
		MetaDocType:    string(c.DocType),
		MetaRoles:      strings.Join(roles, ","),
		MetaConfidence: c.Confidence,
		MetaChunkIndex: c.Index,
		MetaChunkCount: c.Count,
		MetaHasAmounts: c.Entities[entities.Amounts] > 0,
		MetaHasDates:   c.Entities[entities.Dates] > 0,
		MetaDocumentID: documentID,
		MetaEntities:   maps.Clone(c.Entities),
	}
}

func fromMatch(m vectorstore.Match) SearchResult {
	r := SearchResult{ID: m.ID, Text: m.Text, Score: m.Score, Metadata: m.Metadata}
	if r.Text == "" {
		r.Text, _ = m.Metadata[MetaText].(string)
	}
	r.Source, _ = m.Metadata[MetaSource].(string)
	if dt, ok := m.Metadata[MetaDocType].(string); ok {
		r.DocType = profile.DocType(dt)
	}
	return r
}
