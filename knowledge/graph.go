// Package knowledge projects ingested documents into a Neo4j graph of documents, document
// types, stakeholder roles and extracted entities.
package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fabfab/stakeholder-rag/retrieval"
)

// Document is the graph view of one indexed document.
type Document struct {
	ID         string
	Source     string
	DocType    string
	Confidence float64
	Chunks     int
	Roles      []string
	Entities   []Entity
}

// Entity is a normalized extracted value and the bucket it came from.
type Entity struct {
	Kind  string
	Value string
}

// FromIndexed converts an indexed document into its graph form. Entities are ordered by
// kind then value.
func FromIndexed(doc retrieval.IndexedDocument) Document {
	out := Document{
		ID:         doc.ID,
		Source:     doc.Source,
		DocType:    string(doc.DocType),
		Confidence: doc.Confidence,
		Chunks:     doc.Chunks,
	}
	for _, r := range doc.Roles {
		out.Roles = append(out.Roles, string(r))
	}
	kinds := make([]string, 0, len(doc.Entities))
	for kind := range doc.Entities {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		for _, v := range doc.Entities[kind] {
			out.Entities = append(out.Entities, Entity{Kind: kind, Value: v})
		}
	}
	return out
}

func SyncDocument(ctx context.Context, driver neo4j.DriverWithContext, doc Document) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id is empty")
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	params := map[string]any{
		"id":         doc.ID,
		"source":     doc.Source,
		"doc_type":   doc.DocType,
		"confidence": doc.Confidence,
		"chunks":     doc.Chunks,
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if _, err := tx.Run(ctx, `
			MERGE (d:Document {id: $id})
			SET d.source = $source,
			    d.confidence = $confidence,
			    d.chunk_count = $chunks,
			    d.updated_at = datetime()
		`, params); err != nil {
			return nil, fmt.Errorf("upsert document node: %w", err)
		}

		if _, err := tx.Run(ctx, `
			MATCH (d:Document {id: $id})-[r:OF_TYPE|RELEVANT_TO|MENTIONS]->()
			DELETE r
		`, params); err != nil {
			return nil, fmt.Errorf("clear document relations: %w", err)
		}

		if doc.DocType != "" {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $id})
				MERGE (t:DocType {name: $doc_type})
				MERGE (d)-[:OF_TYPE]->(t)
			`, params); err != nil {
				return nil, fmt.Errorf("upsert doc type relation: %w", err)
			}
		}

		for _, role := range doc.Roles {
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $doc_id})
				MERGE (r:Role {name: $role})
				MERGE (d)-[:RELEVANT_TO]->(r)
			`, map[string]any{
				"doc_id": doc.ID,
				"role":   role,
			}); err != nil {
				return nil, fmt.Errorf("upsert role relation: %w", err)
			}
		}

		for _, e := range doc.Entities {
			if e.Value == "" {
				continue
			}
			if _, err := tx.Run(ctx, `
				MATCH (d:Document {id: $doc_id})
				MERGE (e:Entity {kind: $kind, value: $value})
				MERGE (d)-[:MENTIONS]->(e)
			`, map[string]any{
				"doc_id": doc.ID,
				"kind":   e.Kind,
				"value":  e.Value,
			}); err != nil {
				return nil, fmt.Errorf("upsert entity: %w", err)
			}
		}

		return nil, nil
	})

	if err == nil {
		if _, cleanupErr := session.Run(ctx, `
			MATCH (e:Entity)
			WHERE NOT (e)<-[:MENTIONS]-(:Document)
			DELETE e
		`, nil); cleanupErr != nil {
			err = fmt.Errorf("remove orphan entities: %w", cleanupErr)
		}
	}

	return err
}

// Purge removes every node this package writes.
func Purge(ctx context.Context, driver neo4j.DriverWithContext) error {
	if driver == nil {
		return fmt.Errorf("neo4j driver is nil")
	}
	_, err := neo4j.ExecuteQuery(ctx, driver, `
		MATCH (n)
		WHERE n:Document OR n:DocType OR n:Role OR n:Entity
		DETACH DELETE n
	`, nil, neo4j.EagerResultTransformer)
	if err != nil {
		return fmt.Errorf("purge graph: %w", err)
	}
	return nil
}

// Sink feeds indexed documents into the graph.
type Sink struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

func NewSink(driver neo4j.DriverWithContext, logger *slog.Logger) *Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{driver: driver, logger: logger}
}

func (s *Sink) SyncDocument(ctx context.Context, doc retrieval.IndexedDocument) error {
	g := FromIndexed(doc)
	if err := SyncDocument(ctx, s.driver, g); err != nil {
		return err
	}
	s.logger.Debug("graph synced", "document", g.ID, "entities", len(g.Entities), "roles", len(g.Roles))
	return nil
}

var _ retrieval.GraphSink = (*Sink)(nil)
