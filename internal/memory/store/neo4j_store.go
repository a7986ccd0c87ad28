package store

import (
	"context"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	neo4jdb "github.com/DrJLabs/Forgetful-sub001/internal/database/neo4j"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// Neo4jGraphStore persists owner-scoped relation triples as
// (:Entity)-[:RELATES_TO {label}]->(:Entity) paths. The relationship label
// lives in a property rather than the edge type so triples stay
// parameterizable in Cypher and exact-triple deletion stays trivial.
type Neo4jGraphStore struct {
	db *neo4jdb.Neo4jClient
}

// NewNeo4jGraphStore creates a graph store on top of the shared Neo4j client.
func NewNeo4jGraphStore(db *neo4jdb.Neo4jClient) *Neo4jGraphStore {
	return &Neo4jGraphStore{db: db}
}

// normalizeEntity folds entity labels to a canonical form so "Cricket" and
// "cricket " merge into one node.
func normalizeEntity(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AddRelations merges the triples into the owner's graph. MERGE makes the
// insert idempotent: an identical triple is matched, not duplicated.
func (s *Neo4jGraphStore) AddRelations(ctx context.Context, ownerID string, relations []models.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := `
			MERGE (a:Entity {name: $source, owner_id: $owner})
			MERGE (b:Entity {name: $target, owner_id: $owner})
			MERGE (a)-[r:RELATES_TO {label: $label}]->(b)`
		for _, rel := range relations {
			result, err := tx.Run(ctx, query, map[string]interface{}{
				"owner":  ownerID,
				"source": normalizeEntity(rel.Source),
				"target": normalizeEntity(rel.Target),
				"label":  strings.TrimSpace(rel.Relationship),
			})
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// RemoveRelations deletes the exact triples. Entity nodes are kept even when
// their last edge goes: other facts may still reference them by name.
func (s *Neo4jGraphStore) RemoveRelations(ctx context.Context, ownerID string, relations []models.Relation) error {
	if len(relations) == 0 {
		return nil
	}
	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := `
			MATCH (a:Entity {name: $source, owner_id: $owner})-[r:RELATES_TO {label: $label}]->(b:Entity {name: $target, owner_id: $owner})
			DELETE r`
		for _, rel := range relations {
			result, err := tx.Run(ctx, query, map[string]interface{}{
				"owner":  ownerID,
				"source": normalizeEntity(rel.Source),
				"target": normalizeEntity(rel.Target),
				"label":  strings.TrimSpace(rel.Relationship),
			})
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// ListRelations returns every triple in the owner's graph.
func (s *Neo4jGraphStore) ListRelations(ctx context.Context, ownerID string) ([]models.Relation, error) {
	result, err := s.db.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		query := `
			MATCH (a:Entity {owner_id: $owner})-[r:RELATES_TO]->(b:Entity {owner_id: $owner})
			RETURN a.name AS source, r.label AS label, b.name AS target`
		res, err := tx.Run(ctx, query, map[string]interface{}{"owner": ownerID})
		if err != nil {
			return nil, err
		}

		var relations []models.Relation
		for res.Next(ctx) {
			record := res.Record()
			source, _ := record.Get("source")
			label, _ := record.Get("label")
			target, _ := record.Get("target")
			rel := models.Relation{OwnerID: ownerID}
			if v, ok := source.(string); ok {
				rel.Source = v
			}
			if v, ok := label.(string); ok {
				rel.Relationship = v
			}
			if v, ok := target.(string); ok {
				rel.Target = v
			}
			relations = append(relations, rel)
		}
		return relations, res.Err()
	})
	if err != nil {
		return nil, err
	}
	relations, _ := result.([]models.Relation)
	return relations, nil
}

// DeleteAll removes the owner's entire graph, nodes included.
func (s *Neo4jGraphStore) DeleteAll(ctx context.Context, ownerID string) error {
	_, err := s.db.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, `MATCH (e:Entity {owner_id: $owner}) DETACH DELETE e`, map[string]interface{}{"owner": ownerID})
		if err != nil {
			return nil, err
		}
		if _, err := result.Consume(ctx); err != nil {
			return nil, err
		}
		return nil, nil
	})
	return err
}
