package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	milvusdb "github.com/DrJLabs/Forgetful-sub001/internal/database/milvus"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// activeExpr filters out soft-deleted rows on every read path.
const activeExpr = milvusdb.FieldState + ` == "active"`

// MilvusFactStore persists facts in a Milvus collection, one partition per
// owner. Rows are written whole via upsert, so add, update and the deleted
// state flip all share a single write primitive.
type MilvusFactStore struct {
	db *milvusdb.MilvusClient
}

// NewMilvusFactStore creates a fact store on top of the shared Milvus client.
func NewMilvusFactStore(db *milvusdb.MilvusClient) *MilvusFactStore {
	return &MilvusFactStore{db: db}
}

// Add persists a new fact.
func (s *MilvusFactStore) Add(ctx context.Context, fact *models.Fact) error {
	if len(fact.Embedding) != s.db.Config.Dimension {
		return fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(fact.Embedding), s.db.Config.Dimension)
	}
	partition, err := s.db.EnsurePartition(ctx, fact.OwnerID)
	if err != nil {
		return err
	}
	cols, err := factColumns(fact, s.db.Config.Dimension)
	if err != nil {
		return err
	}
	return s.db.Upsert(ctx, partition, cols...)
}

// Update replaces content and embedding of an existing fact, keeping its
// creation time and metadata. The row is rewritten whole because Milvus has
// no partial update.
func (s *MilvusFactStore) Update(ctx context.Context, fact *models.Fact) error {
	if len(fact.Embedding) != s.db.Config.Dimension {
		return fmt.Errorf("embedding dimension %d does not match collection dimension %d", len(fact.Embedding), s.db.Config.Dimension)
	}
	existing, err := s.Get(ctx, fact.OwnerID, fact.ID)
	if err != nil {
		return err
	}

	next := *fact
	next.State = existing.State
	next.CreatedAt = existing.CreatedAt
	if next.Metadata == nil {
		next.Metadata = existing.Metadata
	}
	if next.UpdatedAt.IsZero() {
		next.UpdatedAt = time.Now().UTC()
	}

	partition, err := s.db.EnsurePartition(ctx, fact.OwnerID)
	if err != nil {
		return err
	}
	cols, err := factColumns(&next, s.db.Config.Dimension)
	if err != nil {
		return err
	}
	return s.db.Upsert(ctx, partition, cols...)
}

// Delete flips a fact to the deleted state. The row, embedding included, is
// re-read first because the upsert must rewrite it whole.
func (s *MilvusFactStore) Delete(ctx context.Context, ownerID, factID string) error {
	partition, err := s.db.EnsurePartition(ctx, ownerID)
	if err != nil {
		return err
	}
	expr := fmt.Sprintf(`%s == "%s" && %s == "%s"`, milvusdb.FieldID, factID, milvusdb.FieldOwnerID, ownerID)
	fields := append(append([]string{}, milvusdb.OutputFields...), milvusdb.FieldEmbedding)
	rs, err := s.db.Query(ctx, partition, expr, fields)
	if err != nil {
		return err
	}
	facts, err := resultSetFacts(rs, true)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		return ErrNotFound
	}

	fact := facts[0]
	if fact.State == models.StateDeleted {
		return nil
	}
	fact.State = models.StateDeleted
	fact.UpdatedAt = time.Now().UTC()

	cols, err := factColumns(fact, s.db.Config.Dimension)
	if err != nil {
		return err
	}
	return s.db.Upsert(ctx, partition, cols...)
}

// Get returns one fact by id, whatever its state.
func (s *MilvusFactStore) Get(ctx context.Context, ownerID, factID string) (*models.Fact, error) {
	partition, err := s.db.EnsurePartition(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`%s == "%s" && %s == "%s"`, milvusdb.FieldID, factID, milvusdb.FieldOwnerID, ownerID)
	rs, err := s.db.Query(ctx, partition, expr, nil)
	if err != nil {
		return nil, err
	}
	facts, err := resultSetFacts(rs, false)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, ErrNotFound
	}
	return facts[0], nil
}

// Search returns the top-k active facts most similar to the vector.
func (s *MilvusFactStore) Search(ctx context.Context, ownerID string, vector []float32, topK int) ([]models.ScoredFact, error) {
	partition, err := s.db.EnsurePartition(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`%s == "%s" && %s`, milvusdb.FieldOwnerID, ownerID, activeExpr)
	results, err := s.db.Search(ctx, partition, expr, topK, vector)
	if err != nil {
		return nil, err
	}

	var scored []models.ScoredFact
	for _, res := range results {
		facts, err := dataSetFacts(res.Fields, res.ResultCount)
		if err != nil {
			return nil, err
		}
		for i, fact := range facts {
			sf := models.ScoredFact{Fact: fact}
			if i < len(res.Scores) {
				sf.Score = res.Scores[i]
			}
			scored = append(scored, sf)
		}
	}
	return scored, nil
}

// List returns active facts ordered by creation time on the caller's side.
func (s *MilvusFactStore) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Fact, error) {
	partition, err := s.db.EnsurePartition(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	expr := fmt.Sprintf(`%s == "%s" && %s`, milvusdb.FieldOwnerID, ownerID, activeExpr)

	var opts []client.SearchQueryOptionFunc
	if limit > 0 {
		opts = append(opts, client.WithLimit(int64(limit)))
	}
	if offset > 0 {
		opts = append(opts, client.WithOffset(int64(offset)))
	}
	rs, err := s.db.Query(ctx, partition, expr, nil, opts...)
	if err != nil {
		return nil, err
	}
	return resultSetFacts(rs, false)
}

// factColumns flattens a fact into the fixed column layout of the collection.
func factColumns(fact *models.Fact, dim int) ([]entity.Column, error) {
	meta := "{}"
	if len(fact.Metadata) > 0 {
		raw, err := json.Marshal(fact.Metadata)
		if err != nil {
			return nil, fmt.Errorf("metadata is not JSON-serializable: %w", err)
		}
		meta = string(raw)
	}
	return []entity.Column{
		entity.NewColumnVarChar(milvusdb.FieldID, []string{fact.ID}),
		entity.NewColumnVarChar(milvusdb.FieldOwnerID, []string{fact.OwnerID}),
		entity.NewColumnVarChar(milvusdb.FieldContent, []string{fact.Content}),
		entity.NewColumnVarChar(milvusdb.FieldMetadata, []string{meta}),
		entity.NewColumnVarChar(milvusdb.FieldState, []string{string(fact.State)}),
		entity.NewColumnInt64(milvusdb.FieldCreatedAt, []int64{fact.CreatedAt.UnixMilli()}),
		entity.NewColumnInt64(milvusdb.FieldUpdatedAt, []int64{fact.UpdatedAt.UnixMilli()}),
		entity.NewColumnFloatVector(milvusdb.FieldEmbedding, dim, [][]float32{fact.Embedding}),
	}, nil
}

// columnSource is satisfied by both client.ResultSet and client.DataSet.
type columnSource interface {
	GetColumn(fieldName string) entity.Column
}

// resultSetFacts converts a query result into facts. withVector additionally
// restores the embedding, which only the soft-delete rewrite needs.
func resultSetFacts(rs client.ResultSet, withVector bool) ([]*models.Fact, error) {
	idCol := rs.GetColumn(milvusdb.FieldID)
	if idCol == nil {
		return nil, nil
	}
	return columnsToFacts(rs, idCol.Len(), withVector, rs.GetColumn(milvusdb.FieldEmbedding))
}

// dataSetFacts converts one search result's field data into facts.
func dataSetFacts(ds columnSource, count int) ([]*models.Fact, error) {
	return columnsToFacts(ds, count, false, nil)
}

func columnsToFacts(src columnSource, count int, withVector bool, vecCol entity.Column) ([]*models.Fact, error) {
	var vectors [][]float32
	if withVector {
		fv, ok := vecCol.(*entity.ColumnFloatVector)
		if !ok {
			return nil, fmt.Errorf("embedding column missing from result")
		}
		vectors = fv.Data()
	}

	facts := make([]*models.Fact, 0, count)
	for i := 0; i < count; i++ {
		fact := &models.Fact{}
		var err error
		if fact.ID, err = stringAt(src, milvusdb.FieldID, i); err != nil {
			return nil, err
		}
		if fact.OwnerID, err = stringAt(src, milvusdb.FieldOwnerID, i); err != nil {
			return nil, err
		}
		if fact.Content, err = stringAt(src, milvusdb.FieldContent, i); err != nil {
			return nil, err
		}
		meta, err := stringAt(src, milvusdb.FieldMetadata, i)
		if err != nil {
			return nil, err
		}
		if meta != "" && meta != "{}" {
			if err := json.Unmarshal([]byte(meta), &fact.Metadata); err != nil {
				return nil, fmt.Errorf("stored metadata for fact %s is corrupt: %w", fact.ID, err)
			}
		}
		state, err := stringAt(src, milvusdb.FieldState, i)
		if err != nil {
			return nil, err
		}
		fact.State = models.FactState(state)
		created, err := int64At(src, milvusdb.FieldCreatedAt, i)
		if err != nil {
			return nil, err
		}
		fact.CreatedAt = time.UnixMilli(created).UTC()
		updated, err := int64At(src, milvusdb.FieldUpdatedAt, i)
		if err != nil {
			return nil, err
		}
		fact.UpdatedAt = time.UnixMilli(updated).UTC()
		if withVector && i < len(vectors) {
			fact.Embedding = vectors[i]
		}
		facts = append(facts, fact)
	}
	return facts, nil
}

func stringAt(src columnSource, field string, i int) (string, error) {
	col := src.GetColumn(field)
	if col == nil {
		return "", fmt.Errorf("column %s missing from result", field)
	}
	v, err := col.GetAsString(i)
	if err != nil {
		return "", fmt.Errorf("column %s row %d: %w", field, i, err)
	}
	return v, nil
}

func int64At(src columnSource, field string, i int) (int64, error) {
	col := src.GetColumn(field)
	if col == nil {
		return 0, fmt.Errorf("column %s missing from result", field)
	}
	v, err := col.GetAsInt64(i)
	if err != nil {
		return 0, fmt.Errorf("column %s row %d: %w", field, i, err)
	}
	return v, nil
}
