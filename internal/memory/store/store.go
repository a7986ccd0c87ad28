package store

import (
	"context"
	"errors"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// ErrNotFound is returned when a fact id does not exist under the given owner.
var ErrNotFound = errors.New("fact not found")

// FactStore defines the interface for persisting and searching facts.
// Every method is scoped to one owner; there is no cross-owner read path.
// Deletion is a state flip to deleted, never a row removal, so the audit
// trail survives the fact.
type FactStore interface {
	// Add persists a new fact. The fact must carry its embedding.
	Add(ctx context.Context, fact *models.Fact) error
	// Update replaces content and embedding of an existing fact in place,
	// preserving its id, creation time and metadata. Returns ErrNotFound
	// if the fact does not exist.
	Update(ctx context.Context, fact *models.Fact) error
	// Delete marks a fact deleted. Deleting an already-deleted fact is a no-op.
	Delete(ctx context.Context, ownerID, factID string) error
	// Get returns one fact by id, whatever its state.
	Get(ctx context.Context, ownerID, factID string) (*models.Fact, error)
	// Search returns the top-k active facts most similar to the vector.
	Search(ctx context.Context, ownerID string, vector []float32, topK int) ([]models.ScoredFact, error)
	// List returns active facts in stable order. limit <= 0 means no limit.
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Fact, error)
}

// GraphStore defines the interface for the owner-scoped relation graph.
// Adding an existing triple is a no-op; removal deletes the exact triple.
type GraphStore interface {
	AddRelations(ctx context.Context, ownerID string, relations []models.Relation) error
	RemoveRelations(ctx context.Context, ownerID string, relations []models.Relation) error
	ListRelations(ctx context.Context, ownerID string) ([]models.Relation, error)
	// DeleteAll drops every entity and edge belonging to the owner.
	DeleteAll(ctx context.Context, ownerID string) error
}
