package models

import "time"

// FactState tracks the lifecycle of a stored fact. A fact enters the store
// as StateActive and can only ever leave through StateDeleted; deleted facts
// are retained for auditability and never removed from the backing store.
type FactState string

const (
	// StateActive marks a fact that participates in search and reconciliation.
	StateActive FactState = "active"
	// StateSuperseded is recorded in the history log when an in-place content
	// update replaces a fact's previous content. The live fact itself stays
	// StateActive through updates.
	StateSuperseded FactState = "updated-superseded"
	// StateDeleted is terminal. A fact never transitions out of it.
	StateDeleted FactState = "deleted"
)

// Fact is the atomic memory unit: one factual statement about an owner,
// together with the embedding derived from its content. The embedding is
// regenerated whenever the content changes.
type Fact struct {
	ID        string                 `json:"id"`
	OwnerID   string                 `json:"owner_id"`
	Content   string                 `json:"content"`
	Embedding []float32              `json:"embedding,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	State     FactState              `json:"state"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ScoredFact pairs a fact with the similarity score a vector search assigned
// to it. Higher is more similar.
type ScoredFact struct {
	Fact  *Fact   `json:"fact"`
	Score float32 `json:"score"`
}
