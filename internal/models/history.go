package models

import "time"

// HistoryEntry records one state transition of a fact. Entries are
// append-only: they are never mutated or deleted, and every content or
// state change of a fact produces exactly one of them. The initial creation
// is recorded with an empty PreviousState.
type HistoryEntry struct {
	ID              string    `bson:"_id" json:"id"`
	FactID          string    `bson:"fact_id" json:"fact_id"`
	OwnerID         string    `bson:"owner_id" json:"owner_id"`
	PreviousState   FactState `bson:"previous_state" json:"previous_state"`
	NewState        FactState `bson:"new_state" json:"new_state"`
	PreviousContent string    `bson:"previous_content" json:"previous_content"`
	NewContent      string    `bson:"new_content" json:"new_content"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}
