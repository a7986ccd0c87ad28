package models

// Decision events, the four outcomes reconciliation can reach for one
// candidate fact. The strings double as the wire vocabulary of the
// classification prompt, so the classifier's JSON answer maps onto them
// directly.
const (
	EventAdd    = "ADD"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"
	EventNone   = "NONE"
)

// Decision is the reconciliation outcome for a single candidate fact.
// FactID references an existing fact for UPDATE, DELETE and NONE; Text holds
// the candidate content (the new content for ADD and UPDATE). OldContent
// carries the replaced or deleted content so downstream relation pruning and
// history recording don't have to re-read the store.
type Decision struct {
	Event      string `json:"event"`
	FactID     string `json:"id,omitempty"`
	Text       string `json:"text"`
	OldContent string `json:"old_memory,omitempty"`

	// Embedding is the candidate's vector, computed once during
	// reconciliation and reused by the commit path.
	Embedding []float32 `json:"-"`
}
