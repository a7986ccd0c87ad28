package models

// Relation is a directed labeled edge between two entity strings, scoped to
// one owner. Entities are free text, not fact ids: relations are derived
// from the same candidate text as facts but live independently of them.
// Inserting an identical triple twice is a no-op; deletion removes the
// exact triple.
type Relation struct {
	OwnerID      string `json:"owner_id"`
	Source       string `json:"source"`
	Relationship string `json:"relationship"`
	Target       string `json:"target"`
}

// Equal reports whether two relations describe the same owner-scoped triple.
func (r Relation) Equal(o Relation) bool {
	return r.OwnerID == o.OwnerID &&
		r.Source == o.Source &&
		r.Relationship == o.Relationship &&
		r.Target == o.Target
}
