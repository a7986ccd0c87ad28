package models

// FactChange describes one applied fact mutation in a combined result:
// the fact's id, its content after the change, and the event that produced
// it (ADD, UPDATE or DELETE — NONE decisions are not listed).
type FactChange struct {
	ID              string `json:"id"`
	Content         string `json:"content"`
	Event           string `json:"event"`
	PreviousContent string `json:"previous_content,omitempty"`
}

// RelationDelta lists the graph edges a commit added and removed.
type RelationDelta struct {
	Added   []Relation `json:"added,omitempty"`
	Removed []Relation `json:"removed,omitempty"`
}

// DecisionError reports the failure of a single decision without aborting
// its siblings. Stage names the pipeline step that failed; Unknown marks
// outcomes where the write may or may not have been applied (timeouts),
// which callers must retry with idempotent semantics.
type DecisionError struct {
	Stage   string `json:"stage"`
	Event   string `json:"event,omitempty"`
	Text    string `json:"text,omitempty"`
	Message string `json:"message"`
	Unknown bool   `json:"unknown,omitempty"`
}

// Stages a DecisionError can originate from.
const (
	StageEmbed    = "embed"
	StageClassify = "classify"
	StageVector   = "vector"
	StageHistory  = "history"
	StageGraph    = "graph"
)

// CombinedResult is the single answer a caller receives for one batch: the
// fact changes applied to the vector store, the relation changes applied to
// the graph store, and any per-decision failures. An all-NONE batch yields
// empty lists, which is success, not an error. A batch-level failure is
// returned as a plain error instead and never mixes with a partial result.
type CombinedResult struct {
	Facts     []FactChange    `json:"facts"`
	Relations RelationDelta   `json:"relations"`
	Errors    []DecisionError `json:"errors,omitempty"`
}

// Degraded reports whether the result carries per-decision failures.
func (r *CombinedResult) Degraded() bool {
	return len(r.Errors) > 0
}
