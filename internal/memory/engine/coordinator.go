package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/DrJLabs/Forgetful-sub001/internal/memory/extractor"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/history"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/store"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Coordinator applies decisions against the vector store, the history log and
// the relation graph. Decisions are committed concurrently under a bounded
// worker pool; each decision is independent, so one failing never rolls back
// or blocks another. Within a decision the order is fixed: the vector write
// must succeed first, the history entry must be durable second, and only then
// is the change acknowledged; graph writes come last and are best-effort.
type Coordinator struct {
	facts     store.FactStore
	graph     store.GraphStore
	recorder  history.Recorder
	relations extractor.RelationExtractor

	poolSize       int
	vectorTimeout  time.Duration
	historyTimeout time.Duration
	graphTimeout   time.Duration

	log *logger.Logger
}

// NewCoordinator wires a coordinator. poolSize bounds how many decisions
// commit in parallel.
func NewCoordinator(facts store.FactStore, graph store.GraphStore, recorder history.Recorder, relations extractor.RelationExtractor, poolSize int, vectorTimeout, historyTimeout, graphTimeout time.Duration, log *logger.Logger) *Coordinator {
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Coordinator{
		facts:          facts,
		graph:          graph,
		recorder:       recorder,
		relations:      relations,
		poolSize:       poolSize,
		vectorTimeout:  vectorTimeout,
		historyTimeout: historyTimeout,
		graphTimeout:   graphTimeout,
		log:            log,
	}
}

// outcome holds one decision's contribution to the combined result. Slots are
// indexed by decision position so the result order is deterministic no matter
// how the pool schedules the workers.
type outcome struct {
	change  *models.FactChange
	added   []models.Relation
	removed []models.Relation
	errs    []models.DecisionError
}

// relationSet is what the derivation goroutine hands back to the commit lane.
type relationSet struct {
	added   []models.Relation
	removed []models.Relation
	err     error
}

// Commit applies the decisions and assembles the combined result. The
// metadata map is attached to newly added facts. Commit itself never fails;
// every per-decision problem is reported inside the result.
func (c *Coordinator) Commit(ctx context.Context, ownerID string, decisions []models.Decision, metadata map[string]interface{}) *models.CombinedResult {
	outcomes := make([]outcome, len(decisions))

	// A plain group, not WithContext: cancelling siblings on the first
	// failure is exactly what must not happen here.
	var g errgroup.Group
	g.SetLimit(c.poolSize)

	for i := range decisions {
		i := i
		g.Go(func() error {
			outcomes[i] = c.commitOne(ctx, ownerID, decisions[i], metadata)
			return nil
		})
	}
	g.Wait()

	result := &models.CombinedResult{Facts: []models.FactChange{}}
	for _, o := range outcomes {
		if o.change != nil {
			result.Facts = append(result.Facts, *o.change)
		}
		result.Relations.Added = append(result.Relations.Added, o.added...)
		result.Relations.Removed = append(result.Relations.Removed, o.removed...)
		result.Errors = append(result.Errors, o.errs...)
	}
	return result
}

// commitOne runs the full commit lane for a single decision. Relation
// derivation is an LLM call of the same order as the vector write, so it runs
// in parallel with it; its result is only applied once the vector and history
// writes are known durable.
func (c *Coordinator) commitOne(ctx context.Context, ownerID string, decision models.Decision, metadata map[string]interface{}) outcome {
	if decision.Event == models.EventNone {
		return outcome{}
	}

	relCh := make(chan relationSet, 1)
	go func() {
		relCh <- c.deriveRelations(ctx, ownerID, decision)
	}()

	var o outcome
	change, entry, err := c.writeVector(ctx, ownerID, decision, metadata)
	if err != nil {
		o.errs = append(o.errs, newDecisionError(models.StageVector, &decision, err))
		<-relCh // drain; the derived relations are discarded
		return o
	}

	if err := c.writeHistory(ctx, entry); err != nil {
		// The vector write landed but its transition is not on record, so the
		// change cannot be acknowledged. Relations are suppressed with it.
		o.errs = append(o.errs, newDecisionError(models.StageHistory, &decision, err))
		<-relCh
		return o
	}

	o.change = change

	rels := <-relCh
	if rels.err != nil {
		o.errs = append(o.errs, newDecisionError(models.StageGraph, &decision, rels.err))
		return o
	}
	o.added, o.removed = c.writeGraph(ctx, ownerID, decision, rels, &o)
	return o
}

// writeVector applies the decision's vector-store mutation and prepares the
// matching history entry. It returns the change to acknowledge once history
// has been written.
func (c *Coordinator) writeVector(ctx context.Context, ownerID string, decision models.Decision, metadata map[string]interface{}) (*models.FactChange, *models.HistoryEntry, error) {
	vctx, cancel := withTimeout(ctx, c.vectorTimeout)
	defer cancel()

	now := time.Now().UTC()
	switch decision.Event {
	case models.EventAdd:
		fact := &models.Fact{
			ID:        uuid.New().String(),
			OwnerID:   ownerID,
			Content:   decision.Text,
			Embedding: decision.Embedding,
			Metadata:  metadata,
			State:     models.StateActive,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := c.facts.Add(vctx, fact); err != nil {
			return nil, nil, err
		}
		return &models.FactChange{ID: fact.ID, Content: fact.Content, Event: models.EventAdd},
			&models.HistoryEntry{
				FactID:     fact.ID,
				OwnerID:    ownerID,
				NewState:   models.StateActive,
				NewContent: fact.Content,
			}, nil

	case models.EventUpdate:
		fact := &models.Fact{
			ID:        decision.FactID,
			OwnerID:   ownerID,
			Content:   decision.Text,
			Embedding: decision.Embedding,
			UpdatedAt: now,
		}
		if err := c.facts.Update(vctx, fact); err != nil {
			return nil, nil, err
		}
		return &models.FactChange{ID: decision.FactID, Content: decision.Text, Event: models.EventUpdate, PreviousContent: decision.OldContent},
			&models.HistoryEntry{
				FactID:          decision.FactID,
				OwnerID:         ownerID,
				PreviousState:   models.StateActive,
				NewState:        models.StateSuperseded,
				PreviousContent: decision.OldContent,
				NewContent:      decision.Text,
			}, nil

	case models.EventDelete:
		if err := c.facts.Delete(vctx, ownerID, decision.FactID); err != nil {
			return nil, nil, err
		}
		return &models.FactChange{ID: decision.FactID, Content: decision.OldContent, Event: models.EventDelete},
			&models.HistoryEntry{
				FactID:          decision.FactID,
				OwnerID:         ownerID,
				PreviousState:   models.StateActive,
				NewState:        models.StateDeleted,
				PreviousContent: decision.OldContent,
			}, nil
	}
	return nil, nil, nil
}

func (c *Coordinator) writeHistory(ctx context.Context, entry *models.HistoryEntry) error {
	hctx, cancel := withTimeout(ctx, c.historyTimeout)
	defer cancel()
	return c.recorder.Record(hctx, entry)
}

// deriveRelations asks the relation extractor for the graph delta a decision
// implies. An update compares the relations of old and new content; relations
// present in both survive untouched.
func (c *Coordinator) deriveRelations(ctx context.Context, ownerID string, decision models.Decision) relationSet {
	switch decision.Event {
	case models.EventAdd:
		added, err := c.relations.DeriveRelations(ctx, ownerID, decision.Text)
		return relationSet{added: added, err: err}

	case models.EventUpdate:
		added, err := c.relations.DeriveRelations(ctx, ownerID, decision.Text)
		if err != nil {
			return relationSet{err: err}
		}
		old, err := c.relations.DeriveRelations(ctx, ownerID, decision.OldContent)
		if err != nil {
			return relationSet{err: err}
		}
		return relationSet{added: added, removed: subtractRelations(old, added)}

	case models.EventDelete:
		removed, err := c.relations.DeriveRelations(ctx, ownerID, decision.OldContent)
		return relationSet{removed: removed, err: err}
	}
	return relationSet{}
}

// writeGraph applies the relation delta. Graph failures degrade the result
// but never retract the already-acknowledged fact change.
func (c *Coordinator) writeGraph(ctx context.Context, ownerID string, decision models.Decision, rels relationSet, o *outcome) (added, removed []models.Relation) {
	gctx, cancel := withTimeout(ctx, c.graphTimeout)
	defer cancel()

	if len(rels.added) > 0 {
		if err := c.graph.AddRelations(gctx, ownerID, rels.added); err != nil {
			c.log.WithPayload(map[string]interface{}{"owner_id": ownerID}).
				Warn("graph write failed, fact change stands: " + err.Error())
			o.errs = append(o.errs, newDecisionError(models.StageGraph, &decision, err))
		} else {
			added = rels.added
		}
	}
	if len(rels.removed) > 0 {
		if err := c.graph.RemoveRelations(gctx, ownerID, rels.removed); err != nil {
			c.log.WithPayload(map[string]interface{}{"owner_id": ownerID}).
				Warn("graph removal failed, fact change stands: " + err.Error())
			o.errs = append(o.errs, newDecisionError(models.StageGraph, &decision, err))
		} else {
			removed = rels.removed
		}
	}
	return added, removed
}

// subtractRelations returns the relations in a that have no equal in b.
func subtractRelations(a, b []models.Relation) []models.Relation {
	var out []models.Relation
	for _, ra := range a {
		found := false
		for _, rb := range b {
			if ra.Equal(rb) {
				found = true
				break
			}
		}
		if !found {
			out = append(out, ra)
		}
	}
	return out
}
