package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
	"github.com/DrJLabs/Forgetful-sub001/internal/embedding"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/extractor"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/history"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/store"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// Default per-call timeouts, overridable through MemoryConfig.Timeouts.
const (
	defaultExtractionTimeout = 30 * time.Second
	defaultClassifyTimeout   = 15 * time.Second
	defaultEmbedTimeout      = 10 * time.Second
	defaultVectorTimeout     = 10 * time.Second
	defaultGraphTimeout      = 10 * time.Second
	defaultHistoryTimeout    = 5 * time.Second
)

// Params carries everything an Engine needs. All collaborators are
// interfaces so tests can substitute fakes.
type Params struct {
	Extractor  extractor.FactExtractor
	Classifier extractor.Classifier
	Relations  extractor.RelationExtractor
	Embedder   embedding.Embedding
	Facts      store.FactStore
	Graph      store.GraphStore
	Recorder   history.Recorder
	Config     config.MemoryConfig
	Log        *logger.Logger
}

// Engine is the memory synchronization pipeline: it extracts candidate facts
// from conversation turns, reconciles each candidate against the owner's
// existing memory, and commits the resulting decisions across the vector
// store, the history log and the relation graph. It also serves the direct
// read paths (search, list, history) those stores back.
type Engine struct {
	extractor extractor.FactExtractor
	embedder  embedding.Embedding
	facts     store.FactStore
	graph     store.GraphStore
	recorder  history.Recorder

	reconciler  *Reconciler
	coordinator *Coordinator

	topK           int
	poolSize       int
	extractTimeout time.Duration
	embedTimeout   time.Duration
	vectorTimeout  time.Duration
	graphTimeout   time.Duration
	historyTimeout time.Duration

	log *logger.Logger
}

// New assembles an engine from its collaborators and tuning parameters.
func New(p Params) *Engine {
	topK := p.Config.SimilarityTopK
	if topK <= 0 {
		topK = 8
	}
	poolSize := p.Config.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	t := p.Config.Timeouts
	extractTimeout := config.ParseDurationOr(t.Extraction, defaultExtractionTimeout)
	classifyTimeout := config.ParseDurationOr(t.Classification, defaultClassifyTimeout)
	embedTimeout := config.ParseDurationOr(t.Embedding, defaultEmbedTimeout)
	vectorTimeout := config.ParseDurationOr(t.VectorStore, defaultVectorTimeout)
	graphTimeout := config.ParseDurationOr(t.GraphStore, defaultGraphTimeout)
	historyTimeout := config.ParseDurationOr(t.History, defaultHistoryTimeout)

	return &Engine{
		extractor:      p.Extractor,
		embedder:       p.Embedder,
		facts:          p.Facts,
		graph:          p.Graph,
		recorder:       p.Recorder,
		reconciler:     NewReconciler(p.Classifier, p.Embedder, p.Facts, topK, embedTimeout, vectorTimeout, classifyTimeout, p.Log),
		coordinator:    NewCoordinator(p.Facts, p.Graph, p.Recorder, p.Relations, poolSize, vectorTimeout, historyTimeout, graphTimeout, p.Log),
		topK:           topK,
		poolSize:       poolSize,
		extractTimeout: extractTimeout,
		embedTimeout:   embedTimeout,
		vectorTimeout:  vectorTimeout,
		graphTimeout:   graphTimeout,
		historyTimeout: historyTimeout,
		log:            p.Log,
	}
}

// Sync runs the full pipeline for one batch of conversation turns and returns
// the combined result. Only two failures are batch-fatal: a missing owner id
// and an unreachable extraction client; both abort before any store write.
// Everything after extraction degrades per decision inside the result.
func (e *Engine) Sync(ctx context.Context, ownerID string, turns []models.Turn, metadata map[string]interface{}) (*models.CombinedResult, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	turns = nonEmptyTurns(turns)
	if len(turns) == 0 {
		return &models.CombinedResult{Facts: []models.FactChange{}}, nil
	}

	extractCtx, cancel := withTimeout(ctx, e.extractTimeout)
	candidates, err := e.extractor.ExtractFacts(extractCtx, turns)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWhollyUnreachable, err)
	}
	if len(candidates) == 0 {
		e.log.WithPayload(map[string]interface{}{"owner_id": ownerID}).
			Debug("no candidate facts extracted from batch")
		return &models.CombinedResult{Facts: []models.FactChange{}}, nil
	}

	decisions, reconcileErrs := e.reconciler.Reconcile(ctx, ownerID, candidates)

	result := e.coordinator.Commit(ctx, ownerID, decisions, metadata)
	if len(reconcileErrs) > 0 {
		result.Errors = append(reconcileErrs, result.Errors...)
	}

	e.log.WithPayload(map[string]interface{}{
		"owner_id":   ownerID,
		"candidates": len(candidates),
		"decisions":  len(decisions),
		"changes":    len(result.Facts),
		"errors":     len(result.Errors),
	}).Info("memory batch synchronized")
	return result, nil
}

// Search embeds the query and returns the owner's most similar active facts.
// topK <= 0 falls back to the configured default.
func (e *Engine) Search(ctx context.Context, ownerID, query string, topK int) ([]models.ScoredFact, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	if query == "" {
		return nil, errors.New("search query is required")
	}
	if topK <= 0 {
		topK = e.topK
	}

	embedCtx, cancel := withTimeout(ctx, e.embedTimeout)
	vector, err := e.embedder.Embed(embedCtx, query)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to embed search query: %w", err)
	}

	searchCtx, cancel := withTimeout(ctx, e.vectorTimeout)
	defer cancel()
	return e.facts.Search(searchCtx, ownerID, vector, topK)
}

// List returns the owner's active facts in stable order.
func (e *Engine) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Fact, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	listCtx, cancel := withTimeout(ctx, e.vectorTimeout)
	defer cancel()
	return e.facts.List(listCtx, ownerID, limit, offset)
}

// Get returns one fact by id, whatever its state.
func (e *Engine) Get(ctx context.Context, ownerID, factID string) (*models.Fact, error) {
	if ownerID == "" || factID == "" {
		return nil, errors.New("owner id and fact id are required")
	}
	getCtx, cancel := withTimeout(ctx, e.vectorTimeout)
	defer cancel()
	return e.facts.Get(getCtx, ownerID, factID)
}

// Relations returns the owner's relation graph edges.
func (e *Engine) Relations(ctx context.Context, ownerID string) ([]models.Relation, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	gctx, cancel := withTimeout(ctx, e.graphTimeout)
	defer cancel()
	return e.graph.ListRelations(gctx, ownerID)
}

// History returns the owner's fact transitions, newest first.
func (e *Engine) History(ctx context.Context, ownerID string, limit int64) ([]models.HistoryEntry, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}
	hctx, cancel := withTimeout(ctx, e.historyTimeout)
	defer cancel()
	return e.recorder.ListByOwner(hctx, ownerID, limit)
}

// FactHistory returns one fact's transitions in order.
func (e *Engine) FactHistory(ctx context.Context, ownerID, factID string) ([]models.HistoryEntry, error) {
	if ownerID == "" || factID == "" {
		return nil, errors.New("owner id and fact id are required")
	}
	hctx, cancel := withTimeout(ctx, e.historyTimeout)
	defer cancel()
	return e.recorder.ListByFact(hctx, ownerID, factID)
}

// DeleteAll wipes the owner's memory: every active fact is marked deleted
// with a history entry, and the owner's graph is dropped. History entries
// themselves are retained. The report lists what was removed.
func (e *Engine) DeleteAll(ctx context.Context, ownerID string) (*models.CombinedResult, error) {
	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	listCtx, cancel := withTimeout(ctx, e.vectorTimeout)
	facts, err := e.facts.List(listCtx, ownerID, 0, 0)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to list facts for owner %s: %w", ownerID, err)
	}

	outcomes := make([]outcome, len(facts))
	var g errgroup.Group
	g.SetLimit(e.poolSize)
	for i := range facts {
		i := i
		g.Go(func() error {
			outcomes[i] = e.deleteOne(ctx, ownerID, facts[i])
			return nil
		})
	}
	g.Wait()

	result := &models.CombinedResult{Facts: []models.FactChange{}}
	for _, o := range outcomes {
		if o.change != nil {
			result.Facts = append(result.Facts, *o.change)
		}
		result.Errors = append(result.Errors, o.errs...)
	}

	gctx, cancel := withTimeout(ctx, e.graphTimeout)
	defer cancel()
	removed, err := e.graph.ListRelations(gctx, ownerID)
	if err != nil {
		result.Errors = append(result.Errors, models.DecisionError{Stage: models.StageGraph, Message: err.Error()})
		return result, nil
	}
	if err := e.graph.DeleteAll(gctx, ownerID); err != nil {
		result.Errors = append(result.Errors, models.DecisionError{Stage: models.StageGraph, Message: err.Error()})
		return result, nil
	}
	result.Relations.Removed = removed
	return result, nil
}

// deleteOne soft-deletes a single fact and records the transition, the same
// vector-then-history order the commit lane uses.
func (e *Engine) deleteOne(ctx context.Context, ownerID string, fact *models.Fact) outcome {
	var o outcome
	decision := models.Decision{Event: models.EventDelete, FactID: fact.ID, OldContent: fact.Content}

	vctx, cancel := withTimeout(ctx, e.vectorTimeout)
	err := e.facts.Delete(vctx, ownerID, fact.ID)
	cancel()
	if err != nil {
		o.errs = append(o.errs, newDecisionError(models.StageVector, &decision, err))
		return o
	}

	entry := &models.HistoryEntry{
		FactID:          fact.ID,
		OwnerID:         ownerID,
		PreviousState:   models.StateActive,
		NewState:        models.StateDeleted,
		PreviousContent: fact.Content,
	}
	hctx, cancel := withTimeout(ctx, e.historyTimeout)
	err = e.recorder.Record(hctx, entry)
	cancel()
	if err != nil {
		o.errs = append(o.errs, newDecisionError(models.StageHistory, &decision, err))
		return o
	}

	o.change = &models.FactChange{ID: fact.ID, Content: fact.Content, Event: models.EventDelete}
	return o
}

// nonEmptyTurns drops turns whose content is empty.
func nonEmptyTurns(turns []models.Turn) []models.Turn {
	out := turns[:0:0]
	for _, t := range turns {
		if t.Content != "" {
			out = append(out, t)
		}
	}
	return out
}
