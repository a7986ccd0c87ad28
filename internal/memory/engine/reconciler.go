package engine

import (
	"context"
	"time"

	"github.com/DrJLabs/Forgetful-sub001/internal/embedding"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/extractor"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/store"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// Reconciler turns candidate fact strings into decisions. For each candidate
// it embeds the text, retrieves the owner's most similar active facts, asks
// the classifier how the candidate relates to them, and validates the answer
// before letting it anywhere near a store.
type Reconciler struct {
	classifier extractor.Classifier
	embedder   embedding.Embedding
	facts      store.FactStore

	topK            int
	embedTimeout    time.Duration
	searchTimeout   time.Duration
	classifyTimeout time.Duration

	log *logger.Logger
}

// NewReconciler wires a reconciler.
func NewReconciler(classifier extractor.Classifier, embedder embedding.Embedding, facts store.FactStore, topK int, embedTimeout, searchTimeout, classifyTimeout time.Duration, log *logger.Logger) *Reconciler {
	if topK <= 0 {
		topK = 8
	}
	return &Reconciler{
		classifier:      classifier,
		embedder:        embedder,
		facts:           facts,
		topK:            topK,
		embedTimeout:    embedTimeout,
		searchTimeout:   searchTimeout,
		classifyTimeout: classifyTimeout,
		log:             log,
	}
}

// Reconcile maps candidates to decisions. Failures of a single candidate are
// reported and skipped, never aborting the siblings. The returned decisions
// never target the same existing fact id twice: a second mutation claim on
// an id is downgraded to Add, the information-preserving choice.
func (r *Reconciler) Reconcile(ctx context.Context, ownerID string, candidates []string) ([]models.Decision, []models.DecisionError) {
	candidates = dedupe(candidates)

	vectors, errs := r.embedAll(ctx, candidates)

	var decisions []models.Decision
	claimed := make(map[string]bool)

	for i, candidate := range candidates {
		vector := vectors[i]
		if vector == nil {
			continue // embedding failed, already reported
		}

		similar, err := r.searchSimilar(ctx, ownerID, vector)
		if err != nil {
			errs = append(errs, candidateError(models.StageVector, candidate, err))
			continue
		}

		// Exact duplicates never reach the classifier: an identical content
		// string is a NoOp regardless of what the model would say.
		if dup := exactMatch(similar, candidate); dup != nil {
			decisions = append(decisions, models.Decision{
				Event:  models.EventNone,
				FactID: dup.ID,
				Text:   candidate,
			})
			continue
		}

		decision, err := r.classify(ctx, candidate, similar)
		if err != nil {
			errs = append(errs, candidateError(models.StageClassify, candidate, err))
			continue
		}

		validated := r.validate(ownerID, candidate, *decision, similar, claimed)

		// The classifier may answer with merged content that differs from the
		// candidate; the stored embedding must always match the final text.
		if validated.Event == models.EventAdd || validated.Event == models.EventUpdate {
			if validated.Text == candidate {
				validated.Embedding = vector
			} else {
				revec, err := r.embedOne(ctx, validated.Text)
				if err != nil {
					errs = append(errs, candidateError(models.StageEmbed, validated.Text, err))
					continue
				}
				validated.Embedding = revec
			}
		}

		decisions = append(decisions, validated)
	}

	return decisions, errs
}

// embedAll embeds every candidate in one batched call, falling back to
// per-candidate embedding when the batch call fails. A nil slot marks a
// candidate whose embedding could not be produced.
func (r *Reconciler) embedAll(ctx context.Context, candidates []string) ([][]float32, []models.DecisionError) {
	vectors := make([][]float32, len(candidates))
	if len(candidates) == 0 {
		return vectors, nil
	}

	embedCtx, cancel := withTimeout(ctx, r.embedTimeout)
	batch, err := r.embedder.EmbedBatch(embedCtx, candidates)
	cancel()
	if err == nil && len(batch) == len(candidates) {
		copy(vectors, batch)
		return vectors, nil
	}

	var errs []models.DecisionError
	for i, candidate := range candidates {
		vector, err := r.embedOne(ctx, candidate)
		if err != nil {
			errs = append(errs, candidateError(models.StageEmbed, candidate, err))
			continue
		}
		vectors[i] = vector
	}
	return vectors, errs
}

func (r *Reconciler) embedOne(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := withTimeout(ctx, r.embedTimeout)
	defer cancel()
	return r.embedder.Embed(embedCtx, text)
}

func (r *Reconciler) searchSimilar(ctx context.Context, ownerID string, vector []float32) ([]models.ScoredFact, error) {
	searchCtx, cancel := withTimeout(ctx, r.searchTimeout)
	defer cancel()
	return r.facts.Search(searchCtx, ownerID, vector, r.topK)
}

func (r *Reconciler) classify(ctx context.Context, candidate string, similar []models.ScoredFact) (*models.Decision, error) {
	classifyCtx, cancel := withTimeout(ctx, r.classifyTimeout)
	defer cancel()
	return r.classifier.Classify(classifyCtx, candidate, similar)
}

// validate checks the classifier's advisory answer against ground truth: the
// similar set actually supplied to it. A mutation referencing an id outside
// that set is downgraded to Add, the information-preserving choice. A second
// mutation claiming an id already taken in this batch keeps the first claim:
// an Update falls back to Add, a Delete to NoOp.
func (r *Reconciler) validate(ownerID, candidate string, decision models.Decision, similar []models.ScoredFact, claimed map[string]bool) models.Decision {
	byID := make(map[string]*models.Fact, len(similar))
	for _, sf := range similar {
		byID[sf.Fact.ID] = sf.Fact
	}

	switch decision.Event {
	case models.EventUpdate, models.EventDelete:
		existing, known := byID[decision.FactID]
		if !known {
			r.log.WithPayload(map[string]interface{}{
				"owner_id": ownerID,
				"event":    decision.Event,
				"fact_id":  decision.FactID,
			}).Warn("classifier referenced an unverified fact id, downgrading to ADD")
			return addFallback(decision, candidate)
		}
		if claimed[decision.FactID] {
			r.log.WithPayload(map[string]interface{}{
				"owner_id": ownerID,
				"event":    decision.Event,
				"fact_id":  decision.FactID,
			}).Warn("fact id already claimed in this batch, downgrading decision")
			if decision.Event == models.EventDelete {
				return models.Decision{Event: models.EventNone, FactID: decision.FactID, Text: candidate}
			}
			return addFallback(decision, candidate)
		}
		claimed[decision.FactID] = true
		// The store's copy of the previous content is authoritative, not the
		// classifier's echo of it.
		decision.OldContent = existing.Content
		if decision.Event == models.EventDelete {
			decision.Text = candidate
		}
	case models.EventAdd:
		decision.FactID = ""
		if decision.Text == "" {
			decision.Text = candidate
		}
	case models.EventNone:
		if _, known := byID[decision.FactID]; !known {
			decision.FactID = ""
		}
	}
	return decision
}

// addFallback turns a rejected mutation into an Add carrying the best
// available content: the classifier's rewritten text for an Update, the raw
// candidate otherwise.
func addFallback(decision models.Decision, candidate string) models.Decision {
	text := decision.Text
	if decision.Event == models.EventDelete || text == "" {
		text = candidate
	}
	return models.Decision{Event: models.EventAdd, Text: text}
}

// exactMatch returns the active fact whose content equals the candidate.
func exactMatch(similar []models.ScoredFact, candidate string) *models.Fact {
	for _, sf := range similar {
		if sf.Fact.Content == candidate {
			return sf.Fact
		}
	}
	return nil
}

// dedupe drops repeated candidate strings, keeping first occurrences in
// order. Two identical candidates would otherwise race to add the same fact
// twice within one batch.
func dedupe(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	out := candidates[:0:0]
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// withTimeout derives a context with the given timeout; a non-positive
// timeout means the parent's deadline applies unchanged.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
