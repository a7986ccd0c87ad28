package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

func newTestReconciler(classifier *fakeClassifier, embedder *fakeEmbedder, facts *fakeFactStore) *Reconciler {
	return NewReconciler(classifier, embedder, facts, 5, time.Second, time.Second, time.Second, testLogger())
}

func activeFact(id, owner, content string) *models.Fact {
	now := time.Now().UTC()
	return &models.Fact{
		ID:        id,
		OwnerID:   owner,
		Content:   content,
		Embedding: vectorFor(content),
		State:     models.StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestReconcileExactDuplicateBecomesNoOp(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "likes tea"))
	classifier := &fakeClassifier{}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"likes tea"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.EventNone, decisions[0].Event)
	assert.Equal(t, "f1", decisions[0].FactID)
	assert.Empty(t, classifier.calls, "exact duplicates must not reach the classifier")
}

func TestReconcileRepeatedCandidateDedupedWithinBatch(t *testing.T) {
	facts := newFakeFactStore()
	classifier := &fakeClassifier{}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"likes tea", "likes tea"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.EventAdd, decisions[0].Event)
}

func TestReconcileAddCarriesEmbedding(t *testing.T) {
	reconciler := newTestReconciler(&fakeClassifier{}, &fakeEmbedder{}, newFakeFactStore())

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"plays chess"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.EventAdd, decisions[0].Event)
	assert.Equal(t, vectorFor("plays chess"), decisions[0].Embedding)
	assert.Empty(t, decisions[0].FactID, "ADD must not carry a fact id")
}

func TestReconcileUpdateTakesOldContentFromStore(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "lives in Berlin"))
	classifier := &fakeClassifier{decisions: map[string]models.Decision{
		"lives in Hamburg now": {
			Event:      models.EventUpdate,
			FactID:     "f1",
			Text:       "lives in Hamburg now",
			OldContent: "classifier's own echo, to be ignored",
		},
	}}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"lives in Hamburg now"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.EventUpdate, decisions[0].Event)
	assert.Equal(t, "lives in Berlin", decisions[0].OldContent,
		"previous content must come from the store, not the classifier")
}

func TestReconcileUnknownUpdateIDDowngradesToAdd(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "lives in Berlin"))
	classifier := &fakeClassifier{decisions: map[string]models.Decision{
		"lives in Hamburg": {Event: models.EventUpdate, FactID: "no-such-id", Text: "lives in Hamburg"},
	}}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"lives in Hamburg"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.EventAdd, decisions[0].Event)
	assert.Equal(t, "lives in Hamburg", decisions[0].Text)
	assert.Empty(t, decisions[0].FactID)
}

func TestReconcileUnknownDeleteIDDowngradesToAdd(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "owns a dog"))
	classifier := &fakeClassifier{decisions: map[string]models.Decision{
		"no longer owns a cat": {Event: models.EventDelete, FactID: "ghost", Text: ""},
	}}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"no longer owns a cat"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, models.EventAdd, decisions[0].Event)
	assert.Equal(t, "no longer owns a cat", decisions[0].Text,
		"a downgraded delete keeps the candidate text so no information is lost")
}

func TestReconcileSecondUpdateClaimDowngradesToAdd(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "works at Acme"))
	classifier := &fakeClassifier{decisions: map[string]models.Decision{
		"works at Initech": {Event: models.EventUpdate, FactID: "f1", Text: "works at Initech"},
		"now a team lead":  {Event: models.EventUpdate, FactID: "f1", Text: "works at Acme as team lead"},
	}}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice",
		[]string{"works at Initech", "now a team lead"})

	require.Empty(t, errs)
	require.Len(t, decisions, 2)
	assert.Equal(t, models.EventUpdate, decisions[0].Event)
	assert.Equal(t, "f1", decisions[0].FactID)
	assert.Equal(t, models.EventAdd, decisions[1].Event,
		"a fact id already claimed in this batch cannot take a second mutation")
	assert.Equal(t, "works at Acme as team lead", decisions[1].Text)
}

func TestReconcileSecondDeleteClaimBecomesNoOp(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "works at Acme"))
	classifier := &fakeClassifier{decisions: map[string]models.Decision{
		"works at Initech":  {Event: models.EventUpdate, FactID: "f1", Text: "works at Initech"},
		"quit the Acme job": {Event: models.EventDelete, FactID: "f1"},
	}}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice",
		[]string{"works at Initech", "quit the Acme job"})

	require.Empty(t, errs)
	require.Len(t, decisions, 2)
	assert.Equal(t, models.EventUpdate, decisions[0].Event)
	assert.Equal(t, models.EventNone, decisions[1].Event,
		"a delete racing an earlier claim defers to it instead of re-adding the negation")
}

func TestReconcileClassifierFailureSkipsOnlyThatCandidate(t *testing.T) {
	facts := newFakeFactStore()
	classifier := &fakeClassifier{err: errContrived}
	reconciler := newTestReconciler(classifier, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"a", "b"})

	assert.Empty(t, decisions)
	require.Len(t, errs, 2)
	for _, e := range errs {
		assert.Equal(t, models.StageClassify, e.Stage)
		assert.False(t, e.Unknown)
	}
}

func TestReconcileEmbedFailureReportsPerCandidate(t *testing.T) {
	embedder := &fakeEmbedder{failOn: "bad one"}
	reconciler := newTestReconciler(&fakeClassifier{}, embedder, newFakeFactStore())

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"good one", "bad one"})

	require.Len(t, decisions, 1)
	assert.Equal(t, "good one", decisions[0].Text)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StageEmbed, errs[0].Stage)
	assert.Equal(t, "bad one", errs[0].Text)
}

func TestReconcileReembedsWhenClassifierRewroteText(t *testing.T) {
	facts := newFakeFactStore()
	classifier := &fakeClassifier{decisions: map[string]models.Decision{
		"likes black coffee": {Event: models.EventAdd, Text: "likes coffee, prefers it black"},
	}}
	embedder := &fakeEmbedder{}
	reconciler := newTestReconciler(classifier, embedder, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"likes black coffee"})

	require.Empty(t, errs)
	require.Len(t, decisions, 1)
	assert.Equal(t, vectorFor("likes coffee, prefers it black"), decisions[0].Embedding,
		"stored embedding must match the final text, not the raw candidate")
}

func TestReconcileSearchFailureReportsVectorStage(t *testing.T) {
	facts := newFakeFactStore()
	facts.searchErr = errContrived
	reconciler := newTestReconciler(&fakeClassifier{}, &fakeEmbedder{}, facts)

	decisions, errs := reconciler.Reconcile(context.Background(), "alice", []string{"anything"})

	assert.Empty(t, decisions)
	require.Len(t, errs, 1)
	assert.Equal(t, models.StageVector, errs[0].Stage)
}
