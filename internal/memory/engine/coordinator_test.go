package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

func newTestCoordinator(facts *fakeFactStore, graph *fakeGraphStore, recorder *fakeRecorder, relations *fakeRelations, poolSize int) *Coordinator {
	return NewCoordinator(facts, graph, recorder, relations, poolSize, time.Second, time.Second, time.Second, testLogger())
}

func TestCommitAddPersistsFactHistoryAndRelations(t *testing.T) {
	facts := newFakeFactStore()
	graph := &fakeGraphStore{}
	recorder := &fakeRecorder{}
	coordinator := newTestCoordinator(facts, graph, recorder, &fakeRelations{}, 2)

	decision := models.Decision{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision},
		map[string]interface{}{"source": "chat"})

	require.Len(t, result.Facts, 1)
	change := result.Facts[0]
	assert.Equal(t, models.EventAdd, change.Event)
	assert.Equal(t, "likes tea", change.Content)
	assert.NotEmpty(t, change.ID)

	stored, err := facts.Get(context.Background(), "alice", change.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, stored.State)
	assert.Equal(t, map[string]interface{}{"source": "chat"}, stored.Metadata)

	entries := recorder.byFact(change.ID)
	require.Len(t, entries, 1)
	assert.Empty(t, entries[0].PreviousState, "creation is recorded with an empty previous state")
	assert.Equal(t, models.StateActive, entries[0].NewState)
	assert.Equal(t, "likes tea", entries[0].NewContent)

	require.Len(t, result.Relations.Added, 1)
	assert.Equal(t, result.Relations.Added, graph.added)
	assert.False(t, result.Degraded())
}

func TestCommitUpdateRecordsSupersededTransition(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "lives in Berlin"))
	recorder := &fakeRecorder{}
	coordinator := newTestCoordinator(facts, &fakeGraphStore{}, recorder, &fakeRelations{}, 2)

	decision := models.Decision{
		Event:      models.EventUpdate,
		FactID:     "f1",
		Text:       "lives in Hamburg",
		OldContent: "lives in Berlin",
		Embedding:  vectorFor("lives in Hamburg"),
	}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, "lives in Berlin", result.Facts[0].PreviousContent)

	stored, err := facts.Get(context.Background(), "alice", "f1")
	require.NoError(t, err)
	assert.Equal(t, "lives in Hamburg", stored.Content)
	assert.Equal(t, models.StateActive, stored.State, "updates keep the fact active")

	entries := recorder.byFact("f1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.StateActive, entries[0].PreviousState)
	assert.Equal(t, models.StateSuperseded, entries[0].NewState)
	assert.Equal(t, "lives in Berlin", entries[0].PreviousContent)
	assert.Equal(t, "lives in Hamburg", entries[0].NewContent)
}

func TestCommitUpdatePrunesOnlyStaleRelations(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "old text"))
	graph := &fakeGraphStore{}
	shared := models.Relation{OwnerID: "alice", Source: "alice", Relationship: "lives_in", Target: "germany"}
	stale := models.Relation{OwnerID: "alice", Source: "alice", Relationship: "lives_in", Target: "berlin"}
	fresh := models.Relation{OwnerID: "alice", Source: "alice", Relationship: "lives_in", Target: "hamburg"}
	relations := &fakeRelations{scripted: map[string][]models.Relation{
		"new text": {shared, fresh},
		"old text": {shared, stale},
	}}
	coordinator := newTestCoordinator(facts, graph, &fakeRecorder{}, relations, 2)

	decision := models.Decision{
		Event:      models.EventUpdate,
		FactID:     "f1",
		Text:       "new text",
		OldContent: "old text",
		Embedding:  vectorFor("new text"),
	}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	assert.ElementsMatch(t, []models.Relation{shared, fresh}, result.Relations.Added)
	assert.ElementsMatch(t, []models.Relation{stale}, result.Relations.Removed,
		"relations shared by old and new content must survive the update")
}

func TestCommitDeleteSoftDeletesAndRemovesRelations(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "owns a cat"))
	graph := &fakeGraphStore{}
	recorder := &fakeRecorder{}
	coordinator := newTestCoordinator(facts, graph, recorder, &fakeRelations{}, 2)

	decision := models.Decision{Event: models.EventDelete, FactID: "f1", OldContent: "owns a cat"}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, models.EventDelete, result.Facts[0].Event)
	assert.Equal(t, "owns a cat", result.Facts[0].Content,
		"a delete change reports the content that was removed")

	stored, err := facts.Get(context.Background(), "alice", "f1")
	require.NoError(t, err)
	assert.Equal(t, models.StateDeleted, stored.State, "deletion is a state flip, not a row removal")

	entries := recorder.byFact("f1")
	require.Len(t, entries, 1)
	assert.Equal(t, models.StateDeleted, entries[0].NewState)
	assert.Equal(t, "owns a cat", entries[0].PreviousContent)
	assert.Empty(t, entries[0].NewContent)

	require.Len(t, result.Relations.Removed, 1)
	assert.Equal(t, result.Relations.Removed, graph.removed)
}

func TestCommitNoOpTouchesNothing(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "likes tea"))
	graph := &fakeGraphStore{}
	recorder := &fakeRecorder{}
	relations := &fakeRelations{}
	coordinator := newTestCoordinator(facts, graph, recorder, relations, 2)

	decision := models.Decision{Event: models.EventNone, FactID: "f1", Text: "likes tea"}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	assert.Empty(t, result.Facts, "NONE decisions are not listed as changes")
	assert.Empty(t, result.Errors)
	assert.Zero(t, facts.mutationCount())
	assert.Empty(t, recorder.entries)
	assert.Zero(t, relations.callCount())
}

func TestCommitVectorFailureSuppressesRelationsAndHistory(t *testing.T) {
	facts := newFakeFactStore()
	facts.addErr = errContrived
	graph := &fakeGraphStore{}
	recorder := &fakeRecorder{}
	coordinator := newTestCoordinator(facts, graph, recorder, &fakeRelations{}, 2)

	decision := models.Decision{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	assert.Empty(t, result.Facts)
	assert.Empty(t, result.Relations.Added, "relations must not outlive a failed vector write")
	assert.Empty(t, graph.added)
	assert.Empty(t, recorder.entries)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.StageVector, result.Errors[0].Stage)
	assert.False(t, result.Errors[0].Unknown)
}

func TestCommitVectorTimeoutIsUnknownOutcome(t *testing.T) {
	facts := newFakeFactStore()
	facts.addErr = context.DeadlineExceeded
	coordinator := newTestCoordinator(facts, &fakeGraphStore{}, &fakeRecorder{}, &fakeRelations{}, 2)

	decision := models.Decision{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	require.Len(t, result.Errors, 1)
	assert.True(t, result.Errors[0].Unknown,
		"a store write timeout may have landed and must be flagged unknown-outcome")
}

func TestCommitHistoryFailureWithholdsAcknowledgement(t *testing.T) {
	facts := newFakeFactStore()
	graph := &fakeGraphStore{}
	recorder := &fakeRecorder{err: errContrived}
	coordinator := newTestCoordinator(facts, graph, recorder, &fakeRelations{}, 2)

	decision := models.Decision{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	assert.Empty(t, result.Facts, "a change whose transition is not on record cannot be acknowledged")
	assert.Empty(t, graph.added)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.StageHistory, result.Errors[0].Stage)
	assert.Len(t, facts.adds, 1, "the vector write itself did land")
}

func TestCommitGraphFailureDegradesButKeepsChange(t *testing.T) {
	facts := newFakeFactStore()
	graph := &fakeGraphStore{addErr: errContrived}
	coordinator := newTestCoordinator(facts, graph, &fakeRecorder{}, &fakeRelations{}, 2)

	decision := models.Decision{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	require.Len(t, result.Facts, 1, "facts remain correct when only the graph write failed")
	assert.Empty(t, result.Relations.Added)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.StageGraph, result.Errors[0].Stage)
	assert.True(t, result.Degraded())
}

func TestCommitRelationDerivationFailureDegrades(t *testing.T) {
	facts := newFakeFactStore()
	graph := &fakeGraphStore{}
	coordinator := newTestCoordinator(facts, graph, &fakeRecorder{}, &fakeRelations{err: errContrived}, 2)

	decision := models.Decision{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")}
	result := coordinator.Commit(context.Background(), "alice", []models.Decision{decision}, nil)

	require.Len(t, result.Facts, 1)
	assert.Empty(t, graph.added)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.StageGraph, result.Errors[0].Stage)
}

func TestCommitOneFailureNeverAbortsSiblings(t *testing.T) {
	facts := newFakeFactStore(activeFact("f1", "alice", "stale"))
	facts.updateErr = errContrived
	coordinator := newTestCoordinator(facts, &fakeGraphStore{}, &fakeRecorder{}, &fakeRelations{}, 2)

	decisions := []models.Decision{
		{Event: models.EventUpdate, FactID: "f1", Text: "fresh", OldContent: "stale", Embedding: vectorFor("fresh")},
		{Event: models.EventAdd, Text: "likes tea", Embedding: vectorFor("likes tea")},
	}
	result := coordinator.Commit(context.Background(), "alice", decisions, nil)

	require.Len(t, result.Facts, 1)
	assert.Equal(t, models.EventAdd, result.Facts[0].Event)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, models.StageVector, result.Errors[0].Stage)
}

func TestCommitRespectsWorkerPoolBound(t *testing.T) {
	facts := newFakeFactStore()
	facts.stall = 20 * time.Millisecond
	coordinator := newTestCoordinator(facts, &fakeGraphStore{}, &fakeRecorder{}, &fakeRelations{}, 3)

	var decisions []models.Decision
	for i := 0; i < 12; i++ {
		text := "fact " + string(rune('a'+i))
		decisions = append(decisions, models.Decision{Event: models.EventAdd, Text: text, Embedding: vectorFor(text)})
	}
	result := coordinator.Commit(context.Background(), "alice", decisions, nil)

	assert.Len(t, result.Facts, 12)
	assert.LessOrEqual(t, facts.maxInflight, 3,
		"no more decisions than the pool size may commit at once")
}

func TestCommitResultOrderFollowsDecisionOrder(t *testing.T) {
	facts := newFakeFactStore()
	facts.stall = 5 * time.Millisecond
	coordinator := newTestCoordinator(facts, &fakeGraphStore{}, &fakeRecorder{}, &fakeRelations{}, 4)

	decisions := []models.Decision{
		{Event: models.EventAdd, Text: "first", Embedding: vectorFor("first")},
		{Event: models.EventAdd, Text: "second", Embedding: vectorFor("second")},
		{Event: models.EventAdd, Text: "third", Embedding: vectorFor("third")},
	}
	result := coordinator.Commit(context.Background(), "alice", decisions, nil)

	require.Len(t, result.Facts, 3)
	assert.Equal(t, "first", result.Facts[0].Content)
	assert.Equal(t, "second", result.Facts[1].Content)
	assert.Equal(t, "third", result.Facts[2].Content)
}
