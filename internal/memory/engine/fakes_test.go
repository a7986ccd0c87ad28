package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
	"github.com/sirupsen/logrus"
)

var errContrived = errors.New("contrived failure")

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("engine_test", "", "")
}

// vectorFor derives a small deterministic vector from a text so fakes agree
// on what "the embedding of X" is without any model.
func vectorFor(text string) []float32 {
	return []float32{float32(len(text)), float32(strings.Count(text, " ")), 1}
}

type fakeExtractor struct {
	candidates []string
	err        error
	calls      int
}

func (f *fakeExtractor) ExtractFacts(ctx context.Context, turns []models.Turn) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.candidates, nil
}

// fakeClassifier answers from a script keyed by candidate text. Unscripted
// candidates default to ADD with the candidate as content.
type fakeClassifier struct {
	mu        sync.Mutex
	decisions map[string]models.Decision
	err       error
	calls     []string
}

func (f *fakeClassifier) Classify(ctx context.Context, candidate string, similar []models.ScoredFact) (*models.Decision, error) {
	f.mu.Lock()
	f.calls = append(f.calls, candidate)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if d, ok := f.decisions[candidate]; ok {
		out := d
		return &out, nil
	}
	return &models.Decision{Event: models.EventAdd, Text: candidate}, nil
}

type fakeEmbedder struct {
	mu       sync.Mutex
	err      error
	batchErr error
	failOn   string // single-text Embed fails for this exact text
	embedded []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embedded = append(f.embedded, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" && text == f.failOn {
		return nil, errContrived
	}
	return vectorFor(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn != "" {
		return nil, errContrived // force the per-text fallback path
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

// fakeFactStore keeps facts in a map and records which methods ran. Search
// returns all active facts, highest score first, ignoring the vector.
type fakeFactStore struct {
	mu      sync.Mutex
	facts   map[string]*models.Fact
	adds    []string
	updates []string
	deletes []string

	addErr    error
	updateErr error
	deleteErr error
	searchErr error
	lastTopK  int

	// inflight tracks concurrent mutating calls to assert the pool bound.
	inflight    int
	maxInflight int
	stall       time.Duration
}

func newFakeFactStore(seed ...*models.Fact) *fakeFactStore {
	s := &fakeFactStore{facts: make(map[string]*models.Fact)}
	for _, f := range seed {
		s.facts[f.ID] = f
	}
	return s
}

func (s *fakeFactStore) enter() {
	s.mu.Lock()
	s.inflight++
	if s.inflight > s.maxInflight {
		s.maxInflight = s.inflight
	}
	s.mu.Unlock()
	if s.stall > 0 {
		time.Sleep(s.stall)
	}
}

func (s *fakeFactStore) leave() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

func (s *fakeFactStore) Add(ctx context.Context, fact *models.Fact) error {
	s.enter()
	defer s.leave()
	if s.addErr != nil {
		return s.addErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *fact
	s.facts[fact.ID] = &cp
	s.adds = append(s.adds, fact.ID)
	return nil
}

func (s *fakeFactStore) Update(ctx context.Context, fact *models.Fact) error {
	s.enter()
	defer s.leave()
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.facts[fact.ID]
	if !ok {
		return errContrived
	}
	existing.Content = fact.Content
	existing.Embedding = fact.Embedding
	existing.UpdatedAt = fact.UpdatedAt
	s.updates = append(s.updates, fact.ID)
	return nil
}

func (s *fakeFactStore) Delete(ctx context.Context, ownerID, factID string) error {
	s.enter()
	defer s.leave()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.facts[factID]
	if !ok {
		return errContrived
	}
	existing.State = models.StateDeleted
	s.deletes = append(s.deletes, factID)
	return nil
}

func (s *fakeFactStore) Get(ctx context.Context, ownerID, factID string) (*models.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.facts[factID]
	if !ok {
		return nil, errContrived
	}
	cp := *f
	return &cp, nil
}

func (s *fakeFactStore) Search(ctx context.Context, ownerID string, vector []float32, topK int) ([]models.ScoredFact, error) {
	if s.searchErr != nil {
		return nil, s.searchErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastTopK = topK
	var out []models.ScoredFact
	for _, f := range s.facts {
		if f.State != models.StateActive {
			continue
		}
		cp := *f
		out = append(out, models.ScoredFact{Fact: &cp, Score: 0.9})
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

func (s *fakeFactStore) List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Fact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.Fact
	for _, f := range s.facts {
		if f.State != models.StateActive {
			continue
		}
		cp := *f
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeFactStore) mutationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.adds) + len(s.updates) + len(s.deletes)
}

type fakeGraphStore struct {
	mu        sync.Mutex
	added     []models.Relation
	removed   []models.Relation
	addErr    error
	removeErr error
	listErr   error
	wiped     bool
}

func (g *fakeGraphStore) AddRelations(ctx context.Context, ownerID string, relations []models.Relation) error {
	if g.addErr != nil {
		return g.addErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.added = append(g.added, relations...)
	return nil
}

func (g *fakeGraphStore) RemoveRelations(ctx context.Context, ownerID string, relations []models.Relation) error {
	if g.removeErr != nil {
		return g.removeErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removed = append(g.removed, relations...)
	return nil
}

func (g *fakeGraphStore) ListRelations(ctx context.Context, ownerID string) ([]models.Relation, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Relation(nil), g.added...), nil
}

func (g *fakeGraphStore) DeleteAll(ctx context.Context, ownerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.wiped = true
	g.added = nil
	return nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	err     error
}

func (r *fakeRecorder) Record(ctx context.Context, entry *models.HistoryEntry) error {
	if r.err != nil {
		return r.err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *fakeRecorder) ListByOwner(ctx context.Context, ownerID string, limit int64) ([]models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.HistoryEntry(nil), r.entries...), nil
}

func (r *fakeRecorder) ListByFact(ctx context.Context, ownerID, factID string) ([]models.HistoryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.HistoryEntry
	for _, e := range r.entries {
		if e.FactID == factID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRecorder) byFact(factID string) []models.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.HistoryEntry
	for _, e := range r.entries {
		if e.FactID == factID {
			out = append(out, e)
		}
	}
	return out
}

// fakeRelations derives one triple per text: (owner, mentions, text).
// A scripted map can override specific texts; nil entries derive nothing.
type fakeRelations struct {
	mu       sync.Mutex
	scripted map[string][]models.Relation
	err      error
	calls    []string
}

func (f *fakeRelations) DeriveRelations(ctx context.Context, ownerID, text string) ([]models.Relation, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.scripted != nil {
		if rels, ok := f.scripted[text]; ok {
			return rels, nil
		}
	}
	return []models.Relation{{OwnerID: ownerID, Source: ownerID, Relationship: "mentions", Target: text}}, nil
}

func (f *fakeRelations) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
