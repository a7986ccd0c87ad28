package mcp_bridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

func testLogger() *logger.Logger {
	logger.Init(logrus.ErrorLevel)
	return logger.New("mcp_bridge_test", "", "")
}

type fakeMemory struct {
	lastOwner  string
	lastTurns  []models.Turn
	lastQuery  string
	lastTopK   int
	lastLimit  int
	lastOffset int

	syncResult   *models.CombinedResult
	syncErr      error
	searchHits   []models.ScoredFact
	searchErr    error
	listFacts    []*models.Fact
	deleteResult *models.CombinedResult
	deleteErr    error
}

func (m *fakeMemory) Sync(_ context.Context, ownerID string, turns []models.Turn, _ map[string]interface{}) (*models.CombinedResult, error) {
	m.lastOwner = ownerID
	m.lastTurns = turns
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	if m.syncResult != nil {
		return m.syncResult, nil
	}
	return &models.CombinedResult{Facts: []models.FactChange{}}, nil
}

func (m *fakeMemory) Search(_ context.Context, ownerID, query string, topK int) ([]models.ScoredFact, error) {
	m.lastOwner = ownerID
	m.lastQuery = query
	m.lastTopK = topK
	return m.searchHits, m.searchErr
}

func (m *fakeMemory) List(_ context.Context, ownerID string, limit, offset int) ([]*models.Fact, error) {
	m.lastOwner = ownerID
	m.lastLimit = limit
	m.lastOffset = offset
	return m.listFacts, nil
}

func (m *fakeMemory) DeleteAll(_ context.Context, ownerID string) (*models.CombinedResult, error) {
	m.lastOwner = ownerID
	if m.deleteErr != nil {
		return nil, m.deleteErr
	}
	if m.deleteResult != nil {
		return m.deleteResult, nil
	}
	return &models.CombinedResult{Facts: []models.FactChange{}}, nil
}

func newTestBridge() (*Bridge, *fakeMemory) {
	log := testLogger()
	resolver := identity.NewResolver(config.IdentityConfig{
		FallbackOwner: "default_user",
		Protocols: []config.ProtocolBinding{
			{Client: "ide_plugin", DefaultOwner: "ide_user"},
		},
	}, log)
	mem := &fakeMemory{}
	return New(mem, resolver, "ide_plugin", log), mem
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = "test"
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return text.Text
}

func TestAddStoresUserTurn(t *testing.T) {
	bridge, mem := newTestBridge()
	mem.syncResult = &models.CombinedResult{
		Facts: []models.FactChange{{ID: "f1", Content: "prefers dark mode", Event: models.EventAdd}},
	}

	res, err := bridge.handleAdd(context.Background(), toolRequest(map[string]any{
		"text": "I prefer dark mode",
	}))

	require.NoError(t, err)
	assert.Equal(t, "ide_user", mem.lastOwner)
	require.Len(t, mem.lastTurns, 1)
	assert.Equal(t, models.SpeakerUser, mem.lastTurns[0].Role)
	assert.Equal(t, "I prefer dark mode", mem.lastTurns[0].Content)

	var result models.CombinedResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &result))
	require.Len(t, result.Facts, 1)
	assert.Equal(t, "f1", result.Facts[0].ID)
}

func TestAddRequiresText(t *testing.T) {
	bridge, _ := newTestBridge()

	_, err := bridge.handleAdd(context.Background(), toolRequest(map[string]any{}))

	require.Error(t, err)
}

func TestAddExplicitUserWins(t *testing.T) {
	bridge, mem := newTestBridge()

	_, err := bridge.handleAdd(context.Background(), toolRequest(map[string]any{
		"text":    "remember this",
		"user_id": "alice",
	}))

	require.NoError(t, err)
	assert.Equal(t, "alice", mem.lastOwner)
}

func TestAddSyncFailureIsToolError(t *testing.T) {
	bridge, mem := newTestBridge()
	mem.syncErr = errors.New("extraction offline")

	res, err := bridge.handleAdd(context.Background(), toolRequest(map[string]any{
		"text": "remember this",
	}))

	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "memory sync failed")
}

func TestSearchReturnsFlatHits(t *testing.T) {
	bridge, mem := newTestBridge()
	mem.searchHits = []models.ScoredFact{
		{Fact: &models.Fact{ID: "f1", Content: "prefers dark mode"}, Score: 0.91},
	}

	res, err := bridge.handleSearch(context.Background(), toolRequest(map[string]any{
		"query": "ui preferences",
		"top_k": 3,
	}))

	require.NoError(t, err)
	assert.Equal(t, "ui preferences", mem.lastQuery)
	assert.Equal(t, 3, mem.lastTopK)

	var hits []struct {
		ID     string  `json:"id"`
		Memory string  `json:"memory"`
		Score  float32 `json:"score"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "f1", hits[0].ID)
	assert.Equal(t, "prefers dark mode", hits[0].Memory)
	assert.InDelta(t, 0.91, hits[0].Score, 0.001)
}

func TestSearchRequiresQuery(t *testing.T) {
	bridge, _ := newTestBridge()

	_, err := bridge.handleSearch(context.Background(), toolRequest(map[string]any{}))

	require.Error(t, err)
}

func TestListDefaultsLimit(t *testing.T) {
	bridge, mem := newTestBridge()
	mem.listFacts = []*models.Fact{{ID: "f1", Content: "prefers dark mode"}}

	res, err := bridge.handleList(context.Background(), toolRequest(map[string]any{}))

	require.NoError(t, err)
	assert.Equal(t, 100, mem.lastLimit)
	assert.Zero(t, mem.lastOffset)

	var hits []struct {
		ID     string `json:"id"`
		Memory string `json:"memory"`
	}
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &hits))
	require.Len(t, hits, 1)
}

func TestDeleteAllSummarizes(t *testing.T) {
	bridge, mem := newTestBridge()
	mem.deleteResult = &models.CombinedResult{
		Facts: []models.FactChange{
			{ID: "f1", Event: models.EventDelete},
			{ID: "f2", Event: models.EventDelete},
		},
	}

	res, err := bridge.handleDeleteAll(context.Background(), toolRequest(map[string]any{}))

	require.NoError(t, err)
	text := resultText(t, res)
	assert.Contains(t, text, "deleted 2 memories")
	assert.Contains(t, text, "ide_user")
}
