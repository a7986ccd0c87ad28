package store

import (
	"testing"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	milvusdb "github.com/DrJLabs/Forgetful-sub001/internal/database/milvus"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

func TestFactColumnsRoundTrip(t *testing.T) {
	created := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	fact := &models.Fact{
		ID:      "f-1",
		OwnerID: "alice",
		Content: "likes cheese pizza",
		Metadata: map[string]interface{}{
			"source": "chat",
		},
		State:     models.StateActive,
		CreatedAt: created,
		UpdatedAt: created,
		Embedding: []float32{0.1, 0.2, 0.3},
	}

	cols, err := factColumns(fact, 3)
	require.NoError(t, err)

	rs := client.ResultSet(cols)
	facts, err := resultSetFacts(rs, true)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	got := facts[0]
	assert.Equal(t, fact.ID, got.ID)
	assert.Equal(t, fact.OwnerID, got.OwnerID)
	assert.Equal(t, fact.Content, got.Content)
	assert.Equal(t, "chat", got.Metadata["source"])
	assert.Equal(t, models.StateActive, got.State)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Equal(t, fact.Embedding, got.Embedding)
}

func TestFactColumnsEmptyMetadata(t *testing.T) {
	fact := &models.Fact{
		ID:        "f-2",
		OwnerID:   "alice",
		Content:   "plays chess",
		State:     models.StateActive,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Embedding: []float32{1, 2},
	}

	cols, err := factColumns(fact, 2)
	require.NoError(t, err)

	facts, err := resultSetFacts(client.ResultSet(cols), false)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Nil(t, facts[0].Metadata)
	assert.Empty(t, facts[0].Embedding)
}

func TestFactColumnsRejectsUnserializableMetadata(t *testing.T) {
	fact := &models.Fact{
		ID:      "f-3",
		OwnerID: "alice",
		Content: "x",
		Metadata: map[string]interface{}{
			"bad": make(chan int),
		},
		Embedding: []float32{1},
	}

	_, err := factColumns(fact, 1)
	require.Error(t, err)
}

func TestResultSetFactsEmpty(t *testing.T) {
	facts, err := resultSetFacts(client.ResultSet(nil), false)
	require.NoError(t, err)
	assert.Empty(t, facts)
}

func TestNormalizeEntity(t *testing.T) {
	assert.Equal(t, "cricket", normalizeEntity(" Cricket "))
	assert.Equal(t, "new york", normalizeEntity("New York"))
}

func TestDataSetFactsCountsRows(t *testing.T) {
	now := time.Now().UTC()
	cols := []entity.Column{
		entity.NewColumnVarChar(milvusdb.FieldID, []string{"a", "b"}),
		entity.NewColumnVarChar(milvusdb.FieldOwnerID, []string{"o", "o"}),
		entity.NewColumnVarChar(milvusdb.FieldContent, []string{"one", "two"}),
		entity.NewColumnVarChar(milvusdb.FieldMetadata, []string{"{}", "{}"}),
		entity.NewColumnVarChar(milvusdb.FieldState, []string{"active", "active"}),
		entity.NewColumnInt64(milvusdb.FieldCreatedAt, []int64{now.UnixMilli(), now.UnixMilli()}),
		entity.NewColumnInt64(milvusdb.FieldUpdatedAt, []int64{now.UnixMilli(), now.UnixMilli()}),
	}

	facts, err := dataSetFacts(client.ResultSet(cols), 2)
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "two", facts[1].Content)
}
