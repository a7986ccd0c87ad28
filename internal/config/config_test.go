package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
app:
  name: memory_service
  version: 0.1.0
  environment: development
logger:
  level: debug
llm:
  provider: ollama
  ollama:
    baseURL: http://localhost:11434
    model: qwen3:8b
embedding:
  provider: ollama
  dimension: 768
  ollama:
    baseURL: http://localhost:11434
    model: nomic-embed-text
databases:
  milvus:
    address: localhost:19530
    collection: facts_test
    dimension: 384
  mongodb:
    address: localhost:27017
    database: memory
memory:
  similarityTopK: 5
  workerPoolSize: 2
  timeouts:
    vectorStore: 3s
identity:
  fallbackOwner: shared_inbox
  bindingTTL: 30m
  protocols:
    - client: openmemory-mcp
      defaultOwner: workstation
api:
  address: ":9090"
  jwtSecret: secret
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "memory_service", cfg.App.Name)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "facts_test", cfg.Databases.Milvus.Collection)
	assert.Equal(t, 384, cfg.Databases.Milvus.Dimension)
	assert.Equal(t, 5, cfg.Memory.SimilarityTopK)
	assert.Equal(t, 2, cfg.Memory.WorkerPoolSize)
	assert.Equal(t, "shared_inbox", cfg.Identity.FallbackOwner)
	assert.Equal(t, ":9090", cfg.API.Address)
	require.Len(t, cfg.Identity.Protocols, 1)
	assert.Equal(t, "workstation", cfg.Identity.Protocols[0].DefaultOwner)
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
app:
  name: memory_service
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, 8, cfg.Memory.SimilarityTopK)
	assert.Equal(t, 4, cfg.Memory.WorkerPoolSize)
	assert.Equal(t, "default_user", cfg.Identity.FallbackOwner)
	assert.Equal(t, "memory_facts", cfg.Databases.Milvus.Collection)
	assert.Equal(t, "HNSW", cfg.Databases.Milvus.Index.IndexType)
	assert.Equal(t, "COSINE", cfg.Databases.Milvus.Index.MetricType)
	assert.Equal(t, "fact_history", cfg.Databases.MongoDB.HistoryCollection)
	assert.Equal(t, ":8080", cfg.API.Address)
}

func TestLoadConfigRejectsConflictingBindings(t *testing.T) {
	path := writeConfig(t, `
identity:
  protocols:
    - client: openmemory-mcp
      defaultOwner: alice
    - client: openmemory-mcp
      defaultOwner: bob
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openmemory-mcp")
}

func TestLoadConfigRejectsBadBindingTTL(t *testing.T) {
	path := writeConfig(t, `
identity:
  bindingTTL: forever
`)

	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 3*time.Second, ParseDurationOr("3s", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("not-a-duration", time.Minute))
}
