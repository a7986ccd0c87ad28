package mcp_bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// MemoryService is the slice of the engine the bridge drives.
type MemoryService interface {
	Sync(ctx context.Context, ownerID string, turns []models.Turn, metadata map[string]interface{}) (*models.CombinedResult, error)
	Search(ctx context.Context, ownerID, query string, topK int) ([]models.ScoredFact, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Fact, error)
	DeleteAll(ctx context.Context, ownerID string) (*models.CombinedResult, error)
}

// Bridge exposes memory operations as MCP tools so that agent hosts can
// read and write memories without going through the HTTP API. Tool calls
// carry no credentials; identity comes from the configured client name and
// the MCP session id, resolved the same way as every other entry point.
type Bridge struct {
	server     *server.MCPServer
	sse        *server.SSEServer
	engine     MemoryService
	resolver   *identity.Resolver
	clientName string
	log        *logger.Logger
}

// New builds the MCP server and registers the memory tools on it.
func New(engine MemoryService, resolver *identity.Resolver, clientName string, log *logger.Logger) *Bridge {
	b := &Bridge{
		engine:     engine,
		resolver:   resolver,
		clientName: clientName,
		log:        log,
	}

	s := server.NewMCPServer("memory-service", "1.0.0")

	s.AddTool(mcp.NewTool("add_memories",
		mcp.WithDescription("Store new information about the user. Call this whenever the user shares preferences, facts about themselves, or anything worth remembering across conversations."),
		mcp.WithString("text", mcp.Required(), mcp.Description("The information to remember, in natural language.")),
		mcp.WithString("user_id", mcp.Description("Owner to store the memory under. Defaults to the owner resolved for this session.")),
	), b.handleAdd)

	s.AddTool(mcp.NewTool("search_memory",
		mcp.WithDescription("Search stored memories by meaning. Call this before answering questions about the user's preferences or past statements."),
		mcp.WithString("query", mcp.Required(), mcp.Description("What to look for, in natural language.")),
		mcp.WithNumber("top_k", mcp.Description("Maximum number of results to return.")),
		mcp.WithString("user_id", mcp.Description("Owner whose memories to search.")),
	), b.handleSearch)

	s.AddTool(mcp.NewTool("list_memories",
		mcp.WithDescription("List all stored memories for the user."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of memories to return.")),
		mcp.WithString("user_id", mcp.Description("Owner whose memories to list.")),
	), b.handleList)

	s.AddTool(mcp.NewTool("delete_all_memories",
		mcp.WithDescription("Delete every stored memory of the user. This cannot be undone; only call it on an explicit request to forget everything."),
		mcp.WithString("user_id", mcp.Description("Owner whose memories to delete.")),
	), b.handleDeleteAll)

	b.server = s
	return b
}

// ServeSSE serves the bridge over SSE on the given address. It blocks until
// the server stops.
func (b *Bridge) ServeSSE(addr string) error {
	b.sse = server.NewSSEServer(b.server)
	b.log.WithPayload(map[string]interface{}{"addr": addr}).Info("mcp bridge listening")
	return b.sse.Start(addr)
}

// ServeStdio serves the bridge on stdin/stdout for host processes that
// spawn the service directly. It blocks until the stream closes.
func (b *Bridge) ServeStdio() error {
	return server.ServeStdio(b.server)
}

// Shutdown stops the SSE listener, if one is running.
func (b *Bridge) Shutdown(ctx context.Context) error {
	if b.sse == nil {
		return nil
	}
	return b.sse.Shutdown(ctx)
}

// owner resolves the effective owner for a tool call. The explicit user_id
// argument wins; otherwise the MCP session id and the configured client name
// go through the usual resolution rules.
func (b *Bridge) owner(ctx context.Context, explicit string) string {
	token := ""
	if session := server.ClientSessionFromContext(ctx); session != nil {
		token = session.SessionID()
	}
	return b.resolver.Resolve(identity.SessionDescriptor{
		ClientName:   b.clientName,
		SessionToken: token,
		OwnerID:      explicit,
	})
}

func (b *Bridge) handleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return nil, err
	}

	ownerID := b.owner(ctx, req.GetString("user_id", ""))
	turns := []models.Turn{{Role: models.SpeakerUser, Content: text}}

	result, err := b.engine.Sync(ctx, ownerID, turns, nil)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("memory sync failed: %v", err)), nil
	}

	payload, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

// memoryHit is the wire shape search results take on the tool surface:
// flat and small, so host models can read them without digging.
type memoryHit struct {
	ID     string  `json:"id"`
	Memory string  `json:"memory"`
	Score  float32 `json:"score,omitempty"`
}

func (b *Bridge) handleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}

	ownerID := b.owner(ctx, req.GetString("user_id", ""))
	hits, err := b.engine.Search(ctx, ownerID, query, req.GetInt("top_k", 0))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("memory search failed: %v", err)), nil
	}

	out := make([]memoryHit, 0, len(hits))
	for _, hit := range hits {
		out = append(out, memoryHit{ID: hit.Fact.ID, Memory: hit.Fact.Content, Score: hit.Score})
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (b *Bridge) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID := b.owner(ctx, req.GetString("user_id", ""))

	facts, err := b.engine.List(ctx, ownerID, req.GetInt("limit", 100), 0)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("memory list failed: %v", err)), nil
	}

	out := make([]memoryHit, 0, len(facts))
	for _, fact := range facts {
		out = append(out, memoryHit{ID: fact.ID, Memory: fact.Content})
	}
	payload, err := json.Marshal(out)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (b *Bridge) handleDeleteAll(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ownerID := b.owner(ctx, req.GetString("user_id", ""))

	result, err := b.engine.DeleteAll(ctx, ownerID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("memory wipe failed: %v", err)), nil
	}

	b.log.WithPayload(map[string]interface{}{"owner_id": ownerID}).Info("wiped owner memories via mcp tool")
	return mcp.NewToolResultText(fmt.Sprintf("deleted %d memories for %s", len(result.Facts), ownerID)), nil
}
