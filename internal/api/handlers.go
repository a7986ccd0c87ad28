package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/DrJLabs/Forgetful-sub001/internal/identity"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/engine"
	"github.com/DrJLabs/Forgetful-sub001/internal/memory/store"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/logger"
)

// MemoryService 定义了 API 层需要的引擎操作子集。
type MemoryService interface {
	Sync(ctx context.Context, ownerID string, turns []models.Turn, metadata map[string]interface{}) (*models.CombinedResult, error)
	Search(ctx context.Context, ownerID, query string, topK int) ([]models.ScoredFact, error)
	List(ctx context.Context, ownerID string, limit, offset int) ([]*models.Fact, error)
	Get(ctx context.Context, ownerID, factID string) (*models.Fact, error)
	History(ctx context.Context, ownerID string, limit int64) ([]models.HistoryEntry, error)
	DeleteAll(ctx context.Context, ownerID string) (*models.CombinedResult, error)
}

// AppRegistry 定义了应用注册与认证操作。
type AppRegistry interface {
	Register(name, secret, defaultOwner string, metadata map[string]interface{}) (*models.App, error)
	Authenticate(name, secret string) (*models.App, error)
}

// HealthCheck 检查一个后端存储的连通性。
type HealthCheck func(ctx context.Context) error

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	engine   MemoryService
	resolver *identity.Resolver
	registry AppRegistry
	tokens   *identity.TokenService
	checks   map[string]HealthCheck
	log      *logger.Logger
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(engine MemoryService, resolver *identity.Resolver, registry AppRegistry, tokens *identity.TokenService, checks map[string]HealthCheck, log *logger.Logger) *Handler {
	return &Handler{
		engine:   engine,
		resolver: resolver,
		registry: registry,
		tokens:   tokens,
		checks:   checks,
		log:      log,
	}
}

// session 从已认证的客户端名、请求头与显式字段组装会话描述符并解析归属者。
// 处理函数自身从不凭空生成归属者 id。
func (h *Handler) session(c *gin.Context, userID, sessionID string) string {
	clientName := ""
	if name, ok := c.Get(clientNameKey); ok {
		clientName = name.(string)
	}
	if sessionID == "" {
		sessionID = c.GetHeader("X-Session-Token")
	}
	return h.resolver.Resolve(identity.SessionDescriptor{
		ClientName:   clientName,
		SessionToken: sessionID,
		OwnerID:      userID,
	})
}

// --- Memory Handlers ---

// CreateMemoriesRequest 定义了创建记忆请求的 JSON 结构。
type CreateMemoriesRequest struct {
	Messages  []models.Turn          `json:"messages" binding:"required,min=1"`
	UserID    string                 `json:"user_id"`
	SessionID string                 `json:"session_id"`
	Metadata  map[string]interface{} `json:"metadata"`
}

// CreateMemories 处理一批对话回合，经由完整的抽取-调和-提交管线。
func (h *Handler) CreateMemories(c *gin.Context) {
	var req CreateMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := h.session(c, req.UserID, req.SessionID)
	result, err := h.engine.Sync(c.Request.Context(), ownerID, req.Messages, req.Metadata)
	if err != nil {
		if errors.Is(err, engine.ErrWhollyUnreachable) {
			// 批次级失败：任何存储都未被写入
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// SearchMemoriesRequest 定义了检索请求的 JSON 结构。
type SearchMemoriesRequest struct {
	Query     string `json:"query" binding:"required"`
	TopK      int    `json:"top_k"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}

// SearchMemories 按语义相似度检索归属者的活跃记忆。
func (h *Handler) SearchMemories(c *gin.Context) {
	var req SearchMemoriesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ownerID := h.session(c, req.UserID, req.SessionID)
	hits, err := h.engine.Search(c.Request.Context(), ownerID, req.Query, req.TopK)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if hits == nil {
		hits = []models.ScoredFact{}
	}

	c.JSON(http.StatusOK, gin.H{"results": hits})
}

// ListMemories 分页列出归属者的活跃记忆。
func (h *Handler) ListMemories(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 limit 参数"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 offset 参数"})
		return
	}

	ownerID := h.session(c, c.Query("user_id"), c.Query("session_id"))
	facts, err := h.engine.List(c.Request.Context(), ownerID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if facts == nil {
		facts = []*models.Fact{}
	}

	c.JSON(http.StatusOK, gin.H{"memories": facts, "count": len(facts)})
}

// GetMemory 按 id 返回单条记忆，无论其状态。
func (h *Handler) GetMemory(c *gin.Context) {
	factID := c.Param("id")
	ownerID := h.session(c, c.Query("user_id"), c.Query("session_id"))

	fact, err := h.engine.Get(c.Request.Context(), ownerID, factID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "记忆不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, fact)
}

// GetHistory 返回归属者的记忆状态变迁日志，最新的在前。
func (h *Handler) GetHistory(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的 limit 参数"})
		return
	}

	ownerID := h.session(c, c.Query("user_id"), c.Query("session_id"))
	entries, err := h.engine.History(c.Request.Context(), ownerID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}

	c.JSON(http.StatusOK, gin.H{"history": entries})
}

// DeleteAllMemories 清空归属者的全部记忆（软删除）及其关系图。
func (h *Handler) DeleteAllMemories(c *gin.Context) {
	ownerID := h.session(c, c.Query("user_id"), c.Query("session_id"))

	result, err := h.engine.DeleteAll(c.Request.Context(), ownerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// --- App Handlers ---

// RegisterAppRequest 定义了应用注册请求的 JSON 结构。
type RegisterAppRequest struct {
	Name         string                 `json:"name" binding:"required"`
	Secret       string                 `json:"secret" binding:"required,min=8"`
	DefaultOwner string                 `json:"default_owner" binding:"required"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// RegisterApp 注册一个新的接入应用。
func (h *Handler) RegisterApp(c *gin.Context) {
	var req RegisterAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.registry.Register(req.Name, req.Secret, req.DefaultOwner, req.Metadata)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrAppExists):
			c.JSON(http.StatusConflict, gin.H{"error": "应用名已被注册"})
		case errors.Is(err, identity.ErrMissingRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	// 新注册的应用立即参与身份解析
	h.resolver.RegisterProtocol(app.Name, app.DefaultOwner)

	c.JSON(http.StatusCreated, gin.H{
		"id":            app.ID,
		"name":          app.Name,
		"default_owner": app.DefaultOwner,
	})
}

// LoginAppRequest 定义了应用登录请求的 JSON 结构。
type LoginAppRequest struct {
	Name   string `json:"name" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

// LoginApp 验证应用凭证并签发 JWT。
func (h *Handler) LoginApp(c *gin.Context) {
	var req LoginAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.registry.Authenticate(req.Name, req.Secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "应用不存在或凭证错误"})
		return
	}

	token, err := h.tokens.Issue(app.Name)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// --- Health ---

// Healthz 逐个检查后端存储的连通性。
func (h *Handler) Healthz(c *gin.Context) {
	stores := gin.H{}
	healthy := true
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			stores[name] = err.Error()
			healthy = false
		} else {
			stores[name] = "ok"
		}
	}

	status := http.StatusOK
	overall := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "stores": stores})
}
