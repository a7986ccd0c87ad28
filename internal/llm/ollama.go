package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	olla "github.com/ollama/ollama/api"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// Ollama 是一个用于 Ollama API 的 LLM 客户端。
type Ollama struct {
	client *olla.Client // Ollama 客户端实例。
	model  string       // 要使用的模型名称。
}

// NewOllama 创建一个新的 Ollama 客户端。
//
// 参数:
//
//	model: 要使用的模型名称。
//	baseURL: Ollama 服务的基准 URL。如果为空，则默认为 "http://localhost:11434"。
//
// 返回值:
//
//	*Ollama: 新创建的 Ollama 客户端实例。
//	error: 如果基准 URL 无效，则返回错误。
func NewOllama(model, baseURL string) (*Ollama, error) {
	// 如果 baseURL 为空，则使用默认地址。
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	// 将字符串 URL 转换为 *url.URL。
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	// 创建一个带有超时设置的 HTTP 客户端。
	hc := &http.Client{
		Timeout: 120 * time.Second,
	}

	// 创建 Ollama 客户端。
	client := olla.NewClient(parsedURL, hc)

	return &Ollama{client: client, model: model}, nil
}

// GenerateContent 使用 Ollama API 生成内容。
func (o *Ollama) GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	// 将对话轮次拼接为 Ollama 提示格式。
	prompt := o.toOllamaPrompt(req)

	ollaReq := &olla.GenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		System: req.System,
		Stream: &[]bool{false}[0], // 设置为非流式传输。
	}
	if req.JSONMode {
		ollaReq.Format = json.RawMessage(`"json"`)
	}

	var result *olla.GenerateResponse // 用于存储生成结果。

	// 调用 Ollama 客户端的 Generate 方法生成内容。
	err := o.client.Generate(ctx, ollaReq, func(resp olla.GenerateResponse) error {
		result = &resp // 存储响应。
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to generate content with ollama: %w", err)
	}
	if result == nil {
		return nil, fmt.Errorf("ollama returned no response")
	}

	return &models.GenerateResponse{
		Text:  result.Response,
		Model: result.Model,
	}, nil
}

// toOllamaPrompt 将内部请求的对话轮次拼接成一个提示字符串。
func (o *Ollama) toOllamaPrompt(req *models.GenerateRequest) string {
	var sb strings.Builder
	for _, turn := range req.Messages {
		sb.WriteString(string(turn.Role))
		sb.WriteString(": ")
		sb.WriteString(turn.Content)
		sb.WriteString("\n")
	}
	return sb.String()
}
