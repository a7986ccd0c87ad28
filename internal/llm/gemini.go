package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// Gemini 是一个实现了 LLM 接口的结构体，用于与 Gemini API 交互。
type Gemini struct {
	client    *genai.Client // GenAI 客户端实例。
	modelName string        // 要使用的 Gemini 模型名称。
}

// NewGemini 创建一个新的 Gemini 客户端。
//
// 参数:
//
//	ctx: 上下文，用于控制客户端的生命周期。
//	model: 要使用的 Gemini 模型名称。
//	apiKey: Gemini API 密钥。
//
// 返回值:
//
//	*Gemini: 新创建的 Gemini 客户端实例。
//	error: 如果无法创建 GenAI 客户端，则返回错误。
func NewGemini(ctx context.Context, model, apiKey string) (*Gemini, error) {
	// 使用 API 密钥创建 GenAI 客户端。
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	return &Gemini{client: client, modelName: model}, nil
}

// GenerateContent 向 Gemini API 发送请求并返回响应。
// 每次请求都构建一个独立的模型实例：系统指令和 JSON 输出约束
// 是请求级别的，不能在并发调用之间共享。
func (g *Gemini) GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	model := g.client.GenerativeModel(g.modelName)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}
	if req.JSONMode {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}

	resp, err := model.GenerateContent(ctx, toGenaiParts(req.Messages)...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate content with gemini: %w", err)
	}

	out := fromGenaiResponse(resp)
	out.Model = g.modelName
	return out, nil
}

// toGenaiParts 将对话轮次转换为 GenAI 的文本部分。
func toGenaiParts(turns []models.Turn) []genai.Part {
	parts := make([]genai.Part, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, genai.Text(fmt.Sprintf("%s: %s", t.Role, t.Content)))
	}
	return parts
}

// fromGenaiResponse 将 GenAI 响应转换为内部响应格式。
func fromGenaiResponse(resp *genai.GenerateContentResponse) *models.GenerateResponse {
	var sb strings.Builder
	if resp != nil {
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					sb.WriteString(string(text))
				}
			}
		}
	}
	return &models.GenerateResponse{Text: sb.String()}
}
