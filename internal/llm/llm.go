package llm

import (
	"context"
	"fmt"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
	"github.com/DrJLabs/Forgetful-sub001/internal/models"
)

// LLM 定义了所有大型语言模型客户端必须实现的通用接口。
// 抽取与决策分类只需要"文本进、文本出"，所以接口保持最小。
type LLM interface {
	GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error)
}

// NewClient 是一个工厂函数，根据提供的配置创建并返回一个实现了 LLM 接口的客户端。
func NewClient(cfg config.LLMConfig) (LLM, error) {
	switch cfg.Provider {
	case "gemini":
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("no api key configured for gemini provider")
		}
		return NewGemini(context.Background(), cfg.Gemini.Model, cfg.Gemini.APIKey)
	case "openai":
		if cfg.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("no api key configured for openai provider")
		}
		return NewOpenAI(cfg.OpenAI.Model, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
	case "ollama":
		return NewOllama(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
