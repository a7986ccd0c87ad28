package embedding

import (
	"fmt"

	"github.com/DrJLabs/Forgetful-sub001/internal/config"
)

// NewEmdModel 根据配置创建并返回一个新的 Embedding 模型实例。
//
// 参数:
//
//	cfg: Embedding 配置，包含提供商和各提供商的模型参数。
//
// 返回值:
//
//	Embedding: 新创建的 Embedding 模型实例。
//	error: 如果提供商不支持或模型初始化失败，则返回错误。
func NewEmdModel(cfg config.EmbeddingConfig) (Embedding, error) {
	// 根据提供商类型创建相应的 Embedding 模型实例。
	switch cfg.Provider {
	case "gemini":
		return NewGoogleModel(cfg.Gemini.APIKey, cfg.Gemini.Model)
	case "openai":
		return NewOpenAIModel(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
	case "ollama":
		return NewOllamaModel(cfg.Ollama.Model, cfg.Ollama.BaseURL)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider) // 如果提供商不支持，返回错误。
	}
}
