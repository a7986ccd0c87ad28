package llm

import (
	"context"

	"github.com/DrJLabs/Forgetful-sub001/internal/models"
	"github.com/DrJLabs/Forgetful-sub001/pkg/circuitbreaker"
)

// guarded 用熔断器包装一个 LLM 客户端。
// 远端模型服务连续失败时熔断器打开，后续调用快速失败而不再等待超时，
// 冷却期过后放行试探请求。对调用方而言它与普通 LLM 客户端无异。
type guarded struct {
	inner LLM
	cb    circuitbreaker.CircuitBreaker
}

// WithBreaker 返回一个受熔断器保护的 LLM 客户端。
func WithBreaker(inner LLM, cb circuitbreaker.CircuitBreaker) LLM {
	return &guarded{inner: inner, cb: cb}
}

// GenerateContent 通过熔断器转发请求，熔断打开时返回 circuitbreaker.ErrCircuitOpen。
func (g *guarded) GenerateContent(ctx context.Context, req *models.GenerateRequest) (*models.GenerateResponse, error) {
	res, err := g.cb.Execute(func() (interface{}, error) {
		return g.inner.GenerateContent(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return res.(*models.GenerateResponse), nil
}
