package model

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimited wraps an ObjectGenerator with a token-bucket limiter so a
// brain run's LLM calls respect a host-configured requests-per-second
// budget, built on golang.org/x/time/rate.
type RateLimited struct {
	Inner   ObjectGenerator
	Limiter *rate.Limiter
}

// NewRateLimited builds a RateLimited generator allowing rps requests per
// second with the given burst.
func NewRateLimited(inner ObjectGenerator, rps float64, burst int) *RateLimited {
	return &RateLimited{Inner: inner, Limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (r *RateLimited) GenerateText(ctx context.Context, req GenerateTextRequest) (GenerateTextResponse, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return GenerateTextResponse{}, err
	}
	return r.Inner.GenerateText(ctx, req)
}

func (r *RateLimited) GenerateObject(ctx context.Context, req GenerateObjectRequest) (GenerateObjectResponse, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return GenerateObjectResponse{}, err
	}
	return r.Inner.GenerateObject(ctx, req)
}

func (r *RateLimited) StreamText(ctx context.Context, req GenerateTextRequest) (<-chan StreamChunk, error) {
	if err := r.Limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Inner.StreamText(ctx, req)
}
