package embedding

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/clearlane/htsnav/internal/domain"
)

// DefaultMaxAPIBatchSize caps one API request's batch.
const DefaultMaxAPIBatchSize = 256

// provider is the embedder being decorated.
type provider interface {
	domain.Embedder
	domain.BatchEmbedder
}

// InstrumentedEmbedder wraps an embedder with provider-rate throttling and
// logging. Transport metrics (requests, duration, tokens) are recorded in
// transport/openai; this layer owns pacing and request-shape logging only.
type InstrumentedEmbedder struct {
	inner        provider
	providerName string
	model        string
	limiter      *rate.Limiter
	logger       *zap.Logger
}

// NewInstrumentedEmbedder wraps an embedder. limiter may be nil to disable
// throttling.
func NewInstrumentedEmbedder(
	inner provider, providerName, model string,
	limiter *rate.Limiter, logger *zap.Logger,
) *InstrumentedEmbedder {
	return &InstrumentedEmbedder{
		inner:        inner,
		providerName: providerName,
		model:        model,
		limiter:      limiter,
		logger:       logger,
	}
}

// Embed waits for rate-limit headroom, then delegates to the inner embedder.
func (p *InstrumentedEmbedder) Embed(
	ctx context.Context, text string,
) (domain.EmbeddingResult, error) {
	if err := p.wait(ctx); err != nil {
		return domain.EmbeddingResult{}, err
	}

	start := time.Now()

	result, err := p.inner.Embed(ctx, text)

	duration := time.Since(start)

	if err != nil {
		p.logger.Error("Embedding request failed",
			zap.String("provider", p.providerName),
			zap.String("model", p.model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}

	p.logger.Debug("Embedding request completed",
		zap.String("provider", p.providerName),
		zap.String("model", p.model),
		zap.Duration("duration", duration),
		zap.Int("dimensions", len(result.Embedding)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

// BatchEmbed splits the input into API-sized sub-batches and delegates each
// to the inner embedder, pacing every provider call through the limiter.
func (p *InstrumentedEmbedder) BatchEmbed(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	if len(texts) == 0 {
		return domain.BatchEmbeddingResult{}, nil
	}

	start := time.Now()

	result, err := p.embedChunked(ctx, texts)
	if err != nil {
		return domain.BatchEmbeddingResult{}, err
	}

	p.logger.Debug("Batch embedding completed",
		zap.String("provider", p.providerName),
		zap.String("model", p.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("batch_size", len(texts)),
		zap.Int("prompt_tokens", result.PromptTokens),
		zap.Int("total_tokens", result.TotalTokens),
	)

	return result, nil
}

func (p *InstrumentedEmbedder) embedChunked(
	ctx context.Context, texts []string,
) (domain.BatchEmbeddingResult, error) {
	var allEmbeddings [][]float32
	var totalPrompt, totalTokens int

	for offset := 0; offset < len(texts); offset += DefaultMaxAPIBatchSize {
		if err := p.wait(ctx); err != nil {
			return domain.BatchEmbeddingResult{}, err
		}

		end := offset + DefaultMaxAPIBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		chunk, err := p.inner.BatchEmbed(ctx, texts[offset:end])
		if err != nil {
			p.logger.Error("Batch embedding chunk failed",
				zap.String("provider", p.providerName),
				zap.String("model", p.model),
				zap.Int("offset", offset),
				zap.Int("chunk_size", end-offset),
				zap.Error(err),
			)
			return domain.BatchEmbeddingResult{}, fmt.Errorf("batch embed chunk at %d: %w", offset, err)
		}

		allEmbeddings = append(allEmbeddings, chunk.Embeddings...)
		totalPrompt += chunk.PromptTokens
		totalTokens += chunk.TotalTokens
	}

	return domain.BatchEmbeddingResult{
		Embeddings:   allEmbeddings,
		PromptTokens: totalPrompt,
		TotalTokens:  totalTokens,
	}, nil
}

func (p *InstrumentedEmbedder) wait(ctx context.Context) error {
	if p.limiter == nil {
		return nil
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("embedding rate limit wait: %w", err)
	}
	return nil
}
