package biz

import (
	"context"
	"fmt"

	"github.com/kart-io/logger"

	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/errors"
	"github.com/kart-io/vectorag/pkg/llm"
)

// EmbedderConfig 嵌入器配置。
type EmbedderConfig struct {
	// BatchSize 单次嵌入请求的最大文本数。
	BatchSize int
	// Dimension 期望的向量维度，0 表示不校验。
	Dimension int
}

// Embedder 负责批量生成嵌入向量。
//
// 输入文本按 BatchSize 分批提交，各批次串行执行，
// 返回的向量顺序与输入文本顺序一一对应。
type Embedder struct {
	provider llm.EmbeddingProvider
	config   *EmbedderConfig
}

// NewEmbedder 创建嵌入器实例。
func NewEmbedder(provider llm.EmbeddingProvider, config *EmbedderConfig) *Embedder {
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	return &Embedder{
		provider: provider,
		config:   config,
	}
}

// EmbedChunks 为块序列填充嵌入向量。
// 任一批次失败则整体失败，已嵌入的部分不会写入存储。
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []*store.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	embeddings, err := e.embedBatched(ctx, texts)
	if err != nil {
		return err
	}

	for i, chunk := range chunks {
		chunk.Embedding = embeddings[i]
	}
	return nil
}

// EmbedQuery 生成查询文本的嵌入向量。
func (e *Embedder) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embedding, err := e.provider.EmbedSingle(ctx, query)
	if err != nil {
		return nil, errors.ErrEmbeddingGeneration.WithCause(err)
	}
	if err := e.checkDimension(embedding); err != nil {
		return nil, err
	}
	return embedding, nil
}

// embedBatched 分批嵌入并校验结果数量与维度。
func (e *Embedder) embedBatched(ctx context.Context, texts []string) ([][]float32, error) {
	result := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		embeddings, err := e.provider.Embed(ctx, batch)
		if err != nil {
			return nil, errors.ErrEmbeddingGeneration.WithCause(err)
		}
		if len(embeddings) != len(batch) {
			return nil, errors.ErrEmbeddingGeneration.WithCause(
				fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(embeddings)))
		}
		for _, embedding := range embeddings {
			if err := e.checkDimension(embedding); err != nil {
				return nil, err
			}
		}

		result = append(result, embeddings...)
		logger.Debugw("Embedded batch",
			"batch_start", start,
			"batch_size", len(batch),
			"total", len(texts),
		)
	}

	return result, nil
}

func (e *Embedder) checkDimension(embedding []float32) error {
	if e.config.Dimension > 0 && len(embedding) != e.config.Dimension {
		return errors.ErrEmbeddingGeneration.WithCause(
			fmt.Errorf("embedding dimension mismatch: expected %d, got %d", e.config.Dimension, len(embedding)))
	}
	return nil
}

// Provider 返回底层嵌入提供商。
func (e *Embedder) Provider() llm.EmbeddingProvider {
	return e.provider
}
