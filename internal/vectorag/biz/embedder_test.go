package biz

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/errors"
	"github.com/kart-io/vectorag/pkg/llm"
)

// mockEmbedProvider 确定性嵌入：向量首维为文本长度。
type mockEmbedProvider struct {
	dim        int
	batchSizes []int
	failAfter  int // 第 N 次调用开始失败，0 表示不失败
	calls      int
	shortCount bool // 返回数量少于输入
}

func (m *mockEmbedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.failAfter > 0 && m.calls >= m.failAfter {
		return nil, stderrors.New("embed backend down")
	}
	m.batchSizes = append(m.batchSizes, len(texts))

	n := len(texts)
	if m.shortCount {
		n = len(texts) - 1
	}
	out := make([][]float32, n)
	for i := range out {
		vec := make([]float32, m.dim)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

func (m *mockEmbedProvider) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	res, err := m.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (m *mockEmbedProvider) Name() string { return "mock-embed" }

var _ llm.EmbeddingProvider = (*mockEmbedProvider)(nil)

func makeChunks(n int) []*store.Chunk {
	chunks := make([]*store.Chunk, n)
	for i := range chunks {
		chunks[i] = &store.Chunk{
			ID:      fmt.Sprintf("doc-%d", i),
			Index:   i,
			Content: fmt.Sprintf("chunk content %d", i),
		}
	}
	return chunks
}

func TestEmbedderBatching(t *testing.T) {
	provider := &mockEmbedProvider{dim: 4}
	embedder := NewEmbedder(provider, &EmbedderConfig{BatchSize: 3, Dimension: 4})

	chunks := makeChunks(8)
	err := embedder.EmbedChunks(context.Background(), chunks)
	require.NoError(t, err)

	// 8 条文本按批次 3 拆为 3+3+2
	assert.Equal(t, []int{3, 3, 2}, provider.batchSizes)

	// 每个块都有向量，且顺序与输入一致
	for i, chunk := range chunks {
		require.Len(t, chunk.Embedding, 4)
		assert.Equal(t, float32(len(chunks[i].Content)), chunk.Embedding[0])
	}
}

func TestEmbedderEmptyInput(t *testing.T) {
	provider := &mockEmbedProvider{dim: 4}
	embedder := NewEmbedder(provider, &EmbedderConfig{BatchSize: 3})

	require.NoError(t, embedder.EmbedChunks(context.Background(), nil))
	assert.Zero(t, provider.calls)
}

func TestEmbedderProviderFailure(t *testing.T) {
	provider := &mockEmbedProvider{dim: 4, failAfter: 2}
	embedder := NewEmbedder(provider, &EmbedderConfig{BatchSize: 2, Dimension: 4})

	chunks := makeChunks(6)
	err := embedder.EmbedChunks(context.Background(), chunks)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrEmbeddingGeneration.Code))
}

func TestEmbedderCountMismatch(t *testing.T) {
	provider := &mockEmbedProvider{dim: 4, shortCount: true}
	embedder := NewEmbedder(provider, &EmbedderConfig{BatchSize: 10, Dimension: 4})

	err := embedder.EmbedChunks(context.Background(), makeChunks(3))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrEmbeddingGeneration.Code))
}

func TestEmbedderDimensionMismatch(t *testing.T) {
	provider := &mockEmbedProvider{dim: 4}
	embedder := NewEmbedder(provider, &EmbedderConfig{BatchSize: 10, Dimension: 8})

	err := embedder.EmbedChunks(context.Background(), makeChunks(2))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrEmbeddingGeneration.Code))
}

func TestEmbedderEmbedQuery(t *testing.T) {
	provider := &mockEmbedProvider{dim: 4}
	embedder := NewEmbedder(provider, &EmbedderConfig{BatchSize: 10, Dimension: 4})

	vec, err := embedder.EmbedQuery(context.Background(), "what is vectorag")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}
