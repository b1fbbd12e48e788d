package biz

import (
	"context"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/errors"
)

func newTestService(t *testing.T, chatFail bool, withChat bool) (*PipelineService, *store.MemoryStore) {
	t.Helper()

	memStore := store.NewMemoryStore()
	embedder := NewEmbedder(&mockEmbedProvider{dim: 4}, &EmbedderConfig{BatchSize: 2, Dimension: 4})

	var synthesizer *Synthesizer
	if withChat {
		synthesizer = NewSynthesizer(&mockChatProvider{fail: chatFail}, &SynthesizerConfig{
			SystemPrompt: "Context:\n{{context}}\nQuestion: {{question}}",
		})
	} else {
		synthesizer = NewSynthesizer(nil, &SynthesizerConfig{SystemPrompt: "{{context}}"})
	}

	svc := NewPipelineService(memStore, embedder, synthesizer, nil, &ServiceConfig{
		ChunkerConfig: &ChunkerConfig{ChunkSize: 20, ChunkOverlap: 5},
		Collection:    "test_chunks",
		EmbeddingDim:  4,
		Metric:        "cosine",
		TopK:          5,
	})
	return svc, memStore
}

func TestServiceIngest(t *testing.T) {
	svc, memStore := newTestService(t, false, false)
	ctx := context.Background()

	content := strings.Repeat("some document text. ", 5)
	result, err := svc.Ingest(ctx, "doc.txt", content, "")
	require.NoError(t, err)

	assert.Equal(t, "doc.txt", result.DocumentName)
	assert.True(t, result.ChunksAdded > 1)
	assert.Equal(t, len([]rune(content)), result.TotalContentLength)

	count, err := memStore.GetStats(ctx, "test_chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(result.ChunksAdded), count)
}

func TestServiceIngestIdempotent(t *testing.T) {
	svc, memStore := newTestService(t, false, false)
	ctx := context.Background()

	content := strings.Repeat("repeated ingest text. ", 5)
	first, err := svc.Ingest(ctx, "doc.txt", content, "")
	require.NoError(t, err)

	// 重复摄取同一文档，块被覆盖而非追加
	second, err := svc.Ingest(ctx, "doc.txt", content, "")
	require.NoError(t, err)
	assert.Equal(t, first.ChunksAdded, second.ChunksAdded)

	count, err := memStore.GetStats(ctx, "test_chunks")
	require.NoError(t, err)
	assert.Equal(t, int64(first.ChunksAdded), count)
}

func TestServiceIngestValidation(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "", "content", "")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))

	_, err = svc.Ingest(ctx, "doc.txt", "   ", "")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))

	_, err = svc.Ingest(ctx, "doc.txt", string([]byte{0xff, 0xfe}), "")
	assert.True(t, errors.IsCode(err, errors.ErrDocumentNotUTF8.Code))
}

// ensureFlakyStore 首次 EnsureCollection 失败，之后委托给内存存储。
type ensureFlakyStore struct {
	*store.MemoryStore
	ensureCalls int
	failOnce    bool
}

func (s *ensureFlakyStore) EnsureCollection(ctx context.Context, config *store.CollectionConfig) error {
	s.ensureCalls++
	if s.failOnce {
		s.failOnce = false
		return stderrors.New("connection refused")
	}
	return s.MemoryStore.EnsureCollection(ctx, config)
}

func TestServiceEnsureCollectionRetriedAfterFailure(t *testing.T) {
	flaky := &ensureFlakyStore{MemoryStore: store.NewMemoryStore(), failOnce: true}
	embedder := NewEmbedder(&mockEmbedProvider{dim: 4}, &EmbedderConfig{BatchSize: 2, Dimension: 4})
	synthesizer := NewSynthesizer(nil, &SynthesizerConfig{SystemPrompt: "{{context}}"})
	svc := NewPipelineService(flaky, embedder, synthesizer, nil, &ServiceConfig{
		ChunkerConfig: &ChunkerConfig{ChunkSize: 20, ChunkOverlap: 5},
		Collection:    "test_chunks",
		EmbeddingDim:  4,
		Metric:        "cosine",
		TopK:          5,
	})
	ctx := context.Background()
	content := strings.Repeat("recoverable text. ", 5)

	// 首次摄取因存储瞬时故障失败
	_, err := svc.Ingest(ctx, "doc.txt", content, "")
	require.Error(t, err)

	// 故障恢复后，下一次调用重新尝试建立集合并成功
	result, err := svc.Ingest(ctx, "doc.txt", content, "")
	require.NoError(t, err)
	assert.True(t, result.ChunksAdded > 0)
	assert.Equal(t, 2, flaky.ensureCalls)

	// 集合就绪后不再重复执行
	_, err = svc.Ingest(ctx, "doc.txt", content, "")
	require.NoError(t, err)
	assert.Equal(t, 2, flaky.ensureCalls)
}

func TestServiceListCollections(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("list content. ", 5), "")
	require.NoError(t, err)

	names, err := svc.ListCollections(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test_chunks"}, names)
}

func TestServiceIngestInvalidChunkerConfig(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	svc.config.ChunkerConfig = &ChunkerConfig{ChunkSize: 10, ChunkOverlap: 10}

	_, err := svc.Ingest(context.Background(), "doc.txt", "some content", "")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidConfiguration.Code))
}

func TestServiceSearch(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("searchable text body. ", 5), "")
	require.NoError(t, err)

	resp, err := svc.Search(ctx, "searchable", 3, false)
	require.NoError(t, err)

	assert.Equal(t, "searchable", resp.Query)
	assert.True(t, resp.ResultCount > 0)
	assert.Len(t, resp.Results, resp.ResultCount)
	assert.Empty(t, resp.GeneratedAnswer)
	assert.True(t, resp.TotalTimeMs >= resp.RetrievalTimeMs)

	// 余弦度量下分数归一化到 [0, 1]
	for _, r := range resp.Results {
		assert.GreaterOrEqual(t, r.Score, float32(0))
		assert.LessOrEqual(t, r.Score, float32(1))
	}
}

func TestServiceSearchValidation(t *testing.T) {
	svc, _ := newTestService(t, false, false)

	_, err := svc.Search(context.Background(), "  ", 3, false)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))

	_, err = svc.Search(context.Background(), "query", -1, false)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))

	_, err = svc.Search(context.Background(), "query", maxTopK+1, false)
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))
}

func TestServiceSearchSourceMetadata(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("sourced content. ", 5), "docs/doc.txt")
	require.NoError(t, err)

	resp, err := svc.Search(ctx, "sourced", 3, false)
	require.NoError(t, err)
	require.True(t, resp.ResultCount > 0)

	// 摄取时的来源随检索结果一并返回
	for _, r := range resp.Results {
		assert.Equal(t, "docs/doc.txt", r.Source)
	}
}

func TestServiceSearchWithAnswer(t *testing.T) {
	svc, _ := newTestService(t, false, true)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("answerable content. ", 5), "")
	require.NoError(t, err)

	resp, err := svc.Search(ctx, "answerable", 3, true)
	require.NoError(t, err)
	assert.Equal(t, "synthesized answer", resp.GeneratedAnswer)
}

func TestServiceSearchAnswerDegrade(t *testing.T) {
	svc, _ := newTestService(t, true, true)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("degraded content. ", 5), "")
	require.NoError(t, err)

	// 合成失败时返回纯检索结果，不报错
	resp, err := svc.Search(ctx, "degraded", 3, true)
	require.NoError(t, err)
	assert.Empty(t, resp.GeneratedAnswer)
	assert.True(t, resp.ResultCount > 0)
}

func TestServiceSearchWithoutChatProvider(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	_, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("retrieval only. ", 5), "")
	require.NoError(t, err)

	// chat provider 未配置时 with_answer 请求降级为纯检索
	resp, err := svc.Search(ctx, "retrieval", 3, true)
	require.NoError(t, err)
	assert.Empty(t, resp.GeneratedAnswer)
}

func TestServiceGetStats(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	result, err := svc.Ingest(ctx, "doc.txt", strings.Repeat("stats content. ", 5), "")
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)

	assert.Equal(t, "test_chunks", stats["collection"])
	assert.Equal(t, int64(result.ChunksAdded), stats["chunk_count"])
	assert.Equal(t, "mock-embed", stats["embedding_provider"])
	assert.Equal(t, false, stats["synthesis_enabled"])
	assert.Contains(t, stats, "metrics")
}

func TestServiceIngestDirectory(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	ctx := context.Background()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte(strings.Repeat("file a content. ", 5)), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte(strings.Repeat("file b content. ", 5)), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.bin"), []byte{0x00, 0x01}, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.txt"), []byte{0xff, 0xfe, 0xfd}, 0o600))

	result, err := svc.IngestDirectory(ctx, dir)
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesProcessed)
	assert.Equal(t, 1, result.FilesFailed)
	assert.True(t, result.TotalChunks > 0)
	require.Len(t, result.Results, 2)
	// 结果按文档名排序
	assert.Equal(t, "a.txt", result.Results[0].DocumentName)
	assert.Equal(t, "b.md", result.Results[1].DocumentName)
}

func TestServiceIngestDirectoryInvalid(t *testing.T) {
	svc, _ := newTestService(t, false, false)

	_, err := svc.IngestDirectory(context.Background(), "/no/such/dir")
	assert.True(t, errors.IsCode(err, errors.ErrInvalidInput.Code))
}

func TestServiceHealth(t *testing.T) {
	svc, _ := newTestService(t, false, false)
	assert.NoError(t, svc.Health(context.Background()))
}
