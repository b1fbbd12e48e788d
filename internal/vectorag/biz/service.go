package biz

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kart-io/logger"

	"github.com/kart-io/vectorag/internal/model"
	"github.com/kart-io/vectorag/internal/pkg/textutil"
	"github.com/kart-io/vectorag/internal/vectorag/metrics"
	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/errors"
	"github.com/kart-io/vectorag/pkg/pool"
)

// maxTopK 单次检索允许的最大返回数量。
const maxTopK = 100

// Service 定义检索管线服务接口。
type Service interface {
	// Ingest 摄取单个文档：切分、嵌入、写入向量存储。source 标识文档来源，可为空。
	Ingest(ctx context.Context, docName, content, source string) (*model.IngestionResult, error)
	// IngestDirectory 并发摄取目录下的所有文本文档。
	IngestDirectory(ctx context.Context, dir string) (*model.DirectoryIngestionResult, error)
	// Search 执行语义检索，可选合成答案。
	Search(ctx context.Context, query string, topK int, withAnswer bool) (*model.SearchResponse, error)
	// GetStats 获取知识库统计信息。
	GetStats(ctx context.Context) (map[string]any, error)
	// ListCollections 列出向量存储中的所有集合。
	ListCollections(ctx context.Context) ([]string, error)
	// Health 检查底层依赖可用性。
	Health(ctx context.Context) error
}

// ServiceConfig 检索服务配置。
type ServiceConfig struct {
	ChunkerConfig *ChunkerConfig
	// Collection 集合名称。
	Collection string
	// EmbeddingDim 嵌入向量维度。
	EmbeddingDim int
	// Metric 相似度度量类型。
	Metric string
	// TopK 默认返回结果数量。
	TopK int
}

// PipelineService 组合 Chunker、Embedder 和 Synthesizer 提供完整的检索服务。
type PipelineService struct {
	chunker     *Chunker
	embedder    *Embedder
	synthesizer *Synthesizer
	cache       *QueryCache
	store       store.VectorStore
	config      *ServiceConfig
	metrics     *metrics.PipelineMetrics

	collectionMu    sync.Mutex
	collectionReady bool
}

// NewPipelineService 创建检索服务实例。
func NewPipelineService(
	vectorStore store.VectorStore,
	embedder *Embedder,
	synthesizer *Synthesizer,
	cache *QueryCache,
	config *ServiceConfig,
) *PipelineService {
	return &PipelineService{
		chunker:     NewChunker(config.ChunkerConfig),
		embedder:    embedder,
		synthesizer: synthesizer,
		cache:       cache,
		store:       vectorStore,
		config:      config,
		metrics:     metrics.GetPipelineMetrics(),
	}
}

// ensureCollection 确保集合就绪，成功后进程生命周期内不再重复执行。
// 失败不缓存，下一次调用重新尝试，瞬时故障恢复后请求即可自愈。
func (s *PipelineService) ensureCollection(ctx context.Context) error {
	s.collectionMu.Lock()
	defer s.collectionMu.Unlock()

	if s.collectionReady {
		return nil
	}

	if err := s.store.EnsureCollection(ctx, &store.CollectionConfig{
		Name:        s.config.Collection,
		Description: "vectorag document chunks",
		Dimension:   s.config.EmbeddingDim,
		Metric:      s.config.Metric,
	}); err != nil {
		return err
	}

	s.collectionReady = true
	return nil
}

// Ingest 摄取单个文档。
// 同一文档重复摄取时，块 ID 稳定不变，存储层覆盖旧数据。
func (s *PipelineService) Ingest(ctx context.Context, docName, content, source string) (*model.IngestionResult, error) {
	if err := s.config.ChunkerConfig.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(docName) == "" {
		return nil, errors.ErrInvalidInput.WithMessage("document name is required")
	}
	if strings.TrimSpace(content) == "" {
		return nil, errors.ErrInvalidInput.WithMessage("document content is empty")
	}
	if !utf8.ValidString(content) {
		return nil, errors.ErrDocumentNotUTF8
	}

	if err := s.ensureCollection(ctx); err != nil {
		s.metrics.RecordIngestion(0, 0, err)
		return nil, err
	}

	chunks := s.chunker.Split(docName, source, content)
	if len(chunks) == 0 {
		return &model.IngestionResult{DocumentName: docName}, nil
	}
	logger.Infow("Document chunked",
		"document", docName,
		"chunks", len(chunks),
		"content_length", utf8.RuneCountInString(content),
	)

	embedStart := time.Now()
	err := s.embedder.EmbedChunks(ctx, chunks)
	s.metrics.RecordEmbedding(time.Since(embedStart), err)
	if err != nil {
		s.metrics.RecordIngestion(0, 0, err)
		return nil, err
	}

	if _, err := s.store.Upsert(ctx, s.config.Collection, chunks); err != nil {
		s.metrics.RecordIngestion(0, 0, err)
		return nil, err
	}

	s.metrics.RecordIngestion(1, len(chunks), nil)
	logger.Infow("Document ingested", "document", docName, "chunks", len(chunks))

	return &model.IngestionResult{
		DocumentName:       docName,
		ChunksAdded:        len(chunks),
		TotalContentLength: utf8.RuneCountInString(content),
	}, nil
}

// ingestExtensions 目录摄取时识别的文件扩展名。
var ingestExtensions = map[string]bool{
	".txt": true,
	".md":  true,
	".mdx": true,
}

// IngestDirectory 并发摄取目录下的所有文本文档。
// 单个文件失败不会中断整体流程，失败信息汇总在结果中。
func (s *PipelineService) IngestDirectory(ctx context.Context, dir string) (*model.DirectoryIngestionResult, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.ErrInvalidInput.WithMessage("directory is required")
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, errors.ErrInvalidInput.WithMessagef("not a directory: %s", dir)
	}

	var files []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if ingestExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	sort.Strings(files)

	logger.Infow("Ingesting directory", "dir", dir, "files", len(files))

	result := &model.DirectoryIngestionResult{
		Directory: dir,
	}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, file := range files {
		file := file
		wg.Add(1)
		task := func() {
			defer wg.Done()

			data, readErr := os.ReadFile(file)
			if readErr != nil {
				mu.Lock()
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file, readErr))
				mu.Unlock()
				return
			}
			if !textutil.IsValidUTF8(data) {
				mu.Lock()
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: not valid UTF-8", file))
				mu.Unlock()
				return
			}

			ingestResult, ingestErr := s.Ingest(ctx, filepath.Base(file), string(data), file)
			mu.Lock()
			defer mu.Unlock()
			if ingestErr != nil {
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file, ingestErr))
				return
			}
			result.FilesProcessed++
			result.TotalChunks += ingestResult.ChunksAdded
			result.Results = append(result.Results, *ingestResult)
		}

		// 提交到摄取池，池不可用时内部降级为 goroutine
		_ = pool.SubmitToType(pool.IngestPool, task)
	}

	wg.Wait()

	// 按文档名排序，保证结果顺序稳定
	sort.Slice(result.Results, func(i, j int) bool {
		return result.Results[i].DocumentName < result.Results[j].DocumentName
	})

	return result, nil
}

// Search 执行语义检索。
func (s *PipelineService) Search(ctx context.Context, query string, topK int, withAnswer bool) (*model.SearchResponse, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.ErrInvalidInput.WithMessage("query is required")
	}
	if topK == 0 {
		topK = s.config.TopK
	}
	if topK < 0 || topK > maxTopK {
		return nil, errors.ErrInvalidInput.WithMessagef("top_k must be between 1 and %d", maxTopK)
	}

	var searchErr error
	defer func() {
		if searchErr != nil {
			s.metrics.RecordSearch(false, searchErr)
		}
	}()

	totalStart := time.Now()

	// 1. 尝试从缓存获取
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, query, topK, withAnswer)
		if err == nil && cached != nil {
			s.metrics.RecordSearch(true, nil)
			return cached, nil
		}
		// 缓存未命中或出错，继续正常流程
	}

	if err := s.ensureCollection(ctx); err != nil {
		searchErr = err
		return nil, err
	}

	// 2. 嵌入查询
	embedStart := time.Now()
	embedding, err := s.embedder.EmbedQuery(ctx, query)
	s.metrics.RecordEmbedding(time.Since(embedStart), err)
	if err != nil {
		searchErr = err
		return nil, err
	}

	// 3. 向量检索
	retrievalStart := time.Now()
	results, err := s.store.Search(ctx, s.config.Collection, embedding, topK)
	retrievalDuration := time.Since(retrievalStart)
	s.metrics.RecordRetrieval(retrievalDuration, err)
	if err != nil {
		searchErr = err
		return nil, err
	}

	// 余弦度量下将分数归一化到 [0, 1]
	if s.config.Metric == "cosine" {
		for _, r := range results {
			r.Score = float32(textutil.NormalizeCosineSimilarity(float64(r.Score)))
		}
	}

	sources := make([]model.ChunkSource, len(results))
	for i, r := range results {
		sources[i] = model.ChunkSource{
			ID:           r.ID,
			DocumentName: r.DocumentName,
			ChunkIndex:   r.ChunkIndex,
			Content:      r.Content,
			Source:       r.Source,
			Score:        r.Score,
		}
	}

	response := &model.SearchResponse{
		Query:           query,
		Results:         sources,
		RetrievalTimeMs: float64(retrievalDuration.Microseconds()) / 1000.0,
		ResultCount:     len(sources),
	}

	// 4. 可选的答案合成，失败或未配置时降级为纯检索结果
	switch {
	case withAnswer && (s.synthesizer == nil || !s.synthesizer.Enabled()):
		logger.Warnw("Answer synthesis requested but no chat provider is configured, returning retrieval results only",
			"query", query,
		)
	case withAnswer:
		synthStart := time.Now()
		resp, synthErr := s.synthesizer.GenerateAnswer(ctx, query, results)

		promptTokens, completionTokens := 0, 0
		if resp != nil && resp.TokenUsage != nil {
			promptTokens = resp.TokenUsage.PromptTokens
			completionTokens = resp.TokenUsage.CompletionTokens
		}
		s.metrics.RecordSynthesis(time.Since(synthStart), promptTokens, completionTokens, synthErr)

		if synthErr != nil {
			logger.Warnw("Answer synthesis failed, returning retrieval results only",
				"error", errors.ErrAnswerSynthesis.WithCause(synthErr).Error(),
				"query", query,
			)
		} else if resp != nil {
			response.GeneratedAnswer = resp.Content
			if resp.TokenUsage != nil {
				response.TokenUsage = &model.TokenUsageDTO{
					PromptTokens:     resp.TokenUsage.PromptTokens,
					CompletionTokens: resp.TokenUsage.CompletionTokens,
					TotalTokens:      resp.TokenUsage.TotalTokens,
				}
			}
		}
	}

	response.TotalTimeMs = float64(time.Since(totalStart).Microseconds()) / 1000.0

	// 5. 写入缓存，失败不影响正常返回
	if s.cache != nil {
		_ = s.cache.Set(ctx, query, topK, withAnswer, response)
	}

	s.metrics.RecordSearch(false, nil)
	return response, nil
}

// GetStats 获取知识库统计信息。
func (s *PipelineService) GetStats(ctx context.Context) (map[string]any, error) {
	count, err := s.store.GetStats(ctx, s.config.Collection)
	if err != nil {
		return nil, err
	}

	stats := map[string]any{
		"collection":         s.config.Collection,
		"chunk_count":        count,
		"embedding_dim":      s.config.EmbeddingDim,
		"metric":             s.config.Metric,
		"embedding_provider": s.embedder.Provider().Name(),
		"synthesis_enabled":  s.synthesizer != nil && s.synthesizer.Enabled(),
	}

	if s.cache != nil {
		cacheStats, err := s.cache.GetStats(ctx)
		if err == nil {
			stats["cache"] = cacheStats
		}
	}

	stats["metrics"] = s.metrics.Stats()

	return stats, nil
}

// ListCollections 列出向量存储中的所有集合。
func (s *PipelineService) ListCollections(ctx context.Context) ([]string, error) {
	return s.store.ListCollections(ctx)
}

// Health 检查向量存储可用性。
func (s *PipelineService) Health(ctx context.Context) error {
	return s.store.Health(ctx)
}

// 确保 PipelineService 实现了 Service 接口。
var _ Service = (*PipelineService)(nil)
