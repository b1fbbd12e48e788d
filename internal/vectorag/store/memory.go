package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/kart-io/vectorag/internal/pkg/textutil"
	"github.com/kart-io/vectorag/pkg/errors"
)

// MemoryStore 是纯内存的向量存储实现，采用暴力遍历检索。
// 用于本地开发和测试，不适合大规模数据。
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	config *CollectionConfig
	chunks map[string]*Chunk
}

// NewMemoryStore 创建内存存储实例。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		collections: make(map[string]*memoryCollection),
	}
}

// EnsureCollection 确保集合存在，维度或度量冲突时返回错误。
func (s *MemoryStore) EnsureCollection(_ context.Context, config *CollectionConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.collections[config.Name]; ok {
		if existing.config.Dimension != config.Dimension {
			return errors.ErrIndexSchemaConflict.WithMessagef(
				"collection %s has dimension %d, requested %d",
				config.Name, existing.config.Dimension, config.Dimension)
		}
		if !strings.EqualFold(existing.config.Metric, config.Metric) {
			return errors.ErrIndexSchemaConflict.WithMessagef(
				"collection %s has metric %s, requested %s",
				config.Name, existing.config.Metric, config.Metric)
		}
		return nil
	}

	s.collections[config.Name] = &memoryCollection{
		config: config,
		chunks: make(map[string]*Chunk),
	}
	return nil
}

// Upsert 批量写入文档块，ID 相同的块被覆盖。
func (s *MemoryStore) Upsert(_ context.Context, collection string, chunks []*Chunk) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %s not found", collection)
	}

	for _, chunk := range chunks {
		if len(chunk.Embedding) != coll.config.Dimension {
			return 0, fmt.Errorf("embedding dimension %d does not match collection dimension %d",
				len(chunk.Embedding), coll.config.Dimension)
		}
		c := *chunk
		coll.chunks[chunk.ID] = &c
	}
	return int64(len(chunks)), nil
}

// Search 暴力遍历所有块，按余弦相似度降序返回前 topK 个。
func (s *MemoryStore) Search(_ context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}

	results := make([]*SearchResult, 0, len(coll.chunks))
	for _, chunk := range coll.chunks {
		score := textutil.CosineSimilarity(embedding, chunk.Embedding)
		results = append(results, &SearchResult{
			ID:             chunk.ID,
			DocumentName:   chunk.DocumentName,
			ChunkIndex:     chunk.Index,
			Content:        chunk.Content,
			Source:         chunk.Source,
			OriginalLength: chunk.OriginalLength,
			Score:          float32(score),
		})
	}

	// 分数相同时按 ID 排序，保证结果顺序稳定
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})

	if topK > 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// GetStats 返回集合中的块数量。
func (s *MemoryStore) GetStats(_ context.Context, collection string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	coll, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %s not found", collection)
	}
	return int64(len(coll.chunks)), nil
}

// ListCollections 返回所有集合名称，按字典序排列。
func (s *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Health 内存存储始终可用。
func (s *MemoryStore) Health(_ context.Context) error {
	return nil
}

// Close 清空所有集合。
func (s *MemoryStore) Close(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = make(map[string]*memoryCollection)
	return nil
}

// 确保 MemoryStore 实现了 VectorStore 接口。
var _ VectorStore = (*MemoryStore)(nil)
