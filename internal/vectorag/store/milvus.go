package store

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/milvus-io/milvus/client/v2/entity"

	"github.com/kart-io/vectorag/pkg/component/milvus"
	"github.com/kart-io/vectorag/pkg/errors"
)

// MilvusStore 实现基于 Milvus 的向量存储。
type MilvusStore struct {
	client *milvus.Client
}

// NewMilvusStore 创建 Milvus 存储实例。
func NewMilvusStore(client *milvus.Client) *MilvusStore {
	return &MilvusStore{client: client}
}

// EnsureCollection 确保 Milvus 集合和向量索引就绪。
func (s *MilvusStore) EnsureCollection(ctx context.Context, config *CollectionConfig) error {
	schema := &milvus.CollectionSchema{
		Name:        config.Name,
		Description: config.Description,
		Dimension:   config.Dimension,
		Metric:      config.Metric,
		MetaFields: []milvus.MetaField{
			{Name: "document_name", DataType: entity.FieldTypeVarChar, MaxLen: 255},
			{Name: "chunk_index", DataType: entity.FieldTypeInt64},
			{Name: "content", DataType: entity.FieldTypeVarChar, MaxLen: 65535},
			{Name: "source", DataType: entity.FieldTypeVarChar, MaxLen: 512},
			{Name: "original_length", DataType: entity.FieldTypeInt64},
		},
	}
	if err := s.client.EnsureCollection(ctx, schema); err != nil {
		if stderrors.Is(err, milvus.ErrSchemaMismatch) {
			return errors.ErrIndexSchemaConflict.WithCause(err)
		}
		return err
	}
	return nil
}

// Upsert 批量写入文档块，ID 相同的块被覆盖。
func (s *MilvusStore) Upsert(ctx context.Context, collection string, chunks []*Chunk) (int64, error) {
	if len(chunks) == 0 {
		return 0, nil
	}

	ids := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	metadata := map[string][]any{
		"document_name":   make([]any, len(chunks)),
		"chunk_index":     make([]any, len(chunks)),
		"content":         make([]any, len(chunks)),
		"source":          make([]any, len(chunks)),
		"original_length": make([]any, len(chunks)),
	}

	for i, chunk := range chunks {
		ids[i] = chunk.ID
		embeddings[i] = chunk.Embedding
		metadata["document_name"][i] = chunk.DocumentName
		metadata["chunk_index"][i] = int64(chunk.Index)
		metadata["content"][i] = chunk.Content
		metadata["source"][i] = chunk.Source
		metadata["original_length"][i] = int64(chunk.OriginalLength)
	}

	data := &milvus.UpsertData{
		IDs:        ids,
		Embeddings: embeddings,
		Metadata:   metadata,
	}

	count, err := s.client.Upsert(ctx, collection, data)
	if err != nil {
		return 0, fmt.Errorf("failed to upsert into milvus: %w", err)
	}

	return count, nil
}

// Search 执行向量相似度搜索。
func (s *MilvusStore) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error) {
	outputFields := []string{"document_name", "chunk_index", "content", "source", "original_length"}
	results, err := s.client.Search(ctx, collection, embedding, topK, outputFields)
	if err != nil {
		return nil, fmt.Errorf("failed to search milvus: %w", err)
	}

	searchResults := make([]*SearchResult, len(results))
	for i, r := range results {
		sr := &SearchResult{
			ID:    r.ID,
			Score: r.Score,
		}
		if name, ok := r.Metadata["document_name"].(string); ok {
			sr.DocumentName = name
		}
		if idx, ok := r.Metadata["chunk_index"].(int64); ok {
			sr.ChunkIndex = int(idx)
		}
		if content, ok := r.Metadata["content"].(string); ok {
			sr.Content = content
		}
		if source, ok := r.Metadata["source"].(string); ok {
			sr.Source = source
		}
		if length, ok := r.Metadata["original_length"].(int64); ok {
			sr.OriginalLength = int(length)
		}
		searchResults[i] = sr
	}

	return searchResults, nil
}

// GetStats 获取集合统计信息。
func (s *MilvusStore) GetStats(ctx context.Context, collection string) (int64, error) {
	return s.client.GetCollectionStats(ctx, collection)
}

// ListCollections 列出数据库中的所有集合名称。
func (s *MilvusStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list milvus collections: %w", err)
	}
	return names, nil
}

// Health 检查 Milvus 可用性。
func (s *MilvusStore) Health(ctx context.Context) error {
	return s.client.Health(ctx)
}

// Close 关闭 Milvus 连接。
func (s *MilvusStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}

// 确保 MilvusStore 实现了 VectorStore 接口。
var _ VectorStore = (*MilvusStore)(nil)
