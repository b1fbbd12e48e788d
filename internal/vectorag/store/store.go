package store

import (
	"context"
)

// Chunk 表示文档块。
type Chunk struct {
	// ID 文档块 ID，由调用方生成，内容相同则 ID 相同。
	ID string
	// DocumentName 文档名称。
	DocumentName string
	// Index 块在文档中的序号。
	Index int
	// Content 文档内容。
	Content string
	// StartOffset 块在原文中的起始字符位置。
	StartOffset int
	// EndOffset 块在原文中的结束字符位置（不含）。
	EndOffset int
	// Source 文档来源，可为空。
	Source string
	// OriginalLength 原文档的字符总数。
	OriginalLength int
	// Embedding 嵌入向量。
	Embedding []float32
}

// SearchResult 表示检索结果。
type SearchResult struct {
	// ID 文档块 ID。
	ID string
	// DocumentName 文档名称。
	DocumentName string
	// ChunkIndex 块在文档中的序号。
	ChunkIndex int
	// Content 文档内容。
	Content string
	// Source 文档来源，可为空。
	Source string
	// OriginalLength 原文档的字符总数。
	OriginalLength int
	// Score 相似度分数，取值依赖度量类型。
	Score float32
}

// CollectionConfig 集合配置。
type CollectionConfig struct {
	// Name 集合名称。
	Name string
	// Description 集合描述。
	Description string
	// Dimension 向量维度。
	Dimension int
	// Metric 相似度度量类型（cosine/l2/ip）。
	Metric string
}

// VectorStore 定义向量存储接口。
type VectorStore interface {
	// EnsureCollection 确保集合存在，维度不匹配时返回错误。
	EnsureCollection(ctx context.Context, config *CollectionConfig) error

	// Upsert 批量写入文档块，ID 相同的块被覆盖。
	Upsert(ctx context.Context, collection string, chunks []*Chunk) (int64, error)

	// Search 向量相似度搜索。
	Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error)

	// GetStats 获取集合统计信息。
	GetStats(ctx context.Context, collection string) (int64, error)

	// ListCollections 列出所有集合名称。
	ListCollections(ctx context.Context) ([]string, error)

	// Health 检查存储可用性。
	Health(ctx context.Context) error

	// Close 关闭连接。
	Close(ctx context.Context) error
}
