package biz

import (
	"fmt"

	"github.com/kart-io/vectorag/internal/pkg/textutil"
	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/errors"
)

// ChunkerConfig 切分器配置。
type ChunkerConfig struct {
	// ChunkSize 每个块的最大 Unicode 字符数。
	ChunkSize int
	// ChunkOverlap 相邻块之间的重叠字符数。
	ChunkOverlap int
}

// Validate 校验切分配置，窗口与重叠必须为正且重叠小于窗口。
func (c *ChunkerConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return errors.ErrInvalidConfiguration.WithMessagef("chunk size must be positive, got %d", c.ChunkSize)
	}
	if c.ChunkOverlap <= 0 {
		return errors.ErrInvalidConfiguration.WithMessagef("chunk overlap must be positive, got %d", c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return errors.ErrInvalidConfiguration.WithMessagef(
			"chunk overlap %d must be smaller than chunk size %d", c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Chunker 负责文档切分。
//
// 采用固定窗口滑动切分：窗口大小为 ChunkSize，每次前进
// ChunkSize-ChunkOverlap 个字符，窗口触达文本末尾即停止，
// 末尾不会产生只含重叠部分的碎片块。
type Chunker struct {
	config *ChunkerConfig
}

// NewChunker 创建切分器实例。
func NewChunker(config *ChunkerConfig) *Chunker {
	return &Chunker{config: config}
}

// Split 将文档内容切分为块序列。
// 块 ID 由文档名哈希与块序号拼接而成，同一文档重复摄取时
// 各块 ID 保持稳定，存储层按 ID 覆盖写入。
// 偏移量按 Unicode 字符计数，与切分窗口一致。
func (c *Chunker) Split(docName, source, content string) []*store.Chunk {
	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	size := c.config.ChunkSize
	overlap := c.config.ChunkOverlap
	docHash := textutil.HashString(docName)

	var chunks []*store.Chunk
	for i, index := 0, 0; i < len(runes); index++ {
		end := i + size
		if end > len(runes) {
			end = len(runes)
		}

		chunks = append(chunks, &store.Chunk{
			ID:             fmt.Sprintf("%s-%d", docHash, index),
			DocumentName:   docName,
			Index:          index,
			Content:        string(runes[i:end]),
			StartOffset:    i,
			EndOffset:      end,
			Source:         source,
			OriginalLength: len(runes),
		})

		if end >= len(runes) {
			break
		}
		i += size - overlap
	}

	return chunks
}
