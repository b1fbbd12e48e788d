package store

import (
	"context"
	"time"

	"github.com/kart-io/logger"

	"github.com/kart-io/vectorag/pkg/errors"
)

// RetryStore 为底层向量存储增加重试能力。
//
// 存储操作失败时按指数退避重试，重试耗尽后返回
// ErrVectorStoreUnavailable 并携带最后一次错误。Schema 冲突
// 和输入错误是确定性失败，直接返回不做重试。
type RetryStore struct {
	inner      VectorStore
	maxRetries int
	backoff    time.Duration
}

// NewRetryStore 创建带重试的存储装饰器。
func NewRetryStore(inner VectorStore, maxRetries int, backoff time.Duration) *RetryStore {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return &RetryStore{
		inner:      inner,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// do 执行操作并在失败时重试，退避间隔逐次翻倍。
func (s *RetryStore) do(ctx context.Context, op string, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff << (attempt - 1)):
			}
			logger.Warnw("Retrying vector store operation",
				"op", op,
				"attempt", attempt,
				"max_retries", s.maxRetries,
				"error", lastErr,
			)
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return err
		}
		lastErr = err
	}

	return errors.ErrVectorStoreUnavailable.WithCause(lastErr)
}

// isRetryable 判断错误是否值得重试。确定性错误重试也不会成功。
func isRetryable(err error) bool {
	if errors.IsCode(err, errors.ErrIndexSchemaConflict.Code) {
		return false
	}
	if errors.IsCode(err, errors.ErrInvalidInput.Code) {
		return false
	}
	return true
}

// EnsureCollection 确保集合存在。
func (s *RetryStore) EnsureCollection(ctx context.Context, config *CollectionConfig) error {
	return s.do(ctx, "ensure_collection", func() error {
		return s.inner.EnsureCollection(ctx, config)
	})
}

// Upsert 批量写入文档块。
func (s *RetryStore) Upsert(ctx context.Context, collection string, chunks []*Chunk) (int64, error) {
	var count int64
	err := s.do(ctx, "upsert", func() error {
		var innerErr error
		count, innerErr = s.inner.Upsert(ctx, collection, chunks)
		return innerErr
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// Search 向量相似度搜索。
func (s *RetryStore) Search(ctx context.Context, collection string, embedding []float32, topK int) ([]*SearchResult, error) {
	var results []*SearchResult
	err := s.do(ctx, "search", func() error {
		var innerErr error
		results, innerErr = s.inner.Search(ctx, collection, embedding, topK)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetStats 获取集合统计信息。
func (s *RetryStore) GetStats(ctx context.Context, collection string) (int64, error) {
	var count int64
	err := s.do(ctx, "get_stats", func() error {
		var innerErr error
		count, innerErr = s.inner.GetStats(ctx, collection)
		return innerErr
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ListCollections 列出所有集合名称。
func (s *RetryStore) ListCollections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.do(ctx, "list_collections", func() error {
		var innerErr error
		names, innerErr = s.inner.ListCollections(ctx)
		return innerErr
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// Health 检查存储可用性，不做重试。
func (s *RetryStore) Health(ctx context.Context) error {
	return s.inner.Health(ctx)
}

// Close 关闭底层存储。
func (s *RetryStore) Close(ctx context.Context) error {
	return s.inner.Close(ctx)
}

// 确保 RetryStore 实现了 VectorStore 接口。
var _ VectorStore = (*RetryStore)(nil)
