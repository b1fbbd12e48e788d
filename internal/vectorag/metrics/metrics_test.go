package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *PipelineMetrics {
	m := GetPipelineMetrics()
	m.Reset()
	return m
}

func TestGetPipelineMetrics(t *testing.T) {
	// 获取全局单例
	m1 := GetPipelineMetrics()
	m2 := GetPipelineMetrics()

	// 应该返回同一个实例
	assert.Equal(t, m1, m2, "应该返回同一个单例实例")
}

func TestRecordSearch(t *testing.T) {
	m := newTestMetrics()

	// 测试成功搜索（缓存命中）
	m.RecordSearch(true, nil)
	assert.Equal(t, uint64(1), m.searchesTotal)
	assert.Equal(t, uint64(1), m.searchCacheHits)
	assert.Equal(t, uint64(0), m.searchCacheMisses)

	// 测试成功搜索（缓存未命中）
	m.RecordSearch(false, nil)
	assert.Equal(t, uint64(2), m.searchesTotal)
	assert.Equal(t, uint64(1), m.searchCacheMisses)

	// 测试失败搜索
	m.RecordSearch(false, assert.AnError)
	assert.Equal(t, uint64(3), m.searchesTotal)
	assert.Equal(t, uint64(1), m.searchErrors)
}

func TestRecordRetrieval(t *testing.T) {
	m := newTestMetrics()

	m.RecordRetrieval(100*time.Millisecond, nil)
	assert.Equal(t, uint64(1), m.retrievalTotal)
	assert.InDelta(t, 0.1, m.retrievalDuration, 0.01)

	m.RecordRetrieval(50*time.Millisecond, assert.AnError)
	assert.Equal(t, uint64(2), m.retrievalTotal)
	assert.Equal(t, uint64(1), m.retrievalErrors)
	// 失败时不累计耗时
	assert.InDelta(t, 0.1, m.retrievalDuration, 0.01)
}

func TestRecordSynthesis(t *testing.T) {
	m := newTestMetrics()

	m.RecordSynthesis(500*time.Millisecond, 100, 50, nil)
	assert.Equal(t, uint64(1), m.synthesisTotal)
	assert.InDelta(t, 0.5, m.synthesisDuration, 0.01)
	assert.Equal(t, uint64(100), m.tokensPrompt)
	assert.Equal(t, uint64(50), m.tokensCompletion)

	m.RecordSynthesis(time.Millisecond, 0, 0, assert.AnError)
	assert.Equal(t, uint64(2), m.synthesisTotal)
	assert.Equal(t, uint64(1), m.synthesisErrors)
}

func TestRecordIngestion(t *testing.T) {
	m := newTestMetrics()

	m.RecordIngestion(1, 12, nil)
	m.RecordIngestion(2, 30, nil)
	assert.Equal(t, uint64(3), m.documentsIngested)
	assert.Equal(t, uint64(42), m.chunksIngested)

	m.RecordIngestion(1, 5, assert.AnError)
	assert.Equal(t, uint64(3), m.documentsIngested)
	assert.Equal(t, uint64(1), m.ingestErrors)
}

func TestExport(t *testing.T) {
	m := newTestMetrics()
	m.RecordSearch(true, nil)
	m.RecordIngestion(1, 3, nil)

	out := m.Export("vectorag", "pipeline")

	assert.Contains(t, out, "vectorag_pipeline_searches_total 1")
	assert.Contains(t, out, "vectorag_pipeline_chunks_ingested_total 3")
	assert.Contains(t, out, "# TYPE vectorag_pipeline_cache_hit_rate gauge")
	// 每个指标都有 HELP 注释
	assert.True(t, strings.Contains(out, "# HELP vectorag_pipeline_documents_ingested_total"))
}

func TestStats(t *testing.T) {
	m := newTestMetrics()
	m.RecordSearch(true, nil)
	m.RecordSearch(false, nil)

	stats := m.Stats()
	searches := stats["searches"].(map[string]interface{})
	assert.Equal(t, uint64(2), searches["total"])
	assert.InDelta(t, 0.5, searches["cache_hit_rate"].(float64), 0.0001)
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordSearch(j%2 == 0, nil)
				m.RecordRetrieval(time.Millisecond, nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(1000), m.searchesTotal)
	assert.Equal(t, uint64(1000), m.retrievalTotal)
}
