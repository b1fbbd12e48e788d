// Package metrics 提供检索服务的业务指标收集。
package metrics

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// PipelineMetrics 检索管线业务指标。
type PipelineMetrics struct {
	// 搜索指标
	searchesTotal      uint64 // 总搜索次数
	searchCacheHits    uint64 // 缓存命中次数
	searchCacheMisses  uint64 // 缓存未命中次数
	searchErrors       uint64 // 搜索错误次数

	// 检索指标
	retrievalTotal    uint64  // 总检索次数
	retrievalDuration float64 // 检索总耗时（秒）
	retrievalErrors   uint64  // 检索错误次数

	// 嵌入指标
	embeddingCallsTotal uint64  // 嵌入调用次数
	embeddingDuration   float64 // 嵌入总耗时（秒）
	embeddingErrors     uint64  // 嵌入错误次数

	// 答案合成指标
	synthesisTotal    uint64  // 合成调用次数
	synthesisDuration float64 // 合成总耗时（秒）
	synthesisErrors   uint64  // 合成失败次数（已降级）
	tokensPrompt      uint64  // Prompt tokens 总数
	tokensCompletion  uint64  // Completion tokens 总数

	// 摄取指标
	documentsIngested uint64 // 已摄取文档数
	chunksIngested    uint64 // 已摄取分块数
	ingestErrors      uint64 // 摄取错误次数

	startTime  time.Time
	durationMu sync.Mutex
}

// globalMetrics 全局指标实例。
var (
	globalMetrics *PipelineMetrics
	metricsOnce   sync.Once
)

// GetPipelineMetrics 获取全局指标实例。
func GetPipelineMetrics() *PipelineMetrics {
	metricsOnce.Do(func() {
		globalMetrics = &PipelineMetrics{
			startTime: time.Now(),
		}
	})
	return globalMetrics
}

// RecordSearch 记录搜索请求。
func (m *PipelineMetrics) RecordSearch(cacheHit bool, err error) {
	atomic.AddUint64(&m.searchesTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.searchErrors, 1)
		return
	}
	if cacheHit {
		atomic.AddUint64(&m.searchCacheHits, 1)
	} else {
		atomic.AddUint64(&m.searchCacheMisses, 1)
	}
}

// RecordRetrieval 记录向量检索操作。
func (m *PipelineMetrics) RecordRetrieval(duration time.Duration, err error) {
	atomic.AddUint64(&m.retrievalTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.retrievalErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.retrievalDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordEmbedding 记录嵌入调用。
func (m *PipelineMetrics) RecordEmbedding(duration time.Duration, err error) {
	atomic.AddUint64(&m.embeddingCallsTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.embeddingErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.embeddingDuration += duration.Seconds()
	m.durationMu.Unlock()
}

// RecordSynthesis 记录答案合成调用。
func (m *PipelineMetrics) RecordSynthesis(duration time.Duration, promptTokens, completionTokens int, err error) {
	atomic.AddUint64(&m.synthesisTotal, 1)
	if err != nil {
		atomic.AddUint64(&m.synthesisErrors, 1)
		return
	}

	m.durationMu.Lock()
	m.synthesisDuration += duration.Seconds()
	m.durationMu.Unlock()

	if promptTokens > 0 {
		atomic.AddUint64(&m.tokensPrompt, uint64(promptTokens))
	}
	if completionTokens > 0 {
		atomic.AddUint64(&m.tokensCompletion, uint64(completionTokens))
	}
}

// RecordIngestion 记录摄取操作。
func (m *PipelineMetrics) RecordIngestion(documents, chunks int, err error) {
	if err != nil {
		atomic.AddUint64(&m.ingestErrors, 1)
		return
	}
	atomic.AddUint64(&m.documentsIngested, uint64(documents))
	atomic.AddUint64(&m.chunksIngested, uint64(chunks))
}

// Export 导出 Prometheus 格式指标。
func (m *PipelineMetrics) Export(namespace, subsystem string) string {
	var sb strings.Builder
	prefix := namespace
	if subsystem != "" {
		prefix = prefix + "_" + subsystem
	}

	counter := func(name, help string, value uint64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %d\n\n", prefix, name, value))
	}
	gauge := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s gauge\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.4f\n\n", prefix, name, value))
	}
	durationCounter := func(name, help string, value float64) {
		sb.WriteString(fmt.Sprintf("# HELP %s_%s %s\n", prefix, name, help))
		sb.WriteString(fmt.Sprintf("# TYPE %s_%s counter\n", prefix, name))
		sb.WriteString(fmt.Sprintf("%s_%s %.6f\n\n", prefix, name, value))
	}

	// 搜索指标
	counter("searches_total", "Total number of search requests.", atomic.LoadUint64(&m.searchesTotal))
	counter("search_cache_hits_total", "Number of cache hits.", atomic.LoadUint64(&m.searchCacheHits))
	counter("search_cache_misses_total", "Number of cache misses.", atomic.LoadUint64(&m.searchCacheMisses))
	counter("search_errors_total", "Number of search errors.", atomic.LoadUint64(&m.searchErrors))

	// 缓存命中率
	cacheHits := atomic.LoadUint64(&m.searchCacheHits)
	cacheMisses := atomic.LoadUint64(&m.searchCacheMisses)
	total := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if total > 0 {
		cacheHitRate = float64(cacheHits) / float64(total)
	}
	gauge("cache_hit_rate", "Cache hit rate (0-1).", cacheHitRate)

	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	embeddingDuration := m.embeddingDuration
	synthesisDuration := m.synthesisDuration
	m.durationMu.Unlock()

	// 检索指标
	counter("retrieval_total", "Total number of vector retrievals.", atomic.LoadUint64(&m.retrievalTotal))
	durationCounter("retrieval_duration_seconds_total", "Total retrieval duration.", retrievalDuration)
	counter("retrieval_errors_total", "Number of retrieval errors.", atomic.LoadUint64(&m.retrievalErrors))

	// 嵌入指标
	counter("embedding_calls_total", "Total number of embedding calls.", atomic.LoadUint64(&m.embeddingCallsTotal))
	durationCounter("embedding_duration_seconds_total", "Total embedding duration.", embeddingDuration)
	counter("embedding_errors_total", "Number of embedding errors.", atomic.LoadUint64(&m.embeddingErrors))

	// 答案合成指标
	counter("synthesis_total", "Total number of answer synthesis calls.", atomic.LoadUint64(&m.synthesisTotal))
	durationCounter("synthesis_duration_seconds_total", "Total synthesis duration.", synthesisDuration)
	counter("synthesis_errors_total", "Number of synthesis failures.", atomic.LoadUint64(&m.synthesisErrors))
	counter("tokens_prompt_total", "Total prompt tokens.", atomic.LoadUint64(&m.tokensPrompt))
	counter("tokens_completion_total", "Total completion tokens.", atomic.LoadUint64(&m.tokensCompletion))

	// 摄取指标
	counter("documents_ingested_total", "Total documents ingested.", atomic.LoadUint64(&m.documentsIngested))
	counter("chunks_ingested_total", "Total chunks ingested.", atomic.LoadUint64(&m.chunksIngested))
	counter("ingest_errors_total", "Number of ingestion errors.", atomic.LoadUint64(&m.ingestErrors))

	// 运行时间
	gauge("uptime_seconds", "Service uptime in seconds.", time.Since(m.startTime).Seconds())

	return sb.String()
}

// Stats 返回当前统计信息（用于 API）。
func (m *PipelineMetrics) Stats() map[string]interface{} {
	m.durationMu.Lock()
	retrievalDuration := m.retrievalDuration
	embeddingDuration := m.embeddingDuration
	synthesisDuration := m.synthesisDuration
	m.durationMu.Unlock()

	cacheHits := atomic.LoadUint64(&m.searchCacheHits)
	cacheMisses := atomic.LoadUint64(&m.searchCacheMisses)
	cacheTotal := cacheHits + cacheMisses
	cacheHitRate := 0.0
	if cacheTotal > 0 {
		cacheHitRate = float64(cacheHits) / float64(cacheTotal)
	}

	retrievalTotal := atomic.LoadUint64(&m.retrievalTotal)
	avgRetrievalDuration := 0.0
	if retrievalTotal > 0 {
		avgRetrievalDuration = retrievalDuration / float64(retrievalTotal)
	}

	synthesisTotal := atomic.LoadUint64(&m.synthesisTotal)
	avgSynthesisDuration := 0.0
	if synthesisTotal > 0 {
		avgSynthesisDuration = synthesisDuration / float64(synthesisTotal)
	}

	return map[string]interface{}{
		"searches": map[string]interface{}{
			"total":          atomic.LoadUint64(&m.searchesTotal),
			"cache_hits":     cacheHits,
			"cache_misses":   cacheMisses,
			"cache_hit_rate": cacheHitRate,
			"errors":         atomic.LoadUint64(&m.searchErrors),
		},
		"retrieval": map[string]interface{}{
			"total":               retrievalTotal,
			"total_duration_secs": retrievalDuration,
			"avg_duration_secs":   avgRetrievalDuration,
			"errors":              atomic.LoadUint64(&m.retrievalErrors),
		},
		"embedding": map[string]interface{}{
			"calls_total":         atomic.LoadUint64(&m.embeddingCallsTotal),
			"total_duration_secs": embeddingDuration,
			"errors":              atomic.LoadUint64(&m.embeddingErrors),
		},
		"synthesis": map[string]interface{}{
			"total":               synthesisTotal,
			"total_duration_secs": synthesisDuration,
			"avg_duration_secs":   avgSynthesisDuration,
			"errors":              atomic.LoadUint64(&m.synthesisErrors),
			"tokens_prompt":       atomic.LoadUint64(&m.tokensPrompt),
			"tokens_completion":   atomic.LoadUint64(&m.tokensCompletion),
		},
		"ingestion": map[string]interface{}{
			"documents_ingested": atomic.LoadUint64(&m.documentsIngested),
			"chunks_ingested":    atomic.LoadUint64(&m.chunksIngested),
			"errors":             atomic.LoadUint64(&m.ingestErrors),
		},
		"uptime_seconds": time.Since(m.startTime).Seconds(),
	}
}

// Reset 重置所有指标（仅用于测试）。
func (m *PipelineMetrics) Reset() {
	atomic.StoreUint64(&m.searchesTotal, 0)
	atomic.StoreUint64(&m.searchCacheHits, 0)
	atomic.StoreUint64(&m.searchCacheMisses, 0)
	atomic.StoreUint64(&m.searchErrors, 0)
	atomic.StoreUint64(&m.retrievalTotal, 0)
	atomic.StoreUint64(&m.retrievalErrors, 0)
	atomic.StoreUint64(&m.embeddingCallsTotal, 0)
	atomic.StoreUint64(&m.embeddingErrors, 0)
	atomic.StoreUint64(&m.synthesisTotal, 0)
	atomic.StoreUint64(&m.synthesisErrors, 0)
	atomic.StoreUint64(&m.tokensPrompt, 0)
	atomic.StoreUint64(&m.tokensCompletion, 0)
	atomic.StoreUint64(&m.documentsIngested, 0)
	atomic.StoreUint64(&m.chunksIngested, 0)
	atomic.StoreUint64(&m.ingestErrors, 0)

	m.durationMu.Lock()
	m.retrievalDuration = 0
	m.embeddingDuration = 0
	m.synthesisDuration = 0
	m.startTime = time.Now()
	m.durationMu.Unlock()
}
