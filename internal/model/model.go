// Package model provides data models for the vectorag service.
package model

// IngestionResult represents the outcome of ingesting a single document.
type IngestionResult struct {
	DocumentName       string `json:"document_name"`
	ChunksAdded        int    `json:"chunks_added"`
	TotalContentLength int    `json:"total_content_length"`
}

// ChunkSource represents source information for a retrieved chunk.
type ChunkSource struct {
	ID           string  `json:"id"`
	DocumentName string  `json:"document_name"`
	ChunkIndex   int     `json:"chunk_index"`
	Content      string  `json:"content"`
	Source       string  `json:"source,omitempty"`
	Score        float32 `json:"score"`
}

// SearchResponse represents the full response of a search request.
type SearchResponse struct {
	Query           string         `json:"query"`
	Results         []ChunkSource  `json:"results"`
	GeneratedAnswer string         `json:"generated_answer,omitempty"`
	RetrievalTimeMs float64        `json:"retrieval_time_ms"`
	TotalTimeMs     float64        `json:"total_time_ms"`
	ResultCount     int            `json:"result_count"`
	TokenUsage      *TokenUsageDTO `json:"token_usage,omitempty"`
}

// TokenUsageDTO mirrors provider token accounting for API responses.
type TokenUsageDTO struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// DirectoryIngestionResult aggregates per-file results of a directory ingest.
type DirectoryIngestionResult struct {
	Directory      string            `json:"directory"`
	FilesProcessed int               `json:"files_processed"`
	FilesFailed    int               `json:"files_failed"`
	TotalChunks    int               `json:"total_chunks"`
	Results        []IngestionResult `json:"results"`
	Errors         []string          `json:"errors,omitempty"`
}
