// Package pipeline provides retrieval pipeline configuration options.
package pipeline

import (
	"fmt"

	"github.com/kart-io/vectorag/pkg/options"
	"github.com/spf13/pflag"
)

var _ options.IOptions = (*Options)(nil)

// Metric names accepted by the vector store.
const (
	MetricCosine = "cosine"
	MetricL2     = "l2"
	MetricIP     = "ip"
)

// Options contains retrieval pipeline configuration.
type Options struct {
	// ChunkSize is the maximum size of text chunks in characters.
	ChunkSize int `json:"chunk-size" mapstructure:"chunk-size"`

	// ChunkOverlap is the overlap between consecutive chunks in characters.
	ChunkOverlap int `json:"chunk-overlap" mapstructure:"chunk-overlap"`

	// TopK is the default number of results to return from similarity search.
	TopK int `json:"top-k" mapstructure:"top-k"`

	// Collection is the name of the vector store index.
	Collection string `json:"collection" mapstructure:"collection"`

	// EmbeddingDim is the dimension of embedding vectors.
	EmbeddingDim int `json:"embedding-dim" mapstructure:"embedding-dim"`

	// Metric is the distance metric (cosine, l2, ip).
	Metric string `json:"metric" mapstructure:"metric"`

	// EmbedBatchSize is the number of texts embedded per provider call.
	EmbedBatchSize int `json:"embed-batch-size" mapstructure:"embed-batch-size"`

	// SystemPrompt is the prompt template for answer synthesis.
	SystemPrompt string `json:"system-prompt" mapstructure:"system-prompt"`
}

// DefaultSystemPrompt is the default prompt template for answer synthesis.
const DefaultSystemPrompt = `You are a helpful assistant that answers questions based on the provided context.
Use the following context to answer the question. If you cannot find the answer in the context, say so.

Context:
{{context}}

Question: {{question}}

Answer:`

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		ChunkSize:      512,
		ChunkOverlap:   50,
		TopK:           5,
		Collection:     "vectorag_chunks",
		EmbeddingDim:   384,
		Metric:         MetricCosine,
		EmbedBatchSize: 32,
		SystemPrompt:   DefaultSystemPrompt,
	}
}

// AddFlags adds flags for pipeline options to the specified FlagSet.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.IntVar(&o.ChunkSize, options.Join(prefixes...)+"pipeline.chunk-size", o.ChunkSize, "Maximum size of text chunks in characters.")
	fs.IntVar(&o.ChunkOverlap, options.Join(prefixes...)+"pipeline.chunk-overlap", o.ChunkOverlap, "Overlap between consecutive chunks in characters.")
	fs.IntVar(&o.TopK, options.Join(prefixes...)+"pipeline.top-k", o.TopK, "Default number of results from similarity search.")
	fs.StringVar(&o.Collection, options.Join(prefixes...)+"pipeline.collection", o.Collection, "Vector store index name.")
	fs.IntVar(&o.EmbeddingDim, options.Join(prefixes...)+"pipeline.embedding-dim", o.EmbeddingDim, "Embedding vector dimension.")
	fs.StringVar(&o.Metric, options.Join(prefixes...)+"pipeline.metric", o.Metric, "Distance metric (cosine, l2, ip).")
	fs.IntVar(&o.EmbedBatchSize, options.Join(prefixes...)+"pipeline.embed-batch-size", o.EmbedBatchSize, "Texts embedded per provider call.")
}

// Validate validates the pipeline options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk-size must be positive"))
	}
	if o.ChunkOverlap < 0 {
		errs = append(errs, fmt.Errorf("chunk-overlap must not be negative"))
	}
	if o.ChunkOverlap >= o.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk-overlap must be smaller than chunk-size"))
	}
	if o.TopK <= 0 {
		errs = append(errs, fmt.Errorf("top-k must be positive"))
	}
	if o.Collection == "" {
		errs = append(errs, fmt.Errorf("collection is required"))
	}
	if o.EmbeddingDim <= 0 {
		errs = append(errs, fmt.Errorf("embedding-dim must be positive"))
	}
	switch o.Metric {
	case MetricCosine, MetricL2, MetricIP:
	default:
		errs = append(errs, fmt.Errorf("metric must be one of cosine, l2, ip"))
	}
	if o.EmbedBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("embed-batch-size must be positive"))
	}
	return errs
}

// Complete completes the pipeline options with defaults.
func (o *Options) Complete() error {
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	return nil
}
