// Package options contains flags and options for initializing the vectorag server.
package options

import (
	stderrors "errors"
	"fmt"
	"time"

	vectorag "github.com/kart-io/vectorag/internal/vectorag"
	cliflag "github.com/kart-io/vectorag/pkg/app/cliflag"
	cacheopts "github.com/kart-io/vectorag/pkg/options/cache"
	httpopts "github.com/kart-io/vectorag/pkg/options/http"
	llmopts "github.com/kart-io/vectorag/pkg/options/llm"
	logopts "github.com/kart-io/vectorag/pkg/options/logger"
	milvusopts "github.com/kart-io/vectorag/pkg/options/milvus"
	pipelineopts "github.com/kart-io/vectorag/pkg/options/pipeline"
)

// ServerOptions contains the configuration options for the server.
type ServerOptions struct {
	// HTTPOptions contains HTTP server configuration.
	HTTPOptions *httpopts.Options `json:"http" mapstructure:"http"`

	// LogOptions contains logger configuration.
	LogOptions *logopts.Options `json:"log" mapstructure:"log"`

	// MilvusOptions contains Milvus database configuration.
	MilvusOptions *milvusopts.Options `json:"milvus" mapstructure:"milvus"`

	// PipelineOptions contains retrieval pipeline configuration.
	PipelineOptions *pipelineopts.Options `json:"pipeline" mapstructure:"pipeline"`

	// CacheOptions contains query cache configuration.
	CacheOptions *cacheopts.Options `json:"cache" mapstructure:"cache"`

	// EmbeddingOptions contains embedding provider configuration.
	EmbeddingOptions *llmopts.ProviderOptions `json:"embedding" mapstructure:"embedding"`

	// ChatOptions contains chat provider configuration.
	ChatOptions *llmopts.ProviderOptions `json:"chat" mapstructure:"chat"`

	// ShutdownTimeout is the timeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`
}

// NewServerOptions creates a ServerOptions instance with default values.
func NewServerOptions() *ServerOptions {
	return &ServerOptions{
		HTTPOptions:      httpopts.NewOptions(),
		LogOptions:       logopts.NewOptions(),
		MilvusOptions:    milvusopts.NewOptions(),
		PipelineOptions:  pipelineopts.NewOptions(),
		CacheOptions:     cacheopts.NewOptions(),
		EmbeddingOptions: llmopts.NewEmbeddingOptions(),
		ChatOptions:      llmopts.NewChatOptions(),
		ShutdownTimeout:  30 * time.Second,
	}
}

// Flags returns flags for a specific server grouped by section name.
func (o *ServerOptions) Flags() (fss cliflag.NamedFlagSets) {
	o.HTTPOptions.AddFlags(fss.FlagSet("http"))
	o.LogOptions.AddFlags(fss.FlagSet("log"))
	o.MilvusOptions.AddFlags(fss.FlagSet("milvus"))
	o.PipelineOptions.AddFlags(fss.FlagSet("pipeline"))
	o.CacheOptions.AddFlags(fss.FlagSet("cache"))
	o.EmbeddingOptions.AddFlags(fss.FlagSet("embedding"), "embedding")
	o.ChatOptions.AddFlags(fss.FlagSet("chat"), "chat")

	// misc flags
	fs := fss.FlagSet("misc")
	fs.DurationVar(&o.ShutdownTimeout, "shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout")

	return fss
}

// Complete completes all the required options.
func (o *ServerOptions) Complete() error {
	if err := o.LogOptions.Complete(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if err := o.PipelineOptions.Complete(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if err := o.CacheOptions.Complete(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := o.EmbeddingOptions.Complete(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := o.ChatOptions.Complete(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}

// Validate checks whether the options in ServerOptions are valid.
func (o *ServerOptions) Validate() error {
	var errs []error

	errs = append(errs, o.HTTPOptions.Validate())
	errs = append(errs, o.LogOptions.Validate())
	errs = append(errs, o.MilvusOptions.Validate()...)
	errs = append(errs, o.PipelineOptions.Validate()...)
	errs = append(errs, o.CacheOptions.Validate()...)
	errs = append(errs, o.EmbeddingOptions.Validate()...)
	errs = append(errs, o.ChatOptions.Validate()...)

	return stderrors.Join(errs...)
}

// Config builds a vectorag.Config based on ServerOptions.
func (o *ServerOptions) Config() (*vectorag.Config, error) {
	return &vectorag.Config{
		HTTPOptions:      o.HTTPOptions,
		LogOptions:       o.LogOptions,
		MilvusOptions:    o.MilvusOptions,
		PipelineOptions:  o.PipelineOptions,
		CacheOptions:     o.CacheOptions,
		EmbeddingOptions: o.EmbeddingOptions,
		ChatOptions:      o.ChatOptions,
		ShutdownTimeout:  o.ShutdownTimeout,
	}, nil
}
