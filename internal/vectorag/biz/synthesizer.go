package biz

import (
	"context"
	"fmt"
	"strings"

	"github.com/kart-io/logger"

	"github.com/kart-io/vectorag/internal/pkg/textutil"
	"github.com/kart-io/vectorag/internal/vectorag/store"
	"github.com/kart-io/vectorag/pkg/llm"
)

// SynthesizerConfig 答案合成器配置。
type SynthesizerConfig struct {
	// SystemPrompt 提示词模板，支持 {{context}} 和 {{question}} 占位符。
	SystemPrompt string
	// MaxContextResults 用于构建上下文的检索结果数量上限。
	MaxContextResults int
	// MaxSnippetLength 单条检索结果截断后的最大字符数。
	MaxSnippetLength int
}

// Synthesizer 基于检索结果合成答案。
//
// 合成是检索的增值步骤而非前提：chat provider 未配置或调用
// 失败时，调用方应降级为纯检索结果，而不是让整个搜索失败。
type Synthesizer struct {
	chatProvider llm.ChatProvider
	config       *SynthesizerConfig
}

// NewSynthesizer 创建合成器实例，chatProvider 可以为 nil。
func NewSynthesizer(chatProvider llm.ChatProvider, config *SynthesizerConfig) *Synthesizer {
	if config.MaxContextResults <= 0 {
		config.MaxContextResults = 3
	}
	if config.MaxSnippetLength <= 0 {
		config.MaxSnippetLength = 300
	}
	return &Synthesizer{
		chatProvider: chatProvider,
		config:       config,
	}
}

// Enabled 返回合成功能是否可用。
func (s *Synthesizer) Enabled() bool {
	return s.chatProvider != nil
}

// GenerateAnswer 根据检索结果合成答案。
func (s *Synthesizer) GenerateAnswer(ctx context.Context, question string, results []*store.SearchResult) (*llm.GenerateResponse, error) {
	if !s.Enabled() {
		return nil, nil
	}

	if len(results) == 0 {
		return &llm.GenerateResponse{
			Content: "I couldn't find any relevant information in the knowledge base.",
		}, nil
	}

	if ctx.Err() != nil {
		return nil, fmt.Errorf("context cancelled before synthesis: %w", ctx.Err())
	}

	// 仅取最相关的前若干条，每条截断后拼入上下文
	limit := s.config.MaxContextResults
	if len(results) < limit {
		limit = len(results)
	}

	var contextBuilder strings.Builder
	for i := 0; i < limit; i++ {
		result := results[i]
		snippet := textutil.TruncateString(result.Content, s.config.MaxSnippetLength)
		contextBuilder.WriteString(fmt.Sprintf("[%d] From %s:\n%s\n\n",
			i+1, result.DocumentName, snippet))
	}

	prompt := strings.ReplaceAll(s.config.SystemPrompt, "{{context}}", contextBuilder.String())
	prompt = strings.ReplaceAll(prompt, "{{question}}", question)

	resp, err := s.chatProvider.Generate(ctx, prompt, "")
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize answer: %w", err)
	}

	if resp.TokenUsage != nil {
		logger.Infof("Answer synthesized (length: %d, tokens: %d)",
			len(resp.Content), resp.TokenUsage.TotalTokens)
	} else {
		logger.Infof("Answer synthesized (length: %d)", len(resp.Content))
	}

	return resp, nil
}
