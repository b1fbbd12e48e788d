package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Retrieval pipeline errors (service code 30).
var (
	// ErrInvalidInput indicates the ingestion or search input failed validation.
	ErrInvalidInput = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryRequest, 0),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Invalid input",
		MessageZH: "输入无效",
	})

	// ErrInvalidConfiguration indicates the pipeline configuration is unusable.
	ErrInvalidConfiguration = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryConfig, 0),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Internal,
		MessageEN: "Invalid pipeline configuration",
		MessageZH: "检索管道配置无效",
	})

	// ErrEmbeddingGeneration indicates the embedding provider failed.
	ErrEmbeddingGeneration = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryNetwork, 0),
		HTTP:      http.StatusBadGateway,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Embedding generation failed",
		MessageZH: "向量生成失败",
	})

	// ErrVectorStoreUnavailable indicates the vector store could not be reached
	// after retries were exhausted.
	ErrVectorStoreUnavailable = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryNetwork, 1),
		HTTP:      http.StatusServiceUnavailable,
		GRPCCode:  codes.Unavailable,
		MessageEN: "Vector store unavailable",
		MessageZH: "向量存储不可用",
	})

	// ErrIndexSchemaConflict indicates an existing index has an incompatible
	// dimension or metric.
	ErrIndexSchemaConflict = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryConflict, 0),
		HTTP:      http.StatusConflict,
		GRPCCode:  codes.AlreadyExists,
		MessageEN: "Index schema conflict",
		MessageZH: "索引结构冲突",
	})

	// ErrAnswerSynthesis indicates answer generation failed. Search results
	// are still returned; this code is reported in logs and metrics only.
	ErrAnswerSynthesis = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryInternal, 0),
		HTTP:      http.StatusInternalServerError,
		GRPCCode:  codes.Internal,
		MessageEN: "Answer synthesis failed",
		MessageZH: "答案生成失败",
	})

	// ErrDocumentNotUTF8 indicates an uploaded file is not valid UTF-8 text.
	ErrDocumentNotUTF8 = Register(&Errno{
		Code:      MakeCode(ServiceRetrieval, CategoryRequest, 1),
		HTTP:      http.StatusBadRequest,
		GRPCCode:  codes.InvalidArgument,
		MessageEN: "Document is not valid UTF-8 text",
		MessageZH: "文档不是有效的 UTF-8 文本",
	})
)
