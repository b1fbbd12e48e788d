package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/vectorag/internal/model"
	"github.com/kart-io/vectorag/internal/vectorag/biz"
	"github.com/kart-io/vectorag/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// mockService 提供可注入行为的 Service 实现。
type mockService struct {
	ingestFn          func(ctx context.Context, docName, content, source string) (*model.IngestionResult, error)
	ingestDirectoryFn func(ctx context.Context, dir string) (*model.DirectoryIngestionResult, error)
	searchFn          func(ctx context.Context, query string, topK int, withAnswer bool) (*model.SearchResponse, error)
	statsFn           func(ctx context.Context) (map[string]any, error)
	listCollectionsFn func(ctx context.Context) ([]string, error)
	healthFn          func(ctx context.Context) error
}

var _ biz.Service = (*mockService)(nil)

func (m *mockService) Ingest(ctx context.Context, docName, content, source string) (*model.IngestionResult, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, docName, content, source)
	}
	return &model.IngestionResult{DocumentName: docName, ChunksAdded: 2, TotalContentLength: len(content)}, nil
}

func (m *mockService) IngestDirectory(ctx context.Context, dir string) (*model.DirectoryIngestionResult, error) {
	if m.ingestDirectoryFn != nil {
		return m.ingestDirectoryFn(ctx, dir)
	}
	return &model.DirectoryIngestionResult{Directory: dir, FilesProcessed: 1, TotalChunks: 3}, nil
}

func (m *mockService) Search(ctx context.Context, query string, topK int, withAnswer bool) (*model.SearchResponse, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, query, topK, withAnswer)
	}
	return &model.SearchResponse{Query: query, ResultCount: 0}, nil
}

func (m *mockService) GetStats(ctx context.Context) (map[string]any, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return map[string]any{"chunk_count": int64(42)}, nil
}

func (m *mockService) ListCollections(ctx context.Context) ([]string, error) {
	if m.listCollectionsFn != nil {
		return m.listCollectionsFn(ctx)
	}
	return []string{"vectorag_chunks"}, nil
}

func (m *mockService) Health(ctx context.Context) error {
	if m.healthFn != nil {
		return m.healthFn(ctx)
	}
	return nil
}

func setupRouter(svc biz.Service) *gin.Engine {
	h := NewPipelineHandler(svc, nil)
	engine := gin.New()
	engine.GET("/healthz", h.Healthz)
	engine.GET("/metrics", h.Metrics)
	engine.POST("/api/v1/ingest", h.Ingest)
	engine.POST("/api/v1/ingest-file", h.IngestFile)
	engine.POST("/api/v1/ingest-directory", h.IngestDirectory)
	engine.POST("/api/v1/search", h.Search)
	engine.GET("/api/v1/indices", h.ListIndices)
	engine.GET("/api/v1/stats", h.Stats)
	return engine
}

func doJSON(t *testing.T, engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestIngest(t *testing.T) {
	engine := setupRouter(&mockService{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/ingest", IngestRequest{
		DocumentName: "doc.txt",
		Content:      "hello world",
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Code)
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "doc.txt", data["document_name"])
	assert.Equal(t, float64(2), data["chunks_added"])
}

func TestIngestMissingFields(t *testing.T) {
	engine := setupRouter(&mockService{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/ingest", map[string]string{"document_name": "doc.txt"})

	assert.Equal(t, http.StatusBadRequest, w.Code, "缺少必填字段应返回 400")
}

func TestIngestServiceError(t *testing.T) {
	svc := &mockService{
		ingestFn: func(_ context.Context, _, _, _ string) (*model.IngestionResult, error) {
			return nil, errors.ErrDocumentNotUTF8
		},
	}
	engine := setupRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/ingest", IngestRequest{
		DocumentName: "doc.txt",
		Content:      "x",
	})

	require.Equal(t, http.StatusBadRequest, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrDocumentNotUTF8.Code, resp.Code)
}

func TestIngestFile(t *testing.T) {
	var gotName, gotContent, gotSource string
	svc := &mockService{
		ingestFn: func(_ context.Context, docName, content, source string) (*model.IngestionResult, error) {
			gotName, gotContent, gotSource = docName, content, source
			return &model.IngestionResult{DocumentName: docName, ChunksAdded: 1}, nil
		},
	}
	engine := setupRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes/readme.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# hello"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest-file", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "readme.md", gotName, "上传文件名应去除路径部分")
	assert.Equal(t, "# hello", gotContent)
	assert.Equal(t, "notes/readme.md", gotSource, "来源保留原始文件路径")
}

func TestIngestFileMissingFile(t *testing.T) {
	engine := setupRouter(&mockService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest-file", strings.NewReader(""))
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestIngestDirectory(t *testing.T) {
	engine := setupRouter(&mockService{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/ingest-directory", IngestDirectoryRequest{Directory: "/data/docs"})

	require.Equal(t, http.StatusOK, w.Code)
	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "/data/docs", data["directory"])
}

func TestSearch(t *testing.T) {
	var gotTopK int
	var gotWithAnswer bool
	svc := &mockService{
		searchFn: func(_ context.Context, query string, topK int, withAnswer bool) (*model.SearchResponse, error) {
			gotTopK, gotWithAnswer = topK, withAnswer
			return &model.SearchResponse{
				Query:       query,
				Results:     []model.ChunkSource{{ID: "c1", DocumentName: "doc.txt", Content: "hello", Score: 0.9}},
				ResultCount: 1,
			}, nil
		},
	}
	engine := setupRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/search", SearchRequest{
		Query:      "what is hello",
		TopK:       3,
		WithAnswer: true,
	})

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3, gotTopK)
	assert.True(t, gotWithAnswer)

	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "what is hello", data["query"])
	assert.Equal(t, float64(1), data["result_count"])
}

func TestSearchMissingQuery(t *testing.T) {
	engine := setupRouter(&mockService{})

	w := doJSON(t, engine, http.MethodPost, "/api/v1/search", map[string]int{"top_k": 5})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchStoreUnavailable(t *testing.T) {
	svc := &mockService{
		searchFn: func(_ context.Context, _ string, _ int, _ bool) (*model.SearchResponse, error) {
			return nil, errors.ErrVectorStoreUnavailable
		},
	}
	engine := setupRouter(svc)

	w := doJSON(t, engine, http.MethodPost, "/api/v1/search", SearchRequest{Query: "q"})

	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, errors.ErrVectorStoreUnavailable.Code, resp.Code)
}

func TestStats(t *testing.T) {
	engine := setupRouter(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(42), data["chunk_count"])
}

func TestListIndices(t *testing.T) {
	engine := setupRouter(&mockService{
		listCollectionsFn: func(ctx context.Context) ([]string, error) {
			return []string{"docs_a", "docs_b"}, nil
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/indices", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp SuccessResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data, ok := resp.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"docs_a", "docs_b"}, data["indices"])
	assert.Equal(t, float64(2), data["count"])
}

func TestListIndicesStoreError(t *testing.T) {
	engine := setupRouter(&mockService{
		listCollectionsFn: func(ctx context.Context) ([]string, error) {
			return nil, errors.ErrVectorStoreUnavailable
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/indices", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealthz(t *testing.T) {
	t.Run("健康", func(t *testing.T) {
		engine := setupRouter(&mockService{})

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"ok"`)
	})

	t.Run("依赖不可用", func(t *testing.T) {
		svc := &mockService{
			healthFn: func(_ context.Context) error {
				return errors.ErrVectorStoreUnavailable
			},
		}
		engine := setupRouter(svc)

		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"unhealthy"`)
	})
}

func TestMetrics(t *testing.T) {
	engine := setupRouter(&mockService{})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "vectorag_pipeline_searches_total")
}
