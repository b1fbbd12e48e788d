package milvus

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	milvusopts "github.com/kart-io/vectorag/pkg/options/milvus"
)

// ErrSchemaMismatch reports that an existing collection's schema differs
// from the requested one.
var ErrSchemaMismatch = errors.New("collection schema mismatch")

// Client wraps the Milvus SDK client.
type Client struct {
	client *milvusclient.Client
	opts   *milvusopts.Options
}

// New creates a new Milvus client.
func New(opts *milvusopts.Options) (*Client, error) {
	if opts == nil {
		return nil, fmt.Errorf("milvus options is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  opts.Address,
		Username: opts.Username,
		Password: opts.Password,
		DBName:   opts.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to milvus: %w", err)
	}

	return &Client{
		client: c,
		opts:   opts,
	}, nil
}

// Close closes the Milvus client connection.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

// RawClient returns the underlying Milvus client.
func (c *Client) RawClient() *milvusclient.Client {
	return c.client
}

// Health verifies the server is reachable by listing collections.
func (c *Client) Health(ctx context.Context) error {
	if _, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption()); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// ListCollections returns the names of all collections in the database.
func (c *Client) ListCollections(ctx context.Context) ([]string, error) {
	names, err := c.client.ListCollections(ctx, milvusclient.NewListCollectionOption())
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// metricType maps a metric name to the SDK metric type.
// Supported: cosine, l2, ip.
func metricType(metric string) (entity.MetricType, error) {
	switch strings.ToLower(metric) {
	case "cosine":
		return entity.COSINE, nil
	case "l2":
		return entity.L2, nil
	case "ip":
		return entity.IP, nil
	default:
		return "", fmt.Errorf("unsupported metric type: %q", metric)
	}
}

// CollectionSchema defines the schema for a vector collection.
//
// The primary key is a caller-supplied VARCHAR id so that re-ingesting
// the same document upserts chunks in place instead of duplicating them.
type CollectionSchema struct {
	Name        string
	Description string
	Dimension   int
	Metric      string
	MetaFields  []MetaField
}

// MetaField defines a metadata field in the collection.
type MetaField struct {
	Name     string
	DataType entity.FieldType
	MaxLen   int // For VARCHAR type
}

// EnsureCollection creates the collection and its vector index if they do
// not exist. When the collection already exists, the stored schema is
// checked against the requested one: a dimension mismatch on the embedding
// field or a metric mismatch on its index is reported as an error rather
// than silently reused.
func (c *Client) EnsureCollection(ctx context.Context, schema *CollectionSchema) error {
	exists, err := c.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to check collection existence: %w", err)
	}
	if exists {
		return c.verifySchema(ctx, schema)
	}

	mt, err := metricType(schema.Metric)
	if err != nil {
		return err
	}

	collSchema := entity.NewSchema().
		WithName(schema.Name).
		WithDescription(schema.Description)

	// VARCHAR primary key, ids are assigned by the caller.
	collSchema.WithField(
		entity.NewField().
			WithName("id").
			WithDataType(entity.FieldTypeVarChar).
			WithMaxLength(64).
			WithIsPrimaryKey(true).
			WithIsAutoID(false),
	)

	collSchema.WithField(
		entity.NewField().
			WithName("embedding").
			WithDataType(entity.FieldTypeFloatVector).
			WithDim(int64(schema.Dimension)),
	)

	for _, f := range schema.MetaFields {
		field := entity.NewField().
			WithName(f.Name).
			WithDataType(f.DataType)
		if f.DataType == entity.FieldTypeVarChar && f.MaxLen > 0 {
			field.WithMaxLength(int64(f.MaxLen))
		}
		collSchema.WithField(field)
	}

	if err := c.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(schema.Name, collSchema)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx := index.NewIvfFlatIndex(mt, 128)
	createIdxTask, err := c.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(schema.Name, "embedding", idx))
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	if err := createIdxTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for index creation: %w", err)
	}

	loadTask, err := c.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("failed to wait for collection loading: %w", err)
	}

	return nil
}

// verifySchema compares the stored embedding dimension and index metric
// with the requested ones.
func (c *Client) verifySchema(ctx context.Context, schema *CollectionSchema) error {
	coll, err := c.client.DescribeCollection(ctx, milvusclient.NewDescribeCollectionOption(schema.Name))
	if err != nil {
		return fmt.Errorf("failed to describe collection: %w", err)
	}
	for _, f := range coll.Schema.Fields {
		if f.Name != "embedding" {
			continue
		}
		dimStr, ok := f.TypeParams[entity.TypeParamDim]
		if !ok {
			continue
		}
		dim, err := strconv.Atoi(dimStr)
		if err != nil {
			continue
		}
		if dim != schema.Dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d",
				ErrSchemaMismatch, schema.Name, dim, schema.Dimension)
		}
	}

	mt, err := metricType(schema.Metric)
	if err != nil {
		return err
	}
	idx, err := c.client.DescribeIndex(ctx, milvusclient.NewDescribeIndexOption(schema.Name, "embedding"))
	if err != nil {
		return fmt.Errorf("failed to describe index: %w", err)
	}
	if stored, ok := idx.Params()[index.MetricTypeKey]; ok && !strings.EqualFold(stored, string(mt)) {
		return fmt.Errorf("%w: collection %s index uses metric %s, requested %s",
			ErrSchemaMismatch, schema.Name, stored, mt)
	}
	return nil
}

// UpsertData represents rows to be written into a collection.
type UpsertData struct {
	IDs        []string
	Embeddings [][]float32
	Metadata   map[string][]any
}

// Upsert writes vectors and metadata into the collection, replacing rows
// with identical ids. Flush is awaited so the data is immediately visible
// to searches, which suits an ingest-then-query workflow.
func (c *Client) Upsert(ctx context.Context, collectionName string, data *UpsertData) (int64, error) {
	if len(data.IDs) == 0 {
		return 0, nil
	}
	if len(data.IDs) != len(data.Embeddings) {
		return 0, fmt.Errorf("id/embedding count mismatch: %d vs %d", len(data.IDs), len(data.Embeddings))
	}

	columns := make([]column.Column, 0, len(data.Metadata)+2)
	columns = append(columns, column.NewColumnVarChar("id", data.IDs))
	columns = append(columns, column.NewColumnFloatVector("embedding", len(data.Embeddings[0]), data.Embeddings))

	for name, values := range data.Metadata {
		switch v := values[0].(type) {
		case string:
			strVals := make([]string, len(values))
			for i, val := range values {
				strVals[i] = val.(string)
			}
			columns = append(columns, column.NewColumnVarChar(name, strVals))
		case int64:
			intVals := make([]int64, len(values))
			for i, val := range values {
				intVals[i] = val.(int64)
			}
			columns = append(columns, column.NewColumnInt64(name, intVals))
		default:
			return 0, fmt.Errorf("unsupported metadata type: %T for field %s", v, name)
		}
	}

	result, err := c.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(collectionName, columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert data: %w", err)
	}

	flushTask, err := c.client.Flush(ctx, milvusclient.NewFlushOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to flush collection: %w", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return 0, fmt.Errorf("failed to wait for flush: %w", err)
	}

	return result.UpsertCount, nil
}

// SearchResult represents a single search result.
type SearchResult struct {
	ID       string
	Score    float32
	Metadata map[string]any
}

// Search performs a vector similarity search.
func (c *Client) Search(ctx context.Context, collectionName string, vector []float32, topK int, outputFields []string) ([]SearchResult, error) {
	searchVectors := []entity.Vector{entity.FloatVector(vector)}

	results, err := c.client.Search(ctx, milvusclient.NewSearchOption(
		collectionName,
		topK,
		searchVectors,
	).WithANNSField("embedding").
		WithSearchParam("nprobe", "16").
		WithOutputFields(outputFields...))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	if len(results) == 0 {
		return []SearchResult{}, nil
	}

	searchResults := make([]SearchResult, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		result := SearchResult{
			Score:    results[0].Scores[i],
			Metadata: make(map[string]any),
		}

		if idCol, ok := results[0].IDs.(*column.ColumnVarChar); ok {
			result.ID = idCol.Data()[i]
		}

		for _, field := range results[0].Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				result.Metadata[col.Name()] = col.Data()[i]
			case *column.ColumnInt64:
				result.Metadata[col.Name()] = col.Data()[i]
			}
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// DeleteByIDs deletes vectors by their string primary keys.
func (c *Client) DeleteByIDs(ctx context.Context, collectionName string, ids []string) error {
	if _, err := c.client.Delete(ctx, milvusclient.NewDeleteOption(collectionName).WithStringIDs("id", ids)); err != nil {
		return fmt.Errorf("failed to delete by ids: %w", err)
	}
	return nil
}

// DropCollection drops a collection.
func (c *Client) DropCollection(ctx context.Context, collectionName string) error {
	if err := c.client.DropCollection(ctx, milvusclient.NewDropCollectionOption(collectionName)); err != nil {
		return fmt.Errorf("failed to drop collection: %w", err)
	}
	return nil
}

// GetCollectionStats returns the number of entities in a collection.
func (c *Client) GetCollectionStats(ctx context.Context, collectionName string) (int64, error) {
	stats, err := c.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(collectionName))
	if err != nil {
		return 0, fmt.Errorf("failed to get collection stats: %w", err)
	}

	if val, ok := stats["row_count"]; ok {
		return strconv.ParseInt(val, 10, 64)
	}
	return 0, nil
}
