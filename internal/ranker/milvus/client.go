// Package milvus ranks schema elements against a question by vector
// similarity. It is an optional accelerator: the fuzzy slicer remains
// the fallback whenever the vector store or the embedding model is
// unavailable.
package milvus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/askdb/backend/internal/schema"
	"github.com/askdb/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

type ElementMatch struct {
	Element string
	Score   float32
}

// NewClient connects to a Milvus or Zilliz Cloud endpoint. The API key
// is optional; a plain local deployment leaves it empty.
func NewClient(endpoint, apiKey, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewClient(context.Background(), client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// SchemaHash fingerprints a schema so indexed elements from one
// database never rank questions against another.
func SchemaHash(s schema.Schema) string {
	h := sha256.New()
	for _, el := range s {
		h.Write([]byte(el.Name))
		for _, f := range el.Fields {
			h.Write([]byte("|" + f.Name))
		}
		h.Write([]byte("\n"))
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (c *Client) CreateCollection(ctx context.Context) error {
	has, err := c.client.HasCollection(ctx, c.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", c.collectionName))
		return nil
	}

	sch := &entity.Schema{
		CollectionName: c.collectionName,
		Description:    "Schema element embeddings",
		Fields: []*entity.Field{
			{
				Name:       "element_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "128",
				},
			},
			{
				Name:     "schema_hash",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "element",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "256",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", c.vectorDim),
				},
			},
			{
				Name:     "indexed_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = c.client.CreateCollection(ctx, sch, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, _ := entity.NewIndexIvfFlat(entity.L2, 1024)
	err = c.client.CreateIndex(ctx, c.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = c.client.LoadCollection(ctx, c.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", c.collectionName))

	return nil
}

// ElementText renders one schema element the way it gets embedded at
// index time. Questions are embedded raw.
func ElementText(el schema.Element) string {
	names := make([]string, len(el.Fields))
	for i, f := range el.Fields {
		names[i] = f.Name
	}
	return fmt.Sprintf("%s: %s", el.Name, strings.Join(names, ", "))
}

// Index stores embeddings for every element of a schema under its
// hash. Re-indexing the same schema overwrites by primary key.
func (c *Client) Index(ctx context.Context, schemaHash string, elements []string, embeddings [][]float32) error {
	if len(elements) == 0 {
		return nil
	}
	if len(elements) != len(embeddings) {
		return fmt.Errorf("element/embedding count mismatch: %d vs %d", len(elements), len(embeddings))
	}

	ids := make([]string, len(elements))
	hashes := make([]string, len(elements))
	timestamps := make([]int64, len(elements))
	now := time.Now().Unix()
	for i, el := range elements {
		ids[i] = schemaHash + ":" + el
		hashes[i] = schemaHash
		timestamps[i] = now
	}

	_, err := c.client.Insert(
		ctx,
		c.collectionName,
		"",
		entity.NewColumnVarChar("element_id", ids),
		entity.NewColumnVarChar("schema_hash", hashes),
		entity.NewColumnVarChar("element", elements),
		entity.NewColumnFloatVector("embedding", c.vectorDim, embeddings),
		entity.NewColumnInt64("indexed_at", timestamps),
	)
	if err != nil {
		return fmt.Errorf("failed to insert elements: %w", err)
	}

	err = c.client.Flush(ctx, c.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Schema elements indexed",
		zap.String("schema_hash", schemaHash),
		zap.Int("count", len(elements)),
	)

	return nil
}

// Rank returns the elements of one schema closest to the question
// embedding, best first.
func (c *Client) Rank(ctx context.Context, schemaHash string, questionEmbedding []float32, topK int) ([]ElementMatch, error) {
	expr := fmt.Sprintf(`schema_hash == "%s"`, schemaHash)

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := c.client.Search(
		ctx,
		c.collectionName,
		[]string{},
		expr,
		[]string{"element"},
		[]entity.Vector{entity.FloatVector(questionEmbedding)},
		"embedding",
		entity.L2,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]ElementMatch, 0)
	for _, sr := range searchResult {
		elementCol := sr.Fields.GetColumn("element")
		for i := 0; i < sr.ResultCount; i++ {
			element, _ := elementCol.Get(i)
			results = append(results, ElementMatch{
				Element: element.(string),
				Score:   sr.Scores[i],
			})
		}
	}

	logger.Debug("Schema elements ranked",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}
