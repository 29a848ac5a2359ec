// Copyright 2026 © The Demeter Authors
// SPDX-License-Identifier: Apache-2.0

// Package retrieval provides semantic document search over an
// agricultural knowledge base. A Retriever embeds the query text and
// searches a vector store for the closest document snippets.
package retrieval

import (
	"context"

	"github.com/google/uuid"

	"github.com/demeterhq/demeter/pkg/errors"
)

// VectorStore defines the interface for a vector database.
type VectorStore interface {
	// Upsert adds or updates points in the vector store.
	Upsert(ctx context.Context, collection string, points []Point) error
	// Search searches for the nearest vectors to the given vector.
	Search(ctx context.Context, collection string, vector []float32, limit int, scoreThreshold float32) ([]SearchResult, error)
	// CreateCollection creates a new collection if it doesn't exist.
	CreateCollection(ctx context.Context, name string, vectorSize uint64) error
}

// Point represents a data point in the vector store.
type Point struct {
	ID      string                 `json:"id"`
	Vector  []float32              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

// SearchResult represents a result from a vector search.
type SearchResult struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
	Point Point   `json:"point"`
}

// Embedder defines the interface for converting text to vectors.
type Embedder interface {
	// Embed converts a text string into a vector.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Document is a unit of the knowledge base prior to indexing.
type Document struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

// Snippet is a retrieved fragment, ordered by similarity score.
type Snippet struct {
	DocID  string  `json:"doc_id"`
	Text   string  `json:"text"`
	Source string  `json:"source,omitempty"`
	Score  float32 `json:"score"`
}

// Retriever pairs an Embedder with a VectorStore over a single collection.
type Retriever struct {
	embedder   Embedder
	store      VectorStore
	collection string
	threshold  float32
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithScoreThreshold sets the minimum similarity score for results.
func WithScoreThreshold(t float32) Option {
	return func(r *Retriever) {
		r.threshold = t
	}
}

// NewRetriever creates a Retriever over the given collection.
func NewRetriever(embedder Embedder, store VectorStore, collection string, opts ...Option) *Retriever {
	r := &Retriever{
		embedder:   embedder,
		store:      store,
		collection: collection,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index embeds and upserts documents into the collection. Documents
// without an ID are assigned one.
func (r *Retriever) Index(ctx context.Context, docs []Document) error {
	points := make([]Point, 0, len(docs))
	for _, doc := range docs {
		vec, err := r.embedder.Embed(ctx, doc.Text)
		if err != nil {
			return errors.New(errors.CodeMemoryError, "failed to embed document", err)
		}
		id := doc.ID
		if id == "" {
			id = uuid.NewString()
		}
		points = append(points, Point{
			ID:     id,
			Vector: vec,
			Payload: map[string]interface{}{
				"text":   doc.Text,
				"source": doc.Source,
			},
		})
	}
	if err := r.store.Upsert(ctx, r.collection, points); err != nil {
		return errors.New(errors.CodeMemoryError, "failed to upsert documents", err)
	}
	return nil
}

// Retrieve embeds the query and returns the closest snippets.
func (r *Retriever) Retrieve(ctx context.Context, query string, limit int) ([]Snippet, error) {
	if limit <= 0 {
		limit = 5
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "failed to embed query", err)
	}
	results, err := r.store.Search(ctx, r.collection, vec, limit, r.threshold)
	if err != nil {
		return nil, errors.New(errors.CodeMemoryError, "vector search failed", err)
	}

	snippets := make([]Snippet, 0, len(results))
	for _, res := range results {
		s := Snippet{DocID: res.ID, Score: res.Score}
		if text, ok := res.Point.Payload["text"].(string); ok {
			s.Text = text
		}
		if src, ok := res.Point.Payload["source"].(string); ok {
			s.Source = src
		}
		snippets = append(snippets, s)
	}
	return snippets, nil
}
