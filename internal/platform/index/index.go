// Package index defines the per-video passage store used by ingestion and
// retrieval. One collection holds the passages of exactly one video.
package index

import (
	"context"
	"errors"
)

var (
	// ErrCollectionExists is returned by CreateCollection when the name is
	// taken. Callers treat it as success.
	ErrCollectionExists = errors.New("collection already exists")
	// ErrDocumentExists is returned by AddDocument for a duplicate path.
	// Callers treat it as success.
	ErrDocumentExists = errors.New("document already exists")
	// ErrCollectionNotFound means the video has not been indexed yet.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrUnavailable marks failures of the index service itself, as opposed
	// to a problem with one collection.
	ErrUnavailable = errors.New("index unavailable")
	// ErrEmbedding marks a failure of the embedding service behind a
	// vector index.
	ErrEmbedding = errors.New("embedding failed")
)

type Document struct {
	Path     string
	Text     string
	Metadata map[string]any
}

// Snippet is one query hit. Score is nil when the backend did not report one.
type Snippet struct {
	Content string
	Path    string
	Score   *float64
}

func (s Snippet) HasScore() bool { return s.Score != nil }

type Client interface {
	CreateCollection(ctx context.Context, name string) error
	AddDocument(ctx context.Context, collection string, doc Document) error
	TopSnippets(ctx context.Context, collection, query string, k int) ([]Snippet, error)
}

// VectorSearcher is implemented by clients that embed queries. Callers that
// search many collections with one query embed it once and reuse the vector.
type VectorSearcher interface {
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
	SearchVector(ctx context.Context, collection string, vector []float32, k int) ([]Snippet, error)
}

// Score is a convenience for building scored snippets.
func Score(v float64) *float64 { return &v }

// IgnoreExists maps the tolerated "already exists" errors to nil.
func IgnoreExists(err error) error {
	if errors.Is(err, ErrCollectionExists) || errors.Is(err, ErrDocumentExists) {
		return nil
	}
	return err
}
