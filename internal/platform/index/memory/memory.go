// Package memory is an in-process index.Client. Scores are the fraction of
// query terms present in a passage, which is enough for local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/yungbote/vidrag-backend/internal/platform/index"
)

type collection struct {
	order []string
	docs  map[string]index.Document
}

type Index struct {
	mu          sync.RWMutex
	collections map[string]*collection
	failures    map[string]error
}

func New() *Index {
	return &Index{
		collections: map[string]*collection{},
		failures:    map[string]error{},
	}
}

// FailCollection makes every call against name return err until cleared
// with a nil err.
func (m *Index) FailCollection(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failures, name)
		return
	}
	m.failures[name] = err
}

func (m *Index) CreateCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[name]; err != nil {
		return err
	}
	if _, ok := m.collections[name]; ok {
		return index.ErrCollectionExists
	}
	m.collections[name] = &collection{docs: map[string]index.Document{}}
	return nil
}

func (m *Index) AddDocument(ctx context.Context, name string, doc index.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(doc.Path) == "" {
		return fmt.Errorf("document path required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failures[name]; err != nil {
		return err
	}
	c, ok := m.collections[name]
	if !ok {
		return fmt.Errorf("%w: %s", index.ErrCollectionNotFound, name)
	}
	if _, dup := c.docs[doc.Path]; dup {
		return index.ErrDocumentExists
	}
	c.docs[doc.Path] = doc
	c.order = append(c.order, doc.Path)
	return nil
}

func (m *Index) TopSnippets(ctx context.Context, name, query string, k int) ([]index.Snippet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failures[name]; err != nil {
		return nil, err
	}
	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", index.ErrCollectionNotFound, name)
	}
	terms := tokenize(query)
	out := make([]index.Snippet, 0, len(c.order))
	for _, path := range c.order {
		doc := c.docs[path]
		out = append(out, index.Snippet{Content: doc.Text, Path: path, Score: index.Score(overlap(terms, doc.Text))})
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Score > *out[j].Score })
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Count returns the number of documents in a collection, or -1 if it does not exist.
func (m *Index) Count(name string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[name]
	if !ok {
		return -1
	}
	return len(c.docs)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func overlap(terms []string, text string) float64 {
	if len(terms) == 0 {
		return 0
	}
	have := map[string]struct{}{}
	for _, t := range tokenize(text) {
		have[t] = struct{}{}
	}
	hits := 0
	for _, t := range terms {
		if _, ok := have[t]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}
