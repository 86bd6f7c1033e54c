// Package rag provides the medical knowledge index the dialog controller
// consults for patient questions. The index is read-only on the call path
// and can be hot-reloaded with a fresh document set.
package rag

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"
)

// Entry is one knowledge base document.
type Entry struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Result is one similarity search hit.
type Result struct {
	Entry
	Similarity float32 // 0.0 to 1.0
}

// Index is an in-memory vector index over the knowledge base.
type Index struct {
	mu         sync.RWMutex
	db         *chromem.DB
	collection *chromem.Collection
	embed      chromem.EmbeddingFunc
	name       string
}

// NewIndex creates an empty index. A nil embed uses the library default
// (OpenAI embeddings via the environment).
func NewIndex(name string, embed chromem.EmbeddingFunc) (*Index, error) {
	if name == "" {
		name = "medical-knowledge"
	}
	db := chromem.NewDB()
	collection, err := db.GetOrCreateCollection(name, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("creating knowledge collection: %w", err)
	}
	return &Index{db: db, collection: collection, embed: embed, name: name}, nil
}

// Load adds entries to the current collection.
func (ix *Index) Load(ctx context.Context, entries []Entry) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return addAll(ctx, ix.collection, entries)
}

// Reload atomically replaces the document set. The new set is built off
// to the side; searches in flight finish against the old collection and
// new searches see the new one.
func (ix *Index) Reload(ctx context.Context, entries []Entry) error {
	db := chromem.NewDB()
	fresh, err := db.GetOrCreateCollection(ix.name, nil, ix.embed)
	if err != nil {
		return fmt.Errorf("creating reload collection: %w", err)
	}
	if err := addAll(ctx, fresh, entries); err != nil {
		return err
	}

	ix.mu.Lock()
	ix.db = db
	ix.collection = fresh
	ix.mu.Unlock()
	return nil
}

// Search returns the topK entries most similar to the query, filtered by
// minimum similarity.
func (ix *Index) Search(ctx context.Context, query string, topK int, minSimilarity float32) ([]Result, error) {
	ix.mu.RLock()
	collection := ix.collection
	ix.mu.RUnlock()

	if topK <= 0 {
		topK = 3
	}
	if n := collection.Count(); topK > n {
		if n == 0 {
			return nil, nil
		}
		topK = n
	}

	hits, err := collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying knowledge index: %w", err)
	}

	var results []Result
	for _, h := range hits {
		if h.Similarity < minSimilarity {
			continue
		}
		results = append(results, Result{
			Entry:      Entry{ID: h.ID, Content: h.Content, Metadata: h.Metadata},
			Similarity: h.Similarity,
		})
	}
	return results, nil
}

// Count returns the number of indexed entries.
func (ix *Index) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.collection.Count()
}

func addAll(ctx context.Context, collection *chromem.Collection, entries []Entry) error {
	for _, e := range entries {
		err := collection.AddDocument(ctx, chromem.Document{
			ID:       e.ID,
			Content:  e.Content,
			Metadata: e.Metadata,
		})
		if err != nil {
			return fmt.Errorf("adding knowledge entry %s: %w", e.ID, err)
		}
	}
	return nil
}
