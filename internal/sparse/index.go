// Package sparse implements the per-collection lexical (term-frequency)
// index complementing dense similarity search. Each collection owns exactly
// one Index instance, seeded at collection-open time and updated
// incrementally on every write; there is no global shared index.
package sparse

import (
	"math"
	"sort"
	"sync"

	"github.com/engramlabs/engram/internal/domain/scope"
)

// BM25 constants (Robertson et al.; standard defaults).
const (
	k1 = 1.2
	b  = 0.75
)

// Filter restricts a query to one scope, and optionally to one thread.
type Filter struct {
	Scope    scope.Scope
	ThreadID string
}

type docEntry struct {
	terms    map[string]int
	length   int
	scope    scope.Scope
	threadID string
}

// Index is a thread-safe incremental term-frequency index. Readers run
// concurrently; a write blocks readers only for the duration of the
// posting-list update.
type Index struct {
	mu       sync.RWMutex
	docs     map[string]*docEntry
	postings map[string]map[string]int // term -> doc id -> tf
	totalLen int
}

// NewIndex creates an empty index.
func NewIndex() *Index {
	return &Index{
		docs:     make(map[string]*docEntry),
		postings: make(map[string]map[string]int),
	}
}

// Add indexes a document, replacing any previous entry with the same id.
func (x *Index) Add(id, text string, sc scope.Scope, threadID string) {
	terms := tokenize(text)

	x.mu.Lock()
	defer x.mu.Unlock()

	x.removeLocked(id)

	entry := &docEntry{
		terms:    make(map[string]int, len(terms)),
		length:   len(terms),
		scope:    sc,
		threadID: threadID,
	}
	for _, t := range terms {
		entry.terms[t]++
	}
	x.docs[id] = entry
	x.totalLen += entry.length

	for t, tf := range entry.terms {
		posting := x.postings[t]
		if posting == nil {
			posting = make(map[string]int)
			x.postings[t] = posting
		}
		posting[id] = tf
	}
}

// Remove drops a document from the index. Unknown ids are ignored.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(id)
}

func (x *Index) removeLocked(id string) {
	entry, ok := x.docs[id]
	if !ok {
		return
	}
	for t := range entry.terms {
		posting := x.postings[t]
		delete(posting, id)
		if len(posting) == 0 {
			delete(x.postings, t)
		}
	}
	x.totalLen -= entry.length
	delete(x.docs, id)
}

// Len returns the number of indexed documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// Query returns up to k document ids ranked by BM25 score, restricted by the
// filter. An empty index, an empty query, or a stopword-only query all yield
// an empty list.
func (x *Index) Query(text string, k int, f Filter) []string {
	if k <= 0 {
		return nil
	}
	terms := tokenize(text)
	if len(terms) == 0 {
		return nil
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.docs)
	if n == 0 {
		return nil
	}
	avgLen := float64(x.totalLen) / float64(n)
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[string]float64)
	for _, t := range terms {
		posting, ok := x.postings[t]
		if !ok {
			continue
		}
		df := len(posting)
		idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
		for id, tf := range posting {
			entry := x.docs[id]
			if entry.scope != f.Scope {
				continue
			}
			if f.ThreadID != "" && entry.threadID != f.ThreadID {
				continue
			}
			norm := float64(tf) * (k1 + 1) /
				(float64(tf) + k1*(1-b+b*float64(entry.length)/avgLen))
			scores[id] += idf * norm
		}
	}

	ranked := make([]string, 0, len(scores))
	for id := range scores {
		ranked = append(ranked, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i]], scores[ranked[j]]
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	return ranked
}
