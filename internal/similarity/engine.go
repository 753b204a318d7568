package similarity

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"

	"github.com/panjf2000/ants/v2"
)

// Common errors
var (
	ErrEmptyQueryVector = errors.New("query vector cannot be empty")
)

// Document pairs a file id with its embedding vector.
type Document struct {
	ID     string
	Vector []float32
}

// Scored is one ranked candidate.
type Scored struct {
	ID    string
	Score float64
}

// Corpus holds documents with precomputed vector norms so ranking is a
// single pass of dot products. Safe for concurrent Rank calls while
// documents are added.
type Corpus struct {
	mu    sync.RWMutex
	docs  []Document
	norms []float64
}

// NewCorpus builds a corpus from documents, precomputing norms.
func NewCorpus(docs []Document) *Corpus {
	c := &Corpus{}
	for _, doc := range docs {
		c.Add(doc)
	}
	return c
}

// Add appends a document. Documents keep insertion order, which is the
// tie-break order for equal scores.
func (c *Corpus) Add(doc Document) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs = append(c.docs, doc)
	c.norms = append(c.norms, norm(doc.Vector))
}

// Len returns the number of documents.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// snapshot returns stable views of the document and norm slices.
func (c *Corpus) snapshot() ([]Document, []float64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs[:len(c.docs):len(c.docs)], c.norms[:len(c.norms):len(c.norms)]
}

// defaultShardSize is the per-task document count when ranking is
// dispatched onto the worker pool.
const defaultShardSize = 2048

// Engine ranks a corpus of vectors against a query vector by cosine
// similarity. Large corpora are scored in shards on a bounded worker
// pool so the CPU pass never monopolizes the calling goroutine's
// scheduler under load.
type Engine struct {
	pool      *ants.Pool
	shardSize int
}

// Option configures an Engine.
type Option func(*Engine) error

// WithWorkers dispatches scoring shards onto a pool of n goroutines.
func WithWorkers(n int) Option {
	return func(e *Engine) error {
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		e.pool = pool
		return nil
	}
}

// WithShardSize overrides the per-task document count.
func WithShardSize(n int) Option {
	return func(e *Engine) error {
		if n > 0 {
			e.shardSize = n
		}
		return nil
	}
}

// NewEngine creates a similarity engine. Without options, scoring runs
// inline on the calling goroutine.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{shardSize: defaultShardSize}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Close releases the worker pool, if any.
func (e *Engine) Close() {
	if e.pool != nil {
		e.pool.Release()
	}
}

// Rank scores every corpus document against query and returns
// candidates at or above threshold, sorted descending by score with
// ties in corpus insertion order.
//
// A zero-norm query or document scores exactly 0.0, never NaN; zero
// scores survive only when threshold <= 0. Scores are clamped to
// [0, 1].
func (e *Engine) Rank(ctx context.Context, query []float32, corpus *Corpus, threshold float64) ([]Scored, error) {
	if len(query) == 0 {
		return nil, ErrEmptyQueryVector
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	docs, norms := corpus.snapshot()
	n := len(docs)
	if n == 0 {
		return nil, nil
	}

	qnorm := norm(query)
	scores := make([]float64, n)

	if e.pool != nil && n >= e.shardSize*2 {
		e.scoreParallel(query, qnorm, docs, norms, scores)
	} else {
		scoreRange(query, qnorm, docs, norms, scores, 0, n)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ranked := make([]Scored, 0, n)
	for i := 0; i < n; i++ {
		if scores[i] < threshold {
			continue
		}
		ranked = append(ranked, Scored{ID: docs[i].ID, Score: scores[i]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked, nil
}

// scoreParallel shards the corpus across the worker pool and waits for
// every shard. Shards write disjoint ranges of scores, so no locking
// is needed.
func (e *Engine) scoreParallel(query []float32, qnorm float64, docs []Document, norms, scores []float64) {
	var wg sync.WaitGroup
	for start := 0; start < len(docs); start += e.shardSize {
		start := start
		end := min(start+e.shardSize, len(docs))
		wg.Add(1)
		task := func() {
			defer wg.Done()
			scoreRange(query, qnorm, docs, norms, scores, start, end)
		}
		if err := e.pool.Submit(task); err != nil {
			// Pool released mid-flight: fall back inline.
			task()
		}
	}
	wg.Wait()
}

// scoreRange computes clamped cosine similarity for docs[start:end] in
// one contiguous pass.
func scoreRange(query []float32, qnorm float64, docs []Document, norms, scores []float64, start, end int) {
	for i := start; i < end; i++ {
		scores[i] = cosine(query, qnorm, docs[i].Vector, norms[i])
	}
}

// cosine returns the clamped cosine similarity, or exactly 0.0 when
// either norm is zero or the dimensions disagree.
func cosine(q []float32, qnorm float64, v []float32, vnorm float64) float64 {
	if qnorm == 0 || vnorm == 0 || len(q) != len(v) {
		return 0.0
	}
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	score := dot / (qnorm * vnorm)
	if score < 0 {
		return 0.0
	}
	if score > 1 {
		return 1.0
	}
	return score
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
