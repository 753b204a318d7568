package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/hybridsearch/internal/embedder"
	"github.com/dshills/hybridsearch/internal/similarity"
	"github.com/dshills/hybridsearch/internal/telemetry"
	"github.com/dshills/hybridsearch/internal/textindex"
	"github.com/dshills/hybridsearch/pkg/types"
)

const (
	// DefaultMaxResults caps result count when the query does not set one.
	DefaultMaxResults = 10

	// DefaultDeadline bounds a query when the query does not set one.
	DefaultDeadline = 10 * time.Second

	// DefaultKeywordBaseScore is assigned to lexical-only hits. Term
	// frequency is not a calibrated probability, so a fixed midpoint
	// score slots keyword hits below strong semantic matches.
	DefaultKeywordBaseScore = 0.5

	// DefaultBlendBoost is added when both branches agree on a file.
	DefaultBlendBoost = 0.1
)

// Embedder is the slice of the embedding gateway the coordinator uses.
type Embedder interface {
	Embed(ctx context.Context, text, model string) (*embedder.Result, error)
	Stats() embedder.GatewayStats
}

// Coordinator runs the semantic and lexical branches and merges their
// results. Construct with NewCoordinator.
type Coordinator struct {
	embedder Embedder
	engine   *similarity.Engine
	corpus   *similarity.Corpus
	index    *textindex.Index
	content  *textindex.ContentCache

	metrics *telemetry.Metrics
	logger  *slog.Logger

	model            string
	maxResults       int
	deadline         time.Duration
	keywordBaseScore float64
	blendBoost       float64
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithModel sets the embedding model used for query vectors. Empty
// defers to the gateway's primary backend default.
func WithModel(model string) Option {
	return func(c *Coordinator) { c.model = model }
}

// WithContentCache attaches a content cache for snippet extraction.
func WithContentCache(cache *textindex.ContentCache) Option {
	return func(c *Coordinator) { c.content = cache }
}

// WithMetrics attaches a telemetry sink.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// WithDefaultDeadline overrides the per-query deadline applied when
// the query does not carry one.
func WithDefaultDeadline(d time.Duration) Option {
	return func(c *Coordinator) { c.deadline = d }
}

// WithKeywordBaseScore overrides the score assigned to lexical-only hits.
func WithKeywordBaseScore(score float64) Option {
	return func(c *Coordinator) { c.keywordBaseScore = score }
}

// WithBlendBoost overrides the boost added when both branches agree.
func WithBlendBoost(boost float64) Option {
	return func(c *Coordinator) { c.blendBoost = boost }
}

// NewCoordinator creates a hybrid search coordinator over the given
// embedding gateway, similarity engine, and text index.
func NewCoordinator(emb Embedder, engine *similarity.Engine, index *textindex.Index, opts ...Option) (*Coordinator, error) {
	if emb == nil {
		return nil, fmt.Errorf("coordinator: embedder is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("coordinator: similarity engine is required")
	}
	if index == nil {
		return nil, fmt.Errorf("coordinator: text index is required")
	}

	c := &Coordinator{
		embedder:         emb,
		engine:           engine,
		corpus:           similarity.NewCorpus(nil),
		index:            index,
		logger:           slog.Default().With("component", "search"),
		maxResults:       DefaultMaxResults,
		deadline:         DefaultDeadline,
		keywordBaseScore: DefaultKeywordBaseScore,
		blendBoost:       DefaultBlendBoost,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AddVector registers a document vector in the semantic corpus.
func (c *Coordinator) AddVector(fileID string, vector []float32) {
	c.corpus.Add(similarity.Document{ID: fileID, Vector: vector})
}

// IndexContent adds or replaces a document in the lexical index and
// drops any stale cached content for it.
func (c *Coordinator) IndexContent(fileID, content string) {
	c.index.Add(fileID, content)
	if c.content != nil {
		c.content.Invalidate(fileID)
	}
}

// AddDocument indexes content lexically and embeds it for the semantic
// corpus in one call. The lexical side is updated even when embedding
// fails, so the document stays keyword-searchable.
func (c *Coordinator) AddDocument(ctx context.Context, fileID, content string) error {
	c.IndexContent(fileID, content)

	res, err := c.embedder.Embed(ctx, content, c.model)
	if err != nil {
		return fmt.Errorf("embed document %s: %w", fileID, err)
	}
	c.AddVector(fileID, res.Vector)
	return nil
}

type semanticResult struct {
	scored []similarity.Scored
	err    error
}

type lexicalResult struct {
	matches []textindex.Match
}

// Search runs both branches concurrently and returns merged, ranked
// hits. Semantic-branch failure and deadline expiry degrade the
// response instead of failing it; only an invalid query errors. When
// every branch is lost — the deadline forfeits both, or the semantic
// branch fails and the lexical branch finds nothing — the result is
// an empty degraded response carrying the failure reasons, still with
// a nil error, so callers handle one shape for every partial outcome.
func (c *Coordinator) Search(ctx context.Context, query types.SearchQuery) (*types.SearchResponse, error) {
	start := time.Now()

	if err := query.Validate(); err != nil {
		return nil, err
	}

	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = c.maxResults
	}
	deadline := query.Deadline
	if deadline <= 0 {
		deadline = c.deadline
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	semCh := make(chan semanticResult, 1)
	lexCh := make(chan lexicalResult, 1)

	go c.runSemantic(ctx, query, maxResults, semCh)
	go c.runLexical(query, maxResults, lexCh)

	resp := &types.SearchResponse{QueryID: uuid.NewString()}

	var sem semanticResult
	var lex lexicalResult
	var semDone, lexDone bool
	for !semDone || !lexDone {
		select {
		case sem = <-semCh:
			semDone = true
		case lex = <-lexCh:
			lexDone = true
		case <-ctx.Done():
			// Keep whichever branch finished; the rest is forfeit.
			if !semDone {
				sem.err = fmt.Errorf("semantic branch: %w", ctx.Err())
				semDone = true
			}
			if !lexDone {
				resp.Degraded = true
				resp.FailureReasons = append(resp.FailureReasons, fmt.Sprintf("lexical branch: %v", ctx.Err()))
				lexDone = true
			}
		}
	}

	if sem.err != nil {
		resp.Degraded = true
		resp.FailureReasons = append(resp.FailureReasons, sem.err.Error())
		c.metrics.DegradedQuery()
		c.logger.Warn("semantic branch failed, returning degraded results",
			"query_id", resp.QueryID,
			"error", sem.err)
	}

	resp.SemanticHits = len(sem.scored)
	resp.KeywordHits = len(lex.matches)
	resp.Hits = c.merge(sem.scored, lex.matches, maxResults)
	c.attachSnippets(ctx, resp.Hits, query.Text)

	resp.Duration = time.Since(start)
	c.metrics.QueryDuration(resp.Duration)
	return resp, nil
}

func (c *Coordinator) runSemantic(ctx context.Context, query types.SearchQuery, maxResults int, out chan<- semanticResult) {
	var res semanticResult

	emb, err := c.embedder.Embed(ctx, query.Text, c.model)
	if err != nil {
		res.err = fmt.Errorf("embed query: %w", err)
	} else {
		// Rank twice the requested window so merge still has
		// candidates after filtering.
		scored, err := c.engine.Rank(ctx, emb.Vector, c.corpus, query.SimilarityThreshold)
		if err != nil {
			res.err = fmt.Errorf("rank corpus: %w", err)
		} else {
			res.scored = c.filterScored(scored, query, maxResults*2)
		}
	}

	select {
	case out <- res:
	case <-ctx.Done():
	}
}

func (c *Coordinator) runLexical(query types.SearchQuery, maxResults int, out chan<- lexicalResult) {
	matches := c.index.Search(query.Text, 0)
	out <- lexicalResult{matches: c.filterMatches(matches, query, maxResults*2)}
}

func (c *Coordinator) filterScored(scored []similarity.Scored, query types.SearchQuery, limit int) []similarity.Scored {
	kept := scored[:0]
	for _, s := range scored {
		if !matchesFilters(s.ID, query) {
			continue
		}
		kept = append(kept, s)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

func (c *Coordinator) filterMatches(matches []textindex.Match, query types.SearchQuery, limit int) []textindex.Match {
	kept := matches[:0]
	for _, m := range matches {
		if !matchesFilters(m.FileID, query) {
			continue
		}
		kept = append(kept, m)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

// matchesFilters applies the query's file type and directory filters.
func matchesFilters(fileID string, query types.SearchQuery) bool {
	if len(query.FileTypes) > 0 {
		lower := strings.ToLower(fileID)
		found := false
		for _, ext := range query.FileTypes {
			if strings.HasSuffix(lower, strings.ToLower(ext)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(query.Directories) > 0 {
		norm := textindex.NormalizePath(fileID)
		found := false
		for _, dir := range query.Directories {
			prefix := textindex.NormalizePath(dir)
			if norm == prefix || strings.HasPrefix(norm, prefix+"/") {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

// merge combines both branches: semantic hits enter first, lexical
// hits upgrade or append, then score-descending sort with first-seen
// tie order and truncation.
func (c *Coordinator) merge(scored []similarity.Scored, matches []textindex.Match, maxResults int) []types.SearchHit {
	hits := make([]types.SearchHit, 0, len(scored)+len(matches))
	byID := make(map[string]int, len(scored))

	for _, s := range scored {
		byID[s.ID] = len(hits)
		hits = append(hits, types.SearchHit{
			FileID:    s.ID,
			Score:     s.Score,
			MatchType: types.MatchSemantic,
		})
	}

	for _, m := range matches {
		if i, ok := byID[m.FileID]; ok {
			hits[i].MatchType = types.MatchBoth
			hits[i].Score = clampScore(hits[i].Score + c.blendBoost)
			continue
		}
		byID[m.FileID] = len(hits)
		hits = append(hits, types.SearchHit{
			FileID:    m.FileID,
			Score:     clampScore(c.keywordBaseScore),
			MatchType: types.MatchKeyword,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > maxResults {
		hits = hits[:maxResults]
	}
	return hits
}

// attachSnippets fills hit snippets within whatever remains of the
// query deadline. Once the deadline expires, remaining hits are
// returned without snippets rather than blocking on loader reads.
func (c *Coordinator) attachSnippets(ctx context.Context, hits []types.SearchHit, queryText string) {
	if c.content == nil {
		return
	}
	for i := range hits {
		if ctx.Err() != nil {
			return
		}
		snippet, err := c.content.Snippet(ctx, hits[i].FileID, queryText, textindex.DefaultSnippetWidth)
		if err != nil {
			c.logger.Debug("snippet extraction failed", "file_id", hits[i].FileID, "error", err)
			continue
		}
		hits[i].Snippet = snippet
	}
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// Stats is a point-in-time health snapshot across the search stack.
type Stats struct {
	Gateway      embedder.GatewayStats
	ContentCache textindex.ContentCacheStats
	IndexedDocs  int
	CorpusSize   int
}

// Stats reports gateway, cache, and index health for operational tooling.
func (c *Coordinator) Stats() Stats {
	s := Stats{
		Gateway:     c.embedder.Stats(),
		IndexedDocs: c.index.Len(),
		CorpusSize:  c.corpus.Len(),
	}
	if c.content != nil {
		s.ContentCache = c.content.Stats()
	}
	return s
}
