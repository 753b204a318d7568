package textindex

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Entry is a (file id, content) pair supplied by the persistence layer.
type Entry struct {
	FileID  string
	Content string
}

// Match is a single lexical search result.
type Match struct {
	FileID string
	// Score is the summed term frequency across query terms.
	Score float64
	// TermHits is the number of distinct query terms found in the document.
	TermHits int
}

// Index is an inverted postings structure mapping tokens to documents.
type Index struct {
	mu sync.RWMutex

	// postings maps token -> file id -> occurrence count.
	postings map[string]map[string]int

	// docTokens records which tokens each document contributed, so an
	// incremental re-add can remove stale postings first.
	docTokens map[string][]string

	// docSeq assigns each document a monotonically increasing sequence
	// number on first insertion. Ties in score resolve by sequence.
	docSeq  map[string]int
	nextSeq int
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		postings:  make(map[string]map[string]int),
		docTokens: make(map[string][]string),
		docSeq:    make(map[string]int),
	}
}

// Build replaces the index contents with postings derived from corpus.
// Building twice from the same corpus yields identical rankings.
func (idx *Index) Build(corpus []Entry) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.postings = make(map[string]map[string]int)
	idx.docTokens = make(map[string][]string)
	idx.docSeq = make(map[string]int)
	idx.nextSeq = 0

	for _, e := range corpus {
		idx.addLocked(e.FileID, e.Content)
	}
}

// Add indexes a single document incrementally. Re-adding an existing
// file id replaces its previous postings; the document keeps its
// original insertion order for tie-breaking.
func (idx *Index) Add(fileID, content string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addLocked(fileID, content)
}

func (idx *Index) addLocked(fileID, content string) {
	// Remove stale postings on re-add.
	if old, ok := idx.docTokens[fileID]; ok {
		for _, tok := range old {
			if docs, ok := idx.postings[tok]; ok {
				delete(docs, fileID)
				if len(docs) == 0 {
					delete(idx.postings, tok)
				}
			}
		}
		delete(idx.docTokens, fileID)
	}

	counts := termCounts(Tokenize(content))
	if len(counts) == 0 {
		// Keep the sequence slot so ordering stays stable even if the
		// document later gains content.
		if _, ok := idx.docSeq[fileID]; !ok {
			idx.docSeq[fileID] = idx.nextSeq
			idx.nextSeq++
		}
		return
	}

	tokens := make([]string, 0, len(counts))
	for tok, n := range counts {
		docs, ok := idx.postings[tok]
		if !ok {
			docs = make(map[string]int)
			idx.postings[tok] = docs
		}
		docs[fileID] = n
		tokens = append(tokens, tok)
	}
	idx.docTokens[fileID] = tokens

	if _, ok := idx.docSeq[fileID]; !ok {
		idx.docSeq[fileID] = idx.nextSeq
		idx.nextSeq++
	}
}

// Remove deletes a document from the index. Removing an unknown id is
// a no-op.
func (idx *Index) Remove(fileID string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	old, ok := idx.docTokens[fileID]
	if !ok {
		return
	}
	for _, tok := range old {
		if docs, ok := idx.postings[tok]; ok {
			delete(docs, fileID)
			if len(docs) == 0 {
				delete(idx.postings, tok)
			}
		}
	}
	delete(idx.docTokens, fileID)
	delete(idx.docSeq, fileID)
}

// Len reports the number of indexed documents.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.docTokens)
}

// Search returns documents containing query terms, ranked by summed
// term frequency, descending. Ties resolve by document insertion
// order. maxResults <= 0 returns all matches.
func (idx *Index) Search(query string, maxResults int) []Match {
	terms := uniqueTerms(Tokenize(query))
	if len(terms) == 0 {
		return nil
	}

	idx.mu.RLock()
	scores := make(map[string]*Match)
	for _, term := range terms {
		for fileID, n := range idx.postings[term] {
			m, ok := scores[fileID]
			if !ok {
				m = &Match{FileID: fileID}
				scores[fileID] = m
			}
			m.Score += float64(n)
			m.TermHits++
		}
	}

	// The sequence number travels with the match through the sort so
	// the tie comparator never reads a stale position.
	type seqMatch struct {
		Match
		seq int
	}
	ranked := make([]seqMatch, 0, len(scores))
	for _, m := range scores {
		ranked = append(ranked, seqMatch{Match: *m, seq: idx.docSeq[m.FileID]})
	}
	idx.mu.RUnlock()

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].seq < ranked[j].seq
	})

	if maxResults > 0 && len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	matches := make([]Match, len(ranked))
	for i, r := range ranked {
		matches[i] = r.Match
	}
	return matches
}

// Tokenize splits content into lowercase tokens. Letters, digits, and
// underscores are token characters; everything else separates tokens.
func Tokenize(content string) []string {
	fields := strings.FieldsFunc(content, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		tokens = append(tokens, strings.ToLower(f))
	}
	return tokens
}

func termCounts(tokens []string) map[string]int {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	return counts
}

func uniqueTerms(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	terms := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, ok := seen[tok]; ok {
			continue
		}
		seen[tok] = struct{}{}
		terms = append(terms, tok)
	}
	return terms
}
