package similarity

import (
	"context"
	"math"
	"testing"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine()
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	return e
}

func TestRankOrdering(t *testing.T) {
	e := newTestEngine(t)
	corpus := NewCorpus([]Document{
		{ID: "orthogonal", Vector: []float32{0, 1}},
		{ID: "exact", Vector: []float32{1, 0}},
		{ID: "close", Vector: []float32{1, 0.2}},
	})

	ranked, err := e.Rank(context.Background(), []float32{1, 0}, corpus, 0.1)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}

	if len(ranked) != 2 {
		t.Fatalf("Rank() returned %d results, want 2", len(ranked))
	}
	if ranked[0].ID != "exact" || ranked[1].ID != "close" {
		t.Errorf("order = [%s %s], want [exact close]", ranked[0].ID, ranked[1].ID)
	}
	if math.Abs(ranked[0].Score-1.0) > 1e-9 {
		t.Errorf("exact match score = %v, want 1.0", ranked[0].Score)
	}
}

func TestRankZeroNormNeverNaN(t *testing.T) {
	e := newTestEngine(t)
	corpus := NewCorpus([]Document{
		{ID: "zero", Vector: []float32{0, 0, 0}},
		{ID: "ok", Vector: []float32{1, 0, 0}},
	})

	// Zero-norm document scores exactly 0.0 and is dropped at a
	// positive threshold.
	ranked, err := e.Rank(context.Background(), []float32{1, 0, 0}, corpus, 0.5)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 1 || ranked[0].ID != "ok" {
		t.Errorf("ranked = %v, want only ok", ranked)
	}

	// Threshold <= 0 admits the zero score.
	ranked, err = e.Rank(context.Background(), []float32{1, 0, 0}, corpus, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 2 {
		t.Fatalf("ranked = %v, want both", ranked)
	}
	for _, s := range ranked {
		if math.IsNaN(s.Score) {
			t.Errorf("score for %s is NaN", s.ID)
		}
	}

	// Zero-norm query: every score is exactly 0.0.
	ranked, err = e.Rank(context.Background(), []float32{0, 0, 0}, corpus, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	for _, s := range ranked {
		if s.Score != 0.0 {
			t.Errorf("score for %s = %v, want exactly 0.0", s.ID, s.Score)
		}
	}
}

func TestRankThresholdFilter(t *testing.T) {
	e := newTestEngine(t)
	corpus := NewCorpus([]Document{
		{ID: "high", Vector: []float32{1, 0}},
		{ID: "low", Vector: []float32{0.1, 1}},
	})

	ranked, err := e.Rank(context.Background(), []float32{1, 0}, corpus, 0.9)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 1 || ranked[0].ID != "high" {
		t.Errorf("ranked = %v, want only high", ranked)
	}
}

func TestRankStableTies(t *testing.T) {
	e := newTestEngine(t)

	// Identical vectors: insertion order must decide.
	corpus := NewCorpus([]Document{
		{ID: "first", Vector: []float32{1, 1}},
		{ID: "second", Vector: []float32{1, 1}},
		{ID: "third", Vector: []float32{1, 1}},
	})

	for run := 0; run < 3; run++ {
		ranked, err := e.Rank(context.Background(), []float32{1, 1}, corpus, 0)
		if err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
		want := []string{"first", "second", "third"}
		for i, id := range want {
			if ranked[i].ID != id {
				t.Errorf("run %d: ranked[%d] = %s, want %s", run, i, ranked[i].ID, id)
			}
		}
	}
}

func TestRankNegativeCosineClamped(t *testing.T) {
	e := newTestEngine(t)
	corpus := NewCorpus([]Document{
		{ID: "opposite", Vector: []float32{-1, 0}},
	})

	ranked, err := e.Rank(context.Background(), []float32{1, 0}, corpus, 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 1 || ranked[0].Score != 0.0 {
		t.Errorf("opposite vector score = %v, want clamped 0.0", ranked)
	}
}

func TestRankDimensionMismatchScoresZero(t *testing.T) {
	e := newTestEngine(t)
	corpus := NewCorpus([]Document{
		{ID: "mismatch", Vector: []float32{1, 0, 0}},
	})

	ranked, err := e.Rank(context.Background(), []float32{1, 0}, corpus, 0.1)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("mismatched document ranked: %v", ranked)
	}
}

func TestRankEmptyInputs(t *testing.T) {
	e := newTestEngine(t)

	if _, err := e.Rank(context.Background(), nil, NewCorpus(nil), 0); err == nil {
		t.Error("Rank() accepted empty query vector")
	}

	ranked, err := e.Rank(context.Background(), []float32{1}, NewCorpus(nil), 0)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(ranked) != 0 {
		t.Errorf("empty corpus produced results: %v", ranked)
	}
}

func TestRankParallelMatchesSerial(t *testing.T) {
	serial := newTestEngine(t)
	parallel, err := NewEngine(WithWorkers(4), WithShardSize(16))
	if err != nil {
		t.Fatalf("NewEngine() error = %v", err)
	}
	defer parallel.Close()

	var docs []Document
	for i := 0; i < 500; i++ {
		docs = append(docs, Document{
			ID:     string(rune('a'+i%26)) + string(rune('0'+i%10)),
			Vector: []float32{float32(i % 7), float32(i % 5), float32(i % 3)},
		})
	}
	corpus := NewCorpus(docs)
	query := []float32{1, 2, 3}

	want, err := serial.Rank(context.Background(), query, corpus, 0.2)
	if err != nil {
		t.Fatalf("serial Rank() error = %v", err)
	}
	got, err := parallel.Rank(context.Background(), query, corpus, 0.2)
	if err != nil {
		t.Fatalf("parallel Rank() error = %v", err)
	}

	if len(got) != len(want) {
		t.Fatalf("parallel returned %d results, serial %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("result %d: parallel %v, serial %v", i, got[i], want[i])
		}
	}
}

func TestCorpusAddDuringRank(t *testing.T) {
	e := newTestEngine(t)
	corpus := NewCorpus([]Document{{ID: "a", Vector: []float32{1, 0}}})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			corpus.Add(Document{ID: "b", Vector: []float32{0, 1}})
		}
	}()

	for i := 0; i < 100; i++ {
		if _, err := e.Rank(context.Background(), []float32{1, 0}, corpus, 0); err != nil {
			t.Fatalf("Rank() error = %v", err)
		}
	}
	<-done
}
