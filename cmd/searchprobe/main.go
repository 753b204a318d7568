// Command searchprobe exercises the hybrid search stack end to end:
// it registers one embedding backend, indexes the files under a
// directory, runs a single query, and prints the merged hits plus a
// health snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/dshills/hybridsearch/internal/embedder"
	"github.com/dshills/hybridsearch/internal/registry"
	"github.com/dshills/hybridsearch/internal/search"
	"github.com/dshills/hybridsearch/internal/similarity"
	"github.com/dshills/hybridsearch/internal/textindex"
	"github.com/dshills/hybridsearch/pkg/types"
)

var version = "dev"

func main() {
	var (
		backend   = flag.String("backend", envOr("HYBRIDSEARCH_BACKEND", "mock"), "embedding backend kind (ollama, sentence_transformer, openai, huggingface, mock)")
		endpoint  = flag.String("endpoint", os.Getenv("HYBRIDSEARCH_ENDPOINT"), "backend endpoint URL (self-hosted backends)")
		model     = flag.String("model", os.Getenv("HYBRIDSEARCH_MODEL"), "embedding model name")
		dir       = flag.String("dir", ".", "directory to index")
		query     = flag.String("query", "", "search query (required)")
		maxHits   = flag.Int("max", 10, "maximum results")
		threshold = flag.Float64("threshold", 0.3, "similarity threshold")
		exts      = flag.String("ext", ".go,.md,.txt", "comma-separated file extensions to index")
		showVer   = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("searchprobe %s\n", version)
		return
	}
	if *query == "" {
		flag.Usage()
		log.Fatal("a -query is required")
	}

	log.SetOutput(os.Stderr)
	log.Printf("searchprobe %s starting, backend=%s dir=%s", version, *backend, *dir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	coord, gw, engine, err := buildStack(*backend, *endpoint, *model)
	if err != nil {
		log.Fatalf("Failed to build search stack: %v", err)
	}
	defer gw.Close()
	defer engine.Close()

	indexed, failed := indexDirectory(ctx, coord, *dir, splitExts(*exts))
	log.Printf("indexed %d files (%d embedding failures)", indexed, failed)

	resp, err := coord.Search(ctx, types.SearchQuery{
		Text:                *query,
		MaxResults:          *maxHits,
		SimilarityThreshold: *threshold,
	})
	if err != nil {
		log.Fatalf("Search failed: %v", err)
	}

	printResponse(resp)
	printStats(coord.Stats())
}

func buildStack(kind, endpoint, model string) (*search.Coordinator, *embedder.Gateway, *similarity.Engine, error) {
	if model == "" {
		model = "all-minilm"
	}
	reg := registry.New(true)
	desc := registry.Descriptor{
		Name:         "primary",
		Kind:         registry.Kind(kind),
		Enabled:      true,
		Priority:     1,
		Endpoint:     endpoint,
		APIKey:       os.Getenv("HYBRIDSEARCH_API_KEY"),
		DefaultModel: model,
	}
	if err := reg.Register(desc); err != nil {
		return nil, nil, nil, err
	}

	gw := embedder.NewGateway(reg, embedder.NewCache(embedder.DefaultCacheSize))

	engine, err := similarity.NewEngine(similarity.WithWorkers(runtime.NumCPU()))
	if err != nil {
		return nil, nil, nil, err
	}

	content, err := textindex.NewContentCache(textindex.DefaultContentCacheSize,
		func(_ context.Context, fileID string) (string, error) {
			data, err := os.ReadFile(fileID)
			if err != nil {
				return "", err
			}
			return string(data), nil
		})
	if err != nil {
		return nil, nil, nil, err
	}

	coord, err := search.NewCoordinator(gw, engine, textindex.New(),
		search.WithModel(model),
		search.WithContentCache(content))
	if err != nil {
		return nil, nil, nil, err
	}
	return coord, gw, engine, nil
}

// indexDirectory walks root and feeds matching files to the
// coordinator. Embedding failures leave the file keyword-searchable.
func indexDirectory(ctx context.Context, coord *search.Coordinator, root string, exts map[string]bool) (indexed, failed int) {
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") && info.Name() != "." {
				return filepath.SkipDir
			}
			if info.Name() == "vendor" {
				return filepath.SkipDir
			}
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			log.Printf("skipping %s: %v", path, err)
			return nil
		}

		if err := coord.AddDocument(ctx, path, string(data)); err != nil {
			log.Printf("embedding failed for %s: %v", path, err)
			failed++
		}
		indexed++
		return ctx.Err()
	})
	if err != nil {
		log.Printf("walk stopped: %v", err)
	}
	return indexed, failed
}

func printResponse(resp *types.SearchResponse) {
	fmt.Printf("\nQuery %s completed in %s\n", resp.QueryID, resp.Duration)
	if resp.Degraded {
		fmt.Printf("DEGRADED: %s\n", strings.Join(resp.FailureReasons, "; "))
	}
	fmt.Printf("semantic=%d keyword=%d merged=%d\n\n", resp.SemanticHits, resp.KeywordHits, len(resp.Hits))

	for i, hit := range resp.Hits {
		fmt.Printf("%2d. [%.3f] %-8s %s\n", i+1, hit.Score, hit.MatchType, hit.FileID)
		if hit.Snippet != "" {
			fmt.Printf("    %s\n", hit.Snippet)
		}
	}
}

func printStats(stats search.Stats) {
	fmt.Printf("\nHealth Snapshot:\n")
	fmt.Printf("  Indexed Documents: %d\n", stats.IndexedDocs)
	fmt.Printf("  Corpus Vectors: %d\n", stats.CorpusSize)
	fmt.Printf("  Embedding Cache: %d hits, %d misses, %d evictions\n",
		stats.Gateway.Cache.Hits, stats.Gateway.Cache.Misses, stats.Gateway.Cache.Evictions)
	fmt.Printf("  Content Cache: %d hits, %d misses\n",
		stats.ContentCache.Hits, stats.ContentCache.Misses)
	for name, b := range stats.Gateway.Backends {
		fmt.Printf("  Backend %s: %d requests, %d errors\n", name, b.Requests, b.Errors)
	}
}

func splitExts(s string) map[string]bool {
	exts := make(map[string]bool)
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(strings.ToLower(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = true
	}
	return exts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
