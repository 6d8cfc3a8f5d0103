// Command sentinel-ingest loads syllabus files into the vector store so the
// advisor agent can search them. It walks a directory, extracting text from
// PDF, markdown, and plain-text files.
//
// Usage:
//
//	sentinel-ingest -dir ./syllabi [-config sentinel.toml]
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/key-r-code/drexel-sentinel/ingest"
	"github.com/key-r-code/drexel-sentinel/ingest/markdown"
	"github.com/key-r-code/drexel-sentinel/ingest/pdf"
	"github.com/key-r-code/drexel-sentinel/internal/config"
	"github.com/key-r-code/drexel-sentinel/provider/gemini"
	"github.com/key-r-code/drexel-sentinel/store/sqlite"
)

var ingestExts = map[string]bool{
	".pdf": true,
	".md":  true,
	".txt": true,
}

func main() {
	dir := flag.String("dir", "", "directory of syllabus files to ingest")
	configPath := flag.String("config", os.Getenv("SENTINEL_CONFIG"), "path to config file")
	flag.Parse()

	if *dir == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := config.Load(*configPath)

	embedding := gemini.NewEmbedding(cfg.Embedding.APIKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)

	store := sqlite.New(cfg.Database.Path, sqlite.WithLogger(logger))
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		log.Fatalf("sentinel-ingest: init store: %v", err)
	}

	ingestor := ingest.NewIngestor(store, embedding,
		ingest.WithExtractor("pdf", pdf.New()),
		ingest.WithExtractor("md", markdown.New()),
		ingest.WithLogger(logger),
	)

	var files, failed int
	err := filepath.WalkDir(*dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !ingestExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			logger.Error("read failed", "file", path, "error", err)
			failed++
			return nil
		}

		result, err := ingestor.IngestFile(ctx, content, filepath.Base(path))
		if err != nil {
			logger.Error("ingest failed", "file", path, "error", err)
			failed++
			return nil
		}
		fmt.Printf("ingested %s (%d chunks)\n", result.Title, result.ChunkCount)
		files++
		return nil
	})
	if err != nil {
		log.Fatalf("sentinel-ingest: walk %s: %v", *dir, err)
	}

	fmt.Printf("done: %d file(s) ingested, %d failed\n", files, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
