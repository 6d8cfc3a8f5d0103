package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

// Extractor converts a raw file into plain text.
type Extractor interface {
	Extract(content []byte) (string, error)
}

// PlainTextExtractor passes file content through unchanged.
type PlainTextExtractor struct{}

func (PlainTextExtractor) Extract(content []byte) (string, error) {
	return string(content), nil
}

// Result holds the outcome of an ingest operation.
type Result struct {
	DocumentID string
	Title      string
	ChunkCount int
}

// Ingestor runs the full pipeline: extract, chunk, embed, store.
type Ingestor struct {
	store      sentinel.VectorStore
	embedding  sentinel.EmbeddingProvider
	chunker    Chunker
	extractors map[string]Extractor // keyed by lowercase extension without dot
	batchSize  int
	logger     *slog.Logger
}

// Option configures an Ingestor.
type Option func(*Ingestor)

// WithChunker replaces the default recursive chunker.
func WithChunker(c Chunker) Option {
	return func(ing *Ingestor) { ing.chunker = c }
}

// WithExtractor registers an extractor for a file extension (without dot).
func WithExtractor(ext string, e Extractor) Option {
	return func(ing *Ingestor) { ing.extractors[ext] = e }
}

// WithBatchSize sets how many chunks are embedded per provider call.
func WithBatchSize(n int) Option {
	return func(ing *Ingestor) {
		if n > 0 {
			ing.batchSize = n
		}
	}
}

// WithLogger sets a structured logger for the ingestor.
func WithLogger(l *slog.Logger) Option {
	return func(ing *Ingestor) { ing.logger = l }
}

// NewIngestor creates an Ingestor. Unknown extensions fall back to plain
// text extraction. PDF and markdown extractors live in subpackages and are
// registered by the caller via WithExtractor.
func NewIngestor(store sentinel.VectorStore, emb sentinel.EmbeddingProvider, opts ...Option) *Ingestor {
	ing := &Ingestor{
		store:     store,
		embedding: emb,
		chunker:   NewRecursiveChunker(DefaultChunkerConfig()),
		extractors: map[string]Extractor{
			"txt": PlainTextExtractor{},
		},
		batchSize: 64,
		logger:    slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(ing)
	}
	return ing
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// IngestFile extracts, chunks, embeds, and stores one file. The extractor
// is chosen by filename extension.
func (ing *Ingestor) IngestFile(ctx context.Context, content []byte, filename string) (Result, error) {
	ext := normalizeExt(filename)
	extractor, ok := ing.extractors[ext]
	if !ok {
		extractor = PlainTextExtractor{}
	}

	text, err := extractor.Extract(content)
	if err != nil {
		return Result{}, fmt.Errorf("extract %s: %w", filename, err)
	}
	return ing.IngestText(ctx, text, filename, filepath.Base(filename))
}

// IngestText chunks, embeds, and stores plain text as one document.
func (ing *Ingestor) IngestText(ctx context.Context, text, source, title string) (Result, error) {
	docID := sentinel.NewID()
	doc := sentinel.Document{
		ID:        docID,
		Title:     title,
		Source:    source,
		Content:   text,
		CreatedAt: sentinel.NowUnix(),
	}

	pieces := ing.chunker.Chunk(text)
	chunks := make([]sentinel.Chunk, len(pieces))
	for i, p := range pieces {
		chunks[i] = sentinel.Chunk{
			ID:         sentinel.NewID(),
			DocumentID: docID,
			Content:    p,
			ChunkIndex: i,
		}
	}

	if err := ing.embedChunks(ctx, chunks); err != nil {
		return Result{}, err
	}

	if err := ing.store.StoreDocument(ctx, doc, chunks); err != nil {
		return Result{}, fmt.Errorf("store document: %w", err)
	}

	ing.logger.Info("ingested document", "title", title, "source", source, "chunks", len(chunks))
	return Result{DocumentID: docID, Title: title, ChunkCount: len(chunks)}, nil
}

// embedChunks embeds chunk contents in batches.
func (ing *Ingestor) embedChunks(ctx context.Context, chunks []sentinel.Chunk) error {
	for start := 0; start < len(chunks); start += ing.batchSize {
		end := start + ing.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Content
		}
		vecs, err := ing.embedding.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed chunks: %w", err)
		}
		if len(vecs) != len(texts) {
			return fmt.Errorf("embed chunks: got %d vectors for %d texts", len(vecs), len(texts))
		}
		for i := start; i < end; i++ {
			chunks[i].Embedding = vecs[i-start]
		}
	}
	return nil
}

func normalizeExt(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return ""
	}
	ext = ext[1:]
	out := make([]byte, len(ext))
	for i := 0; i < len(ext); i++ {
		c := ext[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
