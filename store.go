package sentinel

import "context"

// VectorStore abstracts persistence with vector search capabilities.
type VectorStore interface {
	// --- Messages ---
	StoreMessage(ctx context.Context, msg Message) error
	GetMessages(ctx context.Context, threadID string, limit int) ([]Message, error)

	// --- Documents + Chunks ---
	StoreDocument(ctx context.Context, doc Document, chunks []Chunk) error
	SearchChunks(ctx context.Context, embedding []float32, topK int) ([]Chunk, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
