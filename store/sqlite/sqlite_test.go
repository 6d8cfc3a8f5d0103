package sqlite

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestStoreAndGetMessages(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	thread := "user_42_987654"
	msgs := []sentinel.Message{
		{ID: sentinel.NewID(), ThreadID: thread, Role: "user", Content: "Hello", CreatedAt: 1000},
		{ID: sentinel.NewID(), ThreadID: thread, Role: "assistant", Content: "Hi!", CreatedAt: 1001},
		{ID: sentinel.NewID(), ThreadID: thread, Role: "user", Content: "Bye", CreatedAt: 1002},
	}
	for _, m := range msgs {
		if err := s.StoreMessage(ctx, m); err != nil {
			t.Fatalf("StoreMessage: %v", err)
		}
	}

	got, err := s.GetMessages(ctx, thread, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3, got %d", len(got))
	}
	if got[0].Content != "Hello" || got[2].Content != "Bye" {
		t.Error("messages not in chronological order")
	}

	// Limit returns most recent, still oldest-first.
	got2, _ := s.GetMessages(ctx, thread, 2)
	if len(got2) != 2 || got2[0].Content != "Hi!" {
		t.Errorf("limit 2: expected [Hi!, Bye], got %v", got2)
	}
}

func TestGetMessagesThreadIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	parent := "user_7_100"
	sub := sentinel.SubThreadID(parent, "calendar")

	s.StoreMessage(ctx, sentinel.Message{ID: sentinel.NewID(), ThreadID: parent, Role: "user", Content: "route me", CreatedAt: 1})
	s.StoreMessage(ctx, sentinel.Message{ID: sentinel.NewID(), ThreadID: sub, Role: "user", Content: "add event", CreatedAt: 2})

	got, err := s.GetMessages(ctx, sub, 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 1 || got[0].Content != "add event" {
		t.Errorf("sub-thread leaked parent history: %+v", got)
	}
}

func TestStoreMessageWithEmbedding(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	m := sentinel.Message{
		ID: sentinel.NewID(), ThreadID: "t1", Role: "user",
		Content: "embedded", Embedding: []float32{0.1, 0.2, 0.3}, CreatedAt: 1,
	}
	if err := s.StoreMessage(ctx, m); err != nil {
		t.Fatalf("StoreMessage: %v", err)
	}

	// Replacing with the same ID should not error or duplicate.
	m.Content = "updated"
	if err := s.StoreMessage(ctx, m); err != nil {
		t.Fatalf("StoreMessage replace: %v", err)
	}
	got, _ := s.GetMessages(ctx, "t1", 10)
	if len(got) != 1 || got[0].Content != "updated" {
		t.Errorf("expected single updated message, got %+v", got)
	}
}

func TestStoreDocumentAndSearchChunks(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := sentinel.Document{
		ID: "doc-1", Title: "CS 171 Syllabus", Source: "cs171.pdf",
		Content: "full text", CreatedAt: sentinel.NowUnix(),
	}
	chunks := []sentinel.Chunk{
		{ID: "c1", DocumentID: "doc-1", Content: "office hours", ChunkIndex: 0, Embedding: []float32{1, 0, 0}},
		{ID: "c2", DocumentID: "doc-1", Content: "grading policy", ChunkIndex: 1, Embedding: []float32{0, 1, 0}},
		{ID: "c3", DocumentID: "doc-1", Content: "late policy", ChunkIndex: 2, Embedding: []float32{0.9, 0.1, 0}},
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	got, err := s.SearchChunks(ctx, []float32{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0].ID != "c1" {
		t.Errorf("expected best match c1, got %s", got[0].ID)
	}
	if got[1].ID != "c3" {
		t.Errorf("expected second match c3, got %s", got[1].ID)
	}
}

func TestSearchChunksSkipsUnembedded(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := sentinel.Document{ID: "doc-2", Title: "T", Source: "s", CreatedAt: 1}
	chunks := []sentinel.Chunk{
		{ID: "e1", DocumentID: "doc-2", Content: "has embedding", ChunkIndex: 0, Embedding: []float32{1, 0}},
		{ID: "e2", DocumentID: "doc-2", Content: "no embedding", ChunkIndex: 1},
	}
	if err := s.StoreDocument(ctx, doc, chunks); err != nil {
		t.Fatalf("StoreDocument: %v", err)
	}

	got, err := s.SearchChunks(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatalf("SearchChunks: %v", err)
	}
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("expected only embedded chunk, got %+v", got)
	}
}

func TestConcurrentWrites(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			m := sentinel.Message{
				ID: sentinel.NewID(), ThreadID: "concurrent",
				Role: "user", Content: fmt.Sprintf("msg %d", n), CreatedAt: int64(n),
			}
			if err := s.StoreMessage(ctx, m); err != nil {
				t.Errorf("StoreMessage: %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := s.GetMessages(ctx, "concurrent", 100)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 20 {
		t.Errorf("expected 20 messages, got %d", len(got))
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 2}, []float32{1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := cosineSimilarity(tt.a, tt.b)
			if math.Abs(float64(got-tt.want)) > 1e-6 {
				t.Errorf("cosineSimilarity(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestEmbeddingRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	out, err := deserializeEmbedding(serializeEmbedding(in))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length mismatch: %d vs %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("index %d: %v != %v", i, out[i], in[i])
		}
	}
}
