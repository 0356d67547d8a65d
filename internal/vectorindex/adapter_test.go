package vectorindex

import (
	"context"
	"errors"
	"testing"
)

// stubEmbedder returns a deterministic vector derived from the text's
// bytes (summed into four buckets) so identical inputs map to identical
// vectors in cosine space.
type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	v := make([]float32, 4)
	for i, c := range []byte(text) {
		v[i%4] += float32(c)
	}
	return v, nil
}

func TestStoreAndSearchRoundTrip(t *testing.T) {
	adapter := NewAdapter(NewMemory(), &stubEmbedder{})
	ctx := context.Background()

	if err := adapter.Store(ctx, "insight-1", "TLS 1.3 drops a round trip", "alice", []string{"tls", "handshake"}, 1000); err != nil {
		t.Fatal(err)
	}

	results, err := adapter.Search(ctx, "TLS 1.3 drops a round trip", "alice", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 hit for an identical query, got %d", len(results))
	}
	if results[0].ID != "insight-1" || results[0].Content == "" {
		t.Fatalf("unexpected hit: %+v", results[0])
	}
	if len(results[0].Topics) != 2 {
		t.Fatalf("expected 2 topics round-tripped through metadata, got %v", results[0].Topics)
	}
}

func TestSearchScopedToUser(t *testing.T) {
	adapter := NewAdapter(NewMemory(), &stubEmbedder{})
	ctx := context.Background()
	adapter.Store(ctx, "a", "shared phrase", "alice", nil, 1)
	adapter.Store(ctx, "b", "shared phrase", "bob", nil, 1)

	results, err := adapter.Search(ctx, "shared phrase", "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.ID == "b" {
			t.Fatalf("search scoped to alice leaked bob's insight")
		}
	}
}

func TestDeleteRemovesFromIndex(t *testing.T) {
	adapter := NewAdapter(NewMemory(), &stubEmbedder{})
	ctx := context.Background()
	adapter.Store(ctx, "a", "some content", "alice", nil, 1)
	if err := adapter.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	results, err := adapter.Search(ctx, "some content", "alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Fatalf("expected deleted id to be gone, got %v", results)
	}
}

func TestSafeSearchSwallowsErrors(t *testing.T) {
	adapter := NewAdapter(NewMemory(), &stubEmbedder{err: errors.New("embedding service down")})
	results := adapter.SafeSearch(context.Background(), "anything", "alice", 5)
	if results != nil {
		t.Fatalf("expected SafeSearch to return nil on failure, got %v", results)
	}
}
