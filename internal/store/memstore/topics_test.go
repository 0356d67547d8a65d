package memstore

import (
	"context"
	"testing"

	"convograph/internal/graphmodel"
)

func TestLinkTopicsReinforcementMonotoneAndClamped(t *testing.T) {
	s := New()
	ctx := context.Background()

	a, err := s.GetOrCreateTopic(ctx, "tls handshake")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GetOrCreateTopic(ctx, "certificate pinning")
	if err != nil {
		t.Fatal(err)
	}

	rel, err := s.LinkTopics(ctx, a.ID, b.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if rel.Strength != graphmodel.DefaultRelationStrength {
		t.Fatalf("first link strength = %v, want %v", rel.Strength, graphmodel.DefaultRelationStrength)
	}

	prev := rel.Strength
	for i := 0; i < 10; i++ {
		rel, err = s.LinkTopics(ctx, a.ID, b.ID, 0)
		if err != nil {
			t.Fatal(err)
		}
		if rel.Strength < prev {
			t.Fatalf("reinforcement decreased strength: %v -> %v", prev, rel.Strength)
		}
		if rel.Strength > 1 {
			t.Fatalf("strength exceeded clamp ceiling: %v", rel.Strength)
		}
		prev = rel.Strength
	}
	if prev != 1 {
		t.Fatalf("expected clamped strength of 1 after many reinforcements, got %v", prev)
	}
}

func TestLinkTopicsOrderIndependent(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, _ := s.GetOrCreateTopic(ctx, "go")
	b, _ := s.GetOrCreateTopic(ctx, "concurrency")

	if _, err := s.LinkTopics(ctx, a.ID, b.ID, 0); err != nil {
		t.Fatal(err)
	}
	rel, err := s.LinkTopics(ctx, b.ID, a.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	want := graphmodel.DefaultRelationStrength + graphmodel.RelationReinforcement
	if rel.Strength != want {
		t.Fatalf("linking in reverse order should reinforce the same edge: got %v, want %v", rel.Strength, want)
	}
}

func TestGetOrCreateTopicIdempotentOnNormalizedName(t *testing.T) {
	s := New()
	ctx := context.Background()
	a, err := s.GetOrCreateTopic(ctx, "TLS Handshake")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GetOrCreateTopic(ctx, "  tls-handshake  ")
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != b.ID {
		t.Fatalf("expected the same topic id for equivalent raw names, got %s and %s", a.ID, b.ID)
	}
}
