package enrich

import (
	"context"
	"errors"
	"testing"
	"time"
)

type stubLookups struct {
	kategorier map[int64]string
	lokationer map[int64]string
	enheder    map[int64]string
	delay      time.Duration
}

func (s stubLookups) lookup(ctx context.Context, table map[int64]string, id int64) (string, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	name, ok := table[id]
	if !ok {
		return "", errors.New("not found")
	}
	return name, nil
}

func (s stubLookups) KategoriNavn(ctx context.Context, id int64) (string, error) {
	return s.lookup(ctx, s.kategorier, id)
}

func (s stubLookups) LokationNavn(ctx context.Context, id int64) (string, error) {
	return s.lookup(ctx, s.lokationer, id)
}

func (s stubLookups) EnhedNavn(ctx context.Context, id int64) (string, error) {
	return s.lookup(ctx, s.enheder, id)
}

func sampleRow() map[string]any {
	return map[string]any{
		"id":          float64(7),
		"navn":        "Mælk",
		"beskrivelse": "",
		"mængde":      float64(10),
		"min_mængde":  float64(2),
		"kategori_id": float64(3),
		"lokation_id": float64(1),
		"enhed_id":    float64(5),
		"oprettet":    "2024-01-01T00:00:00Z",
	}
}

func TestNewResolverRequiresLookups(t *testing.T) {
	if _, err := NewResolver(ResolverConfig{}); err == nil {
		t.Fatal("expected error for missing lookups")
	}
}

func TestEnrichRowResolvesAllReferences(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{Lookups: stubLookups{
		kategorier: map[int64]string{3: "Mejeri"},
		lokationer: map[int64]string{1: "Køl"},
		enheder:    map[int64]string{5: "Liter"},
	}})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	item := resolver.EnrichRow(context.Background(), sampleRow())
	if item.Kategori != "Mejeri" || item.Lokation != "Køl" || item.Enhed != "Liter" {
		t.Fatalf("unexpected resolution: %#v", item)
	}
	if item.ID != 7 || item.Navn != "Mælk" || item.Maengde != 10 || item.Minimum != 2 {
		t.Fatalf("business fields not carried through: %#v", item)
	}
}

func TestEnrichRowFallsBackOnMiss(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{Lookups: stubLookups{
		lokationer: map[int64]string{1: "Køl"},
		enheder:    map[int64]string{5: "Liter"},
	}})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	item := resolver.EnrichRow(context.Background(), sampleRow())
	if item.Kategori != "Ukendt" {
		t.Fatalf("expected Ukendt kategori, got %q", item.Kategori)
	}
	if item.Lokation != "Køl" || item.Enhed != "Liter" {
		t.Fatalf("expected independent lookups to still resolve: %#v", item)
	}
}

func TestEnrichRowFallsBackOnTimeout(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{
		Lookups: stubLookups{
			kategorier: map[int64]string{3: "Mejeri"},
			lokationer: map[int64]string{1: "Køl"},
			enheder:    map[int64]string{5: "Liter"},
			delay:      200 * time.Millisecond,
		},
		LookupTimeout: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	item := resolver.EnrichRow(context.Background(), sampleRow())
	if item.Kategori != "Ukendt" || item.Lokation != "Ukendt" || item.Enhed != "Ukendt" {
		t.Fatalf("expected timeout fallbacks, got %#v", item)
	}
}

func TestEnrichRowFallsBackOnMissingColumn(t *testing.T) {
	resolver, err := NewResolver(ResolverConfig{Lookups: stubLookups{}})
	if err != nil {
		t.Fatalf("failed to construct resolver: %v", err)
	}

	row := sampleRow()
	delete(row, "kategori_id")
	item := resolver.EnrichRow(context.Background(), row)
	if item.Kategori != "Ukendt" {
		t.Fatalf("expected Ukendt for absent column, got %q", item.Kategori)
	}
}
