package entitygraph

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
)

type fakeExtractor map[string][]Entity

func (f fakeExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	if text == "boom" {
		return nil, errors.New("llm down")
	}
	return f[text], nil
}

func ents(names ...string) []Entity {
	out := make([]Entity, 0, len(names))
	for _, n := range names {
		out = append(out, Entity{Text: n, Category: "ORG"})
	}
	return out
}

func TestKeep(t *testing.T) {
	cases := []struct {
		e    Entity
		want bool
	}{
		{Entity{Text: "Acme", Category: "ORG"}, true},
		{Entity{Text: "Al", Category: "PERSON"}, false},
		{Entity{Text: " 2024 ", Category: "CARDINAL"}, false},
		{Entity{Text: "#12/3", Category: "ORG"}, false},
		{Entity{Text: "1.2.3", Category: "ORG"}, false},
		{Entity{Text: "Monday", Category: "date"}, false},
		{Entity{Text: "noon time", Category: "TIME"}, false},
		{Entity{Text: "v1.2 beta", Category: "PRODUCT"}, true},
	}
	for _, tc := range cases {
		if got := Keep(tc.e); got != tc.want {
			t.Fatalf("Keep(%q,%q): want=%v got=%v", tc.e.Text, tc.e.Category, tc.want, got)
		}
	}
}

func TestIngestCountsCoOccurrence(t *testing.T) {
	x := fakeExtractor{
		"t1": ents("Acme", "Bob"),
		"t2": ents("Bob", "Acme", "Acme", "Paris"),
	}
	b := NewBuilder(nil, x, 0)
	b.Ingest(context.Background(), "t1")
	b.Ingest(context.Background(), "t2")

	g := b.Snapshot()
	if w := g.Weight("Acme", "Bob"); w != 2 {
		t.Fatalf("Acme-Bob: want=2 got=%v", w)
	}
	if g.Weight("Bob", "Acme") != g.Weight("Acme", "Bob") {
		t.Fatalf("weights not symmetric")
	}
	if w := g.Weight("Acme", "Paris"); w != 1 {
		t.Fatalf("Acme-Paris: want=1 got=%v", w)
	}
	if w := g.Weight("Acme", "Acme"); w != 0 {
		t.Fatalf("self edge: want=0 got=%v", w)
	}
	if g.NodeCount() != 3 || g.EdgeCount() != 3 {
		t.Fatalf("shape: want=3/3 got=%d/%d", g.NodeCount(), g.EdgeCount())
	}
}

func TestIngestDegradesOnExtractorError(t *testing.T) {
	b := NewBuilder(nil, fakeExtractor{}, 0)
	if got := b.Ingest(context.Background(), "boom"); len(got) != 0 {
		t.Fatalf("entities: want none got=%v", got)
	}
	if b.Failures() != 1 {
		t.Fatalf("failures: want=1 got=%d", b.Failures())
	}
	if s := b.Summarize(5); s.Nodes != 0 || len(s.TopNodes) != 0 {
		t.Fatalf("summary: want empty got=%+v", s)
	}
}

func TestSummarizeIsDeterministic(t *testing.T) {
	build := func() Summary {
		b := NewBuilder(nil, nil, 0)
		b.Add([]string{"Acme", "Bob", "Carol"})
		b.Add([]string{"Acme", "Bob"})
		b.Add([]string{"Dave"})
		return b.Summarize(2)
	}
	a, c := build(), build()
	if !reflect.DeepEqual(a, c) {
		t.Fatalf("summaries differ:\n%+v\n%+v", a, c)
	}
	if len(a.TopNodes) != 2 || len(a.TopEdges) != 2 {
		t.Fatalf("top-k: got nodes=%d edges=%d", len(a.TopNodes), len(a.TopEdges))
	}
	if a.TopEdges[0].A != "Acme" || a.TopEdges[0].B != "Bob" || a.TopEdges[0].Weight != 2 {
		t.Fatalf("top edge: got=%+v", a.TopEdges[0])
	}
	// Acme and Bob tie on score; insertion order breaks the tie.
	if a.TopNodes[0].Name != "Acme" || a.TopNodes[1].Name != "Bob" {
		t.Fatalf("top nodes: got=%+v", a.TopNodes)
	}
}

func TestPageRankSumsToOne(t *testing.T) {
	g := NewGraph()
	g.AddEdge("a", "b", 3)
	g.AddEdge("b", "c", 1)
	g.AddNode("lonely")
	sum := 0.0
	for _, s := range g.PageRank(DefaultAlpha, DefaultMaxIter, DefaultTolerance) {
		sum += s
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("rank mass: want=1 got=%v", sum)
	}
}
