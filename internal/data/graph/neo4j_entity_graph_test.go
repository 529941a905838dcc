package graph

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

func TestBuildEntityGraphParamsNormalizesAndDedupes(t *testing.T) {
	s := entitygraph.Summary{
		TopNodes: []entitygraph.RankedNode{{Name: " Acme  Corp ", Score: 0.5}, {Name: "acme corp", Score: 0.2}, {Name: "Bob", Score: 0.3}},
		TopEdges: []entitygraph.WeightedEdge{{A: "Acme Corp", B: "Bob", Weight: 2}, {A: "Bob", B: "bob", Weight: 1}},
	}
	p := BuildEntityGraphParams("u1", s, time.Unix(0, 0))
	if len(p.Entities) != 2 {
		t.Fatalf("entities: want=2 got=%d", len(p.Entities))
	}
	if p.Entities[0]["name_norm"] != "acme corp" || p.Entities[0]["name"] != "Acme  Corp" {
		t.Fatalf("entity[0]: got=%v", p.Entities[0])
	}
	if len(p.Edges) != 1 || p.Edges[0]["weight"] != 2.0 || p.Edges[0]["b_norm"] != "bob" {
		t.Fatalf("edges: got=%v", p.Edges)
	}
	if p.Edges[0]["synced_at"] != "1970-01-01T00:00:00Z" {
		t.Fatalf("synced_at: got=%v", p.Edges[0]["synced_at"])
	}
}

func TestBuildTopicParamsOrdersClusters(t *testing.T) {
	uc := chatlog.UserClusters{
		UserID: "a@x.com",
		Clusters: map[int]chatlog.Cluster{
			1: {ID: 1, Title: "Cooking", Indices: []int{2}, Conversations: []string{"Pasta"}},
			0: {ID: 0, Title: "Rust & Lifetimes", Indices: []int{0, 1}, Conversations: []string{"Rust borrow", "Rust lifetimes"}},
		},
	}
	p := BuildTopicParams(uc, time.Now())
	if len(p.Topics) != 2 || p.Topics[0]["cluster_id"] != 0 || p.Topics[0]["size"] != 2 {
		t.Fatalf("topics: got=%v", p.Topics)
	}
	if len(p.Links) != 3 || p.Links[2]["title"] != "Pasta" {
		t.Fatalf("links: got=%v", p.Links)
	}
}

func TestUpsertWithoutClientIsNoop(t *testing.T) {
	if err := UpsertEntityGraph(context.Background(), nil, nil, "u", entitygraph.Summary{}); err != nil {
		t.Fatalf("UpsertEntityGraph: %v", err)
	}
	if err := UpsertTopics(context.Background(), nil, nil, chatlog.UserClusters{UserID: "u"}); err != nil {
		t.Fatalf("UpsertTopics: %v", err)
	}
}
