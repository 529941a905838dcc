package retrieval

import (
	"sort"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

const (
	DefaultCompareTopN = 5
	DefaultCompareMin  = 0.7
	DefaultRecent      = 3
)

type Pair struct {
	Similarity float64          `json:"similarity"`
	A          chatlog.Document `json:"a"`
	B          chatlog.Document `json:"b"`
}

// CompareUsers returns the most similar cross-user conversation pairs with
// similarity at or above min, best first.
func CompareUsers(a, b []chatlog.Document, topN int, min float64) []Pair {
	if topN <= 0 {
		topN = DefaultCompareTopN
	}
	pairs := make([]Pair, 0)
	for _, x := range a {
		if x.EmbeddingMissing || len(x.Vector) == 0 {
			continue
		}
		for _, y := range b {
			if y.EmbeddingMissing || len(y.Vector) == 0 {
				continue
			}
			if s := Cosine(x.Vector, y.Vector); s >= min {
				pairs = append(pairs, Pair{Similarity: s, A: x, B: y})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Similarity > pairs[j].Similarity })
	if len(pairs) > topN {
		pairs = pairs[:topN]
	}
	return pairs
}

// RecentContext returns the n latest documents, newest first.
func RecentContext(docs []chatlog.Document, n int) []chatlog.Document {
	if n <= 0 {
		n = DefaultRecent
	}
	out := append([]chatlog.Document(nil), docs...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
