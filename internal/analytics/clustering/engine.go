package clustering

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

const DefaultK = 5

type Engine struct {
	log     *logger.Logger
	labeler *Labeler
	k       int
	opts    KMeansOptions
}

func NewEngine(log *logger.Logger, labeler *Labeler, k int) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	if k <= 0 {
		k = DefaultK
	}
	if labeler == nil {
		labeler = NewLabeler(log, nil, DefaultLabelerConfig())
	}
	return &Engine{log: log.With("service", "ClusteringEngine"), labeler: labeler, k: k, opts: DefaultKMeansOptions()}
}

// Result is the clustering of one document set.
type Result struct {
	// Users in first-seen order.
	Users []chatlog.UserClusters `json:"users"`
	// Assignments is aligned with the input documents.
	Assignments []chatlog.Assignment `json:"assignments"`
}

// ByUser indexes the per-user clusters.
func (r Result) ByUser() map[string]chatlog.UserClusters {
	out := make(map[string]chatlog.UserClusters, len(r.Users))
	for _, u := range r.Users {
		out[u.UserID] = u
	}
	return out
}

// ClusterUsers clusters each user's documents independently. Cluster indices
// refer to positions in docs. Documents without a usable vector are clustered
// on a zero vector so every document gets an assignment.
func (e *Engine) ClusterUsers(ctx context.Context, docs []chatlog.Document) (Result, error) {
	var order []string
	byUser := map[string][]int{}
	for i, d := range docs {
		if _, ok := byUser[d.UserID]; !ok {
			order = append(order, d.UserID)
		}
		byUser[d.UserID] = append(byUser[d.UserID], i)
	}

	res := Result{
		Users:       make([]chatlog.UserClusters, 0, len(order)),
		Assignments: make([]chatlog.Assignment, len(docs)),
	}
	for _, userID := range order {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		uc := e.clusterUser(ctx, userID, docs, byUser[userID], res.Assignments)
		res.Users = append(res.Users, uc)
	}
	return res, nil
}

func (e *Engine) clusterUser(ctx context.Context, userID string, docs []chatlog.Document, idx []int, assign []chatlog.Assignment) chatlog.UserClusters {
	ctx, span := observability.StartSpan(ctx, "clustering.user", attribute.Int("docs", len(idx)))
	defer span.End()
	began := time.Now()

	labels := make([]int, len(idx))
	k := 1
	if len(idx) >= 2 {
		k = min(e.k, len(idx))
		points := make([][]float64, len(idx))
		for j, i := range idx {
			points[j] = toFloat64(docs[i].Vector)
		}
		padAll(points)
		labels, _ = KMeans(points, k, e.opts)
	}

	uc := chatlog.UserClusters{UserID: userID, Clusters: make(map[int]chatlog.Cluster, k)}
	source := LabelSourceLLM
	for c := 0; c < k; c++ {
		cl := chatlog.Cluster{ID: c, Indices: []int{}, Conversations: []string{}}
		for j, i := range idx {
			if labels[j] == c {
				cl.Indices = append(cl.Indices, i)
				cl.Conversations = append(cl.Conversations, docs[i].Title)
			}
		}
		title, src := e.labeler.Label(ctx, cl.Conversations)
		if src != LabelSourceLLM {
			source = src
		}
		cl.Title = title
		uc.Clusters[c] = cl
		for _, i := range cl.Indices {
			assign[i] = chatlog.Assignment{ClusterID: c, ClusterTitle: title}
		}
	}
	observability.Current().ObserveCluster(source, time.Since(began))
	e.log.Debug("user clustered", "user_id", userID, "docs", len(idx), "clusters", k, "label_source", source)
	return uc
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

// padAll right-pads every point with zeros to the longest length.
func padAll(points [][]float64) {
	dim := 0
	for _, p := range points {
		dim = max(dim, len(p))
	}
	for i, p := range points {
		if len(p) < dim {
			points[i] = append(p, make([]float64, dim-len(p))...)
		}
	}
}
