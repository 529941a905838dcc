package graph

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/platform/neo4jdb"
)

// EntityGraphParams is the UNWIND payload for one user's entity summary.
type EntityGraphParams struct {
	UserID   string
	Entities []map[string]any
	Edges    []map[string]any
}

func BuildEntityGraphParams(userID string, s entitygraph.Summary, now time.Time) EntityGraphParams {
	synced := now.UTC().Format(time.RFC3339Nano)
	p := EntityGraphParams{UserID: userID}
	seen := map[string]bool{}
	for _, n := range s.TopNodes {
		norm := normalizeName(n.Name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		p.Entities = append(p.Entities, map[string]any{
			"user_id":   userID,
			"name":      strings.TrimSpace(n.Name),
			"name_norm": norm,
			"rank":      n.Score,
			"synced_at": synced,
		})
	}
	for _, e := range s.TopEdges {
		a, b := normalizeName(e.A), normalizeName(e.B)
		if a == "" || b == "" || a == b {
			continue
		}
		p.Edges = append(p.Edges, map[string]any{
			"user_id":   userID,
			"a_norm":    a,
			"a_name":    strings.TrimSpace(e.A),
			"b_norm":    b,
			"b_name":    strings.TrimSpace(e.B),
			"weight":    e.Weight,
			"synced_at": synced,
		})
	}
	return p
}

// TopicParams is the UNWIND payload for one user's labeled clusters.
type TopicParams struct {
	UserID string
	Topics []map[string]any
	Links  []map[string]any
}

func BuildTopicParams(uc chatlog.UserClusters, now time.Time) TopicParams {
	synced := now.UTC().Format(time.RFC3339Nano)
	p := TopicParams{UserID: uc.UserID}
	ids := make([]int, 0, len(uc.Clusters))
	for id := range uc.Clusters {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		c := uc.Clusters[id]
		p.Topics = append(p.Topics, map[string]any{
			"user_id":    uc.UserID,
			"cluster_id": id,
			"title":      c.Title,
			"size":       len(c.Indices),
			"synced_at":  synced,
		})
		for _, convTitle := range c.Conversations {
			p.Links = append(p.Links, map[string]any{
				"user_id":    uc.UserID,
				"cluster_id": id,
				"title":      convTitle,
				"synced_at":  synced,
			})
		}
	}
	return p
}

// UpsertEntityGraph mirrors a user's ranked entities and co-occurrence edges.
// Edges are stored once per unordered pair, a → b in summary order.
func UpsertEntityGraph(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, userID string, s entitygraph.Summary) error {
	if client == nil || client.Driver == nil || strings.TrimSpace(userID) == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	params := BuildEntityGraphParams(userID, s, time.Now())

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	initSchema(ctx, session, log, []string{
		`CREATE CONSTRAINT user_id_unique IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE`,
		`CREATE CONSTRAINT entity_user_name_unique IF NOT EXISTS FOR (e:Entity) REQUIRE (e.user_id, e.name_norm) IS UNIQUE`,
	})

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, `
MERGE (u:User {id: $user_id})
SET u.synced_at = $synced_at
`, map[string]any{"user_id": userID, "synced_at": time.Now().UTC().Format(time.RFC3339Nano)}); err != nil {
			return nil, err
		}
		if len(params.Entities) > 0 {
			if err := run(ctx, tx, `
UNWIND $ents AS e
MATCH (u:User {id: e.user_id})
MERGE (en:Entity {user_id: e.user_id, name_norm: e.name_norm})
SET en += e
MERGE (u)-[m:MENTIONED]->(en)
SET m.rank = e.rank, m.synced_at = e.synced_at
`, map[string]any{"ents": params.Entities}); err != nil {
				return nil, err
			}
		}
		if len(params.Edges) > 0 {
			if err := run(ctx, tx, `
UNWIND $rels AS r
MERGE (a:Entity {user_id: r.user_id, name_norm: r.a_norm})
ON CREATE SET a.name = r.a_name
MERGE (b:Entity {user_id: r.user_id, name_norm: r.b_norm})
ON CREATE SET b.name = r.b_name
MERGE (a)-[e:CO_OCCURS]->(b)
SET e.weight = r.weight, e.synced_at = r.synced_at
`, map[string]any{"rels": params.Edges}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// UpsertTopics mirrors a user's labeled clusters and the conversation titles
// in each. Existing topics of the user are replaced.
func UpsertTopics(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, uc chatlog.UserClusters) error {
	if client == nil || client.Driver == nil || strings.TrimSpace(uc.UserID) == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	params := BuildTopicParams(uc, time.Now())

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	initSchema(ctx, session, log, []string{
		`CREATE CONSTRAINT topic_user_cluster_unique IF NOT EXISTS FOR (t:Topic) REQUIRE (t.user_id, t.cluster_id) IS UNIQUE`,
	})

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := run(ctx, tx, `
MATCH (t:Topic {user_id: $user_id})
DETACH DELETE t
`, map[string]any{"user_id": uc.UserID}); err != nil {
			return nil, err
		}
		if len(params.Topics) == 0 {
			return nil, nil
		}
		if err := run(ctx, tx, `
MERGE (u:User {id: $user_id})
WITH u
UNWIND $topics AS t
MERGE (tp:Topic {user_id: t.user_id, cluster_id: t.cluster_id})
SET tp += t
MERGE (u)-[h:HAS_TOPIC]->(tp)
SET h.synced_at = t.synced_at
`, map[string]any{"user_id": uc.UserID, "topics": params.Topics}); err != nil {
			return nil, err
		}
		if len(params.Links) > 0 {
			if err := run(ctx, tx, `
UNWIND $links AS l
MATCH (tp:Topic {user_id: l.user_id, cluster_id: l.cluster_id})
MERGE (c:Conversation {user_id: l.user_id, title: l.title})
MERGE (tp)-[x:CONTAINS]->(c)
SET x.synced_at = l.synced_at
`, map[string]any{"links": params.Links}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

// initSchema is best effort; constraint failures are logged and ignored.
func initSchema(ctx context.Context, session neo4j.SessionWithContext, log *logger.Logger, stmts []string) {
	for _, q := range stmts {
		res, err := session.Run(ctx, q, nil)
		if err != nil {
			if log != nil {
				log.Warn("neo4j schema init failed (continuing)", "error", err)
			}
			continue
		}
		_, _ = res.Consume(ctx)
	}
}

func run(ctx context.Context, tx neo4j.ManagedTransaction, cypher string, params map[string]any) error {
	res, err := tx.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	_, err = res.Consume(ctx)
	return err
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(s), " ")
}
