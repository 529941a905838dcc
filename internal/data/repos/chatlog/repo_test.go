package chatlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/wrapped-backend/internal/data/repos/testutil"
	types "github.com/yungbote/wrapped-backend/internal/domain"
	cl "github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/pkg/dbctx"
)

func seedRecords(user string, n int) []*types.ChatLog {
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	rows := make([]*types.ChatLog, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, cl.MessageRow(types.Record{
			ConversationID: "c1",
			UserID:         user,
			Title:          "Rust",
			AuthorRole:     types.RoleUser,
			Body:           "message " + string(rune('a'+i)),
			CreatedAt:      base.Add(time.Duration(i) * time.Minute),
		}))
	}
	return rows
}

func TestUpsertBatchIsIdempotent(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewChatLogRepo(gdb, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: context.Background()}

	if err := repo.UpsertBatch(dbc, seedRecords("a@x.com", 3)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := repo.UpsertBatch(dbc, seedRecords("a@x.com", 3)); err != nil {
		t.Fatalf("UpsertBatch again: %v", err)
	}
	n, err := repo.Count(dbc, Filter{UserID: "a@x.com", Kind: types.KindMessage})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 3 {
		t.Fatalf("rows: want=3 got=%d", n)
	}
}

func TestUpdateEmbeddingsRoundTrip(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewChatLogRepo(gdb, testutil.Logger(t))
	ctx := context.Background()
	conv := cl.ConversationRow(types.Conversation{ID: "c1", UserID: "a@x.com", Title: "Rust", Transcript: "[USER] hi", StartedAt: time.Now()})
	if err := repo.UpsertBatch(dbctx.Context{Ctx: ctx}, []*types.ChatLog{conv}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	rec := types.EmbeddingRecord{ID: conv.ID, Vector: []float32{0.5, -1, 2}, Dim: 3}
	for i := 0; i < 2; i++ {
		if err := repo.UpsertEmbeddings(ctx, []types.EmbeddingRecord{rec}); err != nil {
			t.Fatalf("UpsertEmbeddings #%d: %v", i, err)
		}
	}

	rows, err := repo.FetchAll(ctx, Filter{Kind: types.KindConversation}, 10, 100)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("rows: want=1 got=%d", len(rows))
	}
	vec, ok := rows[0].Vector()
	if !ok || len(vec) != 3 || vec[2] != 2 {
		t.Fatalf("vector: ok=%v got=%v", ok, vec)
	}
	if rows[0].EmbeddingDim != 3 || rows[0].EmbeddedAt == nil {
		t.Fatalf("embedding meta: dim=%d at=%v", rows[0].EmbeddingDim, rows[0].EmbeddedAt)
	}

	// Re-ingesting the conversation keeps the stored vector.
	if err := repo.UpsertBatch(dbctx.Context{Ctx: ctx}, []*types.ChatLog{cl.ConversationRow(types.Conversation{ID: "c1", UserID: "a@x.com", Title: "Rust 2", Transcript: "[USER] hi", StartedAt: time.Now()})}); err != nil {
		t.Fatalf("UpsertBatch again: %v", err)
	}
	rows, _ = repo.FetchAll(ctx, Filter{Kind: types.KindConversation}, 10, 100)
	if _, ok := rows[0].Vector(); !ok || rows[0].Title != "Rust 2" {
		t.Fatalf("after re-ingest: title=%q vector ok=%v", rows[0].Title, ok)
	}

	missing := types.EmbeddingRecord{ID: conv.ID, Vector: make([]float32, 3), Dim: 3, Missing: true}
	if err := repo.UpsertEmbeddings(ctx, []types.EmbeddingRecord{missing}); err != nil {
		t.Fatalf("UpsertEmbeddings missing: %v", err)
	}
	rows, _ = repo.FetchAll(ctx, Filter{Kind: types.KindConversation}, 10, 100)
	if doc := cl.DocumentFromRow(rows[0]); !doc.EmbeddingMissing {
		t.Fatalf("missing flag not persisted")
	}
}

func TestFetchAllPagesAndCaps(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewChatLogRepo(gdb, testutil.Logger(t))
	ctx := context.Background()
	if err := repo.UpsertBatch(dbctx.Context{Ctx: ctx}, seedRecords("a@x.com", 7)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if err := repo.UpsertBatch(dbctx.Context{Ctx: ctx}, seedRecords("b@x.com", 2)); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	all, err := repo.FetchAll(ctx, Filter{UserID: "a@x.com"}, 3, 100)
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(all) != 7 {
		t.Fatalf("all: want=7 got=%d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Fatalf("order: row %d before row %d", i, i-1)
		}
	}

	capped, err := repo.FetchAll(ctx, Filter{}, 4, 5)
	if err != nil {
		t.Fatalf("FetchAll capped: %v", err)
	}
	if len(capped) != 5 {
		t.Fatalf("capped: want=5 got=%d", len(capped))
	}

	users, err := repo.ListUsers(dbctx.Context{Ctx: ctx})
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0] != "a@x.com" || users[1] != "b@x.com" {
		t.Fatalf("users: got=%v", users)
	}
}

func TestListPageRejectsBadBounds(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewChatLogRepo(gdb, testutil.Logger(t))
	_, err := repo.ListPage(dbctx.Context{Ctx: context.Background()}, Filter{}, -1, 10)
	if !cl.IsKind(err, cl.KindValidation) {
		t.Fatalf("ListPage: want validation error got=%v", err)
	}
}

func TestEmbeddingWriteAttempts(t *testing.T) {
	gdb := testutil.SQLite(t)
	repo := NewChatLogRepo(gdb, testutil.Logger(t))
	ctx := context.Background()
	conv := cl.ConversationRow(types.Conversation{ID: "c1", UserID: "a@x.com", Title: "Rust", Transcript: "[USER] hi", StartedAt: time.Now()})
	if err := repo.UpsertBatch(dbctx.Context{Ctx: ctx}, []*types.ChatLog{conv}); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}

	updates := 0
	if err := gdb.Callback().Update().Before("gorm:update").Register("test:locked", func(tx *gorm.DB) {
		updates++
		_ = tx.AddError(errors.New("database is locked"))
	}); err != nil {
		t.Fatalf("register callback: %v", err)
	}
	recs := []types.EmbeddingRecord{{ID: conv.ID, Vector: []float32{1, 2, 3}, Dim: 3}}

	if err := repo.UpsertEmbeddings(ctx, recs); err == nil {
		t.Fatalf("UpsertEmbeddings: want error")
	}
	if updates != 1 {
		t.Fatalf("pipeline path attempts: want=1 got=%d", updates)
	}

	updates = 0
	if err := repo.UpdateEmbeddings(dbctx.Context{Ctx: ctx}, recs); err == nil {
		t.Fatalf("UpdateEmbeddings: want error")
	}
	if updates != writeAttempts {
		t.Fatalf("direct path attempts: want=%d got=%d", writeAttempts, updates)
	}
}
