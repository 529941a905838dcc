package chatlog

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestPersistenceErrorCarriesBoundary(t *testing.T) {
	cause := errors.New("connection reset")
	err := fmt.Errorf("run: %w", PersistenceError("embedding.upsert", 4, 200, 250, 3, cause))

	if !IsKind(err, KindPersistence) {
		t.Fatalf("IsKind: want persistence, got=%q", KindOf(err))
	}
	var e *Error
	if !errors.As(err, &e) {
		t.Fatalf("errors.As: want *Error")
	}
	if e.BatchStart != 200 || e.BatchEnd != 250 || e.LastCompletedBatch != 3 {
		t.Fatalf("boundary: got start=%d end=%d last=%d", e.BatchStart, e.BatchEnd, e.LastCompletedBatch)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("errors.Is: cause not reachable")
	}
	if !strings.Contains(err.Error(), "last_completed=3") {
		t.Fatalf("message: got=%q", err.Error())
	}
}

func TestSchemaErrorNamesColumns(t *testing.T) {
	err := SchemaError([]string{"body", "created_at"})
	if KindOf(err) != KindSchema {
		t.Fatalf("kind: want=%q got=%q", KindSchema, KindOf(err))
	}
	if !strings.Contains(err.Error(), "body, created_at") {
		t.Fatalf("message: got=%q", err.Error())
	}
	if Wrap(KindService, "x", nil) != nil {
		t.Fatalf("Wrap(nil): want nil")
	}
}

func TestStableRowIDs(t *testing.T) {
	r := Record{ConversationID: "c1", UserID: "a@x.com", AuthorRole: "user", Body: "hi"}
	if MessageRowID(r) != MessageRowID(r) {
		t.Fatalf("message row id not stable")
	}
	r2 := r
	r2.Body = "hello"
	if MessageRowID(r) == MessageRowID(r2) {
		t.Fatalf("distinct bodies share a row id")
	}
	if ConversationRowID("a@x.com", "c1") == ConversationRowID("b@x.com", "c1") {
		t.Fatalf("conversation row id ignores user")
	}
}

func TestVectorDecodeAndMissing(t *testing.T) {
	raw, err := EncodeEmbedding([]float32{1, 2})
	if err != nil {
		t.Fatalf("EncodeEmbedding: %v", err)
	}
	row := &ChatLog{Embedding: raw, EmbeddingDim: 2}
	vec, ok := row.Vector()
	if !ok || len(vec) != 2 || vec[1] != 2 {
		t.Fatalf("Vector: ok=%v vec=%v", ok, vec)
	}
	row.EmbeddingMissing = true
	if _, ok := row.Vector(); ok {
		t.Fatalf("Vector: missing row should not decode")
	}
	if doc := DocumentFromRow(row); !doc.EmbeddingMissing {
		t.Fatalf("DocumentFromRow: want EmbeddingMissing")
	}
}
