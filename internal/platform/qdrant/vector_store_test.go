package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

const testPointID = "5b1c0a39-0d7c-4d7b-9a6e-1f0a4c2d3e4f"

func TestVectorStoreUpsertRequestShape(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.Method != http.MethodPut {
			t.Fatalf("method: want=%s got=%s", http.MethodPut, r.Method)
		}
		if r.URL.Path != "/collections/convs/points" || r.URL.RawQuery != "wait=true" {
			t.Fatalf("url: got=%s", r.URL.String())
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})

	err := s.Upsert(context.Background(), []Point{
		{ID: testPointID, Vector: []float32{1, 2, 3}, UserID: "a@x.com", ConversationID: "c1", Title: "Rust"},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	points, ok := captured["points"].([]any)
	if !ok || len(points) != 1 {
		t.Fatalf("points: got=%v", captured["points"])
	}
	first := points[0].(map[string]any)
	if first["id"] != testPointID {
		t.Fatalf("id: want=%s got=%v", testPointID, first["id"])
	}
	payload := first["payload"].(map[string]any)
	if payload[payloadUserKey] != "a@x.com" || payload[payloadConversationKey] != "c1" || payload[payloadTitleKey] != "Rust" {
		t.Fatalf("payload: got=%v", payload)
	}
}

func TestVectorStoreUpsertRejectsDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		t.Fatalf("unexpected request %s", r.URL.Path)
		return nil, nil
	})
	err := s.Upsert(context.Background(), []Point{{ID: testPointID, Vector: []float32{1, 2}}})
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("Upsert: want validation error got=%v", err)
	}
}

func TestVectorStoreSearchFiltersByUserAndSorts(t *testing.T) {
	var captured map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/collections/convs/points/search" {
			t.Fatalf("path: got=%s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, []map[string]any{
			{"id": "b", "score": 0.4, "payload": map[string]any{"user_id": "a@x.com", "title": "Low"}},
			{"id": "a", "score": 0.9, "payload": map[string]any{"user_id": "a@x.com", "title": "High"}},
		}), nil
	})

	got, err := s.Search(context.Background(), "a@x.com", []float32{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 2 || got[0].ID != "a" || got[0].Title != "High" || got[1].Score != 0.4 {
		t.Fatalf("matches: got=%+v", got)
	}
	filter := captured["filter"].(map[string]any)
	must := filter["must"].([]any)
	cond := must[0].(map[string]any)
	if cond["key"] != payloadUserKey {
		t.Fatalf("filter key: got=%v", cond["key"])
	}
	if v := cond["match"].(map[string]any)["value"]; v != "a@x.com" {
		t.Fatalf("filter value: got=%v", v)
	}
	if captured["limit"] != float64(5) {
		t.Fatalf("limit: want=5 got=%v", captured["limit"])
	}
}

func TestVectorStoreDeleteDedupes(t *testing.T) {
	var captured map[string]any
	calls := 0
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		calls++
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		return okResponse(t, map[string]any{"status": "acknowledged"}), nil
	})
	if err := s.Delete(context.Background(), []string{"x", " x ", "", "y"}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if calls != 1 {
		t.Fatalf("calls: want=1 got=%d", calls)
	}
	if ids := captured["points"].([]any); len(ids) != 2 {
		t.Fatalf("ids: want=2 got=%v", ids)
	}
	if err := s.Delete(context.Background(), []string{" "}); err != nil || calls != 1 {
		t.Fatalf("empty delete should not call: calls=%d err=%v", calls, err)
	}
}

func TestEnsureCollectionCreatesMissing(t *testing.T) {
	var created map[string]any
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		switch {
		case r.URL.Path == "/readyz":
			return rawResponse(http.StatusOK, ""), nil
		case r.Method == http.MethodGet && r.URL.Path == "/collections/convs":
			return rawResponse(http.StatusNotFound, `{"status":{"error":"Not found"}}`), nil
		case r.Method == http.MethodPut && r.URL.Path == "/collections/convs":
			if err := json.NewDecoder(r.Body).Decode(&created); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			return okResponse(t, true), nil
		}
		t.Fatalf("unexpected %s %s", r.Method, r.URL.Path)
		return nil, nil
	})
	if err := s.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	vectors := created["vectors"].(map[string]any)
	if vectors["size"] != float64(3) || vectors["distance"] != "Cosine" {
		t.Fatalf("create body: got=%v", vectors)
	}
}

func TestEnsureCollectionDimensionMismatch(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path == "/readyz" {
			return rawResponse(http.StatusOK, ""), nil
		}
		return okResponse(t, map[string]any{
			"config": map[string]any{"params": map[string]any{"vectors": map[string]any{"size": 8}}},
		}), nil
	})
	err := s.EnsureCollection(context.Background())
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorValidation {
		t.Fatalf("EnsureCollection: want validation error got=%v", err)
	}
}

func TestDoJSONEnvelopeError(t *testing.T) {
	s := newTestVectorStore(t, func(r *http.Request) (*http.Response, error) {
		return rawResponse(http.StatusOK, `{"result":null,"status":{"error":"bad filter"}}`), nil
	})
	_, err := s.Search(context.Background(), "u", []float32{1, 0, 0}, 1)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorQueryFailed || oe.Message != "bad filter" {
		t.Fatalf("Search: got=%v", err)
	}
}

func TestClassifyHTTPCallErrorTimeout(t *testing.T) {
	err := classifyHTTPCallError("search", "timeout", context.DeadlineExceeded)
	var oe *OperationError
	if !errors.As(err, &oe) || oe.Code != OperationErrorTimeout {
		t.Fatalf("timeout: got=%v", err)
	}
	err = classifyHTTPCallError("search", "transport", fmt.Errorf("boom"))
	if !errors.As(err, &oe) || oe.Code != OperationErrorTransportFailed {
		t.Fatalf("transport: got=%v", err)
	}
}

func newTestVectorStore(t *testing.T, roundTrip func(*http.Request) (*http.Response, error)) *VectorStore {
	t.Helper()
	cfg := Config{URL: "http://qdrant.local", Collection: "convs", VectorDim: 3}
	return newVectorStore(logger.NewNop(), cfg, &http.Client{Transport: roundTripFunc(roundTrip)})
}

func okResponse(t *testing.T, result any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"result": result, "status": "ok", "time": 0.001})
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return rawResponse(http.StatusOK, string(raw))
}

func rawResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}
