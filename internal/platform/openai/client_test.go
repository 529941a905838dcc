package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	return &http.Response{
		StatusCode: status,
		Header:     make(http.Header),
		Body:       io.NopCloser(bytes.NewReader(raw)),
	}
}

func newTestClient(t *testing.T, maxRetries int, rt func(*http.Request) (*http.Response, error)) *client {
	t.Helper()
	temp := 0.2
	c, err := NewClient(logger.NewNop(), Config{
		APIKey:      "sk-test",
		BaseURL:     "http://llm.local/",
		Model:       "m-text",
		EmbedModel:  "m-embed",
		MaxRetries:  maxRetries,
		Temperature: &temp,
		HTTPClient:  &http.Client{Transport: roundTripFunc(rt)},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	cc := c.(*client)
	cc.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return cc
}

func assistantOutput(text string) map[string]any {
	return map[string]any{
		"output": []any{map[string]any{
			"type": "message",
			"role": "assistant",
			"content": []any{map[string]any{
				"type": "output_text",
				"text": text,
			}},
		}},
		"usage": map[string]any{"input_tokens": 10, "output_tokens": 2},
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.NewNop(), Config{}); err == nil {
		t.Fatalf("NewClient without key: want error")
	}
}

func TestEmbedOrdersByIndex(t *testing.T) {
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/embeddings" {
			t.Fatalf("path: want=/v1/embeddings got=%s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Fatalf("auth header: got=%q", got)
		}
		var req embeddingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if req.Model != "m-embed" || len(req.Input) != 2 || req.Input[1] != " " {
			t.Fatalf("request: got=%+v", req)
		}
		return jsonResponse(t, 200, map[string]any{"data": []any{
			map[string]any{"index": 1, "embedding": []float64{0, 1}},
			map[string]any{"index": 0, "embedding": []float64{1, 0}},
		}}), nil
	})
	out, err := c.Embed(context.Background(), []string{"hello", "  "})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if out[0][0] != 1 || out[1][1] != 1 {
		t.Fatalf("order: got=%v", out)
	}
}

func TestDoRetriesRetryableStatus(t *testing.T) {
	calls := 0
	c := newTestClient(t, 2, func(r *http.Request) (*http.Response, error) {
		calls++
		if calls < 3 {
			return jsonResponse(t, 503, map[string]any{"error": "busy"}), nil
		}
		return jsonResponse(t, 200, assistantOutput("Go Concurrency")), nil
	})
	text, err := c.GenerateText(context.Background(), "", "label this")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "Go Concurrency" || calls != 3 {
		t.Fatalf("result: text=%q calls=%d", text, calls)
	}
}

func TestDoStopsOnClientError(t *testing.T) {
	calls := 0
	c := newTestClient(t, 3, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, 401, map[string]any{"error": "bad key"}), nil
	})
	_, err := c.Embed(context.Background(), []string{"x"})
	if err == nil || calls != 1 {
		t.Fatalf("want one failing call, got calls=%d err=%v", calls, err)
	}
	var he *HTTPError
	if !errors.As(err, &he) || he.HTTPStatusCode() != 401 {
		t.Fatalf("error: got=%v", err)
	}
}

func TestGenerateJSONDropsRejectedTemperature(t *testing.T) {
	var temps []any
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		temps = append(temps, body["temperature"])
		if body["temperature"] != nil {
			return jsonResponse(t, 400, map[string]any{"error": map[string]any{"message": "Unsupported parameter: 'temperature'"}}), nil
		}
		format := body["text"].(map[string]any)["format"].(map[string]any)
		if format["type"] != "json_schema" || format["name"] != "entities" {
			t.Fatalf("format: got=%v", format)
		}
		return jsonResponse(t, 200, assistantOutput(`{"entities":[{"text":"Acme","category":"ORG"}]}`)), nil
	})
	obj, err := c.GenerateJSON(context.Background(), "sys", "Acme hired Bob", "entities", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("GenerateJSON: %v", err)
	}
	if len(temps) != 2 || temps[1] != nil {
		t.Fatalf("temperature attempts: got=%v", temps)
	}
	ents, ok := obj["entities"].([]any)
	if !ok || len(ents) != 1 {
		t.Fatalf("entities: got=%v", obj)
	}
}

func TestGeneratorAdapter(t *testing.T) {
	c := newTestClient(t, 0, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, 200, assistantOutput("ok")), nil
	})
	out, err := Generator{Client: c}.Generate(context.Background(), "p")
	if err != nil || out != "ok" {
		t.Fatalf("Generate: out=%q err=%v", out, err)
	}
}
