package entitygraph

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Entity struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

type Extractor interface {
	Extract(ctx context.Context, text string) ([]Entity, error)
}

var symbolOnly = regexp.MustCompile(`^[#\d/_.]+$`)

// Keep reports whether an extracted entity is worth a graph node.
func Keep(e Entity) bool {
	text := strings.TrimSpace(e.Text)
	if utf8.RuneCountInString(text) < 3 {
		return false
	}
	if allDigits(text) || symbolOnly.MatchString(text) {
		return false
	}
	switch strings.ToUpper(strings.TrimSpace(e.Category)) {
	case "DATE", "TIME":
		return false
	}
	return true
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

// Filter applies Keep and de-duplicates by trimmed text, first seen wins.
func Filter(ents []Entity) []string {
	seen := make(map[string]struct{}, len(ents))
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		if !Keep(e) {
			continue
		}
		text := strings.TrimSpace(e.Text)
		if _, ok := seen[text]; ok {
			continue
		}
		seen[text] = struct{}{}
		out = append(out, text)
	}
	return out
}

// JSONGenerator is the schema-constrained completion call of the LLM client.
type JSONGenerator interface {
	GenerateJSON(ctx context.Context, system string, user string, schemaName string, schema map[string]any) (map[string]any, error)
}

const extractSystemPrompt = "Extract named entities from the conversation. " +
	"Return people, organizations, products, places, technologies and other proper nouns. " +
	"Use categories such as PERSON, ORG, PRODUCT, GPE, TECH, EVENT, DATE, TIME."

var entitySchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"required":             []string{"entities"},
	"properties": map[string]any{
		"entities": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"text", "category"},
				"properties": map[string]any{
					"text":     map[string]any{"type": "string"},
					"category": map[string]any{"type": "string"},
				},
			},
		},
	},
}

// LLMExtractor asks a JSON-mode model for entities.
type LLMExtractor struct {
	gen      JSONGenerator
	maxChars int
}

func NewLLMExtractor(gen JSONGenerator, maxChars int) *LLMExtractor {
	if maxChars <= 0 {
		maxChars = 12000
	}
	return &LLMExtractor{gen: gen, maxChars: maxChars}
}

func (x *LLMExtractor) Extract(ctx context.Context, text string) ([]Entity, error) {
	if x == nil || x.gen == nil {
		return nil, fmt.Errorf("entity extractor not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	if r := []rune(text); len(r) > x.maxChars {
		text = string(r[:x.maxChars])
	}
	obj, err := x.gen.GenerateJSON(ctx, extractSystemPrompt, text, "entities", entitySchema)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	var out struct {
		Entities []Entity `json:"entities"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode entities: %w", err)
	}
	return out.Entities, nil
}
