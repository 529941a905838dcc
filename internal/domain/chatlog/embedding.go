package chatlog

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// EmbeddingRecord is one generated vector keyed by its row id. Vector always
// has exactly Dim components; Missing marks a zero-vector fallback.
type EmbeddingRecord struct {
	ID      uuid.UUID
	Vector  []float32
	Dim     int
	Missing bool
}

type embeddingDoc struct {
	Conversation []float32 `json:"conversation"`
}

// EncodeEmbedding produces the stored `{"conversation": [...]}` document.
func EncodeEmbedding(vec []float32) (datatypes.JSON, error) {
	if vec == nil {
		vec = []float32{}
	}
	raw, err := json.Marshal(embeddingDoc{Conversation: vec})
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

// Vector decodes the stored embedding. ok is false when there is no usable
// vector: never embedded, flagged missing, or undecodable.
func (c *ChatLog) Vector() ([]float32, bool) {
	if c == nil || len(c.Embedding) == 0 || c.EmbeddingMissing {
		return nil, false
	}
	var doc embeddingDoc
	if err := json.Unmarshal(c.Embedding, &doc); err != nil || len(doc.Conversation) == 0 {
		return nil, false
	}
	return doc.Conversation, true
}

// Document is the clustering and retrieval unit built from a conversation row.
type Document struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	ConversationID   string    `json:"conversation_id"`
	Title            string    `json:"title"`
	Body             string    `json:"body"`
	CreatedAt        time.Time `json:"created_at"`
	Vector           []float32 `json:"-"`
	EmbeddingMissing bool      `json:"embedding_missing"`
}

func DocumentFromRow(row *ChatLog) Document {
	vec, ok := row.Vector()
	return Document{
		ID:               row.ID.String(),
		UserID:           row.UserID,
		ConversationID:   row.ConversationID,
		Title:            row.Title,
		Body:             row.Body,
		CreatedAt:        row.CreatedAt.UTC(),
		Vector:           vec,
		EmbeddingMissing: !ok,
	}
}
