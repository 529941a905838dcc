package chatlog

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	KindMessage      = "message"
	KindConversation = "conversation"
)

var rowIDNamespace = uuid.MustParse("6c4f3b7e-2a0d-4b8e-9c51-0b7f3e2d9a14")

// ChatLog is the persisted row. Message rows feed the usage statistics;
// conversation rows (body = transcript) are the embedding and clustering unit.
type ChatLog struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Kind           string    `gorm:"column:kind;not null;index:idx_chat_logs_user_kind,priority:2" json:"kind"`
	UserID         string    `gorm:"column:user_id;not null;index:idx_chat_logs_user_kind,priority:1" json:"user_id"`
	ConversationID string    `gorm:"column:conversation_id;not null;index" json:"conversation_id"`
	Title          string    `gorm:"column:title;not null;default:''" json:"title"`
	AuthorRole     string    `gorm:"column:author_role;not null;default:''" json:"author_role,omitempty"`
	Body           string    `gorm:"column:body;type:text;not null;default:''" json:"body"`
	Company        string    `gorm:"column:company;not null;default:''" json:"company,omitempty"`

	Attachments datatypes.JSON `gorm:"column:attachments" json:"attachments,omitempty"`

	Embedding        datatypes.JSON `gorm:"column:embeddings_json" json:"-"`
	EmbeddingDim     int            `gorm:"column:embedding_dim;not null;default:0" json:"embedding_dim"`
	EmbeddingMissing bool           `gorm:"column:embedding_missing;not null;default:false" json:"embedding_missing"`
	EmbeddedAt       *time.Time     `gorm:"column:embedded_at" json:"embedded_at,omitempty"`

	CreatedAt time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (ChatLog) TableName() string { return "chat_logs" }

// Report stores a generated wrapped summary or graph summary per user and year.
type Report struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      string         `gorm:"column:user_id;not null;uniqueIndex:idx_analytics_report_key,priority:1" json:"user_id"`
	Kind        string         `gorm:"column:kind;not null;uniqueIndex:idx_analytics_report_key,priority:2" json:"kind"`
	Year        int            `gorm:"column:year;not null;uniqueIndex:idx_analytics_report_key,priority:3" json:"year"`
	Payload     datatypes.JSON `gorm:"column:payload;not null" json:"payload"`
	GeneratedAt time.Time      `gorm:"column:generated_at;not null" json:"generated_at"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
}

func (Report) TableName() string { return "analytics_reports" }

const (
	ReportWrapped = "wrapped"
	ReportGraph   = "graph"
)

func ReportID(userID, kind string, year int) uuid.UUID {
	return uuid.NewSHA1(rowIDNamespace, []byte(strings.Join([]string{"report", userID, kind, strconv.Itoa(year)}, "|")))
}

// MessageRowID is stable for the same message content, so re-ingesting an
// export upserts instead of duplicating.
func MessageRowID(r Record) uuid.UUID {
	key := strings.Join([]string{
		KindMessage,
		r.UserID,
		r.ConversationID,
		r.AuthorRole,
		r.CreatedAt.UTC().Format(time.RFC3339Nano),
		r.Body,
	}, "|")
	return uuid.NewSHA1(rowIDNamespace, []byte(key))
}

func ConversationRowID(userID, conversationID string) uuid.UUID {
	return uuid.NewSHA1(rowIDNamespace, []byte(KindConversation+"|"+userID+"|"+conversationID))
}

func MessageRow(r Record) *ChatLog {
	row := &ChatLog{
		ID:             MessageRowID(r),
		Kind:           KindMessage,
		UserID:         r.UserID,
		ConversationID: r.ConversationID,
		Title:          r.Title,
		AuthorRole:     r.AuthorRole,
		Body:           r.Body,
		Company:        r.Company,
		CreatedAt:      r.CreatedAt.UTC(),
	}
	if len(r.Attachments) > 0 && json.Valid(r.Attachments) {
		row.Attachments = datatypes.JSON(r.Attachments)
	}
	return row
}

func ConversationRow(c Conversation) *ChatLog {
	return &ChatLog{
		ID:             ConversationRowID(c.UserID, c.ID),
		Kind:           KindConversation,
		UserID:         c.UserID,
		ConversationID: c.ID,
		Title:          c.Title,
		Body:           c.Transcript,
		Company:        c.Company,
		CreatedAt:      c.StartedAt.UTC(),
	}
}

// Record converts a message row back into a normalized record.
func (c *ChatLog) Record() Record {
	return Record{
		ConversationID: c.ConversationID,
		UserID:         c.UserID,
		Title:          c.Title,
		AuthorRole:     c.AuthorRole,
		Body:           c.Body,
		CreatedAt:      c.CreatedAt.UTC(),
		Company:        c.Company,
		Attachments:    json.RawMessage(c.Attachments),
	}
}
