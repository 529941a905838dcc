package exports

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

type claudeConversation struct {
	UUID     string          `json:"uuid"`
	Name     string          `json:"name"`
	Messages []claudeMessage `json:"chat_messages"`
}

type claudeMessage struct {
	Sender      string          `json:"sender"`
	Text        string          `json:"text"`
	CreatedAt   json.RawMessage `json:"created_at"`
	Attachments json.RawMessage `json:"attachments"`
	Content     []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

// ParseClaude reads a Claude export: a list of conversations or a single
// one. Only human and assistant turns are kept; human maps to user.
func ParseClaude(r io.Reader, opts Options) (normalize.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return normalize.Table{}, chatlog.Wrap(chatlog.KindValidation, "exports.claude", err)
	}
	convs, err := decodeList[claudeConversation](data)
	if err != nil {
		return normalize.Table{}, chatlog.Wrap(chatlog.KindValidation, "exports.claude", err)
	}
	t := normalize.Table{Columns: exportColumns}
	for _, c := range convs {
		for _, m := range c.Messages {
			sender := strings.ToLower(strings.TrimSpace(m.Sender))
			if sender != "human" && sender != chatlog.RoleAssistant {
				continue
			}
			row := map[string]any{
				normalize.ColConversationID: c.UUID,
				normalize.ColEmail:          opts.Email,
				normalize.ColTitle:          c.Name,
				normalize.ColBody:           m.body(),
				normalize.ColCreatedAt:      rawScalar(m.CreatedAt),
				normalize.ColCompany:        CompanyClaude,
				normalize.ColAuthorRole:     chatlog.NormalizeRole(sender),
			}
			if a := strings.TrimSpace(string(m.Attachments)); a != "" && a != "null" {
				row[normalize.ColAttachments] = m.Attachments
			}
			t.Rows = append(t.Rows, row)
		}
	}
	return t, nil
}

// body prefers the flat text field and falls back to text content blocks.
func (m claudeMessage) body() string {
	if strings.TrimSpace(m.Text) != "" {
		return m.Text
	}
	parts := make([]string, 0, len(m.Content))
	for _, c := range m.Content {
		if c.Type == "text" && strings.TrimSpace(c.Text) != "" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// rawScalar unwraps a JSON string or number for the normalizer.
func rawScalar(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return json.Number(strings.TrimSpace(string(raw)))
}
