package exports

import (
	"encoding/json"
	"io"
	"sort"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

type gptConversation struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversation_id"`
	Title          string             `json:"title"`
	CurrentNode    string             `json:"current_node"`
	Mapping        map[string]gptNode `json:"mapping"`
}

type gptNode struct {
	ID      string      `json:"id"`
	Parent  *string     `json:"parent"`
	Message *gptMessage `json:"message"`
}

type gptMessage struct {
	Author struct {
		Role string `json:"role"`
	} `json:"author"`
	CreateTime *float64 `json:"create_time"`
	Content    struct {
		Parts []json.RawMessage `json:"parts"`
	} `json:"content"`
}

// ParseChatGPT reads a ChatGPT conversations.json export. Messages follow the
// current_node chain when present; otherwise every node is used, ordered by
// create_time. Nodes without text or timestamp are skipped.
func ParseChatGPT(r io.Reader, opts Options) (normalize.Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return normalize.Table{}, chatlog.Wrap(chatlog.KindValidation, "exports.chatgpt", err)
	}
	convs, err := decodeList[gptConversation](data)
	if err != nil {
		return normalize.Table{}, chatlog.Wrap(chatlog.KindValidation, "exports.chatgpt", err)
	}
	t := normalize.Table{Columns: exportColumns}
	for _, c := range convs {
		convID := c.ConversationID
		if convID == "" {
			convID = c.ID
		}
		for _, node := range orderedNodes(c) {
			msg := node.Message
			if msg == nil || msg.CreateTime == nil {
				continue
			}
			body := joinParts(msg.Content.Parts)
			if body == "" {
				continue
			}
			t.Rows = append(t.Rows, map[string]any{
				normalize.ColConversationID: convID,
				normalize.ColEmail:          opts.Email,
				normalize.ColTitle:          c.Title,
				normalize.ColBody:           body,
				normalize.ColCreatedAt:      *msg.CreateTime,
				normalize.ColCompany:        CompanyGPT,
				normalize.ColAuthorRole:     msg.Author.Role,
			})
		}
	}
	return t, nil
}

func orderedNodes(c gptConversation) []gptNode {
	if node, ok := c.Mapping[c.CurrentNode]; ok && c.CurrentNode != "" {
		var chain []gptNode
		seen := map[string]bool{}
		for {
			if seen[node.ID] {
				break
			}
			seen[node.ID] = true
			chain = append(chain, node)
			if node.Parent == nil {
				break
			}
			next, ok := c.Mapping[*node.Parent]
			if !ok {
				break
			}
			node = next
		}
		for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
			chain[i], chain[j] = chain[j], chain[i]
		}
		return chain
	}

	keys := make([]string, 0, len(c.Mapping))
	for k := range c.Mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	nodes := make([]gptNode, 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, c.Mapping[k])
	}
	sort.SliceStable(nodes, func(i, j int) bool { return createTime(nodes[i]) < createTime(nodes[j]) })
	return nodes
}

func createTime(n gptNode) float64 {
	if n.Message == nil || n.Message.CreateTime == nil {
		return 0
	}
	return *n.Message.CreateTime
}

// joinParts renders string parts as-is, {text} parts by their text and any
// other part as compact JSON.
func joinParts(parts []json.RawMessage) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		var s string
		if err := json.Unmarshal(p, &s); err == nil {
			out = append(out, s)
			continue
		}
		var obj struct {
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(p, &obj); err == nil && obj.Text != nil {
			out = append(out, *obj.Text)
			continue
		}
		out = append(out, string(p))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
