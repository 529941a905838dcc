package transcript

import (
	"sort"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

// Separator joins consecutive transcript lines.
const Separator = "\n\n"

// Reconstruct groups records by conversation id and renders one transcript
// per conversation. Records with a blank body are dropped first, so a
// conversation made only of blank messages produces nothing. Conversations
// come back in first-seen order; messages inside each are stable-sorted by
// CreatedAt. The input slice is not reordered.
func Reconstruct(records []chatlog.Record) []chatlog.Conversation {
	order := make([]string, 0)
	groups := make(map[string][]chatlog.Record)
	for _, r := range records {
		if strings.TrimSpace(r.Body) == "" {
			continue
		}
		key := groupKey(r)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], r)
	}

	out := make([]chatlog.Conversation, 0, len(order))
	for _, key := range order {
		msgs := groups[key]
		sort.SliceStable(msgs, func(i, j int) bool {
			return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
		})
		conv := chatlog.Conversation{
			ID:         msgs[0].ConversationID,
			UserID:     msgs[0].UserID,
			StartedAt:  msgs[0].CreatedAt,
			Messages:   msgs,
			Transcript: Render(msgs),
		}
		for _, m := range msgs {
			if conv.Title == "" && strings.TrimSpace(m.Title) != "" {
				conv.Title = strings.TrimSpace(m.Title)
			}
			if conv.Company == "" && m.Company != "" {
				conv.Company = m.Company
			}
		}
		out = append(out, conv)
	}
	return out
}

// Conversation ids are only unique per export, so two users can share one.
func groupKey(r chatlog.Record) string {
	return r.UserID + "\x00" + r.ConversationID
}

// Render formats already ordered messages as "[ROLE] body" lines.
func Render(msgs []chatlog.Record) string {
	var b strings.Builder
	for i, m := range msgs {
		if i > 0 {
			b.WriteString(Separator)
		}
		b.WriteString("[")
		b.WriteString(strings.ToUpper(m.AuthorRole))
		b.WriteString("] ")
		b.WriteString(m.Body)
	}
	return b.String()
}

// Transcripts returns just the rendered text of each conversation.
func Transcripts(convs []chatlog.Conversation) []string {
	out := make([]string, 0, len(convs))
	for _, c := range convs {
		out = append(out, c.Transcript)
	}
	return out
}
