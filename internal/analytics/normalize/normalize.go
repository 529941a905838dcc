package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

const (
	ColConversationID = "conversation_id"
	ColAuthorRole     = "author_role"
	ColBody           = "body"
	ColCreatedAt      = "created_at"
	ColTitle          = "title"
	ColCompany        = "company"
	ColUserID         = "user_id"
	ColEmail          = "email"
	ColAttachments    = "attachments"
)

var requiredColumns = []string{ColConversationID, ColAuthorRole, ColBody, ColCreatedAt}

var timestampSynonyms = []string{"create_time", "timestamp"}

const maxSampledErrors = 5

// Table is a loosely typed tabular dataset as produced by the export parsers
// or a CSV file.
type Table struct {
	Columns []string
	Rows    []map[string]any
}

type Options struct {
	// DefaultUserID is used when a row carries neither user_id nor email.
	DefaultUserID string
}

// Report describes what Normalize did to the input.
type Report struct {
	Input   int               `json:"input"`
	Kept    int               `json:"kept"`
	Dropped int               `json:"dropped"`
	Skipped int               `json:"skipped"`
	Renamed map[string]string `json:"renamed,omitempty"`
	Samples []string          `json:"samples,omitempty"`
}

// Normalize renames timestamp synonyms, enforces the required columns and
// converts every row into a chatlog.Record. Rows whose timestamp or
// conversation id cannot be resolved are dropped (not defaulted); rows with a
// role other than user/assistant are skipped. The input table is not modified.
func Normalize(t Table, opts Options) ([]chatlog.Record, Report, error) {
	rep := Report{Input: len(t.Rows)}

	present := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		present[strings.TrimSpace(c)] = true
	}
	renamed := map[string]string{}
	if !present[ColCreatedAt] {
		for _, syn := range timestampSynonyms {
			if present[syn] {
				renamed[syn] = ColCreatedAt
				present[ColCreatedAt] = true
				break
			}
		}
	}
	if len(renamed) > 0 {
		rep.Renamed = renamed
	}

	var missing []string
	for _, c := range requiredColumns {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, rep, chatlog.SchemaError(missing)
	}

	defaultUser := strings.TrimSpace(opts.DefaultUserID)
	if defaultUser == "" {
		defaultUser = chatlog.DefaultUserID
	}

	out := make([]chatlog.Record, 0, len(t.Rows))
	for i, row := range t.Rows {
		get := func(col string) any {
			if v, ok := row[col]; ok {
				return v
			}
			for syn, canon := range renamed {
				if canon == col {
					return row[syn]
				}
			}
			return nil
		}

		role := chatlog.NormalizeRole(cellString(get(ColAuthorRole)))
		if role != chatlog.RoleUser && role != chatlog.RoleAssistant {
			rep.Skipped++
			continue
		}

		convID := strings.TrimSpace(cellString(get(ColConversationID)))
		if convID == "" {
			rep.drop(chatlog.ParseError(i, ColConversationID, get(ColConversationID)))
			continue
		}

		ts, err := ParseTimestamp(get(ColCreatedAt))
		if err != nil {
			rep.drop(chatlog.ParseError(i, ColCreatedAt, get(ColCreatedAt)))
			continue
		}

		userID := strings.TrimSpace(cellString(row[ColUserID]))
		if userID == "" {
			userID = strings.TrimSpace(cellString(row[ColEmail]))
		}
		if userID == "" {
			userID = defaultUser
		}

		out = append(out, chatlog.Record{
			ConversationID: convID,
			UserID:         userID,
			Title:          strings.TrimSpace(cellString(row[ColTitle])),
			AuthorRole:     role,
			Body:           cellString(get(ColBody)),
			CreatedAt:      ts,
			Company:        strings.TrimSpace(cellString(row[ColCompany])),
			Attachments:    attachments(row[ColAttachments]),
		})
	}
	rep.Kept = len(out)
	return out, rep, nil
}

func (r *Report) drop(err error) {
	r.Dropped++
	if len(r.Samples) < maxSampledErrors {
		r.Samples = append(r.Samples, err.Error())
	}
}

func cellString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func attachments(v any) json.RawMessage {
	switch t := v.(type) {
	case nil:
		return nil
	case json.RawMessage:
		if len(t) == 0 || !json.Valid(t) {
			return nil
		}
		return t
	case string:
		s := strings.TrimSpace(t)
		if s == "" || !json.Valid([]byte(s)) {
			return nil
		}
		return json.RawMessage(s)
	default:
		raw, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return raw
	}
}
