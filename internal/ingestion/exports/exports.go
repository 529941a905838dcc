// Package exports turns raw chat-export files into normalize.Table values.
package exports

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

type Format string

const (
	FormatAuto    Format = "auto"
	FormatChatGPT Format = "chatgpt"
	FormatClaude  Format = "claude"
	FormatCSV     Format = "csv"
)

const (
	CompanyGPT    = "gpt"
	CompanyClaude = "claude"
)

// Columns emitted by the JSON parsers, in table order.
var exportColumns = []string{
	normalize.ColConversationID,
	normalize.ColEmail,
	normalize.ColTitle,
	normalize.ColBody,
	normalize.ColCreatedAt,
	normalize.ColCompany,
	normalize.ColAuthorRole,
	normalize.ColAttachments,
}

type Options struct {
	// Email is stamped on every row of a JSON export. Empty leaves the
	// column blank so the normalizer falls back to its default user.
	Email string
}

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatAuto:
		return FormatAuto, nil
	case FormatChatGPT, FormatClaude, FormatCSV:
		return f, nil
	case "gpt", "openai":
		return FormatChatGPT, nil
	default:
		return "", chatlog.NewError(chatlog.KindValidation, "exports.format", fmt.Sprintf("unknown export format %q", s), nil)
	}
}

// Parse reads one export. With FormatAuto the format is sniffed from the
// file name and the first bytes of content.
func Parse(r io.Reader, name string, format Format, opts Options) (normalize.Table, error) {
	br := bufio.NewReader(r)
	if format == FormatAuto || format == "" {
		head, _ := br.Peek(64 << 10)
		format = Detect(name, head)
	}
	switch format {
	case FormatChatGPT:
		return ParseChatGPT(br, opts)
	case FormatClaude:
		return ParseClaude(br, opts)
	case FormatCSV:
		return ParseCSV(br)
	default:
		return normalize.Table{}, chatlog.NewError(chatlog.KindValidation, "exports.parse", "could not detect export format", nil)
	}
}

// Detect guesses the export format. CSV is chosen by extension; JSON exports
// are told apart by their distinguishing keys.
func Detect(name string, head []byte) Format {
	if strings.EqualFold(filepath.Ext(name), ".csv") {
		return FormatCSV
	}
	trimmed := bytes.TrimSpace(head)
	if len(trimmed) == 0 {
		return ""
	}
	switch trimmed[0] {
	case '[', '{':
		switch {
		case bytes.Contains(head, []byte(`"mapping"`)):
			return FormatChatGPT
		case bytes.Contains(head, []byte(`"chat_messages"`)):
			return FormatClaude
		}
		return ""
	default:
		return FormatCSV
	}
}

// decodeList accepts either a JSON array of T or a single T object.
func decodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var out []T
		if err := json.Unmarshal(data, &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var one T
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}
