package exports

import (
	"strings"
	"testing"

	"github.com/yungbote/wrapped-backend/internal/analytics/normalize"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

const chatgptExport = `[{
  "conversation_id": "g1",
  "title": "Go channels",
  "current_node": "n3",
  "mapping": {
    "root": {"id": "root", "parent": null, "message": null},
    "n1": {"id": "n1", "parent": "root", "message": {"author": {"role": "user"}, "create_time": 1700000000, "content": {"parts": ["how do channels work?"]}}},
    "n2": {"id": "n2", "parent": "n1", "message": {"author": {"role": "assistant"}, "create_time": 1700000010, "content": {"parts": [{"text": "They pass values"}, {"image": 1}]}}},
    "alt": {"id": "alt", "parent": "n1", "message": {"author": {"role": "assistant"}, "create_time": 1700000005, "content": {"parts": ["abandoned branch"]}}},
    "n3": {"id": "n3", "parent": "n2", "message": {"author": {"role": "system"}, "create_time": 1700000020, "content": {"parts": [""]}}}
  }
}]`

func TestParseChatGPTFollowsCurrentNode(t *testing.T) {
	tbl, err := ParseChatGPT(strings.NewReader(chatgptExport), Options{Email: "a@x.com"})
	if err != nil {
		t.Fatalf("ParseChatGPT: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(tbl.Rows))
	}
	if tbl.Rows[0][normalize.ColBody] != "how do channels work?" {
		t.Fatalf("row0 body: got=%v", tbl.Rows[0][normalize.ColBody])
	}
	if got := tbl.Rows[1][normalize.ColBody]; got != "They pass values\n{\"image\": 1}" {
		t.Fatalf("row1 body: got=%q", got)
	}
	if tbl.Rows[1][normalize.ColCompany] != CompanyGPT || tbl.Rows[1][normalize.ColEmail] != "a@x.com" {
		t.Fatalf("row1 meta: got=%v", tbl.Rows[1])
	}
}

func TestParseChatGPTWithoutCurrentNodeSortsByTime(t *testing.T) {
	in := strings.Replace(chatgptExport, `"current_node": "n3",`, "", 1)
	tbl, err := ParseChatGPT(strings.NewReader(in), Options{})
	if err != nil {
		t.Fatalf("ParseChatGPT: %v", err)
	}
	var bodies []string
	for _, r := range tbl.Rows {
		bodies = append(bodies, r[normalize.ColBody].(string))
	}
	want := []string{"how do channels work?", "abandoned branch", "They pass values\n{\"image\": 1}"}
	if strings.Join(bodies, "|") != strings.Join(want, "|") {
		t.Fatalf("bodies: want=%v got=%v", want, bodies)
	}
}

const claudeExport = `{
  "uuid": "c1",
  "name": "Rust lifetimes",
  "chat_messages": [
    {"sender": "human", "text": "explain lifetimes", "created_at": "2024-05-01T10:00:00Z", "attachments": [{"file_name": "a.rs"}]},
    {"sender": "assistant", "text": "", "content": [{"type": "text", "text": "Lifetimes are scopes"}], "created_at": "2024-05-01T10:00:05Z"},
    {"sender": "tool", "text": "ignored", "created_at": "2024-05-01T10:00:06Z"}
  ]
}`

func TestParseClaudeSingleObject(t *testing.T) {
	tbl, err := ParseClaude(strings.NewReader(claudeExport), Options{})
	if err != nil {
		t.Fatalf("ParseClaude: %v", err)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("rows: want=2 got=%d", len(tbl.Rows))
	}
	if tbl.Rows[0][normalize.ColAuthorRole] != chatlog.RoleUser {
		t.Fatalf("role: want=user got=%v", tbl.Rows[0][normalize.ColAuthorRole])
	}
	if _, ok := tbl.Rows[0][normalize.ColAttachments]; !ok {
		t.Fatalf("attachments dropped")
	}
	if tbl.Rows[1][normalize.ColBody] != "Lifetimes are scopes" {
		t.Fatalf("content fallback: got=%v", tbl.Rows[1][normalize.ColBody])
	}
}

func TestParseClaudeFeedsNormalizer(t *testing.T) {
	tbl, err := Parse(strings.NewReader("["+claudeExport+"]"), "conversations.json", FormatAuto, Options{Email: "b@x.com"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	recs, rep, err := normalize.Normalize(tbl, normalize.Options{DefaultUserID: chatlog.DefaultUserID})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(recs) != 2 || rep.Dropped != 0 {
		t.Fatalf("records: want=2 got=%d dropped=%d", len(recs), rep.Dropped)
	}
	if recs[0].UserID != "b@x.com" || recs[0].Company != CompanyClaude {
		t.Fatalf("record0: got=%+v", recs[0])
	}
	if recs[1].CreatedAt.Second() != 5 {
		t.Fatalf("created_at: got=%s", recs[1].CreatedAt)
	}
}

func TestParseCSV(t *testing.T) {
	in := "\ufeffConversation_ID,author_role,body,create_time\nc1,user,hello,2024-01-01 09:00:00\nc1,assistant,hi\n"
	tbl, err := Parse(strings.NewReader(in), "logs.csv", FormatAuto, Options{})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tbl.Columns[0] != "conversation_id" || len(tbl.Rows) != 2 {
		t.Fatalf("table: cols=%v rows=%d", tbl.Columns, len(tbl.Rows))
	}
	if tbl.Rows[1]["create_time"] != nil {
		t.Fatalf("short row should pad nil: got=%v", tbl.Rows[1]["create_time"])
	}
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		head string
		want Format
	}{
		{"x.csv", `{"mapping":1}`, FormatCSV},
		{"conversations.json", `[{"mapping": {}}]`, FormatChatGPT},
		{"conversations.json", `[{"chat_messages": []}]`, FormatClaude},
		{"data.txt", "conversation_id,body", FormatCSV},
		{"x.json", `{"other": 1}`, ""},
	}
	for _, tc := range cases {
		if got := Detect(tc.name, []byte(tc.head)); got != tc.want {
			t.Fatalf("%s: want=%q got=%q", tc.name, tc.want, got)
		}
	}
	if _, err := ParseFormat("bogus"); !chatlog.IsKind(err, chatlog.KindValidation) {
		t.Fatalf("ParseFormat: want validation error got=%v", err)
	}
}
