package wrapped

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

type stubExtractor struct{}

func (stubExtractor) Extract(ctx context.Context, text string) ([]entitygraph.Entity, error) {
	switch text {
	case "fix my python bug":
		return []entitygraph.Entity{{Text: "Python", Category: "TECH"}, {Text: "2024", Category: "DATE"}}, nil
	case "python help please":
		return []entitygraph.Entity{{Text: "Python", Category: "TECH"}}, nil
	}
	return nil, errors.New("unexpected text")
}

func rec(conv, role, body string, hour int) chatlog.Record {
	return chatlog.Record{
		ConversationID: conv,
		AuthorRole:     role,
		Body:           body,
		CreatedAt:      time.Date(2024, 5, 1, hour, 0, 0, 0, time.UTC),
	}
}

func fixedNow() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestAggregatePythonScenario(t *testing.T) {
	records := []chatlog.Record{
		rec("c1", "user", "fix my python bug", 9),
		rec("c1", "assistant", "try adding a print statement", 9),
		rec("c2", "user", "python help please", 14),
	}
	s, err := Aggregate(context.Background(), records, Options{Extractor: stubExtractor{}, Now: fixedNow})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if len(s.Languages) != 1 || s.Languages[0] != (Count{Key: "python", Count: 2}) {
		t.Fatalf("languages: want=[python:2] got=%v", s.Languages)
	}
	if s.NumChats != 2 || s.NumMessages != 3 {
		t.Fatalf("counts: want=2/3 got=%d/%d", s.NumChats, s.NumMessages)
	}
	if s.ResponseTokens != 5 {
		t.Fatalf("response_tokens: want=5 got=%d", s.ResponseTokens)
	}
	if s.MostActiveHour == nil || *s.MostActiveHour != 9 {
		t.Fatalf("most_active_hour: want=9 got=%v", s.MostActiveHour)
	}
	if len(s.TopEntities) != 1 || s.TopEntities[0] != (Count{Key: "Python", Count: 2}) {
		t.Fatalf("top_entities: got=%v", s.TopEntities)
	}
	if s.UserID != chatlog.DefaultUserID || s.Year != 2025 || !s.GeneratedAt.Equal(fixedNow()) {
		t.Fatalf("metadata: got user=%s year=%d at=%s", s.UserID, s.Year, s.GeneratedAt)
	}
}

func TestAggregateEmptyHasNullHour(t *testing.T) {
	s, err := Aggregate(context.Background(), nil, Options{UserID: "u1", Now: fixedNow})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if s.MostActiveHour != nil {
		t.Fatalf("most_active_hour: want=nil got=%d", *s.MostActiveHour)
	}
	if s.UserID != "u1" || len(s.Languages) != 0 || len(s.TopQueries) != 0 {
		t.Fatalf("empty summary: got=%+v", s)
	}
}

func TestTopQueriesPrefixAndTies(t *testing.T) {
	records := []chatlog.Record{
		rec("c1", "user", "How do I   write a test in go for my handler please", 1),
		rec("c1", "user", "hello", 2),
		rec("c2", "user", "how do i write a test in go for   something else", 2),
		rec("c3", "user", "thanks", 3),
	}
	s, err := Aggregate(context.Background(), records, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	want := []Count{
		{Key: "how do i write a test in go", Count: 2},
		{Key: "hello", Count: 1},
		{Key: "thanks", Count: 1},
	}
	if len(s.TopQueries) != len(want) {
		t.Fatalf("top_queries: want=%v got=%v", want, s.TopQueries)
	}
	for i := range want {
		if s.TopQueries[i] != want[i] {
			t.Fatalf("top_queries[%d]: want=%v got=%v", i, want[i], s.TopQueries[i])
		}
	}
	if *s.MostActiveHour != 2 {
		t.Fatalf("most_active_hour: want=2 got=%d", *s.MostActiveHour)
	}
}

func TestMostActiveHourTieGoesLow(t *testing.T) {
	records := []chatlog.Record{rec("c", "user", "a", 22), rec("c", "user", "b", 4)}
	s, _ := Aggregate(context.Background(), records, Options{Now: fixedNow})
	if *s.MostActiveHour != 4 {
		t.Fatalf("most_active_hour: want=4 got=%d", *s.MostActiveHour)
	}
}

func TestLanguagesMatchWholeWordsEndingInPunctuation(t *testing.T) {
	records := []chatlog.Record{
		rec("c1", "user", "I use c++ daily", 1),
		rec("c1", "user", "C++", 2),
		rec("c2", "user", "golang and rustacean are not names on the list", 3),
		rec("c2", "user", "sql, please", 4),
	}
	s, err := Aggregate(context.Background(), records, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	got := map[string]int{}
	for _, c := range s.Languages {
		got[c.Key] = c.Count
	}
	if got["c++"] != 2 {
		t.Fatalf("c++: want=2 got=%d (%v)", got["c++"], s.Languages)
	}
	if got["sql"] != 1 {
		t.Fatalf("sql: want=1 got=%d", got["sql"])
	}
	if _, ok := got["go"]; ok {
		t.Fatalf("go: want absent got=%v", s.Languages)
	}
	if _, ok := got["rust"]; ok {
		t.Fatalf("rust: want absent got=%v", s.Languages)
	}
}
