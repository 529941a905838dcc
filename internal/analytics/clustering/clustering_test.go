package clustering

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
)

type scriptedGen struct {
	answers []string
	errs    []error
	calls   int
	prompts []string
}

func (g *scriptedGen) Generate(ctx context.Context, prompt string) (string, error) {
	i := g.calls
	g.calls++
	g.prompts = append(g.prompts, prompt)
	var err error
	if i < len(g.errs) {
		err = g.errs[i]
	}
	if err != nil {
		return "", err
	}
	if i < len(g.answers) {
		return g.answers[i], nil
	}
	return "", nil
}

func noSleepLabeler(gen Generator) *Labeler {
	l := NewLabeler(nil, gen, LabelerConfig{Attempts: 3, RetryDelay: time.Second})
	l.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return l
}

func doc(user, title string, vec ...float32) chatlog.Document {
	return chatlog.Document{UserID: user, Title: title, Vector: vec}
}

func TestKeywordLabel(t *testing.T) {
	cases := []struct {
		titles []string
		want   string
	}{
		{[]string{"Python debugging", "Debugging Rust code", "python tips"}, "python & debugging"},
		{[]string{"The and of", "it is"}, PlaceholderLabel},
		{nil, PlaceholderLabel},
		{[]string{"zeta alpha", "beta"}, "zeta & alpha"},
	}
	for _, tc := range cases {
		if got := KeywordLabel(tc.titles, 2); got != tc.want {
			t.Fatalf("KeywordLabel(%v): want=%q got=%q", tc.titles, tc.want, got)
		}
	}
}

func TestLabelerRetriesThenFallsBack(t *testing.T) {
	gen := &scriptedGen{errs: []error{errors.New("timeout"), errors.New("timeout"), errors.New("timeout")}}
	got, src := noSleepLabeler(gen).Label(context.Background(), []string{"Go channels", "go channels deep dive"})
	if gen.calls != 3 {
		t.Fatalf("attempts: want=3 got=%d", gen.calls)
	}
	if src != LabelSourceKeywords || got != "channels & deep" {
		t.Fatalf("fallback: want=%q got=%q (%s)", "channels & deep", got, src)
	}
}

func TestLabelerStripsQuotesAndRetriesEmpty(t *testing.T) {
	gen := &scriptedGen{answers: []string{"  ", `"Kubernetes 'Ops'"`}}
	got, src := noSleepLabeler(gen).Label(context.Background(), []string{"k8s"})
	if got != "Kubernetes Ops" || src != LabelSourceLLM {
		t.Fatalf("label: want=%q got=%q (%s)", "Kubernetes Ops", got, src)
	}
	if gen.calls != 2 {
		t.Fatalf("calls: want=2 got=%d", gen.calls)
	}
	if !strings.Contains(gen.prompts[0], "- k8s\n") {
		t.Fatalf("prompt missing title list: %q", gen.prompts[0])
	}
}

func TestLabelPromptCapsTitles(t *testing.T) {
	titles := make([]string, 15)
	for i := range titles {
		titles[i] = "t"
	}
	if n := strings.Count(LabelPrompt(titles), "\n- t"); n != 10 {
		t.Fatalf("titles in prompt: want=10 got=%d", n)
	}
}

func TestKMeansSeparatesGroups(t *testing.T) {
	points := [][]float64{{0, 0}, {0.1, 0}, {10, 10}, {10, 10.2}, {0, 0.1}}
	labels, _ := KMeans(points, 2, DefaultKMeansOptions())
	if labels[0] != labels[1] || labels[0] != labels[4] || labels[2] != labels[3] || labels[0] == labels[2] {
		t.Fatalf("labels: got=%v", labels)
	}
	again, _ := KMeans(points, 2, DefaultKMeansOptions())
	if !reflect.DeepEqual(labels, again) {
		t.Fatalf("not deterministic: %v vs %v", labels, again)
	}
}

func TestKMeansUsesEveryClusterWithDuplicates(t *testing.T) {
	points := [][]float64{{1, 1}, {1, 1}, {1, 1}}
	labels, _ := KMeans(points, 3, DefaultKMeansOptions())
	seen := map[int]bool{}
	for _, l := range labels {
		seen[l] = true
	}
	if len(seen) != 3 {
		t.Fatalf("clusters used: want=3 got=%v", labels)
	}
}

func TestClusterUsersScenario(t *testing.T) {
	docs := []chatlog.Document{
		doc("a@x.com", "Intro to Go", 1, 0),
		doc("b@x.com", "Rust lifetimes", 0, 1),
		doc("a@x.com", "Go generics", 0.9, 0.1),
		doc("a@x.com", "Baking bread", 0, 5),
	}
	gen := &scriptedGen{errs: []error{errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"), errors.New("down")}}
	eng := NewEngine(nil, noSleepLabeler(gen), 5)

	res, err := eng.ClusterUsers(context.Background(), docs)
	if err != nil {
		t.Fatalf("ClusterUsers: %v", err)
	}
	if len(res.Users) != 2 || res.Users[0].UserID != "a@x.com" || res.Users[1].UserID != "b@x.com" {
		t.Fatalf("users: got=%+v", res.Users)
	}
	a := res.Users[0]
	if len(a.Clusters) != 3 {
		t.Fatalf("a clusters: want=min(5,3)=3 got=%d", len(a.Clusters))
	}
	total := 0
	for _, c := range a.Clusters {
		total += len(c.Indices)
	}
	if total != 3 {
		t.Fatalf("size sum: want=3 got=%d", total)
	}
	b := res.Users[1]
	if len(b.Clusters) != 1 || !reflect.DeepEqual(b.Clusters[0].Indices, []int{1}) {
		t.Fatalf("b clusters: got=%+v", b.Clusters)
	}
	if b.Clusters[0].Title != "rust & lifetimes" {
		t.Fatalf("b title: want=%q got=%q", "rust & lifetimes", b.Clusters[0].Title)
	}
	if res.Assignments[1].ClusterTitle != "rust & lifetimes" || res.Assignments[1].ClusterID != 0 {
		t.Fatalf("b assignment: got=%+v", res.Assignments[1])
	}
	for i, as := range res.Assignments {
		c := res.ByUser()[docs[i].UserID].Clusters[as.ClusterID]
		if c.Title != as.ClusterTitle {
			t.Fatalf("assignment %d title mismatch: %q vs %q", i, as.ClusterTitle, c.Title)
		}
	}
}

func TestClusterUsersKeepsMissingEmbeddings(t *testing.T) {
	docs := []chatlog.Document{
		doc("u", "one", 1, 2, 3),
		{UserID: "u", Title: "two", EmbeddingMissing: true},
		doc("u", "three", 3, 2, 1),
	}
	res, err := NewEngine(nil, nil, 2).ClusterUsers(context.Background(), docs)
	if err != nil {
		t.Fatalf("ClusterUsers: %v", err)
	}
	total := 0
	for _, c := range res.Users[0].Clusters {
		total += len(c.Indices)
	}
	if total != len(docs) || len(res.Users[0].Clusters) != 2 {
		t.Fatalf("size sum: want=%d got=%d (clusters=%d)", len(docs), total, len(res.Users[0].Clusters))
	}
}
