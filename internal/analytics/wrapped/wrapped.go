package wrapped

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/wrapped-backend/internal/analytics/entitygraph"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

const (
	topEntities    = 15
	topQueries     = 10
	queryPrefixLen = 8
)

// Languages is the fixed keyword list counted in the summary, in tie-break order.
var Languages = []string{
	"python", "javascript", "typescript", "c++", "c", "java",
	"go", "rust", "ruby", "php", "scala", "sql",
}

// Word edges are a non-word rune or the text boundary; \b never follows c++.
var languagePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(Languages))
	for i, l := range Languages {
		out[i] = regexp.MustCompile(`(?i)(?:^|[^\w])` + regexp.QuoteMeta(l) + `(?:[^\w]|$)`)
	}
	return out
}()

type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Summary struct {
	Year           int       `json:"year"`
	UserID         string    `json:"user_id"`
	NumChats       int       `json:"num_chats"`
	NumMessages    int       `json:"num_messages"`
	ResponseTokens int       `json:"response_tokens"`
	TopEntities    []Count   `json:"top_entities"`
	TopQueries     []Count   `json:"top_queries"`
	Languages      []Count   `json:"languages"`
	MostActiveHour *int      `json:"most_active_hour"`
	GeneratedAt    time.Time `json:"generated_at"`
}

type Options struct {
	UserID    string
	Extractor entitygraph.Extractor
	// CallTimeout bounds each extractor call. Zero means no extra bound.
	CallTimeout time.Duration
	Now         func() time.Time
	Log         *logger.Logger
}

// Aggregate computes the wrapped summary of a record set. It never fails on
// extractor errors; the affected message simply contributes no entities.
func Aggregate(ctx context.Context, records []chatlog.Record, opts Options) (Summary, error) {
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	log := opts.Log
	if log == nil {
		log = logger.NewNop()
	}
	userID := strings.TrimSpace(opts.UserID)
	if userID == "" {
		userID = chatlog.DefaultUserID
	}
	ts := now().UTC()

	s := Summary{
		Year:        ts.Year(),
		UserID:      userID,
		NumMessages: len(records),
		TopEntities: []Count{},
		TopQueries:  []Count{},
		Languages:   []Count{},
		GeneratedAt: ts,
	}

	chats := map[string]struct{}{}
	queries := newCounter()
	entities := newCounter()
	langCounts := make([]int, len(Languages))
	var hours [24]int

	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		chats[r.ConversationID] = struct{}{}
		hours[r.CreatedAt.UTC().Hour()]++
		for i, re := range languagePatterns {
			if re.MatchString(r.Body) {
				langCounts[i]++
			}
		}
		switch {
		case r.IsUser():
			toks := strings.Fields(r.Body)
			if len(toks) > queryPrefixLen {
				toks = toks[:queryPrefixLen]
			}
			queries.add(strings.ToLower(strings.Join(toks, " ")))
			for _, e := range extract(ctx, log, opts, r.Body) {
				entities.add(e)
			}
		case r.IsAssistant():
			s.ResponseTokens += len(strings.Fields(r.Body))
		}
	}

	s.NumChats = len(chats)
	s.TopQueries = queries.top(topQueries)
	s.TopEntities = entities.top(topEntities)
	for i, n := range langCounts {
		if n > 0 {
			s.Languages = append(s.Languages, Count{Key: Languages[i], Count: n})
		}
	}
	sort.SliceStable(s.Languages, func(i, j int) bool { return s.Languages[i].Count > s.Languages[j].Count })

	if len(records) > 0 {
		best := 0
		for h := 1; h < 24; h++ {
			if hours[h] > hours[best] {
				best = h
			}
		}
		s.MostActiveHour = &best
	}
	return s, nil
}

// extract returns filtered entity mentions of one message. Repeats within a
// message are kept; each counts.
func extract(ctx context.Context, log *logger.Logger, opts Options, body string) []string {
	if opts.Extractor == nil || strings.TrimSpace(body) == "" {
		return nil
	}
	callCtx := ctx
	cancel := func() {}
	if opts.CallTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, opts.CallTimeout)
	}
	defer cancel()
	ents, err := opts.Extractor.Extract(callCtx, body)
	if err != nil {
		log.Warn("wrapped: entity extraction failed", "error", err)
		observability.Current().IncLLMFallback("entities")
		return nil
	}
	out := make([]string, 0, len(ents))
	for _, e := range ents {
		if entitygraph.Keep(e) {
			out = append(out, strings.TrimSpace(e.Text))
		}
	}
	return out
}

// counter is a frequency table that remembers first-seen order.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter { return &counter{counts: map[string]int{}} }

func (c *counter) add(k string) {
	if _, ok := c.counts[k]; !ok {
		c.order = append(c.order, k)
	}
	c.counts[k]++
}

func (c *counter) top(n int) []Count {
	out := make([]Count, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, Count{Key: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
