package clustering

import (
	"context"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/wrapped-backend/internal/observability"
	"github.com/yungbote/wrapped-backend/internal/platform/httpx"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

const (
	PlaceholderLabel = "General Topics"
	maxPromptTitles  = 10

	LabelSourceLLM      = "llm"
	LabelSourceKeywords = "keywords"
)

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

var wordRe = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

var stopWords = func() map[string]struct{} {
	words := []string{
		"the", "a", "an", "and", "or", "but", "is", "are", "was", "were", "be", "been",
		"being", "have", "has", "had", "do", "does", "did", "will", "would", "should",
		"can", "could", "not", "no", "nor", "so", "if", "then", "else", "when", "where",
		"why", "how", "which", "who", "what", "whom", "whose", "to", "of", "in", "on",
		"at", "for", "with", "by", "from", "about", "as", "into", "like", "through",
		"after", "over", "between", "out", "against", "during", "without", "before",
		"under", "around", "among", "i", "you", "he", "she", "it", "we", "they", "me",
		"my", "myself", "your", "yours", "yourself", "him", "his", "himself", "her",
		"hers", "herself", "its", "itself", "our", "ours", "ourselves", "their",
		"theirs", "themselves",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// KeywordLabel names a cluster from the most frequent non-stop words of its
// titles, joined with " & ".
func KeywordLabel(titles []string, topN int) string {
	if topN <= 0 {
		topN = 2
	}
	words := wordRe.FindAllString(strings.ToLower(strings.Join(titles, " ")), -1)
	var order []string
	counts := map[string]int{}
	for _, w := range words {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, ok := counts[w]; !ok {
			order = append(order, w)
		}
		counts[w]++
	}
	if len(order) == 0 {
		return PlaceholderLabel
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > topN {
		order = order[:topN]
	}
	return strings.Join(order, " & ")
}

func LabelPrompt(titles []string) string {
	if len(titles) > maxPromptTitles {
		titles = titles[:maxPromptTitles]
	}
	var b strings.Builder
	b.WriteString("You are analyzing conversation titles to create a short, descriptive cluster name.\n")
	b.WriteString("Here are the conversation titles in this cluster:\n")
	for _, t := range titles {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteString("\n")
	}
	b.WriteString("\nReply with a very short (2-4 words) descriptive title and nothing else.")
	return b.String()
}

type LabelerConfig struct {
	Attempts    int
	RetryDelay  time.Duration
	CallTimeout time.Duration
	KeywordTopN int
}

func DefaultLabelerConfig() LabelerConfig {
	return LabelerConfig{Attempts: 3, RetryDelay: time.Second, CallTimeout: 30 * time.Second, KeywordTopN: 2}
}

// Labeler asks the generator for a title and falls back to KeywordLabel.
type Labeler struct {
	log   *logger.Logger
	gen   Generator
	cfg   LabelerConfig
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLabeler(log *logger.Logger, gen Generator, cfg LabelerConfig) *Labeler {
	if log == nil {
		log = logger.NewNop()
	}
	d := DefaultLabelerConfig()
	if cfg.Attempts <= 0 {
		cfg.Attempts = d.Attempts
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = d.CallTimeout
	}
	if cfg.KeywordTopN <= 0 {
		cfg.KeywordTopN = d.KeywordTopN
	}
	return &Labeler{log: log.With("service", "ClusterLabeler"), gen: gen, cfg: cfg, sleep: httpx.Sleep}
}

// Label returns the title and where it came from (LabelSourceLLM or
// LabelSourceKeywords).
func (l *Labeler) Label(ctx context.Context, titles []string) (string, string) {
	if l.gen != nil {
		prompt := LabelPrompt(titles)
		for attempt := 1; attempt <= l.cfg.Attempts; attempt++ {
			label, err := l.generate(ctx, prompt)
			if err == nil && label != "" {
				return label, LabelSourceLLM
			}
			l.log.Warn("cluster label generation failed", "attempt", attempt, "error", err)
			if ctx.Err() != nil {
				break
			}
			if attempt < l.cfg.Attempts {
				if serr := l.sleep(ctx, l.cfg.RetryDelay); serr != nil {
					break
				}
			}
		}
		observability.Current().IncLLMFallback("labels")
	}
	return KeywordLabel(titles, l.cfg.KeywordTopN), LabelSourceKeywords
}

func (l *Labeler) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.CallTimeout)
	defer cancel()
	out, err := l.gen.Generate(callCtx, prompt)
	if err != nil {
		return "", err
	}
	out = strings.NewReplacer(`"`, "", `'`, "").Replace(out)
	return strings.TrimSpace(out), nil
}
