package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/wrapped-backend/internal/analytics/retrieval"
	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/observability"
)

const (
	NotLoadedAnswer = "Sorry, the data is not yet loaded. Please wait a moment and try again."
	FallbackAnswer  = "Sorry, I had trouble connecting to my brain. Please try again."

	chatHistoryTurns = 4
	chatBodyChars    = 500
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatInput struct {
	UserID         string     `json:"user_id"`
	Query          string     `json:"query"`
	ConversationID string     `json:"conversation_id,omitempty"`
	History        []ChatTurn `json:"chat_history,omitempty"`
}

type ChatAnswer struct {
	Response string             `json:"response"`
	Context  *retrieval.Context `json:"context,omitempty"`
	Fallback bool               `json:"fallback"`
}

// Search ranks the user's embedded conversations against query. With a vector
// mirror configured the candidates are prefiltered by the index; index
// failures fall back to scanning the whole view.
func (s *analyticsService) Search(ctx context.Context, userID, query string) (retrieval.Context, error) {
	v := s.View()
	if v == nil {
		return retrieval.Context{}, ErrNotLoaded
	}
	if s.retriever == nil {
		return retrieval.Context{}, chatlog.NewError(chatlog.KindValidation, "search", "retrieval not configured", nil)
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return retrieval.Context{}, chatlog.NewError(chatlog.KindValidation, "search", "user_id required", nil)
	}

	ctx, span := observability.StartSpan(ctx, "analytics.search")
	defer span.End()
	vec, err := s.retriever.EmbedQuery(ctx, query)
	if err != nil {
		return retrieval.Context{}, err
	}
	docs := s.candidates(ctx, userID, vec, v.UserDocs(userID))
	return s.retriever.RetrieveVector(userID, vec, docs), nil
}

func (s *analyticsService) candidates(ctx context.Context, userID string, vec []float32, docs []chatlog.Document) []chatlog.Document {
	if s.mirror == nil || len(docs) == 0 {
		return docs
	}
	ids, err := s.mirror.Candidates(ctx, userID, vec, s.retriever.Config().TopN)
	if err != nil {
		s.log.Warn("vector index search failed; scanning view", "user_id", userID, "error", err)
		return docs
	}
	if len(ids) == 0 {
		return docs
	}
	out := make([]chatlog.Document, 0, len(ids))
	for _, d := range docs {
		if _, ok := ids[d.ID]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Compare returns the most similar conversation pairs across two users.
func (s *analyticsService) Compare(ctx context.Context, userA, userB string) ([]retrieval.Pair, error) {
	userA, userB = strings.TrimSpace(userA), strings.TrimSpace(userB)
	if userA == "" || userB == "" {
		return nil, chatlog.NewError(chatlog.KindValidation, "compare", "both users required", nil)
	}
	v := s.View()
	if v == nil {
		return nil, ErrNotLoaded
	}
	for _, u := range []string{userA, userB} {
		if !v.HasUser(u) {
			return nil, fmt.Errorf("user %q: %w", u, ErrNotFound)
		}
	}
	_, span := observability.StartSpan(ctx, "analytics.compare")
	defer span.End()
	return retrieval.CompareUsers(v.UserDocs(userA), v.UserDocs(userB), retrieval.DefaultCompareTopN, retrieval.DefaultCompareMin), nil
}

// Chat answers a question about the user's conversations. Answer generation
// failures return FallbackAnswer, not an error.
func (s *analyticsService) Chat(ctx context.Context, in ChatInput) (ChatAnswer, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return ChatAnswer{}, chatlog.NewError(chatlog.KindValidation, "chat", "query required", nil)
	}
	v := s.View()
	if v == nil {
		return ChatAnswer{Response: NotLoadedAnswer, Fallback: true}, ErrNotLoaded
	}
	userID := strings.TrimSpace(in.UserID)

	var rc *retrieval.Context
	if userID != "" && s.retriever != nil {
		if got, err := s.Search(ctx, userID, query); err != nil {
			s.log.Warn("chat retrieval failed; answering without it", "user_id", userID, "error", err)
		} else {
			rc = &got
		}
	}

	var selected *chatlog.Document
	if d, ok := v.Find(userID, strings.TrimSpace(in.ConversationID)); ok {
		selected = &d
	}
	prompt := ChatPrompt(query, in.History, selected, retrieval.RecentContext(v.UserDocs(userID), retrieval.DefaultRecent), rc)

	if s.answerer == nil {
		return ChatAnswer{Response: FallbackAnswer, Context: rc, Fallback: true}, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.ChatTimeout)
	defer cancel()
	answer, err := s.answerer.Generate(callCtx, prompt)
	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		s.log.Warn("chat answer failed", "user_id", userID, "error", err)
		observability.Current().IncLLMFallback("chat")
		return ChatAnswer{Response: FallbackAnswer, Context: rc, Fallback: true}, nil
	}
	return ChatAnswer{Response: answer, Context: rc}, nil
}

// ChatPrompt renders the answer prompt: the last history turns, the selected
// conversation, recent titles and retrieved context.
func ChatPrompt(query string, history []ChatTurn, selected *chatlog.Document, recent []chatlog.Document, rc *retrieval.Context) string {
	if len(history) > chatHistoryTurns {
		history = history[len(history)-chatHistoryTurns:]
	}
	if history == nil {
		history = []ChatTurn{}
	}
	hist, _ := json.Marshal(history)

	var ctxb strings.Builder
	ctxb.WriteString("Here is some context about the user's conversations:\n")
	if selected != nil {
		fmt.Fprintf(&ctxb, "- You are currently looking at a conversation titled: '%s'.\n", selected.Title)
		if selected.Body != "" {
			fmt.Fprintf(&ctxb, "  Summary of this conversation: %s\n", retrieval.Truncate(selected.Body, chatBodyChars))
		}
	}
	if len(recent) > 0 {
		ctxb.WriteString("\nHere are some of the user's most recent conversations:\n")
		for _, d := range recent {
			fmt.Fprintf(&ctxb, "- Title: %s\n", d.Title)
		}
	}
	if rc != nil && !rc.NoContext {
		ctxb.WriteString("\nRelevant conversations:\n")
		ctxb.WriteString(rc.Text)
		ctxb.WriteString("\n")
	}

	var b strings.Builder
	b.WriteString("You are Wrapped.ai, a helpful AI assistant.\n")
	b.WriteString("Your goal is to answer questions about the user's conversation data.\n")
	b.WriteString("Use the provided CONTEXT and CHAT HISTORY to answer the user's QUERY.\n")
	b.WriteString("Be conversational and helpful. If you don't know the answer from the context, say so.\n\n")
	b.WriteString("--- CHAT HISTORY ---\n")
	b.Write(hist)
	b.WriteString("\n\n--- CONTEXT ---\n")
	b.WriteString(ctxb.String())
	b.WriteString("\n--- USER QUERY ---\n")
	b.WriteString(query)
	b.WriteString("\n")
	return b.String()
}
