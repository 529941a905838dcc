package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/wrapped-backend/internal/http/response"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/services"
)

type AnalyticsHandler struct {
	log *logger.Logger
	svc services.AnalyticsService
}

func NewAnalyticsHandler(log *logger.Logger, svc services.AnalyticsService) *AnalyticsHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &AnalyticsHandler{log: log.With("handler", "AnalyticsHandler"), svc: svc}
}

// GET /api/data
func (h *AnalyticsHandler) GetData(c *gin.Context) {
	v := h.svc.View()
	if v == nil {
		respondErr(c, services.ErrNotLoaded)
		return
	}
	response.RespondOK(c, v)
}

// POST /api/refresh
func (h *AnalyticsHandler) Refresh(c *gin.Context) {
	v, err := h.svc.Refresh(c.Request.Context(), "api")
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"stats": v.Stats})
}

type compareRequest struct {
	Email1 string `json:"email1"`
	Email2 string `json:"email2"`
}

// POST /api/compare
func (h *AnalyticsHandler) Compare(c *gin.Context) {
	var req compareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if strings.TrimSpace(req.Email1) == "" || strings.TrimSpace(req.Email2) == "" {
		badRequest(c, errors.New("email1 and email2 are required"))
		return
	}
	pairs, err := h.svc.Compare(c.Request.Context(), req.Email1, req.Email2)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"pairs": pairs})
}

type selectedConversation struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversation_id"`
}

type chatRequest struct {
	Query                string                `json:"query"`
	UserEmail            string                `json:"user_email"`
	SelectedConversation *selectedConversation `json:"selected_conversation"`
	ChatHistory          []services.ChatTurn   `json:"chat_history"`
}

// POST /api/chat
func (h *AnalyticsHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	in := services.ChatInput{
		UserID:  req.UserEmail,
		Query:   req.Query,
		History: req.ChatHistory,
	}
	if sc := req.SelectedConversation; sc != nil {
		in.ConversationID = sc.ID
		if in.ConversationID == "" {
			in.ConversationID = sc.ConversationID
		}
	}
	ans, err := h.svc.Chat(c.Request.Context(), in)
	if errors.Is(err, services.ErrNotLoaded) {
		c.JSON(http.StatusServiceUnavailable, ans)
		return
	}
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, ans)
}

type searchRequest struct {
	UserID string `json:"user_id"`
	Query  string `json:"query"`
}

// POST /api/search
func (h *AnalyticsHandler) Search(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	out, err := h.svc.Search(c.Request.Context(), req.UserID, req.Query)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/wrapped/:user_id?fresh=true
func (h *AnalyticsHandler) Wrapped(c *gin.Context) {
	fresh, _ := strconv.ParseBool(c.DefaultQuery("fresh", "false"))
	out, err := h.svc.Wrapped(c.Request.Context(), c.Param("user_id"), fresh)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/graph?user_id=&top_k=
func (h *AnalyticsHandler) Graph(c *gin.Context) {
	topK := 0
	if raw := strings.TrimSpace(c.Query("top_k")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, fmt.Errorf("top_k must be a positive integer"))
			return
		}
		topK = n
	}
	out, err := h.svc.Graph(c.Request.Context(), c.Query("user_id"), topK)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/users
func (h *AnalyticsHandler) ListUsers(c *gin.Context) {
	users, err := h.svc.ListUsers(c.Request.Context())
	if err != nil {
		respondErr(c, err)
		return
	}
	if users == nil {
		users = []string{}
	}
	response.RespondOK(c, gin.H{"users": users})
}

// GET /api/users/:user_id/reports
func (h *AnalyticsHandler) ListReports(c *gin.Context) {
	out, err := h.svc.Reports(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, gin.H{"reports": out})
}
