package domain

import "github.com/yungbote/wrapped-backend/internal/domain/chatlog"

const (
	RoleUser      = chatlog.RoleUser
	RoleAssistant = chatlog.RoleAssistant

	KindMessage      = chatlog.KindMessage
	KindConversation = chatlog.KindConversation

	ReportWrapped = chatlog.ReportWrapped
	ReportGraph   = chatlog.ReportGraph
)

type (
	Record          = chatlog.Record
	Conversation    = chatlog.Conversation
	ChatLog         = chatlog.ChatLog
	Report          = chatlog.Report
	EmbeddingRecord = chatlog.EmbeddingRecord
	Document        = chatlog.Document
	Cluster         = chatlog.Cluster
	UserClusters    = chatlog.UserClusters
	Assignment      = chatlog.Assignment
)
