package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/wrapped-backend/internal/data/repos/chatlog"
	"github.com/yungbote/wrapped-backend/internal/data/repos/report"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type ChatLogRepo = chatlog.ChatLogRepo
type ChatLogFilter = chatlog.Filter
type ReportRepo = report.ReportRepo

func NewChatLogRepo(db *gorm.DB, baseLog *logger.Logger) ChatLogRepo {
	return chatlog.NewChatLogRepo(db, baseLog)
}

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return report.NewReportRepo(db, baseLog)
}
