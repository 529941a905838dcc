package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/wrapped-backend/internal/data/repos"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

type Repos struct {
	ChatLogs repos.ChatLogRepo
	Reports  repos.ReportRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		ChatLogs: repos.NewChatLogRepo(db, log),
		Reports:  repos.NewReportRepo(db, log),
	}
}
