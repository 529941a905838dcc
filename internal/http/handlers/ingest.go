package handlers

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/wrapped-backend/internal/http/response"
	"github.com/yungbote/wrapped-backend/internal/ingestion/exports"
	"github.com/yungbote/wrapped-backend/internal/platform/logger"
	"github.com/yungbote/wrapped-backend/internal/services"
)

const maxUploadBytes = 256 << 20

type IngestHandler struct {
	log *logger.Logger
	svc services.AnalyticsService
}

func NewIngestHandler(log *logger.Logger, svc services.AnalyticsService) *IngestHandler {
	if log == nil {
		log = logger.NewNop()
	}
	return &IngestHandler{log: log.With("handler", "IngestHandler"), svc: svc}
}

// POST /api/ingest (multipart: file, format, email, embed, start_batch)
func (h *IngestHandler) Upload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, fmt.Errorf("missing file: %w", err))
		return
	}
	if fh.Size > maxUploadBytes {
		badRequest(c, fmt.Errorf("file too large: %d bytes", fh.Size))
		return
	}
	format, err := exports.ParseFormat(c.PostForm("format"))
	if err != nil {
		respondErr(c, err)
		return
	}
	embed, _ := strconv.ParseBool(c.DefaultPostForm("embed", "false"))
	startBatch, err := intParam(c.DefaultPostForm("start_batch", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}

	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	email := strings.TrimSpace(c.PostForm("email"))
	table, err := exports.Parse(f, fh.Filename, format, exports.Options{Email: email})
	if err != nil {
		respondErr(c, err)
		return
	}
	res, err := h.svc.Ingest(c.Request.Context(), services.IngestInput{
		Table:         table,
		DefaultUserID: email,
		Embed:         embed,
		StartBatch:    startBatch,
	})
	if err != nil {
		h.log.Warn("ingest failed", "file", fh.Filename, "error", err)
		respondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

// POST /api/users/:user_id/reembed?start_batch=
func (h *IngestHandler) Reembed(c *gin.Context) {
	startBatch, err := intParam(c.DefaultQuery("start_batch", "0"))
	if err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Reembed(c.Request.Context(), c.Param("user_id"), startBatch)
	if err != nil {
		respondErr(c, err)
		return
	}
	response.RespondOK(c, res)
}

func intParam(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("start_batch must be a non-negative integer")
	}
	return n, nil
}
