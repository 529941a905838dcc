package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/wrapped-backend/internal/domain/chatlog"
	"github.com/yungbote/wrapped-backend/internal/http/response"
	"github.com/yungbote/wrapped-backend/internal/platform/apierr"
	"github.com/yungbote/wrapped-backend/internal/services"
)

// toAPIError maps service and engine errors onto HTTP statuses.
func toAPIError(err error) *apierr.Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, services.ErrNotFound):
		return apierr.New(http.StatusNotFound, "not_found", err)
	case errors.Is(err, services.ErrNotLoaded):
		return apierr.New(http.StatusServiceUnavailable, "not_loaded", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apierr.New(http.StatusGatewayTimeout, "timeout", err)
	}
	switch chatlog.KindOf(err) {
	case chatlog.KindValidation:
		return apierr.New(http.StatusBadRequest, "invalid_request", err)
	case chatlog.KindSchema, chatlog.KindParse:
		return apierr.New(http.StatusUnprocessableEntity, "invalid_export", err)
	case chatlog.KindService:
		return apierr.New(http.StatusBadGateway, "upstream_error", err)
	case chatlog.KindPersistence:
		return apierr.New(http.StatusInternalServerError, "persistence_error", err)
	}
	return apierr.New(http.StatusInternalServerError, "internal_error", err)
}

func respondErr(c *gin.Context, err error) {
	response.RespondAPIError(c, toAPIError(err))
}

func badRequest(c *gin.Context, err error) {
	response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
}
