package chatlog

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/yungbote/wrapped-backend/internal/platform/ctxutil"
	"github.com/yungbote/wrapped-backend/internal/platform/httpx"
)

const (
	writeAttempts = 3
	writeBackoff  = 200 * time.Millisecond
)

// IsTransient reports whether a store error is worth retrying: serialization
// failures, deadlocks, lock timeouts and connection exceptions.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		code := strings.TrimSpace(pgErr.Code)
		switch {
		case code == "40001", code == "40P01", code == "55P03":
			return true
		case strings.HasPrefix(code, "08"):
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "temporar")
}

// withRetry runs fn up to attempts times while the error is transient.
func withRetry(ctx context.Context, attempts int, fn func() error) error {
	ctx = ctxutil.Default(ctx)
	attempts = max(attempts, 1)
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = fn(); err == nil || !IsTransient(err) {
			return err
		}
		if attempt == attempts-1 {
			break
		}
		if serr := httpx.Sleep(ctx, httpx.ExpBackoff(writeBackoff, attempt)); serr != nil {
			return err
		}
	}
	return err
}
