package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/wrapped-backend/internal/platform/logger"
)

const DefaultReportTTL = 6 * time.Hour

// ReportStore caches rendered report payloads by (user, kind, year).
type ReportStore interface {
	Get(ctx context.Context, userID, kind string, year int) ([]byte, bool, error)
	Set(ctx context.Context, userID, kind string, year int, payload []byte) error
	Invalidate(ctx context.Context, userID string) error
}

type redisReportStore struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisReportStore(log *logger.Logger, rdb *goredis.Client, prefix string, ttl time.Duration) (ReportStore, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "wr"
	}
	if ttl <= 0 {
		ttl = DefaultReportTTL
	}
	return &redisReportStore{
		log:    log.With("service", "RedisReportStore"),
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func reportKey(prefix, userID, kind string, year int) string {
	return prefix + ":report:" + userID + ":" + kind + ":" + strconv.Itoa(year)
}

func (s *redisReportStore) Get(ctx context.Context, userID, kind string, year int) ([]byte, bool, error) {
	raw, err := s.rdb.Get(ctx, reportKey(s.prefix, userID, kind, year)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *redisReportStore) Set(ctx context.Context, userID, kind string, year int, payload []byte) error {
	return s.rdb.Set(ctx, reportKey(s.prefix, userID, kind, year), payload, s.ttl).Err()
}

// Invalidate drops every cached report of userID.
func (s *redisReportStore) Invalidate(ctx context.Context, userID string) error {
	pattern := s.prefix + ":report:" + userID + ":*"
	iter := s.rdb.Scan(ctx, 0, pattern, 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	s.log.Debug("invalidating cached reports", "user_id", userID, "keys", len(keys))
	return s.rdb.Del(ctx, keys...).Err()
}
