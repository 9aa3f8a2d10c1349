package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore is a Store backed by Redis hashes, one per (subject, key) row.
// Rows are addressed by an xxhash-derived key; subject and key are kept
// verbatim as hash fields for debugging/iteration.
type RedisStore struct {
	rdb    *redis.Client
	logger *zap.Logger
	prefix string
}

// NewRedisStore wraps an already-constructed *redis.Client. prefix namespaces
// all keys this store writes (e.g. "urlcleaner:cache:").
func NewRedisStore(rdb *redis.Client, logger *zap.Logger, prefix string) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, logger: logger, prefix: prefix}
}

func (s *RedisStore) redisKey(keys EntryKeys) string {
	return s.prefix + keyFor(keys.Subject, keys.Key)
}

// keyFor derives a fixed-width store key from a (subject, key) pair via
// xxhash, the same way the teacher addresses its cache rows.
func keyFor(subject, key string) string {
	h := xxhash.New()
	_, _ = h.WriteString(subject)
	_, _ = h.Write([]byte{0})
	_, _ = h.WriteString(key)
	return strconv.FormatUint(h.Sum64(), 16)
}

const (
	fieldSubject  = "subject"
	fieldKey      = "key"
	fieldHasValue = "has_value"
	fieldValue    = "value"
	fieldDuration = "duration_ns"
)

func (s *RedisStore) Read(ctx context.Context, keys EntryKeys) (*Entry, error) {
	result, err := s.rdb.HGetAll(ctx, s.redisKey(keys)).Result()
	if err != nil {
		s.logger.Error("cache read failed", zap.String("subject", keys.Subject), zap.Error(err))
		return nil, fmt.Errorf("cache: read %s/%s: %w", keys.Subject, keys.Key, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	durationNs, _ := strconv.ParseInt(result[fieldDuration], 10, 64)
	entry := &Entry{Duration: time.Duration(durationNs)}
	if result[fieldHasValue] == "1" {
		v := result[fieldValue]
		entry.Value = &v
	}
	return entry, nil
}

func (s *RedisStore) Write(ctx context.Context, entry NewEntry) error {
	hasValue := "0"
	value := ""
	if entry.Value != nil {
		hasValue = "1"
		value = *entry.Value
	}

	err := s.rdb.HSet(ctx, s.redisKey(EntryKeys{Subject: entry.Subject, Key: entry.Key}),
		fieldSubject, entry.Subject,
		fieldKey, entry.Key,
		fieldHasValue, hasValue,
		fieldValue, value,
		fieldDuration, strconv.FormatInt(int64(entry.Duration), 10),
	).Err()
	if err != nil {
		s.logger.Error("cache write failed", zap.String("subject", entry.Subject), zap.Error(err))
		return fmt.Errorf("cache: write %s/%s: %w", entry.Subject, entry.Key, err)
	}
	return nil
}
