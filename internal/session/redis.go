package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/mailprobe/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "mailprobe:"

// RedisStore keeps sessions in Redis with a TTL matching their expiry, so
// expired sessions disappear without a cleanup job.
type RedisStore struct {
	rc *redis.Client
}

// NewRedisStore creates a Store backed by rc.
func NewRedisStore(rc *redis.Client) *RedisStore {
	return &RedisStore{rc: rc}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}

	rc := redis.NewClient(opts)
	if err := rc.Ping(ctx).Err(); err != nil {
		rc.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rc, nil
}

// PingContext reports whether Redis is reachable, for health checks.
func (s *RedisStore) PingContext(ctx context.Context) error {
	return s.rc.Ping(ctx).Err()
}

type redisSession struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

func sessionKey(tokenHash string) string {
	return redisKeyPrefix + "session:" + tokenHash
}

func userSessionsKey(userID uuid.UUID) string {
	return redisKeyPrefix + "user_sessions:" + userID.String()
}

func (s *RedisStore) Create(ctx context.Context, sess domain.Session) error {
	ttl := ttlUntil(sess.ExpiresAt, time.Now())
	if ttl == 0 {
		return errors.New("session already expired")
	}

	payload, err := json.Marshal(redisSession{
		UserID:    sess.UserID,
		Username:  sess.Username,
		ExpiresAt: sess.ExpiresAt,
		CreatedAt: sess.CreatedAt,
	})
	if err != nil {
		return err
	}

	userKey := userSessionsKey(sess.UserID)
	pipe := s.rc.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.TokenHash), payload, ttl)
	pipe.SAdd(ctx, userKey, sess.TokenHash)
	// The index lives as long as the newest session.
	pipe.Expire(ctx, userKey, ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	payload, err := s.rc.Get(ctx, sessionKey(tokenHash)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var rs redisSession
	if err := json.Unmarshal(payload, &rs); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	sess := &domain.Session{
		TokenHash: tokenHash,
		UserID:    rs.UserID,
		Username:  rs.Username,
		ExpiresAt: rs.ExpiresAt,
		CreatedAt: rs.CreatedAt,
	}
	if sess.IsExpired() {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *RedisStore) Delete(ctx context.Context, tokenHash string) error {
	return s.rc.Del(ctx, sessionKey(tokenHash)).Err()
}

func (s *RedisStore) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	userKey := userSessionsKey(userID)

	hashes, err := s.rc.SMembers(ctx, userKey).Result()
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, sessionKey(h))
	}
	keys = append(keys, userKey)

	return s.rc.Del(ctx, keys...).Err()
}

// DeleteExpired is a no-op; Redis expires keys on its own.
func (s *RedisStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

var _ Store = (*RedisStore)(nil)
