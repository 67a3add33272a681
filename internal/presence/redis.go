package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cwrk-planet/chat-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "presence:"

// RedisTracker хранит на каждого пользователя хэш session_id -> unix-время
// последнего пинга. Ключ живёт ttl с последнего Touch; сессия считается
// живой, пока её отметка свежее ttl.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisTracker(redisURL string, ttl time.Duration) (*RedisTracker, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewRedisTrackerWithClient(client, ttl), nil
}

func NewRedisTrackerWithClient(client *redis.Client, ttl time.Duration) *RedisTracker {
	return &RedisTracker{client: client, ttl: ttl, now: time.Now}
}

func key(user domain.UserID) string {
	return keyPrefix + strconv.FormatInt(int64(user), 10)
}

func (t *RedisTracker) Touch(ctx context.Context, user domain.UserID, session string) error {
	k := key(user)
	_, err := t.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, k, session, t.now().Unix())
		p.Expire(ctx, k, t.ttl)
		return nil
	})
	if err != nil {
		return domain.StoreError("presence.Touch", err)
	}
	return nil
}

func (t *RedisTracker) Leave(ctx context.Context, user domain.UserID, session string) error {
	if err := t.client.HDel(ctx, key(user), session).Err(); err != nil {
		return domain.StoreError("presence.Leave", err)
	}
	return nil
}

func (t *RedisTracker) Online(ctx context.Context, users []domain.UserID) (map[domain.UserID]bool, error) {
	out := make(map[domain.UserID]bool, len(users))
	if len(users) == 0 {
		return out, nil
	}

	cmds := make([]*redis.StringSliceCmd, len(users))
	_, err := t.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, u := range users {
			cmds[i] = p.HVals(ctx, key(u))
		}
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, domain.StoreError("presence.Online", err)
	}

	cutoff := t.now().Add(-t.ttl).Unix()
	for i, u := range users {
		out[u] = false
		for _, v := range cmds[i].Val() {
			ts, err := strconv.ParseInt(v, 10, 64)
			if err == nil && ts >= cutoff {
				out[u] = true
				break
			}
		}
	}
	return out, nil
}

func (t *RedisTracker) Close() error {
	return t.client.Close()
}
