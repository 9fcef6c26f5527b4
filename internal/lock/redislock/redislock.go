// Package redislock is a per-user transfer lock shared by every instance
// talking to the same Redis.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "transfer_monitor:lock:"

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by someone else is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only while it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// Options configure the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect opens a client and checks the connection.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}

func New(client redis.UniversalClient, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

func key(userID string) string {
	return keyPrefix + userID
}

// TryAcquire claims the user's key with SET NX. The TTL frees locks of
// crashed instances.
func (l *Locker) TryAcquire(ctx context.Context, userID, token string) (bool, error) {
	ok, err := l.client.SetNX(ctx, key(userID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set lock key: %w", err)
	}

	return ok, nil
}

// Renew resets the key's TTL. It reports false when the key expired or now
// belongs to another token.
func (l *Locker) Renew(ctx context.Context, userID, token string) (bool, error) {
	n, err := renewScript.Run(ctx, l.client, []string{key(userID)}, token, l.ttl.Milliseconds()).Int()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("failed to renew lock key: %w", err)
	}

	return n == 1, nil
}

func (l *Locker) Release(ctx context.Context, userID, token string) error {
	if err := releaseScript.Run(ctx, l.client, []string{key(userID)}, token).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete lock key: %w", err)
	}

	return nil
}
