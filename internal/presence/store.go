// Package presence binds a verified user identity (email) to its live
// WebSocket connection id in Redis. The moderation service uses it to find
// the connections to kick; the TTL keeps stale bindings from outliving a
// crashed server by much.
package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// KeyPrefix is the Redis key prefix for presence bindings.
	KeyPrefix = "presence:"

	// BindingTTL is how long a binding survives without a refresh. Every
	// Bind resets it; heartbeats re-bind on each ping.
	BindingTTL = 2 * time.Hour
)

// Store maps user emails to live connection ids in Redis.
type Store struct {
	client *redis.Client
}

// NewStore creates a presence store connected to Redis.
func NewStore(redisAddr string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	// Verify connection.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("presence: redis connection failed: %w", err)
	}

	return &Store{client: client}, nil
}

// NewStoreWithClient wraps an existing Redis client. The caller owns the
// client's lifecycle.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

// Bind records connID as the live connection for email, replacing any
// previous binding. A user who opens a second tab simply re-binds.
func (s *Store) Bind(ctx context.Context, email, connID string) error {
	if err := s.client.Set(ctx, KeyPrefix+email, connID, BindingTTL).Err(); err != nil {
		return fmt.Errorf("presence: bind %s: %w", email, err)
	}
	return nil
}

// Lookup returns the live connection id for email, or "" when the user has
// no binding.
func (s *Store) Lookup(ctx context.Context, email string) (string, error) {
	connID, err := s.client.Get(ctx, KeyPrefix+email).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("presence: lookup %s: %w", email, err)
	}
	return connID, nil
}

// Clear removes the binding for email, but only if it still points at
// connID. A newer binding from a reconnect is left alone.
func (s *Store) Clear(ctx context.Context, email, connID string) error {
	// Compare-and-delete so a reconnect racing a disconnect keeps the
	// newer binding.
	const script = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`
	if err := s.client.Eval(ctx, script, []string{KeyPrefix + email}, connID).Err(); err != nil {
		return fmt.Errorf("presence: clear %s: %w", email, err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
