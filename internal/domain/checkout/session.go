// internal/domain/checkout/session.go
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// SessionStore persists one checkout State per shopper in Redis
type SessionStore struct {
	redisClient *redis.Client
	ttl         time.Duration
}

// NewSessionStore creates a new session store
func NewSessionStore(redisClient *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

func sessionKey(login string) string {
	return fmt.Sprintf("checkout:state:%s", login)
}

// Load returns the stored state, or a fresh one if none exists
func (s *SessionStore) Load(ctx context.Context, login string) (State, error) {
	data, err := s.redisClient.Get(ctx, sessionKey(login)).Result()
	if errors.Is(err, redis.Nil) {
		return NewState(), nil
	}
	if err != nil {
		return State{}, fmt.Errorf("failed to load checkout state: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		return State{}, fmt.Errorf("failed to decode checkout state: %w", err)
	}
	return state, nil
}

// Save stores the state and refreshes its TTL
func (s *SessionStore) Save(ctx context.Context, login string, state State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode checkout state: %w", err)
	}
	if err := s.redisClient.Set(ctx, sessionKey(login), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save checkout state: %w", err)
	}
	return nil
}

// Clear removes the stored state
func (s *SessionStore) Clear(ctx context.Context, login string) error {
	return s.redisClient.Del(ctx, sessionKey(login)).Err()
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// InFlightGuard allows one payment round-trip per shopper at a time
type InFlightGuard struct {
	redisClient *redis.Client
	ttl         time.Duration
	logger      *logrus.Logger
}

// NewInFlightGuard creates a new guard. ttl bounds how long a crashed request can block the shopper.
func NewInFlightGuard(redisClient *redis.Client, ttl time.Duration, logger *logrus.Logger) *InFlightGuard {
	return &InFlightGuard{
		redisClient: redisClient,
		ttl:         ttl,
		logger:      logger,
	}
}

func inFlightKey(login string) string {
	return fmt.Sprintf("checkout:inflight:%s", login)
}

// Acquire takes the shopper's lock. The returned func releases it.
func (g *InFlightGuard) Acquire(ctx context.Context, login string) (func(), error) {
	token := uuid.NewString()
	ok, err := g.redisClient.SetNX(ctx, inFlightKey(login), token, g.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire payment lock: %w", err)
	}
	if !ok {
		return nil, ErrPaymentInProgress
	}

	return func() {
		// The request context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		released, err := releaseScript.Run(releaseCtx, g.redisClient, []string{inFlightKey(login)}, token).Int()
		switch {
		case err != nil:
			// The lock stays until its TTL runs out.
			g.logger.WithError(err).WithField("user", login).Warn("Failed to release payment lock")
		case released == 0:
			g.logger.WithField("user", login).Warn("Payment lock expired before release")
		}
	}, nil
}
