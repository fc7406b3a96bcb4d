package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNoState is returned by Store.Load when nothing is recorded for a resource.
var ErrNoState = errors.New("no quota state recorded")

// Store records quota snapshots. It is informational: the governor always
// decides on fresh provider data and only writes here.
type Store interface {
	Save(ctx context.Context, state QuotaState) error
	Load(ctx context.Context, resource string) (*QuotaState, error)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]QuotaState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]QuotaState)}
}

func (m *MemoryStore) Save(ctx context.Context, state QuotaState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state.Resource] = state
	return nil
}

func (m *MemoryStore) Load(ctx context.Context, resource string) (*QuotaState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[resource]
	if !ok {
		return nil, ErrNoState
	}
	return &state, nil
}

// Redis key suffixes for quota state storage.
const (
	redisKeyPrefix     = "timeline:quota:"
	redisKeyRemaining  = ":remaining"
	redisKeyResetAt    = ":reset_timestamp"
	redisKeyLastUpdate = ":last_update"

	// minRedisTTL keeps a snapshot whose reset already passed visible briefly.
	minRedisTTL = time.Second
)

// RedisStore shares quota snapshots between processes using the same
// credentials. Keys expire when the window resets, so a snapshot never
// outlives the window it describes.
type RedisStore struct {
	redis *redis.Client
	now   func() time.Time
}

// NewRedisStore creates a store backed by the given client.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{redis: redisClient, now: time.Now}
}

func redisKey(resource, suffix string) string {
	return redisKeyPrefix + resource + suffix
}

// Save stores the state atomically with expiry at its reset time.
func (r *RedisStore) Save(ctx context.Context, state QuotaState) error {
	ttl := state.TimeUntilReset(r.now())
	if ttl < minRedisTTL {
		ttl = minRedisTTL
	}

	lastUpdateJSON, err := json.Marshal(state.LastUpdate)
	if err != nil {
		return fmt.Errorf("marshal last update: %w", err)
	}

	pipe := r.redis.TxPipeline()
	pipe.Set(ctx, redisKey(state.Resource, redisKeyRemaining), state.Remaining, ttl)
	pipe.Set(ctx, redisKey(state.Resource, redisKeyResetAt), state.ResetAt.Unix(), ttl)
	pipe.Set(ctx, redisKey(state.Resource, redisKeyLastUpdate), lastUpdateJSON, ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store quota state in redis: %w", err)
	}
	return nil
}

// Load retrieves the state for a resource. Returns ErrNoState if nothing is
// stored or the window already expired.
func (r *RedisStore) Load(ctx context.Context, resource string) (*QuotaState, error) {
	remaining, err := r.redis.Get(ctx, redisKey(resource, redisKeyRemaining)).Int()
	if err == redis.Nil {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("get remaining: %w", err)
	}

	resetTimestamp, err := r.redis.Get(ctx, redisKey(resource, redisKeyResetAt)).Int64()
	if err == redis.Nil {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("get reset timestamp: %w", err)
	}

	state := &QuotaState{
		Resource:  resource,
		Remaining: remaining,
		ResetAt:   time.Unix(resetTimestamp, 0),
	}

	lastUpdateStr, err := r.redis.Get(ctx, redisKey(resource, redisKeyLastUpdate)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("get last update: %w", err)
	}
	if lastUpdateStr != "" {
		if err := json.Unmarshal([]byte(lastUpdateStr), &state.LastUpdate); err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
	}

	return state, nil
}
