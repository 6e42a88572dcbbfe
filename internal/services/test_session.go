package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/SuperscriptSystems/Quillio/internal/logger"
	"github.com/SuperscriptSystems/Quillio/internal/types"
	"github.com/SuperscriptSystems/Quillio/internal/utils"
)

var (
	// ErrNoActiveTest is returned when no snapshot exists for the user/kind.
	ErrNoActiveTest = errors.New("no active test session")

	// ErrSnapshotVersion is returned when a stored snapshot was written by an
	// incompatible build.
	ErrSnapshotVersion = errors.New("test snapshot version mismatch")
)

// TestSessionStore holds in-flight test snapshots between requests. The
// snapshot is opaque to the store; it round-trips through JSON.
type TestSessionStore interface {
	Save(ctx context.Context, userID uuid.UUID, snap *types.TestSnapshot) error
	Load(ctx context.Context, userID uuid.UUID, kind string) (*types.TestSnapshot, error)
	Clear(ctx context.Context, userID uuid.UUID, kind string) error
}

type redisTestSessionStore struct {
	log *logger.Logger
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisTestSessionStore connects to REDIS_ADDR and stores snapshots with a
// TTL (TEST_SESSION_TTL_MINUTES, default 120).
func NewRedisTestSessionStore(baseLog *logger.Logger) (TestSessionStore, error) {
	log := baseLog.With("service", "TestSessionStore")

	addr := utils.GetEnv("REDIS_ADDR", "", log)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    utils.GetEnv("REDIS_PASSWORD", "", log),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := time.Duration(utils.GetEnvAsInt("TEST_SESSION_TTL_MINUTES", 120, log)) * time.Minute
	return &redisTestSessionStore{log: log, rdb: rdb, ttl: ttl}, nil
}

func sessionKey(userID uuid.UUID, kind string) string {
	return fmt.Sprintf("testsession:%s:%s", userID, kind)
}

func (s *redisTestSessionStore) Save(ctx context.Context, userID uuid.UUID, snap *types.TestSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	snap.Version = types.TestSnapshotVersion
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.rdb.Set(ctx, sessionKey(userID, snap.Kind), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (s *redisTestSessionStore) Load(ctx context.Context, userID uuid.UUID, kind string) (*types.TestSnapshot, error) {
	raw, err := s.rdb.Get(ctx, sessionKey(userID, kind)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNoActiveTest
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return decodeSnapshot(raw)
}

func (s *redisTestSessionStore) Clear(ctx context.Context, userID uuid.UUID, kind string) error {
	if err := s.rdb.Del(ctx, sessionKey(userID, kind)).Err(); err != nil {
		return fmt.Errorf("clear snapshot: %w", err)
	}
	return nil
}

func decodeSnapshot(raw []byte) (*types.TestSnapshot, error) {
	var snap types.TestSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != types.TestSnapshotVersion {
		return nil, fmt.Errorf("%w: got %d want %d", ErrSnapshotVersion, snap.Version, types.TestSnapshotVersion)
	}
	return &snap, nil
}

// memoryTestSessionStore is a process-local store for tests and redis-less
// development.
type memoryTestSessionStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryTestSessionStore() TestSessionStore {
	return &memoryTestSessionStore{data: make(map[string][]byte)}
}

func (s *memoryTestSessionStore) Save(ctx context.Context, userID uuid.UUID, snap *types.TestSnapshot) error {
	if snap == nil {
		return fmt.Errorf("nil snapshot")
	}
	snap.Version = types.TestSnapshotVersion
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sessionKey(userID, snap.Kind)] = raw
	return nil
}

func (s *memoryTestSessionStore) Load(ctx context.Context, userID uuid.UUID, kind string) (*types.TestSnapshot, error) {
	s.mu.RLock()
	raw, ok := s.data[sessionKey(userID, kind)]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNoActiveTest
	}
	return decodeSnapshot(raw)
}

func (s *memoryTestSessionStore) Clear(ctx context.Context, userID uuid.UUID, kind string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionKey(userID, kind))
	return nil
}
