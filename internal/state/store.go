package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/metrics"
	"github.com/storyland-ai/storyland/internal/models"
)

var (
	// ErrWrongKind is returned when a write carries a payload that does not
	// match the key's declared result kind.
	ErrWrongKind = errors.New("state: payload kind does not match key")
	// ErrUntypedKey is returned when a typed operation targets an app-scope
	// key, which holds plain strings.
	ErrUntypedKey = errors.New("state: key does not hold a phase result")
)

// Durable is the user-scope backend. Implemented by SQLBackend.
type Durable interface {
	PutUserValue(ctx context.Context, userID string, key Key, res models.PhaseResult) error
	GetUserValue(ctx context.Context, userID string, key Key) (models.PhaseResult, bool, error)
}

// Store routes reads and writes by key scope: session and app keys go to
// Redis, user keys go to the durable backend. Session values carry a TTL so
// abandoned runs age out.
type Store struct {
	redis   redis.UniversalClient
	durable Durable
	logger  *zap.Logger
	ttl     time.Duration
}

// NewStore builds a store. durable may be nil, in which case user-scope keys
// are rejected.
func NewStore(rdb redis.UniversalClient, durable Durable, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		redis:   rdb,
		durable: durable,
		logger:  logger,
		ttl:     24 * time.Hour,
	}
}

func (s *Store) sessionSlot(sessionID string, key Key) string {
	return fmt.Sprintf("storyland:session:%s:%s", sessionID, key)
}

func (s *Store) appSlot(key Key) string {
	return fmt.Sprintf("storyland:%s", key)
}

// Put writes a validated phase result under key. The payload kind must match
// the key's declared kind.
func (s *Store) Put(ctx context.Context, sessionID, userID string, key Key, res models.PhaseResult) error {
	if err := res.Validate(); err != nil {
		return fmt.Errorf("state: invalid result for %s: %w", key, err)
	}
	want, ok := kindFor[key]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUntypedKey, key)
	}
	if res.Kind != want {
		return fmt.Errorf("%w: key %s wants %s, got %s", ErrWrongKind, key, want, res.Kind)
	}

	metrics.StateWrites.WithLabelValues(key.Scope().String()).Inc()

	switch key.Scope() {
	case ScopeUser:
		if s.durable == nil {
			return fmt.Errorf("state: no durable backend for %s", key)
		}
		return s.durable.PutUserValue(ctx, userID, key, res)
	default:
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("state: marshal %s: %w", key, err)
		}
		if err := s.redis.Set(ctx, s.sessionSlot(sessionID, key), data, s.ttl).Err(); err != nil {
			return fmt.Errorf("state: write %s: %w", key, err)
		}
		s.logger.Debug("State written",
			zap.String("session_id", sessionID),
			zap.String("key", string(key)),
			zap.String("scope", key.Scope().String()),
		)
		return nil
	}
}

// Get reads a phase result. The reader profile slot reads through to the
// durable user preferences when the session slot is empty, so a returning
// reader's profile carries over without any copy step.
func (s *Store) Get(ctx context.Context, sessionID, userID string, key Key) (models.PhaseResult, bool, error) {
	if _, ok := kindFor[key]; !ok {
		return models.PhaseResult{}, false, fmt.Errorf("%w: %s", ErrUntypedKey, key)
	}

	metrics.StateReads.WithLabelValues(key.Scope().String()).Inc()

	if key.Scope() == ScopeUser {
		if s.durable == nil {
			return models.PhaseResult{}, false, fmt.Errorf("state: no durable backend for %s", key)
		}
		return s.durable.GetUserValue(ctx, userID, key)
	}

	data, err := s.redis.Get(ctx, s.sessionSlot(sessionID, key)).Bytes()
	if err == redis.Nil {
		if key == KeyReaderProfile && s.durable != nil && userID != "" {
			return s.durable.GetUserValue(ctx, userID, KeyUserPreferences)
		}
		return models.PhaseResult{}, false, nil
	}
	if err != nil {
		return models.PhaseResult{}, false, fmt.Errorf("state: read %s: %w", key, err)
	}

	var res models.PhaseResult
	if err := json.Unmarshal(data, &res); err != nil {
		return models.PhaseResult{}, false, fmt.Errorf("state: decode %s: %w", key, err)
	}
	return res, true, nil
}

// Snapshot returns every populated session slot in write order.
func (s *Store) Snapshot(ctx context.Context, sessionID, userID string) (map[Key]models.PhaseResult, error) {
	out := make(map[Key]models.PhaseResult)
	for _, key := range sessionKeys {
		res, ok, err := s.Get(ctx, sessionID, userID, key)
		if err != nil {
			return nil, err
		}
		if ok {
			out[key] = res
		}
	}
	return out, nil
}

// Clear drops all session slots for a finished or abandoned run. Durable
// user state is untouched.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	slots := make([]string, 0, len(sessionKeys))
	for _, key := range sessionKeys {
		slots = append(slots, s.sessionSlot(sessionID, key))
	}
	if err := s.redis.Del(ctx, slots...).Err(); err != nil {
		return fmt.Errorf("state: clear session %s: %w", sessionID, err)
	}
	return nil
}

// SetAppValue writes a shared app-scope string, such as the gazetteer
// version. App values have no TTL.
func (s *Store) SetAppValue(ctx context.Context, key Key, value string) error {
	if key.Scope() != ScopeApp {
		return fmt.Errorf("state: %s is not app scope", key)
	}
	return s.redis.Set(ctx, s.appSlot(key), value, 0).Err()
}

// GetAppValue reads a shared app-scope string.
func (s *Store) GetAppValue(ctx context.Context, key Key) (string, bool, error) {
	if key.Scope() != ScopeApp {
		return "", false, fmt.Errorf("state: %s is not app scope", key)
	}
	v, err := s.redis.Get(ctx, s.appSlot(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}
