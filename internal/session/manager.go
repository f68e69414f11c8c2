package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/storyland-ai/storyland/internal/circuitbreaker"
	"github.com/storyland-ai/storyland/internal/metrics"
)

// Manager handles reader session management with Redis backend
type Manager struct {
	client      *circuitbreaker.RedisWrapper
	logger      *zap.Logger
	ttl         time.Duration
	mu          sync.RWMutex
	localCache  map[string]*Session  // Local cache for performance
	cacheAccess map[string]time.Time // Track last access time for LRU
	maxSessions int
}

// NewManager creates a new session manager
func NewManager(redisAddr string, logger *zap.Logger) (*Manager, error) {
	redisPassword := os.Getenv("REDIS_PASSWORD")

	redisClient := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := circuitbreaker.NewRedisWrapper(redisClient, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         24 * time.Hour,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}, nil
}

// NewManagerWithClient builds a manager around an existing wrapped client.
// Used by tests and by callers that share one Redis connection.
func NewManagerWithClient(client *circuitbreaker.RedisWrapper, logger *zap.Logger) *Manager {
	return &Manager{
		client:      client,
		logger:      logger,
		ttl:         24 * time.Hour,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}
}

// Create starts a new session for a reader and book.
func (m *Manager) Create(ctx context.Context, userID, bookTitle string, metadata map[string]interface{}) (*Session, error) {
	return m.CreateWithID(ctx, uuid.New().String(), userID, bookTitle, metadata)
}

// CreateWithID creates a session under a caller-chosen ID. An existing ID
// owned by another reader is never reused; a fresh ID is generated instead.
func (m *Manager) CreateWithID(ctx context.Context, sessionID, userID, bookTitle string, metadata map[string]interface{}) (*Session, error) {
	existing, _ := m.Get(ctx, sessionID)
	if existing != nil {
		if existing.UserID != userID {
			m.logger.Warn("Attempted to reuse session ID from different user, generating new ID",
				zap.String("requested_session_id", sessionID),
				zap.String("requesting_user", userID),
				zap.String("existing_owner", existing.UserID),
			)
			return m.CreateWithID(ctx, uuid.New().String(), userID, bookTitle, metadata)
		}
		return existing, nil
	}

	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		BookTitle: bookTitle,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
		ExpiresAt: time.Now().Add(m.ttl),
		Metadata:  metadata,
	}

	if err := m.save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[sessionID] = session
	m.cacheAccess[sessionID] = time.Now()
	m.evictIfFull()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Created new session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
		zap.String("book_title", bookTitle),
	)
	metrics.SessionsCreated.Inc()

	return session, nil
}

// Get retrieves a session by ID
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if session, ok := m.localCache[sessionID]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if session.IsExpired() {
			m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, m.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	if session.IsExpired() {
		m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.mu.Lock()
	m.localCache[sessionID] = &session
	m.cacheAccess[sessionID] = time.Now()
	m.evictIfFull()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	return &session, nil
}

// Update persists a modified session
func (m *Manager) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}

	session.UpdatedAt = time.Now()

	if err := m.save(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()

	return nil
}

// AttachWorkflow records the workflow run serving this session.
func (m *Manager) AttachWorkflow(ctx context.Context, sessionID, workflowID, runID string) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.WorkflowID = workflowID
	session.RunID = runID
	return m.Update(ctx, session)
}

// RecordPhase mirrors the latest observed workflow phase onto the session.
func (m *Manager) RecordPhase(ctx context.Context, sessionID, phase string) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.LastPhase = phase
	return m.Update(ctx, session)
}

// Delete removes a session
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, m.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()

	m.logger.Info("Deleted session", zap.String("session_id", sessionID))
	return nil
}

// Extend pushes out the expiry of a session. Selection waits can outlive the
// default TTL, so the gateway extends while a workflow is still running.
func (m *Manager) Extend(ctx context.Context, sessionID string, duration time.Duration) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	session.ExpiresAt = time.Now().Add(duration)
	return m.Update(ctx, session)
}

// ListUserSessions gets all live sessions for a reader.
func (m *Manager) ListUserSessions(ctx context.Context, userID string) ([]*Session, error) {
	keys, err := m.client.Keys(ctx, "storyland:reader_session:*").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var sessions []*Session
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}

		if session.UserID == userID && !session.IsExpired() {
			sessions = append(sessions, &session)
		}
	}

	return sessions, nil
}

// CleanupExpired removes expired sessions
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Keys(ctx, "storyland:reader_session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}

		if session.IsExpired() {
			if err := m.client.Del(ctx, key).Err(); err == nil {
				cleaned++
			}
		}
	}

	m.logger.Info("Cleaned up expired sessions", zap.Int("count", cleaned))
	return cleaned, nil
}

func (m *Manager) key(sessionID string) string {
	return fmt.Sprintf("storyland:reader_session:%s", sessionID)
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}

	return m.client.Set(ctx, m.key(session.ID), data, ttl).Err()
}

// evictIfFull drops the least recently used half of the cache when it grows
// past maxSessions. Caller holds mu.
func (m *Manager) evictIfFull() {
	if len(m.localCache) <= m.maxSessions {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, accessEntry{id: id, time: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxSessions / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
	}
}

// Close closes the session manager
func (m *Manager) Close() error {
	return m.client.Close()
}

// RedisWrapper returns the wrapped Redis client for health checks.
func (m *Manager) RedisWrapper() *circuitbreaker.RedisWrapper {
	return m.client
}
