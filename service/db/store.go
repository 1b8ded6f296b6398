package db

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a session has no stored preference.
var ErrNotFound = errors.New("preference not found")

// Store persists browsing preferences in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool for databaseURL, verifies it and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	store := NewStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the preference table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// SelectedNetwork returns the network a session last selected.
func (s *Store) SelectedNetwork(ctx context.Context, sessionID string) (string, error) {
	var network string
	err := s.pool.QueryRow(ctx,
		`SELECT network FROM session_preferences WHERE session_id = $1`,
		sessionID,
	).Scan(&network)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get selected network: %w", err)
	}
	return network, nil
}

// SetSelectedNetwork records the network a session selected.
func (s *Store) SetSelectedNetwork(ctx context.Context, sessionID, network string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO session_preferences (session_id, network, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id)
		DO UPDATE SET network = EXCLUDED.network, updated_at = EXCLUDED.updated_at`,
		sessionID, network,
	)
	if err != nil {
		return fmt.Errorf("failed to set selected network: %w", err)
	}
	return nil
}

// DeleteBefore removes preferences not updated since cutoff.
func (s *Store) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM session_preferences WHERE updated_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete preferences: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// MemoryStore keeps preferences in process memory when no database is
// configured.
type MemoryStore struct {
	mu    sync.RWMutex
	prefs map[string]memoryPref
	now   func() time.Time
}

type memoryPref struct {
	network   string
	updatedAt time.Time
}

// NewMemoryStore creates an empty in-memory preference store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{prefs: make(map[string]memoryPref), now: time.Now}
}

// SelectedNetwork returns the network a session last selected.
func (m *MemoryStore) SelectedNetwork(_ context.Context, sessionID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.prefs[sessionID]
	if !ok {
		return "", ErrNotFound
	}
	return p.network, nil
}

// SetSelectedNetwork records the network a session selected.
func (m *MemoryStore) SetSelectedNetwork(_ context.Context, sessionID, network string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[sessionID] = memoryPref{network: network, updatedAt: m.now()}
	return nil
}

// DeleteBefore removes preferences not updated since cutoff.
func (m *MemoryStore) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, p := range m.prefs {
		if p.updatedAt.Before(cutoff) {
			delete(m.prefs, id)
			n++
		}
	}
	return n, nil
}
