package session

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/brojonat/aascan/service/browser"
	"github.com/brojonat/aascan/service/metrics"
	natspkg "github.com/brojonat/aascan/service/nats"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/resolver"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "aascan_session"

const (
	// DefaultTTL is how long an idle session is kept.
	DefaultTTL = 30 * time.Minute

	// PreferenceRetention is how long a selected network outlives its session.
	PreferenceRetention = 30 * 24 * time.Hour
)

// PreferenceStore persists the selected network per session id.
type PreferenceStore interface {
	SelectedNetwork(ctx context.Context, sessionID string) (string, error)
	SetSelectedNetwork(ctx context.Context, sessionID, network string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Querier is everything a session's views and resolver read from.
type Querier interface {
	browser.Querier
	resolver.Prober
}

// Config holds the collaborators shared by all sessions.
type Config struct {
	Registry       *networks.Registry
	Querier        Querier
	Preferences    PreferenceStore
	Publisher      natspkg.Publisher
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	TTL            time.Duration
	ResolveTimeout time.Duration
}

// Store holds live sessions and evicts idle ones.
type Store struct {
	reg            *networks.Registry
	querier        Querier
	prefs          PreferenceStore
	publisher      natspkg.Publisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
	ttl            time.Duration
	resolveTimeout time.Duration
	now            func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewStore creates an empty session store.
func NewStore(cfg Config) *Store {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	return &Store{
		reg:            cfg.Registry,
		querier:        cfg.Querier,
		prefs:          cfg.Preferences,
		publisher:      cfg.Publisher,
		logger:         cfg.Logger,
		metrics:        cfg.Metrics,
		ttl:            cfg.TTL,
		resolveTimeout: cfg.ResolveTimeout,
		now:            time.Now,
		sessions:       make(map[string]*Session),
	}
}

// Acquire returns the live session for id. An id that is not a UUID gets a
// fresh session; a valid but evicted id is recreated under the same id so
// its stored preference carries over. The bool reports a new session.
func (s *Store) Acquire(ctx context.Context, id string) (*Session, bool) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}

	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if ok {
		sess.touch(s.now())
		return sess, false
	}

	// Loaded outside the store lock; a concurrent Acquire of the same id
	// keeps whichever session registered first.
	selected := loadSelected(ctx, s.prefs, id, s.logger)
	fresh := s.newSession(id, selected)

	s.mu.Lock()
	if existing, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		existing.touch(s.now())
		return existing, false
	}
	s.sessions[id] = fresh
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordSessionChange(1)
	}
	s.logger.DebugContext(ctx, "session created", "session_id", id)
	return fresh, true
}

// FromRequest acquires the session named by the request cookie and sets
// the cookie on w when a new id was issued.
func (s *Store) FromRequest(w http.ResponseWriter, r *http.Request) *Session {
	var id string
	if c, err := r.Cookie(CookieName); err == nil {
		id = c.Value
	}
	sess, _ := s.Acquire(r.Context(), id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    sess.ID,
			Path:     "/",
			MaxAge:   int(PreferenceRetention / time.Second),
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// Registry returns the networks sessions browse.
func (s *Store) Registry() *networks.Registry { return s.reg }

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Evict drops sessions idle for longer than the TTL and prunes stale
// preferences. It returns the number of sessions dropped.
func (s *Store) Evict(ctx context.Context) int {
	cutoff := s.now().Add(-s.ttl)

	s.mu.Lock()
	var dropped int
	for id, sess := range s.sessions {
		if sess.idleSince().Before(cutoff) {
			delete(s.sessions, id)
			dropped++
		}
	}
	s.mu.Unlock()

	if dropped > 0 {
		if s.metrics != nil {
			s.metrics.RecordSessionChange(-float64(dropped))
		}
		s.logger.DebugContext(ctx, "sessions evicted", "count", dropped)
	}

	if s.prefs != nil {
		if n, err := s.prefs.DeleteBefore(ctx, s.now().Add(-PreferenceRetention)); err != nil {
			s.logger.WarnContext(ctx, "failed to prune preferences", "error", err)
		} else if n > 0 {
			s.logger.DebugContext(ctx, "preferences pruned", "count", n)
		}
	}
	return dropped
}

// Run evicts idle sessions periodically until ctx is done.
func (s *Store) Run(ctx context.Context) {
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Evict(ctx)
		}
	}
}

func (s *Store) newSession(id, selected string) *Session {
	logger := s.logger.With("session_id", id)
	opts := []resolver.Option{resolver.WithMetrics(s.metrics)}
	if s.resolveTimeout > 0 {
		opts = append(opts, resolver.WithTimeout(s.resolveTimeout))
	}
	sess := &Session{
		ID:       id,
		store:    s,
		resolver: resolver.New(s.reg, s.querier, logger, opts...),
		logger:   logger,
		lastSeen: s.now(),
		selected: selected,
		lists:    make(map[browser.Kind]*browser.Table),
		details:  make(map[detailKey]*browser.DetailView),
		urls:     make(map[string]url.Values),
	}
	sess.deps = browser.Deps{
		Registry: s.reg,
		Querier:  s.querier,
		Notifier: sess,
		Logger:   logger,
		Metrics:  s.metrics,
	}
	return sess
}
