// Package session keeps per-visitor browsing state: the resolver memo, the
// views and their page state, and the previously selected network.
package session

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/brojonat/aascan/service/browser"
	"github.com/brojonat/aascan/service/db"
	natspkg "github.com/brojonat/aascan/service/nats"
	"github.com/brojonat/aascan/service/resolver"
	"github.com/google/uuid"
)

// maxPending bounds the notifications a session holds for polling clients.
const maxPending = 20

// Session is one visitor's browsing state.
type Session struct {
	ID string

	store    *Store
	resolver *resolver.Resolver
	deps     browser.Deps
	logger   *slog.Logger

	mu        sync.Mutex
	lastSeen  time.Time
	selected  string
	dashboard *browser.Dashboard
	lists     map[browser.Kind]*browser.Table
	details   map[detailKey]*browser.DetailView
	pending   []browser.Notification

	// urls has its own lock: it is written from controller transitions.
	urlsMu sync.Mutex
	urls   map[string]url.Values
}

type detailKey struct {
	kind    browser.Kind
	subject string
}

// Resolver returns the session's network resolver.
func (s *Session) Resolver() *resolver.Resolver { return s.resolver }

// PreviousNetwork returns the network the visitor last selected, or "".
func (s *Session) PreviousNetwork() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// RememberNetwork records network as the visitor's selection.
func (s *Session) RememberNetwork(ctx context.Context, network string) {
	s.mu.Lock()
	s.selected = network
	s.mu.Unlock()
	// Written on every selection; updated_at is the last visit.
	if s.store.prefs == nil {
		return
	}
	if err := s.store.prefs.SetSelectedNetwork(ctx, s.ID, network); err != nil {
		s.logger.WarnContext(ctx, "failed to store selected network", "network", network, "error", err)
	}
}

// Dashboard returns the session's home dashboard, creating it from q.
func (s *Session) Dashboard(q url.Values) *browser.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dashboard == nil {
		s.dashboard = browser.NewDashboard(s.deps, q, s.selected, s.urlWriter("/"))
	}
	return s.dashboard
}

// List returns the session's list table for kind, creating it from q.
func (s *Session) List(kind browser.Kind, q url.Values) *browser.Table {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lists[kind]
	if !ok {
		t = browser.NewListTable(s.deps, kind, q, s.selected, s.urlWriter("/"+string(kind)))
		s.lists[kind] = t
	}
	return t
}

// Detail returns the session's detail view for (kind, address).
func (s *Session) Detail(kind browser.Kind, address string, q url.Values) *browser.DetailView {
	subject := browser.NormalizeSubject(address)
	key := detailKey{kind: kind, subject: subject}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.details[key]
	if !ok {
		v = browser.NewDetailView(s.deps, kind, subject, s.resolver, q, s.urlWriter("/"+string(kind)+"/"+subject))
		s.details[key] = v
	}
	return v
}

// LastQuery returns the last query written for a view path.
func (s *Session) LastQuery(path string) url.Values {
	s.urlsMu.Lock()
	defer s.urlsMu.Unlock()
	return s.urls[path]
}

// DrainNotifications returns and clears notifications not yet delivered.
func (s *Session) DrainNotifications() []browser.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.pending
	s.pending = nil
	return out
}

// Ack removes the pending notification with the given id, reporting whether
// it was still pending.
func (s *Session) Ack(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, n := range s.pending {
		if n.ID == id {
			s.pending = slices.Delete(s.pending, i, i+1)
			return true
		}
	}
	return false
}

// Notify implements browser.Notifier. The notification is published to the
// session's NATS subject when a publisher is configured and is always kept
// for the next poll until it is drained or acked.
func (s *Session) Notify(ctx context.Context, n browser.Notification) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.pending = append(s.pending, n)
	if len(s.pending) > maxPending {
		s.pending = s.pending[len(s.pending)-maxPending:]
	}
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "notification", "id", n.ID, "level", n.Level, "kind", n.Kind, "message", n.Message)
	if s.store.publisher == nil {
		return
	}
	if err := s.store.publisher.PublishNotification(ctx, natspkg.FromNotification(s.ID, n)); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish notification", "error", err)
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

// urlWriter records the canonical query of the view at path.
func (s *Session) urlWriter(path string) urlRecorder {
	return urlRecorder{s: s, path: path}
}

type urlRecorder struct {
	s    *Session
	path string
}

func (r urlRecorder) WriteQuery(q url.Values) {
	r.s.urlsMu.Lock()
	defer r.s.urlsMu.Unlock()
	r.s.urls[r.path] = q
}

func loadSelected(ctx context.Context, prefs PreferenceStore, id string, logger *slog.Logger) string {
	if prefs == nil {
		return ""
	}
	network, err := prefs.SelectedNetwork(ctx, id)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			logger.WarnContext(ctx, "failed to load selected network", "error", err)
		}
		return ""
	}
	return network
}
