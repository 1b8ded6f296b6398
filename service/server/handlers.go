package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/brojonat/aascan/service/browser"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/pagestate"
	"github.com/brojonat/aascan/service/session"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const (
	maxSubjectLength   = 66 // 0x + 32-byte hash
	healthCheckTimeout = 2 * time.Second
)

// handleHome returns a handler that refreshes the home dashboard.
// GET /api/v1/home?network={network}
func handleHome(sessions *session.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.FromRequest(w, r)
		snap := refreshHome(r.Context(), sess, r.URL.Query())
		logger.DebugContext(r.Context(), "home refreshed", "session_id", sess.ID, "network", snap.Network)
		writeJSON(w, snap, http.StatusOK)
	})
}

// handleList returns a handler that refreshes one paginated list.
// GET /api/v1/lists/{kind}?network={network}&pageNo={n}&pageSize={n}
func handleList(sessions *session.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := browser.ParseListKind(r.PathValue("kind"))
		if err != nil {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}

		sess := sessions.FromRequest(w, r)
		writeJSON(w, refreshList(r.Context(), sess, kind, r.URL.Query(), logger), http.StatusOK)
	})
}

// handleDetail returns a handler that loads a paymaster, bundler or account
// view, resolving the subject's network when the query names none.
// GET /api/v1/details/{kind}/{address}?network={network}&pageNo={n}&pageSize={n}
func handleDetail(sessions *session.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind, err := browser.ParseDetailKind(r.PathValue("kind"))
		if err != nil {
			writeError(w, err.Error(), http.StatusNotFound)
			return
		}
		address := r.PathValue("address")
		if err := validateSubject(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		sess := sessions.FromRequest(w, r)
		snap, err := loadDetail(r.Context(), sess, kind, address, r.URL.Query(), logger)
		if err != nil {
			return
		}
		writeJSON(w, snap, http.StatusOK)
	})
}

// handleResolve returns a handler that reports which networks recognize a
// hash. Outcomes are memoized per session.
// GET /api/v1/resolve/{hash}
func handleResolve(sessions *session.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		if err := validateSubject(hash); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		sess := sessions.FromRequest(w, r)
		res, err := sess.Resolver().Resolve(r.Context(), hash)
		if err != nil {
			logger.DebugContext(r.Context(), "resolve abandoned", "hash", hash, "error", err)
			writeError(w, "resolution did not complete", http.StatusGatewayTimeout)
			return
		}
		if res.Networks == nil {
			res.Networks = []string{}
		}
		writeJSON(w, res, http.StatusOK)
	})
}

type networksResponse struct {
	Default  string                `json:"default"`
	Networks []networks.Descriptor `json:"networks"`
}

// handleNetworks returns a handler listing the supported networks.
// GET /api/v1/networks
func handleNetworks(reg *networks.Registry) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, networksResponse{
			Default:  reg.Default().Key,
			Networks: reg.List(),
		}, http.StatusOK)
	})
}

type notificationsResponse struct {
	Notifications []browser.Notification `json:"notifications"`
}

// handlePendingNotifications returns a handler that drains the session's
// undelivered notifications.
// GET /api/v1/notifications
func handlePendingNotifications(sessions *session.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := sessions.FromRequest(w, r)
		pending := sess.DrainNotifications()
		if pending == nil {
			pending = []browser.Notification{}
		}
		writeJSON(w, notificationsResponse{Notifications: pending}, http.StatusOK)
	})
}

// handleHealth returns OK when every registered check passes.
func handleHealth(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		status := map[string]string{}
		healthy := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.WarnContext(ctx, "health check failed", "check", name, "error", err)
				status[name] = err.Error()
				healthy = false
				continue
			}
			status[name] = "ok"
		}

		if !healthy {
			writeJSON(w, map[string]any{"status": "unhealthy", "checks": status}, http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, map[string]any{"status": "ok", "checks": status}, http.StatusOK)
	}
}

// refreshHome applies q to the session's dashboard and refreshes every
// table.
func refreshHome(ctx context.Context, sess *session.Session, q url.Values) browser.DashboardSnapshot {
	dash := sess.Dashboard(q)
	dash.Apply(q)
	rememberExplicitNetwork(ctx, sess, q, dash.Controller())
	dash.Refresh(ctx)
	return dash.Snapshot()
}

// refreshList applies q to the session's list table for kind and refreshes
// it. A failed refresh has already notified and keeps the previous rows.
func refreshList(ctx context.Context, sess *session.Session, kind browser.Kind, q url.Values, logger *slog.Logger) browser.Snapshot {
	table := sess.List(kind, q)
	table.Controller().Navigate(q)
	rememberExplicitNetwork(ctx, sess, q, table.Controller())
	if err := table.Refresh(ctx); err != nil {
		logger.DebugContext(ctx, "list refresh failed", "kind", kind, "error", err)
	}
	return table.Snapshot()
}

// loadDetail loads the session's detail view. The error is non-nil only
// when ctx ended first.
func loadDetail(ctx context.Context, sess *session.Session, kind browser.Kind, address string, q url.Values, logger *slog.Logger) (browser.DetailSnapshot, error) {
	view := sess.Detail(kind, address, q)
	snap, err := view.Load(ctx, q)
	if err != nil {
		if ctx.Err() != nil {
			logger.DebugContext(ctx, "client went away during detail load", "kind", kind, "address", address)
			return snap, ctx.Err()
		}
		logger.DebugContext(ctx, "detail refresh failed", "kind", kind, "address", address, "error", err)
	}
	rememberExplicitNetwork(ctx, sess, q, view.Table().Controller())
	return snap, nil
}

// rememberExplicitNetwork stores the selection when the query named a
// supported network.
func rememberExplicitNetwork(ctx context.Context, sess *session.Session, q url.Values, ctrl *pagestate.Controller) {
	if q.Get(pagestate.ParamNetwork) == "" {
		return
	}
	state := ctrl.State()
	if strings.EqualFold(state.Network, strings.TrimSpace(q.Get(pagestate.ParamNetwork))) {
		sess.RememberNetwork(ctx, state.Network)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateSubject accepts a 20-byte address or a 32-byte hash in 0x hex.
func validateSubject(s string) error {
	if s == "" {
		return errorf("address is required")
	}
	if len(s) > maxSubjectLength {
		return errorf("address too long: maximum length is %d characters", maxSubjectLength)
	}
	if common.IsHexAddress(s) && strings.HasPrefix(s, "0x") {
		return nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return errorf("invalid address: %v", err)
	}
	if len(b) != common.HashLength {
		return errorf("invalid address: expected a 20-byte address or 32-byte hash")
	}
	return nil
}

// errorf is a helper to format error strings.
func errorf(format string, args ...interface{}) error {
	return &validationError{msg: strings.TrimSpace(fmt.Sprintf(format, args...))}
}

type validationError struct {
	msg string
}

func (e *validationError) Error() string {
	return e.msg
}
