// Package browser drives paginated, network-aware fetches into table rows.
//
// Every table owns a pagestate.Controller. A refresh captures the
// controller's generation before fetching and applies the response only if
// that generation is still current, so the latest intent always wins even
// when responses arrive out of order.
package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/metrics"
	"github.com/brojonat/aascan/service/pagestate"
)

// Level is the severity of a notification.
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
)

// Notification is a transient user-visible message.
type Notification struct {
	ID      string `json:"id,omitempty"`
	Level   Level  `json:"level"`
	Kind    Kind   `json:"kind"`
	Network string `json:"network,omitempty"`
	Subject string `json:"subject,omitempty"`
	Message string `json:"message"`
}

// Notifier delivers notifications to the visitor.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification)

// Notify calls f(ctx, n).
func (f NotifierFunc) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Page is one fetched page of rows.
type Page struct {
	Rows []Row
	// Total is the backend's authoritative row count when HasTotal is set.
	Total    int
	HasTotal bool
	Summary  *Summary
}

// FetchFunc loads the page described by s.
type FetchFunc func(ctx context.Context, s pagestate.State) (Page, error)

// Snapshot is a consistent view of a table.
type Snapshot struct {
	Kind    Kind            `json:"kind"`
	Title   string          `json:"title"`
	Rows    []Row           `json:"rows"`
	Loading bool            `json:"loading"`
	Page    pagestate.State `json:"page"`
	MaxPage int             `json:"maxPage"`
	HasNext bool            `json:"hasNext"`
	Caption string          `json:"caption"`
	Query   string          `json:"query"`
	Summary *Summary        `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Table is the one parameterized browser used for every resource kind.
// Only the table writes its rows and loading flag; only its controller
// writes page state.
type Table struct {
	kind     Kind
	fetch    FetchFunc
	ctrl     *pagestate.Controller
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
	caption  func(total int, known bool) string

	mu       sync.Mutex
	rows     []Row
	loading  bool
	hasNext  bool
	summary  *Summary
	total    int
	hasTotal bool
	lastErr  string
}

// TableConfig holds the collaborators of a Table.
type TableConfig struct {
	Kind       Kind
	Fetch      FetchFunc
	Controller *pagestate.Controller
	Notifier   Notifier
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	// Caption renders the caption from the last reported total. When nil
	// the kind's title is used.
	Caption func(total int, known bool) string
}

// NewTable creates a table. Rows start empty.
func NewTable(cfg TableConfig) *Table {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Notifier == nil {
		cfg.Notifier = NotifierFunc(func(context.Context, Notification) {})
	}
	return &Table{
		kind:     cfg.Kind,
		fetch:    cfg.Fetch,
		ctrl:     cfg.Controller,
		notifier: cfg.Notifier,
		logger:   cfg.Logger.With("kind", cfg.Kind),
		metrics:  cfg.Metrics,
		caption:  cfg.Caption,
		rows:     []Row{},
	}
}

// Kind returns the table's resource kind.
func (t *Table) Kind() Kind { return t.kind }

// Controller returns the table's page state controller.
func (t *Table) Controller() *pagestate.Controller { return t.ctrl }

// Refresh fetches the page for the controller's current state. A response
// whose generation has been superseded is discarded without touching rows
// or the loading flag. When the reported total clamps the page, the page is
// fetched once more. Failures notify once and keep the previous rows.
func (t *Table) Refresh(ctx context.Context) error {
	refetch, err := t.refreshOnce(ctx)
	if err != nil || !refetch {
		return err
	}
	_, err = t.refreshOnce(ctx)
	return err
}

func (t *Table) refreshOnce(ctx context.Context) (bool, error) {
	state, gen := t.ctrl.Snapshot()

	t.mu.Lock()
	t.loading = true
	t.mu.Unlock()

	page, err := t.fetch(ctx, state)

	refetch, notice, err := t.apply(ctx, state, gen, page, err)
	// Notifiers may read the table, so notify after unlocking.
	if notice != nil {
		t.notifier.Notify(ctx, *notice)
	}
	return refetch, err
}

// apply installs a fetch result under the table lock. It returns the
// notification to send, if any, once the lock is released.
func (t *Table) apply(ctx context.Context, state pagestate.State, gen uint64, page Page, err error) (bool, *Notification, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ctrl.IsCurrent(gen) {
		t.logger.DebugContext(ctx, "discarding stale response", "generation", gen, "network", state.Network)
		t.record("stale")
		if t.metrics != nil {
			t.metrics.RecordStaleResponse(string(t.kind))
		}
		return false, nil, nil
	}

	if err != nil {
		t.loading = false
		t.lastErr = err.Error()
		t.record("error")
		t.logger.ErrorContext(ctx, "table refresh failed", "network", state.Network, "page_no", state.PageNo, "error", err)
		return false, &Notification{
			Level:   LevelError,
			Kind:    t.kind,
			Network: state.Network,
			Message: failureMessage(t.kind, err),
		}, fmt.Errorf("refresh %s: %w", t.kind, err)
	}

	if page.HasTotal {
		t.total = page.Total
		t.hasTotal = true
		if _, clamped := t.ctrl.ReportTotalRows(page.Total); clamped {
			// The fetched page is past the end; its rows are not shown.
			t.summary = page.Summary
			return true, nil, nil
		}
	}

	t.rows = page.Rows
	if t.rows == nil {
		t.rows = []Row{}
	}
	t.summary = page.Summary
	t.hasNext = nextPageExists(state, page)
	t.loading = false
	t.lastErr = ""
	t.record("success")
	return false, nil, nil
}

// Snapshot returns the table's current rows, page state and caption.
func (t *Table) Snapshot() Snapshot {
	state := t.ctrl.State()

	t.mu.Lock()
	defer t.mu.Unlock()
	caption := t.kind.Title()
	if t.caption != nil {
		caption = t.caption(t.total, t.hasTotal)
	}
	return Snapshot{
		Kind:    t.kind,
		Title:   t.kind.Title(),
		Rows:    t.rows,
		Loading: t.loading,
		Page:    state,
		MaxPage: state.MaxPage(),
		HasNext: t.hasNext,
		Caption: caption,
		Query:   pagestate.Encode(state).Encode(),
		Summary: t.summary,
		Error:   t.lastErr,
	}
}

func (t *Table) record(status string) {
	if t.metrics != nil {
		t.metrics.RecordTableRefresh(string(t.kind), status)
	}
}

// nextPageExists uses the total when the backend reports one; otherwise a
// full page is taken to mean more rows may follow.
func nextPageExists(s pagestate.State, p Page) bool {
	if p.HasTotal {
		return s.PageNo*s.PageSize < p.Total
	}
	return len(p.Rows) >= s.PageSize
}

func failureMessage(kind Kind, err error) string {
	var transportErr *client.TransportError
	var malformedErr *client.MalformedResponseError
	switch {
	case errors.As(err, &transportErr):
		return fmt.Sprintf("Could not load %s: the query service is unavailable", kind.Title())
	case errors.As(err, &malformedErr):
		return fmt.Sprintf("Could not load %s: unexpected response from the query service", kind.Title())
	default:
		return fmt.Sprintf("Could not load %s", kind.Title())
	}
}
