package browser

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/metrics"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/pagestate"
	"golang.org/x/sync/errgroup"
)

// DashboardLimit is the fixed number of rows per home dashboard table.
const DashboardLimit = 5

// Querier is the subset of the query API the browser reads from.
type Querier interface {
	LatestBundles(ctx context.Context, network string, limit, offset int) ([]client.Bundle, error)
	LatestUserOps(ctx context.Context, network string, limit, offset int) ([]client.UserOp, error)
	TopBundlers(ctx context.Context, network string, limit, offset int) ([]client.Bundler, error)
	TopPaymasters(ctx context.Context, network string, limit, offset int) ([]client.Paymaster, error)
	PaymasterDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*client.PaymasterActivity, error)
	BundlerDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*client.BundlerActivity, error)
	AddressActivity(ctx context.Context, address, network string, pageNo, pageSize int) (*client.AccountActivity, error)
}

// Deps are the collaborators shared by every view of one session.
type Deps struct {
	Registry *networks.Registry
	Querier  Querier
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	// Now is the clock used for row ages. Defaults to time.Now.
	Now func() time.Time
}

func (d Deps) mapper() rowMapper {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return rowMapper{reg: d.Registry, now: now}
}

func (d Deps) notifier() Notifier {
	if d.Notifier == nil {
		return NotifierFunc(func(context.Context, Notification) {})
	}
	return d.Notifier
}

func (d Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return d.Logger
}

// listFetch returns the fetch function for a list kind. A fixed limit > 0
// overrides the page size and always reads from offset 0.
func listFetch(d Deps, kind Kind, fixedLimit int) FetchFunc {
	m := d.mapper()
	q := d.Querier
	return func(ctx context.Context, s pagestate.State) (Page, error) {
		limit, offset := s.PageSize, s.Offset()
		if fixedLimit > 0 {
			limit, offset = fixedLimit, 0
		}
		switch kind {
		case KindBundles:
			records, err := q.LatestBundles(ctx, s.Network, limit, offset)
			if err != nil {
				return Page{}, err
			}
			return Page{Rows: m.bundles(s.Network, records)}, nil
		case KindUserOps:
			records, err := q.LatestUserOps(ctx, s.Network, limit, offset)
			if err != nil {
				return Page{}, err
			}
			return Page{Rows: m.userOps(s.Network, records)}, nil
		case KindBundlers:
			records, err := q.TopBundlers(ctx, s.Network, limit, offset)
			if err != nil {
				return Page{}, err
			}
			return Page{Rows: m.bundlers(s.Network, records)}, nil
		default:
			records, err := q.TopPaymasters(ctx, s.Network, limit, offset)
			if err != nil {
				return Page{}, err
			}
			return Page{Rows: m.paymasters(s.Network, records)}, nil
		}
	}
}

// NewListTable creates a paginated list table for kind, with its own
// controller initialized from the URL query.
func NewListTable(d Deps, kind Kind, q url.Values, previousNetwork string, writer pagestate.URLWriter) *Table {
	return NewTable(TableConfig{
		Kind:       kind,
		Fetch:      listFetch(d, kind, 0),
		Controller: pagestate.FromQuery(d.Registry, q, previousNetwork, writer),
		Notifier:   d.Notifier,
		Logger:     d.logger(),
		Metrics:    d.Metrics,
	})
}

// Dashboard is the home page: one table per list kind, all following the
// same selected network and each showing DashboardLimit rows.
type Dashboard struct {
	ctrl   *pagestate.Controller
	tables []*Table
}

// DashboardSnapshot is a consistent view of the dashboard.
type DashboardSnapshot struct {
	Network string     `json:"network"`
	Query   string     `json:"query"`
	Tables  []Snapshot `json:"tables"`
}

// NewDashboard creates the home dashboard.
func NewDashboard(d Deps, q url.Values, previousNetwork string, writer pagestate.URLWriter) *Dashboard {
	ctrl := pagestate.FromQuery(d.Registry, q, previousNetwork, writer)
	dash := &Dashboard{ctrl: ctrl}
	for _, kind := range ListKinds {
		dash.tables = append(dash.tables, NewTable(TableConfig{
			Kind:       kind,
			Fetch:      listFetch(d, kind, DashboardLimit),
			Controller: ctrl,
			Notifier:   d.Notifier,
			Logger:     d.logger(),
			Metrics:    d.Metrics,
		}))
	}
	return dash
}

// Controller returns the controller shared by the dashboard tables.
func (d *Dashboard) Controller() *pagestate.Controller { return d.ctrl }

// Table returns the dashboard table for kind, or nil.
func (d *Dashboard) Table(kind Kind) *Table {
	for _, t := range d.tables {
		if t.kind == kind {
			return t
		}
	}
	return nil
}

// SetNetwork switches every table to network. Call Refresh afterwards.
func (d *Dashboard) SetNetwork(network string) error {
	_, err := d.ctrl.SetNetwork(network)
	return err
}

// Refresh re-fetches all tables concurrently. A failing table is isolated:
// it notifies and keeps its rows while the others apply normally.
func (d *Dashboard) Refresh(ctx context.Context) {
	var g errgroup.Group
	for _, t := range d.tables {
		g.Go(func() error {
			// Errors are already reported by the table.
			_ = t.Refresh(ctx)
			return nil
		})
	}
	_ = g.Wait()
}

// Snapshot returns the dashboard's tables in display order.
func (d *Dashboard) Snapshot() DashboardSnapshot {
	state := d.ctrl.State()
	snap := DashboardSnapshot{
		Network: state.Network,
		Query:   url.Values{pagestate.ParamNetwork: {state.Network}}.Encode(),
	}
	for _, t := range d.tables {
		snap.Tables = append(snap.Tables, t.Snapshot())
	}
	return snap
}

// Apply selects the network named in q. Unknown networks are ignored.
func (d *Dashboard) Apply(q url.Values) {
	if n := q.Get(pagestate.ParamNetwork); n != "" {
		_, _ = d.ctrl.SetNetwork(n)
	}
}
