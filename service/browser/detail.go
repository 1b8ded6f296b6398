package browser

import (
	"context"
	"fmt"
	"maps"
	"net/url"
	"strings"
	"sync"

	"github.com/brojonat/aascan/service/pagestate"
	"github.com/brojonat/aascan/service/resolver"
)

// Subject is the entity a detail view inspects. ResolvedNetwork is empty
// until resolution succeeds or the visitor selects a network.
type Subject struct {
	Hash            string `json:"hash"`
	ResolvedNetwork string `json:"resolvedNetwork,omitempty"`
}

// Resolver resolves the networks that recognize a hash.
type Resolver interface {
	Resolve(ctx context.Context, hash string) (resolver.Resolution, error)
	Peek(hash string) resolver.Resolution
}

// DetailView is a single paymaster, bundler or account page.
type DetailView struct {
	kind     Kind
	deps     Deps
	resolver Resolver
	table    *Table

	mu             sync.Mutex
	subject        Subject
	resolution     resolver.Resolution
	notifiedNoHint bool
}

// DetailSnapshot is a consistent view of a detail page.
type DetailSnapshot struct {
	Subject    Subject             `json:"subject"`
	Resolution resolver.Resolution `json:"resolution"`
	Table      Snapshot            `json:"table"`
}

// NewDetailView creates a detail view for address. The page number and
// size come from q; the network is decided on Load.
func NewDetailView(d Deps, kind Kind, address string, res Resolver, q url.Values, writer pagestate.URLWriter) *DetailView {
	v := &DetailView{
		kind:     kind,
		deps:     d,
		resolver: res,
		subject:  Subject{Hash: address},
	}
	v.resolution = res.Peek(address)
	v.table = NewTable(TableConfig{
		Kind:       kind,
		Fetch:      v.fetch,
		Controller: pagestate.FromQuery(d.Registry, q, "", writer),
		Notifier:   d.Notifier,
		Logger:     d.logger(),
		Metrics:    d.Metrics,
		Caption: func(total int, known bool) string {
			return detailCaption(kind, total, known)
		},
	})
	return v
}

// Table returns the view's table.
func (v *DetailView) Table() *Table { return v.table }

// Load applies the URL query and refreshes the table. Without a network in
// the URL or a previously resolved one, the subject is resolved first; a
// NoMatch or Failed resolution notifies once and fetches nothing.
func (v *DetailView) Load(ctx context.Context, q url.Values) (DetailSnapshot, error) {
	network, err := v.decideNetwork(ctx, q)
	if err != nil {
		return v.Snapshot(), err
	}
	if network == "" {
		return v.Snapshot(), nil
	}

	target := maps.Clone(q)
	if target == nil {
		target = url.Values{}
	}
	target.Set(pagestate.ParamNetwork, network)
	v.table.ctrl.Navigate(target)

	if err := v.table.Refresh(ctx); err != nil {
		return v.Snapshot(), err
	}
	return v.Snapshot(), nil
}

// decideNetwork returns the network to fetch from, or "" when the subject
// could not be placed on any network.
func (v *DetailView) decideNetwork(ctx context.Context, q url.Values) (string, error) {
	reg := v.deps.Registry
	if explicit := q.Get(pagestate.ParamNetwork); reg.Contains(explicit) {
		d, _ := reg.Lookup(explicit)
		v.mu.Lock()
		v.subject.ResolvedNetwork = d.Key
		v.resolution = v.resolver.Peek(v.subject.Hash)
		v.mu.Unlock()
		return d.Key, nil
	}

	v.mu.Lock()
	known := v.subject.ResolvedNetwork
	v.mu.Unlock()
	if known != "" {
		return known, nil
	}

	res, err := v.resolver.Resolve(ctx, v.subject.Hash)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", v.subject.Hash, err)
	}

	v.mu.Lock()
	v.resolution = res
	if res.State == resolver.Resolved {
		v.subject.ResolvedNetwork = res.First()
		v.mu.Unlock()
		return res.First(), nil
	}
	notify := !v.notifiedNoHint
	v.notifiedNoHint = true
	v.mu.Unlock()

	if notify {
		n := Notification{
			Level:   LevelWarning,
			Kind:    v.kind,
			Subject: v.subject.Hash,
			Message: "Network not determined for " + v.subject.Hash,
		}
		if res.State == resolver.Failed {
			n.Level = LevelError
			n.Message = "Network not determined for " + v.subject.Hash + ": no network answered"
		}
		v.deps.notifier().Notify(ctx, n)
	}
	return "", nil
}

// Snapshot returns the subject, its resolution and the table.
func (v *DetailView) Snapshot() DetailSnapshot {
	v.mu.Lock()
	snap := DetailSnapshot{Subject: v.subject, Resolution: v.resolution}
	v.mu.Unlock()
	snap.Table = v.table.Snapshot()
	if snap.Resolution.Networks == nil {
		snap.Resolution.Networks = []string{}
	}
	return snap
}

func (v *DetailView) fetch(ctx context.Context, s pagestate.State) (Page, error) {
	m := v.deps.mapper()
	q := v.deps.Querier
	address := v.subject.Hash
	switch v.kind {
	case KindPaymaster:
		a, err := q.PaymasterDetails(ctx, address, s.Network, s.PageNo, s.PageSize)
		if err != nil {
			return Page{}, err
		}
		return Page{
			Rows:     m.userOps(s.Network, a.UserOps),
			Total:    a.UserOpsLength,
			HasTotal: true,
			Summary: &Summary{
				Address:       a.Address,
				Network:       s.Network,
				TotalDeposits: a.TotalDeposits.FormatFee(m.symbol(s.Network)),
				Count:         a.UserOpsLength,
			},
		}, nil
	case KindBundler:
		a, err := q.BundlerDetails(ctx, address, s.Network, s.PageNo, s.PageSize)
		if err != nil {
			return Page{}, err
		}
		return Page{
			Rows:     m.bundles(s.Network, a.Bundles),
			Total:    a.BundleLength,
			HasTotal: true,
			Summary:  &Summary{Address: a.Address, Network: s.Network, Count: a.BundleLength},
		}, nil
	default:
		a, err := q.AddressActivity(ctx, address, s.Network, s.PageNo, s.PageSize)
		if err != nil {
			return Page{}, err
		}
		return Page{
			Rows:     m.userOps(s.Network, a.UserOps),
			Total:    a.UserOpsCount,
			HasTotal: true,
			Summary:  &Summary{Address: a.Address, Network: s.Network, Count: a.UserOpsCount},
		}, nil
	}
}

// NormalizeSubject lower-cases a hex hash or address for use as a key.
func NormalizeSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
