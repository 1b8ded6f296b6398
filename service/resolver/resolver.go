// Package resolver determines which networks recognize a hash or address.
package resolver

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/metrics"
	"github.com/brojonat/aascan/service/networks"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// DefaultTimeout bounds one full probe set.
const DefaultTimeout = 15 * time.Second

// State is the lifecycle of a resolution.
type State string

const (
	// Unresolved means no probe set has completed for the hash yet.
	Unresolved State = "unresolved"
	// Resolved means at least one network recognized the hash.
	Resolved State = "resolved"
	// NoMatch means every probe settled and none recognized the hash.
	NoMatch State = "no_match"
	// Failed means every probe errored. It is returned but never memoized,
	// so the next Resolve probes again.
	Failed State = "failed"
)

// Resolution is the outcome for one hash. Networks are in registry order.
type Resolution struct {
	Hash     string   `json:"hash"`
	State    State    `json:"state"`
	Networks []string `json:"networks"`
}

// First returns the first matching network, or "".
func (r Resolution) First() string {
	if len(r.Networks) == 0 {
		return ""
	}
	return r.Networks[0]
}

// Prober asks a single network about a hash.
type Prober interface {
	ProbeNetwork(ctx context.Context, hash, network string) (client.ProbeResult, error)
}

// Resolver probes every registered network for a hash. Concurrent calls for
// the same hash share one probe set and completed outcomes are memoized for
// the resolver's lifetime, so each network is probed at most once per hash.
type Resolver struct {
	reg     *networks.Registry
	prober  Prober
	logger  *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	group singleflight.Group

	mu   sync.RWMutex
	memo map[string]Resolution
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each probe set.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics records probe and resolution metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// New creates a resolver over every network in reg.
func New(reg *networks.Registry, prober Prober, logger *slog.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r := &Resolver{
		reg:     reg,
		prober:  prober,
		logger:  logger,
		timeout: DefaultTimeout,
		memo:    make(map[string]Resolution),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Peek returns the memoized outcome for hash, or an Unresolved resolution.
func (r *Resolver) Peek(hash string) Resolution {
	key := normalize(hash)
	if res, ok := r.lookup(key); ok {
		return res
	}
	return Resolution{Hash: key, State: Unresolved}
}

// Resolve returns the networks that recognize hash. Zero matches is the
// NoMatch state, not an error. When no network answered at all the
// outcome is Failed. The only error is ctx ending before the
// shared probe set completes; the probe set keeps running for other callers.
func (r *Resolver) Resolve(ctx context.Context, hash string) (Resolution, error) {
	key := normalize(hash)
	if res, ok := r.lookup(key); ok {
		r.recordShared()
		return res, nil
	}

	detached := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (any, error) {
		if res, ok := r.lookup(key); ok {
			return res, nil
		}
		res := r.probeAll(detached, key)
		if res.State != Failed {
			r.mu.Lock()
			r.memo[key] = res
			r.mu.Unlock()
		}
		return res, nil
	})

	select {
	case <-ctx.Done():
		return Resolution{Hash: key, State: Unresolved}, ctx.Err()
	case out := <-ch:
		if out.Shared {
			r.recordShared()
		}
		res := out.Val.(Resolution)
		res.Networks = slices.Clone(res.Networks)
		return res, nil
	}
}

func (r *Resolver) probeAll(ctx context.Context, hash string) Resolution {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	keys := r.reg.Keys()
	found := make([]bool, len(keys))
	failed := make([]bool, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	for i, network := range keys {
		g.Go(func() error {
			res, err := r.prober.ProbeNetwork(gctx, hash, network)
			switch {
			case err != nil:
				r.logger.WarnContext(ctx, "network probe failed",
					"hash", hash, "network", network, "error", err)
				failed[i] = true
				r.recordProbe(network, "error")
			case res.Found:
				found[i] = true
				r.recordProbe(network, "found")
			default:
				r.recordProbe(network, "absent")
			}
			// Probe failures exclude the network; they never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	res := Resolution{Hash: hash, State: NoMatch, Networks: []string{}}
	for i, ok := range found {
		if ok {
			res.Networks = append(res.Networks, keys[i])
		}
	}
	switch {
	case len(res.Networks) > 0:
		res.State = Resolved
	case len(keys) > 0 && !slices.Contains(failed, false):
		res.State = Failed
	}

	r.logger.DebugContext(ctx, "network resolution completed",
		"hash", hash, "state", res.State, "networks", res.Networks, "duration", time.Since(start))
	if r.metrics != nil {
		r.metrics.RecordResolution(string(res.State), time.Since(start).Seconds())
	}
	return res
}

func (r *Resolver) lookup(key string) (Resolution, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.memo[key]
	if !ok {
		return Resolution{}, false
	}
	res.Networks = slices.Clone(res.Networks)
	return res, true
}

func (r *Resolver) recordProbe(network, outcome string) {
	if r.metrics != nil {
		r.metrics.RecordProbe(network, outcome)
	}
}

func (r *Resolver) recordShared() {
	if r.metrics != nil {
		r.metrics.RecordResolutionShared()
	}
}

// Hex is case-insensitive, so one memo entry serves every spelling.
func normalize(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
