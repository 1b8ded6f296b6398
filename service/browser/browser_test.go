package browser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/networks"
	"github.com/brojonat/aascan/service/pagestate"
	"github.com/brojonat/aascan/service/resolver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQuerier serves canned records; hooks override individual operations.
type fakeQuerier struct {
	bundles    func(ctx context.Context, network string, limit, offset int) ([]client.Bundle, error)
	userOps    func(ctx context.Context, network string, limit, offset int) ([]client.UserOp, error)
	bundlers   func(ctx context.Context, network string, limit, offset int) ([]client.Bundler, error)
	paymasters func(ctx context.Context, network string, limit, offset int) ([]client.Paymaster, error)
	paymaster  func(ctx context.Context, address, network string, pageNo, pageSize int) (*client.PaymasterActivity, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeQuerier) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeQuerier) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeQuerier) LatestBundles(ctx context.Context, network string, limit, offset int) ([]client.Bundle, error) {
	f.record(fmt.Sprintf("bundles %s %d %d", network, limit, offset))
	if f.bundles != nil {
		return f.bundles(ctx, network, limit, offset)
	}
	out := make([]client.Bundle, 0, limit)
	for i := 0; i < limit; i++ {
		out = append(out, client.Bundle{TransactionHash: fmt.Sprintf("0xb%d", offset+i), UserOpsLength: 1})
	}
	return out, nil
}

func (f *fakeQuerier) LatestUserOps(ctx context.Context, network string, limit, offset int) ([]client.UserOp, error) {
	f.record(fmt.Sprintf("userops %s %d %d", network, limit, offset))
	if f.userOps != nil {
		return f.userOps(ctx, network, limit, offset)
	}
	return []client.UserOp{{UserOpHash: "0xop-" + network}}, nil
}

func (f *fakeQuerier) TopBundlers(ctx context.Context, network string, limit, offset int) ([]client.Bundler, error) {
	f.record(fmt.Sprintf("bundlers %s %d %d", network, limit, offset))
	if f.bundlers != nil {
		return f.bundlers(ctx, network, limit, offset)
	}
	return []client.Bundler{{Address: "0xbundler-" + network, BundleLength: 3}}, nil
}

func (f *fakeQuerier) TopPaymasters(ctx context.Context, network string, limit, offset int) ([]client.Paymaster, error) {
	f.record(fmt.Sprintf("paymasters %s %d %d", network, limit, offset))
	if f.paymasters != nil {
		return f.paymasters(ctx, network, limit, offset)
	}
	return []client.Paymaster{{Address: "0xpaymaster-" + network, UserOpsLength: 9}}, nil
}

func (f *fakeQuerier) PaymasterDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*client.PaymasterActivity, error) {
	f.record(fmt.Sprintf("paymaster %s %s %d %d", address, network, pageNo, pageSize))
	if f.paymaster != nil {
		return f.paymaster(ctx, address, network, pageNo, pageSize)
	}
	return &client.PaymasterActivity{Address: address, UserOpsLength: 47, UserOps: []client.UserOp{{UserOpHash: "0x1"}}}, nil
}

func (f *fakeQuerier) BundlerDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*client.BundlerActivity, error) {
	f.record(fmt.Sprintf("bundler %s %s %d %d", address, network, pageNo, pageSize))
	return &client.BundlerActivity{Address: address, BundleLength: 2, Bundles: []client.Bundle{{TransactionHash: "0xb1"}, {TransactionHash: "0xb2"}}}, nil
}

func (f *fakeQuerier) AddressActivity(ctx context.Context, address, network string, pageNo, pageSize int) (*client.AccountActivity, error) {
	f.record(fmt.Sprintf("account %s %s %d %d", address, network, pageNo, pageSize))
	return &client.AccountActivity{Address: address, UserOpsCount: 1, UserOps: []client.UserOp{{UserOpHash: "0x9"}}}, nil
}

type notifications struct {
	mu  sync.Mutex
	got []Notification
}

func (n *notifications) Notify(_ context.Context, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, note)
}

func (n *notifications) list() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.got...)
}

// stubResolver returns a fixed resolution and counts calls.
type stubResolver struct {
	res   resolver.Resolution
	mu    sync.Mutex
	calls int
}

func (s *stubResolver) Resolve(context.Context, string) (resolver.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.res, nil
}

func (s *stubResolver) Peek(hash string) resolver.Resolution {
	return resolver.Resolution{Hash: hash, State: resolver.Unresolved}
}

func testDeps(t *testing.T, q Querier, n Notifier) Deps {
	t.Helper()
	reg, err := networks.NewRegistry([]networks.Descriptor{
		{Key: "mainnet", NativeSymbol: "ETH", IconRef: "/images/networks/mainnet.svg"},
		{Key: "polygon", NativeSymbol: "MATIC", IconRef: "/images/networks/polygon.svg"},
		{Key: "base", NativeSymbol: "ETH"},
	})
	require.NoError(t, err)
	return Deps{
		Registry: reg,
		Querier:  q,
		Notifier: n,
		Now:      func() time.Time { return time.Unix(1_700_000_600, 0) },
	}
}

func TestTable_StaleResponseIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 2)
	q := &fakeQuerier{
		userOps: func(ctx context.Context, network string, limit, offset int) ([]client.UserOp, error) {
			started <- struct{}{}
			if network == "mainnet" {
				<-release
			}
			return []client.UserOp{{UserOpHash: "0x-" + network}}, nil
		},
	}
	deps := testDeps(t, q, nil)
	table := NewListTable(deps, KindUserOps, url.Values{"network": {"mainnet"}}, "", nil)

	// G1: mainnet, blocked until released.
	done := make(chan error, 1)
	go func() { done <- table.Refresh(context.Background()) }()
	<-started

	// G2 supersedes G1 and lands first.
	_, err := table.Controller().SetNetwork("polygon")
	require.NoError(t, err)
	require.NoError(t, table.Refresh(context.Background()))
	<-started

	after := table.Snapshot()
	require.Len(t, after.Rows, 1)
	assert.Equal(t, "0x-polygon", after.Rows[0].ID)
	assert.False(t, after.Loading)

	close(release)
	require.NoError(t, <-done)

	final := table.Snapshot()
	assert.Equal(t, after.Rows, final.Rows, "stale G1 response must not replace rows")
	assert.False(t, final.Loading, "stale G1 response must not touch loading")
}

func TestDashboard_FailureIsIsolatedAndNotifiesOnce(t *testing.T) {
	q := &fakeQuerier{
		bundlers: func(ctx context.Context, network string, limit, offset int) ([]client.Bundler, error) {
			return nil, &client.TransportError{Op: "top_bundlers", Network: network, Err: errors.New("connection reset")}
		},
	}
	notes := &notifications{}
	dash := NewDashboard(testDeps(t, q, notes), url.Values{}, "polygon", nil)

	dash.Refresh(context.Background())

	bundlers := dash.Table(KindBundlers).Snapshot()
	assert.Empty(t, bundlers.Rows)
	assert.False(t, bundlers.Loading)
	assert.NotEmpty(t, bundlers.Error)

	userOps := dash.Table(KindUserOps).Snapshot()
	require.Len(t, userOps.Rows, 1)
	assert.Equal(t, "0xop-polygon", userOps.Rows[0].ID)
	assert.False(t, userOps.Loading)
	assert.Empty(t, userOps.Error)

	got := notes.list()
	require.Len(t, got, 1)
	assert.Equal(t, KindBundlers, got[0].Kind)
	assert.Equal(t, LevelError, got[0].Level)
}

func TestDashboard_FailureKeepsPreviousRows(t *testing.T) {
	fail := false
	q := &fakeQuerier{}
	q.bundlers = func(ctx context.Context, network string, limit, offset int) ([]client.Bundler, error) {
		if fail {
			return nil, &client.MalformedResponseError{Op: "top_bundlers", Network: network, Err: errors.New("bad json")}
		}
		return []client.Bundler{{Address: "0xkeep"}}, nil
	}
	notes := &notifications{}
	dash := NewDashboard(testDeps(t, q, notes), url.Values{}, "", nil)
	dash.Refresh(context.Background())

	fail = true
	dash.Refresh(context.Background())

	snap := dash.Table(KindBundlers).Snapshot()
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "0xkeep", snap.Rows[0].ID)
	assert.Len(t, notes.list(), 1)
}

func TestDashboard_UsesFixedLimitAndFollowsNetwork(t *testing.T) {
	q := &fakeQuerier{}
	dash := NewDashboard(testDeps(t, q, nil), url.Values{"pageSize": {"50"}}, "", nil)
	dash.Refresh(context.Background())
	assert.Contains(t, q.callLog(), "bundles mainnet 5 0")

	require.NoError(t, dash.SetNetwork("base"))
	dash.Refresh(context.Background())
	assert.Contains(t, q.callLog(), "paymasters base 5 0")
	assert.Equal(t, "base", dash.Snapshot().Network)
	assert.Len(t, dash.Table(KindBundles).Snapshot().Rows, DashboardLimit)
}

func TestListTable_HasNextFromFullPage(t *testing.T) {
	q := &fakeQuerier{}
	q.bundles = func(ctx context.Context, network string, limit, offset int) ([]client.Bundle, error) {
		if offset >= 20 {
			return []client.Bundle{{TransactionHash: "0xlast"}}, nil
		}
		out := make([]client.Bundle, limit)
		for i := range out {
			out[i] = client.Bundle{TransactionHash: fmt.Sprintf("0x%d", offset+i)}
		}
		return out, nil
	}
	table := NewListTable(testDeps(t, q, nil), KindBundles, url.Values{"pageNo": {"2"}}, "", nil)

	require.NoError(t, table.Refresh(context.Background()))
	snap := table.Snapshot()
	assert.True(t, snap.HasNext)
	assert.Equal(t, "0x10", snap.Rows[0].ID)

	table.Controller().SetPageNo(3)
	require.NoError(t, table.Refresh(context.Background()))
	assert.False(t, table.Snapshot().HasNext)
}

func TestDetailView_ResolvesThenFetchesFirstMatch(t *testing.T) {
	q := &fakeQuerier{}
	res := &stubResolver{res: resolver.Resolution{Hash: "0xabc", State: resolver.Resolved, Networks: []string{"polygon", "base"}}}
	var writes []url.Values
	writer := pagestate.URLWriterFunc(func(v url.Values) { writes = append(writes, v) })
	view := NewDetailView(testDeps(t, q, nil), KindPaymaster, "0xabc", res, url.Values{}, writer)

	snap, err := view.Load(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "polygon", snap.Subject.ResolvedNetwork)
	assert.Equal(t, []string{"polygon", "base"}, snap.Resolution.Networks)
	assert.Equal(t, "47 User Ops found", snap.Table.Caption)
	require.NotNil(t, snap.Table.Summary)
	assert.Equal(t, 47, snap.Table.Summary.Count)
	assert.Contains(t, q.callLog(), "paymaster 0xabc polygon 1 10")
	require.NotEmpty(t, writes)
	assert.Equal(t, "polygon", writes[len(writes)-1].Get("network"))

	// A second load reuses the resolved network.
	_, err = view.Load(context.Background(), url.Values{"pageNo": {"2"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.calls)
}

func TestDetailView_ExplicitNetworkSkipsResolution(t *testing.T) {
	q := &fakeQuerier{}
	res := &stubResolver{}
	view := NewDetailView(testDeps(t, q, nil), KindAccount, "0xabc", res, url.Values{}, nil)

	snap, err := view.Load(context.Background(), url.Values{"network": {"base"}, "pageSize": {"25"}})
	require.NoError(t, err)
	assert.Equal(t, 0, res.calls)
	assert.Equal(t, "base", snap.Subject.ResolvedNetwork)
	assert.Equal(t, []string{"account 0xabc base 1 25"}, q.callLog())
}

func TestDetailView_NoMatchNotifiesOnceAndDoesNotFetch(t *testing.T) {
	q := &fakeQuerier{}
	notes := &notifications{}
	res := &stubResolver{res: resolver.Resolution{Hash: "0xdead", State: resolver.NoMatch, Networks: []string{}}}
	view := NewDetailView(testDeps(t, q, notes), KindBundler, "0xdead", res, url.Values{}, nil)

	for i := 0; i < 3; i++ {
		snap, err := view.Load(context.Background(), url.Values{})
		require.NoError(t, err)
		assert.Equal(t, resolver.NoMatch, snap.Resolution.State)
		assert.Empty(t, snap.Subject.ResolvedNetwork)
	}

	assert.Empty(t, q.callLog())
	got := notes.list()
	require.Len(t, got, 1)
	assert.Equal(t, LevelWarning, got[0].Level)
	assert.Contains(t, got[0].Message, "Network not determined")
}

// sequenceResolver returns its resolutions in order, repeating the last.
type sequenceResolver struct {
	mu    sync.Mutex
	seq   []resolver.Resolution
	calls int
}

func (s *sequenceResolver) Resolve(context.Context, string) (resolver.Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.calls, len(s.seq)-1)
	s.calls++
	return s.seq[i], nil
}

func (s *sequenceResolver) Peek(hash string) resolver.Resolution {
	return resolver.Resolution{Hash: hash, State: resolver.Unresolved}
}

func TestDetailView_FailedResolutionIsRetriedOnNextLoad(t *testing.T) {
	q := &fakeQuerier{}
	notes := &notifications{}
	res := &sequenceResolver{seq: []resolver.Resolution{
		{Hash: "0xabc", State: resolver.Failed, Networks: []string{}},
		{Hash: "0xabc", State: resolver.Resolved, Networks: []string{"base"}},
	}}
	view := NewDetailView(testDeps(t, q, notes), KindAccount, "0xabc", res, url.Values{}, nil)

	snap, err := view.Load(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, resolver.Failed, snap.Resolution.State)
	assert.Empty(t, snap.Subject.ResolvedNetwork)
	assert.Empty(t, q.callLog())
	got := notes.list()
	require.Len(t, got, 1)
	assert.Equal(t, LevelError, got[0].Level)

	snap, err = view.Load(context.Background(), url.Values{})
	require.NoError(t, err)
	assert.Equal(t, "base", snap.Subject.ResolvedNetwork)
	assert.Equal(t, []string{"account 0xabc base 1 10"}, q.callLog())
	assert.Equal(t, 2, res.calls)
}

func TestTable_NotifierMayReadTableWhileNotified(t *testing.T) {
	q := &fakeQuerier{
		userOps: func(ctx context.Context, network string, limit, offset int) ([]client.UserOp, error) {
			return nil, &client.TransportError{Op: "latest_user_ops", Network: network, Err: errors.New("connection reset")}
		},
	}
	var table *Table
	var seen Snapshot
	notifier := NotifierFunc(func(_ context.Context, n Notification) {
		seen = table.Snapshot()
	})
	table = NewListTable(testDeps(t, q, notifier), KindUserOps, url.Values{}, "", nil)

	done := make(chan error, 1)
	go func() { done <- table.Refresh(context.Background()) }()
	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh blocked while notifying")
	}
	assert.NotEmpty(t, seen.Error)
	assert.False(t, seen.Loading)
}

func TestDetailView_ClampedPageIsFetchedAgain(t *testing.T) {
	q := &fakeQuerier{}
	q.paymaster = func(ctx context.Context, address, network string, pageNo, pageSize int) (*client.PaymasterActivity, error) {
		ops := []client.UserOp{}
		if pageNo <= 5 {
			ops = append(ops, client.UserOp{UserOpHash: fmt.Sprintf("0xpage%d", pageNo)})
		}
		return &client.PaymasterActivity{Address: address, UserOpsLength: 47, UserOps: ops}, nil
	}
	view := NewDetailView(testDeps(t, q, nil), KindPaymaster, "0xabc", &stubResolver{}, url.Values{}, nil)

	snap, err := view.Load(context.Background(), url.Values{"network": {"mainnet"}, "pageNo": {"9"}})
	require.NoError(t, err)
	assert.Equal(t, 5, snap.Table.Page.PageNo)
	assert.Equal(t, 5, snap.Table.MaxPage)
	require.Len(t, snap.Table.Rows, 1)
	assert.Equal(t, "0xpage5", snap.Table.Rows[0].ID)
	assert.Equal(t, []string{
		"paymaster 0xabc mainnet 9 10",
		"paymaster 0xabc mainnet 5 10",
	}, q.callLog())
}

func TestRowMapping(t *testing.T) {
	deps := testDeps(t, nil, nil)
	m := deps.mapper()

	failed := false
	rows := m.userOps("polygon", []client.UserOp{
		{UserOpHash: "0x1", BlockTime: 1_700_000_000, Sender: "0xs", ActualGasCost: client.NewAmount(2_000_000_000_000_000)},
		{UserOpHash: "0x2", Success: &failed},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, RowUserOp, rows[0].Kind)
	assert.Equal(t, "/images/networks/polygon.svg", rows[0].Icon)
	assert.Equal(t, "10 mins ago", rows[0].Age)
	assert.Equal(t, "0.002 MATIC", rows[0].Fee)
	assert.True(t, *rows[0].Success)
	assert.False(t, *rows[1].Success)

	bundlers := m.bundlers("mainnet", []client.Bundler{{Address: "0xb", BundleLength: 4}})
	assert.Equal(t, "4 bundles", bundlers[0].CountText)
}

func TestFormatAge(t *testing.T) {
	now := time.Unix(1_700_100_000, 0)
	assert.Equal(t, "1 sec ago", formatAge(1_700_099_999, now))
	assert.Equal(t, "2 hours ago", formatAge(1_700_100_000-2*3600, now))
	assert.Equal(t, "3 days ago", formatAge(1_700_100_000-3*86400, now))
	assert.Equal(t, "", formatAge(0, now))
}
