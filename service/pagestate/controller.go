package pagestate

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/brojonat/aascan/service/networks"
)

// URLWriter receives the canonical query after every transition.
type URLWriter interface {
	WriteQuery(q url.Values)
}

// URLWriterFunc adapts a function to URLWriter.
type URLWriterFunc func(q url.Values)

// WriteQuery calls f(q).
func (f URLWriterFunc) WriteQuery(q url.Values) { f(q) }

// Controller is the sole writer of a table's State and of its URL query.
// Each transition that changes the state bumps the request generation and
// writes the URL exactly once. The writer is called with the controller
// lock held, so writes are ordered like transitions and the writer must
// not call back into the controller.
type Controller struct {
	mu     sync.Mutex
	reg    *networks.Registry
	state  State
	gen    uint64
	writer URLWriter
}

// New creates a controller starting at initial, which is normalized but
// not written to the URL.
func New(reg *networks.Registry, initial State, writer URLWriter) *Controller {
	if writer == nil {
		writer = URLWriterFunc(func(url.Values) {})
	}
	if !reg.Contains(initial.Network) {
		initial.Network = reg.Default().Key
	}
	initial.PageSize = CoercePageSize(initial.PageSize)
	initial.PageNo = clampPage(initial.PageNo, initial)
	return &Controller{
		reg:    reg,
		state:  initial,
		gen:    1,
		writer: writer,
	}
}

// FromQuery builds a controller whose initial state is decoded from q.
func FromQuery(reg *networks.Registry, q url.Values, previousNetwork string, writer URLWriter) *Controller {
	return New(reg, Decode(q, reg, previousNetwork), writer)
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns the current state together with its generation.
func (c *Controller) Snapshot() (State, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.gen
}

// Generation returns the current request generation.
func (c *Controller) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// IsCurrent reports whether gen is still the latest generation.
func (c *Controller) IsCurrent(gen uint64) bool {
	return c.Generation() == gen
}

// Query returns the canonical URL query for the current state.
func (c *Controller) Query() url.Values {
	return Encode(c.State())
}

// SetNetwork selects a network and returns to page 1. The total is forgotten
// since it belongs to the previous network.
func (c *Controller) SetNetwork(network string) (uint64, error) {
	d, err := c.reg.Lookup(network)
	if err != nil {
		return 0, fmt.Errorf("set network: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	if next.Network != d.Key {
		next.TotalRows = 0
		next.TotalKnown = false
	}
	next.Network = d.Key
	next.PageNo = 1
	return c.transition(next), nil
}

// SetPageSize coerces size into the allowed set and returns to page 1.
func (c *Controller) SetPageSize(size int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.PageSize = CoercePageSize(size)
	next.PageNo = 1
	return c.transition(next)
}

// SetPageNo moves to page p, clamped into the valid range.
func (c *Controller) SetPageNo(p int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.PageNo = clampPage(p, next)
	return c.transition(next)
}

// ReportTotalRows records the authoritative total. If the current page is
// now past the last page it is clamped down, which counts as a transition;
// the returned bool reports that case. Recording a total alone does not
// change the generation or the URL.
func (c *Controller) ReportTotalRows(total int) (uint64, bool) {
	if total < 0 {
		total = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.state
	next.TotalRows = total
	next.TotalKnown = true
	next.PageNo = clampPage(next.PageNo, next)
	if next.PageNo == c.state.PageNo {
		c.state = next
		return c.gen, false
	}
	return c.transition(next), true
}

// Navigate applies a decoded query as one transition. The total is kept
// only when the network and page size are unchanged.
func (c *Controller) Navigate(q url.Values) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	target := Decode(q, c.reg, c.state.Network)
	next := c.state
	if target.Network != next.Network || target.PageSize != next.PageSize {
		next.TotalRows = 0
		next.TotalKnown = false
	}
	next.Network = target.Network
	next.PageSize = target.PageSize
	next.PageNo = clampPage(target.PageNo, next)
	return c.transition(next)
}

// transition installs next. Unchanged state is not a transition.
func (c *Controller) transition(next State) uint64 {
	if next == c.state {
		return c.gen
	}
	c.state = next
	c.gen++
	c.writer.WriteQuery(Encode(next))
	return c.gen
}
