// Package pagestate keeps the selected network, page number and page size of
// one table consistent with its total row count and with the URL query.
package pagestate

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/brojonat/aascan/service/networks"
)

// Query parameter names.
const (
	ParamNetwork  = "network"
	ParamPageNo   = "pageNo"
	ParamPageSize = "pageSize"
)

// DefaultPageSize is used whenever a requested page size is not allowed.
const DefaultPageSize = 10

// AllowedPageSizes is the fixed set of page sizes a table accepts.
var AllowedPageSizes = []int{10, 25, 50}

// State is the page state of one table.
type State struct {
	Network    string `json:"network"`
	PageNo     int    `json:"pageNo"`
	PageSize   int    `json:"pageSize"`
	TotalRows  int    `json:"totalRows"`
	TotalKnown bool   `json:"totalKnown"`
}

// MaxPage is the last valid page, at least 1. Before a total has been
// reported there is no upper bound and MaxPage returns 0.
func (s State) MaxPage() int {
	if !s.TotalKnown {
		return 0
	}
	return maxPage(s.TotalRows, s.PageSize)
}

// Offset is the number of rows before the current page.
func (s State) Offset() int {
	return (s.PageNo - 1) * s.PageSize
}

// CoercePageSize returns size if it is allowed, else DefaultPageSize.
func CoercePageSize(size int) int {
	if slices.Contains(AllowedPageSizes, size) {
		return size
	}
	return DefaultPageSize
}

// Encode writes the round-trippable part of s as URL query parameters.
func Encode(s State) url.Values {
	q := url.Values{}
	q.Set(ParamNetwork, s.Network)
	q.Set(ParamPageNo, strconv.Itoa(s.PageNo))
	q.Set(ParamPageSize, strconv.Itoa(s.PageSize))
	return q
}

// Decode reads a State from URL query parameters. Absent or invalid values
// are corrected silently: pageNo falls back to 1, pageSize to the default,
// and network to previous when it is a known network, else to the
// registry's default. The returned total is unknown.
func Decode(q url.Values, reg *networks.Registry, previous string) State {
	s := State{
		Network:  decodeNetwork(q.Get(ParamNetwork), reg, previous),
		PageNo:   1,
		PageSize: DefaultPageSize,
	}
	if raw := strings.TrimSpace(q.Get(ParamPageSize)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			s.PageSize = CoercePageSize(n)
		}
	}
	if raw := strings.TrimSpace(q.Get(ParamPageNo)); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 1 {
			s.PageNo = n
		}
	}
	return s
}

func decodeNetwork(raw string, reg *networks.Registry, previous string) string {
	if reg.Contains(raw) {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	if reg.Contains(previous) {
		return strings.ToLower(strings.TrimSpace(previous))
	}
	return reg.Default().Key
}

func maxPage(totalRows, pageSize int) int {
	if totalRows <= 0 || pageSize <= 0 {
		return 1
	}
	return (totalRows + pageSize - 1) / pageSize
}

// clampPage bounds p to [1, maxPage] when the total is known, else to >= 1.
func clampPage(p int, s State) int {
	if p < 1 {
		p = 1
	}
	if s.TotalKnown {
		if m := maxPage(s.TotalRows, s.PageSize); p > m {
			p = m
		}
	}
	return p
}
