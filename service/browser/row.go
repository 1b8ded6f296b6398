package browser

import (
	"fmt"
	"time"

	"github.com/brojonat/aascan/client"
	"github.com/brojonat/aascan/service/networks"
)

// RowKind tags the variant a Row carries.
type RowKind string

const (
	RowBundle    RowKind = "bundle"
	RowUserOp    RowKind = "userOp"
	RowBundler   RowKind = "bundler"
	RowPaymaster RowKind = "paymaster"
)

// Row is one immutable table row. ID is the hash or address; the other
// fields are set according to Kind.
type Row struct {
	Kind    RowKind `json:"kind"`
	ID      string  `json:"id"`
	Icon    string  `json:"icon"`
	Network string  `json:"network"`

	BlockTime int64    `json:"blockTime,omitempty"`
	Age       string   `json:"age,omitempty"`
	Sender    string   `json:"sender,omitempty"`
	Targets   []string `json:"targets,omitempty"`
	Success   *bool    `json:"success,omitempty"`
	Fee       string   `json:"fee,omitempty"`
	Count     int      `json:"count"`
	CountText string   `json:"countText,omitempty"`
}

// Summary is the account header of a detail view.
type Summary struct {
	Address       string `json:"address"`
	Network       string `json:"network"`
	TotalDeposits string `json:"totalDeposits,omitempty"`
	Count         int    `json:"count"`
}

// rowMapper turns query records into rows for one registry.
type rowMapper struct {
	reg *networks.Registry
	now func() time.Time
}

func (m rowMapper) symbol(network string) string {
	d, err := m.reg.Lookup(network)
	if err != nil {
		return ""
	}
	return d.NativeSymbol
}

// recordNetwork prefers the network a record carries over the queried one.
func recordNetwork(recorded, queried string) string {
	if recorded != "" {
		return recorded
	}
	return queried
}

func (m rowMapper) bundles(network string, bundles []client.Bundle) []Row {
	rows := make([]Row, 0, len(bundles))
	for _, b := range bundles {
		n := recordNetwork(b.Network, network)
		success := true
		rows = append(rows, Row{
			Kind:      RowBundle,
			ID:        b.TransactionHash,
			Icon:      m.reg.IconFor(n),
			Network:   n,
			BlockTime: b.BlockTime,
			Age:       formatAge(b.BlockTime, m.now()),
			Success:   &success,
			Count:     b.UserOpsLength,
			CountText: fmt.Sprintf("%d ops", b.UserOpsLength),
		})
	}
	return rows
}

func (m rowMapper) userOps(network string, ops []client.UserOp) []Row {
	rows := make([]Row, 0, len(ops))
	for _, op := range ops {
		n := recordNetwork(op.Network, network)
		// Records without a success flag are shown as successful.
		success := true
		if op.Success != nil {
			success = *op.Success
		}
		rows = append(rows, Row{
			Kind:      RowUserOp,
			ID:        op.UserOpHash,
			Icon:      m.reg.IconFor(n),
			Network:   n,
			BlockTime: op.BlockTime,
			Age:       formatAge(op.BlockTime, m.now()),
			Sender:    op.Sender,
			Targets:   op.Target,
			Success:   &success,
			Fee:       op.ActualGasCost.FormatFee(m.symbol(n)),
		})
	}
	return rows
}

func (m rowMapper) bundlers(network string, bundlers []client.Bundler) []Row {
	rows := make([]Row, 0, len(bundlers))
	for _, b := range bundlers {
		rows = append(rows, Row{
			Kind:      RowBundler,
			ID:        b.Address,
			Icon:      m.reg.IconFor(network),
			Network:   network,
			Fee:       b.ActualGasCostSum.FormatFee(m.symbol(network)),
			Count:     b.BundleLength,
			CountText: fmt.Sprintf("%d bundles", b.BundleLength),
		})
	}
	return rows
}

func (m rowMapper) paymasters(network string, paymasters []client.Paymaster) []Row {
	rows := make([]Row, 0, len(paymasters))
	for _, p := range paymasters {
		rows = append(rows, Row{
			Kind:      RowPaymaster,
			ID:        p.Address,
			Icon:      m.reg.IconFor(network),
			Network:   network,
			Fee:       p.TotalDeposits.FormatFee(m.symbol(network)),
			Count:     p.UserOpsLength,
			CountText: fmt.Sprintf("%d ops", p.UserOpsLength),
		})
	}
	return rows
}

// formatAge renders how long ago a unix block time was.
func formatAge(blockTime int64, now time.Time) string {
	if blockTime <= 0 {
		return ""
	}
	d := now.Sub(time.Unix(blockTime, 0))
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return plural(int(d/time.Second), "sec")
	case d < time.Hour:
		return plural(int(d/time.Minute), "min")
	case d < 24*time.Hour:
		return plural(int(d/time.Hour), "hour")
	default:
		return plural(int(d/(24*time.Hour)), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
