package client

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/params"
)

// Bundle is a batch of user operations submitted on-chain by a bundler.
type Bundle struct {
	TransactionHash string `json:"transactionHash"`
	BlockTime       int64  `json:"blockTime"`
	UserOpsLength   int    `json:"userOpsLength"`
	Network         string `json:"network,omitempty"`
}

// UserOp is a single ERC-4337 user operation.
type UserOp struct {
	UserOpHash    string   `json:"userOpHash"`
	BlockTime     int64    `json:"blockTime"`
	Sender        string   `json:"sender"`
	Target        []string `json:"target"`
	ActualGasCost Amount   `json:"actualGasCost"`
	Success       *bool    `json:"success,omitempty"`
	Network       string   `json:"network,omitempty"`
}

// Bundler is an aggregate record for an actor submitting bundles.
type Bundler struct {
	Address          string `json:"address"`
	BundleLength     int    `json:"bundleLength"`
	ActualGasCostSum Amount `json:"actualGasCostSum"`
}

// Paymaster is an aggregate record for an actor sponsoring gas.
type Paymaster struct {
	Address       string `json:"address"`
	UserOpsLength int    `json:"userOpsLength"`
	TotalDeposits Amount `json:"totalDeposits"`
}

// PaymasterActivity is the summary and one page of user operations
// sponsored by a paymaster.
type PaymasterActivity struct {
	Address       string   `json:"address"`
	TotalDeposits Amount   `json:"totalDeposits"`
	UserOpsLength int      `json:"userOpsLength"`
	UserOps       []UserOp `json:"userOps"`
}

// BundlerActivity is the summary and one page of bundles submitted by a
// bundler.
type BundlerActivity struct {
	Address      string   `json:"address"`
	BundleLength int      `json:"bundleLength"`
	Bundles      []Bundle `json:"bundles"`
}

// AccountActivity is the summary and one page of user operations sent
// from an account.
type AccountActivity struct {
	Address      string   `json:"address"`
	UserOpsCount int      `json:"userOpsCount"`
	UserOps      []UserOp `json:"userOps"`
}

// ProbeResult reports whether a network recognizes a hash or address.
// Found == false is a normal outcome, not a failure.
type ProbeResult struct {
	Network string `json:"network"`
	Found   bool   `json:"found"`
}

// Amount is a non-negative wei quantity. The query API sends it either as
// a JSON number or as a decimal/hex string.
type Amount struct {
	Int *big.Int
}

// NewAmount wraps a wei value.
func NewAmount(wei int64) Amount {
	return Amount{Int: big.NewInt(wei)}
}

// Wei returns the amount as a big.Int, zero when unset.
func (a Amount) Wei() *big.Int {
	if a.Int == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(a.Int)
}

// UnmarshalJSON accepts numbers, quoted numbers and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.Int = nil
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		a.Int = nil
		return nil
	}
	// Large gas sums may arrive in exponent form from JSON numbers.
	if strings.ContainsAny(s, "eE") && !strings.HasPrefix(s, "0x") {
		f, ok := new(big.Float).SetString(s)
		if !ok {
			return fmt.Errorf("invalid amount %q", s)
		}
		i, _ := f.Int(nil)
		a.Int = i
		return nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return fmt.Errorf("invalid amount %q", s)
	}
	a.Int = v
	return nil
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.Wei().String() + `"`), nil
}

// FormatFee renders the amount in whole native units with up to six
// decimals, e.g. "0.001234 ETH".
func (a Amount) FormatFee(symbol string) string {
	wei := new(big.Float).SetInt(a.Wei())
	ether := new(big.Float).Quo(wei, big.NewFloat(params.Ether))
	text := ether.Text('f', 6)
	text = strings.TrimRight(strings.TrimRight(text, "0"), ".")
	if text == "" {
		text = "0"
	}
	if symbol == "" {
		return text
	}
	return text + " " + symbol
}
