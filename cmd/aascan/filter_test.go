package main

import (
	"testing"

	"github.com/brojonat/aascan/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterRows(t *testing.T) {
	yes, no := true, false
	rows := []client.UserOp{
		{UserOpHash: "0x1", Sender: "0xaa", ActualGasCost: client.NewAmount(10), Success: &yes},
		{UserOpHash: "0x2", Sender: "0xbb", ActualGasCost: client.NewAmount(20), Success: &no},
		{UserOpHash: "0x3", Sender: "0xaa", ActualGasCost: client.NewAmount(30)},
	}

	tests := []struct {
		name  string
		exprs []string
		want  []string
	}{
		{name: "no filters", exprs: nil, want: []string{"0x1", "0x2", "0x3"}},
		{name: "by sender", exprs: []string{`.sender == "0xaa"`}, want: []string{"0x1", "0x3"}},
		{name: "failed only", exprs: []string{`.success == false`}, want: []string{"0x2"}},
		{name: "all must match", exprs: []string{`.sender == "0xaa"`, `.success`}, want: []string{"0x1"}},
		{name: "null is falsy", exprs: []string{`.missing`}, want: []string{}},
		{name: "empty output is no match", exprs: []string{`empty`}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := compileFilters(tt.exprs)
			require.NoError(t, err)
			got, err := filterRows(f, rows)
			require.NoError(t, err)

			hashes := make([]string, 0, len(got))
			for _, op := range got {
				hashes = append(hashes, op.UserOpHash)
			}
			assert.Equal(t, tt.want, hashes)
		})
	}
}

func TestCompileFilters_Invalid(t *testing.T) {
	_, err := compileFilters([]string{".sender =="})
	assert.Error(t, err)
}

func TestFilterRows_RuntimeError(t *testing.T) {
	f, err := compileFilters([]string{`.address | tonumber`})
	require.NoError(t, err)
	_, err = filterRows(f, []client.Bundler{{Address: "0xnotanumber"}})
	assert.Error(t, err)
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0))
	assert.True(t, isTruthy(""))
}
