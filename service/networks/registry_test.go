package networks

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_PreservesOrder(t *testing.T) {
	r, err := NewRegistry([]Descriptor{
		{Key: "polygon", DisplayName: "Polygon"},
		{Key: "mainnet", DisplayName: "Ethereum"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"polygon", "mainnet"}, r.Keys())
	assert.Equal(t, "polygon", r.Default().Key)
}

func TestNewRegistry_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		descriptors []Descriptor
		wantErr     string
	}{
		{name: "empty", descriptors: nil, wantErr: "at least one network"},
		{name: "blank key", descriptors: []Descriptor{{Key: "  "}}, wantErr: "key is required"},
		{
			name:        "duplicate after normalization",
			descriptors: []Descriptor{{Key: "Base"}, {Key: "base "}},
			wantErr:     "duplicate network key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descriptors)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLookup(t *testing.T) {
	r := BuiltinRegistry()

	d, err := r.Lookup("POLYGON")
	require.NoError(t, err)
	assert.Equal(t, "Polygon", d.DisplayName)
	assert.Equal(t, "MATIC", d.NativeSymbol)

	_, err = r.Lookup("solana")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNetworkNotFound))
	assert.False(t, r.Contains("solana"))
	assert.Equal(t, "", r.IconFor("solana"))
}

func TestList_ReturnsCopy(t *testing.T) {
	r := BuiltinRegistry()
	list := r.List()
	list[0].Key = "mutated"

	assert.Equal(t, "mainnet", r.List()[0].Key)
}

func TestWithDefault(t *testing.T) {
	r := BuiltinRegistry()
	assert.Equal(t, "mainnet", r.Default().Key)

	polygonFirst, err := r.WithDefault("polygon")
	require.NoError(t, err)
	assert.Equal(t, "polygon", polygonFirst.Default().Key)
	assert.Equal(t, r.Keys(), polygonFirst.Keys())

	_, err = r.WithDefault("solana")
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}
