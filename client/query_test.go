package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestBundles_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/v0/getLatestBundles", r.URL.Path)
		assert.Equal(t, "polygon", r.URL.Query().Get("network"))
		assert.Equal(t, "5", r.URL.Query().Get("first"))
		assert.Equal(t, "0", r.URL.Query().Get("skip"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"bundles": []map[string]any{
				{"transactionHash": "0xaaa", "blockTime": 1700000000, "userOpsLength": 3},
				{"transactionHash": "0xbbb", "blockTime": 1700000100, "userOpsLength": 1},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	bundles, err := client.LatestBundles(context.Background(), "polygon", 5, 0)
	require.NoError(t, err)
	require.Len(t, bundles, 2)
	assert.Equal(t, "0xaaa", bundles[0].TransactionHash)
	assert.Equal(t, 3, bundles[0].UserOpsLength)
	assert.Equal(t, int64(1700000100), bundles[1].BlockTime)
}

func TestListOperations_InvalidArgumentsSkipIO(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
	}{
		{"empty network", func() error { _, err := client.LatestBundles(ctx, "", 5, 0); return err }},
		{"zero limit", func() error { _, err := client.LatestUserOps(ctx, "mainnet", 0, 0); return err }},
		{"negative offset", func() error { _, err := client.TopBundlers(ctx, "mainnet", 5, -1); return err }},
		{"zero page", func() error { _, err := client.PaymasterDetails(ctx, "0x1", "mainnet", 0, 10); return err }},
		{"empty address", func() error { _, err := client.BundlerDetails(ctx, "", "mainnet", 1, 10); return err }},
		{"empty probe network", func() error { _, err := client.ProbeNetwork(ctx, "0xabc", ""); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
	assert.Equal(t, 0, calls)
}

func TestPaymasterDetails_PageTranslation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/getPayMasterDetails", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "0xpay", q.Get("address"))
		assert.Equal(t, "mainnet", q.Get("network"))
		assert.Equal(t, "25", q.Get("first"))
		assert.Equal(t, "50", q.Get("skip"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"address":       "0xpay",
			"totalDeposits": "2500000000000000000",
			"userOpsLength": 47,
			"userOps": []map[string]any{
				{"userOpHash": "0x01", "sender": "0xs", "target": []string{"0xt"}, "actualGasCost": 21000000000000, "success": true},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	activity, err := client.PaymasterDetails(context.Background(), "0xpay", "mainnet", 3, 25)
	require.NoError(t, err)
	assert.Equal(t, 47, activity.UserOpsLength)
	assert.Equal(t, "2500000000000000000", activity.TotalDeposits.Wei().String())
	require.Len(t, activity.UserOps, 1)
	assert.Equal(t, "0.000021 ETH", activity.UserOps[0].ActualGasCost.FormatFee("ETH"))
}

func TestServerError_IsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"error": "upstream unavailable"})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.TopBundlers(context.Background(), "mainnet", 5, 0)
	require.Error(t, err)

	var transportErr *TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, http.StatusBadGateway, transportErr.StatusCode)
	assert.Contains(t, err.Error(), "upstream unavailable")
}

func TestUnreachable_IsTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, nil, nil)
	_, err := client.LatestUserOps(context.Background(), "mainnet", 5, 0)
	var transportErr *TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Zero(t, transportErr.StatusCode)
}

func TestMalformedPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"wrong shape", `{"paymasters": "nope"}`},
		{"missing identifier", `{"paymasters": [{"userOpsLength": 4}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, nil, nil)
			_, err := client.TopPaymasters(context.Background(), "mainnet", 5, 0)
			var malformed *MalformedResponseError
			require.ErrorAs(t, err, &malformed)
			assert.Equal(t, "top_paymasters", malformed.Op)
		})
	}
}

func TestProbeNetwork(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/searchEntry", r.URL.Path)
		assert.Equal(t, "0xabc", r.URL.Query().Get("entry"))
		switch r.URL.Query().Get("network") {
		case "polygon":
			json.NewEncoder(w).Encode(map[string]any{"userOps": []any{}})
		case "mainnet":
			json.NewEncoder(w).Encode(map[string]any{"message": "No entry found"})
		case "base":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	ctx := context.Background()

	res, err := client.ProbeNetwork(ctx, "0xabc", "polygon")
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, "polygon", res.Network)

	res, err = client.ProbeNetwork(ctx, "0xabc", "mainnet")
	require.NoError(t, err)
	assert.False(t, res.Found)

	res, err = client.ProbeNetwork(ctx, "0xabc", "base")
	require.NoError(t, err)
	assert.False(t, res.Found)

	_, err = client.ProbeNetwork(ctx, "0xabc", "bsc")
	var transportErr *TransportError
	assert.ErrorAs(t, err, &transportErr)
}

func TestAmount_UnmarshalForms(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`123`, "123"},
		{`"456"`, "456"},
		{`"0x10"`, "16"},
		{`1e18`, "1000000000000000000"},
		{`null`, "0"},
	}
	for _, tt := range tests {
		var a Amount
		require.NoError(t, json.Unmarshal([]byte(tt.in), &a), tt.in)
		assert.Equal(t, tt.want, a.Wei().String(), tt.in)
	}

	var bad Amount
	assert.Error(t, json.Unmarshal([]byte(`"ten"`), &bad))
}

func TestAmount_FormatFee(t *testing.T) {
	assert.Equal(t, "1 ETH", NewAmount(1_000_000_000_000_000_000).FormatFee("ETH"))
	assert.Equal(t, "0 MATIC", Amount{}.FormatFee("MATIC"))
	assert.Equal(t, "0.5", NewAmount(500_000_000_000_000_000).FormatFee(""))
}
