package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/aascan/service/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	pathLatestBundles    = "/v0/getLatestBundles"
	pathLatestUserOps    = "/v0/getLatestUserOps"
	pathTopBundlers      = "/v0/getTopBundlers"
	pathTopPaymasters    = "/v0/getTopPaymasters"
	pathPaymasterDetails = "/v0/getPayMasterDetails"
	pathBundlerDetails   = "/v0/getBundlerDetails"
	pathAddressActivity  = "/v0/getAddressActivity"
	pathSearchEntry      = "/v0/searchEntry"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 8 << 20

var tracer = otel.Tracer("github.com/brojonat/aascan/client")

// Client is the HTTP client for the explorer query API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithMetrics records per-call metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient creates a new query API client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, opts ...Option) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LatestBundles returns the most recent bundles on a network.
func (c *Client) LatestBundles(ctx context.Context, network string, limit, offset int) ([]Bundle, error) {
	const op = "latest_bundles"
	if err := validateList(network, limit, offset); err != nil {
		return nil, err
	}
	var resp struct {
		Bundles []Bundle `json:"bundles"`
	}
	if err := c.get(ctx, op, network, pathLatestBundles, listParams(network, limit, offset), &resp, nil); err != nil {
		return nil, err
	}
	for i, b := range resp.Bundles {
		if b.TransactionHash == "" {
			return nil, &MalformedResponseError{Op: op, Network: network, Err: fmt.Errorf("bundle %d has no transactionHash", i)}
		}
	}
	return resp.Bundles, nil
}

// LatestUserOps returns the most recent user operations on a network.
func (c *Client) LatestUserOps(ctx context.Context, network string, limit, offset int) ([]UserOp, error) {
	const op = "latest_user_ops"
	if err := validateList(network, limit, offset); err != nil {
		return nil, err
	}
	var resp struct {
		UserOps []UserOp `json:"userOps"`
	}
	if err := c.get(ctx, op, network, pathLatestUserOps, listParams(network, limit, offset), &resp, nil); err != nil {
		return nil, err
	}
	if err := checkUserOps(op, network, resp.UserOps); err != nil {
		return nil, err
	}
	return resp.UserOps, nil
}

// TopBundlers returns bundlers ranked by activity on a network.
func (c *Client) TopBundlers(ctx context.Context, network string, limit, offset int) ([]Bundler, error) {
	const op = "top_bundlers"
	if err := validateList(network, limit, offset); err != nil {
		return nil, err
	}
	var resp struct {
		Bundlers []Bundler `json:"bundlers"`
	}
	if err := c.get(ctx, op, network, pathTopBundlers, listParams(network, limit, offset), &resp, nil); err != nil {
		return nil, err
	}
	for i, b := range resp.Bundlers {
		if b.Address == "" {
			return nil, &MalformedResponseError{Op: op, Network: network, Err: fmt.Errorf("bundler %d has no address", i)}
		}
	}
	return resp.Bundlers, nil
}

// TopPaymasters returns paymasters ranked by sponsored operations on a network.
func (c *Client) TopPaymasters(ctx context.Context, network string, limit, offset int) ([]Paymaster, error) {
	const op = "top_paymasters"
	if err := validateList(network, limit, offset); err != nil {
		return nil, err
	}
	var resp struct {
		Paymasters []Paymaster `json:"paymasters"`
	}
	if err := c.get(ctx, op, network, pathTopPaymasters, listParams(network, limit, offset), &resp, nil); err != nil {
		return nil, err
	}
	for i, p := range resp.Paymasters {
		if p.Address == "" {
			return nil, &MalformedResponseError{Op: op, Network: network, Err: fmt.Errorf("paymaster %d has no address", i)}
		}
	}
	return resp.Paymasters, nil
}

// PaymasterDetails returns a paymaster's summary and one page of the user
// operations it sponsored.
func (c *Client) PaymasterDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*PaymasterActivity, error) {
	const op = "paymaster_details"
	params, err := detailParams(address, network, pageNo, pageSize)
	if err != nil {
		return nil, err
	}
	var resp PaymasterActivity
	if err := c.get(ctx, op, network, pathPaymasterDetails, params, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Address == "" {
		resp.Address = address
	}
	if err := checkUserOps(op, network, resp.UserOps); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BundlerDetails returns a bundler's summary and one page of its bundles.
func (c *Client) BundlerDetails(ctx context.Context, address, network string, pageNo, pageSize int) (*BundlerActivity, error) {
	const op = "bundler_details"
	params, err := detailParams(address, network, pageNo, pageSize)
	if err != nil {
		return nil, err
	}
	var resp BundlerActivity
	if err := c.get(ctx, op, network, pathBundlerDetails, params, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Address == "" {
		resp.Address = address
	}
	for i, b := range resp.Bundles {
		if b.TransactionHash == "" {
			return nil, &MalformedResponseError{Op: op, Network: network, Err: fmt.Errorf("bundle %d has no transactionHash", i)}
		}
	}
	return &resp, nil
}

// AddressActivity returns an account's summary and one page of the user
// operations it sent.
func (c *Client) AddressActivity(ctx context.Context, address, network string, pageNo, pageSize int) (*AccountActivity, error) {
	const op = "address_activity"
	params, err := detailParams(address, network, pageNo, pageSize)
	if err != nil {
		return nil, err
	}
	var resp AccountActivity
	if err := c.get(ctx, op, network, pathAddressActivity, params, &resp, nil); err != nil {
		return nil, err
	}
	if resp.Address == "" {
		resp.Address = address
	}
	if err := checkUserOps(op, network, resp.UserOps); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ProbeNetwork asks one network whether it recognizes hash. A payload
// carrying a "message" or an HTTP 404 means not found on that network.
func (c *Client) ProbeNetwork(ctx context.Context, hash, network string) (ProbeResult, error) {
	const op = "probe_network"
	if strings.TrimSpace(network) == "" {
		return ProbeResult{}, invalidArgument("network is required")
	}
	if strings.TrimSpace(hash) == "" {
		return ProbeResult{}, invalidArgument("hash is required")
	}
	params := url.Values{}
	params.Set("entry", hash)
	params.Set("network", network)

	var resp struct {
		Message string `json:"message"`
	}
	notFound := false
	onStatus := func(status int) bool {
		if status == http.StatusNotFound {
			notFound = true
			return true
		}
		return false
	}
	if err := c.get(ctx, op, network, pathSearchEntry, params, &resp, onStatus); err != nil {
		return ProbeResult{}, err
	}
	return ProbeResult{Network: network, Found: !notFound && resp.Message == ""}, nil
}

// get performs a GET against path and decodes a JSON body into out. When
// handled is non-nil and returns true for a non-200 status, the call
// succeeds without decoding.
func (c *Client) get(ctx context.Context, op, network, path string, params url.Values, out any, handled func(int) bool) (err error) {
	ctx, span := tracer.Start(ctx, "query."+op)
	span.SetAttributes(attribute.String("network", network), attribute.String("path", path))
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if c.metrics != nil {
			c.metrics.RecordQueryCall(op, network, status, time.Since(start).Seconds())
		}
		span.End()
	}()

	u := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: op, Network: network, Err: err}
	}
	defer resp.Body.Close()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode != http.StatusOK {
		if handled != nil && handled(resp.StatusCode) {
			c.logger.DebugContext(ctx, "query handled status", "op", op, "network", network, "status", resp.StatusCode)
			return nil
		}
		return &TransportError{Op: op, Network: network, StatusCode: resp.StatusCode, Err: c.parseErrorResponse(resp)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &TransportError{Op: op, Network: network, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &MalformedResponseError{Op: op, Network: network, Err: err}
	}

	c.logger.DebugContext(ctx, "query completed", "op", op, "network", network, "duration", time.Since(start))
	return nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(body, &errResp); err != nil || (errResp.Error == "" && errResp.Message == "") {
		return errors.New(strings.TrimSpace(string(body)))
	}
	if errResp.Error != "" {
		return errors.New(errResp.Error)
	}
	return errors.New(errResp.Message)
}

func validateList(network string, limit, offset int) error {
	if strings.TrimSpace(network) == "" {
		return invalidArgument("network is required")
	}
	if limit <= 0 {
		return invalidArgument("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return invalidArgument("offset must not be negative, got %d", offset)
	}
	return nil
}

func listParams(network string, limit, offset int) url.Values {
	params := url.Values{}
	params.Set("network", network)
	params.Set("first", strconv.Itoa(limit))
	params.Set("skip", strconv.Itoa(offset))
	return params
}

// detailParams maps a 1-based page to first/skip.
func detailParams(address, network string, pageNo, pageSize int) (url.Values, error) {
	if strings.TrimSpace(address) == "" {
		return nil, invalidArgument("address is required")
	}
	if strings.TrimSpace(network) == "" {
		return nil, invalidArgument("network is required")
	}
	if pageNo <= 0 {
		return nil, invalidArgument("pageNo must be positive, got %d", pageNo)
	}
	if pageSize <= 0 {
		return nil, invalidArgument("pageSize must be positive, got %d", pageSize)
	}
	params := url.Values{}
	params.Set("address", address)
	params.Set("network", network)
	params.Set("first", strconv.Itoa(pageSize))
	params.Set("skip", strconv.Itoa((pageNo-1)*pageSize))
	return params, nil
}

func checkUserOps(op, network string, ops []UserOp) error {
	for i, u := range ops {
		if u.UserOpHash == "" {
			return &MalformedResponseError{Op: op, Network: network, Err: fmt.Errorf("user op %d has no userOpHash", i)}
		}
	}
	return nil
}
