package transport

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/Layr-Labs/merkle-distributor-go/pkg/balancemap"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/registry/server"
	"github.com/Layr-Labs/merkle-distributor-go/pkg/util"
)

// ErrNoSigner is returned by operations that need a signed request when the
// client was created without a key.
var ErrNoSigner = errors.New("client has no signing key")

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts     int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides default retry settings
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     5,
	InitialBackoff:  100 * time.Millisecond,
	MaxBackoff:      5 * time.Second,
	BackoffMultiple: 2.0,
}

// APIError is a non-2xx answer from the distributor. It unwraps to the
// matching registry error so callers can use errors.Is.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("distributor returned %d: %s", e.StatusCode, e.Message)
}

var registryErrors = []error{
	registry.ErrInvalidProof,
	registry.ErrInvalidAmount,
	registry.ErrBlockedAccount,
	registry.ErrAlreadyClaimed,
	registry.ErrAlreadyBlocked,
	registry.ErrNotBlocked,
	registry.ErrInvalidAddress,
	registry.ErrNotOwner,
	registry.ErrZeroOwner,
	registry.ErrNotPaused,
	registry.ErrPaused,
	registry.ErrAlreadyPaused,
	registry.ErrTransferFailed,
	registry.ErrTransferPending,
}

func (e *APIError) Unwrap() error {
	for _, sentinel := range registryErrors {
		if strings.HasPrefix(e.Message, sentinel.Error()) {
			return sentinel
		}
	}
	return nil
}

// Client talks to a distributor server. Reads are retried with exponential
// backoff; signed writes are sent once, since a lost response may hide a
// completed payout.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	key         *ecdsa.PrivateKey
	retryConfig RetryConfig

	mu     sync.Mutex
	lastTS int64
	now    func() time.Time
}

// NewClient creates a client for the server at baseURL. key signs state
// changing requests and may be nil for a read-only client.
func NewClient(baseURL string, key *ecdsa.PrivateKey, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		key:         key,
		retryConfig: DefaultRetryConfig,
		now:         time.Now,
	}
}

// SetRetryConfig replaces the retry policy for reads.
func (c *Client) SetRetryConfig(cfg RetryConfig) {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	c.retryConfig = cfg
}

// Address is the account requests are signed as.
func (c *Client) Address() common.Address {
	if c.key == nil {
		return common.Address{}
	}
	return crypto.PubkeyToAddress(c.key.PublicKey)
}

// buildRequestURL constructs a full URL for a distributor endpoint
func (c *Client) buildRequestURL(path string) string {
	return fmt.Sprintf("%s%s", c.baseURL, path)
}

// nextTimestamp returns the current unix time, bumped past the last one used
// so two identical requests never share a signed payload.
func (c *Client) nextTimestamp() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().Unix()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return ts
}

func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
		var decoded struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &decoded) == nil && decoded.Error != "" {
			apiErr.Message = decoded.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// get issues a GET with retries
func (c *Client) get(ctx context.Context, path string, out any) error {
	var lastErr error
	backoff := c.retryConfig.InitialBackoff
	for attempt := 0; attempt < c.retryConfig.MaxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildRequestURL(path), nil)
		if err != nil {
			return err
		}
		lastErr = c.send(req, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}

		if attempt < c.retryConfig.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * c.retryConfig.BackoffMultiple)
			if backoff > c.retryConfig.MaxBackoff {
				backoff = c.retryConfig.MaxBackoff
			}
		}
	}
	return fmt.Errorf("GET %s failed after %d attempts: %w", path, c.retryConfig.MaxAttempts, lastErr)
}

// post sends body as JSON, signed when sign is set
func (c *Client) post(ctx context.Context, path string, body, out any, sign bool) error {
	if sign && c.key == nil {
		return ErrNoSigner
	}
	data := []byte("{}")
	if body != nil {
		var err error
		if data, err = json.Marshal(body); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildRequestURL(path), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if sign {
		ts := c.nextTimestamp()
		sig, err := util.SignRequest(c.key, http.MethodPost, path, data, uint64(ts))
		if err != nil {
			return fmt.Errorf("failed to sign request: %w", err)
		}
		req.Header.Set(server.HeaderSignature, hexutil.Encode(sig))
		req.Header.Set(server.HeaderTimestamp, strconv.FormatInt(ts, 10))
	}
	return c.send(req, out)
}

func claimRequest(record *balancemap.ClaimRecord, amount *uint256.Int) server.ClaimRequest {
	req := server.ClaimRequest{
		Index: record.Index,
		Total: record.Amount.Hex(),
		Proof: util.Map(record.Proof, func(p [32]byte, _ uint64) string {
			return hexutil.Encode(p[:])
		}),
	}
	if amount != nil {
		req.Amount = amount.Hex()
	}
	return req
}

func parseClaimed(resp *server.ClaimResponse) (*uint256.Int, error) {
	claimed, err := balancemap.ParseAmount(resp.Claimed)
	if err != nil {
		return nil, fmt.Errorf("invalid claimed amount in response: %w", err)
	}
	return claimed, nil
}

// Health checks that the server and its persistence layer are up.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

func (c *Client) Info(ctx context.Context) (*server.InfoResponse, error) {
	var info server.InfoResponse
	if err := c.get(ctx, "/info", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Root(ctx context.Context) (common.Hash, error) {
	var resp map[string]common.Hash
	if err := c.get(ctx, "/root", &resp); err != nil {
		return common.Hash{}, err
	}
	return resp["root"], nil
}

func (c *Client) Owner(ctx context.Context) (common.Address, error) {
	var resp map[string]common.Address
	if err := c.get(ctx, "/owner", &resp); err != nil {
		return common.Address{}, err
	}
	return resp["owner"], nil
}

func (c *Client) Paused(ctx context.Context) (bool, error) {
	var resp map[string]bool
	if err := c.get(ctx, "/paused", &resp); err != nil {
		return false, err
	}
	return resp["paused"], nil
}

// Account returns whether account may be paid and how much it has claimed.
func (c *Client) Account(ctx context.Context, account common.Address) (*server.AccountResponse, error) {
	var resp server.AccountResponse
	if err := c.get(ctx, "/accounts/"+account.Hex(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Blocked(ctx context.Context) ([]common.Address, error) {
	var resp map[string][]string
	if err := c.get(ctx, "/blocked", &resp); err != nil {
		return nil, err
	}
	return util.Map(resp["blocked"], func(s string, _ uint64) common.Address {
		return common.HexToAddress(s)
	}), nil
}

// Events pages through the event log. Pass the returned Next as after to
// continue.
func (c *Client) Events(ctx context.Context, after uint64, limit int) (*server.EventsResponse, error) {
	q := url.Values{}
	q.Set("after", strconv.FormatUint(after, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp server.EventsResponse
	if err := c.get(ctx, "/events?"+q.Encode(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Claimable returns how much of record's entitlement account can still claim.
func (c *Client) Claimable(ctx context.Context, account common.Address, record *balancemap.ClaimRecord) (*uint256.Int, error) {
	claim := claimRequest(record, nil)
	req := server.ClaimableRequest{
		Account: account.Hex(),
		Index:   claim.Index,
		Total:   claim.Total,
		Proof:   claim.Proof,
	}
	var resp server.ClaimableResponse
	if err := c.post(ctx, "/claimable", req, &resp, false); err != nil {
		return nil, err
	}
	return balancemap.ParseAmount(resp.Claimable)
}

// Claim withdraws amount of the signer's entitlement and returns the total
// claimed so far.
func (c *Client) Claim(ctx context.Context, record *balancemap.ClaimRecord, amount *uint256.Int) (*uint256.Int, error) {
	if amount == nil {
		return nil, registry.ErrInvalidAmount
	}
	var resp server.ClaimResponse
	if err := c.post(ctx, "/claim", claimRequest(record, amount), &resp, true); err != nil {
		return nil, err
	}
	return parseClaimed(&resp)
}

// ClaimAll withdraws the signer's whole entitlement.
func (c *Client) ClaimAll(ctx context.Context, record *balancemap.ClaimRecord) (*uint256.Int, error) {
	var resp server.ClaimResponse
	if err := c.post(ctx, "/claim-all", claimRequest(record, nil), &resp, true); err != nil {
		return nil, err
	}
	return parseClaimed(&resp)
}

func (c *Client) UpdateMerkleRoot(ctx context.Context, root common.Hash) error {
	return c.post(ctx, "/admin/root", server.RootRequest{Root: root.Hex()}, nil, true)
}

func (c *Client) Blacklist(ctx context.Context, account common.Address) error {
	return c.post(ctx, "/admin/blacklist", server.AccountRequest{Account: account.Hex()}, nil, true)
}

func (c *Client) Whitelist(ctx context.Context, account common.Address) error {
	return c.post(ctx, "/admin/whitelist", server.AccountRequest{Account: account.Hex()}, nil, true)
}

func (c *Client) Pause(ctx context.Context) error {
	return c.post(ctx, "/admin/pause", nil, nil, true)
}

func (c *Client) Unpause(ctx context.Context) error {
	return c.post(ctx, "/admin/unpause", nil, nil, true)
}

func (c *Client) WithdrawToken(ctx context.Context, amount *uint256.Int) error {
	if amount == nil {
		return registry.ErrInvalidAmount
	}
	return c.post(ctx, "/admin/withdraw", server.WithdrawRequest{Amount: amount.Hex()}, nil, true)
}

func (c *Client) TransferOwnership(ctx context.Context, newOwner common.Address) error {
	return c.post(ctx, "/admin/owner", server.OwnerRequest{NewOwner: newOwner.Hex()}, nil, true)
}
