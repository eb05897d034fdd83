package clients

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ruteri/tee-agent-registry/api"
	"github.com/ruteri/tee-agent-registry/cryptoutils"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

const DefaultTimeout = 30 * time.Second

// APIError is a non-2xx answer from the registry.
type APIError struct {
	StatusCode int
	Response   api.ErrorResponse
}

func (e *APIError) Error() string {
	if len(e.Response.Reasons) > 0 {
		return fmt.Sprintf("registry returned %d: %s %v", e.StatusCode, e.Response.Error, e.Response.Reasons)
	}
	return fmt.Sprintf("registry returned %d: %s", e.StatusCode, e.Response.Error)
}

// RegistryClient talks to the registry HTTP API. Mutating calls are signed
// with key; read calls are not.
type RegistryClient struct {
	baseURL    string
	key        *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time

	mu     sync.Mutex
	lastTS int64
}

// NewRegistryClient creates a client for baseURL (e.g. "http://127.0.0.1:8080").
// key may be nil for a read-only client.
func NewRegistryClient(baseURL string, key *ecdsa.PrivateKey, timeout ...time.Duration) *RegistryClient {
	clientTimeout := DefaultTimeout
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &RegistryClient{
		baseURL:    baseURL,
		key:        key,
		httpClient: &http.Client{Timeout: clientTimeout},
		now:        time.Now,
	}
}

// Account is the identity the client signs as.
func (c *RegistryClient) Account() interfaces.AccountID {
	if c.key == nil {
		return interfaces.AccountID{}
	}
	return cryptoutils.AccountFromKey(c.key)
}

// CreateSignedRequest builds a request carrying the timestamp and the
// caller signature over timestamp || path || body.
func CreateSignedRequest(ctx context.Context, method, rawURL string, body []byte, key *ecdsa.PrivateKey, now time.Time) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	timestamp := now.UnixMilli()
	sig, err := cryptoutils.SignRequest(key, timestamp, parsedURL.Path, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(api.HeaderRequestTimestamp, strconv.FormatInt(timestamp, 10))
	req.Header.Set(api.HeaderCallerSignature, hex.EncodeToString(sig))
	return req, nil
}

func (c *RegistryClient) signedPost(ctx context.Context, path string, payload any, out any) error {
	if c.key == nil {
		return errors.New("client has no signing key")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := CreateSignedRequest(ctx, http.MethodPost, c.baseURL+path, body, c.key, c.nextTimestamp())
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// nextTimestamp returns the signing time for the next request. Timestamps are
// strictly increasing per client, so two identical calls are never mistaken
// for a replay.
func (c *RegistryClient) nextTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	ts := c.now().UnixMilli()
	if ts <= c.lastTS {
		ts = c.lastTS + 1
	}
	c.lastTS = ts
	return time.UnixMilli(ts)
}

func (c *RegistryClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *RegistryClient) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if json.Unmarshal(respBody, &apiErr.Response) != nil || apiErr.Response.Error == "" {
			apiErr.Response.Error = string(bytes.TrimSpace(respBody))
		}
		return apiErr
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func pageQuery(offset, limit int) url.Values {
	q := url.Values{}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return q
}

// Agent calls.

func (c *RegistryClient) Register(ctx context.Context, attestation interfaces.Attestation) (interfaces.AgentView, error) {
	var view interfaces.AgentView
	err := c.signedPost(ctx, "/api/agent/register", attestation, &view)
	return view, err
}

// RequestSignature returns the request id under which the outcome will be
// reported.
func (c *RegistryClient) RequestSignature(ctx context.Context, path, payload string, keyType interfaces.KeyType) (string, error) {
	var resp api.SignResponse
	err := c.signedPost(ctx, "/api/agent/sign", api.SignRequest{Path: path, Payload: payload, KeyType: string(keyType)}, &resp)
	return resp.RequestID, err
}

// Owner calls.

func (c *RegistryClient) ApproveMeasurements(ctx context.Context, bundle interfaces.MeasurementBundle) error {
	return c.signedPost(ctx, "/api/owner/measurements/approve", api.MeasurementsRequest{Measurements: &bundle}, nil)
}

func (c *RegistryClient) RemoveMeasurements(ctx context.Context, bundle interfaces.MeasurementBundle) error {
	return c.signedPost(ctx, "/api/owner/measurements/remove", api.MeasurementsRequest{Measurements: &bundle}, nil)
}

func (c *RegistryClient) ApprovePlatformIDs(ctx context.Context, ids []interfaces.PlatformID) error {
	return c.signedPost(ctx, "/api/owner/platform-ids/approve", api.PlatformIDsRequest{PlatformIDs: ids}, nil)
}

func (c *RegistryClient) RemovePlatformIDs(ctx context.Context, ids []interfaces.PlatformID) error {
	return c.signedPost(ctx, "/api/owner/platform-ids/remove", api.PlatformIDsRequest{PlatformIDs: ids}, nil)
}

func (c *RegistryClient) RemoveAgent(ctx context.Context, account interfaces.AccountID) error {
	return c.signedPost(ctx, "/api/owner/agents/remove", api.AccountRequest{Account: &account}, nil)
}

func (c *RegistryClient) UpdateOwner(ctx context.Context, newOwner interfaces.AccountID) error {
	return c.signedPost(ctx, "/api/owner/owner", api.AccountRequest{Account: &newOwner}, nil)
}

func (c *RegistryClient) UpdateSignerEndpoint(ctx context.Context, endpoint string) error {
	return c.signedPost(ctx, "/api/owner/signer-endpoint", api.SignerEndpointRequest{SignerEndpoint: endpoint}, nil)
}

func (c *RegistryClient) UpdateExpirationDuration(ctx context.Context, d time.Duration) error {
	return c.signedPost(ctx, "/api/owner/expiration-duration", api.ExpirationDurationRequest{ExpirationDuration: interfaces.Duration(d)}, nil)
}

func (c *RegistryClient) WhitelistAgentForLocal(ctx context.Context, account interfaces.AccountID) error {
	return c.signedPost(ctx, "/api/owner/local-whitelist/add", api.AccountRequest{Account: &account}, nil)
}

func (c *RegistryClient) RemoveAgentFromWhitelistForLocal(ctx context.Context, account interfaces.AccountID) error {
	return c.signedPost(ctx, "/api/owner/local-whitelist/remove", api.AccountRequest{Account: &account}, nil)
}

// Read calls.

func (c *RegistryClient) GetAgent(ctx context.Context, account interfaces.AccountID) (interfaces.AgentView, error) {
	var view interfaces.AgentView
	err := c.get(ctx, "/api/agents/"+account.String(), nil, &view)
	return view, err
}

func (c *RegistryClient) ListAgents(ctx context.Context, offset, limit int) ([]interfaces.AgentView, error) {
	var views []interfaces.AgentView
	err := c.get(ctx, "/api/agents", pageQuery(offset, limit), &views)
	return views, err
}

func (c *RegistryClient) ListMeasurements(ctx context.Context, offset, limit int) ([]interfaces.MeasurementBundle, error) {
	var bundles []interfaces.MeasurementBundle
	err := c.get(ctx, "/api/measurements", pageQuery(offset, limit), &bundles)
	return bundles, err
}

func (c *RegistryClient) ListPlatformIDs(ctx context.Context, offset, limit int) ([]interfaces.PlatformID, error) {
	var ids []interfaces.PlatformID
	err := c.get(ctx, "/api/platform-ids", pageQuery(offset, limit), &ids)
	return ids, err
}

func (c *RegistryClient) ContractInfo(ctx context.Context) (interfaces.ContractInfo, error) {
	var info interfaces.ContractInfo
	err := c.get(ctx, "/api/contract", nil, &info)
	return info, err
}

func (c *RegistryClient) ListWhitelistedAgentsForLocal(ctx context.Context) ([]interfaces.AccountID, error) {
	var accounts []interfaces.AccountID
	err := c.get(ctx, "/api/local-whitelist", nil, &accounts)
	return accounts, err
}

func (c *RegistryClient) ListEvents(ctx context.Context, offset, limit int) ([]json.RawMessage, error) {
	var events []json.RawMessage
	err := c.get(ctx, "/api/events", pageQuery(offset, limit), &events)
	return events, err
}
