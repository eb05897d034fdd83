package signer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/tee-agent-registry/interfaces"
)

// NewRequest builds the delegated call for an authorized caller, mapping the
// key type to the signer's domain discriminator.
func NewRequest(endpoint string, caller interfaces.AccountID, path, payload string, keyType interfaces.KeyType) (interfaces.SignatureRequest, error) {
	domain, err := keyType.Domain()
	if err != nil {
		return interfaces.SignatureRequest{}, err
	}
	return interfaces.SignatureRequest{
		Endpoint: endpoint,
		Caller:   caller,
		Path:     path,
		Payload:  payload,
		Domain:   domain,
	}, nil
}

// HTTPSigner calls a signer service over HTTP.
//
// Endpoints are either a base URL (http://signer:8080) or an SRV name
// (srv://_signer._tcp.example.com, or srv+https:// for TLS) resolved on
// every call.
type HTTPSigner struct {
	httpClient *http.Client
	resolver   *SRVResolver
	log        *slog.Logger
}

func NewHTTPSigner(resolver *SRVResolver, log *slog.Logger, timeout time.Duration) *HTTPSigner {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSigner{
		httpClient: &http.Client{Timeout: timeout},
		resolver:   resolver,
		log:        log,
	}
}

// Sign POSTs the request to {endpoint}/sign. Transport failures and non-2xx
// answers wrap ErrSignerUnavailable.
func (s *HTTPSigner) Sign(ctx context.Context, req interfaces.SignatureRequest) (*interfaces.SignatureResponse, error) {
	baseURL, err := s.baseURL(ctx, req.Endpoint)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal signature request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/sign", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignerUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrSignerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: signer returned %d: %s", interfaces.ErrSignerUnavailable, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result interfaces.SignatureResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse signer response: %w", err)
	}
	return &result, nil
}

func (s *HTTPSigner) baseURL(ctx context.Context, endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("%w: no signer endpoint configured", interfaces.ErrSignerUnavailable)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("%w: invalid signer endpoint %q: %v", interfaces.ErrSignerUnavailable, endpoint, err)
	}

	switch u.Scheme {
	case "http", "https":
		return strings.TrimSuffix(endpoint, "/"), nil
	case "srv", "srv+https":
		if s.resolver == nil {
			return "", fmt.Errorf("%w: no resolver for %s", interfaces.ErrSignerUnavailable, endpoint)
		}
		targets, err := s.resolver.Resolve(ctx, u.Host)
		if err != nil {
			return "", fmt.Errorf("%w: %v", interfaces.ErrSignerUnavailable, err)
		}
		scheme := "http"
		if u.Scheme == "srv+https" {
			scheme = "https"
		}
		s.log.Debug("Resolved signer endpoint",
			slog.String("endpoint", endpoint),
			slog.String("target", targets[0].Address()))
		return scheme + "://" + targets[0].Address() + strings.TrimSuffix(u.Path, "/"), nil
	default:
		return "", fmt.Errorf("%w: unsupported signer endpoint scheme %q", interfaces.ErrSignerUnavailable, u.Scheme)
	}
}
