package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/lru"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-agent-registry/cryptoutils"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

// DefaultRequestMaxAge is how far a request timestamp may drift from the
// server clock.
const DefaultRequestMaxAge = 5 * time.Minute

// MaxRequestBodySize bounds signed request bodies.
const MaxRequestBodySize = 1 << 20

// DefaultReplayCacheSize bounds how many recent request digests are kept.
const DefaultReplayCacheSize = 1 << 16

var (
	ErrUnauthenticated   = errors.New("request signature missing or invalid")
	ErrReplayedRequest   = fmt.Errorf("%w: request already seen", ErrUnauthenticated)
	ErrRequestBodyTooBig = errors.New("request body too large")
)

type callerKey struct{}

// WithCaller returns a context carrying the authenticated caller.
func WithCaller(ctx context.Context, caller interfaces.AccountID) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the caller set by SignedRequestAuth.
func CallerFromContext(ctx context.Context) (interfaces.AccountID, bool) {
	caller, ok := ctx.Value(callerKey{}).(interfaces.AccountID)
	return caller, ok
}

// SignedRequestAuth authenticates callers by recovering the signer of
// keccak256(timestamp || path || body). A request a caller already sent
// within the freshness window is rejected as a replay.
type SignedRequestAuth struct {
	maxAge  time.Duration
	maxBody int64
	now     func() time.Time
	log     *slog.Logger

	mu   sync.Mutex
	seen lru.BasicLRU[common.Hash, time.Time]
}

func NewSignedRequestAuth(maxAge time.Duration, log *slog.Logger) *SignedRequestAuth {
	if maxAge <= 0 {
		maxAge = DefaultRequestMaxAge
	}
	return &SignedRequestAuth{
		maxAge:  maxAge,
		maxBody: MaxRequestBodySize,
		now:     time.Now,
		log:     log,
		seen:    lru.NewBasicLRU[common.Hash, time.Time](DefaultReplayCacheSize),
	}
}

// WithClock replaces the clock used for freshness checks.
func (a *SignedRequestAuth) WithClock(now func() time.Time) *SignedRequestAuth {
	a.now = now
	return a
}

// WithMaxBodySize overrides MaxRequestBodySize. Non-positive values are
// ignored.
func (a *SignedRequestAuth) WithMaxBodySize(n int64) *SignedRequestAuth {
	if n > 0 {
		a.maxBody = n
	}
	return a
}

// Middleware rejects unsigned, stale or replayed requests with 401 and
// oversized bodies with 413. Otherwise it stores the recovered caller in the
// request context.
func (a *SignedRequestAuth) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := a.authenticate(w, r)
		if err != nil {
			a.log.Warn("Request authentication failed", "err", err, slog.String("path", r.URL.Path))
			status := http.StatusUnauthorized
			if errors.Is(err, ErrRequestBodyTooBig) {
				status = http.StatusRequestEntityTooLarge
			}
			WriteJSON(w, status, ErrorResponse{Error: err.Error()})
			return
		}
		next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), caller)))
	})
}

func (a *SignedRequestAuth) authenticate(w http.ResponseWriter, r *http.Request) (interfaces.AccountID, error) {
	tsHeader := r.Header.Get(HeaderRequestTimestamp)
	sigHeader := r.Header.Get(HeaderCallerSignature)
	if tsHeader == "" || sigHeader == "" {
		return interfaces.AccountID{}, ErrUnauthenticated
	}

	timestamp, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return interfaces.AccountID{}, fmt.Errorf("%w: invalid timestamp", ErrUnauthenticated)
	}
	now := a.now()
	sent := time.UnixMilli(timestamp)
	if age := now.Sub(sent); age > a.maxAge || age < -a.maxAge {
		return interfaces.AccountID{}, fmt.Errorf("%w: timestamp outside of allowed window", ErrUnauthenticated)
	}

	sig, err := hex.DecodeString(strings.TrimPrefix(sigHeader, "0x"))
	if err != nil {
		return interfaces.AccountID{}, fmt.Errorf("%w: invalid signature encoding", ErrUnauthenticated)
	}

	var body []byte
	if r.Body != nil {
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBody))
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return interfaces.AccountID{}, fmt.Errorf("%w: limit is %d bytes", ErrRequestBodyTooBig, tooBig.Limit)
			}
			return interfaces.AccountID{}, fmt.Errorf("failed to read request body: %w", err)
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	caller, err := cryptoutils.RecoverCaller(sig, timestamp, r.URL.Path, body)
	if err != nil {
		return interfaces.AccountID{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	// The signature itself is malleable, so replays are keyed on what was
	// signed and by whom.
	key := crypto.Keccak256Hash(caller.Bytes(), cryptoutils.RequestDigest(timestamp, r.URL.Path, body))
	if !a.markSeen(key, sent.Add(a.maxAge), now) {
		return interfaces.AccountID{}, ErrReplayedRequest
	}
	return caller, nil
}

// markSeen records key until expiry and reports whether it was new.
func (a *SignedRequestAuth) markSeen(key common.Hash, expiry, now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if until, ok := a.seen.Peek(key); ok && !until.Before(now) {
		return false
	}
	a.seen.Add(key, expiry)
	return true
}
