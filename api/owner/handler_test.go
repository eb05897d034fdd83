package owner

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-agent-registry/api"
	"github.com/ruteri/tee-agent-registry/cryptoutils"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	testAccountHex  = "0x00000000000000000000000000000000000000cc"
	testPlatformHex = "0102030405060708090a0b0c0d0e0f10"
)

func setupHandler(t *testing.T) (*api.MockRegistry, http.Handler) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := new(api.MockRegistry)

	router := chi.NewRouter()
	NewHandler(registry, api.NewSignedRequestAuth(time.Minute, logger), logger).RegisterRoutes(router)
	return registry, router
}

func signed(t *testing.T, key *ecdsa.PrivateKey, path, body string) *http.Request {
	ts := time.Now().UnixMilli()
	sig, err := cryptoutils.SignRequest(key, ts, path, []byte(body))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set(api.HeaderRequestTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(api.HeaderCallerSignature, hex.EncodeToString(sig))
	return req
}

func zeroBundleJSON() string {
	zero48 := strings.Repeat("00", 48)
	zero32 := strings.Repeat("00", 32)
	return fmt.Sprintf(`{"measurements":{"mrtd":"%s","rtmr0":"%s","rtmr1":"%s","rtmr2":"%s","key_provider_event_digest":"%s","app_compose_hash_payload":"%s"}}`,
		zero48, zero48, zero48, zero48, zero48, zero32)
}

func TestOwnerRoutes(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := cryptoutils.AccountFromKey(key)

	account, err := interfaces.NewAccountIDFromHex(testAccountHex)
	require.NoError(t, err)
	platformID, err := interfaces.NewPlatformIDFromHex(testPlatformHex)
	require.NoError(t, err)

	accountBody := fmt.Sprintf(`{"account":"%s"}`, testAccountHex)
	platformBody := fmt.Sprintf(`{"platform_ids":["%s"]}`, testPlatformHex)

	tests := []struct {
		path   string
		body   string
		method string
		args   []any
	}{
		{"/api/owner/measurements/approve", zeroBundleJSON(), "ApproveMeasurements", []any{interfaces.MeasurementBundle{}}},
		{"/api/owner/measurements/remove", zeroBundleJSON(), "RemoveMeasurements", []any{interfaces.MeasurementBundle{}}},
		{"/api/owner/platform-ids/approve", platformBody, "ApprovePlatformIDs", []any{[]interfaces.PlatformID{platformID}}},
		{"/api/owner/platform-ids/remove", platformBody, "RemovePlatformIDs", []any{[]interfaces.PlatformID{platformID}}},
		{"/api/owner/agents/remove", accountBody, "RemoveAgent", []any{account}},
		{"/api/owner/owner", accountBody, "UpdateOwner", []any{account}},
		{"/api/owner/signer-endpoint", `{"signer_endpoint":"srv://_signer._tcp.example"}`, "UpdateSignerEndpoint", []any{"srv://_signer._tcp.example"}},
		{"/api/owner/expiration-duration", `{"expiration_duration":"24h"}`, "UpdateExpirationDuration", []any{24 * time.Hour}},
		{"/api/owner/local-whitelist/add", accountBody, "WhitelistAgentForLocal", []any{account}},
		{"/api/owner/local-whitelist/remove", accountBody, "RemoveAgentFromWhitelistForLocal", []any{account}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			registry, router := setupHandler(t)
			registry.On(tt.method, append([]any{mock.Anything, caller}, tt.args...)...).Return(nil).Once()

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, signed(t, key, tt.path, tt.body))

			assert.Equal(t, http.StatusNoContent, rr.Code, rr.Body.String())
			registry.AssertExpectations(t)
		})
	}
}

func TestOwnerRoutes_Errors(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	caller := cryptoutils.AccountFromKey(key)
	account, err := interfaces.NewAccountIDFromHex(testAccountHex)
	require.NoError(t, err)

	t.Run("not owner", func(t *testing.T) {
		registry, router := setupHandler(t)
		registry.On("RemoveAgent", mock.Anything, caller, account).Return(interfaces.ErrNotOwner).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signed(t, key, "/api/owner/agents/remove", fmt.Sprintf(`{"account":"%s"}`, testAccountHex)))
		assert.Equal(t, http.StatusForbidden, rr.Code)
	})

	t.Run("removing unapproved measurements", func(t *testing.T) {
		registry, router := setupHandler(t)
		registry.On("RemoveMeasurements", mock.Anything, caller, interfaces.MeasurementBundle{}).Return(interfaces.ErrMeasurementsNotApproved).Once()

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signed(t, key, "/api/owner/measurements/remove", zeroBundleJSON()))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("short measurement field", func(t *testing.T) {
		registry, router := setupHandler(t)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signed(t, key, "/api/owner/measurements/approve", `{"measurements":{"mrtd":"00"}}`))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		registry.AssertNotCalled(t, "ApproveMeasurements", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("empty body does not approve the zero bundle", func(t *testing.T) {
		for _, path := range []string{
			"/api/owner/measurements/approve",
			"/api/owner/platform-ids/approve",
			"/api/owner/owner",
			"/api/owner/local-whitelist/add",
		} {
			registry, router := setupHandler(t)

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, signed(t, key, path, `{}`))
			assert.Equal(t, http.StatusBadRequest, rr.Code, path)
			assert.Empty(t, registry.Calls, path)
		}
	})

	t.Run("bad duration", func(t *testing.T) {
		registry, router := setupHandler(t)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, signed(t, key, "/api/owner/expiration-duration", `{"expiration_duration":"soon"}`))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		registry.AssertNotCalled(t, "UpdateExpirationDuration", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("unsigned", func(t *testing.T) {
		_, router := setupHandler(t)

		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/owner/owner", bytes.NewReader([]byte("{}"))))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
