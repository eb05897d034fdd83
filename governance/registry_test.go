package governance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ruteri/tee-agent-registry/events"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/signer"
	"github.com/ruteri/tee-agent-registry/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeVerifier returns fixed measurements, applying the same approval checks
// as the real verifiers.
type fakeVerifier struct {
	measurements interfaces.MeasurementBundle
	platformID   interfaces.PlatformID
	err          error
	callers      []interfaces.AccountID
}

func (v *fakeVerifier) Verify(_ context.Context, _ interfaces.Attestation, expected interfaces.ApprovalSnapshot, _ time.Time, caller interfaces.AccountID) (interfaces.MeasurementBundle, interfaces.PlatformID, error) {
	v.callers = append(v.callers, caller)
	if v.err != nil {
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, v.err
	}
	if !expected.MeasurementsApproved(v.measurements) {
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, interfaces.ErrMeasurementNotApproved
	}
	if !expected.PlatformIDApproved(v.platformID) {
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, interfaces.ErrPlatformNotApproved
	}
	return v.measurements, v.platformID, nil
}

// flakyStore fails writes while failing is set.
type flakyStore struct {
	*storage.MemoryBackend
	failing bool
}

func (s *flakyStore) Store(ctx context.Context, key string, data []byte) error {
	if s.failing {
		return interfaces.ErrBackendUnavailable
	}
	return s.MemoryBackend.Store(ctx, key, data)
}

var (
	owner    = interfaces.AccountID{0x01}
	newOwner = interfaces.AccountID{0x02}
	agentA   = interfaces.AccountID{0xa0}
	agentB   = interfaces.AccountID{0xb0}

	bundleB0 = func() interfaces.MeasurementBundle {
		var b interfaces.MeasurementBundle
		b.MRTD[0] = 0xb0
		b.AppComposeHashPayload[31] = 0x01
		return b
	}()
	bundleB1 = func() interfaces.MeasurementBundle {
		var b interfaces.MeasurementBundle
		b.MRTD[0] = 0xb1
		return b
	}()
	platformP0 = interfaces.PlatformID{0x0f}
	platformP1 = interfaces.PlatformID{0x1f}
)

type harness struct {
	registry   *Registry
	clock      *fakeClock
	verifier   *fakeVerifier
	dispatcher *signer.MockDispatcher
	recorder   *events.Recorder
	store      *flakyStore
}

func newHarness(t *testing.T, requiresAttestation bool) *harness {
	t.Helper()
	h := &harness{
		clock:      &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)},
		verifier:   &fakeVerifier{measurements: bundleB0, platformID: platformP0},
		dispatcher: new(signer.MockDispatcher),
		recorder:   events.NewRecorder(0),
		store:      &flakyStore{MemoryBackend: storage.NewMemoryBackend()},
	}

	registry, err := New(context.Background(), Config{
		Owner:               owner,
		SignerEndpoint:      "http://signer.internal",
		RequiresAttestation: requiresAttestation,
		ExpirationDuration:  time.Hour,
	}, Deps{
		Verifier:   h.verifier,
		Dispatcher: h.dispatcher,
		Store:      h.store,
		Sink:       h.recorder,
		Log:        testLogger,
		Clock:      h.clock.Now,
	})
	require.NoError(t, err)
	h.registry = registry
	return h
}

func (h *harness) approveDefaults(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, bundleB0))
	require.NoError(t, h.registry.ApprovePlatformIDs(ctx, owner, []interfaces.PlatformID{platformP0}))
}

func (h *harness) removals() []interfaces.AgentRemovedEvent {
	var out []interfaces.AgentRemovedEvent
	for _, e := range h.recorder.Named(interfaces.EventAgentRemoved) {
		out = append(out, e.Data.(interfaces.AgentRemovedEvent))
	}
	return out
}

func TestNewRequiresOwnerAndVerifier(t *testing.T) {
	ctx := context.Background()

	_, err := New(ctx, Config{RequiresAttestation: false}, Deps{Log: testLogger})
	assert.ErrorIs(t, err, interfaces.ErrInvalidArgument)

	_, err = New(ctx, Config{Owner: owner, RequiresAttestation: true}, Deps{Log: testLogger})
	assert.Error(t, err)

	r, err := New(ctx, Config{Owner: owner}, Deps{Log: testLogger})
	require.NoError(t, err)
	info := r.ContractInfo()
	assert.Equal(t, owner, info.Owner)
	assert.False(t, info.RequiresAttestation)
	assert.Equal(t, interfaces.Duration(DefaultExpirationDuration), info.ExpirationDuration)
}

func TestApproveMeasurementsIdempotent(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, bundleB0))
	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, bundleB0))

	assert.Equal(t, []interfaces.MeasurementBundle{bundleB0}, h.registry.ListMeasurements(0, 0))
}

func TestRemoveMeasurementsRoundTrip(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, bundleB1))
	before := h.registry.ListMeasurements(0, 0)

	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, bundleB0))
	require.NoError(t, h.registry.RemoveMeasurements(ctx, owner, bundleB0))
	assert.Equal(t, before, h.registry.ListMeasurements(0, 0))

	err := h.registry.RemoveMeasurements(ctx, owner, bundleB0)
	assert.ErrorIs(t, err, interfaces.ErrMeasurementsNotApproved)
	assert.Equal(t, before, h.registry.ListMeasurements(0, 0))
}

func TestRemovePlatformIDsAtomic(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	require.NoError(t, h.registry.ApprovePlatformIDs(ctx, owner, []interfaces.PlatformID{platformP0, platformP1, platformP0}))
	assert.Equal(t, []interfaces.PlatformID{platformP0, platformP1}, h.registry.ListPlatformIDs(0, 0))

	missing := interfaces.PlatformID{0xee}
	err := h.registry.RemovePlatformIDs(ctx, owner, []interfaces.PlatformID{platformP0, missing})
	assert.ErrorIs(t, err, interfaces.ErrPlatformIDNotApproved)
	assert.Equal(t, []interfaces.PlatformID{platformP0, platformP1}, h.registry.ListPlatformIDs(0, 0))

	require.NoError(t, h.registry.RemovePlatformIDs(ctx, owner, []interfaces.PlatformID{platformP0, platformP1}))
	assert.Empty(t, h.registry.ListPlatformIDs(0, 0))
}

func TestOwnerOnlyOperations(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	stranger := interfaces.AccountID{0x99}

	for name, call := range map[string]func() error{
		"approve measurements": func() error { return h.registry.ApproveMeasurements(ctx, stranger, bundleB0) },
		"remove measurements":  func() error { return h.registry.RemoveMeasurements(ctx, stranger, bundleB0) },
		"approve platform ids": func() error { return h.registry.ApprovePlatformIDs(ctx, stranger, []interfaces.PlatformID{platformP0}) },
		"remove platform ids":  func() error { return h.registry.RemovePlatformIDs(ctx, stranger, []interfaces.PlatformID{platformP0}) },
		"remove agent":         func() error { return h.registry.RemoveAgent(ctx, stranger, agentA) },
		"update owner":         func() error { return h.registry.UpdateOwner(ctx, stranger, stranger) },
		"update signer":        func() error { return h.registry.UpdateSignerEndpoint(ctx, stranger, "http://evil") },
		"update expiration":    func() error { return h.registry.UpdateExpirationDuration(ctx, stranger, time.Minute) },
		"zero owner":           func() error { return h.registry.UpdateOwner(ctx, stranger, interfaces.AccountID{}) },
		"zero expiration":      func() error { return h.registry.UpdateExpirationDuration(ctx, stranger, 0) },
		"whitelist add":        func() error { return h.registry.WhitelistAgentForLocal(ctx, stranger, agentA) },
		"whitelist remove":     func() error { return h.registry.RemoveAgentFromWhitelistForLocal(ctx, stranger, agentA) },
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), interfaces.ErrNotOwner)
		})
	}

	info := h.registry.ContractInfo()
	assert.Equal(t, owner, info.Owner)
	assert.Equal(t, "http://signer.internal", info.SignerEndpoint)
	assert.Empty(t, h.registry.ListMeasurements(0, 0))
}

func TestOwnerTransferFinality(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.registry.UpdateOwner(ctx, owner, newOwner))

	assert.ErrorIs(t, h.registry.ApproveMeasurements(ctx, owner, bundleB0), interfaces.ErrNotOwner)
	assert.NoError(t, h.registry.ApproveMeasurements(ctx, newOwner, bundleB0))
	assert.Equal(t, newOwner, h.registry.ContractInfo().Owner)

	assert.ErrorIs(t, h.registry.UpdateOwner(ctx, newOwner, interfaces.AccountID{}), interfaces.ErrInvalidArgument)
}

func TestUpdateConfiguration(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	require.NoError(t, h.registry.UpdateSignerEndpoint(ctx, owner, "srv://_signer._tcp.example.com"))
	require.NoError(t, h.registry.UpdateExpirationDuration(ctx, owner, 2*time.Hour))
	assert.ErrorIs(t, h.registry.UpdateExpirationDuration(ctx, owner, 0), interfaces.ErrInvalidArgument)

	info := h.registry.ContractInfo()
	assert.Equal(t, "srv://_signer._tcp.example.com", info.SignerEndpoint)
	assert.Equal(t, interfaces.Duration(2*time.Hour), info.ExpirationDuration)

	h.approveDefaults(t)
	view, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)
	assert.Equal(t, h.clock.now.Add(2*time.Hour), view.ValidUntil)
}

func TestPaginationStability(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	var all []interfaces.MeasurementBundle
	for i := 0; i < 7; i++ {
		var b interfaces.MeasurementBundle
		b.RTMR0[0] = byte(i)
		all = append(all, b)
		require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, b))
	}

	for n := 0; n <= 7; n++ {
		for m := 1; m <= 8; m++ {
			joined := append(h.registry.ListMeasurements(0, n), h.registry.ListMeasurements(n, m)...)
			if n == 0 {
				// A zero limit means "everything", so only the second page counts.
				joined = h.registry.ListMeasurements(0, m)
			}
			assert.Equal(t, h.registry.ListMeasurements(0, n+m), joined, "n=%d m=%d", n, m)
		}
	}
	assert.Equal(t, all, h.registry.ListMeasurements(0, 0))
	assert.Empty(t, h.registry.ListMeasurements(7, 3))
}

func TestRegisterAndGetAgent(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)

	view, err := h.registry.Register(ctx, agentA, interfaces.Attestation{Quote: interfaces.HexBytes{0x01}})
	require.NoError(t, err)
	assert.True(t, view.IsValid)
	assert.Equal(t, bundleB0.Hex(), view.Measurements)
	assert.Equal(t, []interfaces.AccountID{agentA}, h.verifier.callers)

	got, ok := h.registry.GetAgent(agentA)
	require.True(t, ok)
	assert.Equal(t, view, got)

	_, ok = h.registry.GetAgent(agentB)
	assert.False(t, ok)

	registered := h.recorder.Named(interfaces.EventAgentRegistered)
	require.Len(t, registered, 1)
	assert.Equal(t, agentA, registered[0].Data.(interfaces.AgentRegisteredEvent).Account)
}

func TestReRegistrationRefreshes(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)

	first, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)
	h.clock.Advance(30 * time.Minute)
	second, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	assert.Equal(t, first.ValidUntil.Add(30*time.Minute), second.ValidUntil)
	assert.Len(t, h.registry.ListAgents(0, 0), 1)
}

func TestRegisterVerificationFailure(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	// Nothing approved yet.
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	assert.ErrorIs(t, err, interfaces.ErrMeasurementNotApproved)

	h.verifier.err = interfaces.ErrIdentityMismatch
	h.approveDefaults(t)
	_, err = h.registry.Register(ctx, agentA, interfaces.Attestation{})
	assert.ErrorIs(t, err, interfaces.ErrIdentityMismatch)

	_, ok := h.registry.GetAgent(agentA)
	assert.False(t, ok)
	assert.Empty(t, h.recorder.Named(interfaces.EventAgentRegistered))
}

func TestRequestSignatureAuthorized(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	h.dispatcher.On("Dispatch", mock.Anything, interfaces.SignatureRequest{
		Endpoint: "http://signer.internal",
		Caller:   agentA,
		Path:     "m/44'/60'",
		Payload:  "c0ffee",
		Domain:   1,
	}).Return("req-1", nil).Once()

	requestID, err := h.registry.RequestSignature(ctx, agentA, "m/44'/60'", "c0ffee", "Eddsa")
	require.NoError(t, err)
	assert.Equal(t, "req-1", requestID)
	h.dispatcher.AssertExpectations(t)
}

func TestRequestSignatureInvalidKeyTypeTouchesNothing(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	// Even an expired agent is not revoked by a malformed request.
	h.clock.Advance(2 * time.Hour)
	_, err = h.registry.RequestSignature(ctx, agentA, "p", "x", "Rsa")
	assert.ErrorIs(t, err, interfaces.ErrInvalidKeyType)

	_, ok := h.registry.GetAgent(agentA)
	assert.True(t, ok)
	assert.Empty(t, h.removals())
	h.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestRequestSignatureSignerFailureSurfaces(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	h.dispatcher.On("Dispatch", mock.Anything, mock.Anything).Return("", interfaces.ErrSignerUnavailable)
	_, err = h.registry.RequestSignature(ctx, agentA, "p", "x", "Ecdsa")
	assert.ErrorIs(t, err, interfaces.ErrSignerUnavailable)
	assert.False(t, errors.Is(err, interfaces.ErrAgentRemoved))

	_, ok := h.registry.GetAgent(agentA)
	assert.True(t, ok)
}

func TestRevocationIsSelfHealingAndSticky(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	require.NoError(t, h.registry.RemoveMeasurements(ctx, owner, bundleB0))

	// The record is left dangling until the next privileged call.
	view, ok := h.registry.GetAgent(agentA)
	require.True(t, ok)
	assert.False(t, view.MeasurementsApproved)
	assert.False(t, view.IsValid)

	_, err = h.registry.RequestSignature(ctx, agentA, "p", "x", "Ecdsa")
	require.ErrorIs(t, err, interfaces.ErrAgentRemoved)
	reasons, ok := IsRemoval(err)
	require.True(t, ok)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonInvalidMeasurements}, reasons)

	_, ok = h.registry.GetAgent(agentA)
	assert.False(t, ok)

	_, err = h.registry.RequestSignature(ctx, agentA, "p", "x", "Ecdsa")
	assert.ErrorIs(t, err, interfaces.ErrNotRegistered)
	assert.ErrorIs(t, h.registry.Authorize(ctx, agentA), interfaces.ErrNotRegistered)

	removals := h.removals()
	require.Len(t, removals, 1)
	assert.Equal(t, agentA, removals[0].Account)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonInvalidMeasurements}, removals[0].Reasons)
	h.dispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestMultiReasonReporting(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	require.NoError(t, h.registry.RemoveMeasurements(ctx, owner, bundleB0))
	require.NoError(t, h.registry.RemovePlatformIDs(ctx, owner, []interfaces.PlatformID{platformP0}))
	h.clock.Advance(time.Hour + time.Second)

	err = h.registry.Authorize(ctx, agentA)
	reasons, ok := IsRemoval(err)
	require.True(t, ok)
	assert.ElementsMatch(t, []interfaces.RemovalReason{
		interfaces.ReasonExpiredAttestation,
		interfaces.ReasonInvalidMeasurements,
		interfaces.ReasonInvalidPlatformID,
	}, reasons)

	removals := h.removals()
	require.Len(t, removals, 1)
	assert.ElementsMatch(t, reasons, removals[0].Reasons)
}

func TestExpiryBoundary(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	h.clock.Advance(time.Hour)
	view, _ := h.registry.GetAgent(agentA)
	assert.True(t, view.NotExpired)
	assert.NoError(t, h.registry.Authorize(ctx, agentA))

	h.clock.Advance(time.Nanosecond)
	view, _ = h.registry.GetAgent(agentA)
	assert.False(t, view.NotExpired)
}

func TestConcreteExpiryScenario(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)

	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)
	view, ok := h.registry.GetAgent(agentA)
	require.True(t, ok)
	assert.True(t, view.IsValid)

	h.clock.Advance(2 * time.Hour)
	view, ok = h.registry.GetAgent(agentA)
	require.True(t, ok)
	assert.False(t, view.IsValid)

	_, err = h.registry.RequestSignature(ctx, agentA, "p", "x", "Ecdsa")
	assert.ErrorIs(t, err, interfaces.ErrAgentRemoved)

	_, ok = h.registry.GetAgent(agentA)
	assert.False(t, ok)

	removals := h.removals()
	require.Len(t, removals, 1)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonExpiredAttestation}, removals[0].Reasons)
}

func TestRemoveAgent(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)

	assert.ErrorIs(t, h.registry.RemoveAgent(ctx, owner, agentA), interfaces.ErrNotRegistered)

	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)
	require.NoError(t, h.registry.RemoveAgent(ctx, owner, agentA))

	_, ok := h.registry.GetAgent(agentA)
	assert.False(t, ok)
	removals := h.removals()
	require.Len(t, removals, 1)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonManualRemoval}, removals[0].Reasons)
}

func TestLocalModeSentinelGate(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	sentinel := []interfaces.PlatformID{interfaces.SentinelPlatformID}

	// Not whitelisted.
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	assert.ErrorIs(t, err, interfaces.ErrNotWhitelisted)

	require.NoError(t, h.registry.WhitelistAgentForLocal(ctx, owner, agentA))

	// Whitelisted but sentinels not approved.
	_, err = h.registry.Register(ctx, agentA, interfaces.Attestation{})
	assert.ErrorIs(t, err, interfaces.ErrMeasurementNotApproved)

	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, interfaces.SentinelMeasurements))
	_, err = h.registry.Register(ctx, agentA, interfaces.Attestation{})
	assert.ErrorIs(t, err, interfaces.ErrPlatformNotApproved)

	require.NoError(t, h.registry.ApprovePlatformIDs(ctx, owner, sentinel))
	view, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)
	assert.True(t, view.IsValid)
	assert.Equal(t, interfaces.SentinelMeasurements.Hex(), view.Measurements)

	// The TDX verifier is never consulted in local mode.
	assert.Empty(t, h.verifier.callers)

	require.NoError(t, h.registry.RemoveMeasurements(ctx, owner, interfaces.SentinelMeasurements))
	_, err = h.registry.Register(ctx, agentA, interfaces.Attestation{})
	assert.ErrorIs(t, err, interfaces.ErrMeasurementNotApproved)
	assert.True(t, interfaces.IsVerificationError(err))
}

func TestLocalWhitelistRevocation(t *testing.T) {
	h := newHarness(t, false)
	ctx := context.Background()
	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, interfaces.SentinelMeasurements))
	require.NoError(t, h.registry.ApprovePlatformIDs(ctx, owner, []interfaces.PlatformID{interfaces.SentinelPlatformID}))
	require.NoError(t, h.registry.WhitelistAgentForLocal(ctx, owner, agentA))
	require.NoError(t, h.registry.WhitelistAgentForLocal(ctx, owner, agentA))

	list, err := h.registry.ListWhitelistedAgentsForLocal()
	require.NoError(t, err)
	assert.Equal(t, []interfaces.AccountID{agentA}, list)

	_, err = h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	require.NoError(t, h.registry.RemoveAgentFromWhitelistForLocal(ctx, owner, agentA))
	assert.ErrorIs(t, h.registry.RemoveAgentFromWhitelistForLocal(ctx, owner, agentA), interfaces.ErrNotInLocalWhitelist)

	reasons, ok := IsRemoval(h.registry.Authorize(ctx, agentA))
	require.True(t, ok)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonNotWhitelistedForLocal}, reasons)
}

func TestWhitelistRejectedInAttestedMode(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()

	assert.ErrorIs(t, h.registry.WhitelistAgentForLocal(ctx, owner, agentA), interfaces.ErrLocalModeOnly)
	assert.ErrorIs(t, h.registry.RemoveAgentFromWhitelistForLocal(ctx, owner, agentA), interfaces.ErrLocalModeOnly)
	_, err := h.registry.ListWhitelistedAgentsForLocal()
	assert.ErrorIs(t, err, interfaces.ErrLocalModeOnly)
}

func TestListAgentsOrder(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)

	for _, a := range []interfaces.AccountID{agentB, agentA} {
		_, err := h.registry.Register(ctx, a, interfaces.Attestation{})
		require.NoError(t, err)
	}

	views := h.registry.ListAgents(0, 0)
	require.Len(t, views, 2)
	assert.Equal(t, agentB, views[0].Account)
	assert.Equal(t, agentA, views[1].Account)

	page := h.registry.ListAgents(1, 5)
	require.Len(t, page, 1)
	assert.Equal(t, agentA, page[0].Account)
}

func TestStateSurvivesReload(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	require.NoError(t, h.registry.ApproveMeasurements(ctx, owner, bundleB1))
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)
	require.NoError(t, h.registry.UpdateOwner(ctx, owner, newOwner))

	reloaded, err := New(ctx, Config{Owner: owner, RequiresAttestation: true}, Deps{
		Verifier: h.verifier,
		Store:    h.store,
		Log:      testLogger,
		Clock:    h.clock.Now,
	})
	require.NoError(t, err)

	assert.Equal(t, newOwner, reloaded.ContractInfo().Owner)
	assert.Equal(t, time.Hour, time.Duration(reloaded.ContractInfo().ExpirationDuration))
	assert.Equal(t, []interfaces.MeasurementBundle{bundleB0, bundleB1}, reloaded.ListMeasurements(0, 0))
	assert.Equal(t, []interfaces.PlatformID{platformP0}, reloaded.ListPlatformIDs(0, 0))

	original, _ := h.registry.GetAgent(agentA)
	restored, ok := reloaded.GetAgent(agentA)
	require.True(t, ok)
	assert.Equal(t, original, restored)
}

func TestFailedPersistLeavesStateUnchanged(t *testing.T) {
	h := newHarness(t, true)
	ctx := context.Background()
	h.approveDefaults(t)
	_, err := h.registry.Register(ctx, agentA, interfaces.Attestation{})
	require.NoError(t, err)

	h.store.failing = true

	assert.ErrorIs(t, h.registry.ApproveMeasurements(ctx, owner, bundleB1), interfaces.ErrBackendUnavailable)
	assert.Equal(t, []interfaces.MeasurementBundle{bundleB0}, h.registry.ListMeasurements(0, 0))

	assert.ErrorIs(t, h.registry.UpdateOwner(ctx, owner, newOwner), interfaces.ErrBackendUnavailable)
	assert.Equal(t, owner, h.registry.ContractInfo().Owner)

	// A revocation that cannot be persisted still denies the call.
	h.clock.Advance(2 * time.Hour)
	err = h.registry.Authorize(ctx, agentA)
	assert.ErrorIs(t, err, interfaces.ErrBackendUnavailable)
	_, ok := h.registry.GetAgent(agentA)
	assert.True(t, ok)
	assert.Empty(t, h.removals())

	h.store.failing = false
	reasons, ok := IsRemoval(h.registry.Authorize(ctx, agentA))
	require.True(t, ok)
	assert.Equal(t, []interfaces.RemovalReason{interfaces.ReasonExpiredAttestation}, reasons)
}
