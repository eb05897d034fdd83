package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/signer"
)

// Register verifies att for caller against the current approvals and stores
// (or refreshes) caller's agent record. In local mode caller must be on the
// local whitelist.
func (r *Registry) Register(ctx context.Context, caller interfaces.AccountID, att interfaces.Attestation) (interfaces.AgentView, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	verifier := r.verifier
	if !r.state.requiresAttestation {
		if !r.state.whitelist.contains(caller) {
			r.countRegistration("not_whitelisted")
			return interfaces.AgentView{}, interfaces.ErrNotWhitelisted
		}
		verifier = r.localVerifier
	}

	now := r.now()
	measurements, platformID, err := verifier.Verify(ctx, att, r.state.approvals(), now, caller)
	if err != nil {
		r.countRegistration("verification_failed")
		r.log.Warn("Agent attestation rejected",
			slog.String("account", caller.String()),
			"err", err)
		return interfaces.AgentView{}, err
	}

	record := interfaces.AgentRecord{
		Measurements: measurements,
		PlatformID:   platformID,
		ValidUntil:   now.Add(r.state.expirationDuration).UTC(),
	}
	if err := r.update(ctx, func(s *state) error {
		s.putAgent(caller, record)
		return nil
	}); err != nil {
		return interfaces.AgentView{}, err
	}

	r.countRegistration("ok")
	r.log.Info("Agent registered",
		slog.String("account", caller.String()),
		slog.String("platform_id", platformID.String()),
		slog.Time("valid_until", record.ValidUntil))
	r.emit(ctx, interfaces.EventAgentRegistered, interfaces.AgentRegisteredEvent{
		Account:      caller,
		Measurements: measurements,
		PlatformID:   platformID,
		ValidUntil:   record.ValidUntil,
	})
	return r.state.view(caller, record, now), nil
}

// RemoveAgent deletes account's record on the owner's request.
func (r *Registry) RemoveAgent(ctx context.Context, caller, account interfaces.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if _, ok := r.state.agents[account]; !ok {
		return interfaces.ErrNotRegistered
	}

	reasons := []interfaces.RemovalReason{interfaces.ReasonManualRemoval}
	if err := r.update(ctx, func(s *state) error {
		s.deleteAgent(account)
		return nil
	}); err != nil {
		return err
	}
	r.log.Info("Agent removed by owner", slog.String("account", account.String()))
	r.emit(ctx, interfaces.EventAgentRemoved, interfaces.AgentRemovedEvent{Account: account, Reasons: reasons})
	return nil
}

// Authorize re-checks account's record as of now. If any validity condition
// fails the record is deleted, an agent_removed event lists every failing
// condition, and an *interfaces.AgentRemovedError is returned.
//
// If the deletion cannot be persisted the call is still denied, but the
// record is kept and no event is emitted; the next call evaluates it again.
func (r *Registry) Authorize(ctx context.Context, account interfaces.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.authorize(ctx, account)
}

func (r *Registry) authorize(ctx context.Context, account interfaces.AccountID) error {
	record, ok := r.state.agents[account]
	if !ok {
		r.countGate("not_registered")
		return interfaces.ErrNotRegistered
	}

	reasons := r.state.removalReasons(account, record, r.now())
	if len(reasons) == 0 {
		r.countGate("allowed")
		return nil
	}

	if err := r.update(ctx, func(s *state) error {
		s.deleteAgent(account)
		return nil
	}); err != nil {
		// The request is still denied; the record goes on the next attempt.
		return fmt.Errorf("failed to revoke agent %s: %w", account, err)
	}

	r.countGate("revoked")
	r.log.Warn("Agent revoked",
		slog.String("account", account.String()),
		slog.Any("reasons", reasons))
	r.emit(ctx, interfaces.EventAgentRemoved, interfaces.AgentRemovedEvent{Account: account, Reasons: reasons})
	return &interfaces.AgentRemovedError{Account: account, Reasons: reasons}
}

// RequestSignature authorizes caller and hands the request to the
// dispatcher. It returns the request id as soon as the request is queued;
// the signer's answer arrives later as a signature_result event.
func (r *Registry) RequestSignature(ctx context.Context, caller interfaces.AccountID, path, payload, keyType string) (string, error) {
	kt, err := interfaces.ParseKeyType(keyType)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.authorize(ctx, caller); err != nil {
		return "", err
	}
	if r.dispatcher == nil {
		return "", fmt.Errorf("%w: no dispatcher configured", interfaces.ErrSignerUnavailable)
	}

	req, err := signer.NewRequest(r.state.signerEndpoint, caller, path, payload, kt)
	if err != nil {
		return "", err
	}
	requestID, err := r.dispatcher.Dispatch(ctx, req)
	if err != nil {
		return "", err
	}

	r.log.Info("Signature requested",
		slog.String("account", caller.String()),
		slog.String("request_id", requestID),
		slog.String("key_type", string(kt)),
		slog.String("path", path))
	return requestID, nil
}

// GetAgent returns account's view without mutating anything.
func (r *Registry) GetAgent(account interfaces.AccountID) (interfaces.AgentView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.state.agents[account]
	if !ok {
		return interfaces.AgentView{}, false
	}
	return r.state.view(account, record, r.now()), true
}

// ListAgents pages through registered agents in registration order.
func (r *Registry) ListAgents(offset, limit int) []interfaces.AgentView {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	accounts := r.state.agentOrder.page(offset, limit)
	views := make([]interfaces.AgentView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, r.state.view(account, r.state.agents[account], now))
	}
	return views
}

func (r *Registry) countRegistration(outcome string) {
	if r.metrics != nil {
		r.metrics.Registrations.WithLabelValues(outcome).Inc()
	}
}

func (r *Registry) countGate(outcome string) {
	if r.metrics != nil {
		r.metrics.GateDecisions.WithLabelValues(outcome).Inc()
	}
}

// IsRemoval reports whether err is a gate revocation and returns its reasons.
func IsRemoval(err error) ([]interfaces.RemovalReason, bool) {
	var removed *interfaces.AgentRemovedError
	if errors.As(err, &removed) {
		return removed.Reasons, true
	}
	return nil, false
}
