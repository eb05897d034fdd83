package governance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ruteri/tee-agent-registry/interfaces"
)

// ApproveMeasurements adds bundle to the approved measurements. Approving an
// already approved bundle is a no-op.
func (r *Registry) ApproveMeasurements(ctx context.Context, caller interfaces.AccountID, bundle interfaces.MeasurementBundle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if r.state.measurements.contains(bundle) {
		return nil
	}

	if err := r.update(ctx, func(s *state) error {
		s.measurements.add(bundle)
		return nil
	}); err != nil {
		return err
	}
	r.log.Info("Measurements approved", slog.String("mrtd", bundle.Hex().MRTD))
	return nil
}

// RemoveMeasurements removes bundle from the approved measurements. Agents
// registered with it are not touched until their next gate check.
func (r *Registry) RemoveMeasurements(ctx context.Context, caller interfaces.AccountID, bundle interfaces.MeasurementBundle) error {
	err := r.ownerUpdate(ctx, caller, func(s *state) error {
		if !s.measurements.remove(bundle) {
			return interfaces.ErrMeasurementsNotApproved
		}
		return nil
	})
	if err == nil {
		r.log.Info("Measurements removed", slog.String("mrtd", bundle.Hex().MRTD))
	}
	return err
}

// ApprovePlatformIDs adds every id to the approved platform ids.
func (r *Registry) ApprovePlatformIDs(ctx context.Context, caller interfaces.AccountID, ids []interfaces.PlatformID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}

	added := 0
	next := r.state.clone()
	for _, id := range ids {
		if next.platformIDs.add(id) {
			added++
		}
	}
	if added == 0 {
		return nil
	}
	if err := r.persist(ctx, next); err != nil {
		return err
	}
	r.state = next
	r.log.Info("Platform ids approved", slog.Int("added", added))
	return nil
}

// RemovePlatformIDs removes every id from the approved platform ids. If any
// of them is not approved nothing is removed.
func (r *Registry) RemovePlatformIDs(ctx context.Context, caller interfaces.AccountID, ids []interfaces.PlatformID) error {
	err := r.ownerUpdate(ctx, caller, func(s *state) error {
		for _, id := range ids {
			if !s.platformIDs.remove(id) {
				return fmt.Errorf("%w: %s", interfaces.ErrPlatformIDNotApproved, id)
			}
		}
		return nil
	})
	if err == nil {
		r.log.Info("Platform ids removed", slog.Int("removed", len(ids)))
	}
	return err
}

// ListMeasurements pages through the approved measurements in insertion
// order. A non-positive limit returns everything after offset.
func (r *Registry) ListMeasurements(offset, limit int) []interfaces.MeasurementBundle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.measurements.page(offset, limit)
}

// ListPlatformIDs pages through the approved platform ids.
func (r *Registry) ListPlatformIDs(offset, limit int) []interfaces.PlatformID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.platformIDs.page(offset, limit)
}

// WhitelistAgentForLocal allows account to register in local mode.
func (r *Registry) WhitelistAgentForLocal(ctx context.Context, caller, account interfaces.AccountID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	if r.state.requiresAttestation {
		return interfaces.ErrLocalModeOnly
	}
	if r.state.whitelist.contains(account) {
		return nil
	}

	if err := r.update(ctx, func(s *state) error {
		s.whitelist.add(account)
		return nil
	}); err != nil {
		return err
	}
	r.log.Info("Agent whitelisted for local", slog.String("account", account.String()))
	return nil
}

// RemoveAgentFromWhitelistForLocal revokes account's local whitelisting. A
// registered record is left in place and revoked by the gate on next use.
func (r *Registry) RemoveAgentFromWhitelistForLocal(ctx context.Context, caller, account interfaces.AccountID) error {
	err := r.ownerUpdate(ctx, caller, func(s *state) error {
		if s.requiresAttestation {
			return interfaces.ErrLocalModeOnly
		}
		if !s.whitelist.remove(account) {
			return interfaces.ErrNotInLocalWhitelist
		}
		return nil
	})
	if err == nil {
		r.log.Info("Agent removed from local whitelist", slog.String("account", account.String()))
	}
	return err
}

// ListWhitelistedAgentsForLocal returns the local whitelist.
func (r *Registry) ListWhitelistedAgentsForLocal() ([]interfaces.AccountID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.requiresAttestation {
		return nil, interfaces.ErrLocalModeOnly
	}
	return r.state.whitelist.page(0, 0), nil
}
