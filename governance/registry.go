package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ruteri/tee-agent-registry/attestation"
	"github.com/ruteri/tee-agent-registry/events"
	"github.com/ruteri/tee-agent-registry/interfaces"
	"github.com/ruteri/tee-agent-registry/metrics"
)

// DefaultExpirationDuration is how long a registration stays valid unless
// the owner configures otherwise.
const DefaultExpirationDuration = 7 * 24 * time.Hour

// Config is the initial registry configuration, used when no persisted state
// exists.
type Config struct {
	Owner               interfaces.AccountID
	SignerEndpoint      string
	RequiresAttestation bool
	ExpirationDuration  time.Duration
}

// Deps are the registry's collaborators. Only Verifier (in attested mode) is
// required; the rest fall back to no-op or in-process defaults.
type Deps struct {
	Verifier   interfaces.AttestationVerifier
	Dispatcher interfaces.SignatureDispatcher
	Store      interfaces.StorageBackend
	Sink       interfaces.EventSink
	Metrics    *metrics.Metrics
	Log        *slog.Logger
	Clock      func() time.Time
}

// Registry is the agent admission-control engine: approval sets, agent
// records, the authorization gate and signature dispatch.
//
// Calls are serialized. Every mutation is applied to a copy of the state,
// persisted, and only then made visible; a failed write leaves the registry
// unchanged.
type Registry struct {
	mu    sync.Mutex
	state *state

	verifier      interfaces.AttestationVerifier
	localVerifier interfaces.AttestationVerifier
	dispatcher    interfaces.SignatureDispatcher
	store         interfaces.StorageBackend
	sink          interfaces.EventSink
	metrics       *metrics.Metrics
	log           *slog.Logger
	now           func() time.Time
}

// New creates a registry. If deps.Store holds a persisted state it is
// loaded and cfg is ignored; otherwise a fresh state is built from cfg and
// persisted.
func New(ctx context.Context, cfg Config, deps Deps) (*Registry, error) {
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Sink == nil {
		deps.Sink = events.Discard{}
	}
	if cfg.ExpirationDuration == 0 {
		cfg.ExpirationDuration = DefaultExpirationDuration
	}
	if cfg.ExpirationDuration < 0 {
		return nil, fmt.Errorf("%w: expiration duration must be positive", interfaces.ErrInvalidArgument)
	}

	r := &Registry{
		verifier:      deps.Verifier,
		localVerifier: attestation.NewLocalVerifier(deps.Log),
		dispatcher:    deps.Dispatcher,
		store:         deps.Store,
		sink:          deps.Sink,
		metrics:       deps.Metrics,
		log:           deps.Log,
		now:           deps.Clock,
	}

	loaded, err := r.load(ctx)
	if err != nil {
		return nil, err
	}
	if loaded != nil {
		r.state = loaded
		r.log.Info("Loaded registry state",
			slog.String("owner", loaded.owner.String()),
			slog.Bool("requires_attestation", loaded.requiresAttestation),
			slog.Int("agents", loaded.agentOrder.len()),
			slog.Int("approved_measurements", loaded.measurements.len()),
			slog.Int("approved_platform_ids", loaded.platformIDs.len()))
	} else {
		if cfg.Owner.IsZero() {
			return nil, fmt.Errorf("%w: owner is required", interfaces.ErrInvalidArgument)
		}
		initial := newState(cfg)
		if err := r.persist(ctx, initial); err != nil {
			return nil, err
		}
		r.state = initial
		r.log.Info("Initialized registry state",
			slog.String("owner", cfg.Owner.String()),
			slog.Bool("requires_attestation", cfg.RequiresAttestation),
			slog.Duration("expiration_duration", cfg.ExpirationDuration))
	}

	if r.state.requiresAttestation && r.verifier == nil {
		return nil, errors.New("attestation verifier is required when attestation is enabled")
	}
	return r, nil
}

func (r *Registry) load(ctx context.Context) (*state, error) {
	if r.store == nil {
		return nil, nil
	}
	data, err := r.store.Fetch(ctx, interfaces.StateKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load registry state from %s: %w", r.store.Name(), err)
	}
	return unmarshalState(data)
}

func (r *Registry) persist(ctx context.Context, s *state) error {
	if r.store == nil {
		return nil
	}
	data, err := s.marshal()
	if err != nil {
		return fmt.Errorf("failed to encode registry state: %w", err)
	}
	if err := r.store.Store(ctx, interfaces.StateKey, data); err != nil {
		r.log.Error("Failed to persist registry state", "err", err, slog.String("backend", r.store.Name()))
		return fmt.Errorf("failed to persist registry state: %w", err)
	}
	return nil
}

// update applies fn to a copy of the state, persists it and swaps it in.
// Callers must hold r.mu.
func (r *Registry) update(ctx context.Context, fn func(s *state) error) error {
	next := r.state.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := r.persist(ctx, next); err != nil {
		return err
	}
	r.state = next
	return nil
}

func (r *Registry) emit(ctx context.Context, name string, data any) {
	r.sink.Emit(ctx, interfaces.Event{Name: name, Time: r.now().UTC(), Data: data})
}

func (r *Registry) requireOwner(caller interfaces.AccountID) error {
	if caller != r.state.owner {
		return interfaces.ErrNotOwner
	}
	return nil
}

// ownerUpdate runs an owner-only mutation.
func (r *Registry) ownerUpdate(ctx context.Context, caller interfaces.AccountID, fn func(s *state) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.requireOwner(caller); err != nil {
		return err
	}
	return r.update(ctx, fn)
}

// UpdateOwner transfers ownership to newOwner.
func (r *Registry) UpdateOwner(ctx context.Context, caller, newOwner interfaces.AccountID) error {
	err := r.ownerUpdate(ctx, caller, func(s *state) error {
		if newOwner.IsZero() {
			return fmt.Errorf("%w: owner must not be the zero account", interfaces.ErrInvalidArgument)
		}
		s.owner = newOwner
		return nil
	})
	if err == nil {
		r.log.Info("Owner updated", slog.String("previous", caller.String()), slog.String("owner", newOwner.String()))
	}
	return err
}

// UpdateSignerEndpoint changes where authorized signature requests are sent.
func (r *Registry) UpdateSignerEndpoint(ctx context.Context, caller interfaces.AccountID, endpoint string) error {
	err := r.ownerUpdate(ctx, caller, func(s *state) error {
		s.signerEndpoint = endpoint
		return nil
	})
	if err == nil {
		r.log.Info("Signer endpoint updated", slog.String("endpoint", endpoint))
	}
	return err
}

// UpdateExpirationDuration changes the validity window granted to future
// registrations. Existing records keep their valid_until.
func (r *Registry) UpdateExpirationDuration(ctx context.Context, caller interfaces.AccountID, d time.Duration) error {
	err := r.ownerUpdate(ctx, caller, func(s *state) error {
		if d <= 0 {
			return fmt.Errorf("%w: expiration duration must be positive", interfaces.ErrInvalidArgument)
		}
		s.expirationDuration = d
		return nil
	})
	if err == nil {
		r.log.Info("Expiration duration updated", slog.Duration("expiration_duration", d))
	}
	return err
}

// ContractInfo returns the registry configuration.
func (r *Registry) ContractInfo() interfaces.ContractInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.info()
}
