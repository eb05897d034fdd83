package owner

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-agent-registry/api"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

// Handler serves the owner surface. Every route requires a signed request;
// the registry rejects callers other than the current owner.
type Handler struct {
	registry api.Registry
	auth     *api.SignedRequestAuth
	log      *slog.Logger
}

func NewHandler(registry api.Registry, auth *api.SignedRequestAuth, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		auth:     auth,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/owner", func(r chi.Router) {
		r.Use(h.auth.Middleware)

		r.Post("/measurements/approve", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.MeasurementsRequest) error {
			return h.registry.ApproveMeasurements(ctx, caller, *req.Measurements)
		}))
		r.Post("/measurements/remove", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.MeasurementsRequest) error {
			return h.registry.RemoveMeasurements(ctx, caller, *req.Measurements)
		}))
		r.Post("/platform-ids/approve", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.PlatformIDsRequest) error {
			return h.registry.ApprovePlatformIDs(ctx, caller, req.PlatformIDs)
		}))
		r.Post("/platform-ids/remove", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.PlatformIDsRequest) error {
			return h.registry.RemovePlatformIDs(ctx, caller, req.PlatformIDs)
		}))
		r.Post("/agents/remove", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.AccountRequest) error {
			return h.registry.RemoveAgent(ctx, caller, *req.Account)
		}))
		r.Post("/owner", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.AccountRequest) error {
			return h.registry.UpdateOwner(ctx, caller, *req.Account)
		}))
		r.Post("/signer-endpoint", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.SignerEndpointRequest) error {
			return h.registry.UpdateSignerEndpoint(ctx, caller, req.SignerEndpoint)
		}))
		r.Post("/expiration-duration", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.ExpirationDurationRequest) error {
			return h.registry.UpdateExpirationDuration(ctx, caller, time.Duration(req.ExpirationDuration))
		}))
		r.Post("/local-whitelist/add", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.AccountRequest) error {
			return h.registry.WhitelistAgentForLocal(ctx, caller, *req.Account)
		}))
		r.Post("/local-whitelist/remove", ownerCall(h, func(ctx context.Context, caller interfaces.AccountID, req api.AccountRequest) error {
			return h.registry.RemoveAgentFromWhitelistForLocal(ctx, caller, *req.Account)
		}))
	})
}

// ownerCall decodes a T body and applies fn on behalf of the signing caller.
// Success answers 204.
func ownerCall[T any](h *Handler, fn func(ctx context.Context, caller interfaces.AccountID, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := api.CallerFromContext(r.Context())
		if !ok {
			api.WriteError(w, h.log, api.ErrUnauthenticated)
			return
		}

		var req T
		if err := api.DecodeJSON(r, &req); err != nil {
			api.WriteError(w, h.log, fmt.Errorf("invalid request body: %w", err))
			return
		}

		if err := fn(r.Context(), caller, req); err != nil {
			h.log.Info("Owner call rejected", "err", err, slog.String("path", r.URL.Path), slog.String("caller", caller.String()))
			api.WriteError(w, h.log, err)
			return
		}

		h.log.Info("Owner call applied", slog.String("path", r.URL.Path), slog.String("caller", caller.String()))
		w.WriteHeader(http.StatusNoContent)
	}
}
