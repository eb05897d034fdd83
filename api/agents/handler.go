package agents

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/tee-agent-registry/api"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

// Handler serves the agent surface (registration and signature requests,
// both signed by the agent's account) and the unsigned read surface.
type Handler struct {
	registry api.Registry
	events   api.EventLister
	auth     *api.SignedRequestAuth
	log      *slog.Logger
}

// NewHandler creates the agent handler. events may be nil, in which case
// /api/events answers 404.
func NewHandler(registry api.Registry, events api.EventLister, auth *api.SignedRequestAuth, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		events:   events,
		auth:     auth,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Post("/api/agent/register", h.HandleRegister)
		r.Post("/api/agent/sign", h.HandleSign)
	})

	r.Get("/api/agents/{account}", h.HandleGetAgent)
	r.Get("/api/agents", h.HandleListAgents)
	r.Get("/api/measurements", h.HandleListMeasurements)
	r.Get("/api/platform-ids", h.HandleListPlatformIDs)
	r.Get("/api/contract", h.HandleContractInfo)
	r.Get("/api/local-whitelist", h.HandleLocalWhitelist)
	if h.events != nil {
		r.Get("/api/events", h.HandleListEvents)
	}
}

// HandleRegister verifies the posted attestation for the signing account and
// stores the agent record.
//
// URL format: POST /api/agent/register
// Body: interfaces.Attestation
// Response: interfaces.AgentView of the new record
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		api.WriteError(w, h.log, api.ErrUnauthenticated)
		return
	}

	var attestation interfaces.Attestation
	if err := api.DecodeJSON(r, &attestation); err != nil {
		api.WriteError(w, h.log, fmt.Errorf("invalid attestation: %w", err))
		return
	}

	view, err := h.registry.Register(r.Context(), caller, attestation)
	if err != nil {
		h.log.Info("Registration rejected", "err", err, slog.String("caller", caller.String()))
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusOK, view)
}

// HandleSign runs the authorization gate for the signing account and queues a
// signature request. The outcome of the signer call is reported as a
// signature_result event.
//
// URL format: POST /api/agent/sign
// Body: api.SignRequest
// Response: 202 with api.SignResponse
func (h *Handler) HandleSign(w http.ResponseWriter, r *http.Request) {
	caller, ok := api.CallerFromContext(r.Context())
	if !ok {
		api.WriteError(w, h.log, api.ErrUnauthenticated)
		return
	}

	var req api.SignRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteError(w, h.log, fmt.Errorf("invalid sign request: %w", err))
		return
	}

	requestID, err := h.registry.RequestSignature(r.Context(), caller, req.Path, req.Payload, req.KeyType)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}

	api.WriteJSON(w, http.StatusAccepted, api.SignResponse{RequestID: requestID})
}

func (h *Handler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	account, err := interfaces.NewAccountIDFromHex(chi.URLParam(r, "account"))
	if err != nil {
		api.WriteError(w, h.log, fmt.Errorf("%w: %v", interfaces.ErrInvalidArgument, err))
		return
	}

	view, found := h.registry.GetAgent(account)
	if !found {
		api.WriteError(w, h.log, fmt.Errorf("%w: %s", interfaces.ErrNotRegistered, account))
		return
	}

	api.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := api.ParsePagination(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.registry.ListAgents(offset, limit))
}

func (h *Handler) HandleListMeasurements(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := api.ParsePagination(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.registry.ListMeasurements(offset, limit))
}

func (h *Handler) HandleListPlatformIDs(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := api.ParsePagination(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.registry.ListPlatformIDs(offset, limit))
}

func (h *Handler) HandleContractInfo(w http.ResponseWriter, r *http.Request) {
	api.WriteJSON(w, http.StatusOK, h.registry.ContractInfo())
}

func (h *Handler) HandleLocalWhitelist(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.registry.ListWhitelistedAgentsForLocal()
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, accounts)
}

func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	offset, limit, err := api.ParsePagination(r)
	if err != nil {
		api.WriteError(w, h.log, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, h.events.List(offset, limit))
}
