package api

import (
	"context"
	"errors"
	"time"

	"github.com/ruteri/tee-agent-registry/interfaces"
)

// Headers carrying the caller's request signature.
const (
	HeaderRequestTimestamp = "X-Request-Timestamp"
	HeaderCallerSignature  = "X-Caller-Signature"
)

// Registry is the registry surface served over HTTP.
type Registry interface {
	Register(ctx context.Context, caller interfaces.AccountID, att interfaces.Attestation) (interfaces.AgentView, error)
	RequestSignature(ctx context.Context, caller interfaces.AccountID, path, payload, keyType string) (string, error)

	GetAgent(account interfaces.AccountID) (interfaces.AgentView, bool)
	ListAgents(offset, limit int) []interfaces.AgentView
	ListMeasurements(offset, limit int) []interfaces.MeasurementBundle
	ListPlatformIDs(offset, limit int) []interfaces.PlatformID
	ListWhitelistedAgentsForLocal() ([]interfaces.AccountID, error)
	ContractInfo() interfaces.ContractInfo

	ApproveMeasurements(ctx context.Context, caller interfaces.AccountID, bundle interfaces.MeasurementBundle) error
	RemoveMeasurements(ctx context.Context, caller interfaces.AccountID, bundle interfaces.MeasurementBundle) error
	ApprovePlatformIDs(ctx context.Context, caller interfaces.AccountID, ids []interfaces.PlatformID) error
	RemovePlatformIDs(ctx context.Context, caller interfaces.AccountID, ids []interfaces.PlatformID) error
	RemoveAgent(ctx context.Context, caller, account interfaces.AccountID) error
	UpdateOwner(ctx context.Context, caller, newOwner interfaces.AccountID) error
	UpdateSignerEndpoint(ctx context.Context, caller interfaces.AccountID, endpoint string) error
	UpdateExpirationDuration(ctx context.Context, caller interfaces.AccountID, d time.Duration) error
	WhitelistAgentForLocal(ctx context.Context, caller, account interfaces.AccountID) error
	RemoveAgentFromWhitelistForLocal(ctx context.Context, caller, account interfaces.AccountID) error
}

// EventLister exposes recorded registry events.
type EventLister interface {
	List(offset, limit int) []interfaces.Event
}

// SignRequest is the body of POST /api/agent/sign.
type SignRequest struct {
	Path    string `json:"path"`
	Payload string `json:"payload"`
	KeyType string `json:"key_type"`
}

// SignResponse identifies a queued signature request. Its outcome is
// reported later as a signature_result event with the same id.
type SignResponse struct {
	RequestID string `json:"request_id"`
}

// MeasurementsRequest is the body of the measurement approve/remove calls.
// The bundle is required; an all-zero bundle must be sent explicitly.
type MeasurementsRequest struct {
	Measurements *interfaces.MeasurementBundle `json:"measurements"`
}

func (r MeasurementsRequest) Validate() error {
	if r.Measurements == nil {
		return errors.New("measurements are required")
	}
	return nil
}

// PlatformIDsRequest is the body of the platform id approve/remove calls.
type PlatformIDsRequest struct {
	PlatformIDs []interfaces.PlatformID `json:"platform_ids"`
}

func (r PlatformIDsRequest) Validate() error {
	if r.PlatformIDs == nil {
		return errors.New("platform_ids are required")
	}
	return nil
}

// AccountRequest names an account: the agent to remove, the new owner, or
// the account to (un)whitelist.
type AccountRequest struct {
	Account *interfaces.AccountID `json:"account"`
}

func (r AccountRequest) Validate() error {
	if r.Account == nil {
		return errors.New("account is required")
	}
	return nil
}

// validate runs v's Validate method if it has one.
func validate(v any) error {
	if val, ok := v.(interface{ Validate() error }); ok {
		return val.Validate()
	}
	return nil
}

type SignerEndpointRequest struct {
	SignerEndpoint string `json:"signer_endpoint"`
}

type ExpirationDurationRequest struct {
	ExpirationDuration interfaces.Duration `json:"expiration_duration"`
}

// ErrorResponse is the body of every non-2xx answer. Reasons is set when the
// authorization gate revoked the caller.
type ErrorResponse struct {
	Error   string                     `json:"error"`
	Reasons []interfaces.RemovalReason `json:"reasons,omitempty"`
}
