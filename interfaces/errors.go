package interfaces

import (
	"errors"
	"fmt"
	"strings"
)

// Owner authorization.
var ErrNotOwner = errors.New("caller is not the owner")

// Agent lifecycle.
var (
	ErrNotRegistered       = errors.New("agent not registered")
	ErrNotWhitelisted      = errors.New("agent is not whitelisted for local mode")
	ErrAgentRemoved        = errors.New("agent removed")
	ErrInvalidKeyType      = errors.New("invalid key type")
	ErrLocalModeOnly       = errors.New("operation is only supported in local mode")
	ErrNotInLocalWhitelist = errors.New("agent not in whitelist for local")
	ErrInvalidArgument     = errors.New("invalid argument")
)

// Approval consistency, returned when removing an entry that is not approved.
var (
	ErrMeasurementsNotApproved = errors.New("measurements not approved")
	ErrPlatformIDNotApproved   = errors.New("platform id not approved")
)

// Attestation verification.
var (
	ErrBadSignature             = errors.New("attestation signature chain invalid")
	ErrStaleOrRevokedCollateral = errors.New("attestation collateral stale or revoked")
	ErrNoReportData             = errors.New("attestation carries no report data")
	ErrIdentityMismatch         = errors.New("attestation report data does not match caller")
	ErrMeasurementNotApproved   = errors.New("attested measurements are not approved")
	ErrPlatformNotApproved      = errors.New("attested platform id is not approved")
)

// External collaborators.
var (
	ErrSignerUnavailable  = errors.New("signer unavailable")
	ErrKeyNotFound        = errors.New("key not found")
	ErrBackendUnavailable = errors.New("storage backend unavailable")
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// IsVerificationError reports whether err is one of the attestation
// verification failures.
func IsVerificationError(err error) bool {
	for _, target := range []error{
		ErrBadSignature,
		ErrStaleOrRevokedCollateral,
		ErrNoReportData,
		ErrIdentityMismatch,
		ErrMeasurementNotApproved,
		ErrPlatformNotApproved,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// AgentRemovedError is returned by the authorization gate after it revoked an
// agent. It carries every reason that applied.
type AgentRemovedError struct {
	Account AccountID
	Reasons []RemovalReason
}

func (e *AgentRemovedError) Error() string {
	reasons := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		reasons[i] = string(r)
	}
	return fmt.Sprintf("invalid agent %s: %s", e.Account, strings.Join(reasons, ", "))
}

func (e *AgentRemovedError) Is(target error) bool {
	return target == ErrAgentRemoved
}
