package interfaces

import (
	"context"
	"time"
)

// ApprovalSnapshot is a point-in-time copy of the approved sets handed to a
// verifier.
type ApprovalSnapshot struct {
	Measurements map[MeasurementBundle]struct{}
	PlatformIDs  map[PlatformID]struct{}
}

func (s ApprovalSnapshot) MeasurementsApproved(m MeasurementBundle) bool {
	_, ok := s.Measurements[m]
	return ok
}

func (s ApprovalSnapshot) PlatformIDApproved(p PlatformID) bool {
	_, ok := s.PlatformIDs[p]
	return ok
}

// AttestationVerifier validates an attestation for caller as of now and returns
// the measurements and platform id it proves. It must not retain the snapshot.
type AttestationVerifier interface {
	Verify(ctx context.Context, attestation Attestation, expected ApprovalSnapshot, now time.Time, caller AccountID) (MeasurementBundle, PlatformID, error)
}

// SignatureRequest is the delegated call forwarded to the signer.
type SignatureRequest struct {
	RequestID string    `json:"request_id"`
	Endpoint  string    `json:"-"`
	Caller    AccountID `json:"caller"`
	Path      string    `json:"path"`
	Payload   string    `json:"payload"`
	Domain    uint32    `json:"domain"`
}

// SignatureResponse is whatever the signer returned, kept opaque.
type SignatureResponse struct {
	Signature HexBytes `json:"signature"`
}

// Signer is the downstream signing service.
type Signer interface {
	Sign(ctx context.Context, req SignatureRequest) (*SignatureResponse, error)
}

// SignatureDispatcher forwards authorized requests without waiting for the
// signer. Dispatch returns once the request is queued and reports the outcome
// later as a SignatureResultEvent.
type SignatureDispatcher interface {
	Dispatch(ctx context.Context, req SignatureRequest) (requestID string, err error)
}
