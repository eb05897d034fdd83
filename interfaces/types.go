package interfaces

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// AccountID is the 20-byte identity of a caller (an Ethereum-style address
// recovered from a request signature).
type AccountID [20]byte

// NewAccountIDFromBytes creates an account id from its raw 20 bytes.
func NewAccountIDFromBytes(addr []byte) (AccountID, error) {
	if len(addr) != 20 {
		return AccountID{}, errors.New("invalid account length: must be 20 bytes")
	}

	var res AccountID
	copy(res[:], addr)
	return res, nil
}

// NewAccountIDFromHex parses a 40-character hex address, with or without 0x.
func NewAccountIDFromHex(addr string) (AccountID, error) {
	if !common.IsHexAddress(addr) {
		return AccountID{}, fmt.Errorf("invalid account address %q", addr)
	}
	return AccountID(common.HexToAddress(addr)), nil
}

// String returns the checksummed 0x-prefixed hex form.
func (a AccountID) String() string {
	return common.Address(a).Hex()
}

func (a AccountID) Bytes() []byte {
	return a[:]
}

func (a AccountID) IsZero() bool {
	return a == AccountID{}
}

// Compare orders accounts byte-wise.
func (a AccountID) Compare(other AccountID) int {
	return bytes.Compare(a[:], other[:])
}

// ReportData is the value an agent must embed in its quote's report data: the
// account bytes, zero-padded to 64 bytes.
func (a AccountID) ReportData() [64]byte {
	var reportData [64]byte
	copy(reportData[:20], a[:])
	return reportData
}

func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *AccountID) UnmarshalText(text []byte) error {
	parsed, err := NewAccountIDFromHex(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// PlatformID is the 16-byte per-hardware identifier (PPID) taken from the PCK
// certificate of an attestation quote.
type PlatformID [16]byte

// SentinelPlatformID is what local mode reports in place of a real PPID.
var SentinelPlatformID = PlatformID{}

func NewPlatformIDFromHex(s string) (PlatformID, error) {
	raw, err := decodeFixedHex("platform id", s, 16)
	if err != nil {
		return PlatformID{}, err
	}
	var id PlatformID
	copy(id[:], raw)
	return id, nil
}

func (p PlatformID) String() string {
	return hex.EncodeToString(p[:])
}

func (p PlatformID) Compare(other PlatformID) int {
	return bytes.Compare(p[:], other[:])
}

func (p PlatformID) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PlatformID) UnmarshalText(text []byte) error {
	parsed, err := NewPlatformIDFromHex(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// AgentRecord is the stored outcome of a successful registration.
type AgentRecord struct {
	Measurements MeasurementBundle `json:"measurements"`
	PlatformID   PlatformID        `json:"platform_id"`
	ValidUntil   time.Time         `json:"valid_until"`
}

// Expired reports whether the record's validity window has passed at now.
// A record whose ValidUntil equals now is still valid.
func (r AgentRecord) Expired(now time.Time) bool {
	return r.ValidUntil.Before(now)
}

// AgentView is the read-only projection of an AgentRecord together with its
// validity as of the time the view was computed.
type AgentView struct {
	Account              AccountID            `json:"account"`
	Measurements         MeasurementBundleHex `json:"measurements"`
	MeasurementsApproved bool                 `json:"measurements_approved"`
	PlatformID           PlatformID           `json:"platform_id"`
	PlatformIDApproved   bool                 `json:"platform_id_approved"`
	ValidUntil           time.Time            `json:"valid_until"`
	NotExpired           bool                 `json:"not_expired"`
	IsValid              bool                 `json:"is_valid"`
}

// ContractInfo describes the registry configuration.
type ContractInfo struct {
	Owner               AccountID `json:"owner"`
	SignerEndpoint      string    `json:"signer_endpoint"`
	RequiresAttestation bool      `json:"requires_attestation"`
	ExpirationDuration  Duration  `json:"expiration_duration"`
}

// Duration marshals as a Go duration string ("168h0m0s").
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	*d = Duration(parsed)
	return nil
}

// RemovalReason names why an agent record was deleted.
type RemovalReason string

const (
	ReasonExpiredAttestation     RemovalReason = "ExpiredAttestation"
	ReasonInvalidMeasurements    RemovalReason = "InvalidMeasurements"
	ReasonInvalidPlatformID      RemovalReason = "InvalidPlatformId"
	ReasonNotWhitelistedForLocal RemovalReason = "NotWhitelistedForLocal"
	ReasonManualRemoval          RemovalReason = "ManualRemoval"
)

// KeyType selects the signature scheme requested from the signer.
type KeyType string

const (
	KeyTypeEcdsa KeyType = "Ecdsa"
	KeyTypeEddsa KeyType = "Eddsa"
)

// ParseKeyType accepts exactly "Ecdsa" or "Eddsa".
func ParseKeyType(s string) (KeyType, error) {
	switch KeyType(s) {
	case KeyTypeEcdsa, KeyTypeEddsa:
		return KeyType(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidKeyType, s)
	}
}

// Domain returns the signer's numeric scheme discriminator.
func (k KeyType) Domain() (uint32, error) {
	switch k {
	case KeyTypeEcdsa:
		return 0, nil
	case KeyTypeEddsa:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKeyType, string(k))
	}
}

// Attestation is what an agent submits to register: a raw TDX quote and the
// dstack TCB info carrying the runtime event log.
type Attestation struct {
	Quote   HexBytes `json:"quote"`
	TCBInfo TCBInfo  `json:"tcb_info"`
}

// TCBInfo is the subset of dstack's tcb_info the verifier consumes.
type TCBInfo struct {
	EventLog []EventLogEntry `json:"event_log"`
}

// EventLogEntry is one measured event extended into an RTMR.
type EventLogEntry struct {
	IMR          uint32 `json:"imr"`
	EventType    uint32 `json:"event_type"`
	Digest       string `json:"digest"`
	Event        string `json:"event"`
	EventPayload string `json:"event_payload"`
}

// HexBytes marshals as an unprefixed hex string and accepts an optional 0x.
type HexBytes []byte

func (b HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(b)), nil
}

func (b *HexBytes) UnmarshalText(text []byte) error {
	raw, err := hex.DecodeString(strings.TrimPrefix(string(text), "0x"))
	if err != nil {
		return fmt.Errorf("invalid hex: %w", err)
	}
	*b = raw
	return nil
}

func decodeFixedHex(name, s string, size int) ([]byte, error) {
	clean := strings.TrimPrefix(s, "0x")
	if len(clean) != size*2 {
		return nil, fmt.Errorf("invalid %s length: hex string must be %d characters", name, size*2)
	}
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex format: %w", name, err)
	}
	return raw, nil
}
