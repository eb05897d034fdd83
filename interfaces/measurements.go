package interfaces

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// MeasurementBundle identifies the software image running inside a TD: the
// boot-time registers plus the two dstack events that pin the key provider and
// the application compose file.
type MeasurementBundle struct {
	MRTD                   [48]byte
	RTMR0                  [48]byte
	RTMR1                  [48]byte
	RTMR2                  [48]byte
	KeyProviderEventDigest [48]byte
	AppComposeHashPayload  [32]byte
}

// SentinelMeasurements is what local mode reports in place of real
// measurements.
var SentinelMeasurements = MeasurementBundle{}

// Bytes returns the canonical encoding, fields concatenated in declaration
// order.
func (m MeasurementBundle) Bytes() []byte {
	out := make([]byte, 0, 48*5+32)
	out = append(out, m.MRTD[:]...)
	out = append(out, m.RTMR0[:]...)
	out = append(out, m.RTMR1[:]...)
	out = append(out, m.RTMR2[:]...)
	out = append(out, m.KeyProviderEventDigest[:]...)
	out = append(out, m.AppComposeHashPayload[:]...)
	return out
}

// Compare orders bundles byte-wise over their canonical encoding.
func (m MeasurementBundle) Compare(other MeasurementBundle) int {
	return bytes.Compare(m.Bytes(), other.Bytes())
}

func (m MeasurementBundle) IsZero() bool {
	return m == MeasurementBundle{}
}

// Hex returns the field-wise hex view.
func (m MeasurementBundle) Hex() MeasurementBundleHex {
	return MeasurementBundleHex{
		MRTD:                   hex.EncodeToString(m.MRTD[:]),
		RTMR0:                  hex.EncodeToString(m.RTMR0[:]),
		RTMR1:                  hex.EncodeToString(m.RTMR1[:]),
		RTMR2:                  hex.EncodeToString(m.RTMR2[:]),
		KeyProviderEventDigest: hex.EncodeToString(m.KeyProviderEventDigest[:]),
		AppComposeHashPayload:  hex.EncodeToString(m.AppComposeHashPayload[:]),
	}
}

func (m MeasurementBundle) String() string {
	return hex.EncodeToString(m.Bytes())
}

func (m MeasurementBundle) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Hex())
}

func (m *MeasurementBundle) UnmarshalJSON(data []byte) error {
	var h MeasurementBundleHex
	if err := json.Unmarshal(data, &h); err != nil {
		return err
	}
	parsed, err := h.Bundle()
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// MeasurementBundleHex is the wire form of a MeasurementBundle.
type MeasurementBundleHex struct {
	MRTD                   string `json:"mrtd"`
	RTMR0                  string `json:"rtmr0"`
	RTMR1                  string `json:"rtmr1"`
	RTMR2                  string `json:"rtmr2"`
	KeyProviderEventDigest string `json:"key_provider_event_digest"`
	AppComposeHashPayload  string `json:"app_compose_hash_payload"`
}

// Bundle decodes and length-checks every field.
func (h MeasurementBundleHex) Bundle() (MeasurementBundle, error) {
	var m MeasurementBundle
	fields := []struct {
		name string
		hex  string
		dst  []byte
	}{
		{"mrtd", h.MRTD, m.MRTD[:]},
		{"rtmr0", h.RTMR0, m.RTMR0[:]},
		{"rtmr1", h.RTMR1, m.RTMR1[:]},
		{"rtmr2", h.RTMR2, m.RTMR2[:]},
		{"key_provider_event_digest", h.KeyProviderEventDigest, m.KeyProviderEventDigest[:]},
		{"app_compose_hash_payload", h.AppComposeHashPayload, m.AppComposeHashPayload[:]},
	}
	for _, f := range fields {
		raw, err := decodeFixedHex(f.name, f.hex, len(f.dst))
		if err != nil {
			return MeasurementBundle{}, fmt.Errorf("invalid measurement bundle: %w", err)
		}
		copy(f.dst, raw)
	}
	return m, nil
}
