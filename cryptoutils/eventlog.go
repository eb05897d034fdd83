package cryptoutils

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ruteri/tee-agent-registry/interfaces"
)

const (
	// AppIMR is the register dstack extends application events into (RTMR3).
	AppIMR = 3

	EventKeyProvider = "key-provider"
	EventComposeHash = "compose-hash"
)

// ReplayedEvents is what replaying an application event log yields.
type ReplayedEvents struct {
	RTMR3                  [48]byte
	KeyProviderEventDigest [48]byte
	AppComposeHashPayload  [32]byte
}

// EventDigest computes the digest dstack records for an application event:
// sha384(le32(event_type) || ":" || event || ":" || payload).
func EventDigest(eventType uint32, event string, payload []byte) [48]byte {
	h := sha512.New384()
	var et [4]byte
	binary.LittleEndian.PutUint32(et[:], eventType)
	h.Write(et[:])
	h.Write([]byte(":"))
	h.Write([]byte(event))
	h.Write([]byte(":"))
	h.Write(payload)

	var out [48]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ExtendRTMR folds a digest into a register value.
func ExtendRTMR(rtmr [48]byte, digest [48]byte) [48]byte {
	var out [48]byte
	sum := sha512.Sum384(append(rtmr[:], digest[:]...))
	copy(out[:], sum[:])
	return out
}

// ReplayEventLog replays every RTMR3 entry of the log, checking each entry's
// digest against its event and payload, and picks out the key-provider and
// compose-hash events. Entries for other registers are skipped.
func ReplayEventLog(log []interfaces.EventLogEntry) (*ReplayedEvents, error) {
	out := &ReplayedEvents{}
	var sawKeyProvider, sawComposeHash bool

	for i, entry := range log {
		if entry.IMR != AppIMR {
			continue
		}

		digest, err := decodeDigest(entry.Digest)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		payload, err := hex.DecodeString(strings.TrimPrefix(entry.EventPayload, "0x"))
		if err != nil {
			return nil, fmt.Errorf("event %d: invalid payload hex: %w", i, err)
		}
		if expected := EventDigest(entry.EventType, entry.Event, payload); expected != digest {
			return nil, fmt.Errorf("event %d (%s): digest does not match payload", i, entry.Event)
		}

		out.RTMR3 = ExtendRTMR(out.RTMR3, digest)

		switch entry.Event {
		case EventKeyProvider:
			out.KeyProviderEventDigest = digest
			sawKeyProvider = true
		case EventComposeHash:
			if len(payload) != 32 {
				return nil, fmt.Errorf("event %d: compose hash payload must be 32 bytes, got %d", i, len(payload))
			}
			copy(out.AppComposeHashPayload[:], payload)
			sawComposeHash = true
		}
	}

	if !sawKeyProvider {
		return nil, errors.New("event log has no key-provider event")
	}
	if !sawComposeHash {
		return nil, errors.New("event log has no compose-hash event")
	}

	return out, nil
}

// MeasurementsFromQuote combines the quote registers with the replayed event
// log. The replayed RTMR3 must equal the quote's RTMR3.
func MeasurementsFromQuote(quote *TDXQuote, log []interfaces.EventLogEntry) (interfaces.MeasurementBundle, error) {
	replayed, err := ReplayEventLog(log)
	if err != nil {
		return interfaces.MeasurementBundle{}, fmt.Errorf("%w: %v", interfaces.ErrBadSignature, err)
	}

	if !bytes.Equal(replayed.RTMR3[:], quote.RTMRs[3][:]) {
		return interfaces.MeasurementBundle{}, fmt.Errorf("%w: replayed rtmr3 %x does not match quote rtmr3 %x",
			interfaces.ErrBadSignature, replayed.RTMR3, quote.RTMRs[3])
	}

	return interfaces.MeasurementBundle{
		MRTD:                   quote.MRTD,
		RTMR0:                  quote.RTMRs[0],
		RTMR1:                  quote.RTMRs[1],
		RTMR2:                  quote.RTMRs[2],
		KeyProviderEventDigest: replayed.KeyProviderEventDigest,
		AppComposeHashPayload:  replayed.AppComposeHashPayload,
	}, nil
}

func decodeDigest(s string) ([48]byte, error) {
	var out [48]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return out, fmt.Errorf("invalid digest hex: %w", err)
	}
	if len(raw) != 48 {
		return out, fmt.Errorf("invalid digest length %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// NewEventLogEntry builds an entry with its digest computed from the event and
// payload.
func NewEventLogEntry(imr uint32, eventType uint32, event string, payload []byte) interfaces.EventLogEntry {
	digest := EventDigest(eventType, event, payload)
	return interfaces.EventLogEntry{
		IMR:          imr,
		EventType:    eventType,
		Digest:       hex.EncodeToString(digest[:]),
		Event:        event,
		EventPayload: hex.EncodeToString(payload),
	}
}
