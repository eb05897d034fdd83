package cryptoutils

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	tdx_client "github.com/google/go-tdx-guest/client"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

// AttestationProvider produces the attestation an agent submits on
// registration, bound to reportData.
type AttestationProvider interface {
	Attest(reportData [64]byte) (*interfaces.Attestation, error)
}

// RemoteAttestationProvider asks a quote service running next to the agent
// (for example a dstack guest agent proxy) for the attestation.
type RemoteAttestationProvider struct {
	Address string
}

func (p *RemoteAttestationProvider) Attest(reportData [64]byte) (*interfaces.Attestation, error) {
	extraDataHex := hex.EncodeToString(reportData[:])

	url := fmt.Sprintf("%s/attest/%s", p.Address, extraDataHex)
	resp, err := http.DefaultClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("calling remote quote provider: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading attestation from response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote quote provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var attestation interfaces.Attestation
	if err := json.Unmarshal(body, &attestation); err != nil {
		return nil, fmt.Errorf("could not parse attestation: %w", err)
	}
	return &attestation, nil
}

// DCAPAttestationProvider reads a quote straight from the TDX guest, through
// configfs-tsm when available and the tdx-guest device otherwise. The RTMR3
// event log is loaded from EventLogPath, a JSON array of event log entries.
type DCAPAttestationProvider struct {
	EventLogPath string
}

func (p DCAPAttestationProvider) Attest(reportData [64]byte) (*interfaces.Attestation, error) {
	rawQuote, err := p.rawQuote(reportData)
	if err != nil {
		return nil, fmt.Errorf("could not get quote: %w", err)
	}

	attestation := &interfaces.Attestation{Quote: rawQuote}
	if p.EventLogPath == "" {
		return attestation, nil
	}

	data, err := os.ReadFile(p.EventLogPath)
	if err != nil {
		return nil, fmt.Errorf("could not read event log: %w", err)
	}
	if err := json.Unmarshal(data, &attestation.TCBInfo.EventLog); err != nil {
		return nil, fmt.Errorf("could not parse event log: %w", err)
	}
	return attestation, nil
}

func (DCAPAttestationProvider) rawQuote(reportData [64]byte) ([]byte, error) {
	qp := &tdx_client.LinuxConfigFsQuoteProvider{}
	if qp.IsSupported() == nil {
		return qp.GetRawQuote(reportData)
	}

	qd, err := tdx_client.OpenDevice()
	if err != nil {
		return nil, err
	}
	defer qd.Close()

	return tdx_client.GetRawQuote(qd, reportData)
}

// LocalAttestationProvider is used when the registry runs without hardware
// attestation. It returns an empty attestation.
type LocalAttestationProvider struct{}

func (LocalAttestationProvider) Attest([64]byte) (*interfaces.Attestation, error) {
	return &interfaces.Attestation{}, nil
}
