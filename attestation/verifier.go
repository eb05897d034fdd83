package attestation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/tee-agent-registry/cryptoutils"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

// QuoteVerifyFunc verifies a raw quote. cryptoutils.VerifyTDXQuote in
// production.
type QuoteVerifyFunc func(rawQuote []byte, opts cryptoutils.QuoteVerifyOptions) (*cryptoutils.TDXQuote, error)

// TDXVerifier verifies dstack TDX attestations.
type TDXVerifier struct {
	log             *slog.Logger
	checkCollateral bool
	verifyQuote     QuoteVerifyFunc
}

// NewTDXVerifier creates a verifier. With checkCollateral set, quotes are also
// checked against Intel PCS collateral and revocation lists as of the
// verification time.
func NewTDXVerifier(log *slog.Logger, checkCollateral bool) *TDXVerifier {
	return &TDXVerifier{
		log:             log,
		checkCollateral: checkCollateral,
		verifyQuote:     cryptoutils.VerifyTDXQuote,
	}
}

// WithQuoteVerifier replaces the quote verification step.
func (v *TDXVerifier) WithQuoteVerifier(fn QuoteVerifyFunc) *TDXVerifier {
	v.verifyQuote = fn
	return v
}

// Verify checks the quote chain, binds the quote to caller through its report
// data, replays the event log and finally checks the resulting measurements and
// platform id against expected.
func (v *TDXVerifier) Verify(ctx context.Context, attestation interfaces.Attestation, expected interfaces.ApprovalSnapshot, now time.Time, caller interfaces.AccountID) (interfaces.MeasurementBundle, interfaces.PlatformID, error) {
	quote, err := v.verifyQuote(attestation.Quote, cryptoutils.QuoteVerifyOptions{
		Now:             now,
		CheckCollateral: v.checkCollateral,
	})
	if err != nil {
		v.log.Warn("Quote verification failed", "caller", caller.String(), "err", err)
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, err
	}

	if quote.ReportData == [64]byte{} {
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, interfaces.ErrNoReportData
	}
	if expectedReportData := caller.ReportData(); quote.ReportData != expectedReportData {
		v.log.Warn("Quote bound to a different identity",
			"caller", caller.String(),
			"reportData", fmt.Sprintf("%x", quote.ReportData))
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, fmt.Errorf("%w: report data %x, expected %x",
			interfaces.ErrIdentityMismatch, quote.ReportData, expectedReportData)
	}

	measurements, err := cryptoutils.MeasurementsFromQuote(quote, attestation.TCBInfo.EventLog)
	if err != nil {
		v.log.Warn("Event log replay failed", "caller", caller.String(), "err", err)
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, err
	}

	if err := checkApproved(expected, measurements, quote.PPID); err != nil {
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, err
	}

	v.log.Debug("Attestation verified",
		"caller", caller.String(),
		"mrtd", fmt.Sprintf("%x", measurements.MRTD),
		"ppid", quote.PPID.String())

	return measurements, quote.PPID, nil
}

// LocalVerifier stands in for TDX verification when the registry runs without
// hardware attestation. Every attestation yields the sentinel measurements and
// platform id, which must themselves be approved.
type LocalVerifier struct {
	log *slog.Logger
}

func NewLocalVerifier(log *slog.Logger) *LocalVerifier {
	return &LocalVerifier{log: log}
}

func (v *LocalVerifier) Verify(ctx context.Context, attestation interfaces.Attestation, expected interfaces.ApprovalSnapshot, now time.Time, caller interfaces.AccountID) (interfaces.MeasurementBundle, interfaces.PlatformID, error) {
	if len(attestation.Quote) > 0 {
		v.log.Debug("Ignoring quote in local mode", "caller", caller.String())
	}

	measurements := interfaces.SentinelMeasurements
	platformID := interfaces.SentinelPlatformID
	if err := checkApproved(expected, measurements, platformID); err != nil {
		return interfaces.MeasurementBundle{}, interfaces.PlatformID{}, err
	}
	return measurements, platformID, nil
}

func checkApproved(expected interfaces.ApprovalSnapshot, measurements interfaces.MeasurementBundle, platformID interfaces.PlatformID) error {
	if !expected.MeasurementsApproved(measurements) {
		return fmt.Errorf("%w: %s", interfaces.ErrMeasurementNotApproved, measurements.String())
	}
	if !expected.PlatformIDApproved(platformID) {
		return fmt.Errorf("%w: %s", interfaces.ErrPlatformNotApproved, platformID.String())
	}
	return nil
}
