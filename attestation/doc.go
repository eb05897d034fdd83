// Package attestation implements the registry's attestation verifiers.
//
// TDXVerifier checks a TDX quote's signature chain (and optionally its
// collateral), requires the quote's report data to equal the caller's account
// zero-padded to 64 bytes, replays the dstack event log into a
// MeasurementBundle and checks the result against the approval snapshot it is
// given. LocalVerifier skips the hardware checks and reports the all-zero
// sentinel measurements and platform id, which still have to be approved.
//
// Verifiers never mutate registry state; the caller commits the result.
package attestation
