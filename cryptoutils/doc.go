// Package cryptoutils implements the quote-level cryptography of the agent
// registry.
//
// # TDX Quotes
//
// VerifyTDXQuote parses a raw TDX v4 quote with go-tdx-guest, verifies its
// signature and PCK certificate chain, and optionally re-verifies it against
// collateral fetched from Intel PCS with revocation checks enabled. The PPID is
// read from the SGX extension of the PCK leaf certificate.
//
// # Event Log
//
// dstack extends application events into RTMR3. ReplayEventLog recomputes RTMR3
// from the submitted event log, checking every digest, and extracts the
// key-provider digest and the app-compose hash. MeasurementsFromQuote combines
// these with MRTD and RTMR0-2 into a MeasurementBundle.
//
// # Request Signatures
//
// Callers authenticate requests with a recoverable secp256k1 signature over
// keccak256(timestamp || path || body). RecoverCaller yields the caller's
// account.
//
// # Attestation Providers
//
// Agent-side providers produce the attestation submitted on registration:
// DCAPAttestationProvider (TDX guest), RemoteAttestationProvider (quote
// service) and LocalAttestationProvider (no hardware).
package cryptoutils
