// Package interfaces defines the core types and collaborator interfaces of the
// TEE agent registry, separating definitions from implementations.
//
// # Identity Types
//
//   - AccountID: 20-byte caller address recovered from a request signature
//   - MeasurementBundle: MRTD, RTMR0-2, key-provider event digest and app compose hash
//   - PlatformID: 16-byte PPID of the attesting CPU
//
// # Records and Views
//
// AgentRecord is what the registry stores per registered agent. AgentView is its
// read-only projection with validity flags computed at read time. ContractInfo
// describes the registry configuration.
//
// # Collaborators
//
//   - AttestationVerifier: turns an Attestation into a MeasurementBundle and PlatformID
//   - Signer: the downstream signing service
//   - SignatureDispatcher: fire-and-forget forwarding of authorized signature requests
//   - EventSink: receives structured registry events
//   - StorageBackend: key-value persistence for the registry state
//
// # Errors
//
// Sentinel errors are grouped by category (owner authorization, lifecycle,
// approval consistency, verification, external). Gate revocations surface as
// *AgentRemovedError, which matches ErrAgentRemoved under errors.Is.
package interfaces
