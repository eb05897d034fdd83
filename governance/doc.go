// Package governance implements the agent registry: owner-curated approval
// sets of measurement bundles and platform ids, per-account agent records
// created by attestation, and the authorization gate that re-validates a
// record on every privileged call.
//
// # Lifecycle
//
// An account moves from unregistered to registered through Register, which
// verifies an attestation against the approvals current at that moment and
// stores the record with valid_until = now + expiration duration.
// Re-registering simply overwrites the record.
//
// A record leaves the registry either through RemoveAgent (owner) or through
// the gate. The gate evaluates every condition (expiry, measurement approval,
// platform approval and, in local mode, the local whitelist), and on any
// failure deletes the record and emits one agent_removed event carrying all
// failing reasons. Changing the approval sets never touches stored records
// directly.
//
// # Persistence
//
// The whole state is written as one JSON snapshot under
// interfaces.StateKey after each committed mutation. Mutations are applied to
// a copy that replaces the live state only after the write succeeds.
package governance
