// Package storage provides the key-value persistence used for the registry
// state, with pluggable backends.
//
//   - Memory storage for tests and ephemeral deployments
//   - File system storage for single-host deployments
//   - S3-compatible storage for cloud deployments
//   - Vault KV v2 storage
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - memory://
//   - file:///var/lib/agent-registry/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=custom.s3.com
//   - vault://vault.example.com:8200/secret/agent-registry?token=...&tls=true
//
// # Multiple Backends
//
// MultiStorageBackend mirrors every write to all of its backends and fails the
// write unless every backend accepted it, so a read from any of them returns
// the latest committed state. Reads are served by the first available backend
// holding the key.
package storage
