// Package main (cmd/gateway) runs the TEE agent registry server.
//
// The gateway loads the registry state from the configured storage backends
// (creating it from the --owner, --signer-endpoint, --requires-attestation and
// --expiration-duration flags on first start), serves the agent, owner and
// read APIs, and forwards authorized signature requests to the signer on a
// pool of dispatch workers.
//
// Example usage:
//
//	gateway --listen-addr=0.0.0.0:8080 \
//	    --owner=0x5FbDB2315678afecb367f032d93F642f64180aa3 \
//	    --signer-endpoint=srv+https://_signer._tcp.signer.internal \
//	    --state-uri=file:///var/lib/agent-registry \
//	    --state-uri=s3://registry-state/prod/?region=us-east-1
//
// The process stops gracefully on SIGINT or SIGTERM.
package main
