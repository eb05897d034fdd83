// Package signer forwards authorized signature requests to the external
// signing service.
//
// A request's key type is mapped to the signer's numeric domain (Ecdsa is 0,
// Eddsa is 1) by NewRequest. The Dispatcher queues requests and returns
// immediately; workers call the Signer and report every outcome as a
// signature_result event. Nothing here performs trust checks: callers must
// pass the authorization gate first.
//
// HTTPSigner talks to the signer over HTTP and resolves srv:// endpoints via
// DNS SRV records.
package signer
