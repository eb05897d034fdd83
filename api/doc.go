/*
Package api holds the HTTP surface of the agent registry: shared request and
response types, signed-request authentication and the mapping from registry
errors to HTTP status codes.

The routes themselves live in subpackages:

 1. agents - agent registration, signature requests and the read surface
 2. owner - owner-only governance calls
 3. servers - HTTP server lifecycle, health and drain endpoints
 4. clients - Go client for all of the above

# Caller identity

Mutating calls are authenticated by signature rather than by session. The
caller sends

	X-Request-Timestamp: <unix milliseconds>
	X-Caller-Signature:  <hex 65-byte secp256k1 signature>

where the signature covers keccak256(timestamp || path || body). The account
recovered from the signature is the caller passed to the registry. Requests
whose timestamp is further than the configured max age from the server clock
are rejected with 401, as is a second copy of a request the same caller
already sent within that window. Bodies over the size limit get 413.

# Errors

Every non-2xx answer carries an ErrorResponse. When the authorization gate
revoked the caller, Reasons lists every condition that failed.
*/
package api
