/*
Package clients provides a Go client for the registry HTTP API.

RegistryClient signs every mutating request with the caller's secp256k1 key
(see CreateSignedRequest); read calls are sent unsigned. A client created
without a key can only read.

	key, _ := crypto.HexToECDSA(ownerKeyHex)
	c := clients.NewRegistryClient("http://127.0.0.1:8080", key)

	if err := c.ApprovePlatformIDs(ctx, ids); err != nil {
	    var apiErr *clients.APIError
	    if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusForbidden {
	        // not the owner
	    }
	}

Non-2xx answers are returned as *APIError carrying the decoded
ErrorResponse, including the removal reasons when the gate revoked the
caller.
*/
package clients
