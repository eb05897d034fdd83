package cryptoutils

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ruteri/tee-agent-registry/interfaces"
)

// RequestDigest is the hash a caller signs to authenticate a request:
// keccak256(decimal unix millisecond timestamp || path || body).
func RequestDigest(timestamp int64, path string, body []byte) []byte {
	return crypto.Keccak256([]byte(strconv.FormatInt(timestamp, 10)), []byte(path), body)
}

// SignRequest produces the 65-byte recoverable secp256k1 signature over the
// request digest.
func SignRequest(key *ecdsa.PrivateKey, timestamp int64, path string, body []byte) ([]byte, error) {
	sig, err := crypto.Sign(RequestDigest(timestamp, path, body), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign request: %w", err)
	}
	return sig, nil
}

// RecoverCaller returns the account that produced sig over the request.
func RecoverCaller(sig []byte, timestamp int64, path string, body []byte) (interfaces.AccountID, error) {
	if len(sig) != crypto.SignatureLength {
		return interfaces.AccountID{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	pubkey, err := crypto.SigToPub(RequestDigest(timestamp, path, body), sig)
	if err != nil {
		return interfaces.AccountID{}, fmt.Errorf("could not recover signer: %w", err)
	}
	if pubkey == nil {
		return interfaces.AccountID{}, errors.New("could not recover signer")
	}

	return interfaces.AccountID(crypto.PubkeyToAddress(*pubkey)), nil
}

// AccountFromKey returns the account controlled by key.
func AccountFromKey(key *ecdsa.PrivateKey) interfaces.AccountID {
	return interfaces.AccountID(crypto.PubkeyToAddress(key.PublicKey))
}
