// Package sign provides deterministic signing and verification of
// transaction fields with ed25519.
package sign

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
)

// Fields is the canonical signed subset of a transaction. The struct
// fixes the field order, so the serialization is stable for equal inputs.
type Fields struct {
	ID          string  `json:"id"`
	Amount      float64 `json:"amount"`
	Sender      string  `json:"sender"`
	Recipient   string  `json:"recipient"`
	Description string  `json:"description"`
}

func canonical(f Fields) []byte {
	b, _ := json.Marshal(f) // marshaling a flat struct cannot fail
	return b
}

// GenerateKey creates an ed25519 key pair. The public key is returned
// base64-encoded, ready to embed in a QR payload.
func GenerateKey() (pub string, priv ed25519.PrivateKey, err error) {
	pk, sk, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(pk), sk, nil
}

// Sign signs the canonical serialization of f and returns the signature
// base64-encoded.
func Sign(f Fields, priv ed25519.PrivateKey) string {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, canonical(f)))
}

// Verify reports whether sig is a valid signature over f by pubKey.
// It is pure: same inputs always give the same result, and any decoding
// failure is simply false.
func Verify(f Fields, sig, pubKey string) bool {
	pk, err := base64.StdEncoding.DecodeString(pubKey)
	if err != nil || len(pk) != ed25519.PublicKeySize {
		return false
	}
	s, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pk), canonical(f), s)
}
