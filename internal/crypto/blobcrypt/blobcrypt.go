// Package blobcrypt encrypts stored transaction payloads with a
// passphrase-derived key.
package blobcrypt

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// NewSalt returns a fresh random salt for key derivation.
func NewSalt() ([]byte, error) {
	s := make([]byte, SaltLen)
	_, err := rand.Read(s)
	return s, err
}

// Cipher seals and opens transaction blobs with a key derived once from
// a passphrase and a per-device salt.
type Cipher struct {
	key []byte
}

// New derives the blob key from passphrase and salt using Argon2id.
func New(passphrase, salt []byte) (*Cipher, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("empty passphrase")
	}
	if len(salt) == 0 {
		return nil, errors.New("empty salt")
	}
	return &Cipher{key: argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)}, nil
}

// Seal encrypts plaintext with XChaCha20-Poly1305 and a random nonce.
// The owning transaction id is bound as AAD so a blob cannot be re-homed
// under another log entry.
func (c *Cipher) Seal(txID string, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, []byte(txID))...)
	return out, nil
}

// Open decrypts a blob sealed for txID.
func (c *Cipher) Open(txID string, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("blob too short")
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return nil, err
	}
	nonce := blob[:chacha20poly1305.NonceSizeX]
	ct := blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, []byte(txID))
}
