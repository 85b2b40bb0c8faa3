// Package pke implements the MMPKE01 multi-recipient hybrid encryption
// envelope: X25519 key agreement, per-recipient AES-256-GCM key wrapping,
// self-verifying Base58Check addresses, and an Argon2id-protected private
// key file format.
package pke

import (
	"crypto/rand"
	"encoding/base64"

	"golang.org/x/crypto/curve25519"

	"matric/internal/matricerr"
)

// PublicKey is a 32-byte X25519 public key.
type PublicKey [32]byte

// PrivateKey is a 32-byte X25519 scalar. Callers must call Zero when done
// with a PrivateKey obtained outside of a short-lived scope; Go has no
// destructors, so zeroization is the caller's responsibility rather than
// automatic (see DESIGN.md).
type PrivateKey [32]byte

// Zero overwrites the key material in place.
func (p *PrivateKey) Zero() {
	for i := range p {
		p[i] = 0
	}
}

// PublicKey derives the X25519 public key for this private scalar.
func (p PrivateKey) PublicKey() (PublicKey, error) {
	pub, err := curve25519.X25519(p[:], curve25519.Basepoint)
	if err != nil {
		return PublicKey{}, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "key derivation failed")
	}
	var out PublicKey
	copy(out[:], pub)
	return out, nil
}

// Keypair is a matched X25519 public/private pair.
type Keypair struct {
	Public  PublicKey
	Private PrivateKey
}

// GenerateKeypair creates a new random X25519 keypair via crypto/rand.
func GenerateKeypair() (Keypair, error) {
	var priv PrivateKey
	if _, err := rand.Read(priv[:]); err != nil {
		return Keypair{}, matricerr.Internal("failed to read random bytes: %v", err)
	}
	pub, err := priv.PublicKey()
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// KeypairFromPrivate derives a Keypair from an existing private key.
func KeypairFromPrivate(priv PrivateKey) (Keypair, error) {
	pub, err := priv.PublicKey()
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Public: pub, Private: priv}, nil
}

// Base64 returns the standard base64 encoding of the public key, as used in
// the MMPKE01 header's ephemeral_pubkey and plaintext public-key files.
func (p PublicKey) Base64() string { return base64.StdEncoding.EncodeToString(p[:]) }

// PublicKeyFromBase64 parses a standard-base64-encoded 32-byte public key.
func PublicKeyFromBase64(s string) (PublicKey, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil || len(b) != 32 {
		return PublicKey{}, matricerr.Crypto(matricerr.CryptoInvalidFormat, "malformed public key")
	}
	var out PublicKey
	copy(out[:], b)
	return out, nil
}
