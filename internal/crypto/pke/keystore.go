package pke

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"golang.org/x/crypto/argon2"

	"matric/internal/matricerr"
)

const (
	keyfileMagic        = "MMPKEKEY"
	minPassphraseLength = 12
)

// KDFParams configures the Argon2id cost used to wrap a private key for
// on-disk storage. Defaults follow the OWASP-recommended interactive
// profile; callers needing a stronger profile for long-lived archival keys
// can raise MemoryKiB/Time.
type KDFParams struct {
	MemoryKiB   uint32
	Time        uint32
	Parallelism uint8
}

// DefaultKDFParams returns the keystore's default Argon2id cost parameters.
func DefaultKDFParams() KDFParams {
	return KDFParams{MemoryKiB: 64 * 1024, Time: 3, Parallelism: 4}
}

type keyfileHeader struct {
	Version     int    `json:"version"`
	KDF         string `json:"kdf"`
	MemoryKiB   uint32 `json:"memory_kib"`
	Time        uint32 `json:"time"`
	Parallelism uint8  `json:"parallelism"`
	Salt        string `json:"salt"`  // base64, 16 bytes
	Nonce       string `json:"nonce"` // base64, 12 bytes
}

const saltLen = 16

// WrapPrivateKey encrypts a private key with a passphrase-derived KEK
// (Argon2id) and returns a self-describing MMPKEKEY file. Passphrases
// shorter than 12 characters are rejected.
func WrapPrivateKey(key PrivateKey, passphrase string, params KDFParams) ([]byte, error) {
	if len(passphrase) < minPassphraseLength {
		return nil, matricerr.Invalid("passphrase must be at least %d characters", minPassphraseLength)
	}

	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, matricerr.Internal("failed to generate salt: %v", err)
	}
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, matricerr.Internal("failed to generate nonce: %v", err)
	}

	kek := argon2.IDKey([]byte(passphrase), salt, params.Time, params.MemoryKiB, params.Parallelism, dekLen)
	defer zero(kek)

	ciphertext, err := aeadSeal(kek, nonce, key[:], nil)
	if err != nil {
		return nil, err
	}

	header := keyfileHeader{
		Version:     1,
		KDF:         "argon2id",
		MemoryKiB:   params.MemoryKiB,
		Time:        params.Time,
		Parallelism: params.Parallelism,
		Salt:        base64.StdEncoding.EncodeToString(salt),
		Nonce:       base64.StdEncoding.EncodeToString(nonce),
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, matricerr.Internal("failed to encode keyfile header: %v", err)
	}

	out := make([]byte, 0, len(keyfileMagic)+4+len(headerJSON)+len(ciphertext))
	out = append(out, keyfileMagic...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(headerJSON)))
	out = append(out, lenBuf[:]...)
	out = append(out, headerJSON...)
	out = append(out, ciphertext...)
	return out, nil
}

// UnwrapPrivateKey decrypts an MMPKEKEY file with the given passphrase. As
// with envelope decryption, any failure collapses to a single opaque
// Crypto(InvalidKeyfile) error.
func UnwrapPrivateKey(data []byte, passphrase string) (PrivateKey, error) {
	var zero PrivateKey
	if len(data) < len(keyfileMagic)+4 {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "truncated keyfile")
	}
	if string(data[:len(keyfileMagic)]) != keyfileMagic {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "bad magic")
	}
	headerLen := binary.LittleEndian.Uint32(data[len(keyfileMagic) : len(keyfileMagic)+4])
	start := len(keyfileMagic) + 4
	end := start + int(headerLen)
	if end < start || end > len(data) {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "invalid header length")
	}
	var header keyfileHeader
	if err := json.Unmarshal(data[start:end], &header); err != nil {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "malformed header")
	}
	salt, err := base64.StdEncoding.DecodeString(header.Salt)
	if err != nil {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "malformed salt")
	}
	nonce, err := base64.StdEncoding.DecodeString(header.Nonce)
	if err != nil {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "malformed nonce")
	}

	kek := argon2.IDKey([]byte(passphrase), salt, header.Time, header.MemoryKiB, header.Parallelism, dekLen)
	defer zeroBytes(kek)

	plain, err := aeadOpen(kek, nonce, data[end:], nil)
	if err != nil || len(plain) != 32 {
		return zero, matricerr.Crypto(matricerr.CryptoInvalidKeyfile, "incorrect passphrase or corrupted file")
	}
	var out PrivateKey
	copy(out[:], plain)
	zeroBytes(plain)
	return out, nil
}

func zeroBytes(b []byte) { zero(b) }
