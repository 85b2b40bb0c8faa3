package pke

import (
	"github.com/mr-tron/base58"
	"lukechampine.com/blake3"

	"matric/internal/matricerr"
)

const (
	addressPrefix   = "mm:"
	addressVersion  = 0x01
	hashLen         = 20
	checksumLen     = 4
	decodedLen      = 1 + hashLen + checksumLen // version + hash + checksum = 25
)

// Address returns the human-readable, self-verifying address for a public
// key: "mm:" + Base58(version || BLAKE3(pubkey)[..20] || checksum[..4]),
// where checksum = BLAKE3(version || hash)[..4].
func Address(pub PublicKey) string {
	payload := addressPayload(pub)
	return addressPrefix + base58.Encode(payload)
}

func addressPayload(pub PublicKey) []byte {
	h := blake3.Sum256(pub[:])
	versionAndHash := make([]byte, 0, 1+hashLen)
	versionAndHash = append(versionAndHash, addressVersion)
	versionAndHash = append(versionAndHash, h[:hashLen]...)

	checksum := blake3.Sum256(versionAndHash)

	out := make([]byte, 0, decodedLen)
	out = append(out, versionAndHash...)
	out = append(out, checksum[:checksumLen]...)
	return out
}

// ParseAddress validates and decodes an address string, returning the
// 20-byte public key hash it commits to (the address does not carry the
// full public key, only its hash: callers match it against known
// recipients' precomputed hashes).
func ParseAddress(addr string) ([hashLen]byte, error) {
	var out [hashLen]byte
	rest, ok := trimPrefix(addr, addressPrefix)
	if !ok {
		return out, matricerr.Crypto(matricerr.CryptoInvalidAddress, "missing mm: prefix")
	}
	decoded, err := base58.Decode(rest)
	if err != nil {
		return out, matricerr.Crypto(matricerr.CryptoInvalidAddress, "invalid base58 encoding")
	}
	if len(decoded) != decodedLen {
		return out, matricerr.Crypto(matricerr.CryptoInvalidAddress, "unexpected decoded length")
	}
	if decoded[0] != addressVersion {
		return out, matricerr.Crypto(matricerr.CryptoInvalidAddress, "unsupported version")
	}
	versionAndHash := decoded[:1+hashLen]
	gotChecksum := decoded[1+hashLen:]
	wantChecksum := blake3.Sum256(versionAndHash)
	for i := 0; i < checksumLen; i++ {
		if gotChecksum[i] != wantChecksum[i] {
			return out, matricerr.Crypto(matricerr.CryptoInvalidAddress, "checksum mismatch")
		}
	}
	copy(out[:], versionAndHash[1:])
	return out, nil
}

// MatchesAddress reports whether pub hashes to the same 20-byte value
// committed to by addr, without needing to re-derive the address string.
func MatchesAddress(pub PublicKey, addr string) bool {
	hash, err := ParseAddress(addr)
	if err != nil {
		return false
	}
	h := blake3.Sum256(pub[:])
	for i := 0; i < hashLen; i++ {
		if h[i] != hash[i] {
			return false
		}
	}
	return true
}

func trimPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}
