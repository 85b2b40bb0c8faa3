package pke

import (
	"encoding/binary"
	"encoding/json"
	"time"

	"matric/internal/matricerr"
)

const magic = "MMPKE01\n"

// RecipientBlock is one recipient's wrapped-DEK entry in the MMPKE01 header.
type RecipientBlock struct {
	Address      string `json:"address"`
	EncryptedDEK string `json:"encrypted_dek"` // base64
	DEKNonce     string `json:"dek_nonce"`     // base64, 12 bytes
}

// Header is the MMPKE01 envelope header, serialized as JSON between the
// magic/length prefix and the ciphertext.
type Header struct {
	Version          int              `json:"version"`
	EphemeralPubkey  string           `json:"ephemeral_pubkey"` // base64, 32 bytes
	Recipients       []RecipientBlock `json:"recipients"`
	DataNonce        string           `json:"data_nonce"` // base64, 12 bytes
	OriginalFilename string           `json:"original_filename,omitempty"`
	CreatedAt        string           `json:"created_at,omitempty"` // RFC3339
}

// Envelope is a fully decoded MMPKE01 file: header plus raw ciphertext
// (AEAD tag included, per AES-256-GCM's output convention).
type Envelope struct {
	Header     Header
	Ciphertext []byte
}

// Marshal serializes an Envelope to the MMPKE01 wire format:
// "MMPKE01\n" || u32_le(header_len) || header_json || ciphertext.
func (e Envelope) Marshal() ([]byte, error) {
	headerJSON, err := json.Marshal(e.Header)
	if err != nil {
		return nil, matricerr.Crypto(matricerr.CryptoInvalidFormat, "failed to encode header")
	}
	out := make([]byte, 0, len(magic)+4+len(headerJSON)+len(e.Ciphertext))
	out = append(out, magic...)
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(headerJSON)))
	out = append(out, lenBuf[:]...)
	out = append(out, headerJSON...)
	out = append(out, e.Ciphertext...)
	return out, nil
}

// ParseEnvelope validates the MMPKE01 checksum (magic + length framing) and
// parses the header before any cryptographic operation is attempted, per
// the invariant that the checksum verifies before decryption begins.
func ParseEnvelope(data []byte) (Envelope, error) {
	if len(data) < len(magic)+4 {
		return Envelope{}, matricerr.Crypto(matricerr.CryptoInvalidFormat, "truncated envelope")
	}
	if string(data[:len(magic)]) != magic {
		return Envelope{}, matricerr.Crypto(matricerr.CryptoInvalidFormat, "bad magic")
	}
	headerLen := binary.LittleEndian.Uint32(data[len(magic) : len(magic)+4])
	headerStart := len(magic) + 4
	headerEnd := headerStart + int(headerLen)
	if headerEnd < headerStart || headerEnd > len(data) {
		return Envelope{}, matricerr.Crypto(matricerr.CryptoInvalidFormat, "invalid header length")
	}
	var h Header
	if err := json.Unmarshal(data[headerStart:headerEnd], &h); err != nil {
		return Envelope{}, matricerr.Crypto(matricerr.CryptoInvalidFormat, "malformed header json")
	}
	if h.Version != 1 {
		return Envelope{}, matricerr.Crypto(matricerr.CryptoInvalidFormat, "unsupported version")
	}
	return Envelope{Header: h, Ciphertext: data[headerEnd:]}, nil
}

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339) }
