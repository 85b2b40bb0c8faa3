package pke

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"matric/internal/matricerr"
)

const (
	dekLen       = 32
	nonceLen     = 12
	maxRecipients = 100
)

var hkdfInfo = []byte("matric-mmpke01-kek")

// Encrypt produces an MMPKE01 envelope encrypting plaintext for every
// recipient public key. filename, if non-empty, is recorded in the (plain,
// unauthenticated beyond the header) header metadata.
func Encrypt(plaintext []byte, recipients []PublicKey, filename string) ([]byte, error) {
	if len(recipients) == 0 {
		return nil, matricerr.Invalid("at least one recipient is required")
	}
	if len(recipients) > maxRecipients {
		return nil, matricerr.Invalid("at most %d recipients are supported", maxRecipients)
	}

	ephemeral, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}
	defer ephemeral.Private.Zero()

	dek := make([]byte, dekLen)
	if _, err := rand.Read(dek); err != nil {
		return nil, matricerr.Internal("failed to generate data key: %v", err)
	}
	defer zero(dek)

	dataNonce := make([]byte, nonceLen)
	if _, err := rand.Read(dataNonce); err != nil {
		return nil, matricerr.Internal("failed to generate nonce: %v", err)
	}

	blocks := make([]RecipientBlock, 0, len(recipients))
	for _, recipPub := range recipients {
		kek, err := deriveKEK(ephemeral.Private, recipPub)
		if err != nil {
			return nil, err
		}
		dekNonce := make([]byte, nonceLen)
		if _, err := rand.Read(dekNonce); err != nil {
			zero(kek)
			return nil, matricerr.Internal("failed to generate nonce: %v", err)
		}
		encDEK, err := aeadSeal(kek, dekNonce, dek, nil)
		zero(kek)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, RecipientBlock{
			Address:      Address(recipPub),
			EncryptedDEK: base64.StdEncoding.EncodeToString(encDEK),
			DEKNonce:     base64.StdEncoding.EncodeToString(dekNonce),
		})
	}

	ciphertext, err := aeadSeal(dek, dataNonce, plaintext, nil)
	if err != nil {
		return nil, err
	}

	env := Envelope{
		Header: Header{
			Version:          1,
			EphemeralPubkey:  ephemeral.Public.Base64(),
			Recipients:       blocks,
			DataNonce:        base64.StdEncoding.EncodeToString(dataNonce),
			OriginalFilename: filename,
			CreatedAt:        nowRFC3339(),
		},
		Ciphertext: ciphertext,
	}
	return env.Marshal()
}

// Decrypt parses data as an MMPKE01 envelope and decrypts it for the holder
// of priv. Bad framing or an invalid header returns Crypto(InvalidFormat)
// from ParseEnvelope; every later failure — no matching recipient block,
// AEAD authentication failure — returns a single opaque Crypto(Decryption)
// error, so callers cannot tell which cryptographic step failed.
func Decrypt(data []byte, priv PrivateKey) ([]byte, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}

	myPub, err := priv.PublicKey()
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	myAddr := Address(myPub)

	var block *RecipientBlock
	for i := range env.Header.Recipients {
		if env.Header.Recipients[i].Address == myAddr {
			block = &env.Header.Recipients[i]
			break
		}
	}
	if block == nil {
		return nil, opaqueDecryptionFailure()
	}

	ephemeralPub, err := PublicKeyFromBase64(env.Header.EphemeralPubkey)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	kek, err := deriveKEK(priv, ephemeralPub)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	defer zero(kek)

	encDEK, err := base64.StdEncoding.DecodeString(block.EncryptedDEK)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	dekNonce, err := base64.StdEncoding.DecodeString(block.DEKNonce)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	dek, err := aeadOpen(kek, dekNonce, encDEK, nil)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	defer zero(dek)

	dataNonce, err := base64.StdEncoding.DecodeString(env.Header.DataNonce)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	plaintext, err := aeadOpen(dek, dataNonce, env.Ciphertext, nil)
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	return plaintext, nil
}

// CanDecrypt reports whether priv's address appears among data's recipient
// blocks, without attempting decryption.
func CanDecrypt(data []byte, priv PrivateKey) bool {
	env, err := ParseEnvelope(data)
	if err != nil {
		return false
	}
	pub, err := priv.PublicKey()
	if err != nil {
		return false
	}
	addr := Address(pub)
	for _, r := range env.Header.Recipients {
		if r.Address == addr {
			return true
		}
	}
	return false
}

// Recipients returns the addresses of every recipient block in an envelope,
// without requiring any private key.
func Recipients(data []byte) ([]string, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(env.Header.Recipients))
	for i, r := range env.Header.Recipients {
		out[i] = r.Address
	}
	return out, nil
}

func opaqueDecryptionFailure() error {
	return matricerr.Crypto(matricerr.CryptoDecryption, "corrupted or wrong key")
}

func deriveKEK(priv PrivateKey, pub PublicKey) ([]byte, error) {
	shared, err := curve25519.X25519(priv[:], pub[:])
	if err != nil {
		return nil, opaqueDecryptionFailure()
	}
	defer zero(shared)
	kek := make([]byte, dekLen)
	kdf := hkdf.New(sha256.New, shared, nil, hkdfInfo)
	if _, err := io.ReadFull(kdf, kek); err != nil {
		return nil, matricerr.Internal("hkdf expansion failed: %v", err)
	}
	return kek, nil
}

func aeadSeal(key, nonce, plaintext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, matricerr.Internal("failed to init cipher: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, matricerr.Internal("failed to init gcm: %v", err)
	}
	return gcm.Seal(nil, nonce, plaintext, aad), nil
}

func aeadOpen(key, nonce, ciphertext, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, aad)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
