package pke

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	addr := Address(kp.Public)
	require.True(t, MatchesAddress(kp.Public, addr))

	hash, err := ParseAddress(addr)
	require.NoError(t, err)
	require.Len(t, hash, 20)
}

func TestAddressFlippedCharacterFailsChecksum(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	addr := Address(kp.Public)

	// Flip one character in the base58 body (not the "mm:" prefix).
	runes := []rune(addr)
	body := runes[3:]
	for i, r := range body {
		if r != 'A' {
			body[i] = 'A'
			break
		}
		body[i] = 'B'
		break
	}
	copy(runes[3:], body)
	tampered := string(runes)

	_, err = ParseAddress(tampered)
	require.Error(t, err)
}

func TestAddressTooShortFails(t *testing.T) {
	_, err := ParseAddress("mm:abc")
	require.Error(t, err)
}

func TestEncryptDecryptMultiRecipient(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)
	eve, err := GenerateKeypair()
	require.NoError(t, err)

	plaintext := []byte("secret")
	env, err := Encrypt(plaintext, []PublicKey{alice.Public, bob.Public}, "m.txt")
	require.NoError(t, err)

	got, err := Decrypt(env, alice.Private)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	got, err = Decrypt(env, bob.Private)
	require.NoError(t, err)
	require.Equal(t, plaintext, got)

	_, err = Decrypt(env, eve.Private)
	require.Error(t, err)
}

func TestEncryptNonDeterministic(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)

	e1, err := Encrypt([]byte("same"), []PublicKey{alice.Public}, "")
	require.NoError(t, err)
	e2, err := Encrypt([]byte("same"), []PublicKey{alice.Public}, "")
	require.NoError(t, err)
	require.NotEqual(t, e1, e2)
}

func TestEncryptRejectsEmptyRecipients(t *testing.T) {
	_, err := Encrypt([]byte("x"), nil, "")
	require.Error(t, err)
}

func TestEncryptRejectsTooManyRecipients(t *testing.T) {
	recipients := make([]PublicKey, maxRecipients+1)
	for i := range recipients {
		kp, err := GenerateKeypair()
		require.NoError(t, err)
		recipients[i] = kp.Public
	}
	_, err := Encrypt([]byte("x"), recipients, "")
	require.Error(t, err)

	recipients = recipients[:maxRecipients]
	_, err = Encrypt([]byte("x"), recipients, "")
	require.NoError(t, err)
}

func TestEncryptEmptyAndLargePlaintext(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)

	env, err := Encrypt([]byte{}, []PublicKey{alice.Public}, "")
	require.NoError(t, err)
	got, err := Decrypt(env, alice.Private)
	require.NoError(t, err)
	require.Empty(t, got)

	large := make([]byte, 5*1024*1024)
	for i := range large {
		large[i] = byte(i)
	}
	env, err = Encrypt(large, []PublicKey{alice.Public}, "")
	require.NoError(t, err)
	got, err = Decrypt(env, alice.Private)
	require.NoError(t, err)
	require.Equal(t, large, got)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	env, err := Encrypt([]byte("hello world"), []PublicKey{alice.Public}, "")
	require.NoError(t, err)
	env[len(env)-1] ^= 0xFF

	_, err = Decrypt(env, alice.Private)
	require.Error(t, err)
}

func TestCanDecryptAndRecipients(t *testing.T) {
	alice, err := GenerateKeypair()
	require.NoError(t, err)
	bob, err := GenerateKeypair()
	require.NoError(t, err)
	env, err := Encrypt([]byte("hi"), []PublicKey{alice.Public}, "")
	require.NoError(t, err)

	require.True(t, CanDecrypt(env, alice.Private))
	require.False(t, CanDecrypt(env, bob.Private))

	recipients, err := Recipients(env)
	require.NoError(t, err)
	require.Equal(t, []string{Address(alice.Public)}, recipients)
}

func TestKeystoreRoundTrip(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)

	wrapped, err := WrapPrivateKey(kp.Private, "correct-horse-battery", DefaultKDFParams())
	require.NoError(t, err)

	got, err := UnwrapPrivateKey(wrapped, "correct-horse-battery")
	require.NoError(t, err)
	require.Equal(t, kp.Private, got)
}

func TestKeystoreWrongPassphraseFails(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	wrapped, err := WrapPrivateKey(kp.Private, "correct-passphrase", DefaultKDFParams())
	require.NoError(t, err)

	_, err = UnwrapPrivateKey(wrapped, "wrong-passphrase!!!")
	require.Error(t, err)
}

func TestKeystoreRejectsShortPassphrase(t *testing.T) {
	kp, err := GenerateKeypair()
	require.NoError(t, err)
	_, err = WrapPrivateKey(kp.Private, "short", DefaultKDFParams())
	require.Error(t, err)
}
