package vault

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipher_RoundTrip(t *testing.T) {
	c := NewCipher("a-secret-key-that-is-long-enough")

	encrypted, err := c.Encrypt("sk-test-12345")
	require.NoError(t, err)
	assert.True(t, IsEncrypted(encrypted))

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "sk-test-12345", decrypted)
}

func TestCipher_EncryptIfNeeded_Idempotent(t *testing.T) {
	c := NewCipher("another-secret-key-long-enough-too")

	once, err := c.EncryptIfNeeded("plain-value")
	require.NoError(t, err)
	require.True(t, IsEncrypted(once))

	twice, err := c.EncryptIfNeeded(once)
	require.NoError(t, err)

	// EncryptIfNeeded on an already-encrypted value is a no-op: the
	// ciphertext is unchanged (spec invariant 6).
	assert.Equal(t, once, twice)
}

func TestCipher_DecryptIfNeeded_PlaintextPassthrough(t *testing.T) {
	c := NewCipher("yet-another-secret-key-long-enough")

	out, err := c.DecryptIfNeeded("legacy-plaintext-value")
	require.NoError(t, err)
	assert.Equal(t, "legacy-plaintext-value", out)
}

func TestCipher_DifferentKeysProduceDifferentCiphertext(t *testing.T) {
	c1 := NewCipher("secret-one-padded-to-be-long-enough")
	c2 := NewCipher("secret-two-padded-to-be-long-enough")

	e1, err := c1.Encrypt("same-plaintext")
	require.NoError(t, err)
	e2, err := c2.Encrypt("same-plaintext")
	require.NoError(t, err)

	assert.NotEqual(t, e1, e2)

	_, err = c2.Decrypt(e1)
	assert.Error(t, err)
}
