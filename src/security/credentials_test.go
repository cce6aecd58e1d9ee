package security

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "super-secret-api-key"

	encrypted, err := EncryptString(plaintext)
	require.NoError(t, err)
	require.NotEqual(t, plaintext, encrypted)

	decrypted, err := DecryptString(encrypted)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestEncryptProducesDistinctCiphertextsForSamePlaintext(t *testing.T) {
	a, err := EncryptString("value")
	require.NoError(t, err)
	b, err := EncryptString("value")
	require.NoError(t, err)

	require.NotEqual(t, a, b)
}

func TestDecryptRejectsTamperedBlob(t *testing.T) {
	encrypted, err := EncryptString("value")
	require.NoError(t, err)

	tampered := encrypted[:len(encrypted)-4] + "abcd"
	_, err = DecryptString(tampered)
	require.Error(t, err)
}
