package cryptox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBox(t *testing.T) {
	box, err := NewBox("test-secret")
	require.NoError(t, err)

	t.Run("seal and open roundtrip", func(t *testing.T) {
		sealed, err := box.Seal("very-secret-access-token")
		require.NoError(t, err)
		require.NotEqual(t, "very-secret-access-token", sealed, "token must not be stored in plain text")

		plain, err := box.Open(sealed)
		require.NoError(t, err)
		require.Equal(t, "very-secret-access-token", plain)
	})

	t.Run("empty stays empty", func(t *testing.T) {
		sealed, err := box.Seal("")
		require.NoError(t, err)
		require.Equal(t, "", sealed)

		plain, err := box.Open("")
		require.NoError(t, err)
		require.Equal(t, "", plain)
	})

	t.Run("unique ciphertext per seal", func(t *testing.T) {
		first, err := box.Seal("token")
		require.NoError(t, err)
		second, err := box.Seal("token")
		require.NoError(t, err)

		require.NotEqual(t, first, second, "nonce must be random per seal")
	})

	t.Run("wrong key fails", func(t *testing.T) {
		other, err := NewBox("another-secret")
		require.NoError(t, err)

		sealed, err := box.Seal("token")
		require.NoError(t, err)

		_, err = other.Open(sealed)
		require.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("garbage input fails", func(t *testing.T) {
		_, err := box.Open("not-base64-&&&&")
		require.ErrorIs(t, err, ErrCiphertextInvalid)
	})

	t.Run("empty secret rejected", func(t *testing.T) {
		_, err := NewBox("")
		require.Error(t, err)
	})
}
