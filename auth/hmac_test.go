package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeVerifyRoundTrip(t *testing.T) {
	key := []byte("thekey")
	msg := []byte("hello registry")

	tag, err := Compute(key, msg)
	require.NoError(t, err)
	require.Len(t, tag, Size)

	require.NoError(t, Verify(key, msg, tag))
}

// TestTamperedMessageFailsVerification mirrors spec scenario S6: flipping a
// bit in the transported message before the HMAC tag must fail verification.
func TestTamperedMessageFailsVerification(t *testing.T) {
	key := []byte("thekey")
	msg := []byte("hello registry")

	tag, err := Compute(key, msg)
	require.NoError(t, err)

	tampered := append([]byte(nil), msg...)
	tampered[0] ^= 0x01

	err = Verify(key, tampered, tag)
	require.Error(t, err)
}

func TestVerifyWrongKeyFails(t *testing.T) {
	msg := []byte("hello registry")
	tag, err := Compute([]byte("k1"), msg)
	require.NoError(t, err)

	require.Error(t, Verify([]byte("k2"), msg, tag))
}

func TestEmptyKeyIsArgumentError(t *testing.T) {
	_, err := Compute(nil, []byte("m"))
	require.Error(t, err)
	require.Error(t, Verify(nil, []byte("m"), make([]byte, Size)))
}
