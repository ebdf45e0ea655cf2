package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krypt.co/registry/config"
	"krypt.co/registry/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		BlobDir:      t.TempDir(),
		DatabasePath: filepath.Join(t.TempDir(), "registry.db"),
	}
}

// TestTwoHopHMACIntRoundTrip sends a SetInt/GetInt pair through a channel
// stack with two HMAC hops stacked on top of the loopback server.
func TestTwoHopHMACIntRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	id := "file://" + cfg.DatabasePath + "|hmac://k1|hmac://k2"

	h, err := Open(id, "d", cfg)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetInt("n", 0x0123456789abcdef))
	got, err := h.GetInt("n")
	require.NoError(t, err)
	assert.Equal(t, int64(0x0123456789abcdef), got)
}

// TestTypeChangeAcrossKinds sets a key as a string, then overwrites it as an
// int, and checks that GetValueType tracks the change and the string getter
// now fails.
func TestTypeChangeAcrossKinds(t *testing.T) {
	cfg := testConfig(t)
	id := "file://" + cfg.DatabasePath

	h, err := Open(id, "d", cfg)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetString("x", "abc"))
	kind, err := h.GetValueType("x")
	require.NoError(t, err)
	assert.Equal(t, store.KindString, kind)

	require.NoError(t, h.SetInt("x", 7))
	kind, err = h.GetValueType("x")
	require.NoError(t, err)
	assert.Equal(t, store.KindInt64, kind)

	_, err = h.GetString("x")
	require.Error(t, err)

	got, err := h.GetInt("x")
	require.NoError(t, err)
	assert.Equal(t, int64(7), got)
}

// TestBlobFileRemovedOnTypeChange sets a key as a blob, then overwrites it
// as an int, and checks that the blob can no longer be retrieved and that
// its file under the blob directory is gone.
func TestBlobFileRemovedOnTypeChange(t *testing.T) {
	cfg := testConfig(t)
	id := "file://" + cfg.DatabasePath

	h, err := Open(id, "d", cfg)
	require.NoError(t, err)
	defer h.Close()

	want := []byte{0x42, 0x21, 0x13, 0x23}
	require.NoError(t, h.SetBlob("b", want))

	got, err := h.GetBlob("b")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	require.NoError(t, h.SetInt("b", 5))

	_, err = h.GetBlob("b")
	require.Error(t, err)

	_, err = os.Stat(filepath.Join(cfg.BlobDir, "d", "b"))
	require.True(t, os.IsNotExist(err))
}

// TestEnumKeysSortedAscending checks that EnumKeys returns only the keys
// matching the glob pattern, sorted ascending.
func TestEnumKeysSortedAscending(t *testing.T) {
	cfg := testConfig(t)
	id := "file://" + cfg.DatabasePath

	h, err := Open(id, "enum", cfg)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetInt("key3", 0))
	require.NoError(t, h.SetInt("key1", 0))
	require.NoError(t, h.SetInt("key2", 0))
	require.NoError(t, h.SetInt("no match", 0))

	keys, err := h.EnumKeys("key*")
	require.NoError(t, err)
	assert.Equal(t, []string{"key1", "key2", "key3"}, keys)
}

func TestDoubleRoundTripThroughRegistry(t *testing.T) {
	cfg := testConfig(t)
	id := "file://" + cfg.DatabasePath + "|hmac://secret"

	h, err := Open(id, "d", cfg)
	require.NoError(t, err)
	defer h.Close()

	require.NoError(t, h.SetDouble("pi", 3.14159))
	got, err := h.GetDouble("pi")
	require.NoError(t, err)
	assert.InDelta(t, 3.14159, got, 1e-12)
}

func TestOpenRejectsEmptyDomain(t *testing.T) {
	cfg := testConfig(t)
	_, err := Open("file://"+cfg.DatabasePath, "", cfg)
	require.Error(t, err)
}

func TestOpenRejectsUnknownIdentifier(t *testing.T) {
	cfg := testConfig(t)
	_, err := Open("not-a-valid-identifier", "d", cfg)
	require.Error(t, err)
}
