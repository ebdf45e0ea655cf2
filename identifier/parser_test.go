package identifier

import (
	"testing"

	"github.com/stretchr/testify/require"

	"krypt.co/registry/channel"
)

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(req []byte) ([]byte, error) { return req, nil }
func (nopDispatcher) Close() error                         { return nil }

func fakeFactory(path string) (channel.Dispatcher, error) {
	return nopDispatcher{}, nil
}

func TestParseFileOnly(t *testing.T) {
	c, err := Parse("file://mydb", fakeFactory)
	require.NoError(t, err)
	require.IsType(t, &channel.LoopbackChannel{}, c)
}

func TestParseFileWithOneHMAC(t *testing.T) {
	c, err := Parse("file://mydb|hmac://k1", fakeFactory)
	require.NoError(t, err)
	require.IsType(t, &channel.HMACChannel{}, c)
}

func TestParseFileWithTwoHMAC(t *testing.T) {
	c, err := Parse("file://mydb|hmac://k1|hmac://k2", fakeFactory)
	require.NoError(t, err)
	require.IsType(t, &channel.HMACChannel{}, c)
}

func TestParseEmptyHMACKeyIsPassThrough(t *testing.T) {
	_, err := Parse("file://mydb|hmac://", fakeFactory)
	require.NoError(t, err)
}

func TestParseMissingFileSchemeFails(t *testing.T) {
	_, err := Parse("hmac://k1|file://mydb", fakeFactory)
	require.Error(t, err)
}

func TestParseUnrecognizedSchemeFails(t *testing.T) {
	_, err := Parse("file://mydb|ftp://x", fakeFactory)
	require.Error(t, err)
}

func TestParseTrailingDelimiterFails(t *testing.T) {
	_, err := Parse("file://mydb|hmac://k1|", fakeFactory)
	require.Error(t, err)
}

func TestParseEmptyIdentifierFails(t *testing.T) {
	_, err := Parse("", fakeFactory)
	require.Error(t, err)
}

func TestParseEmptyPathFails(t *testing.T) {
	_, err := Parse("file://", fakeFactory)
	require.Error(t, err)
}
