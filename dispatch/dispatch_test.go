package dispatch

import (
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"krypt.co/registry/errcode"
	"krypt.co/registry/store"
	"krypt.co/registry/wire"
)

// fakeStore is an in-memory store.Store double, avoiding a SQLite dependency
// in these dispatcher-focused tests; the SQLite backend is exercised through
// the registry package's tests instead.
type fakeStore struct {
	ints    map[[2]string]int64
	doubles map[[2]string]float64
	strings map[[2]string]string
	blobs   map[[2]string][]byte
	kinds   map[[2]string]store.Kind
	closed  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		ints:    map[[2]string]int64{},
		doubles: map[[2]string]float64{},
		strings: map[[2]string]string{},
		blobs:   map[[2]string][]byte{},
		kinds:   map[[2]string]store.Kind{},
	}
}

func dk(domain, key string) [2]string { return [2]string{domain, key} }

func (f *fakeStore) clearOther(domain, key string, keep store.Kind) {
	k := dk(domain, key)
	if keep != store.KindInt64 {
		delete(f.ints, k)
	}
	if keep != store.KindDouble {
		delete(f.doubles, k)
	}
	if keep != store.KindString {
		delete(f.strings, k)
	}
	if keep != store.KindBlob {
		delete(f.blobs, k)
	}
}

func (f *fakeStore) GetInt(domain, key string) (int64, error) {
	k := dk(domain, key)
	kind, ok := f.kinds[k]
	if !ok {
		return 0, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "no such key")
	}
	if kind != store.KindInt64 {
		return 0, errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "type mismatch")
	}
	return f.ints[k], nil
}

func (f *fakeStore) SetInt(domain, key string, value int64) error {
	k := dk(domain, key)
	f.clearOther(domain, key, store.KindInt64)
	f.ints[k] = value
	f.kinds[k] = store.KindInt64
	return nil
}

func (f *fakeStore) GetDouble(domain, key string) (float64, error) {
	k := dk(domain, key)
	kind, ok := f.kinds[k]
	if !ok {
		return 0, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "no such key")
	}
	if kind != store.KindDouble {
		return 0, errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "type mismatch")
	}
	return f.doubles[k], nil
}

func (f *fakeStore) SetDouble(domain, key string, value float64) error {
	k := dk(domain, key)
	f.clearOther(domain, key, store.KindDouble)
	f.doubles[k] = value
	f.kinds[k] = store.KindDouble
	return nil
}

func (f *fakeStore) GetString(domain, key string) (string, error) {
	k := dk(domain, key)
	kind, ok := f.kinds[k]
	if !ok {
		return "", errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "no such key")
	}
	if kind != store.KindString {
		return "", errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "type mismatch")
	}
	return f.strings[k], nil
}

func (f *fakeStore) SetString(domain, key string, value string) error {
	k := dk(domain, key)
	f.clearOther(domain, key, store.KindString)
	f.strings[k] = value
	f.kinds[k] = store.KindString
	return nil
}

func (f *fakeStore) GetBlob(domain, key string) ([]byte, error) {
	k := dk(domain, key)
	kind, ok := f.kinds[k]
	if !ok {
		return nil, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "no such key")
	}
	if kind != store.KindBlob {
		return nil, errcode.New(errcode.DATABASE_TYPE_MISMATCH, errcode.KindTypeMismatch, "type mismatch")
	}
	return f.blobs[k], nil
}

func (f *fakeStore) SetBlob(domain, key string, value []byte) error {
	k := dk(domain, key)
	f.clearOther(domain, key, store.KindBlob)
	f.blobs[k] = value
	f.kinds[k] = store.KindBlob
	return nil
}

func (f *fakeStore) GetType(domain, key string) (store.Kind, error) {
	k := dk(domain, key)
	kind, ok := f.kinds[k]
	if !ok {
		return 0, errcode.New(errcode.DATABASE_NO_SUCH_KEY, errcode.KindNoSuchKey, "no such key")
	}
	return kind, nil
}

func (f *fakeStore) EnumKeys(domain, pattern string) ([]string, error) {
	if pattern == "" {
		return nil, nil
	}
	var out []string
	for k := range f.kinds {
		if k[0] != domain {
			continue
		}
		ok, err := filepath.Match(pattern, k[1])
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, k[1])
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeStore) Close() error {
	f.closed = true
	return nil
}

func request(tag wire.Tag, format string, args ...interface{}) []byte {
	p := wire.New()
	if format != "" {
		_ = p.Pack(format, args...)
	}
	return wire.Encode(tag, p.Bytes())
}

func decodeReply(t *testing.T, reply []byte) wire.Packet {
	t.Helper()
	pkt, err := wire.Decode(reply)
	require.NoError(t, err)
	return pkt
}

func TestGetSetInt(t *testing.T) {
	d := New(newFakeStore())

	reply, err := d.Dispatch(request(wire.TagSetInt, "ssl", "d", "n", int64(0x0123456789abcdef)))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	assert.Equal(t, wire.TagOK, pkt.Tag)

	reply, err = d.Dispatch(request(wire.TagGetInt, "ss", "d", "n"))
	require.NoError(t, err)
	pkt = decodeReply(t, reply)
	require.Equal(t, wire.TagInt, pkt.Tag)
	var got int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &got))
	assert.Equal(t, int64(0x0123456789abcdef), got)
}

func TestGetIntNoSuchKey(t *testing.T) {
	d := New(newFakeStore())
	reply, err := d.Dispatch(request(wire.TagGetInt, "ss", "d", "missing"))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	require.Equal(t, wire.TagError, pkt.Tag)
	var code int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &code))
	assert.Equal(t, int64(errcode.DATABASE_NO_SUCH_KEY), code)
}

func TestTypeMismatchAcrossKinds(t *testing.T) {
	d := New(newFakeStore())

	_, err := d.Dispatch(request(wire.TagSetString, "sss", "d", "x", "abc"))
	require.NoError(t, err)

	reply, err := d.Dispatch(request(wire.TagGetValueType, "ss", "d", "x"))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	require.Equal(t, wire.TagType, pkt.Tag)
	var kind int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &kind))
	assert.Equal(t, int64(store.KindString), kind)

	_, err = d.Dispatch(request(wire.TagSetInt, "ssl", "d", "x", int64(7)))
	require.NoError(t, err)

	reply, err = d.Dispatch(request(wire.TagGetString, "ss", "d", "x"))
	require.NoError(t, err)
	pkt = decodeReply(t, reply)
	require.Equal(t, wire.TagError, pkt.Tag)
	var code int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &code))
	assert.Equal(t, int64(errcode.DATABASE_TYPE_MISMATCH), code)

	reply, err = d.Dispatch(request(wire.TagGetInt, "ss", "d", "x"))
	require.NoError(t, err)
	pkt = decodeReply(t, reply)
	require.Equal(t, wire.TagInt, pkt.Tag)
	var got int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &got))
	assert.Equal(t, int64(7), got)
}

func TestBlobRoundTrip(t *testing.T) {
	d := New(newFakeStore())
	want := []byte{0x42, 0x21, 0x13, 0x23}

	_, err := d.Dispatch(request(wire.TagSetBlob, "ssb", "d", "b", want))
	require.NoError(t, err)

	reply, err := d.Dispatch(request(wire.TagGetBlob, "ss", "d", "b"))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	require.Equal(t, wire.TagBlob, pkt.Tag)
	var got []byte
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("b", &got))
	assert.Equal(t, want, got)
}

func TestEnumKeysOrderingAndSize(t *testing.T) {
	d := New(newFakeStore())
	for _, k := range []string{"key3", "key1", "key2", "no match"} {
		_, err := d.Dispatch(request(wire.TagSetInt, "ssl", "enum", k, int64(0)))
		require.NoError(t, err)
	}

	reply, err := d.Dispatch(request(wire.TagGetEnum, "ss", "enum", "key*"))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	require.Equal(t, wire.TagEnum, pkt.Tag)

	var count int64
	var blob []byte
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("lb", &count, &blob))
	assert.Equal(t, int64(3), count)
	assert.Equal(t, 15, len(blob))
	assert.Equal(t, "key1\x00key2\x00key3\x00", string(blob))
}

func TestEnumKeysEmptyResult(t *testing.T) {
	d := New(newFakeStore())
	reply, err := d.Dispatch(request(wire.TagGetEnum, "ss", "enum", "nothing*"))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	require.Equal(t, wire.TagEnum, pkt.Tag)
	var count int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &count))
	assert.Equal(t, int64(0), count)
}

func TestShutdownClosesStoreAndRejectsFurtherDispatch(t *testing.T) {
	fs := newFakeStore()
	d := New(fs)

	reply, err := d.Dispatch(request(wire.TagShutdown, ""))
	require.NoError(t, err)
	assert.Nil(t, reply)
	assert.True(t, fs.closed)

	_, err = d.Dispatch(request(wire.TagGetInt, "ss", "d", "n"))
	require.Error(t, err)
}

func TestUnrecognizedTagReturnsUnknownError(t *testing.T) {
	d := New(newFakeStore())
	reply, err := d.Dispatch(wire.Encode(wire.Tag(200), nil))
	require.NoError(t, err)
	pkt := decodeReply(t, reply)
	require.Equal(t, wire.TagError, pkt.Tag)
	var code int64
	require.NoError(t, wire.FromBytes(pkt.Payload).Unpack("l", &code))
	assert.Equal(t, int64(errcode.UNKNOWN), code)
}

func TestDecodeEmptyRequestIsDispatcherError(t *testing.T) {
	d := New(newFakeStore())
	_, err := d.Dispatch(nil)
	require.Error(t, err)
}
