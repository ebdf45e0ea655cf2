// Package dispatch implements the Request Dispatcher:
// it decodes a tagged request packet, invokes the Value Store, and encodes a
// tagged reply, mapping store errors onto ERROR packets. It is grounded on
// original_source/server/server.c's server_process switch, translating the
// original's packet-type switch and per-branch bunpack/bpack calls into the
// wire package's format-string Packer/Unpacker.
package dispatch

import (
	"krypt.co/registry/errcode"
	"krypt.co/registry/logging"
	"krypt.co/registry/store"
	"krypt.co/registry/store/sqlitestore"
	"krypt.co/registry/wire"
)

var log = logging.MustGetLogger("dispatch")

// Open opens the SQLite-backed Value Store at path, using blobDir for blob
// file storage, and returns a Dispatcher bound to it. registry.Open supplies
// this (closed over a configured blobDir) as the identifier package's
// DispatcherFactory.
func Open(path, blobDir string) (*Dispatcher, error) {
	s, err := sqlitestore.Open(path, blobDir)
	if err != nil {
		return nil, err
	}
	return New(s), nil
}

// Dispatcher owns a Value Store for its lifetime and satisfies
// channel.Dispatcher. It is single-threaded: Dispatch is never called
// concurrently with itself by a correctly wired channel stack.
type Dispatcher struct {
	store  store.Store
	closed bool
}

// New returns a Dispatcher bound to store. The dispatcher owns store and
// closes it when Close or Shutdown is called.
func New(s store.Store) *Dispatcher {
	return &Dispatcher{store: s}
}

// Dispatch decodes one request packet and returns one reply packet. It never
// returns a non-nil error for a well-formed request: store and decode
// failures are transported as an ERROR reply packet instead. A non-nil error
// here means the dispatcher itself cannot produce a reply (a malformed
// request with no tag byte, or a dispatcher already shut down).
func (d *Dispatcher) Dispatch(request []byte) ([]byte, error) {
	if d.closed {
		return nil, errcode.New(errcode.REGISTRY_INVALID_STATE, errcode.KindInvalidState, "dispatch: dispatcher is shut down")
	}

	pkt, err := wire.Decode(request)
	if err != nil {
		return nil, err
	}

	reply, shutdown := d.handle(pkt)
	if shutdown {
		d.closed = true
	}
	return reply, nil
}

// Shutdown marks the dispatcher closed and releases its Value Store. Unlike
// the original server.c, which exits the process on a SHUTDOWN packet, an
// in-process library cannot terminate its host; subsequent Dispatch calls
// instead fail with errcode.KindInvalidState. This is a deliberate deviation
// documented in DESIGN.md.
func (d *Dispatcher) Shutdown() error {
	if d.closed {
		return nil
	}
	d.closed = true
	return d.store.Close()
}

// Close is the channel.Dispatcher hook; it is equivalent to Shutdown.
func (d *Dispatcher) Close() error {
	return d.Shutdown()
}

// handle dispatches one decoded packet to its store operation and returns
// the encoded reply plus whether this request was a shutdown request.
func (d *Dispatcher) handle(pkt wire.Packet) (reply []byte, shutdown bool) {
	switch pkt.Tag {
	case wire.TagGetInt:
		return d.getInt(pkt.Payload), false
	case wire.TagSetInt:
		return d.setInt(pkt.Payload), false
	case wire.TagGetDouble:
		return d.getDouble(pkt.Payload), false
	case wire.TagSetDouble:
		return d.setDouble(pkt.Payload), false
	case wire.TagGetString:
		return d.getString(pkt.Payload), false
	case wire.TagSetString:
		return d.setString(pkt.Payload), false
	case wire.TagGetBlob:
		return d.getBlob(pkt.Payload), false
	case wire.TagSetBlob:
		return d.setBlob(pkt.Payload), false
	case wire.TagGetEnum:
		return d.getEnum(pkt.Payload), false
	case wire.TagGetValueType:
		return d.getValueType(pkt.Payload), false
	case wire.TagShutdown:
		if err := d.store.Close(); err != nil {
			log.Errorf("dispatch: store close on shutdown: %v", err)
		}
		return nil, true
	default:
		log.Debugf("dispatch: unrecognized request tag %d", pkt.Tag)
		return errorReply(errcode.UNKNOWN), false
	}
}

func (d *Dispatcher) getInt(payload []byte) []byte {
	var domain, key string
	if err := wire.FromBytes(payload).Unpack("ss", &domain, &key); err != nil {
		return errorReply(wireCode(err))
	}
	v, err := d.store.GetInt(domain, key)
	if err != nil {
		return errorReply(storeCode(err))
	}
	p := wire.New()
	_ = p.Pack("l", v)
	return wire.Encode(wire.TagInt, p.Bytes())
}

func (d *Dispatcher) setInt(payload []byte) []byte {
	var domain, key string
	var v int64
	if err := wire.FromBytes(payload).Unpack("ssl", &domain, &key, &v); err != nil {
		return errorReply(wireCode(err))
	}
	if err := d.store.SetInt(domain, key, v); err != nil {
		return errorReply(storeCode(err))
	}
	return wire.Encode(wire.TagOK, nil)
}

func (d *Dispatcher) getDouble(payload []byte) []byte {
	var domain, key string
	if err := wire.FromBytes(payload).Unpack("ss", &domain, &key); err != nil {
		return errorReply(wireCode(err))
	}
	v, err := d.store.GetDouble(domain, key)
	if err != nil {
		return errorReply(storeCode(err))
	}
	p := wire.New()
	_ = p.Pack("d", v)
	return wire.Encode(wire.TagDouble, p.Bytes())
}

func (d *Dispatcher) setDouble(payload []byte) []byte {
	var domain, key string
	var v float64
	if err := wire.FromBytes(payload).Unpack("ssd", &domain, &key, &v); err != nil {
		return errorReply(wireCode(err))
	}
	if err := d.store.SetDouble(domain, key, v); err != nil {
		return errorReply(storeCode(err))
	}
	return wire.Encode(wire.TagOK, nil)
}

func (d *Dispatcher) getString(payload []byte) []byte {
	var domain, key string
	if err := wire.FromBytes(payload).Unpack("ss", &domain, &key); err != nil {
		return errorReply(wireCode(err))
	}
	v, err := d.store.GetString(domain, key)
	if err != nil {
		return errorReply(storeCode(err))
	}
	p := wire.New()
	_ = p.Pack("s", v)
	return wire.Encode(wire.TagString, p.Bytes())
}

func (d *Dispatcher) setString(payload []byte) []byte {
	var domain, key, v string
	if err := wire.FromBytes(payload).Unpack("sss", &domain, &key, &v); err != nil {
		return errorReply(wireCode(err))
	}
	if err := d.store.SetString(domain, key, v); err != nil {
		return errorReply(storeCode(err))
	}
	return wire.Encode(wire.TagOK, nil)
}

func (d *Dispatcher) getBlob(payload []byte) []byte {
	var domain, key string
	if err := wire.FromBytes(payload).Unpack("ss", &domain, &key); err != nil {
		return errorReply(wireCode(err))
	}
	v, err := d.store.GetBlob(domain, key)
	if err != nil {
		return errorReply(storeCode(err))
	}
	p := wire.New()
	_ = p.Pack("b", v)
	return wire.Encode(wire.TagBlob, p.Bytes())
}

func (d *Dispatcher) setBlob(payload []byte) []byte {
	var domain, key string
	var v []byte
	if err := wire.FromBytes(payload).Unpack("ssb", &domain, &key, &v); err != nil {
		return errorReply(wireCode(err))
	}
	if err := d.store.SetBlob(domain, key, v); err != nil {
		return errorReply(storeCode(err))
	}
	return wire.Encode(wire.TagOK, nil)
}

// getEnum replies ENUM with "l" (count) followed by "b" (the concatenated
// NUL-terminated keys) iff count>0.
func (d *Dispatcher) getEnum(payload []byte) []byte {
	var domain, pattern string
	if err := wire.FromBytes(payload).Unpack("ss", &domain, &pattern); err != nil {
		return errorReply(wireCode(err))
	}
	keys, err := d.store.EnumKeys(domain, pattern)
	if err != nil {
		return errorReply(storeCode(err))
	}

	p := wire.New()
	if len(keys) == 0 {
		_ = p.Pack("l", int64(0))
		return wire.Encode(wire.TagEnum, p.Bytes())
	}

	var concatenated []byte
	for _, k := range keys {
		concatenated = append(concatenated, k...)
		concatenated = append(concatenated, 0)
	}
	_ = p.Pack("lb", int64(len(keys)), concatenated)
	return wire.Encode(wire.TagEnum, p.Bytes())
}

func (d *Dispatcher) getValueType(payload []byte) []byte {
	var domain, key string
	if err := wire.FromBytes(payload).Unpack("ss", &domain, &key); err != nil {
		return errorReply(wireCode(err))
	}
	kind, err := d.store.GetType(domain, key)
	if err != nil {
		return errorReply(storeCode(err))
	}
	p := wire.New()
	_ = p.Pack("l", int64(kind))
	return wire.Encode(wire.TagType, p.Bytes())
}

func errorReply(code errcode.Code) []byte {
	return wire.EncodeError(code)
}

func wireCode(err error) errcode.Code {
	if e, ok := err.(*errcode.Error); ok {
		return e.Code
	}
	return errcode.UNKNOWN
}

// storeCode extracts the wire code from a store error; all store errors are
// constructed as *errcode.Error, so this never falls back to UNKNOWN in
// practice, but a defensive default keeps Dispatch total over its input.
func storeCode(err error) errcode.Code {
	if e, ok := err.(*errcode.Error); ok {
		return e.Code
	}
	return errcode.UNKNOWN
}
