// Package registry is the public client-facing Registry handle: it owns a
// domain label and a channel stack root built by the identifier package,
// and exposes one typed operation per request kind, composing and parsing
// packets via wire.
// It is grounded on original_source/registry/registry.c's registry_* client
// helpers, translating their busy-retry loops into Go's immediate-retry
// for loops and their malloc'd out-params into Go return values.
package registry

import (
	"krypt.co/registry/channel"
	"krypt.co/registry/config"
	"krypt.co/registry/dispatch"
	"krypt.co/registry/errcode"
	"krypt.co/registry/identifier"
	"krypt.co/registry/store"
	"krypt.co/registry/wire"
)

// Handle is a registry client: a domain label plus the channel stack built
// from an identifier string. The zero value is not usable; build one with
// Open.
type Handle struct {
	domain string
	stack  channel.Channel
}

// Open parses id's identifier grammar into a channel stack backed by a
// SQLite store at the parsed file:// path, using cfg's blob directory, and
// binds the resulting handle to domain. domain must be non-empty.
func Open(id, domain string, cfg *config.Config) (*Handle, error) {
	if domain == "" {
		return nil, errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, "registry: empty domain")
	}
	if cfg == nil {
		cfg = config.Default()
	}

	factory := func(path string) (channel.Dispatcher, error) {
		return dispatch.Open(path, cfg.BlobDir)
	}

	stack, err := identifier.Parse(id, factory)
	if err != nil {
		return nil, err
	}

	return &Handle{domain: domain, stack: stack}, nil
}

// Close tears down the channel stack in dependency order.
func (h *Handle) Close() error {
	return h.stack.Close()
}

// roundTrip sends request down the stack and returns the decoded reply
// packet, busy-retrying both send and receive immediately, matching the
// registry client helpers' degenerate retry loops.
func (h *Handle) roundTrip(request []byte) (wire.Packet, error) {
	for {
		err := h.stack.ClientSend(request)
		if err == nil {
			break
		}
		if !isBusy(err) {
			return wire.Packet{}, err
		}
	}

	for {
		reply, err := h.stack.ClientRecv()
		if err == nil {
			pkt, decErr := wire.Decode(reply)
			if decErr != nil {
				return wire.Packet{}, decErr
			}
			if pkt.Tag == wire.TagError {
				return wire.Packet{}, replyError(pkt)
			}
			return pkt, nil
		}
		if !isBusy(err) {
			return wire.Packet{}, err
		}
	}
}

func isBusy(err error) bool {
	e, ok := err.(*errcode.Error)
	return ok && e.Kind == errcode.KindBusy
}

func replyError(pkt wire.Packet) error {
	var code int64
	if err := wire.FromBytes(pkt.Payload).Unpack("l", &code); err != nil {
		return errcode.New(errcode.UNKNOWN, errcode.KindUnknown, "registry: malformed error reply")
	}
	c := errcode.Code(code)
	return errcode.New(c, errcode.FromCode(c), "registry: request failed")
}

func (h *Handle) request(tag wire.Tag, format string, args ...interface{}) []byte {
	p := wire.New()
	if format != "" {
		_ = p.Pack(format, args...)
	}
	return wire.Encode(tag, p.Bytes())
}

// GetInt returns the int64 value stored at key in this handle's domain.
func (h *Handle) GetInt(key string) (int64, error) {
	pkt, err := h.roundTrip(h.request(wire.TagGetInt, "ss", h.domain, key))
	if err != nil {
		return 0, err
	}
	var v int64
	if err := wire.FromBytes(pkt.Payload).Unpack("l", &v); err != nil {
		return 0, err
	}
	return v, nil
}

// SetInt upserts an int64 value at key in this handle's domain.
func (h *Handle) SetInt(key string, value int64) error {
	_, err := h.roundTrip(h.request(wire.TagSetInt, "ssl", h.domain, key, value))
	return err
}

// GetDouble returns the float64 value stored at key in this handle's domain.
func (h *Handle) GetDouble(key string) (float64, error) {
	pkt, err := h.roundTrip(h.request(wire.TagGetDouble, "ss", h.domain, key))
	if err != nil {
		return 0, err
	}
	var v float64
	if err := wire.FromBytes(pkt.Payload).Unpack("d", &v); err != nil {
		return 0, err
	}
	return v, nil
}

// SetDouble upserts a float64 value at key in this handle's domain.
func (h *Handle) SetDouble(key string, value float64) error {
	_, err := h.roundTrip(h.request(wire.TagSetDouble, "ssd", h.domain, key, value))
	return err
}

// GetString returns the string value stored at key in this handle's domain.
func (h *Handle) GetString(key string) (string, error) {
	pkt, err := h.roundTrip(h.request(wire.TagGetString, "ss", h.domain, key))
	if err != nil {
		return "", err
	}
	var v string
	if err := wire.FromBytes(pkt.Payload).Unpack("s", &v); err != nil {
		return "", err
	}
	return v, nil
}

// SetString upserts a string value at key in this handle's domain.
func (h *Handle) SetString(key string, value string) error {
	_, err := h.roundTrip(h.request(wire.TagSetString, "sss", h.domain, key, value))
	return err
}

// GetBlob returns the blob value stored at key in this handle's domain.
func (h *Handle) GetBlob(key string) ([]byte, error) {
	pkt, err := h.roundTrip(h.request(wire.TagGetBlob, "ss", h.domain, key))
	if err != nil {
		return nil, err
	}
	var v []byte
	if err := wire.FromBytes(pkt.Payload).Unpack("b", &v); err != nil {
		return nil, err
	}
	return v, nil
}

// SetBlob upserts a blob value at key in this handle's domain.
func (h *Handle) SetBlob(key string, value []byte) error {
	_, err := h.roundTrip(h.request(wire.TagSetBlob, "ssb", h.domain, key, value))
	return err
}

// GetValueType returns the kind currently stored at key in this handle's
// domain.
func (h *Handle) GetValueType(key string) (store.Kind, error) {
	pkt, err := h.roundTrip(h.request(wire.TagGetValueType, "ss", h.domain, key))
	if err != nil {
		return 0, err
	}
	var kind int64
	if err := wire.FromBytes(pkt.Payload).Unpack("l", &kind); err != nil {
		return 0, err
	}
	return store.Kind(kind), nil
}

// EnumKeys returns, in ascending lexicographic order, the keys in this
// handle's domain matching pattern.
func (h *Handle) EnumKeys(pattern string) ([]string, error) {
	pkt, err := h.roundTrip(h.request(wire.TagGetEnum, "ss", h.domain, pattern))
	if err != nil {
		return nil, err
	}

	var count int64
	if err := wire.FromBytes(pkt.Payload).Unpack("l", &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}

	var concatenated []byte
	u := wire.FromBytes(pkt.Payload)
	if err := u.Unpack("lb", &count, &concatenated); err != nil {
		return nil, err
	}

	keys := make([]string, 0, count)
	start := 0
	for i, b := range concatenated {
		if b == 0 {
			keys = append(keys, string(concatenated[start:i]))
			start = i + 1
		}
	}
	return keys, nil
}
