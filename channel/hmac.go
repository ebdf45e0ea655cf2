package channel

import "krypt.co/registry/auth"

// HMACChannel wraps a child channel, appending/stripping an HMAC-SHA-1 tag on
// each transported message, grounded on
// original_source/communication/channel-hmac.c.
//
// A single HMACChannel instance serves both directions of one hop: the
// identifier parser reuses the very same instances that make up the
// client-side chain as the server-side unwrap chain for a stack fronted by
// an Endpoint Connector, so ClientSend/ClientRecv and ServerSend/ServerRecv
// share one key per hop by construction rather than by mirrored
// configuration.
type HMACChannel struct {
	child Channel
	key   []byte
}

// NewHMAC wraps child, initially unkeyed (pass-through).
func NewHMAC(child Channel) *HMACChannel {
	return &HMACChannel{child: child}
}

// SetKey sets the hop's HMAC key. An empty key means "no authentication on
// this hop": subsequent sends and receives pass through verbatim.
func (h *HMACChannel) SetKey(key []byte) {
	if len(key) == 0 {
		h.key = nil
		return
	}
	h.key = append([]byte(nil), key...)
}

func (h *HMACChannel) wrap(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, errArgument("hmac: empty message")
	}
	if len(h.key) == 0 {
		return msg, nil
	}
	tag, err := auth.Compute(h.key, msg)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(msg)+len(tag))
	out = append(out, msg...)
	out = append(out, tag...)
	return out, nil
}

func (h *HMACChannel) unwrap(msg []byte) ([]byte, error) {
	if len(msg) == 0 {
		return nil, errArgument("hmac: empty message")
	}
	if len(h.key) == 0 {
		return msg, nil
	}
	if len(msg) < auth.Size {
		return nil, errFailure("hmac: message shorter than hmac tag")
	}
	body := msg[:len(msg)-auth.Size]
	tag := msg[len(msg)-auth.Size:]
	if err := auth.Verify(h.key, body, tag); err != nil {
		return nil, err
	}
	return body, nil
}

// ClientSend wraps msg with this hop's tag (if keyed) and forwards to child.
func (h *HMACChannel) ClientSend(msg []byte) error {
	wrapped, err := h.wrap(msg)
	if err != nil {
		return err
	}
	return h.child.ClientSend(wrapped)
}

// ClientRecv reads from child and strips/verifies this hop's tag.
func (h *HMACChannel) ClientRecv() ([]byte, error) {
	msg, err := h.child.ClientRecv()
	if err != nil {
		return nil, err
	}
	return h.unwrap(msg)
}

// ServerSend wraps msg with this hop's tag (if keyed) and forwards to child.
func (h *HMACChannel) ServerSend(msg []byte) error {
	wrapped, err := h.wrap(msg)
	if err != nil {
		return err
	}
	return h.child.ServerSend(wrapped)
}

// ServerRecv reads from child and strips/verifies this hop's tag.
func (h *HMACChannel) ServerRecv() ([]byte, error) {
	msg, err := h.child.ServerRecv()
	if err != nil {
		return nil, err
	}
	return h.unwrap(msg)
}

// Close frees the child channel.
func (h *HMACChannel) Close() error {
	return h.child.Close()
}
