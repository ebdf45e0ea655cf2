package channel

import "krypt.co/registry/errcode"

// LoopbackChannel is the bottom channel whose client-send is a synchronous
// call into the in-process Request Dispatcher,
// grounded on original_source/communication/channel-with-server.c.
//
// Only client-send and client-recv are meaningful from a caller sitting
// above this channel; server-recv has no collaborator to read from and is
// unsupported, matching the original's server_read_bytes == NULL.
type LoopbackChannel struct {
	dispatcher Dispatcher
	clientSlot []byte
	hasClient  bool
}

// NewLoopback returns a channel bound to dispatcher, which it owns: Close
// shuts the dispatcher down.
func NewLoopback(dispatcher Dispatcher) *LoopbackChannel {
	return &LoopbackChannel{dispatcher: dispatcher}
}

// ClientSend calls the dispatcher synchronously on msg, then parks the reply
// in the client-direction slot. The busy-spin against ServerSend is a
// degenerate loop here: the slot is always free immediately after
// construction or a prior ClientRecv in a single-threaded caller, so the
// loop runs exactly once.
func (l *LoopbackChannel) ClientSend(msg []byte) error {
	if len(msg) == 0 {
		return errArgument("loopback: empty client-send message")
	}
	reply, err := l.dispatcher.Dispatch(msg)
	if err != nil {
		return errFailure("loopback: dispatcher failed")
	}
	for {
		err := l.ServerSend(reply)
		if err == nil {
			return nil
		}
		if ce, ok := err.(*errcode.Error); ok && ce.Kind == errcode.KindBusy {
			continue
		}
		return err
	}
}

// ClientRecv moves the client-direction slot out, failing busy if empty.
func (l *LoopbackChannel) ClientRecv() ([]byte, error) {
	if !l.hasClient {
		return nil, errBusy()
	}
	out := l.clientSlot
	l.clientSlot = nil
	l.hasClient = false
	return out, nil
}

// ServerSend stores msg into the client-direction slot, failing busy if
// already full.
func (l *LoopbackChannel) ServerSend(msg []byte) error {
	if len(msg) == 0 {
		return errArgument("loopback: empty server-send message")
	}
	if l.hasClient {
		return errBusy()
	}
	l.clientSlot = msg
	l.hasClient = true
	return nil
}

// ServerRecv is not supported by the Loopback Server Channel.
func (l *LoopbackChannel) ServerRecv() ([]byte, error) {
	return nil, errcode.ErrNotSupported
}

// Close shuts down the owned dispatcher.
func (l *LoopbackChannel) Close() error {
	return l.dispatcher.Close()
}
