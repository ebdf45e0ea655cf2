// Package channel implements the registry's channel composition model: a
// directed stack of single-buffer channels relaying bytes between a client
// endpoint and a server endpoint, with optional HMAC wrapping interposed on
// either side. It is grounded on original_source/communication/channel.h,
// channel-with-server.c, channel-hmac.c and channel-endpoint-connector.c,
// translating the original's function-pointer struct into a Go interface
// with one concrete type per variant.
package channel

import "krypt.co/registry/errcode"

// Channel is the abstract full-duplex single-message byte pipe. Any
// operation a particular variant does not support returns
// errcode.ErrNotSupported.
type Channel interface {
	// ClientSend enqueues a message directed to the server side. It fails
	// with a busy error if the channel already holds an unclaimed
	// client-direction message.
	ClientSend(msg []byte) error
	// ClientRecv dequeues a server-to-client message, failing busy if none
	// is pending.
	ClientRecv() ([]byte, error)
	// ServerSend is the symmetric counterpart of ClientSend for the
	// opposite direction.
	ServerSend(msg []byte) error
	// ServerRecv is the symmetric counterpart of ClientRecv.
	ServerRecv() ([]byte, error)
	// Close releases this channel and all owned children. It is idempotent
	// on an already-closed channel.
	Close() error
}

// Dispatcher is the collaborator a Loopback Server Channel calls into
// synchronously. dispatch.Dispatcher satisfies this interface; it is
// declared here, not imported from dispatch, to keep channel free of a
// dependency on the storage/dispatch stack.
type Dispatcher interface {
	Dispatch(request []byte) (reply []byte, err error)
	Close() error
}

func errBusy() error {
	return errcode.New(errcode.CHANNEL_BUSY, errcode.KindBusy, "channel: slot occupied")
}

func errArgument(msg string) error {
	return errcode.New(errcode.INVALID_ARGUMENTS, errcode.KindArgument, msg)
}

func errFailure(msg string) error {
	return errcode.New(errcode.CHANNEL_FAILED, errcode.KindFailure, msg)
}
