package wire

import "krypt.co/registry/errcode"

// Tag discriminates a Packet's kind. Values are stable and transported as a
// single leading byte.
type Tag byte

const (
	TagInvalid       Tag = 0
	TagOK            Tag = 1
	TagError         Tag = 2
	TagInt           Tag = 3
	TagGetInt        Tag = 4
	TagSetInt        Tag = 5
	TagDouble        Tag = 6
	TagGetDouble     Tag = 7
	TagSetDouble     Tag = 8
	TagString        Tag = 9
	TagGetString     Tag = 10
	TagSetString     Tag = 11
	TagBlob          Tag = 12
	TagGetBlob       Tag = 13
	TagSetBlob       Tag = 14
	TagEnum          Tag = 15
	TagGetEnum       Tag = 16
	TagType          Tag = 17
	TagGetValueType  Tag = 18
	TagShutdown      Tag = 19
)

// Packet is one tagged, self-describing message unit: a discriminator byte
// followed by a typed tuple encoded per the format string associated with
// its tag.
type Packet struct {
	Tag     Tag
	Payload []byte
}

// Encode renders the packet as tag byte followed by raw payload bytes, ready
// to hand to a channel's send operation.
func Encode(tag Tag, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(tag)
	copy(out[1:], payload)
	return out
}

// Decode splits a transported message into its tag and payload. An empty
// message is a protocol error: every packet carries at least a tag byte.
func Decode(msg []byte) (Packet, error) {
	if len(msg) == 0 {
		return Packet{}, errcode.New(errcode.BUNPACK_INVALID_DATA, errcode.KindProtocol, "wire: empty message has no tag byte")
	}
	return Packet{Tag: Tag(msg[0]), Payload: msg[1:]}, nil
}

// EncodeError builds an ERROR reply packet carrying the numeric wire code as
// its sole payload.
func EncodeError(code errcode.Code) []byte {
	p := New()
	// Pack never fails for a well-formed "l" format with a matching int64
	// argument; the error return exists only to satisfy the Packer contract.
	_ = p.Pack("l", int64(code))
	return Encode(TagError, p.Bytes())
}
