// Package buffer implements the registry's growable byte sequence with a
// position cursor. It replaces the original C implementation's manual
// realloc-based growth (see
// original_source/communication/simple-memory-buffer.c) with a Go slice that
// owns its own storage.
package buffer

import "krypt.co/registry/errcode"

// Buffer is a growable byte sequence with an integer position cursor.
// Position never exceeds the number of bytes written.
type Buffer struct {
	data []byte
	pos  int
}

// New returns an empty Buffer ready for writing.
func New() *Buffer {
	return &Buffer{}
}

// FromBytes returns a Buffer positioned at the start of an existing byte
// slice, ready for reading. The slice is not copied; callers must not mutate
// it while the Buffer is in use.
func FromBytes(b []byte) *Buffer {
	return &Buffer{data: b}
}

// ReadByte returns the byte at the current position and advances it, or
// errcode.EOF if the position has reached the end of the sequence.
func (b *Buffer) ReadByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, errcode.New(errcode.EOF, errcode.KindFailure, "buffer: read past end of stream")
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// WriteByte stores a single byte at the current position and advances it,
// growing the sequence by one when the position is at its end.
func (b *Buffer) WriteByte(v byte) error {
	if b.pos == len(b.data) {
		b.data = append(b.data, v)
	} else {
		b.data[b.pos] = v
	}
	b.pos++
	return nil
}

// View returns a reference to the underlying bytes and the current size for
// bulk extraction. Callers must not retain the slice past further writes.
func (b *Buffer) View() []byte {
	return b.data
}

// Len returns the current size of the sequence.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Pos returns the current read/write cursor.
func (b *Buffer) Pos() int {
	return b.pos
}

// Remaining reports how many unread bytes are left.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}
