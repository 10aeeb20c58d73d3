package zipformat

import "encoding/binary"

// writeBuf is a little-endian cursor over a fixed-size output buffer,
// adapted from the teacher's writer.go: each accessor consumes the field it
// writes and advances the cursor, so callers write a record's fields in
// order without tracking offsets by hand.
type writeBuf []byte

func (b *writeBuf) uint16(v uint16) {
	binary.LittleEndian.PutUint16(*b, v)
	*b = (*b)[2:]
}

func (b *writeBuf) uint32(v uint32) {
	binary.LittleEndian.PutUint32(*b, v)
	*b = (*b)[4:]
}

func (b *writeBuf) skip(n int) {
	*b = (*b)[n:]
}

// readBuf is the read-side counterpart of writeBuf.
type readBuf []byte

func (b *readBuf) uint16() uint16 {
	v := binary.LittleEndian.Uint16(*b)
	*b = (*b)[2:]
	return v
}

func (b *readBuf) uint32() uint32 {
	v := binary.LittleEndian.Uint32(*b)
	*b = (*b)[4:]
	return v
}

func (b *readBuf) skip(n int) {
	*b = (*b)[n:]
}
