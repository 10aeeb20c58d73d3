package zipformat

import (
	"encoding/binary"
	"errors"
	"io"
)

// DataDescriptor is the optional trailing record written after an entry's
// payload when general-purpose bit 3 (HasDataDescriptor) is set. This
// implementation only supports the de-facto-standard 16-byte form with a
// signature and 32-bit sizes (SPEC_FULL.md open question #1); ZIP64 8-byte
// data descriptors are out of scope (spec.md §1 Non-goals: ZIP64).
type DataDescriptor struct {
	CRC32              uint32
	CompressedLength   uint32
	UncompressedLength uint32
}

// ErrUnsupportedDataDescriptor is returned for entries that claim a
// trailing data descriptor but whose Local File Header gives no usable
// sizes to read the payload with (SPEC_FULL.md open question #1).
var ErrUnsupportedDataDescriptor = errors.New("zipformat: data descriptor entry has zero-sized local file header")

// ReadDataDescriptor reads a trailing data descriptor record in the
// de-facto-standard 16-byte form (leading signature + CRC-32 + two 32-bit
// sizes), which is what every modern ZIP writer — including this one —
// emits.
func ReadDataDescriptor(r io.Reader) (*DataDescriptor, error) {
	var buf [dataDescriptorLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}

	if Signature(binary.LittleEndian.Uint32(buf[:4])) != SignatureDataDescriptor {
		return nil, errors.New("zipformat: data descriptor missing signature")
	}

	b := readBuf(buf[4:])
	d := &DataDescriptor{}
	d.CRC32 = b.uint32()
	d.CompressedLength = b.uint32()
	d.UncompressedLength = b.uint32()
	return d, nil
}

// WriteDataDescriptor writes d to w in the de-facto-standard form,
// including the leading signature (required by OS X Finder, per common
// ZIP implementations).
func WriteDataDescriptor(w io.Writer, d *DataDescriptor) error {
	var buf [dataDescriptorLen]byte
	b := writeBuf(buf[:])
	b.uint32(uint32(SignatureDataDescriptor))
	b.uint32(d.CRC32)
	b.uint32(d.CompressedLength)
	b.uint32(d.UncompressedLength)
	_, err := w.Write(buf[:])
	return err
}
