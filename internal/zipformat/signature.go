// Package zipformat implements the binary codec for the three ZIP record
// types (spec.md §3, §4.C): the Local File Header stream, the Central
// Directory, and the End-of-Central-Directory record. Every integer is
// little-endian; every operation is a pure read(stream) or write(stream,
// record) with no semantic validation beyond signature recognition — that
// belongs to the rewriter and the entry pipeline (spec.md §4.C).
package zipformat

import (
	"encoding/binary"
	"errors"
	"io"
)

// Signature identifies which of the three ZIP record types follows.
type Signature uint32

// The three record signatures this package understands, plus the
// de-facto-standard data descriptor signature used to locate a trailing
// descriptor when HasDataDescriptor is set.
const (
	SignatureLocalFileHeader            Signature = 0x04034b50
	SignatureCentralDirectoryFileHeader Signature = 0x02014b50
	SignatureEndOfCentralDirectory      Signature = 0x06054b50
	SignatureDataDescriptor             Signature = 0x08074b50
)

// General-purpose bit flags consumed by this module (spec.md §3).
const (
	FlagEncrypted         uint16 = 1 << 0
	FlagHasDataDescriptor uint16 = 1 << 3
	FlagUTF8              uint16 = 1 << 11
)

// Compression methods with pipeline behavior (spec.md §3); all others pass
// through unchanged.
const (
	MethodStore   uint16 = 0
	MethodDeflate uint16 = 8
)

const (
	lfhFixedLen       = 30
	cdfhFixedLen      = 46
	eocdFixedLen      = 22
	dataDescriptorLen = 16
)

// ErrUnknownSignature names the parse error for a record boundary holding a
// value that is none of the three recognized signatures (spec.md §3). No
// function in this package returns it: ReadSignature decodes any four
// bytes, and the rewriter reports an unexpected value with its own
// rezip.ErrUnexpectedSignature.
var ErrUnknownSignature = errors.New("zipformat: unknown record signature")

// ReadSignature reads the next 4-byte little-endian signature from r.
func ReadSignature(r io.Reader) (Signature, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return Signature(binary.LittleEndian.Uint32(buf[:])), nil
}

// WriteSignature writes sig to w.
func WriteSignature(w io.Writer, sig Signature) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(sig))
	_, err := w.Write(buf[:])
	return err
}
