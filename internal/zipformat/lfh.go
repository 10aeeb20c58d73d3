package zipformat

import "io"

// LocalFileHeader is the per-entry header that precedes each entry's
// compressed payload in the Local File Header stream (spec.md §3).
type LocalFileHeader struct {
	VersionNeeded      uint16
	Flags              uint16
	Method             uint16
	ModTime            uint16
	ModDate            uint16
	CRC32              uint32
	CompressedLength   uint32
	UncompressedLength uint32
	Name               string
	Extra              []byte
}

// Encrypted reports whether general-purpose bit 0 is set.
func (h *LocalFileHeader) Encrypted() bool {
	return h.Flags&FlagEncrypted != 0
}

// HasDataDescriptor reports whether general-purpose bit 3 is set.
func (h *LocalFileHeader) HasDataDescriptor() bool {
	return h.Flags&FlagHasDataDescriptor != 0
}

// ReadLocalFileHeader reads a Local File Header whose signature has
// already been consumed by the caller (the rewriter drives the
// start -> LFH* -> CDFH* -> EOCD state machine and reads signatures
// itself; see spec.md §4.F).
func ReadLocalFileHeader(r io.Reader) (*LocalFileHeader, error) {
	var fixed [lfhFixedLen - 4]byte // minus the signature, already consumed
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	b := readBuf(fixed[:])

	h := &LocalFileHeader{}
	h.VersionNeeded = b.uint16()
	h.Flags = b.uint16()
	h.Method = b.uint16()
	h.ModTime = b.uint16()
	h.ModDate = b.uint16()
	h.CRC32 = b.uint32()
	h.CompressedLength = b.uint32()
	h.UncompressedLength = b.uint32()
	nameLen := b.uint16()
	extraLen := b.uint16()

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	h.Name = string(name)

	h.Extra = make([]byte, extraLen)
	if _, err := io.ReadFull(r, h.Extra); err != nil {
		return nil, err
	}

	return h, nil
}

// WriteLocalFileHeader writes the signature, fixed fields, name and extra
// field of h to w.
func WriteLocalFileHeader(w io.Writer, h *LocalFileHeader) error {
	if err := WriteSignature(w, SignatureLocalFileHeader); err != nil {
		return err
	}

	var fixed [lfhFixedLen - 4]byte
	b := writeBuf(fixed[:])
	b.uint16(h.VersionNeeded)
	b.uint16(h.Flags)
	b.uint16(h.Method)
	b.uint16(h.ModTime)
	b.uint16(h.ModDate)
	b.uint32(h.CRC32)
	b.uint32(h.CompressedLength)
	b.uint32(h.UncompressedLength)
	b.uint16(uint16(len(h.Name)))
	b.uint16(uint16(len(h.Extra)))
	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}

	if _, err := io.WriteString(w, h.Name); err != nil {
		return err
	}
	_, err := w.Write(h.Extra)
	return err
}
