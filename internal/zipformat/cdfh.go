package zipformat

import "io"

// CentralDirectoryHeader is one entry of the Central Directory: a
// superset of LocalFileHeader with directory-only bookkeeping fields added
// (spec.md §3).
type CentralDirectoryHeader struct {
	VersionMadeBy      uint16
	VersionNeeded      uint16
	Flags              uint16
	Method             uint16
	ModTime            uint16
	ModDate            uint16
	CRC32              uint32
	CompressedLength   uint32
	UncompressedLength uint32
	DiskNumber         uint16
	InternalAttrs      uint16
	ExternalAttrs      uint32
	LocalHeaderOffset  uint32
	Name               string
	Extra              []byte
	Comment            string
}

// Encrypted reports whether general-purpose bit 0 is set.
func (h *CentralDirectoryHeader) Encrypted() bool {
	return h.Flags&FlagEncrypted != 0
}

// ReadCentralDirectoryHeader reads a Central Directory File Header whose
// signature has already been consumed by the caller.
func ReadCentralDirectoryHeader(r io.Reader) (*CentralDirectoryHeader, error) {
	var fixed [cdfhFixedLen - 4]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, err
	}
	b := readBuf(fixed[:])

	h := &CentralDirectoryHeader{}
	h.VersionMadeBy = b.uint16()
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
	commentLen := b.uint16()
	h.DiskNumber = b.uint16()
	h.InternalAttrs = b.uint16()
	h.ExternalAttrs = b.uint32()
	h.LocalHeaderOffset = b.uint32()

	name := make([]byte, nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, err
	}
	h.Name = string(name)

	h.Extra = make([]byte, extraLen)
	if _, err := io.ReadFull(r, h.Extra); err != nil {
		return nil, err
	}

	comment := make([]byte, commentLen)
	if _, err := io.ReadFull(r, comment); err != nil {
		return nil, err
	}
	h.Comment = string(comment)

	return h, nil
}

// WriteCentralDirectoryHeader writes the signature, fixed fields, name,
// extra field and comment of h to w.
func WriteCentralDirectoryHeader(w io.Writer, h *CentralDirectoryHeader) error {
	if err := WriteSignature(w, SignatureCentralDirectoryFileHeader); err != nil {
		return err
	}

	var fixed [cdfhFixedLen - 4]byte
	b := writeBuf(fixed[:])
	b.uint16(h.VersionMadeBy)
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
	b.uint16(uint16(len(h.Comment)))
	b.uint16(h.DiskNumber)
	b.uint16(h.InternalAttrs)
	b.uint32(h.ExternalAttrs)
	b.uint32(h.LocalHeaderOffset)
	if _, err := w.Write(fixed[:]); err != nil {
		return err
	}

	if _, err := io.WriteString(w, h.Name); err != nil {
		return err
	}
	if _, err := w.Write(h.Extra); err != nil {
		return err
	}
	_, err := io.WriteString(w, h.Comment)
	return err
}
