package deflate

import (
	"bytes"
	"fmt"
	"io"

	kflate "github.com/klauspost/compress/flate"
)

// Inflate decodes raw DEFLATE data (no zlib/gzip framing). expectedLen, if
// positive, only presizes the output buffer; callers are responsible for
// comparing the decoded length and CRC-32 against the entry's header
// (spec.md §4.D steps 3-4 treat a mismatch as a per-entry recoverable
// failure, not a codec error).
func Inflate(compressed []byte, expectedLen int) ([]byte, error) {
	r := kflate.NewReader(bytes.NewReader(compressed))
	defer r.Close()

	out := bytes.NewBuffer(make([]byte, 0, maxInt(expectedLen, 0)))
	if _, err := io.Copy(out, r); err != nil {
		return nil, fmt.Errorf("deflate: inflate failed: %w", err)
	}
	return out.Bytes(), nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
