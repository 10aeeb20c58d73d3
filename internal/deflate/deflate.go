// Package deflate adapts a third-party raw-DEFLATE codec to the two pure
// operations the entry pipeline needs (spec.md §4.G): inflate (black-box
// consumer) and a slow, high-ratio deflate re-encoder (black-box producer,
// "Zopfli-class" per the GLOSSARY).
//
// The actual Zopfli LZ77-parse-optimization algorithm is explicitly out of
// scope for this module (spec.md §1); what's specified is its external
// interface — the Options fields and the fact that it trades time for
// ratio. This implementation honors that interface using
// github.com/klauspost/compress/flate as the underlying DEFLATE codec: it
// spends the configured iteration budget trying several block-splitting
// granularities of the same input and keeps whichever produces the
// smallest output, and (when enabled) splits the stream into multiple
// independently-Huffman-coded DEFLATE blocks via periodic Flush calls on a
// single continuous Writer, rather than Zopfli's entropy-driven block
// boundary search.
package deflate

import (
	"bytes"

	kflate "github.com/klauspost/compress/flate"
)

// Options mirrors the Zopfli-class encoder options passed through
// verbatim by the CLI (spec.md §4.G).
type Options struct {
	NumIterations     uint32
	BlockSplitting    bool
	BlockSplittingMax uint32
	Verbose           bool
	VerboseMore       bool
}

// DefaultOptions returns the documented defaults (spec.md §4.G).
func DefaultOptions() Options {
	return Options{
		NumIterations:     15,
		BlockSplitting:    true,
		BlockSplittingMax: 15,
	}
}

// minBlockSize bounds how finely a buffer is split: splitting below this
// granularity mostly adds Huffman-table overhead without improving the
// match-length distribution within each block.
const minBlockSize = 1 << 12 // 4 KiB

// maxBlockSplittingMax bounds the unlimited (0) case from the CLI.
const maxBlockSplittingMax = 64

// Encode re-encodes plain as a raw DEFLATE stream.
func Encode(plain []byte, opts Options) ([]byte, error) {
	iterations := opts.NumIterations
	if iterations == 0 {
		iterations = 1
	}

	counts := candidateBlockCounts(len(plain), opts, iterations)

	var best []byte
	for _, n := range counts {
		out, err := encodeWithBlockCount(plain, n)
		if err != nil {
			return nil, err
		}
		if best == nil || len(out) < len(best) {
			best = out
		}
	}
	return best, nil
}

// candidateBlockCounts returns the sequence of block counts to try,
// doubling from 1 up to the effective maximum, truncated to at most
// iterations candidates (spec.md §4.G: num_iterations "trades encoding
// time for smaller output").
func candidateBlockCounts(plainLen int, opts Options, iterations uint32) []int {
	if !opts.BlockSplitting {
		return []int{1}
	}

	max := int(opts.BlockSplittingMax)
	if max <= 0 {
		max = maxBlockSplittingMax
	}
	if byLen := plainLen / minBlockSize; byLen < max {
		max = byLen
	}
	if max < 1 {
		max = 1
	}

	var counts []int
	for n := 1; n <= max && len(counts) < int(iterations); n *= 2 {
		counts = append(counts, n)
	}
	if len(counts) == 0 {
		counts = []int{1}
	}
	return counts
}

// encodeWithBlockCount compresses plain as numBlocks roughly-equal-sized
// DEFLATE blocks within a single continuous stream: splitting is done with
// Writer.Flush at each boundary rather than by closing and concatenating
// independent streams, so the result remains one valid raw-DEFLATE stream
// decodable by a single Inflate call.
func encodeWithBlockCount(plain []byte, numBlocks int) ([]byte, error) {
	var buf bytes.Buffer
	w, err := kflate.NewWriter(&buf, kflate.BestCompression)
	if err != nil {
		return nil, err
	}

	splits := evenSplitPoints(len(plain), numBlocks)
	start := 0
	for i, end := range splits {
		if _, err := w.Write(plain[start:end]); err != nil {
			return nil, err
		}
		if i != len(splits)-1 {
			if err := w.Flush(); err != nil {
				return nil, err
			}
		}
		start = end
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// evenSplitPoints returns up to numBlocks increasing end-offsets covering
// [0, total], omitting any that would produce a zero-length final block.
func evenSplitPoints(total, numBlocks int) []int {
	if numBlocks <= 1 || total == 0 {
		return []int{total}
	}
	step := total / numBlocks
	if step == 0 {
		return []int{total}
	}
	splits := make([]int, 0, numBlocks)
	for i := 1; i < numBlocks; i++ {
		splits = append(splits, i*step)
	}
	splits = append(splits, total)
	return splits
}
