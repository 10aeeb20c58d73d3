// Package zipcrc computes CRC-32/IEEE checksums (the reflected polynomial
// used throughout the ZIP format) over byte slices.
//
// Two implementations exist: a scalar byte-at-a-time table lookup, and a
// table-driven fold that processes sixteen bytes per step. Which one runs is
// decided once, at process startup, from CPU feature detection; callers
// never see the difference in output, only in throughput (spec.md §4.A,
// §9 "CRC-32 SIMD as a dispatch, not a protocol").
package zipcrc

import "sync"

const (
	// Polynomial is the reflected IEEE 802.3 CRC-32 polynomial used by ZIP,
	// gzip and Ethernet.
	Polynomial uint32 = 0xEDB88320

	initialState uint32 = 0xFFFFFFFF
)

var (
	tableOnce sync.Once
	byteTable [256]uint32
)

// scalarTable lazily builds the standard reflected 256-entry CRC-32 table.
// sync.Once makes the build happen exactly once, even when the first calls
// arrive concurrently (spec.md §5 "Shared resources").
func scalarTable() *[256]uint32 {
	tableOnce.Do(func() {
		for i := 0; i < 256; i++ {
			crc := uint32(i)
			for b := 0; b < 8; b++ {
				if crc&1 != 0 {
					crc = (crc >> 1) ^ Polynomial
				} else {
					crc >>= 1
				}
			}
			byteTable[i] = crc
		}
	})
	return &byteTable
}

// Init returns the initial CRC-32 state used before any bytes are folded in.
func Init() uint32 {
	return initialState
}

// Finalize applies the final XOR to produce the published CRC-32 value.
func Finalize(state uint32) uint32 {
	return state ^ initialState
}

// UpdateByte folds one byte into state using the scalar table.
func UpdateByte(state uint32, b byte) uint32 {
	t := scalarTable()
	return t[byte(state)^b] ^ (state >> 8)
}

// Update folds p into state, choosing the scalar or folded table path
// according to the dispatch selected at startup (see dispatch.go).
func Update(state uint32, p []byte) uint32 {
	return updateDispatch(state, p)
}

// Checksum computes the standard CRC-32/IEEE value of p in one call.
func Checksum(p []byte) uint32 {
	return Finalize(Update(Init(), p))
}

// updateScalar folds p into state one byte at a time. It is always correct
// and is also the ground truth the folded path is built from.
func updateScalar(state uint32, p []byte) uint32 {
	t := scalarTable()
	for _, b := range p {
		state = t[byte(state)^b] ^ (state >> 8)
	}
	return state
}
