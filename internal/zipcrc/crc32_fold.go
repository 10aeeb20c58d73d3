package zipcrc

import "sync"

// The folded path processes input sixteen bytes (one 128-bit lane) per
// step instead of one byte per step. It is derived mechanically from the
// scalar step function rather than hand-transcribed from the hardware
// PCLMULQDQ/PMULL fold constants, so it is bit-exact with the scalar path
// by construction:
//
// Let step(crc, b) = table[byte(crc)^b] ^ (crc>>8) be the scalar per-byte
// update. step is GF(2)-linear jointly in (crc, b), so it decomposes as
//
//	step(crc, b) = A(crc) XOR B(b)
//
// where A(crc) = step(crc, 0) and B(b) = step(0, b) = table[b]. Folding N
// bytes b[0..N-1] into a starting state S (b[0] applied first) therefore
// equals
//
//	A^N(S) XOR A^(N-1)(B(b[0])) XOR A^(N-2)(B(b[1])) XOR ... XOR B(b[N-1])
//
// Both A^N (applied to a 32-bit state) and each A^(N-1-k) o B (applied to a
// byte) are themselves GF(2)-linear maps, so each can be precomputed as a
// small set of 256-entry lookup tables, exactly like the familiar
// "slice-by-N" CRC speedup. We use N = 16 so that one fold step consumes
// one 128-bit lane, matching the lane width spec.md §4.A describes for the
// hardware carry-less-multiply fold (K1/K2 fold four lanes per step on
// real hardware; pure Go cannot issue the underlying vector instructions,
// so this implementation folds one lane per step and relies on the Go
// compiler to unroll the inner loop instead).
const foldLaneLen = 16

var (
	foldOnce     sync.Once
	laneByte     [foldLaneLen][256]uint32 // laneByte[k][b] = A^(foldLaneLen-1-k)(B(b))
	stateForward [4][256]uint32           // stateForward[i][b] = A^foldLaneLen(uint32(b) << (8*i))
)

// applyA advances crc by one zero byte: A(crc) = step(crc, 0).
func applyA(crc uint32) uint32 {
	return UpdateByte(crc, 0)
}

func buildFoldTables() {
	scalarTable() // ensure the byte table exists first

	for b := 0; b < 256; b++ {
		// A^(foldLaneLen-1-k)(B(b)) for k = foldLaneLen-1 down to 0.
		v := byteTable[b]
		laneByte[foldLaneLen-1][b] = v
		for k := foldLaneLen - 2; k >= 0; k-- {
			v = applyA(v)
			laneByte[k][b] = v
		}
	}

	for i := 0; i < 4; i++ {
		for b := 0; b < 256; b++ {
			v := uint32(b) << uint(8*i)
			for n := 0; n < foldLaneLen; n++ {
				v = applyA(v)
			}
			stateForward[i][b] = v
		}
	}
}

func foldTables() {
	foldOnce.Do(buildFoldTables)
}

// shiftState16 computes A^16(crc) via the four precomputed byte tables.
func shiftState16(crc uint32) uint32 {
	return stateForward[0][byte(crc)] ^
		stateForward[1][byte(crc>>8)] ^
		stateForward[2][byte(crc>>16)] ^
		stateForward[3][byte(crc>>24)]
}

// updateFolded folds p into state sixteen bytes at a time, falling back to
// the scalar path for the final partial lane (spec.md §4.A: "any tail < 16
// bytes falls through to the scalar path").
func updateFolded(state uint32, p []byte) uint32 {
	foldTables()

	for len(p) >= foldLaneLen {
		lane := p[:foldLaneLen]
		next := shiftState16(state)
		for k := 0; k < foldLaneLen; k++ {
			next ^= laneByte[k][lane[k]]
		}
		state = next
		p = p[foldLaneLen:]
	}
	if len(p) > 0 {
		state = updateScalar(state, p)
	}
	return state
}
