package zipcrc

import (
	"bytes"

	"github.com/klauspost/cpuid/v2"

	"github.com/zopflizip/zopflizip/internal/logx"
)

// checkVector is the standard CRC-32 test string from the ASCII check
// value convention ("123456789" -> 0xCBF43926), repeated past one full
// fold lane so the startup self-check actually exercises updateFolded
// instead of its short-input scalar fallback.
var checkVector = bytes.Repeat([]byte("123456789"), 4)

// minFoldLen is the minimum buffer size for which the folded path pays for
// its setup; spec.md §4.A says "for buffers >= 64 bytes" use the fold path,
// but since this implementation processes one 16-byte lane per step rather
// than four in parallel, a single full lane is already worth folding.
const minFoldLen = foldLaneLen

// updateDispatch is swapped for dispatchFolded at init time when the CPU
// offers a carry-less multiply instruction (the primitive the hardware
// fold path builds on). The decision is made once; callers never branch on
// CPU features themselves (spec.md §9, "a dispatch, not a protocol").
var updateDispatch = updateScalar

func init() {
	if !hasCarrylessMultiply() {
		return
	}
	want := updateScalar(Init(), checkVector)
	if updateFolded(Init(), checkVector) != want {
		logx.Log.Warn("zipcrc: folded CRC-32 path disagreed with scalar path on startup check vector, falling back to scalar")
		return
	}
	updateDispatch = dispatchFolded
}

func hasCarrylessMultiply() bool {
	return cpuid.CPU.Supports(cpuid.PCLMULQDQ) || cpuid.CPU.Supports(cpuid.PMULL)
}

// dispatchFolded runs the folded path for buffers large enough to benefit,
// and the scalar path otherwise.
func dispatchFolded(state uint32, p []byte) uint32 {
	if len(p) < minFoldLen {
		return updateScalar(state, p)
	}
	return updateFolded(state, p)
}
