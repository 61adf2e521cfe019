package frame

import (
	"bytes"
	"testing"

	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"pgregory.net/rapid"
)

// TestChecksumRoundTripProperty is invariant (1) from spec.md §8: for all
// (opcode, param), verify(build(opcode, param)) succeeds.
func TestChecksumRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		opcode := rapid.Byte().Draw(t, "opcode")
		n := rapid.IntRange(0, ssi.MaxFrame-ssi.HeaderLen-2).Draw(t, "paramLen")
		param := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "param")

		fr, err := Build(opcode, param)
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		if fr[ssi.IdxSrc] != ssi.SrcHost {
			t.Fatalf("built frame SRC = 0x%02x, want HOST", fr[ssi.IdxSrc])
		}
		// Re-point SRC at DECODER and recompute the checksum to exercise
		// Verify the way a real device echo would arrive.
		fr[ssi.IdxSrc] = ssi.SrcDecoder
		l := Len(fr)
		ck := Checksum(fr[:l])
		fr[l] = byte(ck >> 8)
		fr[l+1] = byte(ck)
		if err := Verify(fr); err != nil {
			t.Fatalf("Verify(Build(0x%02x, %d bytes)): %v", opcode, n, err)
		}
	})
}

// TestContinuationReassemblyProperty is invariant (5): a stream of k frames
// with the continuation bit set on the first k-1 concatenates in order and
// the returned byte count equals the sum of wire sizes.
func TestContinuationReassemblyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		k := rapid.IntRange(1, 6).Draw(t, "k")
		var stream bytes.Buffer
		wireTotal := 0
		for i := 0; i < k; i++ {
			n := rapid.IntRange(0, 16).Draw(t, "fragLen")
			param := rapid.SliceOfN(rapid.Byte(), n, n).Draw(t, "fragParam")
			status := ssi.StatusDefault
			if i < k-1 {
				status = ssi.StatusContinue
			}
			length := ssi.HeaderLen + n
			fr := make([]byte, length+2)
			fr[ssi.IdxLen] = byte(length)
			fr[ssi.IdxOpcode] = ssi.OpDecodeData
			fr[ssi.IdxSrc] = ssi.SrcDecoder
			fr[ssi.IdxStatus] = status
			copy(fr[ssi.HeaderLen:length], param)
			ck := Checksum(fr[:length])
			fr[length] = byte(ck >> 8)
			fr[length+1] = byte(ck)
			stream.Write(fr)
			wireTotal += len(fr)
		}

		// Walk the stream the way RecvFrame's caller would, summing bytes
		// assembled until the non-continuation frame is reached.
		data := stream.Bytes()
		assembled := 0
		for {
			if err := Verify(data[assembled:]); err != nil {
				t.Fatalf("Verify: %v", err)
			}
			wsz := WireSize(data[assembled:])
			cont := IsContinuation(data[assembled : assembled+wsz])
			assembled += wsz
			if !cont {
				break
			}
		}
		if assembled != wireTotal {
			t.Fatalf("assembled %d bytes, want %d", assembled, wireTotal)
		}
	})
}
