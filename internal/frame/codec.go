// Package frame builds, checksums, and validates SSI wire frames.
package frame

import (
	"fmt"

	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
)

// BuildOption customizes a frame produced by Build.
type BuildOption func(*buildOpts)

type buildOpts struct {
	permanent    bool
	permanentSet bool
}

// WithPermanent overrides the automatic permanent/temporary flag selection.
func WithPermanent(permanent bool) BuildOption {
	return func(o *buildOpts) { o.permanent = permanent; o.permanentSet = true }
}

// Build produces a complete, checksummed host-originated frame for opcode
// with the given parameter bytes. The permanent/temporary STATUS bit is
// chosen automatically from the opcode class (ssi.IsPermanentByDefault)
// unless overridden with WithPermanent.
func Build(opcode byte, param []byte, opts ...BuildOption) ([]byte, error) {
	o := buildOpts{permanent: ssi.IsPermanentByDefault(opcode)}
	for _, f := range opts {
		f(&o)
	}
	length := ssi.HeaderLen + len(param)
	if length+2 > ssi.MaxFrame {
		return nil, fmt.Errorf("%w: param too large (%d bytes)", ssierr.ErrProtocol, len(param))
	}

	out := make([]byte, length+2)
	out[ssi.IdxLen] = byte(length)
	out[ssi.IdxOpcode] = opcode
	out[ssi.IdxSrc] = ssi.SrcHost
	if o.permanent {
		out[ssi.IdxStatus] = ssi.StatusPermanent
	} else {
		out[ssi.IdxStatus] = ssi.StatusTemporary
	}
	copy(out[ssi.HeaderLen:length], param)

	ck := Checksum(out[:length])
	out[length] = byte(ck >> 8)
	out[length+1] = byte(ck)
	return out, nil
}

// Checksum computes the SSI two's-complement checksum over header[0:LEN]
// (the header+param region, excluding the checksum trailer itself).
func Checksum(header []byte) uint16 {
	var sum uint32
	for _, b := range header {
		sum += uint32(b)
	}
	sum &= 0xFFFF
	sum ^= 0xFFFF // one's complement
	sum++         // two's complement
	return uint16(sum)
}

// Len returns the header+param length (frame[0]) as an int.
func Len(frame []byte) int { return int(frame[ssi.IdxLen]) }

// WireSize returns the total on-wire byte count (LEN+2) for a frame whose
// length byte has already been read.
func WireSize(frame []byte) int { return Len(frame) + 2 }

// Verify reports whether frame is a well-formed device-originated frame:
// SRC must equal DECODER and the trailing checksum must match. Per spec
// design note §9 this replaces the ambiguous bitwise-OR source check in
// the original C source with a direct equality test.
func Verify(frame []byte) error {
	if len(frame) < ssi.HeaderLen+2 {
		return fmt.Errorf("%w: short frame (%d bytes)", ssierr.ErrProtocol, len(frame))
	}
	l := Len(frame)
	if l < ssi.HeaderLen || l+2 > ssi.MaxFrame || l+2 > len(frame) {
		return fmt.Errorf("%w: invalid length %d", ssierr.ErrProtocol, l)
	}
	if frame[ssi.IdxSrc] != ssi.SrcDecoder {
		return fmt.Errorf("%w: unexpected source 0x%02x", ssierr.ErrProtocol, frame[ssi.IdxSrc])
	}
	want := Checksum(frame[:l])
	got := uint16(frame[l])<<8 | uint16(frame[l+1])
	if want != got {
		return fmt.Errorf("%w: checksum mismatch (want 0x%04x got 0x%04x)", ssierr.ErrProtocol, want, got)
	}
	return nil
}

// IsContinuation reports whether frame's STATUS byte has the continuation
// bit set, meaning additional fragments complete the logical response.
func IsContinuation(frame []byte) bool {
	return frame[ssi.IdxStatus]&ssi.StatusContinue != 0
}

// BuildNak produces a bare host NAK frame carrying reason in the STATUS
// byte. Per spec design note §9, the NAK reason occupies the whole STATUS
// byte rather than an OR'd flag bit, so it bypasses Build's permanent/
// temporary selection.
func BuildNak(reason ssi.NakReason) []byte {
	out := make([]byte, ssi.HeaderLen+2)
	out[ssi.IdxLen] = ssi.HeaderLen
	out[ssi.IdxOpcode] = ssi.OpNAK
	out[ssi.IdxSrc] = ssi.SrcHost
	out[ssi.IdxStatus] = byte(reason)
	ck := Checksum(out[:ssi.HeaderLen])
	out[ssi.HeaderLen] = byte(ck >> 8)
	out[ssi.HeaderLen+1] = byte(ck)
	return out
}
