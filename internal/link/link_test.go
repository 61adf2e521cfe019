package link

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/styl-solutions/ssi-scanner/internal/frame"
	"github.com/styl-solutions/ssi-scanner/internal/ssi"
	"github.com/styl-solutions/ssi-scanner/internal/ssierr"
)

// deviceFrame builds a device-originated (SRC=DECODER) frame for scripting
// a fake device in tests.
func deviceFrame(opcode, status byte, param []byte) []byte {
	length := ssi.HeaderLen + len(param)
	out := make([]byte, length+2)
	out[ssi.IdxLen] = byte(length)
	out[ssi.IdxOpcode] = opcode
	out[ssi.IdxSrc] = ssi.SrcDecoder
	out[ssi.IdxStatus] = status
	copy(out[ssi.HeaderLen:length], param)
	ck := frame.Checksum(out[:length])
	out[length] = byte(ck >> 8)
	out[length+1] = byte(ck)
	return out
}

func TestSendFrame_ScanEnable_ACK(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 64)
		n, err := dev.Read(buf)
		if err != nil {
			done <- err
			return
		}
		want := []byte{0x04, 0xE9, 0x04, 0x08, 0xFF, 0x07}
		if string(buf[:n]) != string(want) {
			done <- errAssert("unexpected wire bytes")
			return
		}
		_, err = dev.Write(deviceFrame(ssi.OpACK, ssi.StatusDefault, nil))
		done <- err
	}()

	l := New(host, time.Second)
	if err := l.SendFrame(ssi.OpScanEnable, nil); err != nil {
		t.Fatalf("SendFrame: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("device goroutine: %v", err)
	}
}

func TestSendFrame_NAK(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	go func() {
		buf := make([]byte, 64)
		_, _ = dev.Read(buf)
		_, _ = dev.Write(deviceFrame(ssi.OpNAK, byte(ssi.NakDenied), nil))
	}()

	l := New(host, time.Second)
	err := l.SendFrame(ssi.OpStartSession, nil)
	var nakErr *ssierr.NakError
	if !errors.As(err, &nakErr) {
		t.Fatalf("SendFrame error = %v, want *ssierr.NakError", err)
	}
	if nakErr.Reason != ssi.NakDenied {
		t.Fatalf("reason = %v, want DENIED", nakErr.Reason)
	}
}

// TestSendFrame_NoACK_TimesOut is invariant (4) from spec.md §8: a non-ACK
// command against a device that never replies returns a transport error.
func TestSendFrame_NoACK_TimesOut(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	go func() {
		buf := make([]byte, 64)
		_, _ = dev.Read(buf) // drain the write, never reply
	}()

	l := New(host, 100*time.Millisecond)
	err := l.SendFrame(ssi.OpStartSession, nil)
	if !errors.Is(err, ssierr.ErrTransport) {
		t.Fatalf("SendFrame error = %v, want ErrTransport", err)
	}
}

// TestRecvFrame_ChecksumFailure_SendsNak is scenario (b) from spec.md §8.
func TestRecvFrame_ChecksumFailure_SendsNak(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	bad := deviceFrame(ssi.OpDecodeData, ssi.StatusDefault, []byte("X12345"))
	bad[len(bad)-1] ^= 0xFF
	bad[len(bad)-2] ^= 0xFF

	nakSeen := make(chan []byte, 1)
	go func() {
		_, _ = dev.Write(bad)
		buf := make([]byte, 64)
		n, _ := dev.Read(buf)
		nakSeen <- buf[:n]
	}()

	l := New(host, time.Second)
	out := make([]byte, 64)
	_, err := l.RecvFrame(out)
	if !errors.Is(err, ssierr.ErrProtocol) {
		t.Fatalf("RecvFrame error = %v, want ErrProtocol", err)
	}
	got := <-nakSeen
	if got[ssi.IdxOpcode] != ssi.OpNAK || ssi.NakReason(got[ssi.IdxStatus]) != ssi.NakResend {
		t.Fatalf("expected NAK(RESEND) on the wire, got % x", got)
	}
}

// TestRecvFrame_MultiFragment is scenario (c): two fragments, continuation
// set on the first only, concatenate into one reassembled response.
func TestRecvFrame_MultiFragment(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	f1 := deviceFrame(ssi.OpDecodeData, ssi.StatusContinue, []byte("X12345"))
	f2 := deviceFrame(ssi.OpDecodeData, ssi.StatusDefault, []byte("X67890"))

	go func() {
		_, _ = dev.Write(f1)
		ackBuf := make([]byte, 64)
		_, _ = dev.Read(ackBuf) // ACK for f1
		_, _ = dev.Write(f2)
		_, _ = dev.Read(ackBuf) // ACK for f2
	}()

	l := New(host, time.Second)
	out := make([]byte, 64)
	n, err := l.RecvFrame(out)
	if err != nil {
		t.Fatalf("RecvFrame: %v", err)
	}
	if n != len(f1)+len(f2) {
		t.Fatalf("n = %d, want %d", n, len(f1)+len(f2))
	}
}

// TestRecvFrame_BufferTooSmall is scenario (e).
func TestRecvFrame_BufferTooSmall(t *testing.T) {
	host, dev := net.Pipe()
	defer host.Close()
	defer dev.Close()

	big := deviceFrame(ssi.OpDecodeData, ssi.StatusDefault, []byte("123456789"))
	go func() { _, _ = dev.Write(big) }()

	l := New(host, time.Second)
	out := make([]byte, 4)
	n, err := l.RecvFrame(out)
	if !errors.Is(err, ssierr.ErrBufferTooSmall) {
		t.Fatalf("RecvFrame error = %v, want ErrBufferTooSmall", err)
	}
	if n != 0 {
		t.Fatalf("n = %d, want 0 (nothing committed before overflow)", n)
	}
}

type errAssert string

func (e errAssert) Error() string { return string(e) }
