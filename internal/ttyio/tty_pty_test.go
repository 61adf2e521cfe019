package ttyio

import (
	"testing"
	"time"

	"github.com/creack/pty"
)

// TestConfigureAgainstRealPTY exercises the termios configuration path
// against an actual line discipline rather than a mock, the way
// doismellburning-samoyed's kiss.go uses pty.Open() to drive its serial
// code under test.
func TestConfigureAgainstRealPTY(t *testing.T) {
	master, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable in this sandbox: %v", err)
	}
	defer master.Close()
	defer slave.Close()

	tty, err := Open(slave.Name(), 9600)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tty.Close()

	want := []byte{0x04, 0xE9, 0x04, 0x08, 0xFF, 0x07}
	if _, err := master.Write(want); err != nil {
		t.Fatalf("master write: %v", err)
	}

	if err := tty.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	buf := make([]byte, len(want))
	got := 0
	for got < len(buf) {
		n, err := tty.Read(buf[got:])
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		got += n
	}
	if string(buf) != string(want) {
		t.Fatalf("got %v, want %v", buf, want)
	}
}

func TestOpenRejectsUnsupportedBaud(t *testing.T) {
	_, slave, err := pty.Open()
	if err != nil {
		t.Skipf("pty unavailable in this sandbox: %v", err)
	}
	defer slave.Close()

	if _, err := Open(slave.Name(), 31250); err == nil {
		t.Fatal("expected error for unsupported baud rate")
	}
}
