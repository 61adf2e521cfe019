package main

import "testing"

func TestRun_Version(t *testing.T) {
	var out, errw buf
	if code := run([]string{"-version"}, &out, &errw); code != 0 {
		t.Fatalf("run(-version) = %d, want 0", code)
	}
	if len(out.data) == 0 {
		t.Fatal("expected version string on stdout")
	}
}

func TestRun_BadDevice(t *testing.T) {
	var out, errw buf
	code := run([]string{"-device", "/nonexistent/path", "-timeout", "50ms"}, &out, &errw)
	if code != 2 {
		t.Fatalf("run against nonexistent device = %d, want 2 (open failure)", code)
	}
}

func TestRun_BadFlag(t *testing.T) {
	var out, errw buf
	if code := run([]string{"-not-a-flag"}, &out, &errw); code != 1 {
		t.Fatalf("run(-not-a-flag) = %d, want 1", code)
	}
}

type buf struct{ data []byte }

func (b *buf) Write(p []byte) (int, error) {
	b.data = append(b.data, p...)
	return len(p), nil
}
