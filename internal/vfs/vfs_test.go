package vfs

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	fs := New()

	f, err := fs.Open("/tmp/greeting", OpenRead|OpenWrite|OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := f.Write([]byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := f.Seek(0); err != nil {
		t.Fatalf("seek: %v", err)
	}

	buf := make([]byte, 5)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 5 || string(buf) != "hello" {
		t.Fatalf("expected to read back %q, got %q (n=%d)", "hello", buf, n)
	}
}

func TestOpenWithoutCreateFails(t *testing.T) {
	fs := New()

	if _, err := fs.Open("/nope", OpenRead); err == nil {
		t.Fatal("expected error opening nonexistent file without OpenCreate")
	}
}

func TestReadPastEOFReturnsZero(t *testing.T) {
	fs := New()
	f, err := fs.Open("/empty", OpenRead|OpenCreate)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	buf := make([]byte, 16)
	n, err := f.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 bytes read at EOF, got %d", n)
	}
}

func TestDirectoryCannotBeOpenedAsFile(t *testing.T) {
	fs := New()
	if err := fs.Mkdir("/etc"); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if _, err := fs.Open("/etc", OpenRead); err == nil {
		t.Fatal("expected error opening a directory as a file")
	}
}

func TestIndependentCursorsPerHandle(t *testing.T) {
	fs := New()

	w, err := fs.Open("/f", OpenWrite|OpenCreate)
	if err != nil {
		t.Fatalf("open for write: %v", err)
	}
	if _, err := w.Write([]byte("abcdef")); err != nil {
		t.Fatalf("write: %v", err)
	}

	r1, err := fs.Open("/f", OpenRead)
	if err != nil {
		t.Fatalf("open for read 1: %v", err)
	}
	r2, err := fs.Open("/f", OpenRead)
	if err != nil {
		t.Fatalf("open for read 2: %v", err)
	}

	buf1 := make([]byte, 3)
	if _, err := r1.Read(buf1); err != nil {
		t.Fatalf("read 1: %v", err)
	}

	buf2 := make([]byte, 6)
	n2, err := r2.Read(buf2)
	if err != nil {
		t.Fatalf("read 2: %v", err)
	}

	if string(buf1) != "abc" {
		t.Fatalf("expected first handle to read %q, got %q", "abc", buf1)
	}
	if n2 != 6 || string(buf2) != "abcdef" {
		t.Fatalf("expected second handle's independent cursor to read all 6 bytes, got %q (n=%d)", buf2, n2)
	}
}
