package main

import "testing"

func TestRunWithoutDeviceTreeReachesTimeout(t *testing.T) {
	code := run([]string{"-timeout", "50ms"})
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
}

func TestRunRejectsUnreadableDeviceTree(t *testing.T) {
	code := run([]string{"-dtb", "/nonexistent/no-such-file.dtb"})
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}
