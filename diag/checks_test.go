package diag

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckPermissions(t *testing.T) {
	tmpDir := t.TempDir()

	rwFile := filepath.Join(tmpDir, "ttyUSB0")
	if err := os.WriteFile(rwFile, []byte{}, 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if err := CheckPermissions(rwFile); err != nil {
		t.Errorf("CheckPermissions(%s) = %v, want nil", rwFile, err)
	}

	missing := filepath.Join(tmpDir, "ttyUSB9")
	if err := CheckPermissions(missing); !errors.Is(err, ErrPortNotFound) {
		t.Errorf("CheckPermissions(%s) = %v, want ErrPortNotFound", missing, err)
	}
}

func TestParseLsofHolders(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   int
	}{
		{
			name:   "one holder",
			output: "COMMAND PID USER FD TYPE DEVICE\npython3 1234 user 3u CHR 188,0\n",
			want:   1,
		},
		{
			name:   "two holders",
			output: "COMMAND PID USER FD TYPE DEVICE\npython3 1234 user 3u CHR 188,0\nscreen 99 user 5u CHR 188,0\n",
			want:   2,
		},
		{
			name:   "header only",
			output: "COMMAND PID USER FD TYPE DEVICE\n",
			want:   0,
		},
		{
			name:   "empty output",
			output: "",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			holders := parseLsofHolders(tt.output)
			if len(holders) != tt.want {
				t.Errorf("parseLsofHolders() returned %d holders, want %d", len(holders), tt.want)
			}
		})
	}
}

func TestReadSysfsFile(t *testing.T) {
	tmpDir := t.TempDir()

	tests := []struct {
		name     string
		content  string
		expected string
		create   bool
	}{
		{name: "normal value", content: "16\n", expected: "16", create: true},
		{name: "padded value", content: "  1  \n", expected: "1", create: true},
		{name: "empty file", content: "", expected: "", create: true},
		{name: "missing file", expected: "", create: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(tmpDir, tt.name)
			if tt.create {
				if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			if got := readSysfsFile(path); got != tt.expected {
				t.Errorf("readSysfsFile() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestLatencyTimerAt(t *testing.T) {
	sysRoot := t.TempDir()

	devDir := filepath.Join(sysRoot, "ttyUSB0")
	if err := os.MkdirAll(devDir, 0755); err != nil {
		t.Fatalf("Failed to create mock sysfs tree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(devDir, "latency_timer"), []byte("16\n"), 0644); err != nil {
		t.Fatalf("Failed to write latency_timer: %v", err)
	}

	result, err := latencyTimerAt(sysRoot, "ttyUSB0")
	if err != nil {
		t.Fatalf("latencyTimerAt() err = %v", err)
	}
	if result.Millis != 16 {
		t.Errorf("Millis = %d, want 16", result.Millis)
	}
	if result.Optimal() {
		t.Error("16 ms reported as optimal")
	}

	// Optimal setting.
	if err := os.WriteFile(filepath.Join(devDir, "latency_timer"), []byte("1\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite latency_timer: %v", err)
	}
	result, err = latencyTimerAt(sysRoot, "ttyUSB0")
	if err != nil {
		t.Fatalf("latencyTimerAt() err = %v", err)
	}
	if !result.Optimal() {
		t.Error("1 ms not reported as optimal")
	}

	// Missing attribute is an error (advisory to the caller).
	if _, err := latencyTimerAt(sysRoot, "ttyUSB1"); err == nil {
		t.Error("missing attribute did not error")
	}

	// Garbage value.
	if err := os.WriteFile(filepath.Join(devDir, "latency_timer"), []byte("lots\n"), 0644); err != nil {
		t.Fatalf("Failed to rewrite latency_timer: %v", err)
	}
	if _, err := latencyTimerAt(sysRoot, "ttyUSB0"); err == nil {
		t.Error("non-numeric attribute did not error")
	}
}
