package logging

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveDir(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		exeDir     string
		want       string
	}{
		{"configured wins", "/var/log/mcs", "/opt/mcs", "/var/log/mcs"},
		{"next to binary", "", "/opt/mcs", filepath.Join("/opt/mcs", "logs")},
		{"working directory", "", "", "logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveDir(tt.configured, tt.exeDir); got != tt.want {
				t.Errorf("resolveDir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEnsureWritable(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	if err := ensureWritable(dir); err != nil {
		t.Fatalf("ensureWritable() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ".write-test")); !os.IsNotExist(err) {
		t.Errorf("probe file left behind")
	}
}
