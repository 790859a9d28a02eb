package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLayoutPaths(t *testing.T) {
	l := New("/work", "clang-r1.tar.gz")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"tmp", l.Tmp(), "/work/tmp"},
		{"archive", l.Archive(), "/work/tmp/clang-r1.tar.gz"},
		{"part", l.ArchivePart(), "/work/tmp/clang-r1.tar.gz.part"},
		{"toolchain root", l.ToolchainRoot(), "/work/toolchain"},
		{"toolchain", l.Toolchain(), "/work/toolchain/clang"},
		{"toolchain bin", l.ToolchainBin(), "/work/toolchain/clang/bin"},
		{"source", l.Source(), "/work/kernel"},
		{"out", l.Out(), "/work/kernel/out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != filepath.FromSlash(tt.want) {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestMarkers(t *testing.T) {
	l := New(t.TempDir(), "clang.tar.gz")

	if l.HasArchive() || l.HasToolchain() || l.HasSource() {
		t.Fatal("an empty workspace has no markers")
	}

	// A directory named like the archive is not a cached archive
	if err := os.MkdirAll(l.Archive(), 0755); err != nil {
		t.Fatal(err)
	}
	if l.HasArchive() {
		t.Error("HasArchive should require a regular file")
	}
	if err := os.Remove(l.Archive()); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(l.ArchivePart(), []byte("half"), 0644); err != nil {
		t.Fatal(err)
	}
	if l.HasArchive() {
		t.Error("a partial download must not count as the archive")
	}

	if err := os.WriteFile(l.Archive(), []byte("tgz"), 0644); err != nil {
		t.Fatal(err)
	}
	if !l.HasArchive() {
		t.Error("HasArchive should see the cached archive")
	}

	if err := os.MkdirAll(l.Toolchain(), 0755); err != nil {
		t.Fatal(err)
	}
	if !l.HasToolchain() {
		t.Error("HasToolchain should see an empty toolchain directory")
	}

	if err := os.MkdirAll(l.Source(), 0755); err != nil {
		t.Fatal(err)
	}
	if !l.HasSource() {
		t.Error("HasSource should see the checkout directory")
	}
}
