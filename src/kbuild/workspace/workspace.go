// Package workspace describes the on-disk layout of a kbuild run.
//
// The presence of each path is the only record that a prerequisite has already
// been acquired; there is no state file.
package workspace

import (
	"path/filepath"

	"github.com/bitswalk/kbuild/src/common/paths"
)

// Directory names relative to the working directory
const (
	TmpDir       = "tmp"
	ToolchainDir = "toolchain"
	ClangDir     = "clang"
	SourceDir    = "kernel"
	OutDir       = "out"

	// PartSuffix marks an archive that is still being downloaded
	PartSuffix = ".part"
)

// Layout resolves every workspace path against an absolute root
type Layout struct {
	Root        string
	ArchiveName string
}

// New returns the layout for root and the toolchain archive file name
func New(root, archiveName string) Layout {
	return Layout{Root: root, ArchiveName: archiveName}
}

// Tmp is the download cache directory
func (l Layout) Tmp() string {
	return filepath.Join(l.Root, TmpDir)
}

// Archive is the cached toolchain archive
func (l Layout) Archive() string {
	return filepath.Join(l.Tmp(), l.ArchiveName)
}

// ArchivePart is the in-progress download of the archive
func (l Layout) ArchivePart() string {
	return l.Archive() + PartSuffix
}

// ToolchainRoot is the parent of the extracted toolchain
func (l Layout) ToolchainRoot() string {
	return filepath.Join(l.Root, ToolchainDir)
}

// Toolchain is the extracted toolchain directory
func (l Layout) Toolchain() string {
	return filepath.Join(l.ToolchainRoot(), ClangDir)
}

// ToolchainBin holds the toolchain executables prepended to PATH
func (l Layout) ToolchainBin() string {
	return filepath.Join(l.Toolchain(), "bin")
}

// Source is the kernel checkout
func (l Layout) Source() string {
	return filepath.Join(l.Root, SourceDir)
}

// Out is the kernel build output directory
func (l Layout) Out() string {
	return filepath.Join(l.Source(), OutDir)
}

// HasArchive reports whether the toolchain archive is cached as a regular file
func (l Layout) HasArchive() bool {
	return paths.IsFile(l.Archive())
}

// HasToolchain reports whether the toolchain directory exists.
// Completeness of a previous extraction is not checked.
func (l Layout) HasToolchain() bool {
	return paths.Exists(l.Toolchain())
}

// HasSource reports whether the kernel checkout directory exists
func (l Layout) HasSource() bool {
	return paths.Exists(l.Source())
}
