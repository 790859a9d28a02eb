// Package toolchain unpacks the prebuilt cross-compilation toolchain and
// checks that the binaries the kernel build resolves are in place.
package toolchain

import (
	"archive/tar"
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the toolchain package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Format is a supported archive encoding
type Format string

const (
	FormatTarGz  Format = "tar.gz"
	FormatTarXz  Format = "tar.xz"
	FormatTarZst Format = "tar.zst"
	FormatTarBz2 Format = "tar.bz2"
	FormatTar    Format = "tar"
)

// magicSize is how many leading bytes DetectFormat needs to recognise a plain tar
const magicSize = 262

// DetectFormat identifies the archive encoding from its first bytes. Anything
// unrecognised is treated as a gzip tar, the format prebuilt toolchains ship in.
func DetectFormat(magic []byte) Format {
	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		return FormatTarGz
	case bytes.HasPrefix(magic, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}):
		return FormatTarXz
	case bytes.HasPrefix(magic, []byte{0x28, 0xb5, 0x2f, 0xfd}):
		return FormatTarZst
	case bytes.HasPrefix(magic, []byte("BZh")):
		return FormatTarBz2
	case len(magic) >= magicSize && bytes.HasPrefix(magic[257:], []byte("ustar")):
		return FormatTar
	default:
		return FormatTarGz
	}
}

// Stats summarises an extraction
type Stats struct {
	Files    int
	Dirs     int
	Links    int
	Bytes    int64
	Format   Format
	DestPath string
}

// Extractor unpacks tar archives into a directory
type Extractor struct{}

// NewExtractor creates a new extractor
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract unpacks archivePath into destDir, which must already exist.
// Entries that would land outside destDir are rejected.
func (e *Extractor) Extract(ctx context.Context, archivePath, destDir string) (*Stats, error) {
	file, err := os.Open(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	magic := make([]byte, magicSize)
	n, err := io.ReadFull(file, magic)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, fmt.Errorf("failed to read archive header: %w", err)
	}
	format := DetectFormat(magic[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind archive: %w", err)
	}
	log.Debug("Detected archive format", "archive", archivePath, "format", format)

	reader, closeFn, err := decompressor(format, file)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	stats := &Stats{Format: format, DestPath: destDir}
	root, err := filepath.EvalSymlinks(destDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", destDir, err)
	}
	tr := tar.NewReader(reader)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar header: %w", err)
		}

		target, err := within(root, header.Name)
		if err != nil {
			return nil, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := prepare(root, target); err != nil {
				return nil, err
			}
			if err := os.MkdirAll(target, dirMode(header.Mode)); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
			stats.Dirs++

		case tar.TypeReg:
			if err := prepare(root, target); err != nil {
				return nil, err
			}
			n, err := writeFile(target, tr, os.FileMode(header.Mode).Perm())
			if err != nil {
				return nil, err
			}
			stats.Files++
			stats.Bytes += n

		case tar.TypeSymlink:
			if err := prepare(root, target); err != nil {
				return nil, err
			}
			if err := symlink(root, target, header.Linkname); err != nil {
				return nil, fmt.Errorf("symlink %s: %w", header.Name, err)
			}
			stats.Links++

		case tar.TypeLink:
			linkTarget, err := within(root, header.Linkname)
			if err != nil {
				return nil, err
			}
			if _, err := resolve(root, filepath.Dir(linkTarget)); err != nil {
				return nil, err
			}
			if err := prepare(root, target); err != nil {
				return nil, err
			}
			if err := os.Link(linkTarget, target); err != nil {
				return nil, fmt.Errorf("failed to create hard link: %w", err)
			}
			stats.Links++

		default:
			log.Debug("Skipping unsupported tar entry", "name", header.Name, "type", header.Typeflag)
		}
	}

	return stats, nil
}

// decompressor wraps r according to the archive format
func decompressor(format Format, r io.Reader) (io.Reader, func(), error) {
	noop := func() {}

	switch format {
	case FormatTarGz:
		gz, err := pgzip.NewReader(r)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gz, func() { gz.Close() }, nil

	case FormatTarXz:
		xzr, err := xz.NewReader(r)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create xz reader: %w", err)
		}
		return xzr, noop, nil

	case FormatTarZst:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		return zr, zr.Close, nil

	case FormatTarBz2:
		return bzip2.NewReader(r), noop, nil

	default:
		return r, noop, nil
	}
}

// within joins name onto root and fails if the result escapes root.
// Names with ".." components are refused outright because the kernel resolves
// them after any symlink already on disk, not lexically.
func within(root, name string) (string, error) {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", fmt.Errorf("invalid tar path: %s", name)
		}
	}
	target := filepath.Join(root, name)
	if !inside(root, target) {
		return "", fmt.Errorf("invalid tar path: %s", name)
	}
	return target, nil
}

func inside(root, path string) bool {
	clean := filepath.Clean(path)
	return clean == root || strings.HasPrefix(clean, root+string(os.PathSeparator))
}

// resolve returns where path lands on disk once the symlinks extracted so far
// are followed, and fails when that is outside root. Components that do not
// exist yet are appended unresolved; a dangling symlink on the way is refused.
func resolve(root, path string) (string, error) {
	var missing []string
	current := path
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			if !inside(root, resolved) {
				return "", fmt.Errorf("path %s resolves outside the toolchain: %s", path, resolved)
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		if _, lerr := os.Lstat(current); lerr == nil {
			return "", fmt.Errorf("path %s goes through dangling symlink %s", path, current)
		}

		parent := filepath.Dir(current)
		if parent == current {
			return "", fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		missing = append(missing, filepath.Base(current))
		current = parent
	}
}

// prepare makes the parent of target exist inside root and clears a previous
// non-directory entry at target, so later writes never follow an old symlink
func prepare(root, target string) error {
	if target == root {
		return nil
	}
	parent, err := resolve(root, filepath.Dir(target))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(parent, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	if info, err := os.Lstat(target); err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("failed to replace %s: %w", target, err)
		}
	}
	return nil
}

// symlink creates target -> linkname and refuses links that point outside
// root, both as written and once resolved through the links already on disk
func symlink(root, target, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("points outside the toolchain: %s", linkname)
	}
	parent, err := resolve(root, filepath.Dir(target))
	if err != nil {
		return err
	}
	if !inside(root, filepath.Join(parent, linkname)) {
		return fmt.Errorf("points outside the toolchain: %s", linkname)
	}

	if err := os.Symlink(linkname, target); err != nil {
		return fmt.Errorf("failed to create symlink: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil && !inside(root, resolved) {
		_ = os.Remove(target)
		return fmt.Errorf("points outside the toolchain: %s", linkname)
	}
	return nil
}

func writeFile(target string, r io.Reader, mode os.FileMode) (int64, error) {
	if mode == 0 {
		mode = 0644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}
	n, err := io.Copy(out, r)
	if err != nil {
		out.Close()
		return n, fmt.Errorf("failed to write file: %w", err)
	}
	if err := out.Close(); err != nil {
		return n, fmt.Errorf("failed to close file: %w", err)
	}
	return n, nil
}

func dirMode(mode int64) os.FileMode {
	m := os.FileMode(mode).Perm()
	if m == 0 {
		return 0755
	}
	return m | 0700
}
