// Package publish uploads kernel build artifacts to a storage backend.
package publish

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/kbuild/build"
	"github.com/bitswalk/kbuild/src/kbuild/storage"
	"github.com/bitswalk/kbuild/src/kbuild/workspace"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the publish package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Artifact is a build output file
type Artifact struct {
	Name        string
	Path        string
	ContentType string
	Size        int64
}

// candidates are the outputs published when present, relative to the build output directory
var candidates = []struct {
	name        string
	rel         string
	contentType string
}{
	{"Image", filepath.Join("arch", build.TargetArch, "boot", "Image"), "application/octet-stream"},
	{"Image.gz", filepath.Join("arch", build.TargetArch, "boot", "Image.gz"), "application/gzip"},
	{"Image.lz4", filepath.Join("arch", build.TargetArch, "boot", "Image.lz4"), "application/x-lz4"},
	{"config", ".config", "text/plain"},
}

// Collect lists the artifacts present under the layout's output directory
func Collect(layout workspace.Layout) []Artifact {
	var found []Artifact
	for _, c := range candidates {
		p := filepath.Join(layout.Out(), c.rel)
		info, err := os.Stat(p)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		found = append(found, Artifact{
			Name:        c.name,
			Path:        p,
			ContentType: c.contentType,
			Size:        info.Size(),
		})
	}
	return found
}

// Key is the storage key of an artifact: <defconfig>/<branch>/<run-id>/<name>
func Key(defconfig, branch, runID, name string) string {
	return path.Join(defconfig, branch, runID, name)
}

// Target identifies the build being published
type Target struct {
	Defconfig string
	Branch    string
	RunID     string
}

// Publisher uploads artifacts to a backend
type Publisher struct {
	backend storage.Backend
}

// New creates a publisher
func New(backend storage.Backend) *Publisher {
	return &Publisher{backend: backend}
}

// Publish uploads every artifact found in layout and returns their keys
func (p *Publisher) Publish(ctx context.Context, layout workspace.Layout, target Target) ([]string, error) {
	if err := p.backend.Ping(ctx); err != nil {
		return nil, errors.ErrStorageUnavailable.
			WithMessagef("%s storage at %s is not reachable", p.backend.Type(), p.backend.Location()).
			WithCause(err)
	}

	artifacts := Collect(layout)
	if len(artifacts) == 0 {
		return nil, errors.ErrPublishFailed.WithMessagef("no build artifacts found under %s", layout.Out())
	}

	var keys []string
	for _, a := range artifacts {
		key := Key(target.Defconfig, target.Branch, target.RunID, a.Name)
		if err := p.upload(ctx, a, key); err != nil {
			return keys, errors.ErrPublishFailed.WithCause(err)
		}
		log.Info("Published artifact", "name", a.Name, "size", a.Size, "backend", p.backend.Type(), "location", p.backend.Location(), "key", key)
		keys = append(keys, key)
	}

	return keys, nil
}

func (p *Publisher) upload(ctx context.Context, a Artifact, key string) error {
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	return p.backend.Upload(ctx, key, f, a.Size, a.ContentType)
}
