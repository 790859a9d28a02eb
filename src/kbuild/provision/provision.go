// Package provision makes sure the toolchain archive, the extracted toolchain
// and the kernel checkout exist before a build, acquiring only what is missing.
package provision

import (
	"context"
	"time"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/common/paths"
	"github.com/bitswalk/kbuild/src/kbuild/config"
	"github.com/bitswalk/kbuild/src/kbuild/download"
	"github.com/bitswalk/kbuild/src/kbuild/source"
	"github.com/bitswalk/kbuild/src/kbuild/toolchain"
	"github.com/bitswalk/kbuild/src/kbuild/workspace"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the provision package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Fetcher downloads the toolchain archive
type Fetcher interface {
	Fetch(ctx context.Context, req download.Request, progressCb download.ProgressCallback) (*download.Result, error)
}

// Extractor unpacks the toolchain archive
type Extractor interface {
	Extract(ctx context.Context, archivePath, destDir string) (*toolchain.Stats, error)
}

// Cloner checks out the kernel source
type Cloner interface {
	Clone(ctx context.Context, url, ref, dest string) (*source.Result, error)
}

// ActionKind names an acquisition step
type ActionKind string

const (
	ActionDownload ActionKind = "download"
	ActionExtract  ActionKind = "extract"
	ActionCheckout ActionKind = "checkout"
)

// Action records a step that actually ran
type Action struct {
	Kind     ActionKind
	Target   string
	Duration time.Duration
}

// Provisioner acquires missing prerequisites, in a fixed order
type Provisioner struct {
	cfg       *config.Config
	layout    workspace.Layout
	fetcher   Fetcher
	extractor Extractor
	cloner    Cloner
	progress  download.ProgressCallback
}

// New creates a provisioner
func New(cfg *config.Config, layout workspace.Layout, fetcher Fetcher, extractor Extractor, cloner Cloner) *Provisioner {
	return &Provisioner{
		cfg:       cfg,
		layout:    layout,
		fetcher:   fetcher,
		extractor: extractor,
		cloner:    cloner,
	}
}

// SetProgress sets the callback that receives download progress
func (p *Provisioner) SetProgress(cb download.ProgressCallback) {
	p.progress = cb
}

// Ensure runs the archive, toolchain and source steps and returns the actions taken.
// When every prerequisite is present it returns no actions. The first failure
// aborts; earlier results are left on disk.
func (p *Provisioner) Ensure(ctx context.Context) ([]Action, error) {
	var actions []Action

	steps := []func(context.Context) (*Action, error){
		p.ensureArchive,
		p.ensureToolchain,
		p.ensureSource,
	}
	for _, step := range steps {
		action, err := step(ctx)
		if err != nil {
			return actions, err
		}
		if action != nil {
			actions = append(actions, *action)
		}
	}

	return actions, nil
}

func (p *Provisioner) ensureArchive(ctx context.Context) (*Action, error) {
	if err := paths.EnsureDirPath(p.layout.Tmp()); err != nil {
		return nil, errors.ErrWorkspace.WithCause(err).WithMessagef("failed to create %s", p.layout.Tmp())
	}

	if p.layout.HasArchive() {
		log.Debug("Toolchain archive cached, skipping download", "path", p.layout.Archive())
		return nil, nil
	}

	log.Info("Downloading toolchain", "url", p.cfg.PrebuiltURL, "dest", p.layout.Archive())
	start := time.Now()
	res, err := p.fetcher.Fetch(ctx, download.Request{
		URL:    p.cfg.PrebuiltURL,
		Dest:   p.layout.Archive(),
		SHA256: p.cfg.PrebuiltSHA256,
	}, p.progress)
	if err != nil {
		if errors.Is(err, errors.ErrChecksumMismatch) {
			return nil, err
		}
		return nil, errors.ErrDownloadFailed.WithCause(err)
	}

	log.Info("Toolchain downloaded",
		"path", res.Path,
		"size", res.Size,
		"sha256", res.Checksum,
		"resumed", res.Resumed)

	return &Action{Kind: ActionDownload, Target: p.layout.Archive(), Duration: time.Since(start)}, nil
}

func (p *Provisioner) ensureToolchain(ctx context.Context) (*Action, error) {
	if p.layout.HasToolchain() {
		log.Debug("Toolchain directory present, skipping extraction", "path", p.layout.Toolchain())
		return nil, nil
	}

	for _, dir := range []string{p.layout.ToolchainRoot(), p.layout.Toolchain()} {
		if err := paths.EnsureDirPath(dir); err != nil {
			return nil, errors.ErrWorkspace.WithCause(err).WithMessagef("failed to create %s", dir)
		}
	}

	log.Info("Extracting toolchain", "archive", p.layout.Archive(), "dest", p.layout.Toolchain())
	start := time.Now()
	stats, err := p.extractor.Extract(ctx, p.layout.Archive(), p.layout.Toolchain())
	if err != nil {
		return nil, errors.ErrExtractFailed.WithCause(err)
	}

	log.Info("Toolchain extracted",
		"format", stats.Format,
		"files", stats.Files,
		"links", stats.Links,
		"bytes", stats.Bytes)

	return &Action{Kind: ActionExtract, Target: p.layout.Toolchain(), Duration: time.Since(start)}, nil
}

func (p *Provisioner) ensureSource(ctx context.Context) (*Action, error) {
	if p.layout.HasSource() {
		log.Debug("Kernel source present, skipping checkout", "path", p.layout.Source())
		return nil, nil
	}

	log.Info("Cloning kernel source", "url", p.cfg.KernelURL, "branch", p.cfg.KernelBranch)
	start := time.Now()
	res, err := p.cloner.Clone(ctx, p.cfg.KernelURL, p.cfg.KernelBranch, p.layout.Source())
	if err != nil {
		return nil, errors.ErrCheckoutFailed.WithCause(err)
	}

	log.Info("Kernel source checked out", "ref", res.Reference, "commit", res.Commit)

	return &Action{Kind: ActionCheckout, Target: p.layout.Source(), Duration: time.Since(start)}, nil
}
