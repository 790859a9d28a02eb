// Package orchestrator runs a kernel build from start to finish: provision the
// prerequisites, derive the make parameters, drive make and publish the result.
package orchestrator

import (
	"context"
	"runtime"
	"time"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/kbuild/build"
	"github.com/bitswalk/kbuild/src/kbuild/config"
	"github.com/bitswalk/kbuild/src/kbuild/download"
	"github.com/bitswalk/kbuild/src/kbuild/provision"
	"github.com/bitswalk/kbuild/src/kbuild/publish"
	"github.com/bitswalk/kbuild/src/kbuild/source"
	"github.com/bitswalk/kbuild/src/kbuild/storage"
	"github.com/bitswalk/kbuild/src/kbuild/toolchain"
	"github.com/bitswalk/kbuild/src/kbuild/workspace"
	"github.com/google/uuid"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the orchestrator package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Deps are the collaborators a run drives
type Deps struct {
	Fetcher    provision.Fetcher
	Extractor  provision.Extractor
	Cloner     provision.Cloner
	Executor   build.Executor
	NewBackend func(config.PublishConfig) (storage.Backend, error)
}

// DefaultDeps wires the real downloader, extractor, git client and host executor
func DefaultDeps(cfg *config.Config) Deps {
	return Deps{
		Fetcher:    download.NewDownloader(nil, cfg.RateLimit),
		Extractor:  toolchain.NewExtractor(),
		Cloner:     source.NewCloner(nil),
		Executor:   build.NewHostExecutor(),
		NewBackend: storage.New,
	}
}

// Options control a single run
type Options struct {
	// Clean runs mrproper before configuring
	Clean bool

	// CPUs is the make job count, 0 to use every CPU
	CPUs int

	// RunID labels logs and published artifacts, generated when empty
	RunID string

	// Progress receives download progress
	Progress download.ProgressCallback
}

// Summary describes a finished (or failed) run
type Summary struct {
	RunID     string
	Actions   []provision.Action
	Params    build.Params
	Build     *build.Report
	Published []string
	Elapsed   time.Duration
}

// Orchestrator runs builds for one configuration
type Orchestrator struct {
	cfg  *config.Config
	deps Deps
}

// New creates an orchestrator
func New(cfg *config.Config, deps Deps) *Orchestrator {
	return &Orchestrator{cfg: cfg, deps: deps}
}

// Run performs one build. The summary is returned even on failure, filled up to the failed step.
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Summary, error) {
	start := time.Now()

	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	summary := &Summary{RunID: runID}
	runLog := log.With("run", runID)

	runLog.Info("Kernel build configuration",
		"repo", o.cfg.KernelURL,
		"branch", o.cfg.KernelBranch,
		"prebuilt", o.cfg.ArchiveName,
		"defconfig", o.cfg.Defconfig,
		"workdir", o.cfg.WorkDir)

	layout := workspace.New(o.cfg.WorkDir, o.cfg.ArchiveName)

	prov := provision.New(o.cfg, layout, o.deps.Fetcher, o.deps.Extractor, o.deps.Cloner)
	prov.SetProgress(opts.Progress)
	actions, err := prov.Ensure(ctx)
	summary.Actions = actions
	if err != nil {
		summary.Elapsed = time.Since(start)
		return summary, err
	}
	if len(actions) == 0 {
		runLog.Info("All prerequisites present")
	}

	toolchain.Check(layout.ToolchainBin())

	cpus := opts.CPUs
	if cpus <= 0 {
		cpus = runtime.NumCPU()
	}
	summary.Params = build.NewParams(layout, cpus)

	report, err := build.NewInvoker(o.deps.Executor, layout, summary.Params, o.cfg.Defconfig).Run(ctx, opts.Clean)
	summary.Build = report
	if err != nil {
		summary.Elapsed = time.Since(start)
		return summary, err
	}

	if o.cfg.Publish.Enabled() {
		keys, err := o.publish(ctx, layout, runID)
		summary.Published = keys
		if err != nil {
			summary.Elapsed = time.Since(start)
			return summary, err
		}
	}

	summary.Elapsed = time.Since(start)
	runLog.Info("Build complete",
		"compile", build.FormatElapsed(report.CompileElapsed),
		"total", build.FormatElapsed(summary.Elapsed),
		"published", len(summary.Published))

	return summary, nil
}

func (o *Orchestrator) publish(ctx context.Context, layout workspace.Layout, runID string) ([]string, error) {
	backend, err := o.deps.NewBackend(o.cfg.Publish)
	if err != nil {
		return nil, errors.ErrStorageUnavailable.WithCause(err)
	}

	return publish.New(backend).Publish(ctx, layout, publish.Target{
		Defconfig: o.cfg.Defconfig,
		Branch:    o.cfg.KernelBranch,
		RunID:     runID,
	})
}
