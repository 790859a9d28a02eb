package build

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/kbuild/workspace"
)

var log = logs.NewDefault()

// SetLogger sets the logger for the build package
func SetLogger(l *logs.Logger) {
	if l != nil {
		log = l
	}
}

// Driver is the build driver executable
const Driver = "make"

// Phase is a step of the build driver state machine
type Phase string

const (
	PhaseClean     Phase = "clean"
	PhaseConfigure Phase = "configure"
	PhaseCompile   Phase = "compile"
)

// PhaseResult records one finished invocation
type PhaseResult struct {
	Phase    Phase
	Command  string
	Duration time.Duration
	Err      error
}

// Report summarises a driver run
type Report struct {
	Phases []PhaseResult

	// CompileElapsed is the wall time of the compile invocation, also set when it failed
	CompileElapsed time.Duration
}

// Invoker runs make through clean (optional), configure and compile, in that
// order. A failed phase stops the run; no phase is ever repeated.
type Invoker struct {
	exec      Executor
	layout    workspace.Layout
	params    Params
	defconfig string
	stdout    io.Writer
	stderr    io.Writer
}

// NewInvoker creates an invoker streaming the driver output to the process stdout and stderr
func NewInvoker(exec Executor, layout workspace.Layout, params Params, defconfig string) *Invoker {
	return &Invoker{
		exec:      exec,
		layout:    layout,
		params:    params,
		defconfig: defconfig,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
	}
}

// SetOutput redirects the driver output
func (i *Invoker) SetOutput(stdout, stderr io.Writer) {
	i.stdout = stdout
	i.stderr = stderr
}

// Run invokes the phases. The report is returned even on failure.
func (i *Invoker) Run(ctx context.Context, clean bool) (*Report, error) {
	report := &Report{}

	if clean {
		log.Info("Running mrproper")
		if err := i.phase(ctx, report, PhaseClean, []string{"-C", i.layout.Source(), "mrproper"}); err != nil {
			return report, errors.ErrCleanFailed.WithCause(err)
		}
	}

	log.Info("Building " + i.defconfig)
	configureArgs := append([]string{i.defconfig}, i.params.Args()...)
	if err := i.phase(ctx, report, PhaseConfigure, configureArgs); err != nil {
		return report, errors.ErrConfigureFailed.WithCause(err)
	}

	log.Info("Compiling kernel")
	err := i.phase(ctx, report, PhaseCompile, i.params.Args())
	report.CompileElapsed = report.Phases[len(report.Phases)-1].Duration
	log.Info("Compiler finished, took: " + FormatElapsed(report.CompileElapsed))
	if err != nil {
		return report, errors.ErrCompileFailed.WithCause(err)
	}

	return report, nil
}

func (i *Invoker) phase(ctx context.Context, report *Report, phase Phase, args []string) error {
	cmd := Command{
		Name:    Driver,
		Args:    args,
		WorkDir: i.layout.Source(),
		Env:     map[string]string{"PATH": PrependPath(i.layout.ToolchainBin())},
		Stdout:  i.stdout,
		Stderr:  i.stderr,
	}
	log.Debug("Invoking build driver", "phase", phase, "cmd", cmd.String())

	start := time.Now()
	err := i.exec.Run(ctx, cmd)
	report.Phases = append(report.Phases, PhaseResult{
		Phase:    phase,
		Command:  cmd.String(),
		Duration: time.Since(start),
		Err:      err,
	})
	return err
}

// FormatElapsed renders an elapsed time rounded to the millisecond
func FormatElapsed(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
