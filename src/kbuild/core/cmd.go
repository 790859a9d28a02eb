// Package core provides the root command of kbuild.
package core

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/bitswalk/kbuild/src/common/cli"
	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/common/version"
	"github.com/bitswalk/kbuild/src/kbuild/build"
	"github.com/bitswalk/kbuild/src/kbuild/config"
	"github.com/bitswalk/kbuild/src/kbuild/download"
	"github.com/bitswalk/kbuild/src/kbuild/orchestrator"
	"github.com/bitswalk/kbuild/src/kbuild/provision"
	"github.com/bitswalk/kbuild/src/kbuild/publish"
	"github.com/bitswalk/kbuild/src/kbuild/source"
	"github.com/bitswalk/kbuild/src/kbuild/toolchain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// VersionInfo holds version information - set at build time via ldflags
	VersionInfo = version.New()

	// Global logger instance
	log = logs.NewDefault()
)

// Linker variables - these are set via ldflags at build time
// They must be initialized as empty strings or literals for ldflags to work
var (
	Version        = "dev"
	ReleaseVersion = "0.0.0"
	BuildDate      = "unknown"
	GitCommit      = "unknown"
)

// progressInterval is how often download progress is logged when stderr is not a terminal
const progressInterval = 5 * time.Second

// command holds the state of one root command instance
type command struct {
	v           *viper.Viper
	cfgFile     string
	clean       bool
	interactive bool
	stderr      io.Writer
}

// NewRootCmd builds the kbuild root command with its own viper instance
func NewRootCmd() *cobra.Command {
	c := &command{
		v:           viper.New(),
		interactive: term.IsTerminal(int(os.Stderr.Fd())),
		stderr:      os.Stderr,
	}

	rootCmd := &cobra.Command{
		Use:   "kbuild",
		Short: "Cross-compile an arm64 kernel with a prebuilt clang toolchain",
		Long: `kbuild fetches a kernel source tree and a prebuilt clang toolchain into the
working directory, then configures and compiles the kernel with make.

Configuration comes from the environment, optionally overridden by a
KEY=value file (.env in the working directory by default):

  KERNEL_URL      kernel source repository
  KERNEL_BRANCH   branch or tag to check out
  DEFCONFIG       defconfig make target
  PREBUILT_URL    toolchain archive URL

Prerequisites already present on disk are not fetched again.`,
		Version:           VersionInfo.Short(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return c.initConfig() },
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd)
		},
	}
	rootCmd.SetVersionTemplate(VersionInfo.Full() + "\n")

	cli.RegisterConfigFlag(rootCmd, &c.cfgFile, cli.DefaultConfigOptions().DefaultFile)
	rootCmd.Flags().BoolVarP(&c.clean, "clean", "c", false, "Run make mrproper before configuring")
	cli.RegisterLogFlags(rootCmd, c.v)

	config.SetDefaults(c.v)

	return rootCmd
}

// Execute runs the root command and exits with the code matching the failure
func Execute() {
	// Populate VersionInfo from linker variables
	VersionInfo.Version = Version
	VersionInfo.ReleaseVersion = ReleaseVersion
	VersionInfo.BuildDate = BuildDate
	VersionInfo.GitCommit = GitCommit

	if err := NewRootCmd().Execute(); err != nil {
		err = structured(err)
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(errors.GetExitCode(err))
	}
}

// structured returns err as an *errors.Error; anything cobra or a library
// returned unclassified becomes an internal error
func structured(err error) error {
	if err == nil {
		return nil
	}
	var e *errors.Error
	if errors.As(err, &e) {
		return err
	}
	return errors.ErrInternal.WithCause(err)
}

// initConfig reads the override file and the environment, then sets up logging
func (c *command) initConfig() error {
	opts := cli.DefaultConfigOptions()
	opts.ConfigFile = c.cfgFile
	opts.Keys = append(config.Keys(), "log_output", "log_level")

	if err := cli.InitConfig(c.v, opts); err != nil {
		return errors.ErrConfigFile.WithCause(err)
	}

	log = cli.InitLogger(c.v, "kbuild", c.interactive)
	download.SetLogger(log)
	toolchain.SetLogger(log)
	source.SetLogger(log)
	provision.SetLogger(log)
	build.SetLogger(log)
	publish.SetLogger(log)
	orchestrator.SetLogger(log)

	return nil
}

func (c *command) run(cmd *cobra.Command) error {
	cfg, err := config.Load(c.v)
	if err != nil {
		return err
	}

	deps := orchestrator.DefaultDeps(cfg)
	progress := download.LogProgress(progressInterval)
	if c.interactive {
		progress = download.BarProgress(c.stderr, "Downloading "+cfg.ArchiveName)
		deps.Cloner = source.NewCloner(c.stderr)
	}

	summary, err := orchestrator.New(cfg, deps).Run(cmd.Context(), orchestrator.Options{
		Clean:    c.clean,
		Progress: progress,
	})
	if err != nil {
		log.Error("Build failed",
			"run", summary.RunID,
			"elapsed", build.FormatElapsed(summary.Elapsed),
			"domain", errors.GetDomain(err),
			"code", errors.GetCode(err),
			"error", err)
		return err
	}

	return nil
}
