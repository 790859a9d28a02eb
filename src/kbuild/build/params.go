// Package build derives the kernel make parameters and drives make through
// the clean, configure and compile phases.
package build

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bitswalk/kbuild/src/kbuild/workspace"
)

// Target architecture and compiler settings for the kernel build
const (
	TargetArch  = "arm64"
	ClangTriple = "aarch64-linux-gnu-"
)

// Arg is one make parameter. Keys starting with "-" are flags and render as two
// arguments; any other key renders as a KEY=VALUE variable assignment.
type Arg struct {
	Key   string
	Value string
}

// Strings renders the argument for the command line
func (a Arg) Strings() []string {
	if strings.HasPrefix(a.Key, "-") {
		return []string{a.Key, a.Value}
	}
	return []string{a.Key + "=" + a.Value}
}

// Params is the ordered make parameter list shared by configure and compile
type Params []Arg

// NewParams computes the parameter list for a layout and CPU count.
// The result depends only on its inputs.
func NewParams(layout workspace.Layout, cpus int) Params {
	if cpus < 1 {
		cpus = 1
	}
	src := layout.Source()
	tc := layout.Toolchain()

	return Params{
		{"-j", strconv.Itoa(cpus)},
		{"-C", src},
		{"O", filepath.Join(src, workspace.OutDir)},
		{"CROSS_COMPILE", filepath.Join(tc, "bin", "llvm-")},
		{"ARCH", TargetArch},
		{"CC", "clang"},
		{"CLANG_TRIPLE", ClangTriple},
		{"LLVM", "1"},
		{"CONFIG_SECTION_MISMATCH_WARN_ONLY", "y"},
		{"CONFIG_FRAME_WARN", "0"},
	}
}

// Args flattens the list into make arguments
func (p Params) Args() []string {
	args := make([]string, 0, len(p)*2)
	for _, a := range p {
		args = append(args, a.Strings()...)
	}
	return args
}

// Get returns the value of key and whether it is present
func (p Params) Get(key string) (string, bool) {
	for _, a := range p {
		if a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}
