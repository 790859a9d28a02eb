package toolchain

import (
	"os"
	"os/exec"
	"path/filepath"
)

// Deps lists the binaries a clang kernel build resolves
type Deps struct {
	Compiler []string // looked up in the toolchain bin directory
	Host     []string // looked up on PATH
}

// LLVMDeps are the binaries make resolves with LLVM=1 CC=clang
func LLVMDeps() Deps {
	return Deps{
		Compiler: []string{"clang", "ld.lld", "llvm-ar", "llvm-nm", "llvm-objcopy", "llvm-objdump", "llvm-strip"},
		Host:     []string{"make"},
	}
}

// Missing returns the binaries of deps that cannot be found: compiler binaries
// must be executables in binDir, host binaries must be on PATH.
func Missing(binDir string, deps Deps) []string {
	var missing []string
	for _, bin := range deps.Compiler {
		if !isExecutable(filepath.Join(binDir, bin)) {
			missing = append(missing, bin)
		}
	}
	for _, bin := range deps.Host {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

// Check logs a warning for every missing binary and returns them.
// A missing binary never fails the run; make reports the real error.
func Check(binDir string) []string {
	missing := Missing(binDir, LLVMDeps())
	if len(missing) > 0 {
		log.Warn("Toolchain looks incomplete, the build may fail",
			"bin", binDir,
			"missing", missing)
	} else {
		log.Debug("Toolchain binaries present", "bin", binDir)
	}
	return missing
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Mode().Perm()&0111 != 0
}
