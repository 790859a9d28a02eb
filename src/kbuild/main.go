// kbuild cross-compiles an arm64 kernel with a prebuilt clang toolchain.
// It fetches the kernel source and the toolchain on first use, then drives make.
package main

import (
	"github.com/bitswalk/kbuild/src/kbuild/core"
)

func main() {
	core.Execute()
}
