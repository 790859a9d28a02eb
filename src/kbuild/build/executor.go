package build

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// Command describes one build driver invocation
type Command struct {
	Name    string
	Args    []string
	WorkDir string
	Env     map[string]string // added to the inherited environment
	Stdout  io.Writer
	Stderr  io.Writer
}

// String renders the command line for logs
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Executor runs a command to completion
type Executor interface {
	Run(ctx context.Context, cmd Command) error
}

// HostExecutor runs commands directly on the host
type HostExecutor struct{}

// NewHostExecutor creates a host executor
func NewHostExecutor() *HostExecutor {
	return &HostExecutor{}
}

// maxStderrTail bounds how much of the child's stderr is quoted in an error
const maxStderrTail = 4096

// Run executes cmd synchronously. The environment is inherited with Env applied on
// top, and stderr is both streamed and kept so a failure can quote its tail.
func (e *HostExecutor) Run(ctx context.Context, c Command) error {
	if c.Name == "" {
		return fmt.Errorf("no command specified")
	}

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.WorkDir
	cmd.Env = mergeEnv(os.Environ(), c.Env)

	var stderr bytes.Buffer
	cmd.Stdout = c.Stdout
	if c.Stderr != nil {
		cmd.Stderr = io.MultiWriter(&stderr, c.Stderr)
	} else {
		cmd.Stderr = &stderr
	}

	if err := cmd.Run(); err != nil {
		tail := strings.TrimSpace(stderr.String())
		if len(tail) > maxStderrTail {
			tail = "..." + tail[len(tail)-maxStderrTail:]
		}
		if tail == "" {
			return fmt.Errorf("%s: %w", c.Name, err)
		}
		return fmt.Errorf("%s: %w\nstderr: %s", c.Name, err, tail)
	}

	return nil
}

// mergeEnv returns base with every key of overrides replaced or appended
func mergeEnv(base []string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides))
	for _, kv := range base {
		key := kv
		if i := strings.IndexByte(kv, '='); i >= 0 {
			key = kv[:i]
		}
		if _, ok := overrides[key]; ok {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// PrependPath returns dir placed in front of the current PATH
func PrependPath(dir string) string {
	current := os.Getenv("PATH")
	if current == "" {
		return dir
	}
	return dir + string(os.PathListSeparator) + current
}
