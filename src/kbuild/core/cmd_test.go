package core

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/kbuild/config"
)

// isolate runs the test from an empty directory with no kbuild settings in the environment
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range config.Keys() {
		// Setenv restores the previous value when the test ends
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_MissingConfiguration(t *testing.T) {
	isolate(t)

	_, err := execute(t, "--log-level", "error")
	if !errors.Is(err, errors.ErrMissingConfig) {
		t.Fatalf("expected ErrMissingConfig, got %v", err)
	}
	if code := errors.GetExitCode(err); code != errors.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, errors.ExitConfig)
	}
	for _, key := range config.RequiredKeys {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q should name %s", err, key)
		}
	}
}

func TestRootCmd_UnreadableEnvFile(t *testing.T) {
	dir := isolate(t)

	_, err := execute(t, "--env-file", filepath.Join(dir, "missing.env"))
	if !errors.Is(err, errors.ErrConfigFile) {
		t.Fatalf("expected ErrConfigFile, got %v", err)
	}
	if code := errors.GetExitCode(err); code != errors.ExitConfig {
		t.Errorf("exit code = %d, want %d", code, errors.ExitConfig)
	}
}

func TestRootCmd_InvalidValueFromEnvFile(t *testing.T) {
	dir := isolate(t)

	envFile := filepath.Join(dir, "build.env")
	content := strings.Join([]string{
		"KERNEL_URL=https://example.test/kernel.git",
		"KERNEL_BRANCH=main",
		"DEFCONFIG=mykernel_defconfig",
		"PREBUILT_URL=https://example.test/dl/",
	}, "\n")
	if err := os.WriteFile(envFile, []byte(content+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := execute(t, "--env-file", envFile, "--log-level", "error")
	if !errors.Is(err, errors.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(dir, "tmp")); !os.IsNotExist(statErr) {
		t.Error("nothing should be created when the configuration is invalid")
	}
}

func TestRootCmd_Version(t *testing.T) {
	out, err := execute(t, "--version")
	if err != nil {
		t.Fatalf("--version failed: %v", err)
	}
	if !strings.Contains(out, "Go Version") {
		t.Errorf("unexpected version output %q", out)
	}
}

func TestRootCmd_RejectsArguments(t *testing.T) {
	isolate(t)

	_, err := execute(t, "build")
	if err == nil {
		t.Fatal("expected an error for an unexpected argument")
	}
	err = structured(err)
	if !errors.Is(err, errors.ErrInternal) {
		t.Errorf("expected ErrInternal, got %v", err)
	}
	if code := errors.GetExitCode(err); code != errors.ExitInternal {
		t.Errorf("exit code = %d, want %d", code, errors.ExitInternal)
	}
	if !strings.Contains(err.Error(), "build") {
		t.Errorf("error %q should keep the cobra message", err)
	}
}

func TestStructured(t *testing.T) {
	if structured(nil) != nil {
		t.Error("nil should stay nil")
	}

	cfgErr := errors.ErrMissingConfig.WithMessage("KERNEL_URL is not set")
	if got := structured(cfgErr); got != error(cfgErr) {
		t.Errorf("structured error was rewrapped: %v", got)
	}

	plain := fmt.Errorf("unknown flag: --bogus")
	got := structured(plain)
	if errors.GetDomain(got) != errors.DomainInternal || errors.GetCode(got) != errors.CodeInternal {
		t.Errorf("unexpected classification %s.%s", errors.GetDomain(got), errors.GetCode(got))
	}
	if !errors.Is(got, plain) {
		t.Error("the original error should stay in the chain")
	}
}

func TestRootCmd_CleanFlag(t *testing.T) {
	cmd := NewRootCmd()
	flag := cmd.Flags().ShorthandLookup("c")
	if flag == nil || flag.Name != "clean" {
		t.Fatal("-c should be the shorthand of --clean")
	}
	if flag.DefValue != "false" {
		t.Errorf("--clean default = %s", flag.DefValue)
	}
}
