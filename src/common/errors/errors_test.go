package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	err := ErrMissingConfig.WithMessage("KERNEL_URL is not set")
	want := "config.missing: KERNEL_URL is not set"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := ErrDownloadFailed.WithCause(fmt.Errorf("unexpected status code: 404"))
	want = "provision.download_failed: Failed to download toolchain archive: unexpected status code: 404"
	if wrapped.Error() != want {
		t.Errorf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestErrorIs(t *testing.T) {
	cause := fmt.Errorf("exit status 2")
	err := fmt.Errorf("run failed: %w", ErrConfigureFailed.WithCause(cause))

	if !errors.Is(err, ErrConfigureFailed) {
		t.Error("expected errors.Is to match ErrConfigureFailed through wrapping")
	}
	if errors.Is(err, ErrCompileFailed) {
		t.Error("expected errors.Is not to match ErrCompileFailed")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the underlying cause")
	}
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"plain error", fmt.Errorf("boom"), ExitInternal},
		{"missing config", ErrMissingConfig, ExitConfig},
		{"invalid config", ErrInvalidConfig.WithMessage("bad url"), ExitConfig},
		{"download", ErrDownloadFailed.WithCause(fmt.Errorf("eof")), ExitProvision},
		{"extract", ErrExtractFailed, ExitProvision},
		{"checkout", ErrCheckoutFailed, ExitProvision},
		{"clean", ErrCleanFailed, ExitBuild},
		{"configure", ErrConfigureFailed, ExitBuild},
		{"compile wrapped", fmt.Errorf("step: %w", ErrCompileFailed), ExitBuild},
		{"publish", ErrPublishFailed, ExitPublish},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetExitCode(tt.err); got != tt.want {
				t.Errorf("GetExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestExitCodesAreDistinct(t *testing.T) {
	codes := map[int]string{}
	for name, code := range map[string]int{
		"config":    ErrMissingConfig.ExitCode,
		"provision": ErrDownloadFailed.ExitCode,
		"build":     ErrCompileFailed.ExitCode,
		"publish":   ErrPublishFailed.ExitCode,
		"internal":  ErrInternal.ExitCode,
	} {
		if other, ok := codes[code]; ok {
			t.Errorf("exit code %d shared by %s and %s", code, name, other)
		}
		codes[code] = name
	}
}

func TestGetCodeAndDomain(t *testing.T) {
	err := fmt.Errorf("wrap: %w", ErrCheckoutFailed)
	if GetCode(err) != "checkout_failed" {
		t.Errorf("GetCode() = %q", GetCode(err))
	}
	if GetDomain(err) != DomainProvision {
		t.Errorf("GetDomain() = %q", GetDomain(err))
	}
	if GetCode(fmt.Errorf("plain")) != "" {
		t.Error("expected empty code for plain error")
	}
}

func TestWithMessagefKeepsIdentity(t *testing.T) {
	err := ErrInvalidConfig.WithMessagef("PREBUILT_URL %q has no file name", "https://x/")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Error("expected formatted error to still match its sentinel")
	}
	if err.ExitCode != ExitConfig {
		t.Errorf("ExitCode = %d, want %d", err.ExitCode, ExitConfig)
	}
}
