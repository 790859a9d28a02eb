package errors

// Common error codes used across domains
const (
	CodeMissing  Code = "missing"
	CodeInvalid  Code = "invalid"
	CodeInternal Code = "internal_error"
)

// ============================================================================
// Configuration Errors
// ============================================================================

var (
	// ErrMissingConfig is returned when a required setting is absent or empty
	ErrMissingConfig = New(DomainConfig, CodeMissing, ExitConfig,
		"Missing required configuration")

	// ErrInvalidConfig is returned when a setting is present but malformed
	ErrInvalidConfig = New(DomainConfig, CodeInvalid, ExitConfig,
		"Invalid configuration value")

	// ErrConfigFile is returned when the override file exists but cannot be read
	ErrConfigFile = New(DomainConfig, "file_unreadable", ExitConfig,
		"Failed to read configuration file")
)

// ============================================================================
// Provisioning Errors (External Process Failure)
// ============================================================================

var (
	// ErrDownloadFailed is returned when the toolchain archive cannot be fetched
	ErrDownloadFailed = New(DomainProvision, "download_failed", ExitProvision,
		"Failed to download toolchain archive")

	// ErrChecksumMismatch is returned when the downloaded archive digest differs from the expected one
	ErrChecksumMismatch = New(DomainProvision, "checksum_mismatch", ExitProvision,
		"Toolchain archive checksum mismatch")

	// ErrExtractFailed is returned when the toolchain archive cannot be extracted
	ErrExtractFailed = New(DomainProvision, "extract_failed", ExitProvision,
		"Failed to extract toolchain archive")

	// ErrCheckoutFailed is returned when the kernel source cannot be cloned
	ErrCheckoutFailed = New(DomainProvision, "checkout_failed", ExitProvision,
		"Failed to check out kernel source")

	// ErrWorkspace is returned when a workspace directory cannot be created
	ErrWorkspace = New(DomainProvision, "workspace_failed", ExitProvision,
		"Failed to prepare workspace")
)

// ============================================================================
// Build Driver Errors
// ============================================================================

var (
	// ErrCleanFailed is returned when the full reset (mrproper) invocation fails
	ErrCleanFailed = New(DomainBuild, "clean_failed", ExitBuild,
		"Kernel clean (mrproper) failed")

	// ErrConfigureFailed is returned when the defconfig invocation fails
	ErrConfigureFailed = New(DomainBuild, "configure_failed", ExitBuild,
		"Kernel configuration failed")

	// ErrCompileFailed is returned when the default target invocation fails
	ErrCompileFailed = New(DomainBuild, "compile_failed", ExitBuild,
		"Kernel compilation failed")
)

// ============================================================================
// Publish Errors
// ============================================================================

var (
	// ErrPublishFailed is returned when build artifacts cannot be uploaded
	ErrPublishFailed = New(DomainPublish, "upload_failed", ExitPublish,
		"Failed to publish build artifacts")

	// ErrStorageUnavailable is returned when the storage backend cannot be created
	ErrStorageUnavailable = New(DomainPublish, "storage_unavailable", ExitPublish,
		"Storage backend unavailable")
)

// ============================================================================
// Internal Errors
// ============================================================================

var (
	// ErrInternal is a generic internal error
	ErrInternal = New(DomainInternal, CodeInternal, ExitInternal,
		"Internal error")
)
