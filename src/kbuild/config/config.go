// Package config loads and validates the kbuild run configuration.
//
// Every value is read once from a viper instance fed by the process environment
// and an optional KEY=value override file, checked eagerly, and frozen into a
// Config that is passed explicitly to the rest of the program.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/bitswalk/kbuild/src/common/errors"
	"github.com/bitswalk/kbuild/src/common/paths"
	"github.com/spf13/viper"
)

// Environment keys understood by kbuild
const (
	KeyKernelURL      = "KERNEL_URL"
	KeyKernelBranch   = "KERNEL_BRANCH"
	KeyDefconfig      = "DEFCONFIG"
	KeyPrebuiltURL    = "PREBUILT_URL"
	KeyPrebuiltSHA256 = "PREBUILT_SHA256"
	KeyWorkDir        = "WORK_DIR"
	KeyRateLimit      = "DOWNLOAD_RATE_LIMIT"

	KeyPublishStorage   = "PUBLISH_STORAGE"
	KeyPublishLocalPath = "PUBLISH_LOCAL_PATH"
	KeyS3Endpoint       = "PUBLISH_S3_ENDPOINT"
	KeyS3Region         = "PUBLISH_S3_REGION"
	KeyS3Bucket         = "PUBLISH_S3_BUCKET"
	KeyS3AccessKey      = "PUBLISH_S3_ACCESS_KEY"
	KeyS3SecretKey      = "PUBLISH_S3_SECRET_KEY"
	KeyS3PathStyle      = "PUBLISH_S3_PATH_STYLE"
)

// RequiredKeys are the settings that must be non-empty before any action runs
var RequiredKeys = []string{KeyKernelURL, KeyKernelBranch, KeyDefconfig, KeyPrebuiltURL}

// Keys lists every key so the loader can bind them to the environment
func Keys() []string {
	return []string{
		KeyKernelURL, KeyKernelBranch, KeyDefconfig, KeyPrebuiltURL,
		KeyPrebuiltSHA256, KeyWorkDir, KeyRateLimit,
		KeyPublishStorage, KeyPublishLocalPath,
		KeyS3Endpoint, KeyS3Region, KeyS3Bucket, KeyS3AccessKey, KeyS3SecretKey, KeyS3PathStyle,
	}
}

// Publish storage types
const (
	PublishNone  = ""
	PublishLocal = "local"
	PublishS3    = "s3"
)

// S3Config holds the S3 publishing target
type S3Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// PublishConfig describes where build artifacts are uploaded after a successful compile
type PublishConfig struct {
	// Storage is "", "local" or "s3"; empty disables publishing
	Storage   string
	LocalPath string
	S3        S3Config
}

// Enabled reports whether artifacts should be published
func (p PublishConfig) Enabled() bool {
	return p.Storage != PublishNone
}

// Config is the immutable run configuration
type Config struct {
	KernelURL    string
	KernelBranch string
	Defconfig    string
	PrebuiltURL  string

	// ArchiveName is the last path segment of PrebuiltURL
	ArchiveName string

	// PrebuiltSHA256 is the expected lowercase hex digest of the archive, empty to skip the check
	PrebuiltSHA256 string

	// WorkDir is the absolute directory every workspace path is relative to
	WorkDir string

	// RateLimit caps download throughput in bytes per second, 0 = unlimited
	RateLimit int64

	Publish PublishConfig
}

// SetDefaults registers the default values of optional keys
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyS3Region, "us-east-1")
	v.SetDefault(KeyS3PathStyle, true)
	v.SetDefault(KeyRateLimit, 0)
}

// Load reads and validates the configuration from v.
// All missing required keys are reported together.
func Load(v *viper.Viper) (*Config, error) {
	var missing []string
	for _, key := range RequiredKeys {
		if strings.TrimSpace(v.GetString(key)) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, errors.ErrMissingConfig.WithMessagef(
			"missing required configuration: %s", strings.Join(missing, ", "))
	}

	cfg := &Config{
		KernelURL:      strings.TrimSpace(v.GetString(KeyKernelURL)),
		KernelBranch:   strings.TrimSpace(v.GetString(KeyKernelBranch)),
		Defconfig:      strings.TrimSpace(v.GetString(KeyDefconfig)),
		PrebuiltURL:    strings.TrimSpace(v.GetString(KeyPrebuiltURL)),
		PrebuiltSHA256: strings.ToLower(strings.TrimSpace(v.GetString(KeyPrebuiltSHA256))),
		Publish: PublishConfig{
			Storage:   strings.ToLower(strings.TrimSpace(v.GetString(KeyPublishStorage))),
			LocalPath: strings.TrimSpace(v.GetString(KeyPublishLocalPath)),
			S3: S3Config{
				Endpoint:        strings.TrimSpace(v.GetString(KeyS3Endpoint)),
				Region:          strings.TrimSpace(v.GetString(KeyS3Region)),
				Bucket:          strings.TrimSpace(v.GetString(KeyS3Bucket)),
				AccessKeyID:     v.GetString(KeyS3AccessKey),
				SecretAccessKey: v.GetString(KeyS3SecretKey),
				UsePathStyle:    v.GetBool(KeyS3PathStyle),
			},
		},
	}

	name, err := ArchiveName(cfg.PrebuiltURL)
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithCause(err).WithMessagef("invalid %s", KeyPrebuiltURL)
	}
	cfg.ArchiveName = name

	workDir, err := paths.Absolute(strings.TrimSpace(v.GetString(KeyWorkDir)))
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithCause(err).WithMessagef("invalid %s", KeyWorkDir)
	}
	cfg.WorkDir = workDir

	rate, err := parseRate(v.GetString(KeyRateLimit))
	if err != nil {
		return nil, errors.ErrInvalidConfig.WithCause(err).WithMessagef("invalid %s", KeyRateLimit)
	}
	cfg.RateLimit = rate

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the optional settings once the required ones are known to be present
func (c *Config) Validate() error {
	if c.PrebuiltSHA256 != "" && !isHexDigest(c.PrebuiltSHA256) {
		return errors.ErrInvalidConfig.WithMessagef(
			"%s must be a 64 character hex SHA-256 digest", KeyPrebuiltSHA256)
	}

	switch c.Publish.Storage {
	case PublishNone:
	case PublishLocal:
		if c.Publish.LocalPath == "" {
			return errors.ErrMissingConfig.WithMessagef(
				"%s is required when %s=local", KeyPublishLocalPath, KeyPublishStorage)
		}
	case PublishS3:
		var missing []string
		if c.Publish.S3.Endpoint == "" {
			missing = append(missing, KeyS3Endpoint)
		}
		if c.Publish.S3.Bucket == "" {
			missing = append(missing, KeyS3Bucket)
		}
		if len(missing) > 0 {
			return errors.ErrMissingConfig.WithMessagef(
				"missing required configuration for %s=s3: %s", KeyPublishStorage, strings.Join(missing, ", "))
		}
	default:
		return errors.ErrInvalidConfig.WithMessagef(
			"%s must be 'local' or 's3', got %q", KeyPublishStorage, c.Publish.Storage)
	}

	return nil
}

// ArchiveName derives the toolchain archive file name from its URL: the last
// non-empty path segment. Query strings and fragments are ignored.
func ArchiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cannot parse %q: %w", rawURL, err)
	}
	if u.Path == "" || u.Path == "/" {
		return "", fmt.Errorf("%q has no file name in its path", rawURL)
	}
	if strings.HasSuffix(u.Path, "/") {
		return "", fmt.Errorf("%q ends with '/', no file name to derive", rawURL)
	}

	name := u.Path[strings.LastIndex(u.Path, "/")+1:]
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("%q has no usable file name", rawURL)
	}
	return name, nil
}

func parseRate(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number of bytes per second", s)
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative, got %d", n)
	}
	return n, nil
}

func isHexDigest(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdef", c) {
			return false
		}
	}
	return true
}
