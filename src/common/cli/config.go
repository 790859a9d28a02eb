// Package cli provides common CLI utilities for kbuild using Cobra and Viper.
package cli

import (
	"fmt"
	"strings"

	"github.com/bitswalk/kbuild/src/common/logs"
	"github.com/bitswalk/kbuild/src/common/paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ConfigOptions holds options for configuration initialization
type ConfigOptions struct {
	// ConfigFile is the path to the override file (if specified via flag)
	ConfigFile string

	// DefaultFile is the override file read when ConfigFile is empty; a missing default is not an error
	DefaultFile string

	// ConfigType is the type of the override file (env, yaml, json, toml)
	ConfigType string

	// EnvPrefix is the prefix for environment variables; empty binds the bare key names
	EnvPrefix string

	// Keys are bound explicitly so they resolve from the environment even when the file is absent
	Keys []string
}

// DefaultConfigOptions returns default configuration options: a dotenv file in the working directory
func DefaultConfigOptions() ConfigOptions {
	return ConfigOptions{
		DefaultFile: ".env",
		ConfigType:  "env",
	}
}

// InitConfig initializes a Viper instance: the override file is read first, then the
// process environment is bound on top of it so variables already set always win.
func InitConfig(v *viper.Viper, opts ConfigOptions) error {
	file := opts.ConfigFile
	explicit := file != ""
	if !explicit {
		file = opts.DefaultFile
	}

	if opts.EnvPrefix != "" {
		v.SetEnvPrefix(opts.EnvPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	// A variable set to the empty string is still set and must beat the file
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()
	for _, key := range opts.Keys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if file == "" {
		return nil
	}

	path := paths.Expand(file)
	if !explicit && !paths.IsFile(path) {
		// Override file not found is not an error - the environment is enough
		return nil
	}

	v.SetConfigFile(path)
	if opts.ConfigType != "" {
		v.SetConfigType(opts.ConfigType)
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return nil
}

// RegisterLogFlags registers common logging flags on a Cobra command
func RegisterLogFlags(cmd *cobra.Command, v *viper.Viper) {
	cmd.Flags().String("log-output", "auto", "Log output destination (auto, stderr, stdout, journald)")
	cmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")

	_ = v.BindPFlag("log_output", cmd.Flags().Lookup("log-output"))
	_ = v.BindPFlag("log_level", cmd.Flags().Lookup("log-level"))

	v.SetDefault("log_output", "auto")
	v.SetDefault("log_level", "info")
}

// RegisterConfigFlag registers the --env-file flag on a Cobra command
func RegisterConfigFlag(cmd *cobra.Command, cfgFile *string, defaultPath string) {
	cmd.PersistentFlags().StringVar(cfgFile, "env-file", "", fmt.Sprintf("KEY=value override file (default: %s)", defaultPath))
}

// InitLogger creates and returns a logger based on Viper configuration.
// Should be called after InitConfig.
func InitLogger(v *viper.Viper, prefix string, interactive bool) *logs.Logger {
	return logs.New(logs.Config{
		Output:      logs.LogOutput(v.GetString("log_output")),
		Level:       v.GetString("log_level"),
		Prefix:      prefix,
		Interactive: interactive,
	})
}
