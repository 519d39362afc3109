package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the build orchestration service
type Config struct {
	// Server configuration
	ServerHost string `mapstructure:"server_host"`
	ServerPort int    `mapstructure:"server_port"`

	// Database configuration
	DatabasePath string `mapstructure:"database_path"`

	// Storage configuration
	OutputPath string `mapstructure:"output_path"`
	StagePath  string `mapstructure:"stage_path"`

	// Remote ISO backend configuration. Empty URL means unconfigured, in
	// which case generation falls back to the local container runtime.
	IsoBackendURL            string `mapstructure:"iso_backend_url"`
	IsoBackendTimeoutSeconds int    `mapstructure:"iso_backend_timeout_seconds"`

	// Container configuration
	ContainerRuntime    string `mapstructure:"container_runtime"` // podman or sim
	ContainerSocketPath string `mapstructure:"container_socket_path"`
	IsoBuilderImage     string `mapstructure:"iso_builder_image"`

	// Build engine configuration
	StrictDependencies bool `mapstructure:"strict_dependencies"`
	StepDelayCapSecs   int  `mapstructure:"step_delay_cap_seconds"`

	// Job polling
	JobPollSeconds int `mapstructure:"job_poll_seconds"`

	// ISO metadata index file
	MetadataPath string `mapstructure:"metadata_path"`

	// Authentication. Requests presenting this key act as the build user.
	BuildKey string `mapstructure:"build_key"`

	// Logging
	LogLevel string `mapstructure:"log_level"`
}

// LoadConfig loads configuration from environment and config file
func LoadConfig() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("LFS")

	// Try to read config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/lfs-builder/")
	v.AddConfigPath("$HOME/.lfs-builder")
	v.AddConfigPath(".")

	// Config file is optional
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.expandPaths(); err != nil {
		return nil, fmt.Errorf("failed to expand paths: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server_host", "0.0.0.0")
	v.SetDefault("server_port", 8080)

	// Database defaults
	v.SetDefault("database_path", "./data/builder.db")

	// Storage defaults
	v.SetDefault("output_path", "./output")
	v.SetDefault("stage_path", "./stage")

	// Remote backend defaults
	v.SetDefault("iso_backend_url", "")
	v.SetDefault("iso_backend_timeout_seconds", 30)

	// Container defaults
	v.SetDefault("container_runtime", "podman")
	v.SetDefault("container_socket_path", "/run/podman/podman.sock")
	v.SetDefault("iso_builder_image", "ghcr.io/0xdracarys/lfs-iso-builder:latest")

	// Engine defaults
	v.SetDefault("strict_dependencies", false)
	v.SetDefault("step_delay_cap_seconds", 3)

	// Polling defaults
	v.SetDefault("job_poll_seconds", 3)

	// Metadata defaults
	v.SetDefault("metadata_path", "./data/generated-isos.json")

	// Authentication
	v.SetDefault("build_key", "")

	// Logging
	v.SetDefault("log_level", "info")
}

func (c *Config) expandPaths() error {
	var err error

	c.DatabasePath, err = expandPath(c.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to expand database_path: %w", err)
	}

	c.OutputPath, err = expandPath(c.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to expand output_path: %w", err)
	}

	c.StagePath, err = expandPath(c.StagePath)
	if err != nil {
		return fmt.Errorf("failed to expand stage_path: %w", err)
	}

	c.MetadataPath, err = expandPath(c.MetadataPath)
	if err != nil {
		return fmt.Errorf("failed to expand metadata_path: %w", err)
	}

	return nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	// Expand home directory
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return absPath, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid server port: %d", c.ServerPort)
	}

	if c.ContainerRuntime != "podman" && c.ContainerRuntime != "sim" {
		return fmt.Errorf("container_runtime must be 'podman' or 'sim'")
	}

	if c.JobPollSeconds < 1 {
		return fmt.Errorf("job_poll_seconds must be at least 1")
	}

	if c.StepDelayCapSecs < 0 {
		return fmt.Errorf("step_delay_cap_seconds must not be negative")
	}

	return nil
}
