// Package config provides configuration loading, saving and validation for
// netrecon. Configuration files are YAML (JSON is accepted as a subset) and
// every section has sensible defaults, so a missing file is not an error.
package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/gunout/network-scanner/internal/errors"
	"github.com/gunout/network-scanner/internal/logging"
	"github.com/gunout/network-scanner/internal/scanning"
)

const (
	configDirPerm  = 0750
	configFilePerm = 0600
)

// Config represents the complete netrecon configuration
type Config struct {
	// Scanning configuration
	Scanning ScanningConfig `yaml:"scanning" json:"scanning" mapstructure:"scanning"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging" mapstructure:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics" mapstructure:"metrics"`
}

// ScanningConfig holds scanning-related settings
type ScanningConfig struct {
	// TCP ports probed by the port scan engine
	Ports []int `yaml:"ports" json:"ports" mapstructure:"ports" validate:"required,min=1,dive,min=1,max=65535"`

	// Maximum number of port probes in flight
	Concurrency int `yaml:"concurrency" json:"concurrency" mapstructure:"concurrency" validate:"min=1,max=1024"`

	// Per-port connect timeout
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout" mapstructure:"connect_timeout" validate:"gt=0"`

	// Port dialed by the liveness check
	LivenessPort int `yaml:"liveness_port" json:"liveness_port" mapstructure:"liveness_port" validate:"min=1,max=65535"`

	// Timeout of the liveness check
	LivenessTimeout time.Duration `yaml:"liveness_timeout" json:"liveness_timeout" mapstructure:"liveness_timeout" validate:"gt=0"`

	// Timeout of the HTTP probe, redirects included
	HTTPTimeout time.Duration `yaml:"http_timeout" json:"http_timeout" mapstructure:"http_timeout" validate:"gt=0"`

	// Timeout of each DNS query
	DNSTimeout time.Duration `yaml:"dns_timeout" json:"dns_timeout" mapstructure:"dns_timeout" validate:"gt=0"`

	// DNS server (host or host:port); empty uses /etc/resolv.conf
	DNSServer string `yaml:"dns_server" json:"dns_server" mapstructure:"dns_server" validate:"omitempty,hostname_port|ip|hostname"`

	// User-Agent sent by the HTTP probe
	UserAgent string `yaml:"user_agent" json:"user_agent" mapstructure:"user_agent" validate:"required"`

	// Whole-scan timeout, 0 disables it
	ScanTimeout time.Duration `yaml:"scan_timeout" json:"scan_timeout" mapstructure:"scan_timeout" validate:"gte=0"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	// Log level (debug, info, warn, error)
	Level string `yaml:"level" json:"level" mapstructure:"level" validate:"oneof=debug info warn error"`

	// Log format (text, json)
	Format string `yaml:"format" json:"format" mapstructure:"format" validate:"oneof=text json"`

	// Log output (stdout, stderr, file path)
	Output string `yaml:"output" json:"output" mapstructure:"output"`
}

// MetricsConfig holds metrics export settings
type MetricsConfig struct {
	// Path of a node-exporter textfile written after each scan; empty disables it
	TextfilePath string `yaml:"textfile_path" json:"textfile_path" mapstructure:"textfile_path"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns a configuration with sensible defaults
func Default() *Config {
	scan := scanning.DefaultConfig()
	return &Config{
		Scanning: ScanningConfig{
			Ports:           scan.Ports,
			Concurrency:     scan.Concurrency,
			ConnectTimeout:  scan.ConnectTimeout,
			LivenessPort:    scan.LivenessPort,
			LivenessTimeout: scan.LivenessTimeout,
			HTTPTimeout:     scan.HTTPTimeout,
			DNSTimeout:      scan.DNSTimeout,
			UserAgent:       scan.UserAgent,
		},
		Logging: LoggingConfig{
			Level:  string(logging.LevelWarn),
			Format: string(logging.FormatText),
			Output: "stderr",
		},
	}
}

// Load loads configuration from a file. An empty path or a missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	config := Default()

	if path == "" {
		return config, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration, "failed to read config file", err)
	}

	// JSON is a subset of YAML, so one decoder covers both file types.
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, errors.WrapConfigError(errors.CodeConfiguration,
			fmt.Sprintf("failed to parse config file %s", filepath.Base(path)), err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, configDirPerm); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, configFilePerm); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration. The first failing field is reported
// as a ConfigError naming its dotted yaml path.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var validationErrs validator.ValidationErrors
	if !stderrors.As(err, &validationErrs) || len(validationErrs) == 0 {
		return errors.WrapConfigError(errors.CodeValidation, "invalid configuration", err)
	}

	fe := validationErrs[0]
	return &errors.ConfigError{
		Code:    errors.CodeValidation,
		Message: fmt.Sprintf("failed %q validation", fe.Tag()),
		Field:   fieldPath(fe.Namespace()),
		Value:   fe.Value(),
		Cause:   err,
	}
}

// fieldPath turns "Config.Scanning.ConnectTimeout" into "scanning.connect_timeout".
func fieldPath(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, part := range parts {
		parts[i] = snakeCase(part)
	}
	return strings.Join(parts, ".")
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper {
			prevLower := i > 0 && runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			prevUpper := i > 0 && runes[i-1] >= 'A' && runes[i-1] <= 'Z'
			if i > 0 && (prevLower || (prevUpper && nextLower)) {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ScannerConfig converts the scanning section into a scanning.Config.
func (c *Config) ScannerConfig() scanning.Config {
	ports := make([]int, len(c.Scanning.Ports))
	copy(ports, c.Scanning.Ports)
	return scanning.Config{
		Ports:           ports,
		Concurrency:     c.Scanning.Concurrency,
		ConnectTimeout:  c.Scanning.ConnectTimeout,
		LivenessPort:    c.Scanning.LivenessPort,
		LivenessTimeout: c.Scanning.LivenessTimeout,
		HTTPTimeout:     c.Scanning.HTTPTimeout,
		DNSTimeout:      c.Scanning.DNSTimeout,
		DNSServer:       c.Scanning.DNSServer,
		UserAgent:       c.Scanning.UserAgent,
		ScanTimeout:     c.Scanning.ScanTimeout,
	}
}

// LoggingConfig converts the logging section into a logging.Config.
func (c *Config) LoggingConfig() logging.Config {
	return logging.Config{
		Level:     logging.LogLevel(c.Logging.Level),
		Format:    logging.LogFormat(c.Logging.Format),
		Output:    c.Logging.Output,
		AddSource: c.Logging.Level == string(logging.LevelDebug),
	}
}
