// Package config loads the optional petalpeople configuration file.
//
// Settings resolve with first-match precedence: command-line flags, then
// environment variables, then the config file, then built-in defaults. This
// package covers the file and the defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const (
	projectConfigBase = "petalpeople"
	homeConfigBase    = "config"
	homeConfigDir     = ".petalpeople"
)

// Environment variables consulted by the CLI.
const (
	EnvConfigPath = "PETALPEOPLE_CONFIG"
	EnvSQLitePath = "PETALPEOPLE_SQLITE_PATH"
)

// Defaults.
const (
	DefaultTransport = "sse"
	DefaultHost      = "0.0.0.0"
	DefaultPort      = 8000
)

var configExtensions = []string{".yaml", ".yml", ".toml"}

// File is the on-disk configuration shape.
type File struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Store     StoreConfig     `yaml:"store" toml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry" toml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
}

// ServerConfig selects and configures the transport front-end.
type ServerConfig struct {
	Transport string `yaml:"transport" toml:"transport" validate:"omitempty,oneof=sse stdio"`
	Host      string `yaml:"host" toml:"host" validate:"omitempty,hostname|ip"`
	Port      int    `yaml:"port" toml:"port" validate:"omitempty,min=1,max=65535"`
	// CORSOrigin, if set, is sent as Access-Control-Allow-Origin.
	CORSOrigin string `yaml:"cors_origin" toml:"cors_origin"`
}

// StoreConfig locates the database and schedules its health probe.
type StoreConfig struct {
	SQLitePath     string `yaml:"sqlite_path" toml:"sqlite_path"`
	HealthSchedule string `yaml:"health_schedule" toml:"health_schedule"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint" toml:"otlp_endpoint" validate:"omitempty,url"`
	ServiceName  string `yaml:"service_name" toml:"service_name"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" toml:"format" validate:"omitempty,oneof=text json"`
}

// Defaults returns the built-in settings.
func Defaults() File {
	return File{
		Server: ServerConfig{
			Transport: DefaultTransport,
			Host:      DefaultHost,
			Port:      DefaultPort,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WithDefaults fills every unset field of f from Defaults.
func (f File) WithDefaults() File {
	d := Defaults()
	if f.Server.Transport == "" {
		f.Server.Transport = d.Server.Transport
	}
	if f.Server.Host == "" {
		f.Server.Host = d.Server.Host
	}
	if f.Server.Port == 0 {
		f.Server.Port = d.Server.Port
	}
	if f.Logging.Level == "" {
		f.Logging.Level = d.Logging.Level
	}
	if f.Logging.Format == "" {
		f.Logging.Format = d.Logging.Format
	}
	return f
}

// Validate checks field constraints.
func (f File) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: validate: %w", err)
	}
	return nil
}

// Discover resolves the config file location with first-match semantics.
func Discover(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("config: resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("config: resolve user home: %w", err)
	}
	return DiscoverFrom(explicitPath, cwd, homeDir)
}

// DiscoverFrom is a testable variant of Discover. An explicit path must
// exist; otherwise petalpeople.{yaml,yml,toml} in cwd is tried, then
// ~/.petalpeople/config.{yaml,yml,toml}.
func DiscoverFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		clean = filepath.Clean(clean)
		info, err := os.Stat(clean)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return "", false, fmt.Errorf("config: file %q not found", clean)
			}
			return "", false, fmt.Errorf("config: checking %q: %w", clean, err)
		}
		if info.IsDir() {
			return "", false, fmt.Errorf("config: %q is a directory", clean)
		}
		return clean, true, nil
	}

	candidates := make([]string, 0, 2*len(configExtensions))
	for _, ext := range configExtensions {
		candidates = append(candidates, filepath.Join(cwd, projectConfigBase+ext))
	}
	for _, ext := range configExtensions {
		candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigBase+ext))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("config: checking %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load reads and validates a config file. The format follows the file
// extension; unknown keys are rejected.
func Load(path string) (File, error) {
	// #nosec G304 -- path comes from explicit flag or local discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("config: reading %q: %w", path, err)
	}

	var cfg File
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return File{}, fmt.Errorf("config: parsing %q: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, key := range undecoded {
				keys = append(keys, key.String())
			}
			return File{}, fmt.Errorf("config: parsing %q: unknown keys %s", path, strings.Join(keys, ", "))
		}
	case ".yaml", ".yml":
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return File{}, fmt.Errorf("config: parsing %q: %w", path, err)
		}
	default:
		return File{}, fmt.Errorf("config: unsupported file extension %q", ext)
	}

	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("%w (in %s)", err, path)
	}
	return cfg, nil
}

// Resolve discovers and loads the config file, returning defaults when none
// exists. The returned path is empty when no file was found.
func Resolve(explicitPath string) (File, string, error) {
	path, found, err := Discover(explicitPath)
	if err != nil {
		return File{}, "", err
	}
	if !found {
		return Defaults(), "", nil
	}
	cfg, err := Load(path)
	if err != nil {
		return File{}, path, err
	}
	return cfg.WithDefaults(), path, nil
}
