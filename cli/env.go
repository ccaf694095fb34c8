package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/petal-labs/petalpeople/config"
	"github.com/petal-labs/petalpeople/people"
	"github.com/petal-labs/petalpeople/store"
	"github.com/petal-labs/petalpeople/tool"
)

// loadConfig resolves the config file from --config, then
// PETALPEOPLE_CONFIG, then discovery.
func loadConfig(cmd *cobra.Command) (config.File, string, error) {
	explicit, _ := cmd.Flags().GetString("config")
	if strings.TrimSpace(explicit) == "" {
		explicit = os.Getenv(config.EnvConfigPath)
	}
	cfg, path, err := config.Resolve(explicit)
	if err != nil {
		return config.File{}, path, exitError(exitValidation, "loading config: %v", err)
	}
	return cfg, path, nil
}

// resolveSQLitePath picks the database location: --sqlite-path, then
// PETALPEOPLE_SQLITE_PATH, then the config file, then the default under the
// user's home directory.
func resolveSQLitePath(cmd *cobra.Command, cfg config.File) (string, error) {
	sqlitePath, _ := cmd.Flags().GetString("sqlite-path")
	dsn := strings.TrimSpace(sqlitePath)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv(config.EnvSQLitePath))
	}
	if dsn == "" {
		dsn = strings.TrimSpace(cfg.Store.SQLitePath)
	}
	if dsn == "" {
		defaultPath, err := store.DefaultPath()
		if err != nil {
			return "", fmt.Errorf("resolving default sqlite path: %w", err)
		}
		dsn = defaultPath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = filepath.Clean(dsn)
	}
	return dsn, nil
}

// newLogger builds the process logger. --verbose and --quiet override the
// configured level.
func newLogger(cmd *cobra.Command, w io.Writer, cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = slog.LevelDebug
	}
	if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// peopleRuntime is the in-process tool stack shared by serve and tools.
type peopleRuntime struct {
	cfg      config.File
	logger   *slog.Logger
	gateway  *store.Gateway
	registry *tool.Registry
}

func newPeopleRuntime(cmd *cobra.Command) (*peopleRuntime, error) {
	cfg, _, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cmd, cmd.ErrOrStderr(), cfg.Logging)

	dsn, err := resolveSQLitePath(cmd, cfg)
	if err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}
	gateway, err := store.New(store.Config{DSN: dsn, Logger: logger})
	if err != nil {
		return nil, exitError(exitValidation, "configuring store: %v", err)
	}

	registry := tool.NewRegistry()
	if err := people.RegisterTools(registry, people.NewRepository(gateway, logger)); err != nil {
		return nil, exitError(exitRuntime, "registering tools: %v", err)
	}
	registry.Seal()

	return &peopleRuntime{
		cfg:      cfg,
		logger:   logger,
		gateway:  gateway,
		registry: registry,
	}, nil
}

// parseArgPairs turns repeated KEY=VALUE flags into tool arguments. Values
// for parameters declared as strings are kept verbatim; others are parsed
// as booleans, numbers, or JSON where possible.
func parseArgPairs(pairs []string, argJSON string, types map[string]string) (map[string]any, error) {
	args := map[string]any{}
	for _, pair := range pairs {
		key, value, err := parseKeyValue(pair)
		if err != nil {
			return nil, err
		}
		if types[key] == tool.TypeString {
			args[key] = value
			continue
		}
		args[key] = parsePrimitiveValue(value)
	}

	if strings.TrimSpace(argJSON) == "" {
		return args, nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(argJSON), &obj); err != nil {
		return nil, fmt.Errorf("--args-json: %w", err)
	}
	for key, value := range obj {
		args[key] = value
	}
	return args, nil
}

func parseKeyValue(value string) (string, string, error) {
	key, val, found := strings.Cut(value, "=")
	key = strings.TrimSpace(key)
	if key == "" {
		return "", "", errors.New("argument key is required")
	}
	if !found {
		return "", "", fmt.Errorf("argument %q: value is required (KEY=VALUE)", key)
	}
	return key, val, nil
}

func parsePrimitiveValue(value string) any {
	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}
	if i, err := strconv.ParseInt(value, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return f
	}

	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "\"") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return value
}

func paramTypes(d tool.Descriptor) map[string]string {
	types := make(map[string]string, len(d.Params))
	for _, p := range d.Params {
		types[p.Name] = p.Type
	}
	return types
}

// schemaParamTypes reads property types from a JSON Schema object. JSON
// Schema "number" maps to the float type.
func schemaParamTypes(raw json.RawMessage) map[string]string {
	var schema struct {
		Properties map[string]struct {
			Type string `json:"type"`
		} `json:"properties"`
	}
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	types := make(map[string]string, len(schema.Properties))
	for name, prop := range schema.Properties {
		if prop.Type == "number" {
			types[name] = tool.TypeFloat
			continue
		}
		types[name] = prop.Type
	}
	return types
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(append(data, '\n'))
	return err
}
