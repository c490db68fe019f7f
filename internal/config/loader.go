package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvConfigFile names the YAML file to load when no path is passed to Load.
const EnvConfigFile = "VADREC_CONFIG_FILE"

// LoadResult carries the loaded configuration and any non-fatal warnings
// the caller should log.
type LoadResult struct {
	Config   Config
	Warnings []string
}

// Loader loads configuration from an optional YAML file and environment
// variables. Tests can override Lookup and ReadFile to inject deterministic
// inputs.
type Loader struct {
	Lookup   func(string) (string, bool)
	ReadFile func(string) ([]byte, error)
}

// Load builds the configuration with Read and validates it.
func (l Loader) Load(path string) (LoadResult, error) {
	cfg, err := l.Read(path)
	if err != nil {
		return LoadResult{}, err
	}
	if err := cfg.Validate(); err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Config: cfg, Warnings: cfg.Warnings()}, nil
}

// Read layers defaults, then the YAML file at path (or $VADREC_CONFIG_FILE),
// then VADREC_* environment overrides. The result is not validated so that
// callers with a further layer, such as command-line flags, can validate
// once at the end.
func (l Loader) Read(path string) (Config, error) {
	if l.Lookup == nil {
		l.Lookup = os.LookupEnv
	}
	if l.ReadFile == nil {
		l.ReadFile = os.ReadFile
	}

	cfg := Default()

	if strings.TrimSpace(path) == "" {
		if v, ok := l.Lookup(EnvConfigFile); ok {
			path = strings.TrimSpace(v)
		}
	}
	if path != "" {
		raw, err := l.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := applyYAML(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	if err := applyEnv(l.Lookup, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func applyYAML(raw []byte, cfg *Config) error {
	type yamlConfig struct {
		Output           *string  `yaml:"output"`
		SilenceThreshold *float64 `yaml:"silence_threshold"`
		SilenceDuration  *float64 `yaml:"silence_duration"`
		MaxDuration      *float64 `yaml:"max_duration"`
		ChunkMs          *int     `yaml:"chunk_ms"`
		StallTimeoutMs   *int     `yaml:"stall_timeout_ms"`
		QueueSize        *int     `yaml:"queue_size"`
		Source           *string  `yaml:"source"`
		Device           *string  `yaml:"device"`
		Input            *string  `yaml:"input"`
		Quiet            *bool    `yaml:"quiet"`
		NoSound          *bool    `yaml:"no_sound"`
		StartSound       *string  `yaml:"start_sound"`
		StopSound        *string  `yaml:"stop_sound"`
		LogLevel         *string  `yaml:"log_level"`
		MetricsFile      *string  `yaml:"metrics_file"`
	}
	var payload yamlConfig
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode yaml: %w", err)
	}

	setString(payload.Output, &cfg.Output)
	setFloat(payload.SilenceThreshold, &cfg.SilenceThreshold)
	setFloat(payload.SilenceDuration, &cfg.SilenceDuration)
	setFloat(payload.MaxDuration, &cfg.MaxDuration)
	setInt(payload.ChunkMs, &cfg.ChunkMs)
	setInt(payload.StallTimeoutMs, &cfg.StallTimeoutMs)
	setInt(payload.QueueSize, &cfg.QueueSize)
	setString(payload.Source, &cfg.Source)
	setString(payload.Device, &cfg.Device)
	setString(payload.Input, &cfg.Input)
	setBool(payload.Quiet, &cfg.Quiet)
	setBool(payload.NoSound, &cfg.NoSound)
	setString(payload.StartSound, &cfg.StartSound)
	setString(payload.StopSound, &cfg.StopSound)
	setString(payload.LogLevel, &cfg.LogLevel)
	setString(payload.MetricsFile, &cfg.MetricsFile)
	return nil
}

func applyEnv(lookup func(string) (string, bool), cfg *Config) error {
	overrideString(lookup, "VADREC_OUTPUT", &cfg.Output)
	overrideString(lookup, "VADREC_SOURCE", &cfg.Source)
	overrideString(lookup, "VADREC_DEVICE", &cfg.Device)
	overrideString(lookup, "VADREC_INPUT", &cfg.Input)
	overrideString(lookup, "VADREC_START_SOUND", &cfg.StartSound)
	overrideString(lookup, "VADREC_STOP_SOUND", &cfg.StopSound)
	overrideString(lookup, "VADREC_LOG_LEVEL", &cfg.LogLevel)
	overrideString(lookup, "VADREC_METRICS_FILE", &cfg.MetricsFile)

	floats := []struct {
		key    string
		target *float64
	}{
		{"VADREC_SILENCE_THRESHOLD", &cfg.SilenceThreshold},
		{"VADREC_SILENCE_DURATION", &cfg.SilenceDuration},
		{"VADREC_MAX_DURATION", &cfg.MaxDuration},
	}
	for _, f := range floats {
		if err := overrideFloat(lookup, f.key, f.target); err != nil {
			return err
		}
	}

	ints := []struct {
		key    string
		target *int
	}{
		{"VADREC_CHUNK_MS", &cfg.ChunkMs},
		{"VADREC_STALL_TIMEOUT_MS", &cfg.StallTimeoutMs},
		{"VADREC_QUEUE_SIZE", &cfg.QueueSize},
	}
	for _, i := range ints {
		if err := overrideInt(lookup, i.key, i.target); err != nil {
			return err
		}
	}

	if err := overrideBool(lookup, "VADREC_QUIET", &cfg.Quiet); err != nil {
		return err
	}
	return overrideBool(lookup, "VADREC_NO_SOUND", &cfg.NoSound)
}

func setString(v *string, target *string) {
	if v != nil && strings.TrimSpace(*v) != "" {
		*target = strings.TrimSpace(*v)
	}
}

func setFloat(v *float64, target *float64) {
	if v != nil {
		*target = *v
	}
}

func setInt(v *int, target *int) {
	if v != nil {
		*target = *v
	}
}

func setBool(v *bool, target *bool) {
	if v != nil {
		*target = *v
	}
}

func overrideString(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		*target = strings.TrimSpace(value)
	}
}

func overrideFloat(lookup func(string) (string, bool), key string, target *float64) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideInt(lookup func(string) (string, bool), key string, target *int) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}

func overrideBool(lookup func(string) (string, bool), key string, target *bool) error {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		parsed, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("config: invalid value for %s: %w", key, err)
		}
		*target = parsed
	}
	return nil
}
