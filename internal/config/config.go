package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/nupi-ai/vad-recorder/internal/source"
	"github.com/nupi-ai/vad-recorder/internal/vad"
)

const (
	DefaultOutput           = "/tmp/my_speech.wav"
	DefaultSilenceThreshold = vad.DefaultSilenceThreshold
	DefaultSilenceDuration  = 1.5
	DefaultMaxDuration      = 60.0
	DefaultChunkMs          = 100
	DefaultStallTimeoutMs   = 5000
	DefaultQueueSize        = vad.DefaultQueueSize
	DefaultSource           = SourceAuto
	DefaultLogLevel         = "warn"
)

// Capture backends selectable with Config.Source.
const (
	SourceAuto      = source.KindAuto
	SourcePortAudio = source.KindPortAudio
	SourceExec      = source.KindExec
	SourceFile      = source.KindFile
	SourceSynthetic = source.KindSynthetic
)

var validSources = []string{SourceAuto, SourcePortAudio, SourceExec, SourceFile, SourceSynthetic}

// Config holds the recorder configuration. Durations are in seconds where
// the CLI exposes them in seconds, milliseconds otherwise.
type Config struct {
	Output           string  `yaml:"output"`
	SilenceThreshold float64 `yaml:"silence_threshold"`
	SilenceDuration  float64 `yaml:"silence_duration"`
	MaxDuration      float64 `yaml:"max_duration"`
	ChunkMs          int     `yaml:"chunk_ms"`
	StallTimeoutMs   int     `yaml:"stall_timeout_ms"`
	QueueSize        int     `yaml:"queue_size"`

	Source string `yaml:"source"`
	Device string `yaml:"device"`
	Input  string `yaml:"input"`

	Quiet      bool   `yaml:"quiet"`
	NoSound    bool   `yaml:"no_sound"`
	StartSound string `yaml:"start_sound"`
	StopSound  string `yaml:"stop_sound"`

	LogLevel    string `yaml:"log_level"`
	MetricsFile string `yaml:"metrics_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Output:           DefaultOutput,
		SilenceThreshold: DefaultSilenceThreshold,
		SilenceDuration:  DefaultSilenceDuration,
		MaxDuration:      DefaultMaxDuration,
		ChunkMs:          DefaultChunkMs,
		StallTimeoutMs:   DefaultStallTimeoutMs,
		QueueSize:        DefaultQueueSize,
		Source:           DefaultSource,
		LogLevel:         DefaultLogLevel,
	}
}

// VADParams converts the configuration into controller parameters.
func (c Config) VADParams() vad.Params {
	return vad.Params{
		SilenceThreshold: c.SilenceThreshold,
		SilenceDuration:  vad.Seconds(c.SilenceDuration),
		MaxDuration:      vad.Seconds(c.MaxDuration),
		ChunkDuration:    time.Duration(c.ChunkMs) * time.Millisecond,
		StallTimeout:     time.Duration(c.StallTimeoutMs) * time.Millisecond,
		QueueSize:        c.QueueSize,
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Output) == "" {
		return fmt.Errorf("config: output path cannot be empty")
	}
	if c.SilenceDuration < 0 || c.MaxDuration < 0 {
		return fmt.Errorf("config: durations cannot be negative (silence=%v, max=%v)", c.SilenceDuration, c.MaxDuration)
	}
	if err := c.VADParams().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if !contains(validSources, c.Source) {
		return fmt.Errorf("config: source must be one of %v, got %q", validSources, c.Source)
	}
	if c.Source == SourceFile && strings.TrimSpace(c.Input) == "" {
		return fmt.Errorf("config: source %q requires an input file", SourceFile)
	}
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("config: log_level must be one of [debug, info, warn, error], got %q", c.LogLevel)
	}
	return nil
}

// Warnings lists settings that are valid but probably not what was meant.
func (c Config) Warnings() []string {
	var out []string
	p := c.VADParams()
	if p.ChunkDuration <= 0 {
		return nil
	}
	if p.SilenceDuration%p.ChunkDuration != 0 {
		out = append(out, fmt.Sprintf("silence_duration %s is not a multiple of chunk_ms %d; silence window truncated to %d chunks (%s)",
			p.SilenceDuration, c.ChunkMs, p.SilenceChunks(), time.Duration(p.SilenceChunks())*p.ChunkDuration))
	}
	if p.MaxDuration%p.ChunkDuration != 0 {
		out = append(out, fmt.Sprintf("max_duration %s is not a multiple of chunk_ms %d; recording capped at %d chunks",
			p.MaxDuration, c.ChunkMs, p.MaxChunks()))
	}
	if p.SilenceChunks() > p.MaxChunks() {
		out = append(out, fmt.Sprintf("silence_duration %s exceeds max_duration %s; recordings will always run to max_duration",
			p.SilenceDuration, p.MaxDuration))
	}
	if c.Source != SourceFile && c.Input != "" {
		out = append(out, fmt.Sprintf("input %q ignored: source is %q", c.Input, c.Source))
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
