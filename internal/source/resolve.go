package source

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"
)

// Backend names accepted by Open.
const (
	KindAuto      = "auto"
	KindPortAudio = "portaudio"
	KindExec      = "exec"
	KindFile      = "file"
	KindSynthetic = "synthetic"
)

// EnvDevMode enables the synthetic fallback when auto finds no capture
// backend.
const EnvDevMode = "VADREC_DEV_MODE"

// Options selects and configures a backend.
type Options struct {
	Kind          string
	Device        string
	Input         string
	ChunkDuration time.Duration
	// Realtime paces file and synthetic sources at ChunkDuration.
	Realtime bool
	// DevMode defaults to VADREC_DEV_MODE=1 when nil.
	DevMode *bool
	Logger  *slog.Logger
}

// Open builds the configured backend. "auto" resolves to portaudio when it
// is compiled in, then to the first recorder found on PATH.
func Open(opts Options) (Source, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "source")

	switch opts.Kind {
	case KindAuto, "":
		return openAuto(opts, logger)
	case KindPortAudio:
		if !NativeAvailable() {
			return nil, fmt.Errorf("source %q requested: %w", KindPortAudio, ErrNativeUnavailable)
		}
		return NewNative(opts.Device, opts.ChunkDuration)
	case KindExec:
		cmd, err := ResolveRecorder(opts.Device)
		if err != nil {
			return nil, err
		}
		return NewExec(cmd, opts.ChunkDuration, logger), nil
	case KindFile:
		f, err := NewFile(opts.Input, opts.ChunkDuration, opts.Realtime)
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindSynthetic:
		return NewSynthetic(SyntheticConfig{ChunkDuration: opts.ChunkDuration, Realtime: opts.Realtime}), nil
	default:
		return nil, fmt.Errorf("source: unknown backend %q", opts.Kind)
	}
}

func openAuto(opts Options, logger *slog.Logger) (Source, error) {
	if NativeAvailable() {
		logger.Debug("auto-detected source: portaudio")
		return NewNative(opts.Device, opts.ChunkDuration)
	}

	cmd, err := ResolveRecorder(opts.Device)
	if err == nil {
		logger.Debug("auto-detected source: exec", "command", cmd.String())
		return NewExec(cmd, opts.ChunkDuration, logger), nil
	}

	devMode := os.Getenv(EnvDevMode) == "1"
	if opts.DevMode != nil {
		devMode = *opts.DevMode
	}
	if devMode && errors.Is(err, ErrNoRecorder) {
		// Auto mode + dev mode: fall back to synthetic instead of failing hard.
		logger.Warn("no capture backend available, falling back to synthetic source ("+EnvDevMode+"=1)", "error", err)
		return NewSynthetic(SyntheticConfig{ChunkDuration: opts.ChunkDuration, Realtime: true}), nil
	}
	return nil, err
}
