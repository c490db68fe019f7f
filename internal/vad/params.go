package vad

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

const (
	DefaultSilenceThreshold = 0.008
	DefaultSilenceDuration  = 1500 * time.Millisecond
	DefaultMaxDuration      = 60 * time.Second
	DefaultChunkDuration    = 100 * time.Millisecond
	DefaultStallTimeout     = 5 * time.Second
	DefaultQueueSize        = 64
	DefaultNotifyTimeout    = 2 * time.Second
)

// ErrInvalidParams is wrapped by every Params.Validate failure.
var ErrInvalidParams = errors.New("vad: invalid parameters")

// Params configures a recording session. Durations are converted into chunk
// counts by truncating division against ChunkDuration.
type Params struct {
	// SilenceThreshold is the RMS level (0..1] below which the rolling window
	// counts as silence.
	SilenceThreshold float64
	// SilenceDuration is the rolling window length: how much sub-threshold
	// audio ends the session once speech has been heard.
	SilenceDuration time.Duration
	// MaxDuration caps the recording regardless of speech state.
	MaxDuration time.Duration
	// ChunkDuration is the tick granularity and the length of every chunk.
	ChunkDuration time.Duration
	// StallTimeout ends the session when the source goes quiet (no chunks at
	// all, not silent chunks) for this long. Zero disables the check.
	StallTimeout time.Duration
	// QueueSize bounds the number of chunks buffered between the capture
	// goroutine and the controller.
	QueueSize int
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		SilenceThreshold: DefaultSilenceThreshold,
		SilenceDuration:  DefaultSilenceDuration,
		MaxDuration:      DefaultMaxDuration,
		ChunkDuration:    DefaultChunkDuration,
		StallTimeout:     DefaultStallTimeout,
		QueueSize:        DefaultQueueSize,
	}
}

// SilenceChunks is the rolling window size in chunks.
func (p Params) SilenceChunks() int {
	return chunksIn(p.SilenceDuration, p.ChunkDuration)
}

// MaxChunks is the hard cap on chunks per session.
func (p Params) MaxChunks() int {
	return chunksIn(p.MaxDuration, p.ChunkDuration)
}

// ChunkSamples is the number of samples each chunk carries.
func (p Params) ChunkSamples() int {
	return audio.SamplesPerChunk(p.ChunkDuration)
}

func chunksIn(d, chunk time.Duration) int {
	if chunk <= 0 {
		return 0
	}
	return int(d / chunk)
}

// Validate reports the first invalid field.
func (p Params) Validate() error {
	switch {
	case math.IsNaN(p.SilenceThreshold) || p.SilenceThreshold <= 0 || p.SilenceThreshold > 1:
		return fmt.Errorf("%w: silence threshold must be in (0, 1], got %v", ErrInvalidParams, p.SilenceThreshold)
	case p.ChunkDuration <= 0:
		return fmt.Errorf("%w: chunk duration must be positive, got %s", ErrInvalidParams, p.ChunkDuration)
	case p.ChunkSamples() < 1:
		return fmt.Errorf("%w: chunk duration %s is shorter than one sample", ErrInvalidParams, p.ChunkDuration)
	case p.SilenceDuration <= 0:
		return fmt.Errorf("%w: silence duration must be positive, got %s", ErrInvalidParams, p.SilenceDuration)
	case p.SilenceChunks() < 1:
		return fmt.Errorf("%w: silence duration %s is shorter than one chunk (%s)", ErrInvalidParams, p.SilenceDuration, p.ChunkDuration)
	case p.MaxDuration <= 0:
		return fmt.Errorf("%w: max duration must be positive, got %s", ErrInvalidParams, p.MaxDuration)
	case p.MaxChunks() < 1:
		return fmt.Errorf("%w: max duration %s is shorter than one chunk (%s)", ErrInvalidParams, p.MaxDuration, p.ChunkDuration)
	case p.StallTimeout < 0:
		return fmt.Errorf("%w: stall timeout cannot be negative, got %s", ErrInvalidParams, p.StallTimeout)
	case p.QueueSize < 1:
		return fmt.Errorf("%w: queue size must be at least 1, got %d", ErrInvalidParams, p.QueueSize)
	}
	return nil
}

// Seconds converts fractional seconds to a Duration, rounding to the nearest
// nanosecond so that values like 0.7 do not truncate to 699.999999ms.
func Seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
