package source

import (
	"context"
	"time"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

// SyntheticToggleInterval is the number of chunks after which the synthetic
// source toggles between speech and silence. At 100ms per chunk, 20 chunks =
// 2 seconds, which is longer than the default silence window so a session
// driven by it ends on silence.
const SyntheticToggleInterval = 20

// Levels produced by the synthetic source, chosen either side of the default
// silence threshold.
const (
	SyntheticSpeechLevel  = 0.05
	SyntheticSilenceLevel = 0.001
)

// SyntheticConfig configures a Synthetic source.
type SyntheticConfig struct {
	ChunkDuration time.Duration
	// ToggleInterval defaults to SyntheticToggleInterval.
	ToggleInterval int
	// Limit stops the source after this many chunks. Zero means unlimited.
	Limit int
	// Realtime paces chunks at ChunkDuration instead of emitting them as
	// fast as the consumer accepts them.
	Realtime bool
}

// Synthetic emits deterministic square-wave chunks alternating between
// silence and speech every ToggleInterval chunks. It needs no audio hardware.
type Synthetic struct {
	lifecycle
	cfg      SyntheticConfig
	samples  int
	counter  int
	speaking bool
}

// NewSynthetic creates a Synthetic source starting in silence state.
func NewSynthetic(cfg SyntheticConfig) *Synthetic {
	if cfg.ToggleInterval <= 0 {
		cfg.ToggleInterval = SyntheticToggleInterval
	}
	return &Synthetic{
		cfg:     cfg,
		samples: audio.SamplesPerChunk(cfg.ChunkDuration),
	}
}

// Name implements Source.
func (s *Synthetic) Name() string { return "synthetic" }

// Start implements Source.
func (s *Synthetic) Start(ctx context.Context, out chan<- audio.Chunk) error {
	ctx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	s.run(func() {
		defer close(out)
		var tick <-chan time.Time
		if s.cfg.Realtime {
			ticker := time.NewTicker(s.cfg.ChunkDuration)
			defer ticker.Stop()
			tick = ticker.C
		}
		for n := 0; s.cfg.Limit == 0 || n < s.cfg.Limit; n++ {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			if !send(ctx, out, s.next()) {
				return
			}
		}
	})
	return nil
}

// Stop implements Source.
func (s *Synthetic) Stop() error {
	s.stop()
	return nil
}

// next returns the chunk for the current position, toggling state every
// ToggleInterval chunks.
func (s *Synthetic) next() audio.Chunk {
	level := SyntheticSilenceLevel
	if s.speaking {
		level = SyntheticSpeechLevel
	}
	s.counter++
	if s.counter >= s.cfg.ToggleInterval {
		s.counter = 0
		s.speaking = !s.speaking
	}
	return audio.Chunk{Samples: audio.Tone(s.samples, level)}
}
