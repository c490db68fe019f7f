package source

import (
	"context"
	"fmt"
	"time"

	"github.com/nupi-ai/vad-recorder/internal/audio"
	"github.com/nupi-ai/vad-recorder/internal/sink"
)

// File replays a 16 kHz mono 16-bit WAV file chunk by chunk. The last chunk
// is zero-padded to full size and flagged ShortRead.
type File struct {
	lifecycle
	path     string
	chunk    time.Duration
	realtime bool
	samples  []int16
}

// NewFile loads the WAV at path. When realtime is set chunks are paced at the
// chunk duration, otherwise they are emitted as fast as they are consumed.
func NewFile(path string, chunk time.Duration, realtime bool) (*File, error) {
	samples, format, err := sink.ReadWAV(path)
	if err != nil {
		return nil, err
	}
	if format.SampleRate != audio.SampleRate {
		return nil, fmt.Errorf("%w: %s is %d Hz, need %d Hz", sink.ErrUnsupportedFormat, path, format.SampleRate, audio.SampleRate)
	}
	return &File{path: path, chunk: chunk, realtime: realtime, samples: samples}, nil
}

// Name implements Source.
func (f *File) Name() string { return "file" }

// Start implements Source.
func (f *File) Start(ctx context.Context, out chan<- audio.Chunk) error {
	ctx, err := f.begin(ctx)
	if err != nil {
		return err
	}
	f.run(func() {
		defer close(out)
		var tick <-chan time.Time
		if f.realtime {
			ticker := time.NewTicker(f.chunk)
			defer ticker.Stop()
			tick = ticker.C
		}
		for _, c := range chunkSamples(f.samples, audio.SamplesPerChunk(f.chunk)) {
			if tick != nil {
				select {
				case <-tick:
				case <-ctx.Done():
					return
				}
			}
			if !send(ctx, out, c) {
				return
			}
		}
	})
	return nil
}

// Stop implements Source.
func (f *File) Stop() error {
	f.stop()
	return nil
}

func chunkSamples(samples []int16, size int) []audio.Chunk {
	if size <= 0 {
		return nil
	}
	var chunks []audio.Chunk
	for start := 0; start < len(samples); start += size {
		end := start + size
		if end <= len(samples) {
			chunks = append(chunks, audio.Chunk{Samples: samples[start:end:end]})
			continue
		}
		padded := make([]int16, size)
		copy(padded, samples[start:])
		chunks = append(chunks, audio.Chunk{Samples: padded, Status: audio.ShortRead})
	}
	return chunks
}
