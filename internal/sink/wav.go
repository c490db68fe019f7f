// Package sink serialises captured samples to PCM WAV files and reads them
// back.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

// wavFormatPCM is the RIFF WAVE_FORMAT_PCM tag.
const wavFormatPCM = 1

var (
	// ErrEmptyBuffer is returned when asked to write zero samples.
	ErrEmptyBuffer = errors.New("sink: empty sample buffer")
	// ErrUnsupportedFormat is returned for anything other than mono 16-bit PCM.
	ErrUnsupportedFormat = errors.New("sink: unsupported audio format")
)

// Format describes the PCM layout of a sample buffer.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is the only layout the recorder produces: 16 kHz mono s16le.
var DefaultFormat = Format{
	SampleRate: audio.SampleRate,
	Channels:   audio.Channels,
	BitDepth:   audio.BitDepth,
}

func (f Format) validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrUnsupportedFormat, f.SampleRate)
	}
	if f.Channels != 1 {
		return fmt.Errorf("%w: %d channels, only mono is supported", ErrUnsupportedFormat, f.Channels)
	}
	if f.BitDepth != 16 {
		return fmt.Errorf("%w: %d-bit, only 16-bit is supported", ErrUnsupportedFormat, f.BitDepth)
	}
	return nil
}

// WriteWAV writes samples to path as a PCM WAV file. The data goes to a
// temporary file in the same directory which is renamed over path only after
// it has been fully written and synced, so readers never see a partial file.
func WriteWAV(path string, samples []int16, format Format) error {
	if len(samples) == 0 {
		return ErrEmptyBuffer
	}
	if err := format.validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("sink: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	enc := wav.NewEncoder(tmp, format.SampleRate, format.BitDepth, format.Channels, wavFormatPCM)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}
	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: format.Channels,
			SampleRate:  format.SampleRate,
		},
		Data:           data,
		SourceBitDepth: format.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("sink: encode samples: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("sink: finalise wav header: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sink: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("sink: close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("sink: chmod %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("sink: rename to %s: %w", path, err)
	}
	committed = true
	return nil
}

// ReadWAV decodes a PCM WAV file. Only mono 16-bit files are accepted.
func ReadWAV(path string) ([]int16, Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Format{}, fmt.Errorf("sink: open %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, Format{}, fmt.Errorf("sink: %s is not a valid wav file", path)
	}
	format := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if dec.WavAudioFormat != wavFormatPCM {
		return nil, format, fmt.Errorf("%w: wav audio format %d, only PCM is supported", ErrUnsupportedFormat, dec.WavAudioFormat)
	}
	if err := format.validate(); err != nil {
		return nil, format, err
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, format, fmt.Errorf("sink: decode %s: %w", path, err)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return samples, format, nil
}

// Writer adapts WriteWAV to a fixed format.
type Writer struct {
	Format Format
}

// NewWriter returns a Writer for DefaultFormat.
func NewWriter() *Writer {
	return &Writer{Format: DefaultFormat}
}

// Write stores samples at path.
func (w *Writer) Write(path string, samples []int16) error {
	return WriteWAV(path, samples, w.Format)
}
