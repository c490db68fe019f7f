// Package audio defines the PCM chunk type shared by capture backends, the
// VAD controller and the WAV sink, together with the energy measurement the
// controller thresholds on.
package audio

import (
	"math"
	"strings"
	"time"
)

const (
	// SampleRate is the capture rate in Hz. Every backend must deliver 16 kHz.
	SampleRate = 16000
	// Channels is fixed to mono.
	Channels = 1
	// BitDepth is the sample width in bits (signed little-endian PCM).
	BitDepth = 16
	// BytesPerSample is the width of one s16le sample.
	BytesPerSample = BitDepth / 8

	// maxAmplitude maps the full int16 range [-32768, 32767] into [-1, ~1).
	maxAmplitude = 32768.0
)

// Status is a bit set of conditions a source reports alongside a chunk.
// A non-zero status never invalidates the samples; it is informational.
type Status uint8

const (
	// InputOverflow means the device dropped input before it was read.
	InputOverflow Status = 1 << iota
	// InputUnderflow means the device delivered fewer frames than requested
	// and the remainder was zero-filled.
	InputUnderflow
	// ShortRead means the backend had to retry or pad a read.
	ShortRead
)

// String returns a "+"-joined list of flag names, or "ok" for zero.
func (s Status) String() string {
	if s == 0 {
		return "ok"
	}
	var names []string
	if s&InputOverflow != 0 {
		names = append(names, "input_overflow")
	}
	if s&InputUnderflow != 0 {
		names = append(names, "input_underflow")
	}
	if s&ShortRead != 0 {
		names = append(names, "short_read")
	}
	return strings.Join(names, "+")
}

// Flags returns the individual flags set in s.
func (s Status) Flags() []Status {
	var out []Status
	for _, f := range []Status{InputOverflow, InputUnderflow, ShortRead} {
		if s&f != 0 {
			out = append(out, f)
		}
	}
	return out
}

// Chunk is a fixed-duration block of mono samples. The producer must not
// touch Samples after handing the chunk over.
type Chunk struct {
	Samples []int16
	Status  Status
}

// SamplesPerChunk returns the number of samples in a chunk of duration d at
// SampleRate.
func SamplesPerChunk(d time.Duration) int {
	return int(int64(SampleRate) * int64(d) / int64(time.Second))
}

// Duration returns the playback length of n samples at SampleRate.
func Duration(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// RMS returns the root-mean-square amplitude of the concatenation of the
// given chunks, normalised to [0, 1]. An empty input has zero energy.
func RMS(chunks ...Chunk) float64 {
	var (
		sumSquares float64
		n          int
	)
	for _, c := range chunks {
		for _, s := range c.Samples {
			v := float64(s) / maxAmplitude
			sumSquares += v * v
		}
		n += len(c.Samples)
	}
	if n == 0 {
		return 0
	}
	return math.Sqrt(sumSquares / float64(n))
}

// Concat joins chunk samples in order into one freshly allocated buffer.
func Concat(chunks []Chunk) []int16 {
	total := 0
	for _, c := range chunks {
		total += len(c.Samples)
	}
	out := make([]int16, 0, total)
	for _, c := range chunks {
		out = append(out, c.Samples...)
	}
	return out
}

// DecodePCM converts s16le bytes into samples. A trailing odd byte is ignored.
func DecodePCM(buf []byte) []int16 {
	n := len(buf) / BytesPerSample
	samples := make([]int16, n)
	for i := 0; i < n; i++ {
		u := uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		samples[i] = int16(u)
	}
	return samples
}

// Tone returns n samples of a square wave whose RMS equals level (0..1).
// Used by the synthetic source and tests to produce exact energies.
func Tone(n int, level float64) []int16 {
	samples := make([]int16, n)
	if level <= 0 {
		return samples
	}
	if level > 1 {
		level = 1
	}
	amp := int16(math.Round(level * (maxAmplitude - 1)))
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	return samples
}
