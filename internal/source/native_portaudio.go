//go:build portaudio

package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

// ErrNativeUnavailable is never returned when the portaudio backend is
// compiled in. It exists so callers can match on it regardless of build tags.
var ErrNativeUnavailable = errors.New("source: portaudio backend not available (build without -tags portaudio)")

// NativeAvailable reports that the PortAudio backend is compiled in.
func NativeAvailable() bool { return true }

// NewNative creates a PortAudio source reading from the named input device,
// or the system default when device is empty.
func NewNative(device string, chunk time.Duration) (Source, error) {
	return &PortAudio{device: device, frames: audio.SamplesPerChunk(chunk)}, nil
}

// PortAudio captures from a microphone through a blocking PortAudio stream.
type PortAudio struct {
	lifecycle
	device string
	frames int
}

// Name implements Source.
func (p *PortAudio) Name() string { return "portaudio" }

// Start opens the input stream and starts the capture goroutine. Failure to
// open the device is reported synchronously.
func (p *PortAudio) Start(ctx context.Context, out chan<- audio.Chunk) error {
	ctx, err := p.begin(ctx)
	if err != nil {
		return err
	}
	if err := portaudio.Initialize(); err != nil {
		p.abort()
		return fmt.Errorf("source: initialize portaudio: %w", err)
	}

	in := make([]int16, p.frames)
	stream, err := p.open(in)
	if err != nil {
		portaudio.Terminate()
		p.abort()
		return err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		p.abort()
		return fmt.Errorf("source: start input stream: %w", err)
	}

	p.run(func() {
		defer close(out)
		defer portaudio.Terminate()
		defer stream.Close()
		defer stream.Stop()

		for ctx.Err() == nil {
			var status audio.Status
			if err := stream.Read(); err != nil {
				if !errors.Is(err, portaudio.InputOverflowed) {
					return
				}
				status |= audio.InputOverflow
			}
			samples := make([]int16, len(in))
			copy(samples, in)
			if !send(ctx, out, audio.Chunk{Samples: samples, Status: status}) {
				return
			}
		}
	})
	return nil
}

// Stop implements Source.
func (p *PortAudio) Stop() error {
	p.stop()
	return nil
}

func (p *PortAudio) open(in []int16) (*portaudio.Stream, error) {
	if p.device == "" {
		stream, err := portaudio.OpenDefaultStream(audio.Channels, 0, audio.SampleRate, len(in), in)
		if err != nil {
			return nil, fmt.Errorf("source: open default input stream: %w", err)
		}
		return stream, nil
	}

	dev, err := findDevice(p.device)
	if err != nil {
		return nil, err
	}
	params := portaudio.LowLatencyParameters(dev, nil)
	params.Input.Channels = audio.Channels
	params.SampleRate = audio.SampleRate
	params.FramesPerBuffer = len(in)
	stream, err := portaudio.OpenStream(params, in)
	if err != nil {
		return nil, fmt.Errorf("source: open input stream on %q: %w", dev.Name, err)
	}
	return stream, nil
}

func findDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("source: list devices: %w", err)
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.Name == name {
			return d, nil
		}
	}
	return nil, fmt.Errorf("source: no input device named %q", name)
}

// Devices lists the input-capable devices PortAudio can see.
func Devices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("source: initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("source: list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for _, d := range infos {
		if d.MaxInputChannels <= 0 {
			continue
		}
		dev := Device{
			Index:      d.Index,
			Name:       d.Name,
			Channels:   d.MaxInputChannels,
			SampleRate: d.DefaultSampleRate,
			Latency:    d.DefaultLowInputLatency,
			Default:    def != nil && def.Name == d.Name,
		}
		if d.HostApi != nil {
			dev.HostAPI = d.HostApi.Name
		}
		out = append(out, dev)
	}
	return out, nil
}
