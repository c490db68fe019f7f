package source

import "time"

// Device describes a capture device reported by the native backend.
type Device struct {
	Index      int
	Name       string
	HostAPI    string
	Channels   int
	SampleRate float64
	Latency    time.Duration
	Default    bool
}
