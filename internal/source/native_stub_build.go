//go:build !portaudio

package source

import (
	"errors"
	"time"
)

// ErrNativeUnavailable indicates the PortAudio backend is not compiled in.
var ErrNativeUnavailable = errors.New("source: portaudio backend not available (build without -tags portaudio)")

// NativeAvailable reports that no native capture backend is compiled in.
func NativeAvailable() bool { return false }

// NewNative returns an error when built without the portaudio tag.
func NewNative(_ string, _ time.Duration) (Source, error) {
	return nil, ErrNativeUnavailable
}

// Devices returns an error when built without the portaudio tag.
func Devices() ([]Device, error) {
	return nil, ErrNativeUnavailable
}
