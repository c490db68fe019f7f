package source

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

// EnvRecorder overrides recorder discovery with a full command line, split
// with POSIX shell quoting rules (no expansion or redirection). The command
// must write raw signed 16-bit little-endian 16 kHz mono PCM to stdout.
const EnvRecorder = "VADREC_RECORDER"

// ErrNoRecorder indicates no usable command-line recorder was found.
var ErrNoRecorder = errors.New("source: no command-line recorder found")

// Command is a resolved recorder invocation.
type Command struct {
	Path string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

type candidate struct {
	name string
	args func(device string) []string
}

var (
	rate     = strconv.Itoa(audio.SampleRate)
	channels = strconv.Itoa(audio.Channels)
	bits     = strconv.Itoa(audio.BitDepth)
)

// soxArgs builds a sox invocation that writes raw PCM to stdout. input is
// either "-d" (default device) or a driver/device pair.
func soxArgs(input ...string) []string {
	args := append([]string{"-q"}, input...)
	return append(args, "-t", "raw", "-r", rate, "-e", "signed-integer", "-b", bits, "-c", channels, "-")
}

func ffmpegArgs(input ...string) []string {
	args := append([]string{"-hide_banner", "-loglevel", "error", "-nostdin"}, input...)
	return append(args, "-ac", channels, "-ar", rate, "-f", "s16le", "-")
}

// recorderCandidates returns the recorders tried for goos, in order.
func recorderCandidates(goos string) []candidate {
	switch goos {
	case "darwin":
		return []candidate{
			{"sox", func(dev string) []string {
				if dev == "" {
					return soxArgs("-d")
				}
				return soxArgs("-t", "coreaudio", dev)
			}},
			{"ffmpeg", func(dev string) []string {
				if dev == "" {
					dev = "0"
				}
				return ffmpegArgs("-f", "avfoundation", "-i", ":"+dev)
			}},
		}
	case "windows":
		return []candidate{
			{"ffmpeg", func(dev string) []string {
				if dev == "" {
					return nil
				}
				return ffmpegArgs("-f", "dshow", "-i", "audio="+dev)
			}},
			{"sox", func(dev string) []string {
				if dev == "" {
					dev = "default"
				}
				return soxArgs("-t", "waveaudio", dev)
			}},
		}
	default: // linux and others
		return []candidate{
			{"arecord", func(dev string) []string {
				args := []string{"-q", "-t", "raw", "-f", "S16_LE", "-r", rate, "-c", channels}
				if dev != "" {
					args = append(args, "-D", dev)
				}
				return append(args, "-")
			}},
			{"sox", func(dev string) []string {
				if dev == "" {
					return soxArgs("-d")
				}
				return soxArgs("-t", "alsa", dev)
			}},
		}
	}
}

// ResolveRecorder finds the recorder command to run. Search order:
//  1. VADREC_RECORDER environment variable (explicit override)
//  2. per-platform recorders found on PATH
func ResolveRecorder(device string) (Command, error) {
	return resolveRecorder(runtime.GOOS, device, os.Getenv, exec.LookPath)
}

func resolveRecorder(goos, device string, getenv func(string) string, lookPath func(string) (string, error)) (Command, error) {
	if override := strings.TrimSpace(getenv(EnvRecorder)); override != "" {
		fields, err := shlex.Split(override)
		if err != nil {
			return Command{}, fmt.Errorf("source: parse %s=%q: %w", EnvRecorder, override, err)
		}
		if len(fields) == 0 {
			return Command{}, fmt.Errorf("source: %s=%q has no command", EnvRecorder, override)
		}
		path, err := lookPath(fields[0])
		if err != nil {
			return Command{}, fmt.Errorf("source: %s=%q: %w", EnvRecorder, override, err)
		}
		return Command{Path: path, Args: fields[1:]}, nil
	}

	var tried []string
	for _, c := range recorderCandidates(goos) {
		args := c.args(device)
		if args == nil {
			continue
		}
		tried = append(tried, c.name)
		path, err := lookPath(c.name)
		if err != nil {
			continue
		}
		return Command{Path: path, Args: args}, nil
	}
	return Command{}, fmt.Errorf("%w on %s; tried %v (set %s to override)", ErrNoRecorder, goos, tried, EnvRecorder)
}
