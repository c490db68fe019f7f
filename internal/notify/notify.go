// Package notify plays short indicator sounds when recording starts and
// stops. Playback is best effort: a missing player or a failing command is
// reported to the caller of Play, and swallowed by Go.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
)

// Event identifies which indicator to play.
type Event string

const (
	EventStart Event = "start"
	EventStop  Event = "stop"
)

// ErrNoPlayer is returned when no usable sound player exists on this host.
var ErrNoPlayer = errors.New("notify: no sound player available")

// Notifier plays the indicator for an event. Implementations must return
// once ctx is done.
type Notifier interface {
	Play(ctx context.Context, ev Event) error
}

// Nop is a Notifier that never makes a sound.
type Nop struct{}

// Play does nothing.
func (Nop) Play(context.Context, Event) error { return nil }

// Player shells out to the platform's command-line audio player.
type Player struct {
	// StartSound and StopSound override the built-in sound files. The
	// override is passed to whichever player binary is found.
	StartSound string
	StopSound  string

	goos     string
	lookPath func(string) (string, error)
}

// NewPlayer returns a Player for the running OS.
func NewPlayer() *Player {
	return &Player{
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
	}
}

type candidate struct {
	bin  string
	args []string
}

// candidates lists players to try, in order, for an event.
func (p *Player) candidates(ev Event) []candidate {
	override := p.StartSound
	if ev == EventStop {
		override = p.StopSound
	}
	pick := func(builtin string) string {
		if override != "" {
			return override
		}
		return builtin
	}

	switch p.goos {
	case "darwin":
		file := "/System/Library/Sounds/Glass.aiff"
		if ev == EventStop {
			file = "/System/Library/Sounds/Pop.aiff"
		}
		return []candidate{{bin: "afplay", args: []string{pick(file)}}}

	case "linux":
		file, id := "/usr/share/sounds/freedesktop/stereo/message-new-instant.oga", "message-new-instant"
		if ev == EventStop {
			file, id = "/usr/share/sounds/freedesktop/stereo/complete.oga", "complete"
		}
		out := []candidate{{bin: "paplay", args: []string{pick(file)}}}
		if override != "" {
			out = append(out, candidate{bin: "aplay", args: []string{"-q", override}})
		} else {
			out = append(out, candidate{bin: "canberra-gtk-play", args: []string{"-i", id}})
		}
		return out

	case "windows":
		file := `C:\Windows\Media\Speech On.wav`
		if ev == EventStop {
			file = `C:\Windows\Media\Speech Off.wav`
		}
		script := fmt.Sprintf(`(New-Object Media.SoundPlayer '%s').PlaySync()`, pick(file))
		return []candidate{{bin: "powershell", args: []string{"-NoProfile", "-NonInteractive", "-Command", script}}}
	}
	return nil
}

// Play runs the players for ev in order until one succeeds, waiting for each
// to finish or for ctx to end. A player that is installed but fails, for
// example because its sound file is missing, falls through to the next one.
func (p *Player) Play(ctx context.Context, ev Event) error {
	var lastErr error
	for _, c := range p.candidates(ev) {
		path, err := p.lookPath(c.bin)
		if err != nil {
			continue
		}
		cmd := exec.CommandContext(ctx, path, c.args...)
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err != nil {
			lastErr = fmt.Errorf("notify: %s: %w", c.bin, err)
			if ctx.Err() != nil {
				return lastErr
			}
			continue
		}
		return nil
	}
	if lastErr != nil {
		return lastErr
	}
	return ErrNoPlayer
}

// Go plays ev on its own goroutine and returns a channel closed when playback
// ends. Errors are logged at debug level and otherwise ignored.
func Go(ctx context.Context, n Notifier, ev Event, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	if n == nil {
		close(done)
		return done
	}
	if logger == nil {
		logger = slog.Default()
	}
	go func() {
		defer close(done)
		if err := n.Play(ctx, ev); err != nil {
			logger.Debug("indicator sound failed", "event", string(ev), "error", err)
		}
	}()
	return done
}
