package notify

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func notFound(string) (string, error) { return "", exec.ErrNotFound }

func TestPlayNoPlayer(t *testing.T) {
	p := &Player{goos: "linux", lookPath: notFound}
	err := p.Play(context.Background(), EventStart)
	assert.ErrorIs(t, err, ErrNoPlayer)
}

func TestPlayUnknownOS(t *testing.T) {
	p := &Player{goos: "plan9", lookPath: exec.LookPath}
	assert.ErrorIs(t, p.Play(context.Background(), EventStop), ErrNoPlayer)
}

func TestPlayRunsFirstAvailable(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}
	var asked []string
	p := &Player{
		goos: "linux",
		lookPath: func(bin string) (string, error) {
			asked = append(asked, bin)
			if bin == "canberra-gtk-play" {
				return truePath, nil
			}
			return "", exec.ErrNotFound
		},
	}
	require.NoError(t, p.Play(context.Background(), EventStop))
	assert.Equal(t, []string{"paplay", "canberra-gtk-play"}, asked)
}

func TestPlayReportsCommandFailure(t *testing.T) {
	falsePath, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false(1) not available")
	}
	p := &Player{goos: "darwin", lookPath: func(string) (string, error) { return falsePath, nil }}
	err = p.Play(context.Background(), EventStart)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPlayer)
}

func TestPlayFallsThroughOnFailure(t *testing.T) {
	truePath, err := exec.LookPath("true")
	if err != nil {
		t.Skip("true(1) not available")
	}
	falsePath, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false(1) not available")
	}
	var ran []string
	p := &Player{
		goos: "linux",
		lookPath: func(bin string) (string, error) {
			ran = append(ran, bin)
			if bin == "paplay" {
				// Installed, but the sound file is missing.
				return falsePath, nil
			}
			return truePath, nil
		},
	}
	require.NoError(t, p.Play(context.Background(), EventStart))
	assert.Equal(t, []string{"paplay", "canberra-gtk-play"}, ran)
}

func TestPlayReportsLastFailure(t *testing.T) {
	falsePath, err := exec.LookPath("false")
	if err != nil {
		t.Skip("false(1) not available")
	}
	p := &Player{goos: "linux", lookPath: func(string) (string, error) { return falsePath, nil }}
	err = p.Play(context.Background(), EventStop)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoPlayer)
	assert.Contains(t, err.Error(), "canberra-gtk-play")
}

func TestCandidatesOverride(t *testing.T) {
	p := &Player{goos: "darwin", StopSound: "/tmp/custom.wav"}
	got := p.candidates(EventStop)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"/tmp/custom.wav"}, got[0].args)

	got = p.candidates(EventStart)
	assert.Equal(t, []string{"/System/Library/Sounds/Glass.aiff"}, got[0].args)

	p = &Player{goos: "linux", StartSound: "/tmp/beep.wav"}
	got = p.candidates(EventStart)
	require.Len(t, got, 2)
	assert.Equal(t, "aplay", got[1].bin)
}

type blockingNotifier struct{}

func (blockingNotifier) Play(ctx context.Context, _ Event) error {
	<-ctx.Done()
	return ctx.Err()
}

type failingNotifier struct{}

func (failingNotifier) Play(context.Context, Event) error { return errors.New("boom") }

func TestGoSwallowsErrors(t *testing.T) {
	done := Go(context.Background(), failingNotifier{}, EventStart, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go did not finish")
	}
}

func TestGoHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	done := Go(ctx, blockingNotifier{}, EventStop, nil)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Go ignored context deadline")
	}
}

func TestGoNilNotifier(t *testing.T) {
	done := Go(context.Background(), nil, EventStart, nil)
	_, open := <-done
	assert.False(t, open)
}
