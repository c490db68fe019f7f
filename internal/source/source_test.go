package source

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nupi-ai/vad-recorder/internal/audio"
	"github.com/nupi-ai/vad-recorder/internal/sink"
	"github.com/nupi-ai/vad-recorder/internal/vad"
)

const testChunk = 100 * time.Millisecond

// drain collects chunks until out is closed.
func drain(t *testing.T, out <-chan audio.Chunk) []audio.Chunk {
	t.Helper()
	var got []audio.Chunk
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, c)
		case <-timeout:
			t.Fatal("source did not close its channel")
			return nil
		}
	}
}

func TestSyntheticAlternatesSpeechSilence(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{ChunkDuration: testChunk, ToggleInterval: 3, Limit: 9})
	out := make(chan audio.Chunk, 16)
	require.NoError(t, src.Start(context.Background(), out))
	got := drain(t, out)
	require.Len(t, got, 9)

	for i, c := range got {
		require.Len(t, c.Samples, 1600)
		level := audio.RMS(c)
		if (i/3)%2 == 0 {
			assert.Less(t, level, vad.DefaultSilenceThreshold, "chunk %d should be silent", i)
		} else {
			assert.Greater(t, level, vad.DefaultSilenceThreshold, "chunk %d should be speech", i)
		}
	}
	assert.NoError(t, src.Stop())
	assert.NoError(t, src.Stop())
}

func TestSyntheticDrivesSessionToSilenceTimeout(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{ChunkDuration: testChunk})
	ctrl, err := vad.New(vad.DefaultParams(), src)
	require.NoError(t, err)

	res, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, vad.SilenceTimeout, res.Reason)
	// 20 silent, 20 speech, then a full 15-chunk window of silence.
	assert.Equal(t, 55, res.Chunks)
	assert.True(t, res.SpeechDetected)
}

func TestSyntheticStopUnblocksProducer(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{ChunkDuration: testChunk})
	out := make(chan audio.Chunk)
	require.NoError(t, src.Start(context.Background(), out))
	<-out

	done := make(chan struct{})
	go func() {
		src.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	_, ok := <-out
	assert.False(t, ok, "channel closed after Stop")
}

func TestStartTwiceFails(t *testing.T) {
	src := NewSynthetic(SyntheticConfig{ChunkDuration: testChunk, Limit: 1})
	require.NoError(t, src.Start(context.Background(), make(chan audio.Chunk, 1)))
	assert.ErrorIs(t, src.Start(context.Background(), make(chan audio.Chunk, 1)), ErrAlreadyStarted)
	src.Stop()
}

func TestStopBeforeStart(t *testing.T) {
	assert.NoError(t, NewSynthetic(SyntheticConfig{ChunkDuration: testChunk}).Stop())
}

func TestFileReplaysChunks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	samples := audio.Tone(1600*2+400, 0.1)
	require.NoError(t, sink.WriteWAV(path, samples, sink.DefaultFormat))

	src, err := NewFile(path, testChunk, false)
	require.NoError(t, err)
	out := make(chan audio.Chunk, 8)
	require.NoError(t, src.Start(context.Background(), out))
	got := drain(t, out)
	require.NoError(t, src.Stop())

	require.Len(t, got, 3)
	assert.Equal(t, audio.Status(0), got[0].Status)
	assert.Equal(t, audio.ShortRead, got[2].Status)
	assert.Len(t, got[2].Samples, 1600)
	assert.Equal(t, samples[3200:], got[2].Samples[:400])
	assert.Equal(t, make([]int16, 1200), got[2].Samples[400:])
}

func TestFileRejectsWrongRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "8k.wav")
	require.NoError(t, sink.WriteWAV(path, []int16{1, 2, 3}, sink.Format{SampleRate: 8000, Channels: 1, BitDepth: 16}))

	_, err := NewFile(path, testChunk, false)
	assert.ErrorIs(t, err, sink.ErrUnsupportedFormat)
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not on PATH")
	}
}

func TestExecReadsWholeChunks(t *testing.T) {
	requireShell(t)
	// Two full chunks of 3200 bytes plus a partial one.
	src := NewExec(Command{Path: "sh", Args: []string{"-c", "head -c 8000 /dev/zero"}}, testChunk, nil)
	out := make(chan audio.Chunk, 8)
	require.NoError(t, src.Start(context.Background(), out))
	got := drain(t, out)
	require.NoError(t, src.Stop())

	require.Len(t, got, 2)
	for _, c := range got {
		assert.Len(t, c.Samples, 1600)
		assert.Zero(t, audio.RMS(c))
	}
}

func TestExecStopKillsRecorder(t *testing.T) {
	requireShell(t)
	src := NewExec(Command{Path: "sh", Args: []string{"-c", "sleep 30"}}, testChunk, nil)
	out := make(chan audio.Chunk, 1)
	require.NoError(t, src.Start(context.Background(), out))

	start := time.Now()
	require.NoError(t, src.Stop())
	assert.Less(t, time.Since(start), 5*time.Second)
	_, ok := <-out
	assert.False(t, ok)
}

func TestExecStartFailure(t *testing.T) {
	src := NewExec(Command{Path: filepath.Join(t.TempDir(), "no-such-recorder")}, testChunk, nil)
	err := src.Start(context.Background(), make(chan audio.Chunk))
	assert.Error(t, err)
	assert.NoError(t, src.Stop())
}

func TestExecErrWhenRecorderFailsBeforeAudio(t *testing.T) {
	requireShell(t)
	var _ vad.FailureReporter = (*Exec)(nil)

	src := NewExec(Command{Path: "sh", Args: []string{"-c", "echo 'audio open error: Device or resource busy' >&2; exit 1"}}, testChunk, nil)
	out := make(chan audio.Chunk, 1)
	require.NoError(t, src.Start(context.Background(), out))
	assert.Empty(t, drain(t, out))
	require.NoError(t, src.Stop())

	err := src.Err()
	require.Error(t, err)
	var exitErr *exec.ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Contains(t, err.Error(), "Device or resource busy")
}

func TestExecErrNilOnCleanExitOrAfterAudio(t *testing.T) {
	requireShell(t)
	tests := map[string]string{
		"clean exit":          "exit 0",
		"fails after a chunk": "head -c 3200 /dev/zero; exit 1",
	}
	for name, script := range tests {
		t.Run(name, func(t *testing.T) {
			src := NewExec(Command{Path: "sh", Args: []string{"-c", script}}, testChunk, nil)
			out := make(chan audio.Chunk, 4)
			require.NoError(t, src.Start(context.Background(), out))
			drain(t, out)
			require.NoError(t, src.Stop())
			assert.NoError(t, src.Err())
		})
	}
}

func TestExecLogsComponentOnce(t *testing.T) {
	requireShell(t)
	t.Setenv(EnvRecorder, "sh -c 'exit 3'")
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	src, err := Open(Options{Kind: KindExec, ChunkDuration: testChunk, Logger: logger})
	require.NoError(t, err)
	out := make(chan audio.Chunk, 1)
	require.NoError(t, src.Start(context.Background(), out))
	drain(t, out)
	require.NoError(t, src.Stop())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NotEmpty(t, lines)
	for _, line := range lines {
		assert.Equal(t, 1, strings.Count(line, "component=source"), line)
		assert.Contains(t, line, "backend=exec")
	}
}

func TestResolveRecorder(t *testing.T) {
	onPath := func(names ...string) func(string) (string, error) {
		return func(name string) (string, error) {
			for _, n := range names {
				if n == name {
					return "/usr/bin/" + name, nil
				}
			}
			return "", exec.ErrNotFound
		}
	}
	noEnv := func(string) string { return "" }

	tests := []struct {
		name     string
		goos     string
		device   string
		path     []string
		wantPath string
		wantArg  string
	}{
		{"linux prefers arecord", "linux", "", []string{"arecord", "sox"}, "/usr/bin/arecord", "S16_LE"},
		{"linux falls back to sox", "linux", "", []string{"sox"}, "/usr/bin/sox", "-d"},
		{"linux device", "linux", "hw:1", []string{"arecord"}, "/usr/bin/arecord", "hw:1"},
		{"darwin prefers sox", "darwin", "", []string{"sox", "ffmpeg"}, "/usr/bin/sox", "-d"},
		{"darwin ffmpeg", "darwin", "", []string{"ffmpeg"}, "/usr/bin/ffmpeg", ":0"},
		{"windows ffmpeg needs device", "windows", "", []string{"ffmpeg", "sox"}, "/usr/bin/sox", "waveaudio"},
		{"windows ffmpeg device", "windows", "Mic", []string{"ffmpeg"}, "/usr/bin/ffmpeg", "audio=Mic"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := resolveRecorder(tt.goos, tt.device, noEnv, onPath(tt.path...))
			require.NoError(t, err)
			assert.Equal(t, tt.wantPath, cmd.Path)
			assert.Contains(t, cmd.Args, tt.wantArg)
			assert.Equal(t, "-", cmd.Args[len(cmd.Args)-1], "writes to stdout")
		})
	}
}

func TestResolveRecorderNoneFound(t *testing.T) {
	_, err := resolveRecorder("linux", "", func(string) string { return "" }, func(string) (string, error) {
		return "", exec.ErrNotFound
	})
	assert.ErrorIs(t, err, ErrNoRecorder)
}

func TestResolveRecorderOverride(t *testing.T) {
	env := func(key string) string {
		if key == EnvRecorder {
			return "parec --format=s16le --rate=16000 --channels=1"
		}
		return ""
	}
	cmd, err := resolveRecorder("linux", "", env, func(name string) (string, error) { return "/opt/" + name, nil })
	require.NoError(t, err)
	assert.Equal(t, "/opt/parec", cmd.Path)
	assert.Equal(t, []string{"--format=s16le", "--rate=16000", "--channels=1"}, cmd.Args)

	_, err = resolveRecorder("linux", "", env, func(string) (string, error) { return "", exec.ErrNotFound })
	assert.True(t, errors.Is(err, exec.ErrNotFound))
}

func TestResolveRecorderOverrideQuoting(t *testing.T) {
	lookPath := func(name string) (string, error) { return "/bin/" + name, nil }
	envWith := func(v string) func(string) string {
		return func(key string) string {
			if key == EnvRecorder {
				return v
			}
			return ""
		}
	}

	cmd, err := resolveRecorder("linux", "", envWith(`sh -c 'arecord -q -t raw -f S16_LE -r 16000 -c 1 - 2>/dev/null'`), lookPath)
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", cmd.Path)
	assert.Equal(t, []string{"-c", "arecord -q -t raw -f S16_LE -r 16000 -c 1 - 2>/dev/null"}, cmd.Args)

	cmd, err = resolveRecorder("linux", "", envWith(`ffmpeg -f dshow -i "audio=Microphone (USB Audio)" -`), lookPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"-f", "dshow", "-i", "audio=Microphone (USB Audio)", "-"}, cmd.Args)

	_, err = resolveRecorder("linux", "", envWith(`sh -c 'unterminated`), lookPath)
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	src, err := Open(Options{Kind: KindSynthetic, ChunkDuration: testChunk})
	require.NoError(t, err)
	assert.Equal(t, "synthetic", src.Name())

	_, err = Open(Options{Kind: "telepathy", ChunkDuration: testChunk})
	assert.Error(t, err)

	_, err = Open(Options{Kind: KindFile, Input: filepath.Join(t.TempDir(), "missing.wav"), ChunkDuration: testChunk})
	assert.Error(t, err)
}

func TestOpenPortAudioUnavailable(t *testing.T) {
	if NativeAvailable() {
		t.Skip("portaudio compiled in")
	}
	_, err := Open(Options{Kind: KindPortAudio, ChunkDuration: testChunk})
	assert.ErrorIs(t, err, ErrNativeUnavailable)
	_, err = Devices()
	assert.ErrorIs(t, err, ErrNativeUnavailable)
}

func TestOpenAutoDevModeFallback(t *testing.T) {
	if NativeAvailable() {
		t.Skip("portaudio compiled in")
	}
	t.Setenv("PATH", t.TempDir())
	t.Setenv(EnvRecorder, "")

	off, on := false, true
	_, err := Open(Options{Kind: KindAuto, ChunkDuration: testChunk, DevMode: &off})
	assert.ErrorIs(t, err, ErrNoRecorder)

	src, err := Open(Options{Kind: KindAuto, ChunkDuration: testChunk, DevMode: &on})
	require.NoError(t, err)
	assert.Equal(t, "synthetic", src.Name())
}
