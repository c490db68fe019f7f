package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

// stderrLimit caps how much recorder stderr is kept for diagnostics.
const stderrLimit = 4096

// Exec captures audio by running a command-line recorder and reading raw
// PCM from its stdout.
type Exec struct {
	lifecycle
	cmd          Command
	chunkSamples int
	log          *slog.Logger

	errMu sync.Mutex
	err   error
}

// NewExec creates a source that runs cmd and slices its output into chunks
// of the given duration. logger is expected to carry the component
// attribute already, as Open's does.
func NewExec(cmd Command, chunk time.Duration, logger *slog.Logger) *Exec {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exec{
		cmd:          cmd,
		chunkSamples: audio.SamplesPerChunk(chunk),
		log:          logger.With("backend", "exec"),
	}
}

// Name implements Source.
func (e *Exec) Name() string { return "exec" }

// Start launches the recorder process. A command that cannot be started is
// reported synchronously.
func (e *Exec) Start(ctx context.Context, out chan<- audio.Chunk) error {
	ctx, err := e.begin(ctx)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.cmd.Path, e.cmd.Args...)
	cmd.WaitDelay = time.Second
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.abort()
		return fmt.Errorf("source: recorder stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		e.abort()
		return fmt.Errorf("source: start %s: %w", e.cmd.Path, err)
	}
	e.log.Debug("recorder started", "command", e.cmd.String(), "pid", cmd.Process.Pid)

	e.run(func() {
		defer close(out)
		// Children of the recorder can keep the pipe open after it is killed.
		release := context.AfterFunc(ctx, func() { stdout.Close() })
		defer release()
		sent := e.pump(ctx, stdout, out)
		err := cmd.Wait()
		if err == nil || ctx.Err() != nil {
			return
		}
		e.log.Warn("recorder exited", "error", err, "stderr", stderr.String(), "chunks", sent)
		if sent == 0 {
			// Set before out is closed so the consumer sees it on exhaustion.
			e.setErr(recorderError(e.cmd.Path, err, stderr.String()))
		}
	})
	return nil
}

// Err reports why the recorder failed before delivering its first chunk,
// typically a device that could not be opened. It is nil otherwise.
func (e *Exec) Err() error {
	e.errMu.Lock()
	defer e.errMu.Unlock()
	return e.err
}

func (e *Exec) setErr(err error) {
	e.errMu.Lock()
	e.err = err
	e.errMu.Unlock()
}

func recorderError(path string, err error, stderr string) error {
	if msg := strings.TrimSpace(stderr); msg != "" {
		return fmt.Errorf("source: recorder %s failed before producing audio: %w: %s", path, err, msg)
	}
	return fmt.Errorf("source: recorder %s failed before producing audio: %w", path, err)
}

// pump reads whole chunks until EOF and returns how many it delivered. A
// trailing partial chunk is dropped.
func (e *Exec) pump(ctx context.Context, r io.Reader, out chan<- audio.Chunk) int {
	buf := make([]byte, e.chunkSamples*audio.BytesPerSample)
	for sent := 0; ; sent++ {
		_, err := io.ReadFull(r, buf)
		if err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				e.log.Debug("dropping partial chunk at end of stream")
			} else if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				e.log.Warn("recorder read failed", "error", err)
			}
			return sent
		}
		if !send(ctx, out, audio.Chunk{Samples: audio.DecodePCM(buf)}) {
			return sent
		}
	}
}

// Stop implements Source.
func (e *Exec) Stop() error {
	e.stop()
	return nil
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
