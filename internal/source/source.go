// Package source provides the capture backends that feed the recorder with
// fixed-size chunks of 16 kHz mono audio.
package source

import (
	"context"
	"errors"
	"sync"

	"github.com/nupi-ai/vad-recorder/internal/audio"
)

// ErrAlreadyStarted is returned when Start is called twice on one source.
var ErrAlreadyStarted = errors.New("source: already started")

// Source produces audio chunks.
type Source interface {
	// Start spawns the producer goroutine. The producer closes out when it
	// stops, whether the input was exhausted, ctx ended or Stop was called.
	Start(ctx context.Context, out chan<- audio.Chunk) error
	// Stop ends production and waits for the producer to exit. It is
	// idempotent and safe to call before Start.
	Stop() error
	// Name identifies the backend in logs.
	Name() string
}

// lifecycle tracks the producer goroutine of a single-use source.
type lifecycle struct {
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// begin derives the producer context. Callers must follow up with either
// run or abort.
func (l *lifecycle) begin(parent context.Context) (context.Context, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return nil, ErrAlreadyStarted
	}
	l.started = true
	ctx, cancel := context.WithCancel(parent)
	l.cancel = cancel
	l.done = make(chan struct{})
	return ctx, nil
}

func (l *lifecycle) run(fn func()) {
	go func() {
		defer close(l.done)
		fn()
	}()
}

// abort releases a context from begin whose producer never started.
func (l *lifecycle) abort() {
	l.cancel()
	close(l.done)
}

func (l *lifecycle) stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// send delivers c unless ctx ends first.
func send(ctx context.Context, out chan<- audio.Chunk, c audio.Chunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
