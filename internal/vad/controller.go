// Package vad implements the energy-threshold recording loop: it consumes
// fixed-size chunks from a capture source, keeps a rolling window over the
// last SilenceDuration of audio and decides when the speaker has finished.
package vad

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/vad-recorder/internal/audio"
	"github.com/nupi-ai/vad-recorder/internal/notify"
)

// Source produces chunks into out until it is exhausted, ctx ends or Stop is
// called. It must close out when it stops producing, and it is the only
// goroutine allowed to send on out.
type Source interface {
	Start(ctx context.Context, out chan<- audio.Chunk) error
	Stop() error
}

// FailureReporter is implemented by sources that can fail after Start has
// returned, such as a recorder process that exits before producing audio.
// Err is consulted once the source runs dry without delivering a chunk.
type FailureReporter interface {
	Err() error
}

// Observer receives session telemetry. All calls happen on the controller
// goroutine.
type Observer interface {
	ChunkReceived(c audio.Chunk)
	EnergyMeasured(level float64)
	SpeechStarted()
	SessionEnded(res Result)
}

// Result is the outcome of a session.
type Result struct {
	SessionID      string
	Reason         TerminationReason
	Samples        []int16
	Chunks         int
	SpeechDetected bool
	// Duration is the length of the captured audio, not wall-clock time.
	Duration time.Duration
}

// Controller runs one recording session at a time.
type Controller struct {
	params        Params
	source        Source
	notifier      notify.Notifier
	observer      Observer
	log           *slog.Logger
	notifyTimeout time.Duration
}

// Option customises a Controller.
type Option func(*Controller)

// WithNotifier sets the indicator-sound player. The default is silent.
func WithNotifier(n notify.Notifier) Option {
	return func(c *Controller) { c.notifier = n }
}

// WithObserver attaches a telemetry sink.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithNotifyTimeout bounds the wait for the stop indicator.
func WithNotifyTimeout(d time.Duration) Option {
	return func(c *Controller) { c.notifyTimeout = d }
}

// New validates params and returns a Controller reading from src.
func New(params Params, src Source, opts ...Option) (*Controller, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if src == nil {
		return nil, fmt.Errorf("vad: nil source")
	}
	c := &Controller{
		params:        params,
		source:        src,
		notifier:      notify.Nop{},
		observer:      nopObserver{},
		notifyTimeout: DefaultNotifyTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.observer == nil {
		c.observer = nopObserver{}
	}
	c.log = c.log.With("component", "vad")
	return c, nil
}

// Params returns the validated parameters.
func (c *Controller) Params() Params { return c.params }

// Run records until silence follows speech, the duration cap is hit, the
// source runs dry or ctx is cancelled. Cancellation is a normal outcome
// (UserInterrupted) and keeps whatever was captured. The only error is a
// failure to start the source, including one reported through
// FailureReporter before any chunk arrived.
func (c *Controller) Run(ctx context.Context) (Result, error) {
	sessionID := uuid.NewString()
	log := c.log.With("session_id", sessionID)

	silenceChunks := c.params.SilenceChunks()
	maxChunks := c.params.MaxChunks()

	srcCtx, cancelSrc := context.WithCancel(ctx)
	defer cancelSrc()

	queue := make(chan audio.Chunk, c.params.QueueSize)
	if err := c.source.Start(srcCtx, queue); err != nil {
		return Result{SessionID: sessionID}, fmt.Errorf("vad: start source: %w", err)
	}
	log.Info("recording started",
		"silence_threshold", c.params.SilenceThreshold,
		"silence_chunks", silenceChunks,
		"max_chunks", maxChunks,
		"chunk_ms", c.params.ChunkDuration.Milliseconds(),
	)
	notify.Go(srcCtx, c.notifier, notify.EventStart, log)

	sess := newSession(silenceChunks)
	reason := c.loop(ctx, queue, sess, log)

	cancelSrc()
	if err := c.source.Stop(); err != nil {
		log.Warn("stopping source failed", "error", err)
	}

	if reason == SourceExhausted && sess.Len() == 0 {
		if fr, ok := c.source.(FailureReporter); ok {
			if err := fr.Err(); err != nil {
				return Result{SessionID: sessionID}, fmt.Errorf("vad: start source: %w", err)
			}
		}
	}

	if sess.Len() > 0 {
		c.notifyStop(ctx, log)
	}

	res := Result{
		SessionID:      sessionID,
		Reason:         reason,
		Chunks:         sess.Len(),
		SpeechDetected: sess.SpeechDetected(),
	}
	if sess.Len() == 0 {
		res.Reason = NoAudioCaptured
	} else {
		res.Samples = sess.Samples()
		res.Duration = audio.Duration(len(res.Samples))
	}

	log.Info("recording finished",
		"reason", res.Reason.String(),
		"chunks", res.Chunks,
		"speech_detected", res.SpeechDetected,
		"duration", res.Duration,
	)
	c.observer.SessionEnded(res)
	return res, nil
}

// loop consumes chunks until a termination condition holds. It waits at most
// one chunk duration between checks so cancellation is seen within a tick.
func (c *Controller) loop(ctx context.Context, queue <-chan audio.Chunk, sess *Session, log *slog.Logger) TerminationReason {
	ticker := time.NewTicker(c.params.ChunkDuration)
	defer ticker.Stop()
	lastChunk := time.Now()

	for {
		// Cancellation wins over a ready chunk.
		if ctx.Err() != nil {
			return UserInterrupted
		}
		select {
		case <-ctx.Done():
			return UserInterrupted

		case chunk, ok := <-queue:
			if !ok {
				log.Info("source exhausted", "chunks", sess.Len())
				return SourceExhausted
			}
			lastChunk = time.Now()
			if reason, done := c.consume(sess, chunk, log); done {
				return reason
			}

		case <-ticker.C:
			if c.params.StallTimeout > 0 && time.Since(lastChunk) >= c.params.StallTimeout {
				log.Warn("source stalled, ending session",
					"stall_timeout", c.params.StallTimeout,
					"chunks", sess.Len(),
				)
				return SourceExhausted
			}
		}
	}
}

// consume applies one chunk to the session and reports whether the session
// is over.
func (c *Controller) consume(sess *Session, chunk audio.Chunk, log *slog.Logger) (TerminationReason, bool) {
	if chunk.Status != 0 {
		log.Warn("capture glitch", "status", chunk.Status.String(), "chunk", sess.Len()+1)
	}
	c.observer.ChunkReceived(chunk)
	sess.Append(chunk)

	// Until a full window has elapsed, leading silence must not look like the
	// end of speech.
	if sess.WindowFull() {
		level := sess.Level()
		c.observer.EnergyMeasured(level)
		switch {
		case level > c.params.SilenceThreshold:
			if !sess.SpeechDetected() {
				log.Info("speech detected", "chunk", sess.Len(), "level", level)
				c.observer.SpeechStarted()
			}
			sess.markSpeech()
		case sess.SpeechDetected() && level < c.params.SilenceThreshold:
			return SilenceTimeout, true
		}
	}

	if sess.Len() >= c.params.MaxChunks() {
		return MaxDurationReached, true
	}
	return 0, false
}

// notifyStop plays the stop indicator and waits for it, bounded by the notify
// timeout. The wait survives cancellation of ctx so an interrupted session
// still gets its cue.
func (c *Controller) notifyStop(ctx context.Context, log *slog.Logger) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.notifyTimeout)
	defer cancel()
	select {
	case <-notify.Go(stopCtx, c.notifier, notify.EventStop, log):
	case <-stopCtx.Done():
		log.Debug("stop indicator timed out", "timeout", c.notifyTimeout)
	}
}

type nopObserver struct{}

func (nopObserver) ChunkReceived(audio.Chunk) {}
func (nopObserver) EnergyMeasured(float64)    {}
func (nopObserver) SpeechStarted()            {}
func (nopObserver) SessionEnded(Result)       {}
