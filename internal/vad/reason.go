package vad

// TerminationReason says why a session ended.
type TerminationReason int

const (
	// SilenceTimeout: speech was heard and the rolling window fell below the
	// threshold.
	SilenceTimeout TerminationReason = iota + 1
	// MaxDurationReached: the chunk cap was hit, whatever the speech state.
	MaxDurationReached
	// UserInterrupted: the run context was cancelled (Ctrl+C, SIGTERM).
	UserInterrupted
	// NoAudioCaptured: the session ended before a single chunk arrived.
	NoAudioCaptured
	// SourceExhausted: the source closed its stream or stopped delivering
	// chunks for longer than the stall timeout.
	SourceExhausted
)

func (r TerminationReason) String() string {
	switch r {
	case SilenceTimeout:
		return "silence_timeout"
	case MaxDurationReached:
		return "max_duration_reached"
	case UserInterrupted:
		return "user_interrupted"
	case NoAudioCaptured:
		return "no_audio_captured"
	case SourceExhausted:
		return "source_exhausted"
	default:
		return "unknown"
	}
}

// Captured reports whether the reason comes with audio worth writing.
func (r TerminationReason) Captured() bool {
	return r != NoAudioCaptured && r != 0
}
