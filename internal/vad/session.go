package vad

import "github.com/nupi-ai/vad-recorder/internal/audio"

// Session is the state of one recording. It is owned by the controller loop
// and never shared with the capture goroutine.
type Session struct {
	chunks         []audio.Chunk
	windowSize     int
	speechDetected bool
}

func newSession(windowSize int) *Session {
	return &Session{windowSize: windowSize}
}

// Append adds a chunk to the recording. The rolling window follows
// automatically.
func (s *Session) Append(c audio.Chunk) {
	s.chunks = append(s.chunks, c)
}

// Len is the number of chunks received so far.
func (s *Session) Len() int { return len(s.chunks) }

// Window returns the most recent windowSize chunks (fewer before the window
// has filled). The slice aliases session storage and must not be modified.
func (s *Session) Window() []audio.Chunk {
	start := len(s.chunks) - s.windowSize
	if start < 0 {
		start = 0
	}
	return s.chunks[start:]
}

// WindowFull reports whether enough chunks have arrived to judge silence.
func (s *Session) WindowFull() bool {
	return len(s.chunks) >= s.windowSize
}

// Level is the RMS energy over the rolling window.
func (s *Session) Level() float64 {
	return audio.RMS(s.Window()...)
}

// SpeechDetected reports whether the threshold has ever been exceeded.
func (s *Session) SpeechDetected() bool { return s.speechDetected }

// markSpeech latches speechDetected; it never goes back to false.
func (s *Session) markSpeech() { s.speechDetected = true }

// Samples concatenates every chunk in arrival order.
func (s *Session) Samples() []int16 {
	return audio.Concat(s.chunks)
}
