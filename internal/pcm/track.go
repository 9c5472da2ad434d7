// Package pcm owns the fully decoded in-memory audio buffer for one track.
package pcm

import (
	"errors"
	"math"
	"sync"
)

var (
	ErrEmpty       = errors.New("pcm: track has zero frames")
	ErrFormat      = errors.New("pcm: invalid sample data")
	ErrNoChannels  = errors.New("pcm: track has no channels")
	ErrSampleRate  = errors.New("pcm: sample rate must be positive")
	ErrChannelLen  = errors.New("pcm: channel buffers have mismatched lengths")
	ErrNonFinite   = errors.New("pcm: sample buffer contains non-finite values")
)

// Track owns the fully decoded float PCM for one audio source: its sample
// rate, channel count, and one contiguous sample sequence per channel.
//
// A Track is immutable once constructed. Re-loading a new file builds a new
// Track and swaps the Store's reference rather than mutating this one, so
// readers holding a Track never observe a torn update.
type Track struct {
	sampleRate float64
	channels   [][]float32
	frameCount int
}

// NewTrack validates and wraps already-decoded per-channel sample data.
// channels[c][i] is channel c's sample at frame i.
func NewTrack(sampleRate float64, channels [][]float32) (*Track, error) {
	if sampleRate <= 0 {
		return nil, ErrSampleRate
	}
	if len(channels) == 0 {
		return nil, ErrNoChannels
	}
	frameCount := len(channels[0])
	for _, ch := range channels {
		if len(ch) != frameCount {
			return nil, ErrChannelLen
		}
	}
	if frameCount == 0 {
		return nil, ErrEmpty
	}
	for _, ch := range channels {
		for _, s := range ch {
			if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
				return nil, ErrNonFinite
			}
		}
	}
	return &Track{
		sampleRate: sampleRate,
		channels:   channels,
		frameCount: frameCount,
	}, nil
}

// SampleRate returns the track's sample rate in Hz.
func (t *Track) SampleRate() float64 { return t.sampleRate }

// Channels returns the channel count.
func (t *Track) Channels() int { return len(t.channels) }

// FrameCount returns the total number of frames.
func (t *Track) FrameCount() int { return t.frameCount }

// Duration returns frameCount / sampleRate in seconds.
func (t *Track) Duration() float64 {
	return float64(t.frameCount) / t.sampleRate
}

// Channel returns the read-only sample sequence for channel c.
// Callers must not mutate the returned slice.
func (t *Track) Channel(c int) []float32 {
	return t.channels[c]
}

// Frame returns the frame index (rounded) for a time offset in seconds,
// clamped to [0, frameCount].
func (t *Track) Frame(seconds float64) int {
	f := int(math.Round(seconds * t.sampleRate))
	if f < 0 {
		return 0
	}
	if f > t.frameCount {
		return t.frameCount
	}
	return f
}

// Time returns the time offset in seconds for a frame index.
func (t *Track) Time(frame int) float64 {
	return float64(frame) / t.sampleRate
}

// Store holds the one Track currently published for playback and analysis.
// Re-loading disposes of the prior Track only once all current readers have
// released their reference, which in Go's garbage-collected runtime means
// simply dropping the old pointer — any goroutine still holding it from a
// prior Get keeps it alive for the life of that call.
type Store struct {
	mu    sync.RWMutex
	track *Track
}

// NewStore returns an empty Store with no Track loaded.
func NewStore() *Store {
	return &Store{}
}

// Get returns the currently published Track, or nil if none is loaded.
func (s *Store) Get() *Track {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.track
}

// Publish atomically replaces the published Track. On failure the previous
// Track, if any, remains in place — callers should only call Publish after
// a Track has been fully constructed and validated.
func (s *Store) Publish(t *Track) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.track = t
}
