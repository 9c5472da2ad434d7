// Package output drains scheduled PCM segments to an audio device.
package output

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hajimehoshi/oto/v2"
)

const (
	defaultBitDepth = 2 // 16-bit PCM

	// maxBufferSize caps how far the sink may run ahead of the speaker so
	// stop and seek are heard promptly.
	maxBufferSize = 17640 // 100ms at 44100Hz stereo 16-bit
)

// Sink is the pluggable audio device the loop engine drains frames into.
// It declares its own sample rate; the engine's native rate is exposed
// separately and resampling across a mismatch is out of scope.
type Sink interface {
	io.Writer
	SampleRate() int
	Channels() int
	Pause()
	Resume()
	Stop()
	Close() error
}

// OtoSink is an Sink backed by an oto.Context/oto.Player pair fed by a
// ring buffer, with pause/resume synchronized via a condition variable.
type OtoSink struct {
	context    *oto.Context
	player     oto.Player
	sampleRate int
	channels   int
	mu         sync.Mutex
	cond       *sync.Cond
	buffer     *bytes.Buffer
	volume     float64
	paused     bool
	closed     bool
}

// NewOtoSink creates an oto-backed sink at the given rate/channel count.
func NewOtoSink(sampleRate, channels int) (*OtoSink, error) {
	ctx, ready, err := oto.NewContext(sampleRate, channels, defaultBitDepth)
	if err != nil {
		return nil, fmt.Errorf("output: create oto context: %w", err)
	}
	<-ready

	s := &OtoSink{
		context:    ctx,
		sampleRate: sampleRate,
		channels:   channels,
		buffer:     &bytes.Buffer{},
		volume:     1.0,
	}
	s.cond = sync.NewCond(&s.mu)
	s.player = ctx.NewPlayer(s)
	return s, nil
}

// Read implements io.Reader for oto.Player to drain the ring buffer.
func (s *OtoSink) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.paused && !s.closed {
		s.cond.Wait()
	}
	if s.closed {
		return 0, io.EOF
	}
	if s.buffer.Len() == 0 {
		for i := range p {
			p[i] = 0
		}
		return len(p), nil
	}

	n, err := s.buffer.Read(p)
	if err != nil {
		return n, err
	}

	if s.volume < 1.0 && n > 0 {
		applyVolume(p[:n], s.volume)
	}
	return n, nil
}

func applyVolume(data []byte, vol float64) {
	for i := 0; i < len(data)-1; i += 2 {
		sample := int16(data[i]) | int16(data[i+1])<<8
		scaled := int16(float64(sample) * vol)
		data[i] = byte(scaled)
		data[i+1] = byte(scaled >> 8)
	}
}

// Write feeds interleaved 16-bit PCM into the ring buffer, throttling the
// caller so it cannot run arbitrarily far ahead of the speaker.
func (s *OtoSink) Write(data []byte) (int, error) {
	for {
		s.mu.Lock()
		if s.closed || s.buffer.Len() < maxBufferSize {
			break
		}
		s.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	defer s.mu.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}

	n, err := s.buffer.Write(data)
	if err != nil {
		return n, err
	}
	if s.player != nil && !s.player.IsPlaying() && !s.paused {
		s.player.Play()
	}
	return n, nil
}

func (s *OtoSink) SetVolume(v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.volume = v
}

func (s *OtoSink) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	if s.player != nil && s.player.IsPlaying() {
		s.player.Pause()
	}
}

func (s *OtoSink) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.cond.Broadcast()
	if s.player != nil && !s.player.IsPlaying() {
		s.player.Play()
	}
}

func (s *OtoSink) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	if s.player != nil {
		s.player.Pause()
	}
	s.buffer.Reset()
}

func (s *OtoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
	if s.player != nil {
		return s.player.Close()
	}
	return nil
}

func (s *OtoSink) SampleRate() int { return s.sampleRate }
func (s *OtoSink) Channels() int   { return s.channels }

var _ io.Reader = (*OtoSink)(nil)
