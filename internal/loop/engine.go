// Package loop implements the sample-accurate seamless loop playback
// engine: it schedules PCM segments from a pcm.Track to a Sink,
// enforcing loop boundaries with no resampling or crossfading, and
// tracks position via an anchor frame plus wall-clock elapsed time.
package loop

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/jcrane/loopd/internal/eventbus"
	"github.com/jcrane/loopd/internal/pcm"
)

// ErrNoTrack is returned by Play when no track has been loaded.
var ErrNoTrack = errors.New("loop: no track loaded")

// State is the playback macro-state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

// Sink is the output device the engine drains frames into. It accepts
// interleaved 16-bit PCM at its own sample rate and channel count.
type Sink interface {
	Write([]byte) (int, error)
	SampleRate() int
	Channels() int
	Pause()
	Resume()
	Stop()
}

// Snapshot is the observable playback state published to external readers.
type Snapshot struct {
	IsPlaying        bool
	CurrentTime      float64
	Duration         float64
	LoopStart        float64
	LoopEnd          float64
	LoopPolicyMax    uint32
	CurrentIteration uint32
}

// Engine owns all playback state exclusively and holds a shared read-only
// reference to the currently published Track.
type Engine struct {
	mu sync.RWMutex

	track *pcm.Track
	sink  Sink
	bus   *eventbus.Bus

	state State

	loopStart, loopEnd float64
	loopActive         bool
	maxIterations      uint32
	currentIteration   uint32

	anchorTime     float64 // seconds, the position at the moment scheduling began
	anchorWallTime time.Time
	frozenTime     float64 // currentTime snapshot while Paused or Stopped

	sessionID   uint64
	cancelFunc  context.CancelFunc
	sessionDone chan struct{}
}

// NewEngine constructs an Engine draining into sink and publishing command
// events onto bus (bus may be nil).
func NewEngine(sink Sink, bus *eventbus.Bus) *Engine {
	return &Engine{sink: sink, bus: bus, state: Stopped}
}

// Load publishes a new Track for playback, stopping any current session.
func (e *Engine) Load(t *pcm.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
	e.track = t
	e.loopStart = 0
	e.loopEnd = t.Duration()
	e.loopActive = false
	e.currentIteration = 0
	e.frozenTime = 0
}

// Play transitions Stopped|Paused -> Playing. It is a no-op if already
// Playing, and refuses to start without a loaded Track. Start
// position rule: loop-start wins when the loop is non-trivial
// (0 < loopStart < loopEnd), else playback resumes from currentTime.
func (e *Engine) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.track == nil {
		return ErrNoTrack
	}
	if e.state == Playing {
		return nil
	}

	e.stopSessionLocked()

	var startPos float64
	if e.loopActive && e.loopStart > 0 && e.loopStart < e.loopEnd {
		startPos = e.loopStart
	} else {
		startPos = math.Max(0, e.frozenTime)
	}
	e.scheduleLocked(startPos)
	return nil
}

// scheduleLocked starts a new playback session from startPos. Any prior
// session must already have been torn down via stopSessionLocked.
func (e *Engine) scheduleLocked(startPos float64) {
	if e.sink != nil {
		e.sink.Stop()
	}

	sampleRate := e.track.SampleRate()
	anchorFrame := frameIndex(startPos, sampleRate)
	endFrame := e.track.FrameCount()
	if e.loopActive && e.loopEnd > e.loopStart && startPos >= e.loopStart {
		endFrame = frameIndex(e.loopEnd, sampleRate)
	}

	e.state = Playing
	e.anchorTime = startPos
	e.anchorWallTime = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancelFunc = cancel
	done := make(chan struct{})
	e.sessionDone = done
	e.sessionID++
	session := e.sessionID

	track := e.track
	sink := e.sink

	go func() {
		defer close(done)
		e.runSession(ctx, session, track, sink, anchorFrame, endFrame)
	}()
}

// Pause transitions Playing -> Paused, freezing currentTime.
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != Playing {
		return
	}
	e.frozenTime = e.currentTimeLocked()
	e.state = Paused
	if e.sink != nil {
		e.sink.Pause()
	}
}

// Stop transitions Playing|Paused -> Stopped. Idempotent.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	e.stopSessionLocked()
	e.state = Stopped
	e.currentIteration = 0
	if e.loopActive {
		e.frozenTime = e.loopStart
	} else {
		e.frozenTime = 0
	}
	if e.sink != nil {
		e.sink.Stop()
	}
}

// stopSessionLocked cancels the active session goroutine and waits for it
// to exit. The sink is stopped before the wait: a session stalled in a
// Write against a full or paused buffer only unblocks once the sink's
// buffer is reset.
func (e *Engine) stopSessionLocked() {
	if e.cancelFunc != nil {
		e.cancelFunc()
		e.cancelFunc = nil
	}
	if e.sink != nil {
		e.sink.Stop()
	}
	done := e.sessionDone
	e.sessionDone = nil
	e.mu.Unlock()
	if done != nil {
		<-done
	}
	e.mu.Lock()
}

// Seek clamps t to [0, duration], stops the current scheduled segment,
// and reschedules from the new frame. The macro-state is
// preserved: a playing engine keeps playing from t, a paused or stopped
// one stays where it is with currentTime moved to t.
func (e *Engine) Seek(t float64) {
	e.mu.Lock()
	duration := e.durationLocked()
	t = clamp(t, 0, duration)
	wasPlaying := e.state == Playing
	e.stopSessionLocked()
	e.frozenTime = t
	if wasPlaying && e.track != nil {
		e.scheduleLocked(t)
	}
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Kind: eventbus.SeekToTime, Seconds: t})
	}
}

// SetLoop clamps (s, e) to [0, duration] with s <= e.
// If not Playing and the resulting loop is non-empty (s < e), currentTime
// moves to s. If Playing, the running segment
// finishes and the new boundaries take effect at the next wrap.
func (e *Engine) SetLoop(s, end float64) {
	e.mu.Lock()
	duration := e.durationLocked()
	s = clamp(s, 0, duration)
	end = clamp(end, 0, duration)
	if s > end {
		s, end = end, s
	}
	e.loopStart = s
	e.loopEnd = end
	e.loopActive = end > s
	if e.state != Playing && e.loopActive {
		e.frozenTime = s
	}
	e.mu.Unlock()

	if e.bus != nil {
		e.bus.Publish(eventbus.Event{Kind: eventbus.LoopPointsChanged, LoopStart: s, LoopEnd: end})
	}
}

// SetLoopPolicy sets the maximum iteration count; 0 means infinite.
func (e *Engine) SetLoopPolicy(maxIterations uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxIterations = maxIterations
}

// State returns a point-in-time snapshot of observable playback state.
func (e *Engine) State() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Snapshot{
		IsPlaying:        e.state == Playing,
		CurrentTime:      e.currentTimeLocked(),
		Duration:         e.durationLocked(),
		LoopStart:        e.loopStart,
		LoopEnd:          e.loopEnd,
		LoopPolicyMax:    e.maxIterations,
		CurrentIteration: e.currentIteration,
	}
}

func (e *Engine) durationLocked() float64 {
	if e.track == nil {
		return 0
	}
	return e.track.Duration()
}

// currentTimeLocked derives currentTime from the anchor position plus
// wall-clock elapsed, wrapped into the loop span once it passes loopEnd.
// Callers must hold at least a read lock.
func (e *Engine) currentTimeLocked() float64 {
	if e.state != Playing {
		return e.frozenTime
	}
	elapsed := time.Since(e.anchorWallTime).Seconds()
	t := e.anchorTime + elapsed
	if e.loopActive && e.loopEnd > e.loopStart && t > e.loopEnd {
		// Wrap elapsed time into the loop span. Positions before loopStart
		// (playing into the loop from an earlier seek) are reported as-is.
		span := e.loopEnd - e.loopStart
		t = e.loopStart + math.Mod(t-e.loopStart, span)
	}
	if d := e.durationLocked(); t > d {
		t = d
	}
	return t
}

func frameIndex(seconds float64, sampleRate float64) int {
	f := int(math.Round(seconds * sampleRate))
	if f < 0 {
		f = 0
	}
	return f
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
