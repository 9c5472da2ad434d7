package loop

import (
	"testing"
	"time"

	"github.com/jcrane/loopd/internal/pcm"
)

// fakeSink drains writes at real-time speed so macro-state assertions see
// the same timing a hardware sink would, without touching a device.
type fakeSink struct {
	sampleRate int
	channels   int
	paused     bool
}

func newFakeSink(sampleRate, channels int) *fakeSink {
	return &fakeSink{sampleRate: sampleRate, channels: channels}
}

func (f *fakeSink) Write(p []byte) (int, error) {
	frames := len(p) / (2 * f.channels)
	time.Sleep(time.Duration(float64(frames) / float64(f.sampleRate) * float64(time.Second)))
	return len(p), nil
}
func (f *fakeSink) SampleRate() int { return f.sampleRate }
func (f *fakeSink) Channels() int   { return f.channels }
func (f *fakeSink) Pause()          { f.paused = true }
func (f *fakeSink) Resume()         { f.paused = false }
func (f *fakeSink) Stop()           {}

func sineTrack(t *testing.T, seconds, sampleRate float64) *pcm.Track {
	n := int(seconds * sampleRate)
	ch := make([]float32, n)
	track, err := pcm.NewTrack(sampleRate, [][]float32{ch})
	if err != nil {
		t.Fatal(err)
	}
	return track
}

func TestPlayRefusesWithoutTrack(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	if err := e.Play(); err != ErrNoTrack {
		t.Fatalf("Play() without track = %v, want ErrNoTrack", err)
	}
}

func TestSetLoopClampLaw(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 2.0, 44100))

	cases := []struct{ s, end float64 }{
		{-1, 5}, {0.5, 0.2}, {10, 20}, {-5, -1}, {0, 2},
	}
	for _, c := range cases {
		e.SetLoop(c.s, c.end)
		snap := e.State()
		if snap.LoopStart > snap.LoopEnd {
			t.Errorf("SetLoop(%v,%v): loopStart %v > loopEnd %v", c.s, c.end, snap.LoopStart, snap.LoopEnd)
		}
		if snap.LoopStart < 0 || snap.LoopStart > snap.Duration || snap.LoopEnd < 0 || snap.LoopEnd > snap.Duration {
			t.Errorf("SetLoop(%v,%v): bounds out of [0,duration]: %+v", c.s, c.end, snap)
		}
	}
}

func TestSeekClampLaw(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 2.0, 44100))

	for _, t64 := range []float64{-5, 0, 1, 2, 100} {
		e.Seek(t64)
		snap := e.State()
		if snap.CurrentTime < 0 || snap.CurrentTime > snap.Duration {
			t.Errorf("Seek(%v): currentTime %v out of [0,%v]", t64, snap.CurrentTime, snap.Duration)
		}
	}
}

func TestStopIdempotent(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 1.0, 44100))
	e.Stop()
	e.Stop()

	snap := e.State()
	if snap.IsPlaying {
		t.Fatal("expected Stopped after double stop")
	}
	if snap.CurrentIteration != 0 {
		t.Errorf("CurrentIteration = %d, want 0", snap.CurrentIteration)
	}
}

func TestPlayPauseStopStateMachine(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 5.0, 44100))

	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	if !e.State().IsPlaying {
		t.Fatal("expected Playing after Play()")
	}

	e.Pause()
	if e.State().IsPlaying {
		t.Fatal("expected not Playing after Pause()")
	}

	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	if !e.State().IsPlaying {
		t.Fatal("expected Playing after resuming Play()")
	}

	e.Stop()
	if e.State().IsPlaying {
		t.Fatal("expected Stopped after Stop()")
	}
}

func TestIterationAccountingBoundedPolicy(t *testing.T) {
	sampleRate := 44100.0
	e := NewEngine(newFakeSink(int(sampleRate), 2), nil)
	e.Load(sineTrack(t, 1.0, sampleRate))
	e.SetLoop(0.0, 0.02) // very short loop so several wraps happen quickly
	e.SetLoopPolicy(3)

	if err := e.Play(); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if !e.State().IsPlaying {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap := e.State()
	if snap.IsPlaying {
		t.Fatal("expected playback to stop after reaching loopPolicyMax")
	}
	if snap.CurrentIteration != 3 {
		t.Errorf("CurrentIteration = %d, want 3", snap.CurrentIteration)
	}
	if snap.CurrentTime != snap.LoopStart {
		t.Errorf("CurrentTime = %v, want loopStart %v", snap.CurrentTime, snap.LoopStart)
	}
}

func TestPlayStartsAtLoopStartOnlyWhenNonTrivial(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 2.0, 44100))

	// Loop starting at 0 is trivial: playback resumes from currentTime.
	e.SetLoop(0, 1.0)
	e.Seek(0.3)
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	if got := e.State().CurrentTime; got < 0.3 || got > 0.4 {
		t.Errorf("Play() with loopStart=0: CurrentTime = %v, want ~0.3", got)
	}
	e.Stop()

	// Non-trivial loop: loop-start wins.
	e.SetLoop(0.5, 1.5)
	e.Seek(0.3)
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	if got := e.State().CurrentTime; got < 0.5 || got > 0.6 {
		t.Errorf("Play() with loop [0.5,1.5]: CurrentTime = %v, want ~0.5", got)
	}
	e.Stop()
}

func TestSeekWhilePlayingKeepsPlayingAndWraps(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 2.0, 44100))
	e.SetLoop(0.5, 1.5)
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}

	e.Seek(1.2)
	snap := e.State()
	if !snap.IsPlaying {
		t.Fatal("expected still Playing after Seek while Playing")
	}
	if snap.CurrentTime < 1.2 || snap.CurrentTime > 1.35 {
		t.Errorf("CurrentTime after Seek(1.2) = %v, want ~1.2", snap.CurrentTime)
	}

	// 0.4s later the position has passed loopEnd 1.5 and wrapped to ~0.6.
	time.Sleep(400 * time.Millisecond)
	snap = e.State()
	if snap.CurrentTime < 0.5 || snap.CurrentTime > 0.8 {
		t.Errorf("CurrentTime after wrap = %v, want within [0.5, 0.8]", snap.CurrentTime)
	}
	e.Stop()
}

func TestSeekWhilePausedStaysPaused(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 2.0, 44100))
	if err := e.Play(); err != nil {
		t.Fatal(err)
	}
	e.Pause()
	e.Seek(1.0)

	snap := e.State()
	if snap.IsPlaying {
		t.Fatal("expected still paused after Seek while Paused")
	}
	if snap.CurrentTime != 1.0 {
		t.Errorf("CurrentTime = %v, want 1.0", snap.CurrentTime)
	}
	e.Stop()
}

func TestCurrentTimeLockedWraps(t *testing.T) {
	e := NewEngine(newFakeSink(44100, 2), nil)
	e.Load(sineTrack(t, 10.0, 44100))
	e.mu.Lock()
	e.state = Playing
	e.loopActive = true
	e.loopStart = 1.0
	e.loopEnd = 2.0
	e.anchorTime = 1.0
	e.anchorWallTime = time.Now().Add(-2500 * time.Millisecond)
	got := e.currentTimeLocked()
	e.mu.Unlock()

	if got < 1.0 || got > 2.0 {
		t.Errorf("currentTimeLocked() = %v, want within [1.0, 2.0]", got)
	}
}
