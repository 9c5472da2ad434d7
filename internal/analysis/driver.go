package analysis

import (
	"context"
	"errors"
	"sync"

	"github.com/jcrane/loopd/internal/pcm"
)

// OnSnapshot is invoked once a full analysis run completes successfully.
type OnSnapshot func(Snapshot)

// OnError is invoked when an analysis run fails for a reason other than
// being superseded by a newer run.
type OnError func(error)

// Driver runs the full analysis pipeline (features, similarity matrix,
// sections, candidates, fade guard) over a single track on a
// control-domain goroutine, cancelling any in-flight run before starting
// a new one. Partial results from a cancelled or failed run are
// discarded; Snapshot is only ever published whole.
type Driver struct {
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	running    bool
	progress   float64
	last       Snapshot
	hasLast    bool
	onSnapshot OnSnapshot
	onError    OnError
}

func NewDriver(onSnapshot OnSnapshot, onError OnError) *Driver {
	return &Driver{onSnapshot: onSnapshot, onError: onError}
}

// Analyze starts a new analysis run, cancelling any run already in flight.
func (d *Driver) Analyze(track *pcm.Track) {
	d.mu.Lock()
	if d.cancel != nil {
		d.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel
	d.generation++
	gen := d.generation
	d.running = true
	d.progress = 0
	d.mu.Unlock()

	go d.run(ctx, gen, track)
}

// Cancel aborts any in-flight analysis without starting a new one.
func (d *Driver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.running = false
}

// Last returns the most recently published Snapshot, if any.
func (d *Driver) Last() (Snapshot, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last, d.hasLast
}

// IsRunning reports whether an analysis is currently in flight.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Progress returns the current run's completion fraction in [0, 1]. It
// stays at 1 once a run publishes a Snapshot and resets to 0 when the
// next Analyze call starts.
func (d *Driver) Progress() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.progress
}

func (d *Driver) setProgress(gen uint64, p float64) {
	d.mu.Lock()
	if d.generation == gen {
		d.progress = p
	}
	d.mu.Unlock()
}

func (d *Driver) run(ctx context.Context, gen uint64, track *pcm.Track) {
	defer func() {
		d.mu.Lock()
		if d.generation == gen {
			d.running = false
		}
		d.mu.Unlock()
	}()

	if track == nil || track.FrameCount() == 0 {
		return
	}
	mono := track.Channel(0)
	sampleRate := track.SampleRate()
	duration := track.Duration()

	extractor := NewFeatureExtractor(sampleRate)
	feats, err := extractor.Extract(ctx, mono)
	if d.stale(gen) {
		return
	}
	if err != nil {
		d.reportError(err)
		return
	}
	d.setProgress(gen, 0.2)

	matrix, err := BuildSimilarityMatrix(ctx, feats)
	if d.stale(gen) {
		return
	}
	if err != nil {
		d.reportError(err)
		return
	}
	d.setProgress(gen, 0.4)

	sections := DetectSections(feats, duration)
	if d.stale(gen) {
		return
	}
	d.setProgress(gen, 0.6)

	candidates, err := FindCandidates(ctx, mono, sampleRate, feats, sections, duration)
	if d.stale(gen) {
		return
	}
	if err != nil {
		d.reportError(err)
		return
	}
	d.setProgress(gen, 0.8)

	var suggestion LoopCandidate
	hasSuggestion := len(candidates) > 0
	if hasSuggestion {
		suggestion = candidates[0]
		suggestion.EndTime = ApplyFadeGuard(feats, duration, suggestion.EndTime)
	}
	if d.stale(gen) {
		return
	}

	snap := Snapshot{
		Sections:      sections,
		Candidates:    candidates,
		Suggestion:    suggestion,
		HasSuggestion: hasSuggestion,
		Matrix:        matrix,
	}

	d.mu.Lock()
	if d.generation != gen {
		d.mu.Unlock()
		return
	}
	d.last = snap
	d.hasLast = true
	d.progress = 1.0
	d.mu.Unlock()

	if d.onSnapshot != nil {
		d.onSnapshot(snap)
	}
}

func (d *Driver) stale(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation != gen
}

func (d *Driver) reportError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	if d.onError != nil {
		d.onError(err)
	}
}
