package loop

import (
	"context"
	"math"
	"time"

	"github.com/jcrane/loopd/internal/pcm"
)

// writeChunkFrames bounds how many frames are encoded and written to the
// sink per iteration, so cancellation (stop/seek) is observed promptly.
const writeChunkFrames = 2048

// runSession drives one playback session: write [start, end) to the sink,
// then apply the completion continuation: either reschedule the
// loop region (incrementing currentIteration) or transition to Stopped.
// It re-reads live loop state at each wrap so mid-playback edits via
// SetLoop take effect at the next wrap, not immediately.
func (e *Engine) runSession(ctx context.Context, session uint64, track *pcm.Track, sink Sink, start, end int) {
	cur := segment{start: start, end: end}
	for {
		if ctx.Err() != nil {
			return
		}
		if err := writeSegment(ctx, track, sink, cur.start, cur.end); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}

		e.mu.Lock()
		if e.sessionID != session || e.state != Playing {
			e.mu.Unlock()
			return
		}
		e.currentIteration++

		sampleRate := track.SampleRate()
		loopActive := e.loopActive && e.loopEnd > e.loopStart
		shouldContinue := loopActive && (e.maxIterations == 0 || e.currentIteration < e.maxIterations)

		if shouldContinue {
			loopStartFrame := frameIndex(e.loopStart, sampleRate)
			loopEndFrame := frameIndex(e.loopEnd, sampleRate)
			e.anchorTime = e.loopStart
			e.anchorWallTime = time.Now()
			cur = segment{start: loopStartFrame, end: loopEndFrame}
			e.mu.Unlock()
			continue
		}

		e.state = Stopped
		if e.loopActive {
			e.frozenTime = e.loopStart
		} else {
			e.frozenTime = track.Duration()
		}
		e.mu.Unlock()
		return
	}
}

type segment struct {
	start, end int
}

// writeSegment encodes track frames [start, end) to sink-native interleaved
// 16-bit PCM, in bounded chunks so ctx cancellation is checked often.
func writeSegment(ctx context.Context, track *pcm.Track, sink Sink, start, end int) error {
	if end <= start {
		return nil
	}
	channels := sink.Channels()
	buf := make([]byte, 0, writeChunkFrames*channels*2)

	for pos := start; pos < end; pos += writeChunkFrames {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		chunkEnd := pos + writeChunkFrames
		if chunkEnd > end {
			chunkEnd = end
		}
		buf = encodeFrames(track, pos, chunkEnd, channels, buf[:0])
		if _, err := sink.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// encodeFrames converts track frames [start, end) to interleaved 16-bit
// PCM at outChannels, mixing or duplicating channels as needed, appending
// to dst.
func encodeFrames(track *pcm.Track, start, end, outChannels int, dst []byte) []byte {
	trackChannels := track.Channels()
	for f := start; f < end; f++ {
		for c := 0; c < outChannels; c++ {
			src := c
			if trackChannels == 1 {
				src = 0
			} else if src >= trackChannels {
				src = trackChannels - 1
			}
			sample := track.Channel(src)[f]
			dst = append(dst, encodeSample16(sample)...)
		}
	}
	return dst
}

func encodeSample16(v float32) []byte {
	f := float64(v)
	if f > 1 {
		f = 1
	}
	if f < -1 {
		f = -1
	}
	s := int16(math.Round(f * 32767))
	return []byte{byte(s), byte(s >> 8)}
}
