// Package decode ingests audio files into fully resident pcm.Track buffers.
package decode

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/jcrane/loopd/internal/pcm"
)

var (
	ErrFile   = errors.New("decode: file error")
	ErrDecode = errors.New("decode: malformed audio data")
	ErrFormat = errors.New("decode: unsupported audio format")
	ErrEmpty  = errors.New("decode: file contains zero frames")
)

// Load ingests a WAV or AIFF file into memory as a pcm.Track. Compressed
// formats are not decoded here; load them with Transcoder.LoadCompressed.
func Load(path string) (*pcm.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFile, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return loadWAV(f)
	case ".aif", ".aiff":
		return loadAIFF(f)
	default:
		return nil, fmt.Errorf("%w: %s", ErrFormat, filepath.Ext(path))
	}
}

func loadWAV(f *os.File) (*pcm.Track, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid WAV file", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.SampleRate == 0 || buf.Format.NumChannels == 0 {
		return nil, fmt.Errorf("%w: missing WAV format chunk", ErrDecode)
	}

	channels := deinterleave(buf)
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, ErrEmpty
	}
	track, err := pcm.NewTrack(float64(buf.Format.SampleRate), channels)
	if err != nil {
		if errors.Is(err, pcm.ErrEmpty) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return track, nil
}

func loadAIFF(f *os.File) (*pcm.Track, error) {
	dec := aiff.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid AIFF file", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf.Format == nil || buf.Format.SampleRate == 0 || buf.Format.NumChannels == 0 {
		return nil, fmt.Errorf("%w: missing AIFF format chunk", ErrDecode)
	}

	channels := deinterleave(buf)
	if len(channels) == 0 || len(channels[0]) == 0 {
		return nil, ErrEmpty
	}
	track, err := pcm.NewTrack(float64(buf.Format.SampleRate), channels)
	if err != nil {
		if errors.Is(err, pcm.ErrEmpty) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return track, nil
}

// deinterleave splits a fully-read audio.IntBuffer into per-channel float32
// slices normalized to [-1, 1].
func deinterleave(buf *audio.IntBuffer) [][]float32 {
	numChans := buf.Format.NumChannels
	if numChans == 0 {
		return nil
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}
	scale := float32(int64(1) << uint(bitDepth-1))

	frameCount := len(buf.Data) / numChans
	channels := make([][]float32, numChans)
	for c := range channels {
		channels[c] = make([]float32, frameCount)
	}
	for i := 0; i < frameCount; i++ {
		for c := 0; c < numChans; c++ {
			channels[c][i] = float32(buf.Data[i*numChans+c]) / scale
		}
	}
	return channels
}
