package decode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/jcrane/loopd/internal/pcm"
)

// Transcoder shells out to ffmpeg to convert a compressed source file to a
// temporary WAV file, which is then ingested through the same in-memory
// path as a native WAV. It exists because this system requires the whole
// file resident in memory before playback or analysis can begin, so
// streaming ffmpeg's stdout directly into a ring buffer (as a live player
// would) is not an option here.
type Transcoder struct {
	ffmpegPath string
}

// NewTranscoder locates ffmpeg in PATH.
func NewTranscoder() (*Transcoder, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg not found in PATH: %v", ErrFormat, err)
	}
	return &Transcoder{ffmpegPath: path}, nil
}

// LoadCompressed transcodes path to a temp WAV file and loads it into a
// pcm.Track. The temp file is removed before returning.
func (t *Transcoder) LoadCompressed(ctx context.Context, path string) (*pcm.Track, error) {
	tmp, err := os.CreateTemp("", "loopd-transcode-*.wav")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFile, err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	args := []string{"-y", "-i", path, "-f", "wav", "-acodec", "pcm_s16le", tmpPath}
	cmd := exec.CommandContext(ctx, t.ffmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg transcode failed: %v (%s)", ErrDecode, err, truncate(string(out), 500))
	}

	return Load(tmpPath)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsCompressed reports whether path's extension names a format this package
// cannot decode natively and must transcode first.
func IsCompressed(path string) bool {
	switch filepath.Ext(path) {
	case ".wav", ".aif", ".aiff", ".WAV", ".AIF", ".AIFF":
		return false
	default:
		return true
	}
}
