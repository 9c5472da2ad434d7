package ipc

import (
	"errors"

	"github.com/jcrane/loopd/internal/decode"
	"github.com/jcrane/loopd/internal/pcm"
)

// classifyErr maps a load error to its user-visible error kind.
func classifyErr(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, decode.ErrFile):
		return "ErrFile"
	case errors.Is(err, decode.ErrFormat):
		return "ErrFormat"
	case errors.Is(err, decode.ErrEmpty), errors.Is(err, pcm.ErrEmpty):
		return "ErrEmpty"
	case errors.Is(err, decode.ErrDecode):
		return "ErrDecode"
	default:
		return "ErrInternal"
	}
}
