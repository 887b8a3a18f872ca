package separation

import (
	"context"
	"os"

	"github.com/gigurra/stemdeck/cmd/common/audio/decode"
)

// DirService treats a directory of audio files as an already separated
// result. Every supported file becomes a stem named after the file.
type DirService struct{}

func (DirService) Separate(ctx context.Context, req Request) (Result, error) {
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return Result{}, &SeparationError{Err: err}
	}
	if !info.IsDir() {
		return Result{}, &SeparationError{Err: ErrNoStemsFound}
	}
	stems, err := collectStems(req.AudioPath, decode.Supported)
	if err != nil {
		return Result{}, &SeparationError{Err: err}
	}
	return Result{Dir: req.AudioPath, Stems: stems}, nil
}
