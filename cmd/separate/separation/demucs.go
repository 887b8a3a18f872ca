package separation

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gigurra/stemdeck/cmd/common"
	"github.com/google/uuid"
)

// DefaultModel splits into vocals, drums, bass, guitar, piano and other.
const DefaultModel = "htdemucs_6s"

// DemucsService runs Demucs locally, one output directory per request.
type DemucsService struct {
	Python    string        // interpreter with demucs installed, default "python3"
	OutputDir string        // root for session directories
	Timeout   time.Duration // per run, default 30 minutes
	Run       common.Runner // default common.RunCommand
}

// NewDemucs returns a DemucsService writing below outputDir.
func NewDemucs(python, outputDir string, timeout time.Duration) *DemucsService {
	return &DemucsService{Python: python, OutputDir: outputDir, Timeout: timeout}
}

// Separate runs `python -m demucs -n <model> -o <session dir> <file>` and
// collects <session dir>/<model>/<track>/*.wav.
func (d *DemucsService) Separate(ctx context.Context, req Request) (Result, error) {
	model := cmp.Or(req.Model, DefaultModel)
	fail := func(err error) (Result, error) {
		return Result{}, &SeparationError{Model: model, Err: err}
	}

	if _, err := os.Stat(req.AudioPath); err != nil {
		return fail(err)
	}

	sessionID := uuid.NewString()
	sessionDir := filepath.Join(d.OutputDir, sessionID)
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return fail(fmt.Errorf("create session dir: %w", err))
	}

	run := d.Run
	if run == nil {
		run = common.RunCommand
	}
	python := cmp.Or(d.Python, "python3")
	timeout := cmp.Or(d.Timeout, 30*time.Minute)

	slog.Info("separating", "file", req.AudioPath, "model", model, "session", sessionID)
	start := time.Now()
	if err := run(ctx, timeout, python, "-m", "demucs", "-n", model, "-o", sessionDir, req.AudioPath); err != nil {
		os.RemoveAll(sessionDir)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fail(fmt.Errorf("%w: %v", ctxErr, err))
		}
		if modelMissing(err) {
			return fail(fmt.Errorf("%w: %v", ErrModelUnavailable, err))
		}
		return fail(err)
	}

	dir, err := resultDir(filepath.Join(sessionDir, model), trackName(req.AudioPath))
	if err != nil {
		return fail(err)
	}
	stems, err := collectStems(dir, func(path string) bool {
		return strings.EqualFold(filepath.Ext(path), ".wav")
	})
	if err != nil {
		return fail(err)
	}

	slog.Info("separation done", "session", sessionID, "stems", len(stems), "took", time.Since(start).Round(time.Millisecond))
	return Result{SessionID: sessionID, Model: model, Dir: dir, Stems: stems}, nil
}

// resultDir finds the track directory under modelDir. Demucs may rewrite the
// track name, so any sub-directory will do when the expected one is missing.
func resultDir(modelDir, track string) (string, error) {
	expected := filepath.Join(modelDir, track)
	if info, err := os.Stat(expected); err == nil && info.IsDir() {
		return expected, nil
	}
	entries, err := os.ReadDir(modelDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoStemsFound
		}
		return "", err
	}
	for _, e := range entries {
		if e.IsDir() {
			return filepath.Join(modelDir, e.Name()), nil
		}
	}
	return "", ErrNoStemsFound
}

func trackName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func modelMissing(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"no module named demucs", "not found", "could not find", "unknown model"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
