// Package separation splits a mixed track into stems and resolves the
// locators of the results.
package separation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
)

var (
	ErrModelUnavailable   = errors.New("separation model unavailable")
	ErrNoStemsFound       = errors.New("no separated stems found")
	ErrUnsupportedLocator = errors.New("unsupported stem locator")
	ErrDuplicateStem      = errors.New("two files share a stem name")
)

// Request asks for one file to be separated with one model.
type Request struct {
	AudioPath string
	Model     string
}

// Result maps stem names to locators. A locator is a file path or a file://
// URL.
type Result struct {
	SessionID string
	Model     string
	Dir       string
	Stems     map[string]string
}

// Names returns the stem names sorted.
func (r Result) Names() []string {
	names := lo.Keys(r.Stems)
	slices.Sort(names)
	return names
}

// Service separates audio into stems.
type Service interface {
	Separate(ctx context.Context, req Request) (Result, error)
}

// SeparationError reports a failed separation.
type SeparationError struct {
	Model string
	Err   error
}

func (e *SeparationError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("separation failed: %v", e.Err)
	}
	return fmt.Sprintf("separation with %s failed: %v", e.Model, e.Err)
}

func (e *SeparationError) Unwrap() error {
	return e.Err
}

// Open reads the bytes behind a locator.
func Open(locator string) ([]byte, error) {
	path, err := LocatorPath(locator)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// LocatorPath converts a locator to a local file path.
func LocatorPath(locator string) (string, error) {
	if !strings.Contains(locator, "://") {
		return locator, nil
	}
	u, err := url.Parse(locator)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsupportedLocator, err)
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLocator, u.Scheme)
	}
	return filepath.FromSlash(u.Path), nil
}

// FileLocator returns the file:// URL for path.
func FileLocator(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
}

// collectStems lists the audio files in dir whose extensions pass keep. Two
// files naming the same stem, such as drums.wav and drums.flac, are an error.
func collectStems(dir string, keep func(path string) bool) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	stems := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if !keep(path) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if prev, ok := stems[name]; ok {
			return nil, fmt.Errorf("%w: %q from %s and %s", ErrDuplicateStem, name, prev, FileLocator(path))
		}
		stems[name] = FileLocator(path)
	}
	if len(stems) == 0 {
		return nil, ErrNoStemsFound
	}
	return stems, nil
}
