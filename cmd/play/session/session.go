// Package session turns files and separation results into a loaded transport.
package session

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/gigurra/stemdeck/cmd/common/audio/decode"
	"github.com/gigurra/stemdeck/cmd/play/transport"
	"github.com/gigurra/stemdeck/cmd/separate/separation"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

// Engine is what a Loader commits decoded stems to.
type Engine interface {
	Load(stems []transport.Stem) error
}

// Source is one stem to decode: its display name and where its bytes live.
type Source struct {
	Name    string
	Locator string
}

// Loader decodes a whole stem set concurrently and commits it to the engine
// in one step. Only one load runs at a time.
type Loader struct {
	engine Engine
	busy   atomic.Bool
}

// NewLoader returns a Loader committing to engine.
func NewLoader(engine Engine) *Loader {
	return &Loader{engine: engine}
}

// FileSources names each path after its file name without extension.
func FileSources(paths []string) []Source {
	return lo.Map(paths, func(p string, _ int) Source {
		return Source{Name: decode.StemName(p), Locator: p}
	})
}

// ResultSources lists the stems of a separation result.
func ResultSources(res separation.Result) []Source {
	return lo.Map(res.Names(), func(name string, _ int) Source {
		return Source{Name: name, Locator: res.Stems[name]}
	})
}

// LoadFiles decodes paths and loads them.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) ([]transport.Stem, error) {
	return l.Load(ctx, FileSources(paths))
}

// LoadResult decodes a separation result and loads it.
func (l *Loader) LoadResult(ctx context.Context, res separation.Result) ([]transport.Stem, error) {
	return l.Load(ctx, ResultSources(res))
}

// Load decodes every source, then replaces the engine's stems. If any source
// fails nothing is committed and a playing session keeps playing. A Load
// while another is still decoding fails with transport.ErrBusy.
func (l *Loader) Load(ctx context.Context, sources []Source) ([]transport.Stem, error) {
	if !l.busy.CompareAndSwap(false, true) {
		return nil, &transport.EngineStateError{Op: "load", Err: transport.ErrBusy}
	}
	defer l.busy.Store(false)

	start := time.Now()
	stems, err := Decode(ctx, sources)
	if err != nil {
		return nil, err
	}
	if err := l.engine.Load(stems); err != nil {
		return nil, err
	}
	slog.Info("session loaded", "stems", len(stems), "took", time.Since(start).Round(time.Millisecond))
	return stems, nil
}

// Decode decodes sources concurrently without committing them anywhere.
// The result is sorted by stem name.
func Decode(ctx context.Context, sources []Source) ([]transport.Stem, error) {
	stems := make([]transport.Stem, len(sources))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, src := range sources {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			data, err := separation.Open(src.Locator)
			if err != nil {
				return &decode.DecodeError{Name: src.Name, Err: err}
			}
			fileName := src.Name
			if path, err := separation.LocatorPath(src.Locator); err == nil {
				fileName = filepath.Base(path)
			}
			buf, err := decode.Decode(fileName, data)
			if err != nil {
				return fmt.Errorf("stem %q: %w", src.Name, err)
			}
			slog.Debug("stem decoded", "stem", src.Name, "frames", buf.Len(), "rate", int(buf.Format().SampleRate))
			stems[i] = transport.Stem{Name: src.Name, Buffer: buf}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(stems, func(a, b transport.Stem) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return stems, nil
}
