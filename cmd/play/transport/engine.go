// Package transport plays a set of time-aligned stems as one timeline.
//
// The Engine is a small state machine (stopped -> playing <-> paused ->
// stopped) driving a mixgraph.Graph. Position is never read back from the
// audio device; it is derived from a Clock anchor and a paused offset, so
// every stem shares the same virtual clock across pause, resume and seek.
package transport

import (
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/gigurra/stemdeck/cmd/play/mixgraph"
	"github.com/gopxl/beep/v2"
	"github.com/samber/lo"
)

// DefaultCompletionTolerance absorbs scheduling jitter between the audio
// device finishing the longest stem and the clock reaching the end.
const DefaultCompletionTolerance = 0.1

// Graph is the part of mixgraph.Graph the engine drives.
type Graph interface {
	AcquireDevice() (*mixgraph.Analyser, error)
	NewGenerator(name string, buf *beep.Buffer, offsetSeconds float64, onEnded func()) (*mixgraph.Generator, error)
	Start(gens []*mixgraph.Generator, isMuted func(name string) bool)
	SetMute(name string, muted bool)
	SetMasterVolume(v float64) float64
	TeardownGeneration()
}

// Options configures an Engine. Zero fields take defaults.
type Options struct {
	Clock               Clock
	CompletionTolerance float64
	// AfterFunc schedules deferred completion checks. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func())
}

// Engine is the multi-stem transport. All methods are safe to call from any
// goroutine; they are serialized internally because completion events arrive
// from the audio goroutine.
type Engine struct {
	mu        sync.Mutex
	clock     Clock
	graph     Graph
	tolerance float64
	afterFunc func(d time.Duration, f func())

	stems    []Stem
	duration float64
	longest  string
	state    State
	analyser *mixgraph.Analyser

	// session identifies the current generation. Completion callbacks carry
	// the value they were created with and are ignored once it moves on.
	session uint64

	listeners []func(Snapshot)
}

// New creates a stopped engine driving graph.
func New(graph Graph, opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = NewSystemClock()
	}
	if opts.CompletionTolerance <= 0 {
		opts.CompletionTolerance = DefaultCompletionTolerance
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) { time.AfterFunc(d, f) }
	}
	return &Engine{
		clock:     opts.Clock,
		graph:     graph,
		tolerance: opts.CompletionTolerance,
		afterFunc: opts.AfterFunc,
		state: State{
			Status:       StatusStopped,
			MasterVolume: 1,
			Muted:        make(map[string]bool),
		},
	}
}

// OnChange registers fn to receive a snapshot after every state transition,
// including ones the engine makes on its own when playback finishes. fn is
// called without the engine lock held.
func (e *Engine) OnChange(fn func(Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Load replaces the stem set and starts playing it from the beginning.
func (e *Engine) Load(stems []Stem) error {
	if err := validateStems(stems); err != nil {
		return &EngineStateError{Op: "load", Err: err}
	}

	e.mu.Lock()
	analyser, err := e.graph.AcquireDevice()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("transport load: %w", err)
	}

	longest := lo.MaxBy(stems, func(a, b Stem) bool { return a.Duration() > b.Duration() })
	gens, err := e.buildGeneration(stems, longest.Name, 0)
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("transport load: %w", err)
	}

	e.graph.TeardownGeneration()
	e.analyser = analyser
	e.stems = slices.Clone(stems)
	e.duration = longest.Duration()
	e.longest = longest.Name
	for name := range e.state.Muted {
		if !e.hasStemLocked(name) {
			delete(e.state.Muted, name)
		}
	}
	e.startLocked(gens, 0)

	slog.Debug("stems loaded",
		"stems", len(stems),
		"duration", e.duration,
		"longest", e.longest)
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
	return nil
}

// TogglePlayPause pauses a playing session or resumes a paused one. A paused
// session sitting at the end restarts from the beginning. Without stems it
// does nothing.
func (e *Engine) TogglePlayPause() error {
	e.mu.Lock()
	if len(e.stems) == 0 {
		e.mu.Unlock()
		return nil
	}

	if e.state.Status == StatusPlaying {
		pos := e.positionLocked()
		e.teardownLocked()
		e.state.PausedOffset = pos
		e.state.Status = StatusPaused
		slog.Debug("transport paused", "position", pos)
	} else {
		if e.state.PausedOffset >= e.duration {
			e.state.PausedOffset = 0
		}
		gens, err := e.buildGeneration(e.stems, e.longest, e.state.PausedOffset)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("transport resume: %w", err)
		}
		e.startLocked(gens, e.state.PausedOffset)
		slog.Debug("transport resumed", "position", e.state.PausedOffset)
	}

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
	return nil
}

// Seek moves the transport to target seconds, clamped to the session. A
// playing session restarts every stem at the new offset; otherwise only the
// offset changes. Without stems it does nothing.
func (e *Engine) Seek(target float64) error {
	e.mu.Lock()
	if len(e.stems) == 0 {
		e.mu.Unlock()
		return nil
	}

	target = e.clampLocked(target)
	if e.state.Status == StatusPlaying {
		gens, err := e.buildGeneration(e.stems, e.longest, target)
		if err != nil {
			e.mu.Unlock()
			return fmt.Errorf("transport seek: %w", err)
		}
		e.teardownLocked()
		e.startLocked(gens, target)
	} else {
		e.state.PausedOffset = target
	}
	slog.Debug("transport seek", "position", target, "status", e.state.Status)

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
	return nil
}

// SetStemMuted mutes or unmutes one stem without touching the clock.
// Unknown names are ignored.
func (e *Engine) SetStemMuted(name string, muted bool) {
	e.mu.Lock()
	if !e.hasStemLocked(name) {
		e.mu.Unlock()
		return
	}
	if muted {
		e.state.Muted[name] = true
	} else {
		delete(e.state.Muted, name)
	}
	e.graph.SetMute(name, muted)

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// ToggleStemMuted flips a stem's mute and returns the new value.
func (e *Engine) ToggleStemMuted(name string) bool {
	muted := !e.IsMuted(name)
	e.SetStemMuted(name, muted)
	return e.IsMuted(name)
}

// SetMasterVolume clamps v to [0,1], applies it and returns the applied value.
func (e *Engine) SetMasterVolume(v float64) float64 {
	e.mu.Lock()
	applied := e.graph.SetMasterVolume(v)
	e.state.MasterVolume = applied
	snap := e.snapshotLocked()
	e.mu.Unlock()

	e.notify(snap)
	return applied
}

// Stop silences everything, forgets the stems and rewinds.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.teardownLocked()
	e.stems = nil
	e.duration = 0
	e.longest = ""
	e.state.PausedOffset = 0
	e.state.Status = StatusStopped
	clear(e.state.Muted)
	slog.Debug("transport stopped")

	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// CurrentPosition returns the transport position in seconds. Cheap enough to
// poll every frame.
func (e *Engine) CurrentPosition() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clampLocked(e.positionLocked())
}

// SessionDuration returns the longest loaded stem's duration, 0 when empty.
func (e *Engine) SessionDuration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

// Status returns the playback status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Status
}

// MasterVolume returns the applied master volume.
func (e *Engine) MasterVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.MasterVolume
}

// IsMuted reports whether name is muted.
func (e *Engine) IsMuted(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Muted[name]
}

// Stems returns the loaded stem names in load order.
func (e *Engine) Stems() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return lo.Map(e.stems, func(s Stem, _ int) string { return s.Name })
}

// Analyser returns the spectral tap, or nil before the first load.
func (e *Engine) Analyser() *mixgraph.Analyser {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.analyser
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// buildGeneration prepares one generator per stem at offset. Only the longest
// stem reports completion; the callback is bound to the session the next
// startLocked will open. Nothing is attached, so a failure leaves the engine
// untouched.
func (e *Engine) buildGeneration(stems []Stem, longest string, offset float64) ([]*mixgraph.Generator, error) {
	next := e.session + 1
	gens := make([]*mixgraph.Generator, 0, len(stems))
	for _, s := range stems {
		var onEnded func()
		if s.Name == longest {
			onEnded = func() { e.handleEnded(next) }
		}
		gen, err := e.graph.NewGenerator(s.Name, s.Buffer, offset, onEnded)
		if err != nil {
			return nil, fmt.Errorf("generator for stem %q: %w", s.Name, err)
		}
		gens = append(gens, gen)
	}
	return gens, nil
}

// startLocked attaches a prepared generation and anchors the clock.
func (e *Engine) startLocked(gens []*mixgraph.Generator, offset float64) {
	e.session++
	e.graph.Start(gens, func(name string) bool { return e.state.Muted[name] })
	e.state.PausedOffset = offset
	e.state.SessionStart = e.clock.Now()
	e.state.Status = StatusPlaying
}

// teardownLocked stops the current generation. Its completion callback may
// still be in flight; it is rejected because the status is no longer playing
// or because startLocked has moved the session on.
func (e *Engine) teardownLocked() {
	e.graph.TeardownGeneration()
}

// handleEnded runs when the longest stem's generator drains.
func (e *Engine) handleEnded(session uint64) {
	e.mu.Lock()
	if session != e.session || e.state.Status != StatusPlaying {
		e.mu.Unlock()
		slog.Debug("ignoring stale completion", "session", session)
		return
	}

	// The device pulls audio ahead of the clock. If the clock has not caught
	// up yet, look again once it should have.
	if remaining := e.duration - e.positionLocked(); remaining > e.tolerance {
		e.mu.Unlock()
		wait := time.Duration(remaining * float64(time.Second))
		slog.Debug("completion ahead of clock, deferring", "remaining", wait)
		e.afterFunc(wait, func() { e.finish(session) })
		return
	}

	e.finishLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

func (e *Engine) finish(session uint64) {
	e.mu.Lock()
	if session != e.session || e.state.Status != StatusPlaying {
		e.mu.Unlock()
		return
	}
	e.finishLocked()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.notify(snap)
}

// finishLocked parks a finished session at the start, paused.
func (e *Engine) finishLocked() {
	e.teardownLocked()
	e.state.PausedOffset = 0
	e.state.Status = StatusPaused
	slog.Debug("playback finished", "duration", e.duration)
}

func (e *Engine) positionLocked() float64 {
	return PositionAt(e.clock.Now(), e.state)
}

func (e *Engine) clampLocked(pos float64) float64 {
	if math.IsNaN(pos) || pos < 0 {
		return 0
	}
	return math.Min(pos, e.duration)
}

func (e *Engine) hasStemLocked(name string) bool {
	return slices.ContainsFunc(e.stems, func(s Stem) bool { return s.Name == name })
}

func (e *Engine) snapshotLocked() Snapshot {
	return Snapshot{
		Status:       e.state.Status,
		Position:     e.clampLocked(e.positionLocked()),
		Duration:     e.duration,
		MasterVolume: e.state.MasterVolume,
		Stems: lo.Map(e.stems, func(s Stem, _ int) StemInfo {
			return StemInfo{Name: s.Name, Duration: s.Duration(), Muted: e.state.Muted[s.Name]}
		}),
	}
}

func (e *Engine) notify(snap Snapshot) {
	e.mu.Lock()
	listeners := slices.Clone(e.listeners)
	e.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

func validateStems(stems []Stem) error {
	if len(stems) == 0 {
		return ErrNoStems
	}
	seen := make(map[string]bool, len(stems))
	for _, s := range stems {
		if seen[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStem, s.Name)
		}
		seen[s.Name] = true
		if s.Buffer == nil || s.Buffer.Len() == 0 {
			return fmt.Errorf("%w: %q", ErrEmptyStem, s.Name)
		}
	}
	return nil
}
