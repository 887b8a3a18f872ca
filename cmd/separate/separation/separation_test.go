package separation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(path), 0644); err != nil {
		t.Fatal(err)
	}
}

// demucsOutput fakes a demucs run that writes stems under track.
func demucsOutput(t *testing.T, track string, stems ...string) func(context.Context, time.Duration, string, ...string) error {
	return func(ctx context.Context, timeout time.Duration, name string, args ...string) error {
		// python -m demucs -n <model> -o <dir> <file>
		if len(args) != 7 || args[0] != "-m" || args[1] != "demucs" {
			t.Errorf("unexpected args %v", args)
			return errors.New("bad args")
		}
		model, out := args[3], args[5]
		for _, s := range stems {
			touch(t, filepath.Join(out, model, track, s+".wav"))
		}
		return nil
	}
}

func inputFile(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	touch(t, path)
	return path
}

func TestDemucs_Separate(t *testing.T) {
	out := t.TempDir()
	svc := &DemucsService{OutputDir: out, Run: demucsOutput(t, "song", "vocals", "drums", "bass")}

	res, err := svc.Separate(context.Background(), Request{AudioPath: inputFile(t, "song.mp3")})
	if err != nil {
		t.Fatalf("Separate failed: %v", err)
	}
	if res.Model != DefaultModel {
		t.Errorf("expected default model, got %q", res.Model)
	}
	if res.SessionID == "" || !strings.HasPrefix(res.Dir, filepath.Join(out, res.SessionID)) {
		t.Errorf("expected results in a session dir, got %q (session %q)", res.Dir, res.SessionID)
	}
	if got := res.Names(); !slices.Equal(got, []string{"bass", "drums", "vocals"}) {
		t.Errorf("unexpected stems %v", got)
	}
	data, err := Open(res.Stems["vocals"])
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if !strings.HasSuffix(string(data), "vocals.wav") {
		t.Errorf("unexpected stem content %q", data)
	}
}

func TestDemucs_RenamedTrackDirectory(t *testing.T) {
	svc := &DemucsService{OutputDir: t.TempDir(), Run: demucsOutput(t, "my_song", "other")}
	res, err := svc.Separate(context.Background(), Request{AudioPath: inputFile(t, "my song.wav"), Model: "htdemucs"})
	if err != nil {
		t.Fatalf("Separate failed: %v", err)
	}
	if filepath.Base(res.Dir) != "my_song" {
		t.Errorf("expected fallback to the only track dir, got %q", res.Dir)
	}
}

func TestDemucs_NoOutput(t *testing.T) {
	svc := &DemucsService{OutputDir: t.TempDir(), Run: demucsOutput(t, "song")}
	_, err := svc.Separate(context.Background(), Request{AudioPath: inputFile(t, "song.wav")})
	if !errors.Is(err, ErrNoStemsFound) {
		t.Errorf("expected ErrNoStemsFound, got %v", err)
	}
}

func TestDemucs_ModelUnavailable(t *testing.T) {
	out := t.TempDir()
	svc := &DemucsService{OutputDir: out, Run: func(context.Context, time.Duration, string, ...string) error {
		return errors.New("python3: exit status 1\nFATAL: model nope not found")
	}}
	_, err := svc.Separate(context.Background(), Request{AudioPath: inputFile(t, "song.wav"), Model: "nope"})

	var sepErr *SeparationError
	if !errors.As(err, &sepErr) {
		t.Fatalf("expected SeparationError, got %v", err)
	}
	if sepErr.Model != "nope" {
		t.Errorf("expected model nope, got %q", sepErr.Model)
	}
	if !errors.Is(err, ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
	entries, _ := os.ReadDir(out)
	if len(entries) != 0 {
		t.Errorf("expected failed session dir removed")
	}
}

func TestDemucs_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	svc := &DemucsService{OutputDir: t.TempDir(), Run: func(ctx context.Context, _ time.Duration, _ string, _ ...string) error {
		<-ctx.Done()
		return errors.New("killed")
	}}
	_, err := svc.Separate(ctx, Request{AudioPath: inputFile(t, "song.wav")})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestDemucs_MissingInput(t *testing.T) {
	svc := &DemucsService{OutputDir: t.TempDir(), Run: demucsOutput(t, "x")}
	_, err := svc.Separate(context.Background(), Request{AudioPath: filepath.Join(t.TempDir(), "missing.wav")})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist, got %v", err)
	}
}

func TestDirService(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"vocals.wav", "drums.flac", "bass.mp3", "notes.txt"} {
		touch(t, filepath.Join(dir, name))
	}
	res, err := DirService{}.Separate(context.Background(), Request{AudioPath: dir})
	if err != nil {
		t.Fatalf("Separate failed: %v", err)
	}
	if got := res.Names(); !slices.Equal(got, []string{"bass", "drums", "vocals"}) {
		t.Errorf("unexpected stems %v", got)
	}
}

func TestDirService_Empty(t *testing.T) {
	_, err := DirService{}.Separate(context.Background(), Request{AudioPath: t.TempDir()})
	if !errors.Is(err, ErrNoStemsFound) {
		t.Errorf("expected ErrNoStemsFound, got %v", err)
	}
}

func TestDirService_DuplicateStemName(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"drums.wav", "drums.flac", "bass.wav"} {
		touch(t, filepath.Join(dir, name))
	}
	_, err := DirService{}.Separate(context.Background(), Request{AudioPath: dir})
	if !errors.Is(err, ErrDuplicateStem) {
		t.Fatalf("expected ErrDuplicateStem, got %v", err)
	}
	if !strings.Contains(err.Error(), "drums") {
		t.Errorf("expected error to name the stem, got %v", err)
	}
}

func TestLocatorPath(t *testing.T) {
	tests := []struct {
		in, want string
		err      bool
	}{
		{"/tmp/a.wav", "/tmp/a.wav", false},
		{"file:///tmp/b%20c.wav", "/tmp/b c.wav", false},
		{"http://example.com/a.wav", "", true},
	}
	for _, tt := range tests {
		got, err := LocatorPath(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("LocatorPath(%q) error = %v, want error %v", tt.in, err, tt.err)
			continue
		}
		if got != tt.want {
			t.Errorf("LocatorPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if _, err := Open("ftp://x/y"); !errors.Is(err, ErrUnsupportedLocator) {
		t.Errorf("expected ErrUnsupportedLocator, got %v", err)
	}
}
