package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mholt/archives"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		name, override string
		wantErr        bool
	}{
		{"stems.zip", "", false},
		{"stems.tar", "", false},
		{"stems.tar.gz", "", false},
		{"stems.TGZ", "", false},
		{"stems.tar.xz", "", false},
		{"stems.tar.zst", "", false},
		{"stems.rar", "", true},
		{"stems", "", true},
		{"stems", "zip", false},
		{"stems.zip", "7z", true},
	}
	for _, tt := range tests {
		_, err := Format(tt.name, tt.override)
		if (err != nil) != tt.wantErr {
			t.Errorf("Format(%q, %q) error = %v, want error %v", tt.name, tt.override, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("Format(%q, %q): expected ErrUnsupportedFormat, got %v", tt.name, tt.override, err)
		}
	}

	if f, _ := Format("a.tar.gz", ""); f == nil {
		t.Fatal("expected a format")
	} else if _, ok := f.(archives.CompressedArchive); !ok {
		t.Errorf("expected compressed tar, got %T", f)
	}
}

func TestIsBundle(t *testing.T) {
	for path, want := range map[string]bool{
		"song.zip":      true,
		"song.tar.gz":   true,
		"song.wav":      false,
		"dir/song.flac": false,
		"dir/stems.tar": true,
		"noextension":   false,
	} {
		if got := IsBundle(path); got != want {
			t.Errorf("IsBundle(%q) = %v, want %v", path, got, want)
		}
	}
}

func roundTrip(t *testing.T, ext string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(src, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{}
	for _, f := range []struct{ disk, name, content string }{
		{"a.wav", "drums.wav", "drums"},
		{"b.flac", "bass.flac", "bass"},
	} {
		path := filepath.Join(src, f.disk)
		if err := os.WriteFile(path, []byte(f.content), 0644); err != nil {
			t.Fatal(err)
		}
		files[path] = f.name
	}

	out := filepath.Join(dir, "stems."+ext)
	format, err := Format(out, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := Create(context.Background(), out, format, files); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	extracted, err := Extract(context.Background(), out, filepath.Join(dir, "x"))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	slices.Sort(extracted)
	want := []string{filepath.Join(dir, "x", "bass.flac"), filepath.Join(dir, "x", "drums.wav")}
	if !slices.Equal(extracted, want) {
		t.Fatalf("expected %v, got %v", want, extracted)
	}
	data, err := os.ReadFile(want[1])
	if err != nil || string(data) != "drums" {
		t.Errorf("unexpected content %q (%v)", data, err)
	}
}

func TestRoundTrip_Zip(t *testing.T)   { roundTrip(t, "zip") }
func TestRoundTrip_Tar(t *testing.T)   { roundTrip(t, "tar") }
func TestRoundTrip_TarGz(t *testing.T) { roundTrip(t, "tar.gz") }

func TestCreate_MissingFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "stems.zip")
	err := Create(context.Background(), out, archives.Zip{}, map[string]string{filepath.Join(dir, "gone.wav"): "gone.wav"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("expected no archive left behind")
	}
}

func TestExtract_NotAnArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stems.zip")
	if err := os.WriteFile(path, []byte("plain text"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Extract(context.Background(), path, t.TempDir()); err == nil {
		t.Error("expected an error")
	}
}
