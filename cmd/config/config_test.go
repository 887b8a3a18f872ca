package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	appconfig "github.com/gigurra/stemdeck/cmd/common/config"
)

func TestRun_ShowDefaults(t *testing.T) {
	var out bytes.Buffer
	if err := run(&Params{}, t.TempDir(), &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	s := out.String()
	if !strings.HasPrefix(s, "# defaults") {
		t.Errorf("expected defaults header, got:\n%s", s)
	}
	for _, want := range []string{"sample_rate: 44100", "separation_model: htdemucs_6s"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in:\n%s", want, s)
		}
	}
}

func TestRun_InitThenShow(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	if err := run(&Params{Init: true}, dir, &out); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	cfg, err := appconfig.LoadFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("expected default sample rate, got %d", cfg.SampleRate)
	}

	if err := run(&Params{Init: true}, dir, &out); err == nil {
		t.Errorf("expected second init to refuse overwriting")
	}
	if err := run(&Params{Init: true, Force: true}, dir, &out); err != nil {
		t.Errorf("expected forced init to succeed, got %v", err)
	}

	out.Reset()
	if err := run(&Params{}, dir, &out); err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.HasPrefix(out.String(), "# "+filepath.Join(dir, "config.json")) {
		t.Errorf("expected file header, got:\n%s", out.String())
	}
}

func TestRun_YAMLWins(t *testing.T) {
	dir := t.TempDir()
	if err := appconfig.SaveTo(dir, appconfig.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("sample_rate: 48000\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := run(&Params{}, dir, &out); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out.String(), "sample_rate: 48000") {
		t.Errorf("expected yaml config to win:\n%s", out.String())
	}
}

func TestRun_Path(t *testing.T) {
	var out bytes.Buffer
	if err := run(&Params{Path: true}, "/some/dir", &out); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out.String()) != "/some/dir" {
		t.Errorf("unexpected output %q", out.String())
	}
}

func TestRun_ForceInitResetsYAML(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(yamlPath, []byte("sample_rate: 48000\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := run(&Params{Init: true, Force: true}, dir, &out); err != nil {
		t.Fatalf("forced init failed: %v", err)
	}
	if !strings.Contains(out.String(), yamlPath) {
		t.Errorf("expected %s to be rewritten, got %q", yamlPath, out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, "config.json")); !os.IsNotExist(err) {
		t.Errorf("expected no config.json next to the yaml file, got %v", err)
	}

	cfg, err := appconfig.LoadFrom(dir)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.SampleRate != 44100 {
		t.Errorf("expected reset sample rate 44100, got %d", cfg.SampleRate)
	}
}
