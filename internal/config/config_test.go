package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagerLoadWritesDefaultsOnFirstRun(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	m := NewManager(tmpDir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	cfgFile := filepath.Join(tmpDir, "config.json")
	if _, err := os.Stat(cfgFile); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	cfg := m.Get()
	if cfg.Audio.SampleRate != 44100 {
		t.Errorf("Expected default sample rate 44100, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Audio.DefaultVolume != 1.0 {
		t.Errorf("Expected default volume 1.0, got %f", cfg.Audio.DefaultVolume)
	}
	if !cfg.Analysis.AutoAnalyze {
		t.Error("Expected AutoAnalyze true by default")
	}
}

func TestManagerLoadSaveRoundtrip(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "config_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	m := NewManager(tmpDir)
	if err := m.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	updated := m.Get()
	updated.Audio.SampleRate = 48000
	updated.Loop.DefaultMaxIterations = 4
	updated.Analysis.AutoAnalyze = false
	if err := m.Update(updated); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	m2 := NewManager(tmpDir)
	if err := m2.Load(); err != nil {
		t.Fatalf("Second Load failed: %v", err)
	}

	cfg := m2.Get()
	if cfg.Audio.SampleRate != 48000 {
		t.Errorf("Expected sample rate 48000, got %d", cfg.Audio.SampleRate)
	}
	if cfg.Loop.DefaultMaxIterations != 4 {
		t.Errorf("Expected defaultMaxIterations 4, got %d", cfg.Loop.DefaultMaxIterations)
	}
	if cfg.Analysis.AutoAnalyze {
		t.Error("Expected AutoAnalyze false after update")
	}
}

func TestManagerGetPath(t *testing.T) {
	m := NewManager("/tmp/loopd-test-dir")
	want := filepath.Join("/tmp/loopd-test-dir", "config.json")
	if m.GetPath() != want {
		t.Errorf("Expected path %s, got %s", want, m.GetPath())
	}
}
