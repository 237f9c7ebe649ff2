package config

import "testing"

func TestLoadWithoutFileReturnsDefaults(t *testing.T) {
	t.Setenv("GIT_CACHE_ROOT", "")
	t.Setenv("GIT_CACHE_CHECKOUT_ROOT", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DefaultStrategy != "full" {
		t.Errorf("DefaultStrategy = %q, want full", cfg.DefaultStrategy)
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("GIT_CACHE_ROOT", "/tmp/custom-cache-root")
	t.Setenv("GIT_CACHE_PREFER_SPEED", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.CacheRoot != "/tmp/custom-cache-root" {
		t.Errorf("CacheRoot = %q, want override applied", cfg.CacheRoot)
	}
	if cfg.Detector.PreferSpeed {
		t.Error("PreferSpeed = true, want env override to false")
	}
}

func TestParseYAMLFileRejectsUnknownKey(t *testing.T) {
	_, err := ParseYAMLFile([]byte("cache_root: /x\nbogus_key: 1\n"))
	if err == nil {
		t.Fatal("expected error for unexpected top-level key")
	}
}

func TestParseYAMLFileRejectsUnknownDetectorKey(t *testing.T) {
	_, err := ParseYAMLFile([]byte("detector:\n  bogus: true\n"))
	if err == nil {
		t.Fatal("expected error for unexpected detector key")
	}
}

func TestParseYAMLFileAcceptsKnownKeys(t *testing.T) {
	_, err := ParseYAMLFile([]byte("cache_root: /x\ndetector:\n  prefer_speed: true\n"))
	if err != nil {
		t.Errorf("ParseYAMLFile() error = %v", err)
	}
}
