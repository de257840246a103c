package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultIsValid verifies the shipped defaults pass their own validation
func TestDefaultIsValid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Fatalf("Default config failed validation: %v", err)
	}

	for _, stage := range []string{"extraction", "appraisal", "report"} {
		if _, err := config.Stage(stage); err != nil {
			t.Errorf("Default config missing stage %q: %v", stage, err)
		}
	}
}

// TestLoadEmptyPathReturnsDefaults verifies Load("") is the defaults
func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	config, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if config.Loop.MaxIterations != 3 {
		t.Errorf("Expected default max_iterations 3, got %d", config.Loop.MaxIterations)
	}
}

// TestLoadOverlaysDefaults verifies a partial file overrides only what it names
func TestLoadOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scipress.yaml")
	content := `
db_path: /tmp/custom.db
loop:
  max_iterations: 5
  schema_floor: 0.5
  window: 3
retry:
  max_retries: 2
  initial_backoff: 500ms
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if config.DBPath != "/tmp/custom.db" {
		t.Errorf("Expected overridden db_path, got %s", config.DBPath)
	}
	if config.Loop.MaxIterations != 5 {
		t.Errorf("Expected max_iterations 5, got %d", config.Loop.MaxIterations)
	}
	// Stages not named in the file keep their defaults
	stage, err := config.Stage("extraction")
	if err != nil {
		t.Fatalf("Stage lookup failed: %v", err)
	}
	if stage.Thresholds.Minimums["accuracy"] != 0.85 {
		t.Errorf("Expected default accuracy minimum 0.85, got %v", stage.Thresholds.Minimums["accuracy"])
	}

	rc, err := config.RetryConfig()
	if err != nil {
		t.Fatalf("RetryConfig failed: %v", err)
	}
	if rc.MaxRetries != 2 {
		t.Errorf("Expected max_retries 2, got %d", rc.MaxRetries)
	}
	if rc.InitialBackoff != 500*time.Millisecond {
		t.Errorf("Expected initial backoff 500ms, got %v", rc.InitialBackoff)
	}
	// Unset durations keep defaults
	if rc.MaxBackoff != 30*time.Second {
		t.Errorf("Expected default max backoff 30s, got %v", rc.MaxBackoff)
	}
}

// TestLoadRejectsBadWeights verifies gate misconfiguration fails at load time
func TestLoadRejectsBadWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scipress.yaml")
	content := `
stages:
  extraction:
    thresholds:
      minimums:
        accuracy: 0.8
      weights:
        accuracy: 0.7
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for weights not summing to 1.0")
	}
}

// TestLoadRejectsBadDuration verifies malformed durations fail at load time
func TestLoadRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scipress.yaml")
	content := `
retry:
  initial_backoff: soon
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("Expected error for unparseable duration")
	}
}

// TestSaveDefaultRoundTrips verifies the written defaults load back cleanly
func TestSaveDefaultRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scipress.yaml")
	if err := SaveDefault(path); err != nil {
		t.Fatalf("SaveDefault failed: %v", err)
	}

	config, err := Load(path)
	if err != nil {
		t.Fatalf("Load of saved defaults failed: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Errorf("Saved defaults failed validation: %v", err)
	}
}
