package config

import (
	"os"
	"testing"
	"time"
)

// writeTempConfig creates a minimal configuration file required for LoadConfig
// and returns its path.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "cfg-*.yml")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close temp file: %v", err)
	}
	return f.Name()
}

const minimalYAML = `betflow:
  name: "TestApp"
  version: "1.0"
channels:
  frame_buffer: 1
  batch_buffer: 1
stream:
  enabled: true
  url: wss://feed.test/socket
poll:
  enabled: true
  url: https://api.test/matches
  interval: 5s
positions:
  enabled: true
  url: https://api.test/positions
  interval: 5s
storage:
  s3:
    enabled: false
`

func TestLoadConfig(t *testing.T) {
	path := writeTempConfig(t, minimalYAML)
	defer os.Remove(path)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Betflow.Name != "TestApp" {
		t.Errorf("unexpected name: %s", cfg.Betflow.Name)
	}
	if cfg.Stream.URL != "wss://feed.test/socket" {
		t.Errorf("unexpected stream url: %s", cfg.Stream.URL)
	}
	// Defaults survive unmarshal when the file omits them.
	if cfg.Stream.ReconnectDelay != 5*time.Second {
		t.Errorf("unexpected reconnect delay: %s", cfg.Stream.ReconnectDelay)
	}
	if cfg.Coalescer.FlushInterval != 250*time.Millisecond {
		t.Errorf("unexpected flush interval: %s", cfg.Coalescer.FlushInterval)
	}
}

func TestLoadConfigMissingName(t *testing.T) {
	content := `betflow:
  version: "1.0"
channels:
  frame_buffer: 1
  batch_buffer: 1
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing name")
	}
}

func TestLoadConfigStreamURLRequired(t *testing.T) {
	content := `betflow:
  name: "TestApp"
  version: "1.0"
channels:
  frame_buffer: 1
  batch_buffer: 1
stream:
  enabled: true
`
	path := writeTempConfig(t, content)
	defer os.Remove(path)

	if _, err := LoadConfig(path); err == nil {
		t.Fatalf("expected validation error for missing stream url")
	}
}

func TestIsValidS3Bucket(t *testing.T) {
	valid := []string{"betflow-frames", "abc", "my.bucket.name"}
	invalid := []string{"ab", "UPPER", ".leading", "trailing.", "double..dot"}
	for _, b := range valid {
		if !isValidS3Bucket(b) {
			t.Errorf("expected %q to be valid", b)
		}
	}
	for _, b := range invalid {
		if isValidS3Bucket(b) {
			t.Errorf("expected %q to be invalid", b)
		}
	}
}
