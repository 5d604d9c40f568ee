package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codebuildervaibhav/bot-transcripts/internal/transcription"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("RUNPOD_API_KEY", "")
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Runpod.BaseURL != transcription.DefaultBaseURL {
		t.Errorf("base url = %s", cfg.Runpod.BaseURL)
	}
	if cfg.Runpod.Decoding != transcription.DefaultDecoding() {
		t.Errorf("decoding = %+v", cfg.Runpod.Decoding)
	}
	if got := cfg.Poll(); got.Interval != 5*time.Second || got.MaxAttempts != 0 || got.Timeout != 0 {
		t.Errorf("poll = %+v", got)
	}
	if cfg.Storage.InputDir != "./files" || cfg.Storage.OutputDir != "./transcription_output" || cfg.Storage.IDsFile != "bot_ids.txt" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	if cfg.Workers.Count != 1 {
		t.Errorf("workers = %d", cfg.Workers.Count)
	}
	if err := cfg.RequireAPIKey(); err == nil {
		t.Error("expected missing key error")
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
runpod:
  api_key: from-file
  requests_per_second: 2
  poll:
    interval_seconds: 1
    max_attempts: 30
    timeout_minutes: 10
  decoding:
    language: en
    enable_vad: true
storage:
  input_dir: /data/in
workers:
  count: 4
server:
  port: 9090
logging:
  format: json
`
	if err := os.WriteFile(path, []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("RUNPOD_API_KEY", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Runpod.APIKey != "from-env" {
		t.Errorf("env should win, got %s", cfg.Runpod.APIKey)
	}
	d := cfg.Runpod.Decoding
	if d.Language != "en" || !d.EnableVAD || d.Model != "large-v3" || d.BeamSize != 5 {
		t.Errorf("decoding should merge over defaults: %+v", d)
	}

	opts := cfg.RunpodOptions()
	if opts.Poll.Interval != time.Second || opts.Poll.MaxAttempts != 30 || opts.Poll.Timeout != 10*time.Minute {
		t.Errorf("poll = %+v", opts.Poll)
	}
	if opts.RequestsPerSecond != 2 || opts.RequestTimeout != time.Minute {
		t.Errorf("options = %+v", opts)
	}
	if cfg.Storage.InputDir != "/data/in" || cfg.Workers.Count != 4 || cfg.Addr() != "0.0.0.0:9090" {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name, yml, want string
	}{
		{"negative workers", "workers: {count: -1}", "workers.count"},
		{"negative poll", "runpod: {poll: {max_attempts: -2}}", "max_attempts"},
		{"bad format", "logging: {format: xml}", "logging.format"},
		{"word timestamps off", "runpod: {decoding: {word_timestamps: false}}", "word_timestamps"},
		{"port", "server: {port: 70000}", "server.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse(%q) = %v, want error mentioning %s", tt.yml, err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error")
	}
}
