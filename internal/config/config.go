package config

import (
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/bot-transcripts/internal/transcription"
)

// DefaultPath is where the binaries look for their configuration
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Runpod struct {
		BaseURL               string  `yaml:"base_url"`
		APIKey                string  `yaml:"api_key"`
		RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
		RequestsPerSecond     float64 `yaml:"requests_per_second"`

		Poll struct {
			IntervalSeconds int `yaml:"interval_seconds"`
			MaxAttempts     int `yaml:"max_attempts"`
			TimeoutMinutes  int `yaml:"timeout_minutes"`
		} `yaml:"poll"`

		Decoding transcription.DecodingConfig `yaml:"decoding"`
	} `yaml:"runpod"`

	Storage struct {
		InputDir       string `yaml:"input_dir"`
		OutputDir      string `yaml:"output_dir"`
		TempDir        string `yaml:"temp_dir"`
		Database       string `yaml:"database"`
		IDsFile        string `yaml:"ids_file"`
		MetadataSuffix string `yaml:"metadata_suffix"`
		RawSuffix      string `yaml:"raw_suffix"`
	} `yaml:"storage"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Server struct {
		Port int    `yaml:"port"`
		Host string `yaml:"host"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Dir    string `yaml:"dir"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Webhook struct {
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
		Attempts       int    `yaml:"attempts"`
	} `yaml:"webhook"`

	S3 struct {
		Region         string `yaml:"region"`
		PresignMinutes int    `yaml:"presign_minutes"`
	} `yaml:"s3"`
}

// Default returns the configuration used when no file exists: every default
// plus the environment overrides
func Default() *Config {
	cfg := &Config{}
	cfg.Runpod.Decoding = transcription.DefaultDecoding()
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(data)
}

// Parse is Load without the file read
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	cfg.Runpod.Decoding = transcription.DefaultDecoding()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Runpod.APIKey = getEnv("RUNPOD_API_KEY", c.Runpod.APIKey)
	c.Runpod.BaseURL = getEnv("RUNPOD_BASE_URL", c.Runpod.BaseURL)
	c.Workers.Count = getEnvAsInt("WORKERS", c.Workers.Count)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

func (c *Config) applyDefaults() {
	setDefault(&c.Runpod.BaseURL, transcription.DefaultBaseURL)
	if c.Runpod.RequestTimeoutSeconds == 0 {
		c.Runpod.RequestTimeoutSeconds = 60
	}
	if c.Runpod.Poll.IntervalSeconds == 0 {
		c.Runpod.Poll.IntervalSeconds = int(transcription.DefaultPollInterval / time.Second)
	}

	setDefault(&c.Storage.InputDir, "./files")
	setDefault(&c.Storage.OutputDir, "./transcription_output")
	setDefault(&c.Storage.TempDir, "./temp")
	setDefault(&c.Storage.Database, "./transcripts.db")
	setDefault(&c.Storage.IDsFile, "bot_ids.txt")
	setDefault(&c.Storage.MetadataSuffix, ".json")
	setDefault(&c.Storage.RawSuffix, ".json.runpod")

	if c.Workers.Count == 0 {
		c.Workers.Count = 1
	}

	setDefault(&c.Server.Host, "0.0.0.0")
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}

	setDefault(&c.Logging.Level, "info")
	setDefault(&c.Logging.Format, "text")

	if c.Cleanup.IntervalMinutes == 0 {
		c.Cleanup.IntervalMinutes = 60
	}
	if c.Cleanup.MaxAgeHours == 0 {
		c.Cleanup.MaxAgeHours = 24
	}

	setDefault(&c.GoogleDrive.TokenFile, "token.json")
	setDefault(&c.GoogleDrive.FolderName, "Transcripts")

	if c.Webhook.TimeoutSeconds == 0 {
		c.Webhook.TimeoutSeconds = 30
	}
	if c.Webhook.Attempts == 0 {
		c.Webhook.Attempts = 3
	}
	if c.S3.PresignMinutes == 0 {
		c.S3.PresignMinutes = 60
	}
}

// Validate rejects values no component can run with
func (c *Config) Validate() error {
	nonNegative := []struct {
		name  string
		value int
	}{
		{"runpod.request_timeout_seconds", c.Runpod.RequestTimeoutSeconds},
		{"runpod.poll.interval_seconds", c.Runpod.Poll.IntervalSeconds},
		{"runpod.poll.max_attempts", c.Runpod.Poll.MaxAttempts},
		{"runpod.poll.timeout_minutes", c.Runpod.Poll.TimeoutMinutes},
		{"workers.count", c.Workers.Count},
		{"cleanup.interval_minutes", c.Cleanup.IntervalMinutes},
		{"cleanup.max_age_hours", c.Cleanup.MaxAgeHours},
		{"webhook.timeout_seconds", c.Webhook.TimeoutSeconds},
		{"webhook.attempts", c.Webhook.Attempts},
		{"s3.presign_minutes", c.S3.PresignMinutes},
	}
	for _, f := range nonNegative {
		if f.value < 0 {
			return errors.Errorf("%s must not be negative, got %d", f.name, f.value)
		}
	}

	if c.Runpod.RequestsPerSecond < 0 {
		return errors.Errorf("runpod.requests_per_second must not be negative, got %v", c.Runpod.RequestsPerSecond)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if !c.Runpod.Decoding.WordTimestamps {
		return errors.New("runpod.decoding.word_timestamps must stay enabled")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return errors.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	return nil
}

// RequireAPIKey fails when the transcribe phase has no credential
func (c *Config) RequireAPIKey() error {
	if c.Runpod.APIKey == "" {
		return errors.New("no Runpod API key: set RUNPOD_API_KEY or runpod.api_key")
	}
	return nil
}

// Poll converts the poll section into the client's policy
func (c *Config) Poll() transcription.PollPolicy {
	return transcription.PollPolicy{
		Interval:    time.Duration(c.Runpod.Poll.IntervalSeconds) * time.Second,
		MaxAttempts: c.Runpod.Poll.MaxAttempts,
		Timeout:     time.Duration(c.Runpod.Poll.TimeoutMinutes) * time.Minute,
	}
}

// RunpodOptions builds the job client options; the logger is left to the caller
func (c *Config) RunpodOptions() transcription.Options {
	return transcription.Options{
		BaseURL:           c.Runpod.BaseURL,
		APIKey:            c.Runpod.APIKey,
		Decoding:          c.Runpod.Decoding,
		Poll:              c.Poll(),
		RequestTimeout:    time.Duration(c.Runpod.RequestTimeoutSeconds) * time.Second,
		RequestsPerSecond: c.Runpod.RequestsPerSecond,
	}
}

// Addr is the server listen address
func (c *Config) Addr() string {
	return c.Server.Host + ":" + strconv.Itoa(c.Server.Port)
}

func setDefault(field *string, value string) {
	if *field == "" {
		*field = value
	}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
