package transcription

import "time"

// DecodingConfig is the fixed decoding setup sent with every job
type DecodingConfig struct {
	// Model is the whisper variant to run (e.g. "large-v3")
	Model string `yaml:"model" json:"model"`
	// Transcription is the output format of the plain transcript
	Transcription string `yaml:"transcription" json:"transcription"`
	// Translate requests translation to English instead of transcription
	Translate bool `yaml:"translate" json:"translate"`
	// Temperature is the sampling temperature; 0 means greedy/beam decoding
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// BestOf is the number of candidates when sampling with temperature > 0
	BestOf int `yaml:"best_of" json:"best_of"`
	// BeamSize is the beam width when temperature is 0
	BeamSize int `yaml:"beam_size" json:"beam_size"`
	// Patience is the beam search patience factor
	Patience float64 `yaml:"patience" json:"patience"`
	// SuppressTokens lists token ids to suppress; "-1" suppresses symbols
	SuppressTokens string `yaml:"suppress_tokens" json:"suppress_tokens"`
	// ConditionOnPreviousText feeds the previous window as a prompt
	ConditionOnPreviousText bool `yaml:"condition_on_previous_text" json:"condition_on_previous_text"`
	// TemperatureIncrementOnFallback raises temperature when decoding fails
	// the thresholds below
	TemperatureIncrementOnFallback float64 `yaml:"temperature_increment_on_fallback" json:"temperature_increment_on_fallback"`
	// CompressionRatioThreshold rejects overly repetitive windows
	CompressionRatioThreshold float64 `yaml:"compression_ratio_threshold" json:"compression_ratio_threshold"`
	// LogprobThreshold rejects windows with low average log probability
	LogprobThreshold float64 `yaml:"logprob_threshold" json:"logprob_threshold"`
	// NoSpeechThreshold marks windows as silence
	NoSpeechThreshold float64 `yaml:"no_speech_threshold" json:"no_speech_threshold"`
	// WordTimestamps must stay enabled; assembly depends on per-word timing
	WordTimestamps bool `yaml:"word_timestamps" json:"word_timestamps"`
	// Language is the fixed target language
	Language string `yaml:"language" json:"language"`
	// EnableVAD toggles server-side voice activity detection
	EnableVAD bool `yaml:"enable_vad" json:"-"`
}

// DefaultDecoding returns the decoding setup the pipeline was built around
func DefaultDecoding() DecodingConfig {
	return DecodingConfig{
		Model:                          "large-v3",
		Transcription:                  "plain_text",
		Translate:                      false,
		Temperature:                    0,
		BestOf:                         5,
		BeamSize:                       5,
		Patience:                       1,
		SuppressTokens:                 "-1",
		ConditionOnPreviousText:        false,
		TemperatureIncrementOnFallback: 0.2,
		CompressionRatioThreshold:      2.4,
		LogprobThreshold:               -1,
		NoSpeechThreshold:              0.6,
		WordTimestamps:                 true,
		Language:                       "pt",
		EnableVAD:                      false,
	}
}

// PollPolicy bounds the status polling loop. Zero MaxAttempts and zero
// Timeout poll forever, relying on the backend to reach a terminal status.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
}

// DefaultPollInterval is the wait between status checks
const DefaultPollInterval = 5 * time.Second

// DefaultPollPolicy polls every five seconds without a bound
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{Interval: DefaultPollInterval}
}

type runInput struct {
	Audio string `json:"audio"`
	DecodingConfig
}

type runRequest struct {
	Input     runInput `json:"input"`
	EnableVAD bool     `json:"enable_vad"`
}

func newRunRequest(mediaURL string, cfg DecodingConfig) runRequest {
	return runRequest{
		Input:     runInput{Audio: mediaURL, DecodingConfig: cfg},
		EnableVAD: cfg.EnableVAD,
	}
}
