package types

import "time"

// Job status constants
const (
	StatusQueued     = "QUEUED"
	StatusProcessing = "PROCESSING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusSkipped    = "SKIPPED"
)

// Pipeline phases
const (
	PhaseTranscribe = "transcribe"
	PhaseAssemble   = "assemble"
	PhaseAll        = "all"
)

// ValidPhase reports whether p names a runnable phase
func ValidPhase(p string) bool {
	switch p {
	case PhaseTranscribe, PhaseAssemble, PhaseAll:
		return true
	}
	return false
}

// SpeakerSegment is one labeled turn from the recording metadata
type SpeakerSegment struct {
	Speaker  string
	Offset   float64
	Duration float64
}

// End returns the exclusive end of the segment window
func (s SpeakerSegment) End() float64 {
	return s.Offset + s.Duration
}

// Contains reports whether t falls in [Offset, Offset+Duration)
func (s SpeakerSegment) Contains(t float64) bool {
	return t >= s.Offset && t < s.End()
}

// WordToken is one recognized word with timestamps in seconds
type WordToken struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// AttributedChunk is a contiguous run of words assigned to one segment
type AttributedChunk struct {
	Speaker string      `json:"speaker"`
	Offset  float64     `json:"offset"`
	Words   []WordToken `json:"words"`
}

// OutputRecord is the assembled, speaker-attributed transcript for one record
type OutputRecord struct {
	RecordID       string
	MediaReference string
	Speakers       []string // sorted, distinct
	Transcript     []AttributedChunk
}

// Webhook is the delivered document shape
type Webhook struct {
	Event string      `json:"event"`
	Data  WebhookData `json:"data"`
}

// WebhookData carries the assembled record
type WebhookData struct {
	BotID      string            `json:"bot_id"`
	Transcript []AttributedChunk `json:"transcript"`
	Speakers   []string          `json:"speakers"`
	MP4        string            `json:"mp4"`
}

// EventComplete is the only event the pipeline emits
const EventComplete = "complete"

// Webhook converts the record into its delivery document
func (r OutputRecord) Webhook() Webhook {
	transcript := r.Transcript
	if transcript == nil {
		transcript = []AttributedChunk{}
	}
	speakers := r.Speakers
	if speakers == nil {
		speakers = []string{}
	}
	return Webhook{
		Event: EventComplete,
		Data: WebhookData{
			BotID:      r.RecordID,
			Transcript: transcript,
			Speakers:   speakers,
			MP4:        r.MediaReference,
		},
	}
}

// RunpodResult is the completed output of one transcription job
type RunpodResult struct {
	DetectedLanguage string      `json:"detected_language"`
	WordTimestamps   []WordToken `json:"word_timestamps"`
}

// JobEvent is published on every job status change
type JobEvent struct {
	JobID         string    `json:"job_id"`
	RecordID      string    `json:"record_id"`
	Phase         string    `json:"phase"`
	Status        string    `json:"status"`
	BackendJobID  string    `json:"backend_job_id,omitempty"`
	BackendStatus string    `json:"backend_status,omitempty"`
	Error         string    `json:"error,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
