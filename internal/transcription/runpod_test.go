package transcription

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

// fakeRunpod serves /run and /status/{id}, answering status checks from a
// scripted sequence of bodies.
type fakeRunpod struct {
	t          *testing.T
	submit     string
	submitCode int
	statuses   []string

	mu       sync.Mutex
	polls    int
	runBody  map[string]any
	authSeen []string
}

func (f *fakeRunpod) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authSeen = append(f.authSeen, r.Header.Get("Authorization"))

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/run":
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &f.runBody); err != nil {
			f.t.Errorf("bad run body: %v", err)
		}
		if f.submitCode != 0 {
			w.WriteHeader(f.submitCode)
		}
		io.WriteString(w, f.submit)
	case r.Method == http.MethodGet && r.URL.Path == "/status/job-1":
		if f.polls >= len(f.statuses) {
			f.t.Errorf("unexpected poll %d", f.polls+1)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		io.WriteString(w, f.statuses[f.polls])
		f.polls++
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeRunpod) snapshot() (int, []string, map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls, append([]string(nil), f.authSeen...), f.runBody
}

func newTestClient(url string, poll PollPolicy) *RunpodClient {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewRunpodClient(Options{
		BaseURL:  url,
		APIKey:   "secret",
		Decoding: DefaultDecoding(),
		Poll:     poll,
		Logger:   logger,
	})
}

var fastPoll = PollPolicy{Interval: time.Millisecond}

func TestTranscribeCompletes(t *testing.T) {
	fake := &fakeRunpod{
		t:      t,
		submit: `{"id":"job-1","status":"IN_QUEUE"}`,
		statuses: []string{
			`{"id":"job-1","status":"IN_QUEUE"}`,
			`{"id":"job-1","status":"IN_PROGRESS"}`,
			`{"id":"job-1","status":"COMPLETED","output":{"detected_language":"pt","word_timestamps":[{"start":0.5,"end":0.9,"word":"olá"}]}}`,
		},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	var seen []string
	res, err := newTestClient(srv.URL, fastPoll).TranscribeWithStatus(context.Background(), "https://media/a.mp4", func(id, status string) {
		if id != "job-1" {
			t.Errorf("status callback job id = %q", id)
		}
		seen = append(seen, status)
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if res.DetectedLanguage != "pt" || len(res.WordTimestamps) != 1 || res.WordTimestamps[0].Word != "olá" {
		t.Errorf("unexpected result %+v", res)
	}

	want := []string{"IN_QUEUE", "IN_QUEUE", "IN_PROGRESS", "COMPLETED"}
	if len(seen) != len(want) {
		t.Fatalf("statuses = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("status %d = %s, want %s", i, seen[i], want[i])
		}
	}

	_, auth, runBody := fake.snapshot()
	for _, a := range auth {
		if a != "Bearer secret" {
			t.Errorf("Authorization = %q", a)
		}
	}

	input, _ := runBody["input"].(map[string]any)
	checks := map[string]any{
		"audio":           "https://media/a.mp4",
		"model":           "large-v3",
		"language":        "pt",
		"word_timestamps": true,
		"suppress_tokens": "-1",
		"beam_size":       float64(5),
	}
	for k, v := range checks {
		if input[k] != v {
			t.Errorf("input.%s = %v, want %v", k, input[k], v)
		}
	}
	if _, ok := input["enable_vad"]; ok {
		t.Error("enable_vad must sit beside input, not inside it")
	}
	if runBody["enable_vad"] != false {
		t.Errorf("enable_vad = %v", runBody["enable_vad"])
	}
}

func TestTranscribeFailedJob(t *testing.T) {
	fake := &fakeRunpod{
		t:        t,
		submit:   `{"id":"job-1","status":"IN_PROGRESS"}`,
		statuses: []string{`{"id":"job-1","status":"FAILED","error":"audio could not be downloaded"}`},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestClient(srv.URL, fastPoll).Transcribe(context.Background(), "https://media/a.mp4")
	if !IsFailed(err) {
		t.Fatalf("expected failed job error, got %v", err)
	}
	je := err.(*JobError)
	if je.JobID != "job-1" || je.Detail != "audio could not be downloaded" {
		t.Errorf("unexpected error fields %+v", je)
	}
}

func TestTranscribeTransportErrors(t *testing.T) {
	tests := []struct {
		name     string
		fake     *fakeRunpod
		httpCode int
	}{
		{
			name:     "submit rejected",
			fake:     &fakeRunpod{submit: `{"error":"unauthorized"}`, submitCode: http.StatusUnauthorized},
			httpCode: http.StatusUnauthorized,
		},
		{
			name: "malformed status body",
			fake: &fakeRunpod{submit: `{"id":"job-1","status":"IN_QUEUE"}`, statuses: []string{`not json`}},
		},
		{
			name: "completed without output",
			fake: &fakeRunpod{submit: `{"id":"job-1","status":"IN_QUEUE"}`, statuses: []string{`{"id":"job-1","status":"COMPLETED"}`}},
		},
		{
			name: "submit without id",
			fake: &fakeRunpod{submit: `{"status":"IN_QUEUE"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fake.t = t
			srv := httptest.NewServer(tt.fake)
			defer srv.Close()

			_, err := newTestClient(srv.URL, fastPoll).Transcribe(context.Background(), "m")
			if !IsTransport(err) {
				t.Fatalf("expected transport error, got %v", err)
			}
			if tt.httpCode != 0 && err.(*JobError).HTTPStatus != tt.httpCode {
				t.Errorf("HTTPStatus = %d, want %d", err.(*JobError).HTTPStatus, tt.httpCode)
			}
		})
	}
}

func TestTranscribeMaxAttempts(t *testing.T) {
	fake := &fakeRunpod{
		t:        t,
		submit:   `{"id":"job-1","status":"IN_QUEUE"}`,
		statuses: []string{`{"id":"job-1","status":"IN_PROGRESS"}`, `{"id":"job-1","status":"IN_PROGRESS"}`},
	}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	_, err := newTestClient(srv.URL, PollPolicy{Interval: time.Millisecond, MaxAttempts: 2}).Transcribe(context.Background(), "m")
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if polls, _, _ := fake.snapshot(); polls != 2 {
		t.Errorf("polled %d times, want 2", polls)
	}
}

func TestTranscribeContextCancelled(t *testing.T) {
	fake := &fakeRunpod{t: t, submit: `{"id":"job-1","status":"IN_QUEUE"}`}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestClient(srv.URL, PollPolicy{Interval: time.Hour}).Transcribe(ctx, "m")
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected wrapped deadline error, got %v", err)
	}
}

func TestTerminal(t *testing.T) {
	for status, want := range map[string]bool{
		StatusInQueue:    false,
		StatusInProgress: false,
		StatusCompleted:  true,
		StatusFailed:     true,
		StatusCancelled:  true,
		StatusTimedOut:   true,
		"SOMETHING_NEW":  false,
	} {
		if got := Terminal(status); got != want {
			t.Errorf("Terminal(%s) = %v, want %v", status, got, want)
		}
	}
}
