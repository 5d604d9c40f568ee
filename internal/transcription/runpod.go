package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// DefaultBaseURL is the serverless endpoint the pipeline submits to
const DefaultBaseURL = "https://api.runpod.ai/v2/oq0i26ut0lom1h"

// Backend job statuses
const (
	StatusInQueue    = "IN_QUEUE"
	StatusQueued     = "QUEUED"
	StatusInProgress = "IN_PROGRESS"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
	StatusCancelled  = "CANCELLED"
	StatusTimedOut   = "TIMED_OUT"
)

// Terminal reports whether status ends the job
func Terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

// Transcriber turns one media URL into word-level timestamps
type Transcriber interface {
	Transcribe(ctx context.Context, mediaURL string) (*types.RunpodResult, error)
}

// StatusFunc observes every status the client sees for a job, including the
// submission response and the terminal status.
type StatusFunc func(jobID, status string)

// Options configures a RunpodClient
type Options struct {
	BaseURL           string
	APIKey            string
	Decoding          DecodingConfig
	Poll              PollPolicy
	RequestTimeout    time.Duration
	RequestsPerSecond float64 // 0 disables client-side rate limiting
	HTTPClient        *http.Client
	Logger            logrus.FieldLogger
}

// RunpodClient drives one asynchronous transcription job per call from
// submission to a terminal status. It is safe for concurrent use; each call
// polls its own job sequentially.
type RunpodClient struct {
	baseURL    string
	apiKey     string
	decoding   DecodingConfig
	poll       PollPolicy
	httpClient *http.Client
	limiter    *rate.Limiter
	log        logrus.FieldLogger
}

// NewRunpodClient creates a client; zero option fields take defaults
func NewRunpodClient(opts Options) *RunpodClient {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}

	poll := opts.Poll
	if poll.Interval <= 0 {
		poll.Interval = DefaultPollInterval
	}

	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	return &RunpodClient{
		baseURL:    base,
		apiKey:     opts.APIKey,
		decoding:   opts.Decoding,
		poll:       poll,
		httpClient: hc,
		limiter:    rate.NewLimiter(limit, 1),
		log:        log.WithField("component", "runpod"),
	}
}

// apiResponse is the shape of both /run and /status replies
type apiResponse struct {
	ID     string              `json:"id"`
	Status string              `json:"status"`
	Output *types.RunpodResult `json:"output,omitempty"`
	Error  json.RawMessage     `json:"error,omitempty"`
}

// Transcribe implements Transcriber
func (c *RunpodClient) Transcribe(ctx context.Context, mediaURL string) (*types.RunpodResult, error) {
	return c.TranscribeWithStatus(ctx, mediaURL, nil)
}

// TranscribeWithStatus submits mediaURL and polls until the job completes,
// fails, or the poll policy gives up. onStatus may be nil.
func (c *RunpodClient) TranscribeWithStatus(ctx context.Context, mediaURL string, onStatus StatusFunc) (*types.RunpodResult, error) {
	if c.poll.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.poll.Timeout)
		defer cancel()
	}

	resp, err := c.submit(ctx, mediaURL)
	if err != nil {
		return nil, c.classify(ctx, "", "", err)
	}
	jobID := resp.ID
	log := c.log.WithField("job_id", jobID)
	log.WithField("status", resp.Status).Info("Transcription job submitted")
	notify(onStatus, jobID, resp.Status)

	if jobID == "" && !Terminal(resp.Status) {
		return nil, &JobError{Kind: JobTransport, Status: resp.Status, Detail: "submit response has no job id"}
	}

	attempts := 0
	for !Terminal(resp.Status) {
		if c.poll.MaxAttempts > 0 && attempts >= c.poll.MaxAttempts {
			return nil, &JobError{
				Kind:   JobTimeout,
				JobID:  jobID,
				Status: resp.Status,
				Detail: fmt.Sprintf("still %s after %d status checks", resp.Status, attempts),
			}
		}

		if err := sleep(ctx, c.poll.Interval); err != nil {
			return nil, &JobError{Kind: JobTimeout, JobID: jobID, Status: resp.Status, Err: err}
		}

		prev := resp.Status
		next, err := c.status(ctx, jobID)
		if err != nil {
			return nil, c.classify(ctx, jobID, prev, err)
		}
		attempts++
		resp = next
		if resp.ID == "" {
			resp.ID = jobID
		}

		if resp.Status != prev {
			log.WithFields(logrus.Fields{"status": resp.Status, "attempt": attempts}).Info("Transcription job status changed")
		} else {
			log.WithFields(logrus.Fields{"status": resp.Status, "attempt": attempts}).Debug("Transcription job still running")
		}
		notify(onStatus, jobID, resp.Status)
	}

	if resp.Status != StatusCompleted {
		log.WithField("status", resp.Status).Error("Transcription job failed")
		return nil, &JobError{Kind: JobFailed, JobID: jobID, Status: resp.Status, Detail: errorDetail(resp.Error)}
	}
	if resp.Output == nil {
		return nil, &JobError{Kind: JobTransport, JobID: jobID, Status: resp.Status, Detail: "completed job has no output"}
	}

	log.WithFields(logrus.Fields{
		"language": resp.Output.DetectedLanguage,
		"words":    len(resp.Output.WordTimestamps),
	}).Info("Transcription job completed")
	return resp.Output, nil
}

func (c *RunpodClient) submit(ctx context.Context, mediaURL string) (*apiResponse, error) {
	body, err := json.Marshal(newRunRequest(mediaURL, c.decoding))
	if err != nil {
		return nil, errors.Wrap(err, "marshal run request")
	}
	return c.do(ctx, http.MethodPost, c.baseURL+"/run", body)
}

func (c *RunpodClient) status(ctx context.Context, jobID string) (*apiResponse, error) {
	return c.do(ctx, http.MethodGet, c.baseURL+"/status/"+jobID, nil)
}

// httpStatusError carries a non-success response
type httpStatusError struct {
	code int
	body string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, response: %s", e.code, e.body)
}

func (c *RunpodClient) do(ctx context.Context, method, url string, body []byte) (*apiResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, url)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "read response body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}

	var out apiResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "parse response")
	}
	if out.Status == "" {
		return nil, errors.New("parse response: missing status")
	}
	return &out, nil
}

// classify maps a request error to a JobError. Errors caused by the
// context ending are timeouts, not transport failures.
func (c *RunpodClient) classify(ctx context.Context, jobID, status string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &JobError{Kind: JobTimeout, JobID: jobID, Status: status, Err: ctxErr}
	}
	je := &JobError{Kind: JobTransport, JobID: jobID, Status: status, Err: err}
	var hs *httpStatusError
	if errors.As(err, &hs) {
		je.HTTPStatus = hs.code
		je.Detail = hs.body
		je.Err = nil
	}
	return je
}

func errorDetail(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func notify(fn StatusFunc, jobID, status string) {
	if fn != nil {
		fn(jobID, status)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
