package transcription

import (
	"fmt"

	"github.com/pkg/errors"
)

// JobErrorKind classifies a job that did not complete
type JobErrorKind string

const (
	// JobTransport is a non-success HTTP status, a network failure or an
	// unparsable response body. It is never retried.
	JobTransport JobErrorKind = "transport"
	// JobFailed means the backend reported a failed terminal status
	JobFailed JobErrorKind = "failed"
	// JobTimeout means the poll policy bound was reached or the context
	// ended before the job reached a terminal status. The remote job is
	// left running.
	JobTimeout JobErrorKind = "timeout"
)

// JobError is returned by RunpodClient for every unsuccessful job
type JobError struct {
	Kind       JobErrorKind
	JobID      string
	Status     string // last backend status seen, if any
	HTTPStatus int    // set for transport errors carrying a response
	Detail     string // backend diagnostic or response body
	Err        error
}

func (e *JobError) Error() string {
	msg := fmt.Sprintf("transcription job %s", string(e.Kind))
	if e.JobID != "" {
		msg += " (job " + e.JobID + ")"
	}
	if e.HTTPStatus != 0 {
		msg += fmt.Sprintf(": http %d", e.HTTPStatus)
	}
	if e.Status != "" && e.Kind != JobTransport {
		msg += ": status " + e.Status
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *JobError) Unwrap() error {
	return e.Err
}

func kindOf(err error) JobErrorKind {
	var je *JobError
	if errors.As(err, &je) {
		return je.Kind
	}
	return ""
}

// IsTransport reports whether err is a JobTransport error
func IsTransport(err error) bool { return kindOf(err) == JobTransport }

// IsFailed reports whether err is a JobFailed error
func IsFailed(err error) bool { return kindOf(err) == JobFailed }

// IsTimeout reports whether err is a JobTimeout error
func IsTimeout(err error) bool { return kindOf(err) == JobTimeout }
