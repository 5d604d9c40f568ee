package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/codebuildervaibhav/bot-transcripts/internal/assemble"
	"github.com/codebuildervaibhav/bot-transcripts/internal/jsonsearch"
	"github.com/codebuildervaibhav/bot-transcripts/internal/storage"
	"github.com/codebuildervaibhav/bot-transcripts/internal/transcription"
	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// ErrAlreadyTranscribed is returned when a raw result exists and the caller
// did not ask to redo it
var ErrAlreadyTranscribed = errors.New("raw transcription already exists")

// ErrNoTranscriber is returned by the transcribe phase when no backend is
// configured
var ErrNoTranscriber = errors.New("transcription backend not configured")

// Transcriber runs one backend job per media URL
type Transcriber interface {
	TranscribeWithStatus(ctx context.Context, mediaURL string, onStatus transcription.StatusFunc) (*types.RunpodResult, error)
}

// Pipeline holds the per-record steps of both phases
type Pipeline struct {
	Store       *storage.LocalStorage
	Transcriber Transcriber
	Resolver    storage.MediaResolver
	Assembler   assemble.Assembler
	Sinks       []storage.Sink
	Log         logrus.FieldLogger

	// SinkAttempts bounds delivery tries per sink; values below 1 mean one try.
	// Retry n waits n*n*SinkBackoff (default 1s).
	SinkAttempts int
	SinkBackoff  time.Duration
}

func (p *Pipeline) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}

// Transcribe submits every media asset of the record in order and persists
// the raw result(s). A single asset persists the bare result object, several
// persist an array in asset order.
func (p *Pipeline) Transcribe(ctx context.Context, recordID string, force bool, onStatus transcription.StatusFunc) (string, error) {
	log := p.logger().WithField("record_id", recordID)

	if !force && p.Store.HasRaw(recordID) {
		return p.Store.RawPath(recordID), ErrAlreadyTranscribed
	}
	if p.Transcriber == nil {
		return "", ErrNoTranscriber
	}

	data, err := p.Store.ReadMetadata(recordID)
	if err != nil {
		return "", err
	}
	meta, err := jsonsearch.Decode(data)
	if err != nil {
		return "", errors.Wrapf(err, "record %s: metadata %s", recordID, p.Store.MetadataPath(recordID))
	}

	refs := assemble.MediaReferences(meta)
	if len(refs) == 0 {
		return "", &assemble.AssemblyError{
			Kind:     assemble.MissingMediaReference,
			RecordID: recordID,
			Field:    assemble.MediaPathKey,
			Index:    -1,
		}
	}

	resolver := p.Resolver
	if resolver == nil {
		resolver = storage.PassthroughResolver{}
	}

	results := make([]*types.RunpodResult, 0, len(refs))
	for i, ref := range refs {
		mediaURL, err := resolver.Resolve(ctx, ref)
		if err != nil {
			return "", err
		}
		log.WithFields(logrus.Fields{"asset": i, "media": ref}).Info("Transcribing asset")

		result, err := p.Transcriber.TranscribeWithStatus(ctx, mediaURL, onStatus)
		if err != nil {
			return "", errors.Wrapf(err, "record %s: asset %d", recordID, i)
		}
		results = append(results, result)
	}

	var raw []byte
	if len(results) == 1 {
		raw, err = json.Marshal(results[0])
	} else {
		raw, err = json.Marshal(results)
	}
	if err != nil {
		return "", errors.Wrapf(err, "record %s: encode raw result", recordID)
	}

	path, err := p.Store.SaveRaw(recordID, raw)
	if err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{"path": path, "assets": len(results)}).Info("Raw transcription saved")
	return path, nil
}

// Assemble builds and writes the output document for the record, then hands
// it to every sink. Sink failures are logged and never undo the local write.
func (p *Pipeline) Assemble(ctx context.Context, recordID string) (string, error) {
	log := p.logger().WithField("record_id", recordID)

	meta, err := p.Store.ReadMetadata(recordID)
	if err != nil {
		return "", err
	}
	raw, err := p.Store.ReadRaw(recordID)
	if err != nil {
		return "", err
	}

	record, err := p.Assembler.AssembleBytes(recordID, meta, raw)
	if err != nil {
		return "", err
	}
	doc, err := assemble.Encode(record)
	if err != nil {
		return "", err
	}

	path, err := p.Store.SaveOutput(recordID, doc)
	if err != nil {
		return "", err
	}
	log.WithFields(logrus.Fields{
		"path":     path,
		"chunks":   len(record.Transcript),
		"speakers": len(record.Speakers),
	}).Info("Transcript assembled")

	for _, sink := range p.Sinks {
		p.deliver(ctx, log, sink, recordID, doc)
	}

	return path, nil
}

func (p *Pipeline) deliver(ctx context.Context, log logrus.FieldLogger, sink storage.Sink, recordID string, doc []byte) {
	attempts := p.SinkAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.SinkBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	log = log.WithField("sink", sink.Name())

	for attempt := 1; attempt <= attempts; attempt++ {
		err := sink.Deliver(ctx, recordID, doc)
		if err == nil {
			log.Debug("Sink delivery succeeded")
			return
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Sink delivery failed")
		if attempt == attempts {
			break
		}
		select {
		case <-time.After(time.Duration(attempt*attempt) * backoff):
		case <-ctx.Done():
			return
		}
	}
	log.Warn("Giving up on sink, output kept locally only")
}
