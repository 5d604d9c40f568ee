// Package assemble turns a recording's metadata document and its raw
// transcription document into a speaker-attributed OutputRecord.
package assemble

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/pkg/errors"

	"github.com/codebuildervaibhav/bot-transcripts/internal/align"
	"github.com/codebuildervaibhav/bot-transcripts/internal/jsonsearch"
	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

// Structural keys located in the source documents
const (
	SegmentKey     = "transcripts"
	WordKey        = "word"
	AssetsKey      = "assets"
	MediaPathKey   = "mp4_s3_path"
	audioOffsetKey = "audio_offset"
	durationKey    = "duration"
	speakerKey     = "speaker"
	startKey       = "start"
	endKey         = "end"
)

// Assembler is a pure transform; it performs no I/O
type Assembler struct {
	Align align.Options
}

// Assemble builds the record from already decoded documents
func (a Assembler) Assemble(recordID string, metadata, transcription any) (*types.OutputRecord, error) {
	segments, err := Segments(recordID, metadata)
	if err != nil {
		return nil, err
	}

	words, err := Words(recordID, transcription)
	if err != nil {
		return nil, err
	}

	chunks := align.AlignWith(segments, words, a.Align)

	media, err := MediaReference(recordID, metadata)
	if err != nil {
		return nil, err
	}

	return &types.OutputRecord{
		RecordID:       recordID,
		MediaReference: media,
		Speakers:       Speakers(chunks),
		Transcript:     chunks,
	}, nil
}

// AssembleBytes decodes both documents and assembles them
func (a Assembler) AssembleBytes(recordID string, metadata, transcription []byte) (*types.OutputRecord, error) {
	meta, err := jsonsearch.Decode(metadata)
	if err != nil {
		return nil, errors.Wrapf(err, "record %s: metadata", recordID)
	}
	raw, err := jsonsearch.Decode(transcription)
	if err != nil {
		return nil, errors.Wrapf(err, "record %s: transcription", recordID)
	}
	return a.Assemble(recordID, meta, raw)
}

// Segments extracts one SpeakerSegment per node carrying a transcripts key,
// in document order. Any malformed node fails the whole extraction.
func Segments(recordID string, metadata any) ([]types.SpeakerSegment, error) {
	nodes := jsonsearch.FindObjectsWithKey(metadata, SegmentKey)
	segments := make([]types.SpeakerSegment, 0, len(nodes))

	for i, node := range nodes {
		malformed := func(field string) error {
			return &AssemblyError{Kind: MalformedMetadata, RecordID: recordID, Field: field, Index: i}
		}

		offset, ok := jsonsearch.Number(node[audioOffsetKey])
		if !ok {
			return nil, malformed(audioOffsetKey)
		}
		duration, ok := jsonsearch.Number(node[durationKey])
		if !ok {
			return nil, malformed(durationKey)
		}
		first, ok := jsonsearch.Index(node[SegmentKey], 0)
		if !ok {
			return nil, malformed(SegmentKey + "[0]")
		}
		rawSpeaker, _ := jsonsearch.Get(first, speakerKey)
		speaker, ok := jsonsearch.String(rawSpeaker)
		if !ok {
			return nil, malformed(SegmentKey + "[0]." + speakerKey)
		}

		segments = append(segments, types.SpeakerSegment{
			Speaker:  speaker,
			Offset:   offset,
			Duration: duration,
		})
	}

	return segments, nil
}

// Words extracts one WordToken per node carrying a word key, in document order
func Words(recordID string, transcription any) ([]types.WordToken, error) {
	nodes := jsonsearch.FindObjectsWithKey(transcription, WordKey)
	words := make([]types.WordToken, 0, len(nodes))

	for i, node := range nodes {
		malformed := func(field string) error {
			return &AssemblyError{Kind: MalformedTranscription, RecordID: recordID, Field: field, Index: i}
		}

		start, ok := jsonsearch.Number(node[startKey])
		if !ok {
			return nil, malformed(startKey)
		}
		end, ok := jsonsearch.Number(node[endKey])
		if !ok {
			return nil, malformed(endKey)
		}
		text, ok := jsonsearch.String(node[WordKey])
		if !ok {
			return nil, malformed(WordKey)
		}

		words = append(words, types.WordToken{Start: start, End: end, Word: text})
	}

	return words, nil
}

// MediaReference reads assets[0].mp4_s3_path from the metadata root
func MediaReference(recordID string, metadata any) (string, error) {
	missing := &AssemblyError{
		Kind:     MissingMediaReference,
		RecordID: recordID,
		Field:    AssetsKey + "[0]." + MediaPathKey,
		Index:    -1,
	}

	assets, ok := jsonsearch.Get(metadata, AssetsKey)
	if !ok {
		return "", missing
	}
	first, ok := jsonsearch.Index(assets, 0)
	if !ok {
		return "", missing
	}
	raw, _ := jsonsearch.Get(first, MediaPathKey)
	path, ok := jsonsearch.String(raw)
	if !ok {
		return "", missing
	}
	return path, nil
}

// MediaReferences lists every media path found anywhere in the metadata, in
// the order the structural search visits them.
func MediaReferences(metadata any) []string {
	var refs []string
	for _, v := range jsonsearch.FindValues(metadata, MediaPathKey) {
		if s, ok := jsonsearch.String(v); ok && s != "" {
			refs = append(refs, s)
		}
	}
	return refs
}

// Speakers returns the sorted distinct speakers of non-empty chunks
func Speakers(chunks []types.AttributedChunk) []string {
	seen := make(map[string]struct{}, len(chunks))
	speakers := []string{}
	for _, c := range chunks {
		if len(c.Words) == 0 {
			continue
		}
		if _, ok := seen[c.Speaker]; ok {
			continue
		}
		seen[c.Speaker] = struct{}{}
		speakers = append(speakers, c.Speaker)
	}
	sort.Strings(speakers)
	return speakers
}

// Encode renders the record's webhook document, indented, with a trailing
// newline. Output is byte-stable for equal records.
func Encode(record *types.OutputRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(record.Webhook()); err != nil {
		return nil, errors.Wrapf(err, "record %s: encode output", record.RecordID)
	}
	return buf.Bytes(), nil
}
