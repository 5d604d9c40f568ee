package assemble

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

const metadataDoc = `{
	"assets": [{"mp4_s3_path": "https://bucket.example/rec-1.mp4"}],
	"speech": [
		{"audio_offset": 0, "duration": 10, "transcripts": [{"speaker": "A", "text": "..."}]},
		{"audio_offset": 10, "duration": 5, "transcripts": [{"speaker": "B"}]},
		{"audio_offset": 15, "duration": 5, "transcripts": [{"speaker": "C"}]}
	]
}`

const rawDoc = `{
	"detected_language": "pt",
	"word_timestamps": [
		{"start": 2, "end": 3, "word": "hi"},
		{"start": 9.9, "end": 10, "word": "you"},
		{"start": 11, "end": 12, "word": "there"}
	]
}`

func TestAssembleBytes(t *testing.T) {
	rec, err := Assembler{}.AssembleBytes("rec-1", []byte(metadataDoc), []byte(rawDoc))
	if err != nil {
		t.Fatalf("AssembleBytes: %v", err)
	}

	if rec.RecordID != "rec-1" {
		t.Errorf("RecordID = %q", rec.RecordID)
	}
	if rec.MediaReference != "https://bucket.example/rec-1.mp4" {
		t.Errorf("MediaReference = %q", rec.MediaReference)
	}

	want := []types.AttributedChunk{
		{Speaker: "A", Offset: 0, Words: []types.WordToken{
			{Start: 2, End: 3, Word: "hi"},
			{Start: 9.9, End: 10, Word: "you"},
		}},
		{Speaker: "B", Offset: 10, Words: []types.WordToken{{Start: 11, End: 12, Word: "there"}}},
	}
	if !reflect.DeepEqual(rec.Transcript, want) {
		t.Errorf("Transcript = %+v, want %+v", rec.Transcript, want)
	}

	// C never received a word so it is not a speaker.
	if !reflect.DeepEqual(rec.Speakers, []string{"A", "B"}) {
		t.Errorf("Speakers = %v", rec.Speakers)
	}
}

func TestAssembleErrors(t *testing.T) {
	tests := []struct {
		name     string
		metadata string
		raw      string
		kind     ErrorKind
		field    string
	}{
		{
			name:     "missing audio_offset",
			metadata: `{"assets":[{"mp4_s3_path":"x"}],"s":[{"duration":1,"transcripts":[{"speaker":"A"}]}]}`,
			raw:      `{}`,
			kind:     MalformedMetadata,
			field:    "audio_offset",
		},
		{
			name:     "duration is a string",
			metadata: `{"assets":[{"mp4_s3_path":"x"}],"s":[{"audio_offset":0,"duration":"1","transcripts":[{"speaker":"A"}]}]}`,
			raw:      `{}`,
			kind:     MalformedMetadata,
			field:    "duration",
		},
		{
			name:     "empty transcripts",
			metadata: `{"assets":[{"mp4_s3_path":"x"}],"s":[{"audio_offset":0,"duration":1,"transcripts":[]}]}`,
			raw:      `{}`,
			kind:     MalformedMetadata,
			field:    "transcripts[0]",
		},
		{
			name:     "speaker missing",
			metadata: `{"assets":[{"mp4_s3_path":"x"}],"s":[{"audio_offset":0,"duration":1,"transcripts":[{"name":"A"}]}]}`,
			raw:      `{}`,
			kind:     MalformedMetadata,
			field:    "transcripts[0].speaker",
		},
		{
			name:     "word without end",
			metadata: `{"assets":[{"mp4_s3_path":"x"}]}`,
			raw:      `{"word_timestamps":[{"start":1,"word":"a"}]}`,
			kind:     MalformedTranscription,
			field:    "end",
		},
		{
			name:     "word text not a string",
			metadata: `{"assets":[{"mp4_s3_path":"x"}]}`,
			raw:      `{"word_timestamps":[{"start":1,"end":2,"word":7}]}`,
			kind:     MalformedTranscription,
			field:    "word",
		},
		{
			name:     "no assets",
			metadata: `{"s":[]}`,
			raw:      `{}`,
			kind:     MissingMediaReference,
			field:    "assets[0].mp4_s3_path",
		},
		{
			name:     "assets empty",
			metadata: `{"assets":[]}`,
			raw:      `{}`,
			kind:     MissingMediaReference,
			field:    "assets[0].mp4_s3_path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := Assembler{}.AssembleBytes("r", []byte(tt.metadata), []byte(tt.raw))
			if rec != nil {
				t.Errorf("expected no record, got %+v", rec)
			}
			var ae *AssemblyError
			if !errors.As(err, &ae) {
				t.Fatalf("expected AssemblyError, got %v", err)
			}
			if ae.Kind != tt.kind || ae.Field != tt.field {
				t.Errorf("got kind=%s field=%s, want kind=%s field=%s", ae.Kind, ae.Field, tt.kind, tt.field)
			}
			if !errors.Is(err, &AssemblyError{Kind: tt.kind}) {
				t.Error("errors.Is did not match on kind")
			}
		})
	}
}

func TestAssembleInvalidJSON(t *testing.T) {
	_, err := Assembler{}.AssembleBytes("r", []byte(`{`), []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "metadata") {
		t.Errorf("expected metadata decode error, got %v", err)
	}
	var ae *AssemblyError
	if errors.As(err, &ae) {
		t.Error("decode failure should not be an AssemblyError")
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	var outputs [][]byte
	for i := 0; i < 5; i++ {
		rec, err := Assembler{}.AssembleBytes("rec-1", []byte(metadataDoc), []byte(rawDoc))
		if err != nil {
			t.Fatal(err)
		}
		out, err := Encode(rec)
		if err != nil {
			t.Fatal(err)
		}
		outputs = append(outputs, out)
	}
	for i := 1; i < len(outputs); i++ {
		if !bytes.Equal(outputs[0], outputs[i]) {
			t.Fatalf("run %d differs:\n%s\nvs\n%s", i, outputs[0], outputs[i])
		}
	}

	out := string(outputs[0])
	for _, s := range []string{`"event": "complete"`, `"bot_id": "rec-1"`, `"mp4": "https://bucket.example/rec-1.mp4"`} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %s:\n%s", s, out)
		}
	}
	if !strings.HasSuffix(out, "}\n") {
		t.Error("output should end with a newline")
	}
}

func TestEncodeEmptyRecord(t *testing.T) {
	out, err := Encode(&types.OutputRecord{RecordID: "r", MediaReference: "m"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), `"transcript": []`) || !strings.Contains(string(out), `"speakers": []`) {
		t.Errorf("empty slices should encode as []:\n%s", out)
	}
}

func TestMediaReferences(t *testing.T) {
	meta := map[string]any{
		"assets": []any{
			map[string]any{"mp4_s3_path": "a"},
			map[string]any{"mp4_s3_path": ""},
			map[string]any{"mp4_s3_path": "b"},
		},
	}
	if got := MediaReferences(meta); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("MediaReferences = %v", got)
	}
}

func TestSpeakersSortedAndDistinct(t *testing.T) {
	chunks := []types.AttributedChunk{
		{Speaker: "Zed", Words: []types.WordToken{{Word: "a"}}},
		{Speaker: "Amy", Words: []types.WordToken{{Word: "b"}}},
		{Speaker: "Zed", Words: []types.WordToken{{Word: "c"}}},
		{Speaker: "Nobody"},
	}
	if got := Speakers(chunks); !reflect.DeepEqual(got, []string{"Amy", "Zed"}) {
		t.Errorf("Speakers = %v", got)
	}
}
