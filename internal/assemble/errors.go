package assemble

import "fmt"

// ErrorKind classifies why a record could not be assembled
type ErrorKind string

const (
	MalformedMetadata      ErrorKind = "malformed_metadata"
	MissingMediaReference  ErrorKind = "missing_media_reference"
	MalformedTranscription ErrorKind = "malformed_transcription"
)

// AssemblyError reports the first required field that was absent or of the
// wrong type. Index is the position of the offending node among the nodes
// located by the structural search, or -1 when it does not apply.
type AssemblyError struct {
	Kind     ErrorKind
	RecordID string
	Field    string
	Index    int
}

func (e *AssemblyError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("record %s: %s: field %q missing or invalid at node %d", e.RecordID, e.Kind, e.Field, e.Index)
	}
	return fmt.Sprintf("record %s: %s: field %q missing or invalid", e.RecordID, e.Kind, e.Field)
}

// Is matches another AssemblyError of the same kind, so callers can test
// with errors.Is(err, &AssemblyError{Kind: MalformedMetadata}).
func (e *AssemblyError) Is(target error) bool {
	t, ok := target.(*AssemblyError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}
