package align

import (
	"reflect"
	"testing"

	"github.com/codebuildervaibhav/bot-transcripts/internal/types"
)

func seg(speaker string, offset, duration float64) types.SpeakerSegment {
	return types.SpeakerSegment{Speaker: speaker, Offset: offset, Duration: duration}
}

func word(start, end float64, text string) types.WordToken {
	return types.WordToken{Start: start, End: end, Word: text}
}

func TestAlign(t *testing.T) {
	tests := []struct {
		name     string
		segments []types.SpeakerSegment
		words    []types.WordToken
		want     []types.AttributedChunk
	}{
		{
			name:     "two speakers",
			segments: []types.SpeakerSegment{seg("A", 0, 10), seg("B", 10, 5)},
			words:    []types.WordToken{word(2, 3, "hi"), word(11, 12, "there")},
			want: []types.AttributedChunk{
				{Speaker: "A", Offset: 0, Words: []types.WordToken{word(2, 3, "hi")}},
				{Speaker: "B", Offset: 10, Words: []types.WordToken{word(11, 12, "there")}},
			},
		},
		{
			name:     "window end is exclusive",
			segments: []types.SpeakerSegment{seg("A", 0, 10), seg("B", 10, 5)},
			words:    []types.WordToken{word(9.9, 10, "late"), word(10, 10.5, "edge")},
			want: []types.AttributedChunk{
				{Speaker: "A", Offset: 0, Words: []types.WordToken{word(9.9, 10, "late")}},
				{Speaker: "B", Offset: 10, Words: []types.WordToken{word(10, 10.5, "edge")}},
			},
		},
		{
			name:     "segment without words emits no chunk",
			segments: []types.SpeakerSegment{seg("A", 0, 5), seg("B", 5, 5), seg("C", 10, 5)},
			words:    []types.WordToken{word(1, 2, "one"), word(11, 12, "two")},
			want: []types.AttributedChunk{
				{Speaker: "A", Offset: 0, Words: []types.WordToken{word(1, 2, "one")}},
				{Speaker: "C", Offset: 10, Words: []types.WordToken{word(11, 12, "two")}},
			},
		},
		{
			name:     "words after last segment are dropped",
			segments: []types.SpeakerSegment{seg("A", 0, 5)},
			words:    []types.WordToken{word(1, 2, "in"), word(6, 7, "out")},
			want: []types.AttributedChunk{
				{Speaker: "A", Offset: 0, Words: []types.WordToken{word(1, 2, "in")}},
			},
		},
		{
			name:     "gap word stalls the cursor",
			segments: []types.SpeakerSegment{seg("A", 0, 5), seg("B", 10, 5)},
			words:    []types.WordToken{word(1, 2, "in"), word(7, 8, "gap"), word(11, 12, "lost")},
			want: []types.AttributedChunk{
				{Speaker: "A", Offset: 0, Words: []types.WordToken{word(1, 2, "in")}},
			},
		},
		{
			name:     "no segments",
			segments: nil,
			words:    []types.WordToken{word(1, 2, "x")},
			want:     nil,
		},
		{
			name:     "no words",
			segments: []types.SpeakerSegment{seg("A", 0, 5)},
			words:    nil,
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Align(tt.segments, tt.words)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Align() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestAlignSkipUnmatched(t *testing.T) {
	segments := []types.SpeakerSegment{seg("A", 0, 5), seg("B", 10, 5)}
	words := []types.WordToken{word(1, 2, "in"), word(7, 8, "gap"), word(11, 12, "kept")}

	got := AlignWith(segments, words, Options{SkipUnmatched: true})
	want := []types.AttributedChunk{
		{Speaker: "A", Offset: 0, Words: []types.WordToken{word(1, 2, "in")}},
		{Speaker: "B", Offset: 10, Words: []types.WordToken{word(11, 12, "kept")}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("AlignWith() = %+v, want %+v", got, want)
	}
}

func TestAlignPreservesOrderAndNeverDuplicates(t *testing.T) {
	segments := []types.SpeakerSegment{seg("A", 0, 3), seg("B", 3, 3), seg("A", 6, 3)}
	var words []types.WordToken
	for i := 0; i < 18; i++ {
		start := float64(i) * 0.5
		words = append(words, word(start, start+0.4, "w"))
	}

	chunks := Align(segments, words)
	if got := Attributed(chunks); got != len(words) {
		t.Fatalf("attributed %d words, want %d", got, len(words))
	}

	idx := 0
	for _, c := range chunks {
		for _, w := range c.Words {
			if w != words[idx] {
				t.Fatalf("word %d out of order: got %+v want %+v", idx, w, words[idx])
			}
			idx++
		}
	}

	again := Align(segments, words)
	if !reflect.DeepEqual(chunks, again) {
		t.Error("Align is not deterministic")
	}
}

func TestAlignUnorderedInputDoesNotPanic(t *testing.T) {
	segments := []types.SpeakerSegment{seg("B", 10, 5), seg("A", 0, 5)}
	words := []types.WordToken{word(12, 13, "b"), word(1, 2, "a"), word(3, 4, "a2")}

	chunks := Align(segments, words)
	if got := Attributed(chunks); got > len(words) {
		t.Errorf("attributed %d words from %d inputs", got, len(words))
	}
}
