// Package align merges speaker segments and word timestamps into
// speaker-attributed chunks in a single forward pass.
//
// Both inputs must already be ordered: segments by ascending offset and
// words by ascending start. Neither sequence is re-sorted here. When either
// ordering is violated the merge still terminates without panicking, but
// words may be attributed to the wrong speaker or not attributed at all.
//
// Lossy behavior, kept deliberately pending product confirmation: the word
// cursor only advances when a word is consumed. A word whose start lies
// before the current segment window (backend timestamp noise, or speech in
// a gap between labeled turns) is never attributed, and in the default mode
// it also stalls the cursor, so every word after it is left unattributed as
// well. Options.SkipUnmatched discards such words instead so later words can
// still match.
package align

import "github.com/codebuildervaibhav/bot-transcripts/internal/types"

// Options tunes the merge
type Options struct {
	// SkipUnmatched drops a word that precedes the current segment window
	// and keeps scanning, instead of stopping at it.
	SkipUnmatched bool
}

// Align attributes words to segments with the default options
func Align(segments []types.SpeakerSegment, words []types.WordToken) []types.AttributedChunk {
	return AlignWith(segments, words, Options{})
}

// AlignWith attributes words to segments in O(len(segments)+len(words)).
// Segments that absorb no word produce no chunk.
func AlignWith(segments []types.SpeakerSegment, words []types.WordToken, opts Options) []types.AttributedChunk {
	var chunks []types.AttributedChunk
	cursor := 0

	for _, seg := range segments {
		var chunk *types.AttributedChunk

		for cursor < len(words) {
			w := words[cursor]
			if !seg.Contains(w.Start) {
				if opts.SkipUnmatched && w.Start < seg.Offset {
					cursor++
					continue
				}
				break
			}
			if chunk == nil {
				chunk = &types.AttributedChunk{Speaker: seg.Speaker, Offset: seg.Offset}
			}
			chunk.Words = append(chunk.Words, w)
			cursor++
		}

		if chunk != nil {
			chunks = append(chunks, *chunk)
		}
	}

	return chunks
}

// Attributed counts the words carried by chunks
func Attributed(chunks []types.AttributedChunk) int {
	n := 0
	for _, c := range chunks {
		n += len(c.Words)
	}
	return n
}
