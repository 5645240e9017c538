// Package chunker splits raw document text into bounded-size passages for
// embedding and retrieval. Splitting preserves sentence boundaries: a chunk
// never ends mid-sentence, so a single sentence longer than the size limit
// is emitted as its own oversized chunk. The size bound is soft, sentence
// atomicity is hard.
package chunker

import (
	"strings"
)

// DefaultMaxChunkSize is the standard soft character bound per chunk.
const DefaultMaxChunkSize = 500

// Chunk splits text into sentence-atomic passages of at most maxChunkSize
// characters (soft bound). Sentences are accumulated greedily: when appending
// the next sentence would push the buffer past maxChunkSize and the buffer is
// non-empty, the buffer is flushed as a chunk (whitespace-trimmed) and the
// sentence starts a new buffer.
//
// Empty input yields an empty slice. maxChunkSize <= 0 degenerates to one
// chunk per sentence. Concatenating the returned chunks reconstructs the
// input text modulo the trimming at chunk boundaries.
func Chunk(text string, maxChunkSize int) []string {
	if text == "" {
		return nil
	}

	sentences := splitSentences(text)

	var chunks []string
	var current string

	for _, sentence := range sentences {
		if len(current)+len(sentence) > maxChunkSize && len(current) > 0 {
			if flushed := strings.TrimSpace(current); flushed != "" {
				chunks = append(chunks, flushed)
			}
			current = sentence
		} else {
			current += sentence
		}
	}

	if flushed := strings.TrimSpace(current); flushed != "" {
		chunks = append(chunks, flushed)
	}

	return chunks
}

// splitSentences cuts text after each run of '.', '!', or '?', keeping the
// terminators with the sentence. A trailing fragment without a terminator is
// returned as a final sentence so no input text is ever lost.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	i := 0
	for i < len(text) {
		if !isTerminator(text[i]) {
			i++
			continue
		}
		for i < len(text) && isTerminator(text[i]) {
			i++
		}
		sentences = append(sentences, text[start:i])
		start = i
	}
	if start < len(text) {
		sentences = append(sentences, text[start:])
	}
	return sentences
}

func isTerminator(b byte) bool {
	return b == '.' || b == '!' || b == '?'
}
