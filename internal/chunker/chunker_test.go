package chunker

import (
	"strings"
	"testing"
)

// stripSpace removes all whitespace so chunk concatenation can be compared
// against the input regardless of boundary trimming.
func stripSpace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func Test_Chunk_EmptyInput(t *testing.T) {
	t.Parallel()

	if got := Chunk("", 500); len(got) != 0 {
		t.Errorf("empty input: want no chunks, got %v", got)
	}
}

func Test_Chunk_SingleShortSentence(t *testing.T) {
	t.Parallel()

	got := Chunk("Metformin reduced HbA1c in adults.", 500)
	if len(got) != 1 {
		t.Fatalf("want 1 chunk, got %d", len(got))
	}
	if got[0] != "Metformin reduced HbA1c in adults." {
		t.Errorf("unexpected chunk: %q", got[0])
	}
}

func Test_Chunk_NoTerminatorTreatedAsOneSentence(t *testing.T) {
	t.Parallel()

	got := Chunk("no sentence boundary here at all", 10)
	if len(got) != 1 {
		t.Fatalf("want the whole text as one chunk, got %d chunks", len(got))
	}
	if got[0] != "no sentence boundary here at all" {
		t.Errorf("unexpected chunk: %q", got[0])
	}
}

func Test_Chunk_ReconstructsInput(t *testing.T) {
	t.Parallel()

	text := "First sentence here. Second one follows! A third, asking something? " +
		"Fourth statement with more words to push past the limit. Fifth and final."
	got := Chunk(text, 60)

	if len(got) < 2 {
		t.Fatalf("expected multiple chunks at size 60, got %d", len(got))
	}
	if stripSpace(strings.Join(got, "")) != stripSpace(text) {
		t.Errorf("concatenated chunks do not reconstruct input:\n got: %q\nwant: %q",
			strings.Join(got, " "), text)
	}
	for i, c := range got {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is empty after trimming", i)
		}
	}
}

func Test_Chunk_TrailingFragmentKept(t *testing.T) {
	t.Parallel()

	got := Chunk("A full sentence. And a trailing fragment without an end", 500)
	joined := strings.Join(got, "")
	if !strings.Contains(joined, "trailing fragment without an end") {
		t.Errorf("trailing fragment was dropped: %v", got)
	}
}

func Test_Chunk_OversizedSentenceStaysWhole(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 50) + "end."
	text := "Short. " + long + " Tail."
	got := Chunk(text, 30)

	found := false
	for _, c := range got {
		if strings.Contains(c, "word word") && strings.HasSuffix(c, "end.") {
			found = true
			if len(c) <= 30 {
				t.Errorf("oversized sentence unexpectedly fits the bound: %d chars", len(c))
			}
		}
		if strings.Contains(c, "end.") && strings.Contains(c, "Tail.") {
			t.Errorf("oversized sentence was merged with the next: %q", c)
		}
	}
	if !found {
		t.Errorf("oversized sentence was split or dropped: %v", got)
	}
}

func Test_Chunk_NonPositiveSizeOneChunkPerSentence(t *testing.T) {
	t.Parallel()

	text := "One. Two! Three?"
	for _, size := range []int{0, -1, -500} {
		got := Chunk(text, size)
		if len(got) != 3 {
			t.Errorf("maxChunkSize=%d: want 3 chunks (one per sentence), got %d: %v", size, len(got), got)
		}
	}
}

func Test_Chunk_SoftBoundRespectedForNormalSentences(t *testing.T) {
	t.Parallel()

	var sb strings.Builder
	for range 40 {
		sb.WriteString("A plain sentence of modest length goes right here. ")
	}
	got := Chunk(sb.String(), 500)

	if len(got) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(got))
	}
	for i, c := range got {
		// Each sentence is ~51 chars, so no chunk should overshoot by more
		// than one sentence.
		if len(c) > 500+60 {
			t.Errorf("chunk %d exceeds soft bound by more than a sentence: %d chars", i, len(c))
		}
	}
}
