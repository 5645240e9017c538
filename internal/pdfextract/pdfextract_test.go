package pdfextract

import (
	"strings"
	"testing"
)

func Test_ExtractText_EmptyInput(t *testing.T) {
	t.Parallel()
	got, err := ExtractText(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty input must not error: %v", err)
	}
	if got != "" {
		t.Errorf("want empty text, got %q", got)
	}
}

func Test_ExtractText_NotAPDF(t *testing.T) {
	t.Parallel()
	if _, err := ExtractText(strings.NewReader("just some plain text")); err == nil {
		t.Error("want error for non-PDF input")
	}
}
