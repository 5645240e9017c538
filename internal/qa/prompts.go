package qa

import (
	"fmt"
	"strings"

	"github.com/evidara/paperqa-go/internal/rag"
)

// answerSystemPrompt constrains the model to the retrieved excerpts and to a
// machine-readable reply.
const answerSystemPrompt = `You are a research assistant answering questions about scientific papers.
Answer using ONLY the numbered excerpts provided. Do not use outside knowledge.
If the excerpts do not contain the answer, say so.

Respond with a JSON object of the form:
{"answer": "<your answer>", "citedIndices": [<numbers of the excerpts you relied on>]}

citedIndices must reference the excerpt numbering in the context.`

// buildContext renders the retrieved chunks as a numbered excerpt block,
// 1-indexed in rank order. titles maps paper IDs to display titles.
func buildContext(chunks []rag.ScoredChunk, titles map[string]string) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] From %q: %s", i+1, titles[c.PaperID], c.Text)
	}
	return b.String()
}

// buildAnswerPrompt assembles the user prompt from the context block and the
// question.
func buildAnswerPrompt(contextBlock, question string) string {
	return fmt.Sprintf("Excerpts from uploaded papers:\n\n%s\n\nQuestion: %s", contextBlock, question)
}
