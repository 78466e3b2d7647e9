// Package ingest turns extracted document passages into indexed chunks.
package ingest

import (
	"strings"
	"unicode"

	"github.com/clearlane/htsnav/internal/domain"
)

// Chunk splits a passage into sentence-bounded chunks of up to maxSentences
// sentences each. Tables are kept whole regardless of length; splitting a
// table destroys its row alignment.
func Chunk(p domain.Passage, maxSentences int) []domain.Chunk {
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return nil
	}

	if p.IsTable || maxSentences <= 0 {
		return []domain.Chunk{domain.NewChunk(p, text)}
	}

	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil
	}

	chunks := make([]domain.Chunk, 0, (len(sentences)+maxSentences-1)/maxSentences)
	for i := 0; i < len(sentences); i += maxSentences {
		end := i + maxSentences
		if end > len(sentences) {
			end = len(sentences)
		}
		chunks = append(chunks, domain.NewChunk(p, strings.Join(sentences[i:end], " ")))
	}
	return chunks
}

// splitSentences breaks text on terminal punctuation followed by whitespace
// and an uppercase or digit start. Abbreviation handling is deliberately
// minimal; chunk boundaries only need to be stable, not linguistically exact.
func splitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0

	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		// consume trailing closers like quotes or parens
		j := i + 1
		for j < len(runes) && (runes[j] == '"' || runes[j] == '\'' || runes[j] == ')') {
			j++
		}
		if j >= len(runes) {
			break
		}
		if !unicode.IsSpace(runes[j]) {
			continue
		}
		// boundary confirmed only when a new sentence actually starts
		k := j
		for k < len(runes) && unicode.IsSpace(runes[k]) {
			k++
		}
		if k >= len(runes) || !(unicode.IsUpper(runes[k]) || unicode.IsDigit(runes[k])) {
			continue
		}

		if s := strings.TrimSpace(string(runes[start:j])); s != "" {
			sentences = append(sentences, s)
		}
		start = k
		i = k - 1
	}

	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}
