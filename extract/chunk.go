package extract

import (
	"regexp"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

var paragraphSeparator = regexp.MustCompile(`\n\s*\n`)

// tokenCounter counts tokens with tiktoken, falling back to the len/4
// character estimate when the encoding data is unavailable.
type tokenCounter struct {
	enc    *tiktoken.Tiktoken
	logger *zap.Logger
}

func newTokenCounter(logger *zap.Logger) *tokenCounter {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, using character estimate",
			zap.Error(err))
		enc = nil
	}
	return &tokenCounter{enc: enc, logger: logger}
}

func (c *tokenCounter) Count(text string) int {
	if c == nil || c.enc == nil {
		return len(text) / 4
	}
	return len(c.enc.Encode(text, nil, nil))
}

// chunkText splits text into chunks of at most maxChars characters (and, when
// counter is non-nil and maxTokens > 0, at most maxTokens tokens), preferring
// paragraph boundaries, then sentence boundaries, so that no sentence is
// truncated mid-way unless it alone exceeds the budget.
func chunkText(text string, maxChars int, counter *tokenCounter, maxTokens int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	fits := func(s string) bool {
		if len(s) > maxChars {
			return false
		}
		if counter != nil && maxTokens > 0 && counter.Count(s) > maxTokens {
			return false
		}
		return true
	}

	if fits(text) {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	appendPiece := func(piece, sep string) {
		if current.Len() == 0 {
			current.WriteString(piece)
			return
		}
		if fits(current.String() + sep + piece) {
			current.WriteString(sep)
			current.WriteString(piece)
			return
		}
		flush()
		current.WriteString(piece)
	}

	for _, para := range paragraphSeparator.Split(text, -1) {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if fits(para) {
			appendPiece(para, "\n\n")
			continue
		}
		// Paragraph over budget: pack sentence by sentence.
		for _, sentence := range splitSentences(para) {
			if fits(sentence) {
				appendPiece(sentence, " ")
				continue
			}
			// A single oversized sentence gets hard-sliced as a last resort.
			flush()
			for _, slice := range hardSlice(sentence, maxChars) {
				chunks = append(chunks, slice)
			}
		}
	}
	flush()
	return chunks
}

func hardSlice(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}
	var slices []string
	for len(text) > maxChars {
		slices = append(slices, text[:maxChars])
		text = text[maxChars:]
	}
	if text != "" {
		slices = append(slices, text)
	}
	return slices
}
