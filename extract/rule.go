package extract

import (
	"regexp"
	"strings"
)

// causalPattern binds a compiled sentence pattern to the capture groups that
// hold the cause and effect spans.
type causalPattern struct {
	re        *regexp.Regexp
	causeIdx  int
	effectIdx int
}

// Ordered pattern list. Conditional and passive forms run before the generic
// verb pattern so that e.g. "X is caused by Y" is not mis-parsed as an active
// "caused" clause. The first matching pattern wins per sentence.
var causalPatterns = []causalPattern{
	{re: regexp.MustCompile(`(?i)^if\s+(.+?),\s*(?:then\s+)?(.+)$`), causeIdx: 1, effectIdx: 2},
	{re: regexp.MustCompile(`(?i)^because\s+of\s+(.+?),\s*(.+)$`), causeIdx: 1, effectIdx: 2},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(?:is|are|was|were)\s+caused\s+by\s+(.+)$`), causeIdx: 2, effectIdx: 1},
	{re: regexp.MustCompile(`(?i)^(.+?)\s+(?:causes|caused|cause|leads\s+to|lead\s+to|led\s+to|results\s+in|result\s+in|resulted\s+in|contributes\s+to|contribute\s+to|contributed\s+to|influences|influenced|influence|triggers|triggered|trigger|induces|induced|induce|drives|drove|drive)\s+(.+)$`), causeIdx: 1, effectIdx: 2},
}

var (
	whitespacePattern   = regexp.MustCompile(`\s+`)
	trailingPunctuation = regexp.MustCompile(`[\s.,;:!?'")\]]+$`)
	sentenceTerminator  = regexp.MustCompile(`[.!?]+(?:\s+|$)`)
)

// stopwords covers determiners, relative pronouns and other function words
// stripped from span heads and rejected as single-token spans.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true, "but": true,
	"if": true, "then": true, "of": true, "in": true, "on": true, "at": true,
	"to": true, "for": true, "with": true, "by": true, "from": true, "as": true,
	"is": true, "are": true, "was": true, "were": true, "be": true, "been": true,
	"it": true, "its": true, "this": true, "that": true, "these": true,
	"those": true, "which": true, "who": true, "whom": true, "what": true,
	"when": true, "where": true, "why": true, "how": true, "not": true,
	"no": true, "so": true, "such": true, "there": true, "they": true,
	"their": true, "we": true, "you": true, "he": true, "she": true,
	"his": true, "her": true, "him": true,
}

// leadingStripwords are removed from the front of a candidate span.
var leadingStripwords = map[string]bool{
	"a": true, "an": true, "the": true, "that": true, "which": true,
	"who": true, "whom": true, "this": true, "these": true, "those": true,
	"it": true, "its": true, "their": true,
}

// abbreviations whose trailing period must not terminate a sentence.
var abbreviations = map[string]bool{
	"dr": true, "mr": true, "mrs": true, "ms": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"approx": true, "dept": true, "fig": true, "inc": true, "ltd": true,
	"co": true, "e.g": true, "i.e": true, "al": true,
}

// extractRules applies the causal surface patterns to every sentence of text.
func (e *Extractor) extractRules(text string) []Triple {
	var triples []Triple
	seen := make(map[string]bool)

	for _, sentence := range splitSentences(text) {
		cause, effect, ok := matchCausalSentence(sentence)
		if !ok {
			continue
		}

		confidence := e.cfg.BaseConfidence
		if len(cause) < 5 || len(effect) < 5 {
			confidence = e.cfg.ShortSpanConfidence
		}

		key := tripleKey(cause, effect)
		if seen[key] {
			continue
		}
		seen[key] = true
		triples = append(triples, Triple{Cause: cause, Effect: effect, Confidence: confidence})
	}
	return triples
}

// matchCausalSentence tries the ordered pattern list against one sentence and
// returns the normalized, validated cause/effect spans.
func matchCausalSentence(sentence string) (cause, effect string, ok bool) {
	sentence = strings.TrimSpace(sentence)
	if sentence == "" {
		return "", "", false
	}

	for _, p := range causalPatterns {
		m := p.re.FindStringSubmatch(sentence)
		if m == nil {
			continue
		}
		cause = normalizeSpan(m[p.causeIdx])
		effect = normalizeSpan(m[p.effectIdx])
		if validSpan(cause) && validSpan(effect) {
			return cause, effect, true
		}
	}
	return "", "", false
}

// normalizeSpan lowercases, collapses whitespace, strips trailing punctuation
// and removes leading determiners/relative pronouns.
func normalizeSpan(span string) string {
	span = whitespacePattern.ReplaceAllString(span, " ")
	span = strings.ToLower(strings.TrimSpace(span))
	span = trailingPunctuation.ReplaceAllString(span, "")

	tokens := strings.Fields(span)
	for len(tokens) > 1 && leadingStripwords[tokens[0]] {
		tokens = tokens[1:]
	}
	return strings.Join(tokens, " ")
}

// validSpan rejects spans shorter than 3 characters and bare stopwords.
func validSpan(span string) bool {
	if len(span) < 3 {
		return false
	}
	tokens := strings.Fields(span)
	if len(tokens) == 1 && stopwords[tokens[0]] {
		return false
	}
	return true
}

// splitSentences breaks text on sentence terminators, merging false splits
// after common abbreviations and single-letter initials.
func splitSentences(text string) []string {
	locs := sentenceTerminator.FindAllStringIndex(text, -1)

	var sentences []string
	start := 0
	for _, loc := range locs {
		head := strings.TrimRight(text[start:loc[0]], " \t")
		last := lastWord(head)
		// "Dr." / "J." style terminators continue the current sentence.
		if loc[1] < len(text) && (abbreviations[last] || len(last) == 1) {
			continue
		}
		if s := strings.TrimSpace(text[start:loc[1]]); s != "" {
			sentences = append(sentences, s)
		}
		start = loc[1]
	}
	if rest := strings.TrimSpace(text[start:]); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func lastWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.Trim(fields[len(fields)-1], "("))
}
