package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"go.uber.org/zap"
)

const extractionPrompt = `Extract cause-effect relationships from the text below.
Respond with ONLY a JSON array of objects, one per relationship:
[{"cause": "...", "effect": "...", "confidence": 0.0-1.0}]
Return [] if the text contains no causal relationships.

Text:
%s`

// extractLLM runs structured extraction over the text one chunk at a time.
// Chunk-level failures (generation errors, unparseable responses) are logged
// and contribute zero triples; the remaining chunks still count.
func (e *Extractor) extractLLM(ctx context.Context, text string) []Triple {
	if e.generator == nil {
		return nil
	}

	best := make(map[string]Triple)
	var order []string

	for i, chunk := range chunkText(text, e.cfg.MaxChunkChars, e.tokens, e.cfg.MaxChunkTokens) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx); err != nil {
				e.logger.Warn("extraction rate limiter interrupted", zap.Error(err))
				break
			}
		}

		resp, err := e.generator.Generate(ctx, GenerateRequest{
			Prompt:        fmt.Sprintf(extractionPrompt, chunk),
			Temperature:   e.cfg.Temperature,
			MaxTokens:     e.cfg.MaxTokens,
			JSONMode:      true,
			JSONArrayMode: true,
		})
		if err != nil {
			e.logger.Warn("llm extraction request failed",
				zap.Int("chunk", i),
				zap.Error(err))
			continue
		}

		triples, err := e.parseTripleResponse(resp)
		if err != nil {
			e.logger.Warn("llm extraction response unparseable, skipping chunk",
				zap.Int("chunk", i),
				zap.Error(err))
			continue
		}

		// Dedupe by normalized (cause, effect), keeping the highest confidence.
		for _, t := range triples {
			key := tripleKey(t.Cause, t.Effect)
			prev, ok := best[key]
			if !ok {
				best[key] = t
				order = append(order, key)
				continue
			}
			if t.Confidence > prev.Confidence {
				best[key] = t
			}
		}
	}

	out := make([]Triple, 0, len(order))
	for _, key := range order {
		out = append(out, best[key])
	}
	return out
}

// parseTripleResponse decodes a model response into triples, tolerating the
// usual LLM JSON defects: prose around the array, single quotes, trailing
// commas and unquoted keys (repaired via jsonrepair), and alternate field
// names for cause/effect/confidence.
func (e *Extractor) parseTripleResponse(resp string) ([]Triple, error) {
	candidate := extractJSONArray(resp)
	if candidate == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var raw []map[string]any
	if err := json.Unmarshal([]byte(candidate), &raw); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(candidate)
		if repairErr != nil {
			return nil, fmt.Errorf("json repair failed: %w", repairErr)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("decode repaired response: %w", err)
		}
	}

	var triples []Triple
	for _, obj := range raw {
		cause := normalizeSpan(pickString(obj, "cause", "causes", "source", "subject", "from"))
		effect := normalizeSpan(pickString(obj, "effect", "target", "object", "to", "result"))
		if !validSpan(cause) || !validSpan(effect) {
			continue
		}
		confidence, ok := pickFloat(obj, "confidence", "conf", "score", "weight", "probability")
		if !ok {
			confidence = e.cfg.DefaultLLMConfidence
		}
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		triples = append(triples, Triple{Cause: cause, Effect: effect, Confidence: confidence})
	}
	return triples, nil
}

// extractJSONArray returns the outermost [...] span of s, or "" if none.
func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func pickString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func pickFloat(obj map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}
