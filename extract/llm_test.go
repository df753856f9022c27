package extract

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// scriptedGenerator returns canned responses in order, then repeats the last.
type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
	prompts   []string
}

func (g *scriptedGenerator) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, req.Prompt)
	if g.err != nil {
		return "", g.err
	}
	idx := g.calls - 1
	if idx >= len(g.responses) {
		idx = len(g.responses) - 1
	}
	return g.responses[idx], nil
}

func newLLMExtractor(t *testing.T, gen Generator) *Extractor {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Method = MethodLLM
	return NewExtractor(cfg, gen, nil)
}

func TestLLMExtractionCleanJSON(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{responses: []string{
		`[{"cause": "heavy rainfall", "effect": "urban flooding", "confidence": 0.9}]`,
	}}
	e := newLLMExtractor(t, gen)

	triples := e.Extract(context.Background(), "some document text", MethodLLM)
	if len(triples) != 1 {
		t.Fatalf("expected 1 triple, got %v", triples)
	}
	if triples[0].Cause != "heavy rainfall" || triples[0].Effect != "urban flooding" {
		t.Fatalf("unexpected triple: %+v", triples[0])
	}
	if triples[0].Confidence != 0.9 {
		t.Fatalf("expected confidence 0.9, got %v", triples[0].Confidence)
	}
}

func TestLLMExtractionToleratesMalformedJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		resp string
	}{
		{"prose around array", "Here are the relationships:\n[{\"cause\": \"smoking\", \"effect\": \"lung cancer\"}]\nDone."},
		{"single quotes", `[{'cause': 'smoking', 'effect': 'lung cancer'}]`},
		{"trailing comma", `[{"cause": "smoking", "effect": "lung cancer",},]`},
		{"unquoted keys", `[{cause: "smoking", effect: "lung cancer"}]`},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			gen := &scriptedGenerator{responses: []string{tt.resp}}
			e := newLLMExtractor(t, gen)
			triples := e.Extract(context.Background(), "text", MethodLLM)
			if findTriple(triples, "smoking", "lung cancer") == nil {
				t.Fatalf("tolerant parse failed for %s: %v", tt.name, triples)
			}
			// Confidence falls back to the configured default.
			if triples[0].Confidence != 0.7 {
				t.Fatalf("expected default confidence 0.7, got %v", triples[0].Confidence)
			}
		})
	}
}

func TestLLMExtractionAlternateFieldNames(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{responses: []string{
		`[{"source": "drought", "target": "crop failure", "score": 0.85}]`,
	}}
	e := newLLMExtractor(t, gen)
	triples := e.Extract(context.Background(), "text", MethodLLM)
	tr := findTriple(triples, "drought", "crop failure")
	if tr == nil {
		t.Fatalf("alternate field names not accepted: %v", triples)
	}
	if tr.Confidence != 0.85 {
		t.Fatalf("expected confidence 0.85, got %v", tr.Confidence)
	}
}

func TestLLMExtractionGarbageResponse(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{responses: []string{"I could not find any relationships, sorry!"}}
	e := newLLMExtractor(t, gen)
	if triples := e.Extract(context.Background(), "text", MethodLLM); len(triples) != 0 {
		t.Fatalf("expected empty result for garbage response, got %v", triples)
	}
}

func TestLLMExtractionGeneratorError(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{err: errors.New("upstream timeout")}
	e := newLLMExtractor(t, gen)
	// Errors never propagate; extraction degrades to an empty result.
	if triples := e.Extract(context.Background(), "text", MethodLLM); len(triples) != 0 {
		t.Fatalf("expected empty result on generator error, got %v", triples)
	}
}

func TestLLMExtractionNilGenerator(t *testing.T) {
	t.Parallel()

	e := newLLMExtractor(t, nil)
	if triples := e.Extract(context.Background(), "text", MethodLLM); triples != nil {
		t.Fatalf("expected nil result without generator, got %v", triples)
	}
}

func TestLLMExtractionDeduplicatesKeepingHighestConfidence(t *testing.T) {
	t.Parallel()

	gen := &scriptedGenerator{responses: []string{
		`[{"cause": "smoking", "effect": "cancer", "confidence": 0.6},
		  {"cause": "Smoking", "effect": "cancer.", "confidence": 0.9}]`,
	}}
	e := newLLMExtractor(t, gen)
	triples := e.Extract(context.Background(), "text", MethodLLM)
	if len(triples) != 1 {
		t.Fatalf("expected normalized dedup, got %v", triples)
	}
	if triples[0].Confidence != 0.9 {
		t.Fatalf("expected highest confidence kept, got %v", triples[0].Confidence)
	}
}

func TestLLMExtractionChunksLongInput(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Method = MethodLLM
	cfg.MaxChunkChars = 200
	gen := &scriptedGenerator{responses: []string{`[]`}}
	e := NewExtractor(cfg, gen, nil)

	para := strings.Repeat("This is a filler sentence about nothing. ", 10)
	text := para + "\n\n" + para + "\n\n" + para
	e.Extract(context.Background(), text, MethodLLM)

	if gen.calls < 2 {
		t.Fatalf("expected multiple chunked requests, got %d", gen.calls)
	}
	for _, p := range gen.prompts {
		if len(p) > 200+len(extractionPrompt) {
			t.Fatalf("chunk exceeds budget: %d chars", len(p))
		}
	}
}

func TestHybridExtractionRulePriority(t *testing.T) {
	t.Parallel()

	// LLM returns a conflicting confidence for a rule-extracted pair plus one
	// novel pair; the rule version must win the collision.
	gen := &scriptedGenerator{responses: []string{
		`[{"cause": "smoking", "effect": "cancer", "confidence": 0.2},
		  {"cause": "asbestos exposure", "effect": "mesothelioma", "confidence": 0.95}]`,
	}}
	cfg := DefaultConfig()
	e := NewExtractor(cfg, gen, nil)

	triples := e.Extract(context.Background(), "Smoking causes cancer.", MethodHybrid)

	rule := findTriple(triples, "smoking", "cancer")
	if rule == nil || rule.Confidence != 0.8 {
		t.Fatalf("rule triple not prioritized: %v", triples)
	}
	if findTriple(triples, "asbestos exposure", "mesothelioma") == nil {
		t.Fatalf("novel llm triple missing: %v", triples)
	}
	if len(triples) != 2 {
		t.Fatalf("expected 2 triples, got %v", triples)
	}
}
