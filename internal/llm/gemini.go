package llm

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"

	genai "google.golang.org/genai"

	"blockflow/internal/block"
)

// GeminiGenerator streams block content from the Gemini API.
type GeminiGenerator struct {
	cli   *genai.Client
	model string
	rl    *rpsLimiter
}

func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	// Optional RPS limiter via env: LLM_RPS / LLM_BURST.
	var rps float64
	var burst int
	if v := os.Getenv("LLM_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			rps = f
		}
	}
	if v := os.Getenv("LLM_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			burst = n
		}
	}
	return &GeminiGenerator{
		cli:   cli,
		model: model,
		rl:    newRPSLimiter(rps, burst),
	}, nil
}

func (g *GeminiGenerator) Name() string { return "Gemini:" + g.model }

func (g *GeminiGenerator) Close() error {
	g.rl.Stop()
	return nil
}

// Generate streams the model response. Every delivered fragment is also
// accumulated locally so the returned text is exactly the concatenation
// of the chunks the caller observed.
func (g *GeminiGenerator) Generate(ctx context.Context, req Request, onChunk ChunkFunc) (string, error) {
	if err := g.rl.Acquire(ctx); err != nil {
		return "", err
	}

	full := buildPrompt(req)
	log.Printf("llm request (%s): %d bytes", req.BlockName, len(full))

	cfg := &genai.GenerateContentConfig{}
	if wantsJSON(req) {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.Constraints.MaxLength > 0 {
		// Rough chars-to-tokens conversion; the hard cap is enforced by
		// the prompt, this just bounds runaway streams.
		cfg.MaxOutputTokens = int32(req.Constraints.MaxLength/2 + 64)
	}

	var sb strings.Builder
	for resp, err := range g.cli.Models.GenerateContentStream(ctx, g.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}}, cfg) {
		if err != nil {
			return sb.String(), err
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			sb.WriteString(part.Text)
			if onChunk != nil {
				if err := onChunk(part.Text); err != nil {
					return sb.String(), err
				}
			}
		}
	}

	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}

func wantsJSON(req Request) bool {
	switch strings.ToLower(strings.TrimSpace(req.Handler)) {
	case block.HandlerIntent, block.HandlerResearch, block.HandlerSimulate,
		block.HandlerEvaluate, block.HandlerEvalRubric, block.HandlerEvalScoring:
		return true
	}
	return strings.EqualFold(strings.TrimSpace(req.Constraints.Format), "json")
}
