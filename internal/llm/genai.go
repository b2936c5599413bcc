package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// contentGenerator is the slice of *genai.Models the provider uses.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAIProvider generates text with Google's Gemini API.
type GenAIProvider struct {
	models contentGenerator
	model  string
}

// NewGenAIProvider creates a Gemini provider.
func NewGenAIProvider(ctx context.Context, apiKey, model string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIProvider{models: client.Models, model: model}, nil
}

func (p *GenAIProvider) Name() string  { return "genai" }
func (p *GenAIProvider) Model() string { return p.model }

func (p *GenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if req.Seed != nil {
		cfg.Seed = genai.Ptr(int32(*req.Seed))
	}

	contents := []*genai.Content{
		genai.NewContentFromText(req.Prompt, genai.RoleUser),
	}
	result, err := p.models.GenerateContent(ctx, p.model, contents, cfg)
	if err != nil {
		return nil, classifyGenAIError(ctx, err)
	}
	if len(result.Candidates) == 0 {
		return nil, NewTransientError(fmt.Errorf("GenAI returned no candidates"))
	}

	resp := &Response{
		Content:      result.Text(),
		Model:        p.model,
		Provider:     "genai",
		FinishReason: string(result.Candidates[0].FinishReason),
	}
	if u := result.UsageMetadata; u != nil {
		resp.Usage = TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return resp, nil
}

func classifyGenAIError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return NewFatalError(fmt.Errorf("GenAI generate: %w", ctx.Err()))
	}
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return NewTransientError(fmt.Errorf("GenAI generate failed: %w", err))
	}
	if code == 0 {
		return NewTransientError(fmt.Errorf("GenAI generate failed: %w", err))
	}
	if code != http.StatusOK {
		classified := classifyHTTPError(code, []byte(err.Error()))
		return fmt.Errorf("GenAI generate failed: %w", classified)
	}
	return NewFatalError(err)
}
