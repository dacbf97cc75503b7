// Package imagegen generates images with Google's Gemini / Imagen models
package imagegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/richard-senior/xthread/internal/logger"
	"github.com/richard-senior/xthread/pkg/automation"
	"google.golang.org/genai"
)

// GenAIProvider implements automation.ImageProvider on top of the Google GenAI SDK.
// Gemini models are asked for TEXT+IMAGE output through GenerateContent; imagen-*
// models go through GenerateImages, which honours aspect ratio and person policy.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

var _ automation.ImageProvider = (*GenAIProvider)(nil)

// NewGenAIProvider creates a provider for the given model.
// baseURL may be empty to use the public endpoint.
func NewGenAIProvider(ctx context.Context, apiKey, model, baseURL string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GOOGLE_AI_API_KEY is not set")
	}
	config := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{
			BaseURL: baseURL,
		}
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIProvider{client: client, model: model}, nil
}

func (g *GenAIProvider) Model() string {
	return g.model
}

// GenerateImage returns the first image the model produces, or nil if it produced none
func (g *GenAIProvider) GenerateImage(ctx context.Context, req automation.ImageRequest) ([]byte, error) {
	if isImagenModel(g.model) {
		return g.generateWithImagen(ctx, req)
	}
	return g.generateWithGemini(ctx, req)
}

func (g *GenAIProvider) generateWithGemini(ctx context.Context, req automation.ImageRequest) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		// image capable Gemini models insist on TEXT alongside IMAGE
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	data := firstInlineImage(resp)
	if data == nil {
		logger.Warn("Gemini response carried no inline image data")
	}
	return data, nil
}

func (g *GenAIProvider) generateWithImagen(ctx context.Context, req automation.ImageRequest) ([]byte, error) {
	config := &genai.GenerateImagesConfig{
		NumberOfImages:   1,
		AspectRatio:      AspectRatio(req.AspectRatio),
		PersonGeneration: PersonGeneration(req.PersonGeneration),
	}

	resp, err := g.client.Models.GenerateImages(ctx, g.model, req.Prompt, config)
	if err != nil {
		return nil, fmt.Errorf("imagen request failed: %w", err)
	}
	if resp == nil {
		return nil, nil
	}
	for _, img := range resp.GeneratedImages {
		if img != nil && img.Image != nil && len(img.Image.ImageBytes) > 0 {
			return img.Image.ImageBytes, nil
		}
	}
	return nil, nil
}

// firstInlineImage walks the first candidate's parts for image bytes
func firstInlineImage(resp *genai.GenerateContentResponse) []byte {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil {
		return nil
	}
	for _, part := range c.Content.Parts {
		if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
			return part.InlineData.Data
		}
	}
	return nil
}

func isImagenModel(model string) bool {
	return strings.HasPrefix(strings.ToLower(model), "imagen")
}

// AspectRatio maps the tool's aspect names onto Imagen ratios
func AspectRatio(name string) string {
	switch name {
	case automation.AspectSquare:
		return "1:1"
	case automation.AspectPortrait:
		return "9:16"
	default:
		return "16:9"
	}
}

// PersonGeneration maps the tool's person policies onto the SDK's
func PersonGeneration(name string) genai.PersonGeneration {
	switch name {
	case automation.PersonAllowMinor:
		return genai.PersonGenerationAllowAll
	case automation.PersonDisallowAll:
		return genai.PersonGenerationDontAllow
	default:
		return genai.PersonGenerationAllowAdult
	}
}
