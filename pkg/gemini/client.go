// Package gemini wraps the Gemini generative model for the structured JSON
// calls made by the classifier and transcriber adapters.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultModel = "gemini-1.5-flash"

// Request is a single multimodal prompt. Data is optional inline media.
type Request struct {
	SystemPrompt string
	Prompt       string
	MIMEType     string
	Data         []byte
}

// Generator produces a raw model response for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type Client struct {
	client      *genai.Client
	modelName   string
	temperature float32
}

func NewClient(ctx context.Context, apiKey, modelName string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: api key is required")
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	if modelName == "" {
		modelName = defaultModel
	}
	return &Client{client: cl, modelName: modelName, temperature: 0.2}, nil
}

func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

// Generate asks the model for a JSON response.
func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	m := c.client.GenerativeModel(c.modelName)
	m.SetTemperature(c.temperature)
	m.ResponseMIMEType = "application/json"
	if req.SystemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemPrompt)},
		}
	}

	parts := make([]genai.Part, 0, 2)
	if len(req.Data) > 0 {
		parts = append(parts, genai.Blob{MIMEType: req.MIMEType, Data: req.Data})
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String(), nil
}

var _ Generator = (*Client)(nil)
