package llm

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/raphaelgruber/chatsync-go/internal/config"
)

const defaultImagesURL = "https://api.openai.com/v1/images/generations"

// ImageGenerator calls the OpenAI images endpoint.
type ImageGenerator struct {
	endpoint   string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewImageGenerator creates a generator. Image generation is only offered by
// the OpenAI provider, so it needs an OpenAI key regardless of LLMProvider.
func NewImageGenerator(cfg config.Config) (*ImageGenerator, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("OpenAI API key required")
	}
	return &ImageGenerator{
		endpoint:   defaultImagesURL,
		apiKey:     cfg.OpenAIAPIKey,
		model:      cfg.ImageModel,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}, nil
}

type imageRequest struct {
	Model      string `json:"model"`
	Prompt     string `json:"prompt"`
	N          int    `json:"n"`
	Size       string `json:"size,omitempty"`
	Quality    string `json:"quality,omitempty"`
	Background string `json:"background,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate returns the generated image as base64 data, or a URL for models
// that answer with one.
func (g *ImageGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := imageRequest{Model: g.model, Prompt: prompt, N: 1}
	if strings.HasPrefix(g.model, "gpt-image") {
		req.Size = "auto"
		req.Quality = "low"
		req.Background = "transparent"
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var out imageResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := resp.Status
		if out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return "", fmt.Errorf("generate image: %w", wrapFatalError(fmt.Errorf("HTTP %d: %s", resp.StatusCode, msg)))
	}
	if len(out.Data) == 0 {
		return "", fmt.Errorf("generate image: no image returned")
	}
	if out.Data[0].B64JSON != "" {
		return out.Data[0].B64JSON, nil
	}
	if out.Data[0].URL != "" {
		return out.Data[0].URL, nil
	}
	return "", fmt.Errorf("generate image: empty image")
}
