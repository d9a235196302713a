package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/councilgen/internal/domain"
)

// ImageService generates images through an OpenAI-compatible images API.
type ImageService struct {
	client   *resty.Client
	model    string
	endpoint string
}

// ImageConfig holds configuration for the image service.
type ImageConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// NewImageService creates a new image service.
// Parameters:
//   - cfg: image configuration including model, API key and retry policy.
//
// Returns:
//   - *ImageService: initialized image client wrapper.
func NewImageService(cfg *ImageConfig) *ImageService {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)
	configureThrottleRetry(client, cfg.RetryCount)

	return &ImageService{
		client:   client,
		model:    cfg.Model,
		endpoint: strings.TrimRight(baseURL, "/") + "/images/generations",
	}
}

// GetModel returns the model name being used.
func (s *ImageService) GetModel() string {
	return s.model
}

type imageRequest struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	Size           string `json:"size"`
	N              int    `json:"n"`
	Style          string `json:"style,omitempty"`
	ResponseFormat string `json:"response_format"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// Generate renders one image and returns its encoded bytes.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: the full image prompt.
//   - dims: requested dimensions, mapped to the nearest supported size.
//   - style: requested rendering style.
//
// Returns:
//   - []byte: encoded image.
//   - error: non-nil if the API request fails after retries.
func (s *ImageService) Generate(ctx context.Context, prompt string, dims domain.Dimensions, style domain.ImageStyle) ([]byte, error) {
	req := imageRequest{
		Model:          s.model,
		Prompt:         prompt,
		Size:           supportedSize(dims),
		N:              1,
		Style:          apiStyle(style),
		ResponseFormat: "b64_json",
	}

	var resp imageResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call image API: %w", err)
	}
	if err := checkStatus("image", httpResp, resp.Error); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no image in response (status: %d)", httpResp.StatusCode())
	}

	if b64 := resp.Data[0].B64JSON; b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		return data, nil
	}
	if url := resp.Data[0].URL; url != "" {
		download, err := s.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, fmt.Errorf("download image: %w", err)
		}
		if !download.IsSuccess() {
			return nil, fmt.Errorf("download image: HTTP %d", download.StatusCode())
		}
		return download.Body(), nil
	}
	return nil, fmt.Errorf("image response has neither data nor url")
}

// supportedSize maps arbitrary dimensions onto the square, landscape and
// portrait sizes the images API accepts.
func supportedSize(dims domain.Dimensions) string {
	ratio := dims.AspectRatio()
	switch {
	case ratio > 1.2:
		return "1792x1024"
	case ratio > 0 && ratio < 0.83:
		return "1024x1792"
	default:
		return "1024x1024"
	}
}

func apiStyle(style domain.ImageStyle) string {
	if style == domain.ImageStylePhoto {
		return "natural"
	}
	return "vivid"
}
