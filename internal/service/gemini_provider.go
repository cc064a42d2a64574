package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.0-flash-preview-image-generation"
)

// GeminiProvider calls the Gemini generateContent endpoint with image output enabled.
type GeminiProvider struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

var _ ImageProvider = (*GeminiProvider)(nil)

type GeminiOption func(*GeminiProvider)

func WithGeminiBaseURL(url string) GeminiOption {
	return func(p *GeminiProvider) {
		if url != "" {
			p.baseURL = strings.TrimRight(url, "/")
		}
	}
}

func WithGeminiModel(model string) GeminiOption {
	return func(p *GeminiProvider) {
		if model != "" {
			p.model = model
		}
	}
}

func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(p *GeminiProvider) { p.httpClient = c }
}

func NewGeminiProvider(apiKey string, opts ...GeminiOption) *GeminiProvider {
	p := &GeminiProvider{
		apiKey:     apiKey,
		baseURL:    defaultGeminiBaseURL,
		model:      defaultGeminiModel,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GeminiProvider) Name() string { return "gemini" }

type geminiRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inlineData,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	ModelVersion string `json:"modelVersion"`
}

func (p *GeminiProvider) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	body := p.buildRequest(req)
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal gemini request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, p.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create gemini request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		msg := "gemini request failed"
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			msg = "gemini request timed out"
		}
		return nil, &ProviderError{Kind: ProviderErrorTransient, Message: msg, Err: err}
	}
	defer httpResp.Body.Close()

	if err := mapGeminiHTTPError(httpResp); err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		if ctx.Err() != nil {
			return nil, &ProviderError{Kind: ProviderErrorTransient, Message: "gemini response interrupted", Err: err}
		}
		return nil, &ProviderError{Kind: ProviderErrorMalformed, Message: "decode gemini response", Err: err}
	}
	return p.extractImage(resp)
}

func (p *GeminiProvider) buildRequest(req ImageRequest) geminiRequest {
	text := req.Prompt
	if req.Width > 0 && req.Height > 0 {
		text = fmt.Sprintf("%s\nOutput a %dx%d image.", text, req.Width, req.Height)
	}
	parts := []geminiPart{{Text: text}}
	if len(req.Image) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiBlob{
			MimeType: req.ImageMIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Image),
		}})
	}
	return geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	}
}

func (p *GeminiProvider) extractImage(resp geminiResponse) (*ImageResult, error) {
	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return nil, &ProviderError{Kind: ProviderErrorSafety, Message: "prompt blocked: " + strings.ToLower(reason)}
	}
	if len(resp.Candidates) == 0 {
		return nil, &ProviderError{Kind: ProviderErrorMalformed, Message: "empty candidates in gemini response"}
	}

	cand := resp.Candidates[0]
	switch cand.FinishReason {
	case "SAFETY", "PROHIBITED_CONTENT", "IMAGE_SAFETY", "BLOCKLIST", "SPII":
		return nil, &ProviderError{Kind: ProviderErrorSafety, Message: "output blocked: " + strings.ToLower(cand.FinishReason)}
	}

	var text string
	for _, part := range cand.Content.Parts {
		if part.InlineData == nil || !strings.HasPrefix(part.InlineData.MimeType, "image/") {
			if part.Text != "" && text == "" {
				text = part.Text
			}
			continue
		}
		data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
		if err != nil {
			return nil, &ProviderError{Kind: ProviderErrorMalformed, Message: "decode inline image", Err: err}
		}
		if len(data) == 0 {
			continue
		}
		model := resp.ModelVersion
		if model == "" {
			model = p.model
		}
		return &ImageResult{Data: data, MIMEType: part.InlineData.MimeType, Model: model}, nil
	}

	msg := "no image in gemini response"
	if text != "" {
		msg = fmt.Sprintf("%s: %s", msg, truncate(text, 200))
	}
	return nil, &ProviderError{Kind: ProviderErrorMalformed, Message: msg}
}

func mapGeminiHTTPError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	detail := strings.TrimSpace(string(body))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &ProviderError{Kind: ProviderErrorQuota, Message: "gemini rate limit or quota exhausted"}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &ProviderError{Kind: ProviderErrorAuth, Message: "gemini rejected the API key"}
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(detail, "API_KEY_INVALID"):
		return &ProviderError{Kind: ProviderErrorAuth, Message: "gemini API key is invalid"}
	case resp.StatusCode >= 500:
		return &ProviderError{Kind: ProviderErrorTransient, Message: fmt.Sprintf("gemini returned %d", resp.StatusCode)}
	default:
		return &ProviderError{Kind: ProviderErrorMalformed, Message: fmt.Sprintf("gemini returned %d: %s", resp.StatusCode, truncate(detail, 200))}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
