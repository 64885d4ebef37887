package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"videoscribe/internal/sampler"
	"videoscribe/pkg/httputil"
)

const (
	defaultTimeout = 120 * time.Second

	roleSystem = "system"
	roleUser   = "user"

	systemPrompt = "You are a helpful assistant that analyzes video content."

	// The frames are attached before this text, in chronological order.
	instruction = "The above images are a sequence of frames from a video, " +
		"presented in chronological order. Please describe the main activities, " +
		"objects, and scene changes visible across these frames, and provide a " +
		"concise summary of what happens in the video. Focus on narrative flow " +
		"and key events."
)

// Client sends one multimodal chat-completion request per video to an
// OpenAI-compatible endpoint and extracts the text answer. It holds no state
// across calls; concurrent use is safe.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	timeout    time.Duration
	httpClient *httputil.RetryClient
}

type Options struct {
	BaseURL   string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Retry     httputil.RetryConfig

	// HTTPClient overrides the underlying transport, mainly for tests.
	HTTPClient *http.Client
}

type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type request struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type response struct {
	Choices []choice  `json:"choices"`
	Error   *apiError `json:"error,omitempty"`
}

type choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func NewClient(apiKey string, opts Options) *Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
		timeout:    timeout,
		httpClient: httputil.NewRetryClient(opts.HTTPClient, opts.Retry),
	}
}

// Describe sends the frames in ascending index order, followed by the fixed
// instruction, and returns the model's text answer. The frame ordering
// carries the temporal sequence and is preserved exactly.
func (c *Client) Describe(ctx context.Context, frames []sampler.Frame) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("%w: no frames to describe", ErrEmptyResponse)
	}
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrAuth)
	}

	data, err := json.Marshal(c.buildRequest(frames))
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.doRequest(ctx, data)
	if err != nil {
		return "", err
	}

	return parseResponse(body)
}

func (c *Client) buildRequest(frames []sampler.Frame) request {
	parts := make([]contentPart, 0, len(frames)+1)
	for _, frame := range frames {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: dataURL(frame.Data)},
		})
	}
	parts = append(parts, contentPart{Type: "text", Text: instruction})

	return request{
		Model: c.model,
		Messages: []message{
			{Role: roleSystem, Content: systemPrompt},
			{Role: roleUser, Content: parts},
		},
		MaxTokens: c.maxTokens,
	}
}

func (c *Client) doRequest(ctx context.Context, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrTransport, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: status %d: %s", ErrAuth, resp.StatusCode, snippet(body))
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: retries exhausted: %s", ErrRateLimit, snippet(body))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, snippet(body))
	}

	return body, nil
}

// parseResponse extracts the first well-formed text answer. Missing choices,
// empty content, and answers cut off at the token limit all count as empty
// responses rather than partial results.
func parseResponse(body []byte) (string, error) {
	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: parse response: %v", ErrEmptyResponse, err)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrUpstream, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrEmptyResponse)
	}

	answer := resp.Choices[0]
	if answer.FinishReason == "length" {
		return "", fmt.Errorf("%w: answer truncated at token limit", ErrEmptyResponse)
	}
	if answer.Message.Content == "" {
		return "", fmt.Errorf("%w: empty content", ErrEmptyResponse)
	}

	return answer.Message.Content, nil
}

func dataURL(jpeg []byte) string {
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpeg)
}

func snippet(body []byte) string {
	const max = 200
	if len(body) > max {
		body = body[:max]
	}
	return string(body)
}
