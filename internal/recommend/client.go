// Package recommend asks an OpenAI-compatible chat completions API for a breed recommendation
// based on a lifestyle description and a photo.
package recommend

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
	"time"

	"github.com/hyperjump/pawmatch/pkg/utils"
)

const chatPath = "/v1/chat/completions"

// conditionPrefix introduces the user's free text in the prompt.
const conditionPrefix = "Condition: "

// maxErrorBody bounds how much of an error response is kept in the returned error.
const maxErrorBody = 512

// ErrMissingAPIKey is returned when the client is enabled without credentials.
var ErrMissingAPIKey = errors.New("recommendation API key is not set")

// Options configures a Client.
type Options struct {
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client performs one stateless chat completion per recommendation.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	client       *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role string `json:"role"`
	// Content is a string for system messages and a list of parts for user messages.
	Content any `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// New creates a client. An API key is required.
func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o"
	}
	hc := opts.HTTPClient
	if hc == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL:      strings.TrimSuffix(opts.BaseURL, "/"),
		apiKey:       opts.APIKey,
		model:        opts.Model,
		systemPrompt: opts.SystemPrompt,
		client:       hc,
	}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// Recommend sends userText and the JPEG photo to the model and returns its trimmed answer.
func (c *Client) Recommend(ctx context.Context, userText string, jpegImage []byte) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: c.systemPrompt})
	}
	parts := []contentPart{{Type: "text", Text: conditionPrefix + userText}}
	if len(jpegImage) > 0 {
		parts = append(parts, contentPart{
			Type:     "image_url",
			ImageURL: &imageURL{URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(jpegImage)},
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: parts})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("recommend request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("recommend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("recommend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("recommend: %s returned %d: %s", c.model, resp.StatusCode, utils.Truncate(strings.TrimSpace(string(data)), 200))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", fmt.Errorf("recommend decode: %w", err)
	}
	if len(chat.Choices) == 0 {
		return "", errors.New("recommend: no choices in response")
	}
	return strings.TrimSpace(chat.Choices[0].Message.Content), nil
}
