package gpt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	YandexGPTEndpoint = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
)

// Message roles understood by the API.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Chatter produces the assistant reply to a conversation.
type Chatter interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Message represents a message in the conversation
type Message struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// CompletionOptions represents the options for the completion
type CompletionOptions struct {
	MaxTokens   int     `json:"maxTokens"`
	Temperature float64 `json:"temperature"`
}

// Request represents the request to the Yandex GPT API
type Request struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions CompletionOptions `json:"completionOptions"`
	Messages          []Message         `json:"messages"`
}

// Alternative represents an alternative response
type Alternative struct {
	Message Message `json:"message"`
	Status  string  `json:"status"`
}

// Response represents the response from the Yandex GPT API
type Response struct {
	Result struct {
		Alternatives []Alternative `json:"alternatives"`
		Usage        struct {
			InputTextTokens  string `json:"inputTextTokens"`
			CompletionTokens string `json:"completionTokens"`
			TotalTokens      string `json:"totalTokens"`
		} `json:"usage"`
		ModelVersion string `json:"modelVersion"`
	} `json:"result"`
}

// Client is a client for the Yandex GPT API
type Client struct {
	FolderID   string
	IAMToken   string
	Model      string
	Options    CompletionOptions
	Endpoint   string
	HTTPClient *http.Client
}

var _ Chatter = (*Client)(nil)

// NewClient creates a new Yandex GPT client
func NewClient(folderID, iamToken string) *Client {
	return &Client{
		FolderID: folderID,
		IAMToken: iamToken,
		Model:    "yandexgpt-lite",
		Options: CompletionOptions{
			MaxTokens:   256,
			Temperature: 0.6,
		},
		Endpoint:   YandexGPTEndpoint,
		HTTPClient: &http.Client{},
	}
}

// ModelURI returns the gpt:// URI of the configured model.
func (c *Client) ModelURI() string {
	return fmt.Sprintf("gpt://%s/%s/latest", c.FolderID, c.Model)
}

// Chat completes the conversation and returns the text of the first
// alternative.
func (c *Client) Chat(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.Complete(ctx, Request{
		ModelURI:          c.ModelURI(),
		CompletionOptions: c.Options,
		Messages:          messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Result.Alternatives) == 0 {
		return "", errors.New("completion returned no alternatives")
	}
	return strings.TrimSpace(resp.Result.Alternatives[0].Message.Text), nil
}

// Complete sends a completion request to the Yandex GPT API
func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.IAMToken)
	httpReq.Header.Set("x-folder-id", c.FolderID)

	resp, err := c.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response Response
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}
