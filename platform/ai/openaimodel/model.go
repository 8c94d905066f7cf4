// Package openaimodel adapts an OpenAI-compatible chat API to the ADK model.LLM
// interface and exposes the same provider's audio transcription.
package openaimodel

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
	"google.golang.org/adk/model"
	"google.golang.org/genai"

	"salesbot_backend/platform/apperr"
)

const (
	defaultModel              = "gpt-4o-mini"
	defaultTranscriptionModel = openai.Whisper1
	defaultMaxTokens          = 600
)

// Config for the chat model.
type Config struct {
	APIKey             string
	BaseURL            string
	Model              string
	TranscriptionModel string
	MaxTokens          int
	HTTPClient         *http.Client
}

// Model adapts an OpenAI-compatible endpoint to the ADK model.LLM interface.
type Model struct {
	config Config
	client *openai.Client
}

func NewModel(cfg Config) *Model {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = defaultTranscriptionModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	return &Model{config: cfg, client: newClient(cfg)}
}

func newClient(cfg Config) *openai.Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}
	return openai.NewClientWithConfig(clientCfg)
}

func (m *Model) Name() string {
	return m.config.Model
}

// GenerateContent yields exactly one response; streaming is not used.
func (m *Model) GenerateContent(ctx context.Context, req *model.LLMRequest, stream bool) iter.Seq2[*model.LLMResponse, error] {
	return func(yield func(*model.LLMResponse, error) bool) {
		resp, err := m.generate(ctx, req)
		yield(resp, err)
	}
}

func (m *Model) generate(ctx context.Context, req *model.LLMRequest) (*model.LLMResponse, error) {
	if req == nil {
		return nil, apperr.BadRequest("empty model request")
	}

	chatReq := openai.ChatCompletionRequest{
		Model:     m.config.Model,
		Messages:  convertMessages(req),
		MaxTokens: m.config.MaxTokens,
	}
	if req.Config != nil && req.Config.Temperature != nil {
		chatReq.Temperature = *req.Config.Temperature
	}

	resp, err := m.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify("chat completion", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: empty choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	parts := make([]*genai.Part, 0, 1)
	if text != "" {
		parts = append(parts, genai.NewPartFromText(text))
	}
	return &model.LLMResponse{
		Content: &genai.Content{
			Role:  genai.RoleModel,
			Parts: parts,
		},
	}, nil
}

func convertMessages(req *model.LLMRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Contents)+1)
	if req.Config != nil && req.Config.SystemInstruction != nil {
		if system := joinText(req.Config.SystemInstruction); system != "" {
			messages = append(messages, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			})
		}
	}

	for _, content := range req.Contents {
		if content == nil {
			continue
		}
		if msg, ok := convertContent(content); ok {
			messages = append(messages, msg)
		}
	}
	return messages
}

func convertContent(content *genai.Content) (openai.ChatCompletionMessage, bool) {
	role := roleForContent(content.Role)
	images := imageURLs(content)
	text := joinText(content)

	// Only user turns may carry images.
	if len(images) == 0 || role != openai.ChatMessageRoleUser {
		if text == "" {
			return openai.ChatCompletionMessage{}, false
		}
		return openai.ChatCompletionMessage{Role: role, Content: text}, true
	}

	parts := make([]openai.ChatMessagePart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, openai.ChatMessagePart{Type: openai.ChatMessagePartTypeText, Text: text})
	}
	for _, url := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: url, Detail: openai.ImageURLDetailAuto},
		})
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}, true
}

func roleForContent(role string) string {
	if role == "model" {
		return openai.ChatMessageRoleAssistant
	}
	return openai.ChatMessageRoleUser
}

func joinText(content *genai.Content) string {
	var builder strings.Builder
	for _, part := range content.Parts {
		if part == nil || strings.TrimSpace(part.Text) == "" {
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(part.Text)
	}
	return strings.TrimSpace(builder.String())
}

func imageURLs(content *genai.Content) []string {
	var urls []string
	for _, part := range content.Parts {
		if part == nil {
			continue
		}
		switch {
		case part.FileData != nil && part.FileData.FileURI != "" && isImage(part.FileData.MIMEType):
			urls = append(urls, part.FileData.FileURI)
		case part.InlineData != nil && len(part.InlineData.Data) > 0 && isImage(part.InlineData.MIMEType):
			encoded := base64.StdEncoding.EncodeToString(part.InlineData.Data)
			urls = append(urls, "data:"+part.InlineData.MIMEType+";base64,"+encoded)
		}
	}
	return urls
}

// isImage treats an unknown MIME type as an image so provider CDN links pass.
func isImage(mimeType string) bool {
	return mimeType == "" || strings.HasPrefix(mimeType, "image/")
}

// classify marks rate limits, server errors and network failures as transient.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError {
			return apperr.Transient(op, err)
		}
		return apperr.Rejected(op, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError {
			return apperr.Transient(op, err)
		}
		return apperr.Rejected(op, err)
	}

	return apperr.Transient(op, err)
}
