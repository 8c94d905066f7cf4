package orchestrator

import (
	"context"
	"strings"

	"google.golang.org/adk/model"
	"google.golang.org/genai"
)

const defaultTemperature float32 = 0.4

// Replier produces the raw completion for one turn.
type Replier interface {
	Reply(ctx context.Context, p Prompt) (string, error)
}

// ReplierFunc adapts a function to Replier.
type ReplierFunc func(ctx context.Context, p Prompt) (string, error)

// Reply calls f.
func (f ReplierFunc) Reply(ctx context.Context, p Prompt) (string, error) {
	return f(ctx, p)
}

// ModelReplier sends prompts to an ADK model.
type ModelReplier struct {
	llm         model.LLM
	temperature float32
}

func NewModelReplier(llm model.LLM) *ModelReplier {
	return &ModelReplier{llm: llm, temperature: defaultTemperature}
}

func (r *ModelReplier) Reply(ctx context.Context, p Prompt) (string, error) {
	temperature := r.temperature
	req := &model.LLMRequest{
		Model:    r.llm.Name(),
		Contents: toContents(p),
		Config: &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{genai.NewPartFromText(p.System)}},
			Temperature:       &temperature,
		},
	}

	var text strings.Builder
	for resp, err := range r.llm.GenerateContent(ctx, req, false) {
		if err != nil {
			return "", err
		}
		if resp == nil || resp.Content == nil {
			continue
		}
		for _, part := range resp.Content.Parts {
			if part != nil && part.Text != "" {
				text.WriteString(part.Text)
			}
		}
	}
	return strings.TrimSpace(text.String()), nil
}

func toContents(p Prompt) []*genai.Content {
	contents := make([]*genai.Content, 0, len(p.Turns))
	for i, turn := range p.Turns {
		role := genai.RoleModel
		if turn.Inbound {
			role = genai.RoleUser
		}
		content := &genai.Content{Role: role, Parts: []*genai.Part{genai.NewPartFromText(turn.Text)}}
		if i == len(p.Turns)-1 && turn.Inbound {
			for _, url := range p.Images {
				content.Parts = append(content.Parts, &genai.Part{FileData: &genai.FileData{FileURI: url}})
			}
		}
		contents = append(contents, content)
	}
	return contents
}
