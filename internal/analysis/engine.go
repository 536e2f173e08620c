// Package analysis invokes the language model on an evidence payload and
// reports what the call cost.
package analysis

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/chem-report/internal/evidence"
	"github.com/sells-group/chem-report/pkg/anthropic"
)

// minThinkingBudget is the smallest extended-thinking budget the API accepts.
const minThinkingBudget = 1024

// Generation is the raw outcome of one engine call.
type Generation struct {
	Text         string
	Model        string
	StopReason   string
	InputTokens  int64
	OutputTokens int64
}

// Engine turns a payload into free-form response text.
type Engine interface {
	Generate(ctx context.Context, payload *evidence.Payload, reasoningBudget int64) (*Generation, error)
}

// ClaudeEngine is an Engine backed by the Anthropic Messages API.
type ClaudeEngine struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature *float64
}

// NewClaudeEngine creates an engine calling model with a response cap of
// maxTokens. A nil temperature keeps the API default.
func NewClaudeEngine(client anthropic.Client, model string, maxTokens int64, temperature *float64) *ClaudeEngine {
	return &ClaudeEngine{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
	}
}

// Generate sends the payload as a single user message. A positive
// reasoningBudget enables extended thinking; the response cap is raised
// above the budget when needed and the temperature is left unset.
func (e *ClaudeEngine) Generate(ctx context.Context, payload *evidence.Payload, reasoningBudget int64) (*Generation, error) {
	req := anthropic.MessageRequest{
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Messages:    []anthropic.Message{toMessage(payload)},
		Temperature: e.temperature,
	}

	if reasoningBudget > 0 {
		if reasoningBudget < minThinkingBudget {
			reasoningBudget = minThinkingBudget
		}
		req.ThinkingBudget = reasoningBudget
		if req.MaxTokens <= reasoningBudget {
			req.MaxTokens = reasoningBudget + e.maxTokens
		}
		req.Temperature = nil
	}

	resp, err := e.client.CreateMessage(ctx, req)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, eris.New("analysis: nil response from engine")
	}

	model := resp.Model
	if model == "" {
		model = e.model
	}
	return &Generation{
		Text:         resp.Text(),
		Model:        model,
		StopReason:   resp.StopReason,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

// toMessage maps payload segments onto one multimodal user message,
// preserving segment order.
func toMessage(p *evidence.Payload) anthropic.Message {
	msg := anthropic.Message{Role: "user"}
	for _, s := range p.Segments() {
		switch s.Kind {
		case evidence.KindInstruction:
			msg.Content = s.Text
		case evidence.KindDocument:
			msg.Parts = append(msg.Parts, anthropic.ContentPart{Type: anthropic.PartDocument, Data: s.Data})
		case evidence.KindImage:
			msg.Parts = append(msg.Parts, anthropic.ContentPart{Type: anthropic.PartImage, MediaType: s.MIMEType, Data: s.Data})
		default:
			msg.Parts = append(msg.Parts, anthropic.ContentPart{Type: anthropic.PartText, Text: s.Text})
		}
	}
	return msg
}
