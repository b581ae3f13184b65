package inference

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// OpenAI calls any OpenAI-compatible chat completion endpoint. Each prompt
// is sent on its own, with no prior turns, like the Gradio backend.
type OpenAI struct {
	client *openai.Client
}

// NewOpenAI returns an OpenAI gateway. An empty baseURL keeps the library
// default.
func NewOpenAI(baseURL, apiKey string, timeout time.Duration) *OpenAI {
	cc := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cc.BaseURL = baseURL
	}
	if timeout > 0 {
		cc.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &OpenAI{client: openai.NewClientWithConfig(cc)}
}

// Infer implements Gateway.
func (o *OpenAI) Infer(ctx context.Context, userText, model string) Result {
	ctx, span := otel.Tracer("inference/openai").Start(ctx, "OpenAI.Infer")
	defer span.End()
	span.SetAttributes(attribute.String("inference.model", model))

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: userText},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport_error")
		return TransportError(err)
	}
	if len(resp.Choices) == 0 {
		return Empty()
	}
	reply := resp.Choices[len(resp.Choices)-1].Message.Content
	if strings.TrimSpace(reply) == "" {
		return Empty()
	}
	return OK(reply)
}
