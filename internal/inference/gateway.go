package inference

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tbourn/cot-chat/internal/config"
)

// Gateway produces a model reply for a single user prompt.
//
// Implementations must not panic or return errors; every failure is folded
// into the returned Result. Infer blocks until the remote call finishes or
// ctx is done.
type Gateway interface {
	Infer(ctx context.Context, userText, model string) Result
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, userText, model string) Result

// Infer calls f.
func (f GatewayFunc) Infer(ctx context.Context, userText, model string) Result {
	return f(ctx, userText, model)
}

// Placeholder returns a fixed development reply without any network call.
type Placeholder struct{}

// Infer returns PlaceholderReply.
func (Placeholder) Infer(context.Context, string, string) Result {
	return OK(PlaceholderReply)
}

// New builds the Gateway selected by cfg.Backend.
func New(cfg config.InferenceConfig) (Gateway, error) {
	switch cfg.Backend {
	case "", "placeholder":
		return Placeholder{}, nil
	case "gradio":
		return NewGradio(cfg.URL, cfg.APIToken, &http.Client{Timeout: cfg.Timeout}), nil
	case "openai":
		return NewOpenAI(cfg.OpenAIBaseURL, cfg.APIToken, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("inference: unknown backend %q", cfg.Backend)
	}
}
