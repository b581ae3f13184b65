package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
)

// maxResponseBytes caps how much of a reply body is read.
const maxResponseBytes = 4 << 20

// Gradio calls a Gradio "predict" endpoint hosting the chat model.
//
// Request body:  {"data": [text, [], sessionMarker, model]}
// Response body: {"data": [[[user, bot], ...], ...]}
//
// The reply is the bot field of the last pair of the first output.
type Gradio struct {
	url    string
	token  string
	client *http.Client

	// SessionMarker is sent as the third input. The remote app only uses
	// it to key its own state; history is always sent empty.
	SessionMarker string
}

// NewGradio returns a Gradio gateway. A nil client uses http.DefaultClient.
func NewGradio(url, token string, client *http.Client) *Gradio {
	if client == nil {
		client = http.DefaultClient
	}
	return &Gradio{url: url, token: token, client: client, SessionMarker: "cot-chat"}
}

type gradioRequest struct {
	Data []any `json:"data"`
}

type gradioResponse struct {
	Data []json.RawMessage `json:"data"`
}

// Infer implements Gateway.
func (g *Gradio) Infer(ctx context.Context, userText, model string) Result {
	ctx, span := otel.Tracer("inference/gradio").Start(ctx, "Gradio.Infer")
	defer span.End()
	span.SetAttributes(attribute.String("inference.model", model))

	res := g.infer(ctx, userText, model)
	span.SetAttributes(attribute.String("inference.result", res.Kind.String()))
	if res.Kind != KindOK && res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Kind.String())
	}
	return res
}

func (g *Gradio) infer(ctx context.Context, userText, model string) Result {
	body, err := json.Marshal(gradioRequest{Data: []any{userText, []any{}, g.SessionMarker, model}})
	if err != nil {
		return TransportError(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.url, bytes.NewReader(body))
	if err != nil {
		return TransportError(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := g.client.Do(req)
	if err != nil {
		return TransportError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return TransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return TransportError(fmt.Errorf("inference endpoint returned %d: %s", resp.StatusCode, snippet(raw)))
	}
	return parseGradio(raw)
}

// parseGradio extracts the reply from a predict response body.
func parseGradio(raw []byte) Result {
	var out gradioResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Malformed(err)
	}
	if len(out.Data) == 0 {
		return Empty()
	}

	var pairs [][]json.RawMessage
	if err := json.Unmarshal(out.Data[0], &pairs); err != nil {
		return Malformed(fmt.Errorf("first output is not a list of pairs: %w", err))
	}
	if len(pairs) == 0 {
		return Empty()
	}
	last := pairs[len(pairs)-1]
	if len(last) < 2 {
		return Malformed(errors.New("last pair has fewer than two fields"))
	}
	var reply *string
	if err := json.Unmarshal(last[1], &reply); err != nil {
		return Malformed(fmt.Errorf("reply is not a string: %w", err))
	}
	if reply == nil || strings.TrimSpace(*reply) == "" {
		return Empty()
	}
	return OK(*reply)
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if r := []rune(s); len(r) > 200 {
		return string(r[:200]) + "..."
	}
	return s
}
