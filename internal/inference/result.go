// Package inference wraps the remote model endpoint behind a Gateway that
// never fails with an error. Every call yields a Result whose Kind says
// whether a usable reply came back; callers turn it into display text with
// Result.Display.
package inference

import "fmt"

// Sentinel replies stored in place of a real answer.
const (
	EmptyReplySentinel     = "Error: No response received from the model."
	MalformedReplySentinel = "Error: Unexpected response format from the model."
	PlaceholderReply       = "<Here will be the response from trained model>"
)

// Kind classifies the outcome of an inference call.
type Kind int

const (
	KindOK Kind = iota
	KindEmpty
	KindMalformed
	KindTransportError
)

// String returns the label used in metrics and logs.
func (k Kind) String() string {
	switch k {
	case KindOK:
		return "ok"
	case KindEmpty:
		return "empty"
	case KindMalformed:
		return "malformed"
	case KindTransportError:
		return "transport_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Result is the outcome of Gateway.Infer.
type Result struct {
	Kind  Kind
	Reply string // set when Kind == KindOK
	Err   error  // set when Kind == KindTransportError or KindMalformed
}

// OK builds a successful result.
func OK(reply string) Result { return Result{Kind: KindOK, Reply: reply} }

// Empty builds a result for a well-formed but empty payload.
func Empty() Result { return Result{Kind: KindEmpty} }

// Malformed builds a result for a payload of unexpected shape.
func Malformed(err error) Result { return Result{Kind: KindMalformed, Err: err} }

// TransportError builds a result for a failed call.
func TransportError(err error) Result { return Result{Kind: KindTransportError, Err: err} }

// Display maps the result to the text shown and persisted as the bot turn.
func (r Result) Display() string {
	switch r.Kind {
	case KindOK:
		return r.Reply
	case KindEmpty:
		return EmptyReplySentinel
	case KindMalformed:
		return MalformedReplySentinel
	default:
		if r.Err == nil {
			return "Error: unknown failure"
		}
		return "Error: " + r.Err.Error()
	}
}
