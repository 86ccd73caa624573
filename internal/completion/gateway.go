package completion

import (
	"context"
	"errors"
)

// ErrEmptyCompletion is returned when the model answered with no text.
var ErrEmptyCompletion = errors.New("completion returned no text")

// Request is one stateless completion call.
type Request struct {
	Model             string
	SystemInstruction string
	UserContent       string
	MaxTokens         int
}

type Gateway interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// GatewayError is a transport or provider failure. Message is safe to show
// to the caller.
type GatewayError struct {
	Model      string
	StatusCode int
	Message    string
	Err        error
}

func (e *GatewayError) Error() string {
	return e.Message
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}
