// Package llm adapts third-party generative-language clients to the eino
// chat model interface used by the advisory responder.
package llm

import (
	"errors"

	"github.com/cloudwego/eino/schema"
)

// ErrToolsUnsupported is returned by BindTools; the advisor never calls tools.
var ErrToolsUnsupported = errors.New("tool binding is not supported")

// ErrEmptyCandidate is returned when the provider answered without text.
var ErrEmptyCandidate = errors.New("provider returned no candidate text")

// singleMessageStream wraps a complete reply as a one-chunk stream.
func singleMessageStream(msg *schema.Message) *schema.StreamReader[*schema.Message] {
	return schema.StreamReaderFromArray([]*schema.Message{msg})
}
