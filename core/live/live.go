// Package live defines the provider-neutral contract for one realtime,
// bidirectional audio/event stream with a hosted speech model.
package live

import (
	"context"

	"github.com/nexusdevhub/nexus-voice/core/audio"
)

// SessionConfig describes what the remote session is opened with.
type SessionConfig struct {
	SystemInstruction string
	Functions         []FunctionDeclaration
	TranscribeInput   bool
	TranscribeOutput  bool
}

// FunctionDeclaration declares one callable function with a single string
// parameter, which is all the command flow needs.
type FunctionDeclaration struct {
	Name                 string
	Description          string
	Parameter            string
	ParameterDescription string
}

// FunctionCall is an inbound tool invocation emitted by the model.
type FunctionCall struct {
	ID   string
	Name string
	Args map[string]any
}

// StringArg extracts a string argument by name. The second return is
// false when the argument is missing or not a string.
func (c FunctionCall) StringArg(name string) (string, bool) {
	value, ok := c.Args[name].(string)
	return value, ok
}

// ToolResponse is the textual result handed back to the model so it can
// speak it.
type ToolResponse struct {
	ID     string
	Name   string
	Result string
}

// Session is an open stream handle. Implementations must tolerate Close
// being called more than once.
type Session interface {
	SendAudio(blob audio.Blob) error
	SendToolResponse(response ToolResponse) error
	Close() error
}

// Connector opens sessions; it is the seam the orchestrator is tested
// through.
type Connector interface {
	Connect(ctx context.Context, config SessionConfig, callbacks Callbacks) (Session, error)
}

// Callbacks receive inbound stream events. All of them fire on the
// transport's read goroutine, one at a time, in arrival order.
type Callbacks struct {
	OnOpen                func()
	OnInputTranscription  func(text string)
	OnOutputTranscription func(text string)
	OnInterrupted         func()
	OnAudioChunk          func(raw []byte, mimeType string)
	OnToolCall            func(call FunctionCall)
	OnTurnComplete        func()
	OnError               func(err error)
	OnClose               func(err error)
}

// WithDefaults fills every unset callback with a no-op so transports can
// call them unconditionally.
func (c Callbacks) WithDefaults() Callbacks {
	if c.OnOpen == nil {
		c.OnOpen = func() {}
	}
	if c.OnInputTranscription == nil {
		c.OnInputTranscription = func(string) {}
	}
	if c.OnOutputTranscription == nil {
		c.OnOutputTranscription = func(string) {}
	}
	if c.OnInterrupted == nil {
		c.OnInterrupted = func() {}
	}
	if c.OnAudioChunk == nil {
		c.OnAudioChunk = func([]byte, string) {}
	}
	if c.OnToolCall == nil {
		c.OnToolCall = func(FunctionCall) {}
	}
	if c.OnTurnComplete == nil {
		c.OnTurnComplete = func() {}
	}
	if c.OnError == nil {
		c.OnError = func(error) {}
	}
	if c.OnClose == nil {
		c.OnClose = func(error) {}
	}
	return c
}
