package orchestration

import (
	"context"
	"time"

	"github.com/nexusdevhub/nexus-voice/core/config"
	"github.com/nexusdevhub/nexus-voice/core/events"
	"github.com/nexusdevhub/nexus-voice/core/live"
	"github.com/nexusdevhub/nexus-voice/core/webhook"
)

type OrchestratorOption func(*Orchestrator)

// AudioInput captures microphone samples. StartCapture must deliver
// blocks of mono float samples at the capture rate until StopCapture.
type AudioInput interface {
	StartCapture(ctx context.Context, onAudio func(samples []float32)) error
	StopCapture() error
	Close()
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput.Set(client) }
}

func WithPlaybackSink(sink PlaybackSink) OrchestratorOption {
	return func(o *Orchestrator) { o.playbackSink = sink }
}

func WithLiveConnector(connector live.Connector) OrchestratorOption {
	return func(o *Orchestrator) { o.connector = connector }
}

// ToolSelector ranks catalog tools for a command. Implementations must
// be best-effort: an empty result, never an error.
type ToolSelector interface {
	Select(ctx context.Context, command string, catalog []string) []string
}

func WithToolSelector(selector ToolSelector) OrchestratorOption {
	return func(o *Orchestrator) { o.toolSelector = selector }
}

// WebhookSender delivers one command to the configured endpoint.
type WebhookSender interface {
	Send(ctx context.Context, request webhook.Request) (webhook.Response, error)
}

func WithWebhookClient(client WebhookSender) OrchestratorOption {
	return func(o *Orchestrator) { o.webhookClient = client }
}

func WithSettings(settings config.Settings) OrchestratorOption {
	return func(o *Orchestrator) { o.settings = settings }
}

// WithClock replaces the scheduler's time source, used by tests to pin
// scheduling decisions.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// Callbacks notify the presentation layer. All of them are optional and
// fire on orchestrator goroutines; handlers must not block.
type Callbacks struct {
	OnChatMessage   func(message events.ChatMessage)
	OnWebhookLog    func(entry events.WebhookLogEntry)
	OnStatus        func(status string)
	OnStateChanged  func(state events.SessionStateChanged)
	OnProcessing    func(processing bool)
	OnToolsSelected func(tools []string)
}

func (c Callbacks) withDefaults() Callbacks {
	if c.OnChatMessage == nil {
		c.OnChatMessage = func(events.ChatMessage) {}
	}
	if c.OnWebhookLog == nil {
		c.OnWebhookLog = func(events.WebhookLogEntry) {}
	}
	if c.OnStatus == nil {
		c.OnStatus = func(string) {}
	}
	if c.OnStateChanged == nil {
		c.OnStateChanged = func(events.SessionStateChanged) {}
	}
	if c.OnProcessing == nil {
		c.OnProcessing = func(bool) {}
	}
	if c.OnToolsSelected == nil {
		c.OnToolsSelected = func([]string) {}
	}
	return c
}

func WithCallbacks(callbacks Callbacks) OrchestratorOption {
	return func(o *Orchestrator) { o.callbacks = callbacks.withDefaults() }
}
