// Package orchestration coordinates one live voice session end to end:
// microphone capture, the realtime model stream, command extraction,
// webhook delivery and spoken-reply playback.
package orchestration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/codes"

	"github.com/nexusdevhub/nexus-voice/core/audio"
	"github.com/nexusdevhub/nexus-voice/core/config"
	"github.com/nexusdevhub/nexus-voice/core/events"
	"github.com/nexusdevhub/nexus-voice/core/live"
)

// Session lifecycle states.
const (
	StateIdle       = "idle"
	StateConnecting = "connecting"
	StateActive     = "active"
	StateError      = "error"
)

// Status line texts shown to the user.
const (
	statusIdle        = "Clique no microfone para começar"
	statusConnecting  = "Conectando..."
	statusListening   = "Ouvindo..."
	statusStopping    = "Encerrando sessão..."
	statusAnalyzing   = "Analisando comando..."
	statusSending     = "Processando seu comando..."
	statusError       = "Erro de conexão. Tente novamente."
	statusStartFailed = "Falha ao iniciar. Verifique as permissões."
)

func listeningStatus(settings config.Settings) string {
	if settings.WakeWordRequired {
		return fmt.Sprintf("Ouvindo... Diga %q e seu comando.", settings.WakeWord)
	}
	return statusListening
}

// Orchestrator drives the voice-command loop. At most one live session
// exists at a time; starting a new one tears the previous one down
// first.
type Orchestrator struct {
	mu      sync.Mutex
	state   string
	current *session

	closeOnce sync.Once

	// audioInput is the input facade used to normalize capture behavior.
	audioInput    *audioInput
	playbackSink  PlaybackSink
	connector     live.Connector
	toolSelector  ToolSelector
	webhookClient WebhookSender

	settings  config.Settings
	now       func() time.Time
	callbacks Callbacks
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		state:     StateIdle,
		settings:  config.DefaultSettings(),
		now:       time.Now,
		callbacks: Callbacks{}.withDefaults(),
	}
	o.audioInput = newAudioInput(nil, o.pumpAudio)

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Settings returns a deep copy of the current settings, safe to mutate.
func (o *Orchestrator) Settings() config.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	return snapshotSettings(o.settings)
}

// UpdateSettings replaces the stored settings. An already-running
// session keeps the snapshot it was started with; only the status line
// is refreshed immediately.
func (o *Orchestrator) UpdateSettings(settings config.Settings) {
	o.mu.Lock()
	o.settings = snapshotSettings(settings)
	state := o.state
	o.mu.Unlock()

	if state == StateActive {
		o.callbacks.OnStatus(listeningStatus(settings))
	} else {
		o.callbacks.OnStatus(statusIdle)
	}
}

// Start opens a live session: begins microphone capture and connects to
// the realtime model. Any previous session is stopped first.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "StartSession")
	defer span.End()

	o.Stop()

	o.setState(StateConnecting)
	o.callbacks.OnStatus(statusConnecting)
	o.emitChat(events.SenderSystem, "Iniciando sessão de voz...")

	o.mu.Lock()
	settings := snapshotSettings(o.settings)
	s := newSession(ctx, o, settings, newPlaybackScheduler(o.playbackSink, o.now))
	o.current = s
	o.mu.Unlock()

	err := func() error {
		if o.connector == nil {
			return errors.New("no live connector configured")
		}

		if err := o.audioInput.StartCapture(ctx); err != nil {
			return fmt.Errorf("failed to start audio capture: %w", err)
		}

		handle, err := o.connector.Connect(ctx, sessionConfig(settings), s.transportCallbacks())
		if err != nil {
			return fmt.Errorf("failed to connect live session: %w", err)
		}
		s.setLive(handle)
		return nil
	}()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		o.teardown(s)
		o.emitChat(events.SenderSystem, fmt.Sprintf("Falha ao iniciar: %s", err))
		o.callbacks.OnStatus(statusStartFailed)
		o.setState(StateError)
		return err
	}

	return nil
}

// Stop closes the current session, if any, and returns to the idle
// state. Safe to call at any time.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	s := o.current
	o.mu.Unlock()
	if s == nil {
		return
	}

	o.callbacks.OnStatus(statusStopping)
	o.setState(StateIdle)
	o.setProcessing(s, false)

	o.teardown(s)
	o.callbacks.OnStatus(statusIdle)
}

// Close releases the orchestrator's resources, waiting for in-flight
// event handling to finish. The orchestrator must not be started again
// afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.mu.Lock()
		s := o.current
		o.mu.Unlock()

		o.Stop()
		if err := o.audioInput.Close(); err != nil {
			logger.Error("Failed to close audio input", "error", err)
		}

		if s != nil {
			s.awaitCompletion()
		}
	})
}

// teardown releases one session's resources, attempting every step even
// when an earlier one fails.
func (o *Orchestrator) teardown(s *session) {
	o.mu.Lock()
	if o.current == s {
		o.current = nil
	}
	o.mu.Unlock()

	s.close()

	if err := o.audioInput.StopCapture(); err != nil {
		logger.Error("Failed to stop audio capture", "error", err)
	}
	s.scheduler.Interrupt()
}

// handleActive marks the session live once the transport acknowledges
// the stream.
func (o *Orchestrator) handleActive(s *session) {
	if !o.isCurrent(s) {
		return
	}

	o.setState(StateActive)
	o.callbacks.OnStatus(listeningStatus(s.settings))
}

// handleSessionError tears the session down after a transport failure.
func (o *Orchestrator) handleSessionError(s *session, err error) {
	if !o.isCurrent(s) {
		return
	}

	o.emitChat(events.SenderSystem, fmt.Sprintf("Erro na sessão: %s", err))
	o.callbacks.OnStatus(statusError)
	o.setProcessing(s, false)
	o.setState(StateError)

	o.teardown(s)
}

// handleSessionClose cleans up when the remote end closes the stream
// while we still consider the session live.
func (o *Orchestrator) handleSessionClose(s *session) {
	if !o.isCurrent(s) {
		return
	}
	o.Stop()
}

func (o *Orchestrator) isCurrent(s *session) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current == s
}

// pumpAudio forwards captured microphone samples to the live session.
// Samples arriving while no session is open are dropped.
func (o *Orchestrator) pumpAudio(samples []float32) {
	o.mu.Lock()
	s := o.current
	o.mu.Unlock()
	if s == nil {
		return
	}

	handle := s.liveHandle()
	if handle == nil {
		return
	}

	if err := handle.SendAudio(audio.EncodeFrame(samples)); err != nil {
		logger.Warn("Failed to send captured audio", "error", err)
	}
}

func (o *Orchestrator) setState(state string) {
	o.mu.Lock()
	changed := o.state != state
	o.state = state
	o.mu.Unlock()

	if changed {
		o.callbacks.OnStateChanged(events.NewSessionStateChanged(state))
	}
}

func (o *Orchestrator) setProcessing(s *session, processing bool) {
	if s.processing.Swap(processing) != processing {
		o.callbacks.OnProcessing(processing)
	}
}

func (o *Orchestrator) emitChat(sender events.Sender, text string) {
	o.callbacks.OnChatMessage(events.NewChatMessage(sender, text))
}

func (o *Orchestrator) emitLog(text string) {
	o.callbacks.OnWebhookLog(events.NewWebhookLogEntry(text))
}

// sessionConfig maps persisted settings onto the live stream setup.
func sessionConfig(settings config.Settings) live.SessionConfig {
	return live.SessionConfig{
		SystemInstruction: buildSystemInstruction(settings),
		Functions: []live.FunctionDeclaration{{
			Name:                 CommandFunctionName,
			Description:          commandFunctionDescription,
			Parameter:            CommandArgumentName,
			ParameterDescription: commandArgumentDescription,
		}},
		TranscribeInput:  true,
		TranscribeOutput: true,
	}
}

// snapshotSettings deep-copies settings so a running session never
// observes mid-flight edits.
func snapshotSettings(settings config.Settings) config.Settings {
	var snapshot config.Settings
	if err := copier.CopyWithOption(&snapshot, &settings, copier.Option{DeepCopy: true}); err != nil {
		logger.Error("Failed to snapshot settings", "error", err)
		return settings
	}
	return snapshot
}
