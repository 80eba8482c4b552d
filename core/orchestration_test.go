package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/nexusdevhub/nexus-voice/core/audio"
	"github.com/nexusdevhub/nexus-voice/core/config"
	"github.com/nexusdevhub/nexus-voice/core/events"
	"github.com/nexusdevhub/nexus-voice/core/live"
	"github.com/nexusdevhub/nexus-voice/core/webhook"
)

type harness struct {
	orchestrator *Orchestrator
	connector    *fakeConnector
	input        *fakeAudioInput
	sink         *fakeSink
	selector     *fakeSelector
	webhook      *fakeWebhook
	recorder     *callbackRecorder
}

func newHarness(t *testing.T, settings config.Settings, extra ...OrchestratorOption) *harness {
	t.Helper()

	h := &harness{
		connector: &fakeConnector{},
		input:     &fakeAudioInput{},
		sink:      &fakeSink{},
		selector:  &fakeSelector{tools: []string{"Gmail"}},
		webhook:   &fakeWebhook{response: webhook.Response{"message": "Feito."}},
		recorder:  &callbackRecorder{},
	}

	opts := []OrchestratorOption{
		WithLiveConnector(h.connector),
		WithAudioInput(h.input),
		WithPlaybackSink(h.sink),
		WithToolSelector(h.selector),
		WithWebhookClient(h.webhook),
		WithSettings(settings),
		WithCallbacks(h.recorder.callbacks()),
	}
	h.orchestrator = NewOrchestrator(append(opts, extra...)...)
	t.Cleanup(h.orchestrator.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.orchestrator.Start(context.Background()); err != nil {
		t.Fatalf("failed to start session: %v", err)
	}
}

func commandCall(id, command string) live.FunctionCall {
	return live.FunctionCall{
		ID:   id,
		Name: CommandFunctionName,
		Args: map[string]any{CommandArgumentName: command},
	}
}

func TestStartOpensSessionAndStreamsMicrophone(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	if got := h.orchestrator.State(); got != StateActive {
		t.Fatalf("expected active state after start, got %q", got)
	}
	if got, want := h.recorder.lastStatus(), fmt.Sprintf("Ouvindo... Diga %q e seu comando.", config.DefaultWakeWord); got != want {
		t.Fatalf("expected listening status %q, got %q", want, got)
	}

	sessionCfg := h.connector.lastConfig()
	if len(sessionCfg.Functions) != 1 || sessionCfg.Functions[0].Name != CommandFunctionName {
		t.Fatalf("expected a single %q function declaration, got %+v", CommandFunctionName, sessionCfg.Functions)
	}
	if !strings.Contains(sessionCfg.SystemInstruction, "'Nexus'") {
		t.Fatalf("expected system instruction to carry the wake word, got %q", sessionCfg.SystemInstruction)
	}
	if !sessionCfg.TranscribeInput || !sessionCfg.TranscribeOutput {
		t.Fatalf("expected both transcription directions enabled, got %+v", sessionCfg)
	}

	h.input.emit([]float32{0, 0.5, -0.5, 1})
	session := h.connector.lastSession()
	waitFor(t, "captured audio to reach the live session", func() bool {
		return len(session.sentAudio()) == 1
	})
	if got, want := session.sentAudio()[0].MIMEType, audio.GetCaptureEncodingInfo().MIMEType(); got != want {
		t.Fatalf("expected capture MIME type %q, got %q", want, got)
	}
}

func TestStartWithoutConnectorFails(t *testing.T) {
	recorder := &callbackRecorder{}
	o := NewOrchestrator(
		WithAudioInput(&fakeAudioInput{}),
		WithCallbacks(recorder.callbacks()),
	)
	defer o.Close()

	if err := o.Start(context.Background()); err == nil {
		t.Fatal("expected an error when no connector is configured")
	}
	if got := o.State(); got != StateError {
		t.Fatalf("expected error state, got %q", got)
	}
	if got := recorder.lastStatus(); got != statusStartFailed {
		t.Fatalf("expected start-failure status, got %q", got)
	}

	failures := recorder.chatMessages(events.SenderSystem)
	if len(failures) == 0 || !strings.Contains(failures[len(failures)-1], "Falha ao iniciar:") {
		t.Fatalf("expected a start-failure chat message, got %v", failures)
	}
}

func TestStartFailsWhenCaptureFails(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.input.startErr = errors.New("device busy")

	if err := h.orchestrator.Start(context.Background()); err == nil {
		t.Fatal("expected an error when capture cannot start")
	}
	if got := h.orchestrator.State(); got != StateError {
		t.Fatalf("expected error state, got %q", got)
	}
	if h.connector.lastSession() != nil {
		t.Fatal("expected no live connection after a capture failure")
	}
}

func TestStartReplacesPreviousSession(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)
	first := h.connector.lastSession()

	h.start(t)
	second := h.connector.lastSession()

	if first == second {
		t.Fatal("expected a fresh live session on restart")
	}
	if got := first.closeCount(); got != 1 {
		t.Fatalf("expected the previous session closed exactly once, got %d closes", got)
	}
	if got := h.orchestrator.State(); got != StateActive {
		t.Fatalf("expected active state after restart, got %q", got)
	}
}

func TestStopTearsSessionDown(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)
	session := h.connector.lastSession()

	h.orchestrator.Stop()

	if got := session.closeCount(); got != 1 {
		t.Fatalf("expected the live session closed once, got %d closes", got)
	}
	if got := h.input.stopCount(); got == 0 {
		t.Fatal("expected capture stopped on session stop")
	}
	if got := h.orchestrator.State(); got != StateIdle {
		t.Fatalf("expected idle state after stop, got %q", got)
	}
	if got := h.recorder.lastStatus(); got != statusIdle {
		t.Fatalf("expected idle status after stop, got %q", got)
	}
}

func TestCommandFlowDeliversToWebhookAndModel(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	stream := h.connector.stream()
	stream.OnInputTranscription("Nexus, ")
	stream.OnInputTranscription("ligar a luz da sala")
	stream.OnToolCall(commandCall("call-1", "ligar a luz da sala"))

	session := h.connector.lastSession()
	waitFor(t, "the tool response", func() bool {
		return len(session.sentToolResponses()) == 1
	})

	requests := h.webhook.sent()
	if len(requests) != 1 {
		t.Fatalf("expected one webhook delivery, got %d", len(requests))
	}
	if got := requests[0].Command; got != "ligar a luz da sala" {
		t.Fatalf("unexpected delivered command %q", got)
	}
	if got := requests[0].ActiveTools; len(got) != 1 || got[0] != "Gmail" {
		t.Fatalf("expected the selected tools on the payload, got %v", got)
	}

	selectedCommand, catalog := h.selector.lastSeen()
	if selectedCommand != "ligar a luz da sala" {
		t.Fatalf("expected the selector to see the command, got %q", selectedCommand)
	}
	if got, want := len(catalog), len(config.DefaultTools()); got != want {
		t.Fatalf("expected the full catalog offered to the selector, got %d of %d names", got, want)
	}

	response := session.sentToolResponses()[0]
	if response.ID != "call-1" || response.Name != CommandFunctionName {
		t.Fatalf("tool response does not match the originating call: %+v", response)
	}
	if response.Result != "Feito." {
		t.Fatalf("expected the webhook message spoken back, got %q", response.Result)
	}

	userMessages := h.recorder.chatMessages(events.SenderUser)
	if len(userMessages) != 1 || userMessages[0] != "Nexus, ligar a luz da sala" {
		t.Fatalf("expected the full transcription as the user message, got %v", userMessages)
	}
	if !h.recorder.hasLog(`Enviando comando: "ligar a luz da sala"`) {
		t.Fatal("expected the delivery log entry")
	}
}

func TestCommandFlowIgnoresForeignFunctionCalls(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	stream := h.connector.stream()
	stream.OnToolCall(live.FunctionCall{ID: "x", Name: "somethingElse", Args: map[string]any{CommandArgumentName: "oi"}})
	stream.OnToolCall(live.FunctionCall{ID: "y", Name: CommandFunctionName, Args: map[string]any{CommandArgumentName: 42}})
	stream.OnOutputTranscription("barrier")
	stream.OnTurnComplete()

	waitFor(t, "the turn to be processed", func() bool {
		return len(h.recorder.chatMessages(events.SenderAssistant)) == 1
	})
	if got := len(h.webhook.sent()); got != 0 {
		t.Fatalf("expected no webhook deliveries for ignored calls, got %d", got)
	}
	if got := h.selector.callCount(); got != 0 {
		t.Fatalf("expected no tool selection for ignored calls, got %d", got)
	}
	if got := len(h.connector.lastSession().sentToolResponses()); got != 0 {
		t.Fatalf("expected no tool responses for ignored calls, got %d", got)
	}
}

func TestCommandFailureIsReportedBackToModel(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.webhook.err = &webhook.StatusError{Status: 500, Body: "boom"}
	h.start(t)

	h.connector.stream().OnToolCall(commandCall("call-1", "abrir agenda"))

	session := h.connector.lastSession()
	waitFor(t, "the failure tool response", func() bool {
		return len(session.sentToolResponses()) == 1
	})

	result := session.sentToolResponses()[0].Result
	if !strings.HasPrefix(result, "Falha ao processar comando:") {
		t.Fatalf("expected a failure result, got %q", result)
	}
	if !h.recorder.hasLog("Erro: Webhook respondeu com status: 500") {
		t.Fatal("expected the webhook error logged")
	}
}

func TestSilentModeSkipsSelectionAndPlayback(t *testing.T) {
	settings := config.DefaultSettings()
	settings.SilentMode = true
	h := newHarness(t, settings)
	h.start(t)

	stream := h.connector.stream()
	stream.OnToolCall(commandCall("call-1", "resumir reunião"))

	session := h.connector.lastSession()
	waitFor(t, "the tool response", func() bool {
		return len(session.sentToolResponses()) == 1
	})

	if got := h.selector.callCount(); got != 0 {
		t.Fatalf("expected no model-based selection in silent mode, got %d calls", got)
	}
	requests := h.webhook.sent()
	if got := requests[0].ActiveTools; len(got) != 1 || got[0] != SilentModeTool {
		t.Fatalf("expected the silent-mode fallback tool, got %v", got)
	}

	systemMessages := h.recorder.chatMessages(events.SenderSystem)
	found := false
	for _, message := range systemMessages {
		if message == "Comando executado em modo silencioso." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the silent-mode confirmation message, got %v", systemMessages)
	}

	stream.OnAudioChunk(make([]byte, 4800), "audio/pcm;rate=24000")
	stream.OnOutputTranscription("barrier")
	stream.OnTurnComplete()
	waitFor(t, "the turn to complete", func() bool {
		return len(h.recorder.chatMessages(events.SenderAssistant)) == 1
	})
	if got := h.sink.chunkCount(); got != 0 {
		t.Fatalf("expected reply audio discarded in silent mode, got %d chunks", got)
	}
}

func TestReplyAudioIsScheduledForPlayback(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	stream := h.connector.stream()
	stream.OnAudioChunk(make([]byte, 4800), "audio/pcm;rate=24000")
	stream.OnAudioChunk(make([]byte, 9600), "audio/pcm;rate=24000")

	waitFor(t, "reply audio to reach the sink", func() bool {
		return h.sink.chunkCount() == 2
	})
}

func TestInterruptionDropsPendingPlayback(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	stream := h.connector.stream()
	stream.OnAudioChunk(make([]byte, 48000), "audio/pcm;rate=24000")
	waitFor(t, "reply audio to reach the sink", func() bool {
		return h.sink.chunkCount() == 1
	})

	stream.OnInterrupted()
	waitFor(t, "the sink buffer to be cleared", func() bool {
		return h.sink.clearCount() >= 1
	})
}

func TestTurnCompleteFlushesAssistantTranscript(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	stream := h.connector.stream()
	stream.OnOutputTranscription("A luz ")
	stream.OnOutputTranscription("foi ligada.")
	stream.OnTurnComplete()

	waitFor(t, "the assistant chat message", func() bool {
		messages := h.recorder.chatMessages(events.SenderAssistant)
		return len(messages) == 1 && messages[0] == "A luz foi ligada."
	})

	stream.OnOutputTranscription("Algo mais?")
	stream.OnTurnComplete()
	waitFor(t, "the second turn to flush separately", func() bool {
		messages := h.recorder.chatMessages(events.SenderAssistant)
		return len(messages) == 2 && messages[1] == "Algo mais?"
	})
}

func TestTransportErrorEntersErrorState(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)
	session := h.connector.lastSession()

	h.connector.stream().OnError(errors.New("stream interrupted"))

	waitFor(t, "the session teardown", func() bool {
		return session.closeCount() == 1
	})
	if got := h.orchestrator.State(); got != StateError {
		t.Fatalf("expected error state, got %q", got)
	}
	if got := h.recorder.lastStatus(); got != statusError {
		t.Fatalf("expected connection-error status, got %q", got)
	}

	systemMessages := h.recorder.chatMessages(events.SenderSystem)
	if len(systemMessages) == 0 || !strings.Contains(systemMessages[len(systemMessages)-1], "Erro na sessão:") {
		t.Fatalf("expected a session error chat message, got %v", systemMessages)
	}
}

func TestRemoteCloseReturnsToIdle(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	h.connector.stream().OnClose(nil)

	waitFor(t, "the orchestrator to go idle", func() bool {
		return h.orchestrator.State() == StateIdle
	})
	if got := h.input.stopCount(); got == 0 {
		t.Fatal("expected capture stopped after a remote close")
	}
}

func TestSendTextCommandRequiresIdleState(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	if err := h.orchestrator.SendTextCommand(context.Background(), "ligar a luz"); err == nil {
		t.Fatal("expected text commands rejected while a voice session runs")
	}
	if got := len(h.webhook.sent()); got != 0 {
		t.Fatalf("expected no webhook delivery, got %d", got)
	}
}

func TestSendTextCommandDeliversAndReplies(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())

	if err := h.orchestrator.SendTextCommand(context.Background(), "  ligar a luz  "); err != nil {
		t.Fatalf("failed to send text command: %v", err)
	}

	requests := h.webhook.sent()
	if len(requests) != 1 || requests[0].Command != "ligar a luz" {
		t.Fatalf("expected the trimmed command delivered, got %+v", requests)
	}
	if !h.recorder.hasLog(`Enviando comando de texto: "ligar a luz"`) {
		t.Fatal("expected the text delivery log entry")
	}

	assistantMessages := h.recorder.chatMessages(events.SenderAssistant)
	if len(assistantMessages) != 1 || assistantMessages[0] != "Feito." {
		t.Fatalf("expected the webhook reply as an assistant message, got %v", assistantMessages)
	}
	if got := h.recorder.lastStatus(); got != statusIdle {
		t.Fatalf("expected the idle status restored, got %q", got)
	}
}

func TestSendSystemMessagePromptUsesOverride(t *testing.T) {
	settings := config.DefaultSettings()
	settings.SystemMessageEnabled = true
	h := newHarness(t, settings)

	if err := h.orchestrator.SendSystemMessagePrompt(context.Background(), "fale formalmente"); err != nil {
		t.Fatalf("failed to send system message prompt: %v", err)
	}

	requests := h.webhook.sent()
	if len(requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(requests))
	}
	request := requests[0]
	if request.Command != "fale formalmente" {
		t.Fatalf("expected the prompt as the command, got %q", request.Command)
	}
	if request.SystemMessage == nil || *request.SystemMessage != "fale formalmente" {
		t.Fatalf("expected the prompt as the system message, got %v", request.SystemMessage)
	}
	if len(request.ActiveTools) != 0 {
		t.Fatalf("expected no tools on manual sends, got %v", request.ActiveTools)
	}

	history := h.orchestrator.Settings().PromptHistory
	if len(history) != 1 || history[0] != "fale formalmente" {
		t.Fatalf("expected the prompt remembered, got %v", history)
	}
}

func TestSendSystemMessagePromptRejectedWhenDisabled(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())

	if err := h.orchestrator.SendSystemMessagePrompt(context.Background(), "fale formalmente"); err == nil {
		t.Fatal("expected an error while the system message is disabled")
	}
	if got := len(h.webhook.sent()); got != 0 {
		t.Fatalf("expected no delivery, got %d", got)
	}
	if !h.recorder.hasLog("A mensagem de sistema deve estar ativada") {
		t.Fatal("expected the guard log entry")
	}
}

func TestSendKnowledgeDeliversPayload(t *testing.T) {
	settings := config.DefaultSettings()
	settings.KnowledgeEnabled = true
	settings.Knowledge = webhook.Knowledge{Type: "text", Content: "horário de funcionamento: 9h-18h"}
	h := newHarness(t, settings)

	if err := h.orchestrator.SendKnowledge(context.Background()); err != nil {
		t.Fatalf("failed to send knowledge: %v", err)
	}

	requests := h.webhook.sent()
	if len(requests) != 1 {
		t.Fatalf("expected one delivery, got %d", len(requests))
	}
	request := requests[0]
	if request.Command != "Envio de base de conhecimento." {
		t.Fatalf("unexpected knowledge command %q", request.Command)
	}
	if request.Knowledge == nil || request.Knowledge.Content != settings.Knowledge.Content {
		t.Fatalf("expected the knowledge payload attached, got %v", request.Knowledge)
	}
}

func TestUpdateSettingsRefreshesStatusOnly(t *testing.T) {
	h := newHarness(t, config.DefaultSettings())
	h.start(t)

	updated := config.DefaultSettings()
	updated.WakeWord = "Aurora"
	h.orchestrator.UpdateSettings(updated)

	if got, want := h.recorder.lastStatus(), `Ouvindo... Diga "Aurora" e seu comando.`; got != want {
		t.Fatalf("expected the refreshed listening status %q, got %q", want, got)
	}
	if got := h.orchestrator.Settings().WakeWord; got != "Aurora" {
		t.Fatalf("expected the stored settings updated, got %q", got)
	}
}
