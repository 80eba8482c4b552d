package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nexusdevhub/nexus-voice/core/config"
	"github.com/nexusdevhub/nexus-voice/core/events"
	"github.com/nexusdevhub/nexus-voice/core/live"
	"github.com/nexusdevhub/nexus-voice/core/webhook"
)

// SilentModeTool is the fallback tool used for every command while
// silent mode is on, skipping model-based selection.
const SilentModeTool = "Resumo de Conversa"

// handleToolCall runs the command flow for one function call emitted by
// the live model: resolve tools, deliver the command to the webhook and
// hand the reply back to the model to be spoken.
func (o *Orchestrator) handleToolCall(ctx context.Context, s *session, call live.FunctionCall) {
	if call.Name != CommandFunctionName {
		logger.Warn("Ignoring unexpected function call", "function", call.Name)
		return
	}
	command, ok := call.StringArg(CommandArgumentName)
	if !ok || strings.TrimSpace(command) == "" {
		logger.Warn("Ignoring function call without a command argument")
		return
	}

	ctx, span := tracer.Start(ctx, "HandleCommand")
	defer span.End()
	span.SetAttributes(attribute.String("command", command))

	o.setProcessing(s, true)
	o.callbacks.OnStatus(statusAnalyzing)

	// The accumulated input transcription usually carries the wake word
	// and surrounding speech; prefer it over the bare extracted command
	// when it plausibly contains it.
	userMessage := command
	if full := strings.TrimSpace(s.input.String()); full != "" &&
		strings.Contains(strings.ToLower(full), strings.ToLower(command)) {
		userMessage = full
	}
	o.emitChat(events.SenderUser, userMessage)
	s.input.Reset()

	tools := o.resolveTools(ctx, s.settings, command)
	o.callbacks.OnToolsSelected(tools)
	o.emitLog(fmt.Sprintf("Ferramentas selecionadas: %s", toolsOrNone(tools)))

	o.callbacks.OnStatus(statusSending)
	o.emitLog(fmt.Sprintf("Enviando comando: %q", command))

	response, err := o.deliver(ctx, s.settings, command, tools)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emitLog(fmt.Sprintf("Erro: %s", err))
		o.sendToolResponse(s, call, fmt.Sprintf("Falha ao processar comando: %s", err))
		return
	}

	o.emitLog(response.FormatForLog())
	if s.settings.SilentMode {
		o.emitChat(events.SenderSystem, "Comando executado em modo silencioso.")
	}
	o.sendToolResponse(s, call, response.SpokenText())
}

// sendToolResponse hands the webhook's reply back to the model; the
// model reads it aloud unless the session was opened in silent mode.
func (o *Orchestrator) sendToolResponse(s *session, call live.FunctionCall, result string) {
	handle := s.liveHandle()
	if handle == nil {
		return
	}

	if err := handle.SendToolResponse(live.ToolResponse{
		ID:     call.ID,
		Name:   call.Name,
		Result: result,
	}); err != nil {
		logger.Error("Failed to send tool response", "error", err)
	}
}

// resolveTools picks the tools attached to a command: the silent-mode
// fallback, or model-based selection over the configured catalog.
func (o *Orchestrator) resolveTools(ctx context.Context, settings config.Settings, command string) []string {
	if settings.SilentMode {
		o.emitLog(fmt.Sprintf("Modo silencioso ativo. Ferramenta selecionada: %s", SilentModeTool))
		return []string{SilentModeTool}
	}

	o.emitLog(fmt.Sprintf("Analisando ferramentas para: %q", command))
	if o.toolSelector == nil {
		o.emitLog("Erro: Cliente de IA não inicializado.")
		return []string{}
	}
	return o.toolSelector.Select(ctx, command, settings.ToolNames())
}

func toolsOrNone(tools []string) string {
	if len(tools) == 0 {
		return "Nenhuma"
	}
	return strings.Join(tools, ", ")
}

// deliver builds the webhook payload from the session settings and sends
// it.
func (o *Orchestrator) deliver(ctx context.Context, settings config.Settings, command string, tools []string, overrides ...config.OptionOverride) (webhook.Response, error) {
	if o.webhookClient == nil {
		return nil, errors.New("no webhook client configured")
	}

	request := webhook.Request{
		Command:       command,
		ActiveTools:   tools,
		ActiveOptions: settings.ActiveOptions(overrides...),
	}
	if settings.SystemMessageEnabled {
		request.SystemMessage = &settings.SystemMessage
	}
	if settings.KnowledgeEnabled {
		knowledge := settings.Knowledge
		request.Knowledge = &knowledge
	}
	if settings.UserInfo != (webhook.UserInfo{}) {
		userInfo := settings.UserInfo
		request.UserInfo = &userInfo
	}

	return o.webhookClient.Send(ctx, request)
}

// SendTextCommand runs the command flow for a typed command instead of a
// spoken one. Only available while no voice session is open.
func (o *Orchestrator) SendTextCommand(ctx context.Context, command string) error {
	command = strings.TrimSpace(command)
	if command == "" {
		return errors.New("empty command")
	}
	if o.State() != StateIdle {
		return errors.New("a voice session is running")
	}

	ctx, span := tracer.Start(ctx, "SendTextCommand")
	defer span.End()
	span.SetAttributes(attribute.String("command", command))

	settings := o.Settings()

	o.emitChat(events.SenderUser, command)
	o.callbacks.OnProcessing(true)
	o.callbacks.OnStatus(statusAnalyzing)

	defer func() {
		o.callbacks.OnProcessing(false)
		o.callbacks.OnStatus(statusIdle)
	}()

	tools := o.resolveTools(ctx, settings, command)
	o.callbacks.OnToolsSelected(tools)
	o.emitLog(fmt.Sprintf("Ferramentas selecionadas: %s", toolsOrNone(tools)))

	o.callbacks.OnStatus(statusSending)
	o.emitLog(fmt.Sprintf("Enviando comando de texto: %q", command))

	response, err := o.deliver(ctx, settings, command, tools)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.emitLog(fmt.Sprintf("Erro: %s", err))
		o.emitChat(events.SenderSystem, fmt.Sprintf("Falha ao processar comando: %s", err))
		return err
	}

	o.emitLog(response.FormatForLog())
	if settings.SilentMode {
		o.emitChat(events.SenderSystem, "Comando executado em modo silencioso.")
	} else {
		o.emitChat(events.SenderAssistant, response.SpokenText())
	}
	return nil
}

// SendSystemMessagePrompt delivers the configured system message as a
// standalone prompt, outside any voice command.
func (o *Orchestrator) SendSystemMessagePrompt(ctx context.Context, message string) error {
	settings := o.Settings()
	if !settings.SystemMessageEnabled || strings.TrimSpace(message) == "" {
		o.emitLog("Erro: A mensagem de sistema deve estar ativada e não pode estar vazia para ser enviada.")
		return errors.New("system message disabled or empty")
	}

	o.mu.Lock()
	o.settings.RememberPrompt(message)
	o.mu.Unlock()

	o.emitLog(fmt.Sprintf("Enviando prompt do System Message: %q", message))

	// The prompt doubles as the command and the system message; tools
	// are never selected for manual sends.
	settings.SystemMessage = message
	response, err := o.deliver(ctx, settings, message, []string{}, config.OverrideSystemMessage(true))
	if err != nil {
		o.emitLog(fmt.Sprintf("Erro ao enviar prompt: %s", err))
		return err
	}

	o.emitLog(response.FormatForLog())
	return nil
}

// SendKnowledge delivers the configured knowledge payload as a
// standalone upload, outside any voice command.
func (o *Orchestrator) SendKnowledge(ctx context.Context) error {
	settings := o.Settings()
	if !settings.KnowledgeEnabled || strings.TrimSpace(settings.Knowledge.Content) == "" {
		o.emitLog("Erro: O Conhecimento deve estar ativado e não pode estar vazio para ser enviado.")
		return errors.New("knowledge disabled or empty")
	}

	o.emitLog("Enviando conteúdo do Conhecimento...")

	response, err := o.deliver(ctx, settings, "Envio de base de conhecimento.", []string{}, config.OverrideKnowledge(true))
	if err != nil {
		o.emitLog(fmt.Sprintf("Erro ao enviar conhecimento: %s", err))
		return err
	}

	o.emitLog(response.FormatForLog())
	return nil
}
