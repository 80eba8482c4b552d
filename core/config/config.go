// Package config persists the assistant's settings between runs: webhook
// endpoint, wake word, silent mode, optional context payloads and the
// tool catalog.
package config

import (
	"slices"

	"github.com/nexusdevhub/nexus-voice/core/webhook"
)

// DefaultWakeWord gates command recognition when the wake word is
// required.
const DefaultWakeWord = "Nexus"

// PromptHistoryLimit bounds the retained system-message prompts,
// most-recent-first.
const PromptHistoryLimit = 10

// Tool is a static catalog entry describing a capability the webhook may
// invoke.
type Tool struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Settings is the persisted configuration. A Settings value loaded once
// and snapshotted per session; live sessions never observe mid-flight
// edits.
type Settings struct {
	WebhookURL string `yaml:"webhook_url"`

	WakeWord         string `yaml:"wake_word"`
	WakeWordRequired bool   `yaml:"wake_word_required"`
	SilentMode       bool   `yaml:"silent_mode"`

	SystemMessage        string `yaml:"system_message,omitempty"`
	SystemMessageEnabled bool   `yaml:"system_message_enabled"`

	Knowledge        webhook.Knowledge `yaml:"knowledge,omitempty"`
	KnowledgeEnabled bool              `yaml:"knowledge_enabled"`

	UserInfo webhook.UserInfo `yaml:"user_info,omitempty"`

	Tools []Tool `yaml:"tools"`

	// PromptHistory keeps previously used system-message prompts,
	// most recent first, capped at PromptHistoryLimit.
	PromptHistory []string `yaml:"prompt_history,omitempty"`

	// AudioBackend selects the capture backend: "miniaudio" (default) or
	// "portaudio".
	AudioBackend string `yaml:"audio_backend,omitempty"`
}

// DefaultTools is the catalog shipped on first run.
func DefaultTools() []Tool {
	return []Tool{
		{ID: "google-drive", Name: "Google Drive"},
		{ID: "google-sheets", Name: "Google Sheets"},
		{ID: "whatsapp", Name: "WhatsApp"},
		{ID: "gmail", Name: "Gmail"},
		{ID: "agenda", Name: "Agenda"},
		{ID: "notificacoes", Name: "Notificações"},
		{ID: "google-calendar", Name: "Calendário Google"},
		{ID: "trello", Name: "Trello"},
		{ID: "jira", Name: "Jira"},
		{ID: "slack", Name: "Slack"},
	}
}

// DefaultSettings returns the first-run configuration.
func DefaultSettings() Settings {
	return Settings{
		WakeWord:         DefaultWakeWord,
		WakeWordRequired: true,
		Tools:            DefaultTools(),
		AudioBackend:     "miniaudio",
	}
}

// ToolNames flattens the catalog for selection prompts and payloads.
func (s Settings) ToolNames() []string {
	names := make([]string, 0, len(s.Tools))
	for _, tool := range s.Tools {
		names = append(names, tool.Name)
	}
	return names
}

// ActiveOptions names the optional context facilities currently enabled,
// with per-call overrides for the manual send paths.
func (s Settings) ActiveOptions(overrides ...OptionOverride) []string {
	systemEnabled := s.SystemMessageEnabled
	knowledgeEnabled := s.KnowledgeEnabled
	for _, override := range overrides {
		override(&systemEnabled, &knowledgeEnabled)
	}

	active := []string{}
	if systemEnabled {
		active = append(active, "System Message")
	}
	if knowledgeEnabled {
		active = append(active, "Conhecimento")
	}
	return active
}

type OptionOverride func(systemEnabled, knowledgeEnabled *bool)

func OverrideSystemMessage(enabled bool) OptionOverride {
	return func(systemEnabled, _ *bool) { *systemEnabled = enabled }
}

func OverrideKnowledge(enabled bool) OptionOverride {
	return func(_, knowledgeEnabled *bool) { *knowledgeEnabled = enabled }
}

// RememberPrompt pushes a system-message prompt onto the history,
// de-duplicating and trimming to the cap.
func (s *Settings) RememberPrompt(prompt string) {
	if prompt == "" {
		return
	}

	history := slices.DeleteFunc(slices.Clone(s.PromptHistory), func(entry string) bool {
		return entry == prompt
	})
	history = append([]string{prompt}, history...)
	if len(history) > PromptHistoryLimit {
		history = history[:PromptHistoryLimit]
	}
	s.PromptHistory = history
}
