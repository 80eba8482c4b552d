// Command nexus-voice is the terminal front end of the voice assistant:
// it wires the microphone, the realtime model, the tool selector and the
// webhook client together and drives them from an interactive TUI.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	orchestration "github.com/nexusdevhub/nexus-voice/core"
	"github.com/nexusdevhub/nexus-voice/core/audio/miniaudio"
	"github.com/nexusdevhub/nexus-voice/core/audio/portaudio"
	"github.com/nexusdevhub/nexus-voice/core/config"
	livegemini "github.com/nexusdevhub/nexus-voice/core/live/gemini"
	llmgemini "github.com/nexusdevhub/nexus-voice/core/llms/gemini"
	"github.com/nexusdevhub/nexus-voice/core/toolselection"
	"github.com/nexusdevhub/nexus-voice/core/webhook"
)

const portaudioBufferSize = 1024

func main() {
	_ = godotenv.Load()

	if os.Getenv("GEMINI_API_KEY") == "" {
		log.Fatal("GEMINI_API_KEY required")
	}

	configPath, err := config.DefaultPath()
	if err != nil {
		log.Fatalf("Failed to resolve config path: %v", err)
	}
	settings, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if url := os.Getenv("WEBHOOK_URL"); url != "" {
		settings.WebhookURL = url
	}
	if settings.WebhookURL == "" {
		log.Fatal("No webhook URL configured; set webhook_url in the settings file or WEBHOOK_URL in the environment")
	}

	if err := run(*settings); err != nil {
		log.Fatal(err)
	}
}

func run(settings config.Settings) error {
	speaker, err := miniaudio.NewClient()
	if err != nil {
		return fmt.Errorf("failed to initialize audio device: %w", err)
	}
	defer speaker.Close()

	var microphone orchestration.AudioInput = speaker
	if settings.AudioBackend == "portaudio" {
		client, err := portaudio.NewClient(portaudioBufferSize)
		if err != nil {
			return fmt.Errorf("failed to initialize portaudio capture: %w", err)
		}
		defer client.Close()
		microphone = client
	}

	liveClient, err := livegemini.NewClient()
	if err != nil {
		return fmt.Errorf("failed to initialize live client: %w", err)
	}
	llmClient, err := llmgemini.NewClient()
	if err != nil {
		return fmt.Errorf("failed to initialize model client: %w", err)
	}

	relay := &uiRelay{}
	orchestrator := orchestration.NewOrchestrator(
		orchestration.WithAudioInput(microphone),
		orchestration.WithPlaybackSink(speaker),
		orchestration.WithLiveConnector(liveClient),
		orchestration.WithToolSelector(toolselection.NewSelector(llmClient)),
		orchestration.WithWebhookClient(webhook.NewClient(settings.WebhookURL)),
		orchestration.WithSettings(settings),
		orchestration.WithCallbacks(relay.Callbacks()),
	)
	defer orchestrator.Close()

	program := tea.NewProgram(newModel(context.Background(), orchestrator, settings), tea.WithAltScreen())
	relay.attach(program)

	_, err = program.Run()
	return err
}
