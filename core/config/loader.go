package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath resolves the settings file location under the user config
// directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "nexus-voice", "settings.yaml"), nil
}

// Load reads the YAML settings file at path. A missing file is not an
// error; it yields the defaults so first runs work without setup.
func Load(path string) (*Settings, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		settings := DefaultSettings()
		return &settings, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	settings, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return settings, nil
}

// LoadFromReader decodes YAML settings from r and validates the result.
// Useful in tests where settings are constructed from string literals.
func LoadFromReader(r io.Reader) (*Settings, error) {
	settings := DefaultSettings()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&settings); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

// Save writes settings to path, creating parent directories as needed.
func Save(path string, settings Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: create %q: %w", filepath.Dir(path), err)
	}

	raw, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("config: encode yaml: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("config: write %q: %w", path, err)
	}
	return nil
}

// Validate checks that settings contain a coherent set of values. It
// returns a joined error listing all failures found.
func Validate(settings *Settings) error {
	var errs []error

	if settings.WebhookURL != "" {
		if parsed, err := url.Parse(settings.WebhookURL); err != nil || parsed.Scheme == "" || parsed.Host == "" {
			errs = append(errs, fmt.Errorf("webhook_url %q is not an absolute URL", settings.WebhookURL))
		}
	}

	if settings.WakeWordRequired && settings.WakeWord == "" {
		errs = append(errs, errors.New("wake_word_required is set but wake_word is empty"))
	}

	switch settings.Knowledge.Type {
	case "", "text", "file":
	default:
		errs = append(errs, fmt.Errorf("knowledge.type %q is invalid; valid values: text, file", settings.Knowledge.Type))
	}

	switch settings.AudioBackend {
	case "", "miniaudio", "portaudio":
	default:
		errs = append(errs, fmt.Errorf("audio_backend %q is invalid; valid values: miniaudio, portaudio", settings.AudioBackend))
	}

	seen := make(map[string]struct{}, len(settings.Tools))
	for i, tool := range settings.Tools {
		if tool.Name == "" {
			errs = append(errs, fmt.Errorf("tools[%d] has an empty name", i))
			continue
		}
		if _, duplicate := seen[tool.Name]; duplicate {
			errs = append(errs, fmt.Errorf("tools[%d] duplicates name %q", i, tool.Name))
		}
		seen[tool.Name] = struct{}{}
	}

	if len(settings.PromptHistory) > PromptHistoryLimit {
		settings.PromptHistory = settings.PromptHistory[:PromptHistoryLimit]
	}

	return errors.Join(errs...)
}
