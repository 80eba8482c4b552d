// Package toolselection asks the hosted model which catalog tools apply
// to a command. Selection is best-effort: every failure degrades to an
// empty selection so it can never block command execution.
package toolselection

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/nexusdevhub/nexus-voice/core/llms/gemini"
)

type selectionResult struct {
	Ferramentas []string `json:"ferramentas" jsonschema:"description=Nomes das ferramentas relevantes para o comando"`
}

// Selector ranks catalog tools for a command through one structured
// prompt.
type Selector struct {
	client *gemini.Client
}

func NewSelector(client *gemini.Client) *Selector {
	return &Selector{client: client}
}

// Select returns the subset of catalog names relevant to command. The
// result is always a subset of catalog, in the model's preference order;
// on any failure it is empty and the cause is only logged.
func (s *Selector) Select(ctx context.Context, command string, catalog []string) []string {
	ctx, span := tracer.Start(ctx, "select tools for command")
	defer span.End()

	if s == nil || s.client == nil {
		logger.Error("Tool selection skipped: client not initialized")
		return nil
	}

	prompt := fmt.Sprintf(
		`Dado o comando do usuário: %q, e a lista de ferramentas disponíveis: [%s]. `+
			`Quais ferramentas desta lista são as mais relevantes para executar o comando? `+
			`Retorne um objeto JSON com uma chave "ferramentas" contendo um array de strings com os nomes das ferramentas. `+
			`Se nenhuma for relevante, o array deve ser vazio.`,
		command, strings.Join(catalog, ", "),
	)

	result, err := gemini.PromptJSONSchema(ctx, s.client, prompt, selectionResult{})
	if err != nil {
		span.RecordError(err)
		logger.Error("Failed to determine relevant tools", "error", err)
		return nil
	}

	// The model occasionally invents names; only catalog entries survive.
	selected := make([]string, 0, len(result.Ferramentas))
	for _, name := range result.Ferramentas {
		if slices.Contains(catalog, name) && !slices.Contains(selected, name) {
			selected = append(selected, name)
		}
	}
	return selected
}
