// Package webhook delivers extracted commands to the configured automation
// endpoint and normalizes whatever comes back.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
)

// DefaultAcknowledgement is synthesized when the endpoint replies 2xx with
// an empty body.
const DefaultAcknowledgement = "Comando recebido com sucesso pelo webhook."

// Knowledge is a user-supplied context payload attached to calls when
// enabled. Content carries free text or base64 file bytes.
type Knowledge struct {
	Type     string `json:"type" yaml:"type"`
	Content  string `json:"content" yaml:"content"`
	FileName string `json:"fileName,omitempty" yaml:"file_name,omitempty"`
}

// UserInfo is static contact metadata attached to every call.
type UserInfo struct {
	Name  string `json:"name" yaml:"name"`
	Phone string `json:"phone" yaml:"phone"`
	Email string `json:"email" yaml:"email"`
}

// Request is one command delivery. Optional fields are omitted from the
// wire payload entirely when nil, never sent as null.
type Request struct {
	Command       string     `json:"comando"`
	ActiveTools   []string   `json:"ferramentasAtivas"`
	ActiveOptions []string   `json:"opcoesAtivas"`
	SystemMessage *string    `json:"systemMessage,omitempty"`
	Knowledge     *Knowledge `json:"conhecimento,omitempty"`
	UserInfo      *UserInfo  `json:"userInfo,omitempty"`
}

// Response is the normalized reply shape: parsed JSON when the endpoint
// returns JSON, otherwise the raw text wrapped under "message".
type Response map[string]any

// Message returns the response's message field, if it is textual.
func (r Response) Message() string {
	message, _ := r["message"].(string)
	return message
}

// SpokenText is the text handed back to the live model to be read aloud:
// the message field when present, otherwise the log rendering flattened
// to one line.
func (r Response) SpokenText() string {
	if message := r.Message(); message != "" {
		return message
	}
	return strings.ReplaceAll(strings.TrimPrefix(r.FormatForLog(), "Resposta: "), "\n", ", ")
}

// FormatForLog renders the response for the operator-facing activity log,
// one capitalised key per line.
func (r Response) FormatForLog() string {
	if message := r.Message(); message != "" && len(r) == 1 {
		return "Resposta: " + message
	}

	keys := make([]string, 0, len(r))
	for key := range r {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value, _ := json.MarshalIndent(r[key], "", "  ")
		label := key
		if len(label) > 0 {
			label = strings.ToUpper(label[:1]) + label[1:]
		}
		lines = append(lines, fmt.Sprintf("%s: %s", label, value))
	}
	return strings.Join(lines, "\n")
}

// StatusError reports a non-2xx reply, carrying the status and whatever
// body text the endpoint returned.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := e.Body
	if body == "" {
		body = "Não foi possível ler o corpo da resposta de erro."
	}
	return fmt.Sprintf("Webhook respondeu com status: %d. Detalhes: %s", e.Status, body)
}

// ErrCommunication wraps transport-level failures that are not already a
// recognized webhook failure.
var ErrCommunication = errors.New("Ocorreu um erro desconhecido na comunicação com o webhook.")

// Client performs single best-effort deliveries. No retries: resending a
// spoken command twice would be user-visible and wrong, so idempotency is
// the endpoint's problem.
type Client struct {
	url        string
	httpClient *http.Client
}

func NewClient(url string) *Client {
	return &Client{
		url:        url,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Send issues one POST with the request payload and normalizes the reply.
func (c *Client) Send(ctx context.Context, request Request) (Response, error) {
	ctx, span := tracer.Start(ctx, "send command to webhook")
	defer span.End()
	span.SetAttributes(attribute.String("webhook.command", request.Command))

	if request.ActiveTools == nil {
		request.ActiveTools = []string{}
	}
	if request.ActiveOptions == nil {
		request.ActiveOptions = []string{}
	}

	payload, err := json.Marshal(request)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %v", ErrCommunication, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	body, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{Status: resp.StatusCode, Body: string(body)}
		span.RecordError(statusErr)
		return nil, statusErr
	}
	if readErr != nil {
		span.RecordError(readErr)
		return nil, fmt.Errorf("%w: %v", ErrCommunication, readErr)
	}

	text := string(body)
	if text == "" {
		return Response{"message": DefaultAcknowledgement}, nil
	}

	var parsed Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Not JSON; wrap the raw text in a consistent shape.
		return Response{"message": text}, nil
	}
	return parsed, nil
}
