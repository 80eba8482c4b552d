package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nexusdevhub/nexus-voice/core/audio"
	"github.com/nexusdevhub/nexus-voice/core/live"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	// DefaultModel is the native-audio live model the session speaks to.
	DefaultModel = "gemini-2.5-flash-native-audio-preview-09-2025"
)

// Client opens live sessions against the hosted model. A zero Client is
// not usable; construct it with NewClient so the credential is resolved
// once.
type Client struct {
	apiKey   string
	endpoint string
	model    string
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithEndpoint overrides the websocket endpoint, used by tests to point
// the client at a local server.
func WithEndpoint(endpoint string) ClientOption {
	return func(c *Client) { c.endpoint = endpoint }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("GEMINI_API_KEY")
	if !ok {
		return nil, fmt.Errorf("gemini api key not found")
	}

	client := &Client{
		apiKey:   apiKey,
		endpoint: defaultEndpoint,
		model:    DefaultModel,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Connect dials the live endpoint, sends the session setup and waits for
// the server's confirmation before handing the session back. The read
// loop is already running when Connect returns; callbacks fire on its
// goroutine, strictly in arrival order.
func (c *Client) Connect(ctx context.Context, config live.SessionConfig, callbacks live.Callbacks) (live.Session, error) {
	ctx, span := tracer.Start(ctx, "connect live session")
	defer span.End()

	callbacks = callbacks.WithDefaults()

	connectURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid live endpoint: %w", err)
	}
	queryParams := connectURL.Query()
	queryParams.Set("key", c.apiKey)
	connectURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, connectURL.String(), nil)
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to live model: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	session := &liveSession{conn: conn, callbacks: callbacks}

	if err := session.writeJSON(clientMessage{Setup: newSetupPayload(c.model, config)}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send session setup: %w", err)
	}

	// The first server message acknowledges the setup; anything else means
	// the session was rejected.
	var ack serverMessage
	if _, raw, err := conn.ReadMessage(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read setup acknowledgement: %w", err)
	} else if err := json.Unmarshal(raw, &ack); err != nil || ack.SetupComplete == nil {
		conn.Close()
		return nil, fmt.Errorf("live session setup was not acknowledged")
	}

	go session.readAndProcessMessages()
	callbacks.OnOpen()

	return session, nil
}

func newSetupPayload(model string, config live.SessionConfig) *setupPayload {
	setup := &setupPayload{
		Model:             "models/" + model,
		GenerationConfig:  &generationConfig{ResponseModalities: []string{"AUDIO"}},
		SystemInstruction: &content{Parts: []part{{Text: config.SystemInstruction}}},
	}

	if config.TranscribeInput {
		setup.InputAudioTranscription = &struct{}{}
	}
	if config.TranscribeOutput {
		setup.OutputAudioTranscription = &struct{}{}
	}

	if len(config.Functions) > 0 {
		declarations := make([]functionDeclaration, 0, len(config.Functions))
		for _, function := range config.Functions {
			parameters := &schema{Type: "OBJECT", Properties: map[string]schema{}, Required: []string{function.Parameter}}
			parameters.Properties[function.Parameter] = schema{Type: "STRING", Description: function.ParameterDescription}
			declarations = append(declarations, functionDeclaration{
				Name:        function.Name,
				Description: function.Description,
				Parameters:  parameters,
			})
		}
		setup.Tools = []tool{{FunctionDeclarations: declarations}}
	}

	return setup
}

type liveSession struct {
	conn   *websocket.Conn
	connMu sync.Mutex

	closeOnce sync.Once
	closed    bool

	callbacks live.Callbacks
}

// SendAudio hands one captured frame to the stream. It is fire-and-forget
// from the caller's point of view: the write either lands or the read
// loop will surface the broken connection.
func (s *liveSession) SendAudio(blob audio.Blob) error {
	return s.writeJSON(clientMessage{RealtimeInput: &realtimeInput{
		Audio: &inlineData{Data: blob.Data, MIMEType: blob.MIMEType},
	}})
}

func (s *liveSession) SendToolResponse(response live.ToolResponse) error {
	return s.writeJSON(clientMessage{ToolResponse: &toolResponsePayload{
		FunctionResponses: []functionResponse{{
			ID:       response.ID,
			Name:     response.Name,
			Response: map[string]any{"result": response.Result},
		}},
	}})
}

func (s *liveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.connMu.Lock()
		s.closed = true
		err = s.conn.Close()
		s.connMu.Unlock()
	})
	return err
}

func (s *liveSession) writeJSON(message clientMessage) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.closed {
		return fmt.Errorf("live session is closed")
	}
	if err := s.conn.WriteJSON(message); err != nil {
		return fmt.Errorf("failed to write to live session: %w", err)
	}
	return nil
}

func (s *liveSession) readAndProcessMessages() {
	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.connMu.Lock()
			closedLocally := s.closed
			s.connMu.Unlock()

			if closedLocally || isExpectedClose(err) {
				s.callbacks.OnClose(nil)
			} else {
				s.callbacks.OnError(fmt.Errorf("live session transport error: %w", err))
				s.callbacks.OnClose(err)
			}
			return
		}

		s.processMessage(raw)
	}
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}

func (s *liveSession) processMessage(raw []byte) {
	var message serverMessage
	if err := json.Unmarshal(raw, &message); err != nil {
		logger.Warn("Failed to unmarshal live server message", "error", err)
		return
	}

	if message.ServerContent != nil {
		s.processServerContent(*message.ServerContent)
	}

	if message.ToolCall != nil {
		for _, call := range message.ToolCall.FunctionCalls {
			s.callbacks.OnToolCall(live.FunctionCall{ID: call.ID, Name: call.Name, Args: call.Args})
		}
	}

	if message.GoAway != nil {
		logger.Info("Live session received goAway", "timeLeft", message.GoAway.TimeLeft)
	}
}

func (s *liveSession) processServerContent(serverContent serverContent) {
	if serverContent.OutputTranscription != nil {
		s.callbacks.OnOutputTranscription(serverContent.OutputTranscription.Text)
	}
	if serverContent.InputTranscription != nil {
		s.callbacks.OnInputTranscription(serverContent.InputTranscription.Text)
	}

	if serverContent.Interrupted {
		s.callbacks.OnInterrupted()
	}

	if serverContent.ModelTurn != nil {
		for _, turnPart := range serverContent.ModelTurn.Parts {
			if turnPart.InlineData == nil || turnPart.InlineData.Data == "" {
				continue
			}
			raw, err := audio.DecodeBase64(turnPart.InlineData.Data)
			if err != nil {
				logger.Warn("Failed to decode inline audio payload", "error", err)
				continue
			}
			s.callbacks.OnAudioChunk(raw, turnPart.InlineData.MIMEType)
		}
	}

	if serverContent.TurnComplete {
		s.callbacks.OnTurnComplete()
	}
}
