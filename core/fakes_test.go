package orchestration

import (
	"context"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nexusdevhub/nexus-voice/core/audio"
	"github.com/nexusdevhub/nexus-voice/core/events"
	"github.com/nexusdevhub/nexus-voice/core/live"
	"github.com/nexusdevhub/nexus-voice/core/webhook"
)

func waitFor(t *testing.T, description string, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", description)
}

type fakeConnector struct {
	mu         sync.Mutex
	connectErr error
	config     live.SessionConfig
	callbacks  live.Callbacks
	session    *fakeLiveSession
	connects   int
}

func (c *fakeConnector) Connect(_ context.Context, config live.SessionConfig, callbacks live.Callbacks) (live.Session, error) {
	c.mu.Lock()
	if c.connectErr != nil {
		err := c.connectErr
		c.mu.Unlock()
		return nil, err
	}
	c.config = config
	c.callbacks = callbacks
	c.session = &fakeLiveSession{}
	c.connects++
	session := c.session
	c.mu.Unlock()

	callbacks.OnOpen()
	return session, nil
}

func (c *fakeConnector) stream() live.Callbacks {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callbacks
}

func (c *fakeConnector) lastSession() *fakeLiveSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *fakeConnector) lastConfig() live.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

type fakeLiveSession struct {
	mu            sync.Mutex
	audioBlobs    []audio.Blob
	toolResponses []live.ToolResponse
	closes        int
}

func (s *fakeLiveSession) SendAudio(blob audio.Blob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioBlobs = append(s.audioBlobs, blob)
	return nil
}

func (s *fakeLiveSession) SendToolResponse(response live.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolResponses = append(s.toolResponses, response)
	return nil
}

func (s *fakeLiveSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeLiveSession) sentAudio() []audio.Blob {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.audioBlobs)
}

func (s *fakeLiveSession) sentToolResponses() []live.ToolResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.toolResponses)
}

func (s *fakeLiveSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fakeAudioInput struct {
	mu       sync.Mutex
	onAudio  func(samples []float32)
	startErr error
	starts   int
	stops    int
	closes   int
}

func (a *fakeAudioInput) StartCapture(_ context.Context, onAudio func(samples []float32)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.startErr != nil {
		return a.startErr
	}
	a.onAudio = onAudio
	a.starts++
	return nil
}

func (a *fakeAudioInput) StopCapture() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return nil
}

func (a *fakeAudioInput) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
}

func (a *fakeAudioInput) emit(samples []float32) {
	a.mu.Lock()
	onAudio := a.onAudio
	a.mu.Unlock()
	if onAudio != nil {
		onAudio(samples)
	}
}

func (a *fakeAudioInput) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

type fakeSink struct {
	mu     sync.Mutex
	chunks [][]byte
	clears int
}

func (s *fakeSink) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = append(s.chunks, chunk)
	return nil
}

func (s *fakeSink) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

func (s *fakeSink) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func (s *fakeSink) clearCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clears
}

type fakeSelector struct {
	mu          sync.Mutex
	tools       []string
	lastCommand string
	lastCatalog []string
	calls       int
}

func (s *fakeSelector) Select(_ context.Context, command string, catalog []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommand = command
	s.lastCatalog = slices.Clone(catalog)
	s.calls++
	return slices.Clone(s.tools)
}

func (s *fakeSelector) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *fakeSelector) lastSeen() (command string, catalog []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommand, slices.Clone(s.lastCatalog)
}

type fakeWebhook struct {
	mu       sync.Mutex
	response webhook.Response
	err      error
	requests []webhook.Request
}

func (w *fakeWebhook) Send(_ context.Context, request webhook.Request) (webhook.Response, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.requests = append(w.requests, request)
	if w.err != nil {
		return nil, w.err
	}
	return w.response, nil
}

func (w *fakeWebhook) sent() []webhook.Request {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.requests)
}

type callbackRecorder struct {
	mu         sync.Mutex
	chats      []events.ChatMessage
	logs       []string
	statuses   []string
	states     []string
	processing []bool
	tools      [][]string
}

func (r *callbackRecorder) callbacks() Callbacks {
	return Callbacks{
		OnChatMessage: func(message events.ChatMessage) {
			r.mu.Lock()
			r.chats = append(r.chats, message)
			r.mu.Unlock()
		},
		OnWebhookLog: func(entry events.WebhookLogEntry) {
			r.mu.Lock()
			r.logs = append(r.logs, entry.Text)
			r.mu.Unlock()
		},
		OnStatus: func(status string) {
			r.mu.Lock()
			r.statuses = append(r.statuses, status)
			r.mu.Unlock()
		},
		OnStateChanged: func(state events.SessionStateChanged) {
			r.mu.Lock()
			r.states = append(r.states, state.State)
			r.mu.Unlock()
		},
		OnProcessing: func(processing bool) {
			r.mu.Lock()
			r.processing = append(r.processing, processing)
			r.mu.Unlock()
		},
		OnToolsSelected: func(tools []string) {
			r.mu.Lock()
			r.tools = append(r.tools, slices.Clone(tools))
			r.mu.Unlock()
		},
	}
}

func (r *callbackRecorder) lastStatus() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.statuses) == 0 {
		return ""
	}
	return r.statuses[len(r.statuses)-1]
}

func (r *callbackRecorder) lastState() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return ""
	}
	return r.states[len(r.states)-1]
}

func (r *callbackRecorder) hasLog(substring string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.logs {
		if strings.Contains(entry, substring) {
			return true
		}
	}
	return false
}

func (r *callbackRecorder) chatMessages(sender events.Sender) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var texts []string
	for _, message := range r.chats {
		if message.Sender == sender {
			texts = append(texts, message.Text)
		}
	}
	return texts
}

func (r *callbackRecorder) lastSelectedTools() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.tools) == 0 {
		return nil
	}
	return r.tools[len(r.tools)-1]
}
