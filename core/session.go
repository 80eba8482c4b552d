package orchestration

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nexusdevhub/nexus-voice/core/audio"
	"github.com/nexusdevhub/nexus-voice/core/config"
	"github.com/nexusdevhub/nexus-voice/core/events"
	"github.com/nexusdevhub/nexus-voice/core/live"
)

const sessionEventQueueCapacity = 64

type sessionEventKind int

const (
	eventInputTranscription sessionEventKind = iota
	eventOutputTranscription
	eventInterrupted
	eventAudioChunk
	eventToolCall
	eventTurnComplete
)

type sessionEvent struct {
	kind     sessionEventKind
	text     string
	raw      []byte
	call     live.FunctionCall
	queuedAt time.Time
}

// session is one open voice session: the live stream handle, the
// playback schedule and the per-turn transcript buffers. Inbound stream
// events are processed by a single worker so command handling never
// races transcript accumulation.
type session struct {
	orchestrator *Orchestrator
	settings     config.Settings
	scheduler    *playbackScheduler
	baseContext  context.Context

	liveMu sync.Mutex
	live   live.Session

	input  *textBuffer
	output *textBuffer

	processing atomic.Bool

	queue   chan sessionEvent
	closeCh chan struct{}
	done    chan struct{}

	closeOnce sync.Once
}

func newSession(ctx context.Context, o *Orchestrator, settings config.Settings, scheduler *playbackScheduler) *session {
	s := &session{
		orchestrator: o,
		settings:     settings,
		scheduler:    scheduler,
		baseContext:  ctx,
		input:        newTextBuffer(),
		output:       newTextBuffer(),
		queue:        make(chan sessionEvent, sessionEventQueueCapacity),
		closeCh:      make(chan struct{}),
		done:         make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		if err := panicSafeNamedWorker("session events", s.processEvents)(); err != nil {
			logger.Error("Session event worker stopped", "error", err)
		}
	}()

	return s
}

func (s *session) setLive(handle live.Session) {
	s.liveMu.Lock()
	s.live = handle
	s.liveMu.Unlock()
}

func (s *session) liveHandle() live.Session {
	s.liveMu.Lock()
	defer s.liveMu.Unlock()
	return s.live
}

// close shuts the live stream and signals the event worker to stop. An
// in-flight webhook delivery is abandoned rather than awaited; its
// tool-response step no-ops against the closed stream handle.
func (s *session) close() {
	s.closeOnce.Do(func() {
		if handle := s.liveHandle(); handle != nil {
			if err := handle.Close(); err != nil {
				logger.Error("Failed to close live session", "error", err)
			}
		}

		close(s.closeCh)
	})
}

// awaitCompletion blocks until the event worker has exited.
func (s *session) awaitCompletion() {
	<-s.done
}

// transportCallbacks adapts inbound stream events onto the session's
// event queue. Error and close land on the orchestrator directly so
// teardown is not stuck behind queued work.
func (s *session) transportCallbacks() live.Callbacks {
	return live.Callbacks{
		OnOpen: func() { s.orchestrator.handleActive(s) },
		OnInputTranscription: func(text string) {
			s.enqueue(sessionEvent{kind: eventInputTranscription, text: text})
		},
		OnOutputTranscription: func(text string) {
			s.enqueue(sessionEvent{kind: eventOutputTranscription, text: text})
		},
		OnInterrupted: func() {
			s.enqueue(sessionEvent{kind: eventInterrupted})
		},
		OnAudioChunk: func(raw []byte, _ string) {
			s.enqueue(sessionEvent{kind: eventAudioChunk, raw: raw})
		},
		OnToolCall: func(call live.FunctionCall) {
			s.enqueue(sessionEvent{kind: eventToolCall, call: call})
		},
		OnTurnComplete: func() {
			s.enqueue(sessionEvent{kind: eventTurnComplete})
		},
		OnError: func(err error) { s.orchestrator.handleSessionError(s, err) },
		OnClose: func(err error) {
			if err != nil {
				s.orchestrator.handleSessionError(s, err)
				return
			}
			s.orchestrator.handleSessionClose(s)
		},
	}.WithDefaults()
}

func (s *session) enqueue(event sessionEvent) {
	event.queuedAt = time.Now()
	select {
	case s.queue <- event:
	case <-s.closeCh:
	}
}

func (s *session) processEvents() error {
	for {
		// Closing wins over queued work so teardown is not stuck behind
		// a backlog.
		select {
		case <-s.closeCh:
			return nil
		default:
		}

		select {
		case <-s.closeCh:
			return nil
		case event := <-s.queue:
			s.handleEvent(event)
		}
	}
}

func (s *session) handleEvent(event sessionEvent) {
	switch event.kind {
	case eventInputTranscription:
		s.input.Append(event.text)
	case eventOutputTranscription:
		s.output.Append(event.text)
	case eventInterrupted:
		s.scheduler.Interrupt()
	case eventAudioChunk:
		s.handleAudioChunk(event.raw)
	case eventToolCall:
		s.orchestrator.handleToolCall(s.baseContext, s, event.call)
	case eventTurnComplete:
		s.handleTurnComplete()
	}
}

// handleAudioChunk schedules one reply chunk for playback. In silent
// mode the reply audio is discarded entirely.
func (s *session) handleAudioChunk(raw []byte) {
	if s.settings.SilentMode {
		return
	}

	s.finishProcessing()

	buffer, err := audio.DecodeFrames(raw, audio.PlaybackSampleRate, 1)
	if err != nil {
		logger.Warn("Dropping undecodable audio chunk", "error", err)
		return
	}
	s.scheduler.Schedule(raw, buffer.Duration())
}

// handleTurnComplete flushes the turn's transcripts: the assistant's
// speech becomes a chat entry, leftover input transcription is
// discarded because the command was already extracted.
func (s *session) handleTurnComplete() {
	s.finishProcessing()

	if leftover := strings.TrimSpace(s.input.String()); leftover != "" {
		logger.Debug("Ignoring leftover input transcription", "transcription", leftover)
	}

	if !s.output.IsEmpty() {
		s.orchestrator.emitChat(events.SenderAssistant, s.output.String())
	}
	s.input.Reset()
	s.output.Reset()
}

// finishProcessing clears the processing flag once the model starts
// replying, restoring the listening status line.
func (s *session) finishProcessing() {
	if s.processing.Load() {
		s.orchestrator.setProcessing(s, false)
		s.orchestrator.callbacks.OnStatus(listeningStatus(s.settings))
	}
}
