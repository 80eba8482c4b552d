package orchestration

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PlaybackSink is where scheduled audio is drained to. Appends are
// played in order; ClearBuffer drops whatever has not reached the
// speaker yet.
type PlaybackSink interface {
	SendAudio(audio []byte) error
	ClearBuffer()
}

type scheduledBuffer struct {
	id    string
	start time.Time
	end   time.Time
	timer *time.Timer
}

// playbackScheduler owns the "next playback start time" cursor and the
// set of scheduled-but-unfinished buffers. Scheduling is append-only:
// each buffer starts at the later of now and the previous buffer's end,
// so buffers never overlap and never reorder.
type playbackScheduler struct {
	mu sync.Mutex

	sink PlaybackSink
	now  func() time.Time

	cursor  time.Time
	pending map[string]*scheduledBuffer
}

func newPlaybackScheduler(sink PlaybackSink, now func() time.Time) *playbackScheduler {
	if now == nil {
		now = time.Now
	}
	return &playbackScheduler{
		sink:    sink,
		now:     now,
		pending: make(map[string]*scheduledBuffer),
	}
}

// Schedule appends one buffer to the playback queue and returns its
// start time. The buffer stays in the pending set until its playback
// naturally ends or an interruption stops it.
func (s *playbackScheduler) Schedule(raw []byte, duration time.Duration) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.now()
	if s.cursor.After(start) {
		start = s.cursor
	}
	end := start.Add(duration)
	s.cursor = end

	buffer := &scheduledBuffer{
		id:    uuid.NewString(),
		start: start,
		end:   end,
	}
	s.pending[buffer.id] = buffer
	buffer.timer = time.AfterFunc(end.Sub(s.now()), func() { s.finish(buffer.id) })

	if s.sink != nil {
		if err := s.sink.SendAudio(raw); err != nil {
			logger.Warn("Failed to hand audio to playback sink", "error", err)
		}
	}

	return start
}

// finish removes a buffer whose playback naturally ended.
func (s *playbackScheduler) finish(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Interrupt force-stops every still-scheduled buffer, empties the
// pending set and resets the cursor to zero so the next reply starts
// immediately instead of after stale scheduled audio.
func (s *playbackScheduler) Interrupt() {
	s.mu.Lock()
	for id, buffer := range s.pending {
		if buffer.timer != nil {
			buffer.timer.Stop()
		}
		delete(s.pending, id)
	}
	s.cursor = time.Time{}
	sink := s.sink
	s.mu.Unlock()

	if sink != nil {
		sink.ClearBuffer()
	}
}

func (s *playbackScheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *playbackScheduler) Cursor() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}
