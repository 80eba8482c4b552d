package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Blob is a base64-encoded block of PCM samples tagged with the wire label
// the live model expects for realtime media.
type Blob struct {
	Data     string
	MIMEType string
}

// EncodeFrame converts one block of float samples in [-1, 1] into a
// base64-encoded little-endian s16 payload at the capture rate.
//
// Values outside [-1, 1] are clamped rather than wrapped so a hot
// microphone clips instead of producing crackle.
func EncodeFrame(samples []float32) Blob {
	raw := make([]byte, len(samples)*2)
	for i, sample := range samples {
		if sample > 1 {
			sample = 1
		} else if sample < -1 {
			sample = -1
		}
		binary.LittleEndian.PutUint16(raw[i*2:], uint16(int16(sample*math.MaxInt16)))
	}

	return Blob{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: GetCaptureEncodingInfo().MIMEType(),
	}
}

// Buffer is a decoded block of playable audio, de-interleaved per channel.
type Buffer struct {
	Channels   [][]float32
	SampleRate int
}

// Duration reports how long the buffer plays for at its sample rate.
func (b Buffer) Duration() time.Duration {
	if b.SampleRate == 0 || len(b.Channels) == 0 {
		return 0
	}
	return time.Duration(float64(len(b.Channels[0])) / float64(b.SampleRate) * float64(time.Second))
}

// DecodeBase64 decodes a base64 payload from the live model into raw PCM
// bytes.
func DecodeBase64(data string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 audio payload: %w", err)
	}
	return raw, nil
}

// DecodeFrames interprets raw bytes as interleaved little-endian s16
// samples, normalizes them to [-1, 1] and splits them across channels.
func DecodeFrames(raw []byte, sampleRate int, channels int) (Buffer, error) {
	if channels <= 0 {
		return Buffer{}, fmt.Errorf("invalid channel count: %d", channels)
	}
	if len(raw)%2 != 0 {
		// A trailing odd byte means a sample was split across messages;
		// the upstream never does that, so treat it as corruption.
		return Buffer{}, fmt.Errorf("pcm payload length %d is not sample-aligned", len(raw))
	}

	sampleCount := len(raw) / 2
	frames := sampleCount / channels

	buffer := Buffer{
		Channels:   make([][]float32, channels),
		SampleRate: sampleRate,
	}
	for channel := range buffer.Channels {
		buffer.Channels[channel] = make([]float32, frames)
	}

	for i := 0; i < frames*channels; i++ {
		sample := int16(binary.LittleEndian.Uint16(raw[i*2:]))
		buffer.Channels[i%channels][i/channels] = float32(sample) / math.MaxInt16
	}

	return buffer, nil
}
