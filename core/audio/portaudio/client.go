// Package portaudio provides an alternate microphone backend for setups
// where miniaudio misbehaves (notably some ALSA/JACK combinations).
// Playback still goes through the miniaudio sink; this client only
// captures.
package portaudio

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	"github.com/nexusdevhub/nexus-voice/core/audio"
)

type Client struct {
	bufferSize int
	stream     *portaudio.Stream
	stopped    atomic.Bool

	in []int16
}

func NewClient(bufferSize int) (*Client, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	in := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.CaptureSampleRate, bufferSize, in)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}

	return &Client{
		bufferSize: bufferSize,
		stream:     stream,
		in:         in,
	}, nil
}

func (c *Client) StartCapture(ctx context.Context, onAudio func(samples []float32)) error {
	if err := c.stream.Start(); err != nil {
		return fmt.Errorf("failed to start portaudio stream: %w", err)
	}
	c.stopped.Store(false)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.stopped.Load() {
					return
				}
				if err := c.stream.Read(); err != nil {
					log.Printf("Failed to read from portaudio stream: %v", err)
					continue
				}

				samples := make([]float32, len(c.in))
				for i, sample := range c.in {
					samples[i] = float32(sample) / math.MaxInt16
				}
				onAudio(samples)
			}
		}
	}()

	return nil
}

func (c *Client) StopCapture() error {
	c.stopped.Store(true)
	if err := c.stream.Stop(); err != nil {
		return fmt.Errorf("failed to stop portaudio stream: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	c.stopped.Store(true)
	c.stream.Close()
	portaudio.Terminate()
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return audio.GetCaptureEncodingInfo()
}
