package orchestration

import (
	"context"
	"sync/atomic"
)

// audioInput is the input facade used to normalize capture behavior: it
// tolerates a missing client and keeps capture idempotent.
type audioInput struct {
	base AudioInput

	// connected reports whether a concrete input client is currently configured.
	connected atomic.Bool
	// isCapturing reports whether the input client is currently capturing audio.
	isCapturing atomic.Bool

	// onAudio is called with every captured block of samples.
	onAudio func(samples []float32)
}

func newAudioInput(client AudioInput, onAudio func(samples []float32)) *audioInput {
	if onAudio == nil {
		onAudio = func([]float32) {}
	}

	input := audioInput{onAudio: onAudio}
	input.Set(client)
	return &input
}

func (a *audioInput) Set(client AudioInput) {
	if a == nil {
		return
	}

	a.base = client
	a.connected.Store(client != nil)
	a.isCapturing.Store(false)
}

func (a *audioInput) IsConfigured() bool { return a != nil && a.connected.Load() }
func (a *audioInput) IsCapturing() bool  { return a != nil && a.isCapturing.Load() }

func (a *audioInput) StartCapture(ctx context.Context) error {
	if a == nil || !a.IsConfigured() {
		return nil
	}

	if !a.isCapturing.CompareAndSwap(false, true) {
		return nil
	}

	if err := a.base.StartCapture(ctx, a.onAudio); err != nil {
		a.isCapturing.Store(false)
		return err
	}
	return nil
}

func (a *audioInput) StopCapture() error {
	if a == nil || !a.IsConfigured() {
		return nil
	}

	if !a.isCapturing.CompareAndSwap(true, false) {
		return nil
	}

	return a.base.StopCapture()
}

func (a *audioInput) Close() error {
	if a == nil || !a.IsConfigured() {
		return nil
	}

	err := a.StopCapture()
	a.base.Close()
	a.connected.Store(false)
	return err
}
