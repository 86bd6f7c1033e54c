// Package dialog implements the passive-listening call agent: a
// cooperative state machine that greets, silently collects discharge
// instructions, and reads back a verified summary.
package dialog

import (
	"context"
	"log/slog"
	"sync"
)

// Speaker synthesizes audible speech into the call.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Gate sits between the controller and the TTS channel and enforces the
// passive-mode mute at the session level: while muted, nothing reaches
// the speaker regardless of what the model produced.
type Gate struct {
	mu      sync.Mutex
	muted   bool
	speaker Speaker
}

// NewGate wraps a speaker in an unmuted gate.
func NewGate(speaker Speaker) *Gate {
	return &Gate{speaker: speaker}
}

// SetMuted flips audio suppression.
func (g *Gate) SetMuted(muted bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.muted = muted
}

// Muted reports whether audio is currently suppressed.
func (g *Gate) Muted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.muted
}

// Say speaks text unless the gate is muted. Muted speech is dropped, not
// queued.
func (g *Gate) Say(ctx context.Context, text string) error {
	g.mu.Lock()
	muted := g.muted
	g.mu.Unlock()
	if muted {
		slog.Debug("Suppressed speech while passive", "length", len(text))
		return nil
	}
	return g.speaker.Speak(ctx, text)
}
