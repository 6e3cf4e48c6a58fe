package app

import (
	"context"
	"time"

	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/protocol"
)

type roundTimer struct {
	gen    uint64
	cancel context.CancelFunc
}

type tickOutcome int

const (
	tickContinue tickOutcome = iota
	tickAllAnswered
	tickRevealed
	tickStale
)

// startRoundLocked replaces any running timer. The generation number lets a timer goroutine that
// lost a race with a phase change detect that it is stale.
func (h *Host) startRoundLocked() {
	h.stopRoundLocked()
	h.roundGen++
	ctx, cancel := context.WithCancel(h.ctx)
	h.round = &roundTimer{gen: h.roundGen, cancel: cancel}
	h.lastTick = -1
	go h.runRound(ctx, h.roundGen)
}

func (h *Host) stopRoundLocked() {
	if h.round != nil {
		h.round.cancel()
		h.round = nil
	}
}

func (h *Host) runRound(ctx context.Context, gen uint64) {
	ticker := h.clock.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
		}

		switch h.roundTick(gen) {
		case tickContinue:
			continue
		case tickAllAnswered:
			ticker.Stop()
			select {
			case <-ctx.Done():
				return
			case <-h.clock.After(h.cfg.RevealGrace):
			}
			h.mu.Lock()
			if h.roundActiveLocked(gen) {
				h.revealLocked("all answered")
			}
			h.mu.Unlock()
			return
		default:
			return
		}
	}
}

// roundTick evaluates one timer frame: everyone answered first, then the countdown tick, then the
// timeout.
func (h *Host) roundTick(gen uint64) tickOutcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.roundActiveLocked(gen) {
		return tickStale
	}
	scenario, ok := h.state.CurrentScenario()
	if !ok {
		h.revealLocked("no scenario")
		return tickRevealed
	}
	if h.state.AllAnswered() {
		return tickAllAnswered
	}

	remaining := remainingSeconds(h.state.RoundStartTime, scenario.TimeLimit, h.clock.Now())
	if tickDue(remaining, h.cfg.TickWindow, h.lastTick, h.cfg.TickEveryFrame) {
		h.lastTick = remaining
		if ev, err := protocol.NewPlaySound(protocol.SoundTick); err == nil {
			h.enqueueLocked(outbound{event: ev})
		}
	}
	if remaining == 0 {
		h.revealLocked("timeout")
		return tickRevealed
	}
	return tickContinue
}

func (h *Host) roundActiveLocked(gen uint64) bool {
	return h.open &&
		h.state.Phase == domain.PhasePlaying &&
		h.round != nil &&
		h.round.gen == gen
}

// remainingSeconds is the whole seconds left in a round, never negative.
func remainingSeconds(start *time.Time, limit int, now time.Time) int {
	elapsed := 0
	if start != nil {
		elapsed = int(now.Sub(*start) / time.Second)
	}
	return max(limit-elapsed, 0)
}

// tickDue reports whether a countdown tick should sound for remaining. By default a tick sounds
// once per remaining second; everyFrame sounds it on every timer frame inside the window.
func tickDue(remaining int, window time.Duration, lastTicked int, everyFrame bool) bool {
	if remaining <= 0 || time.Duration(remaining)*time.Second > window {
		return false
	}
	return everyFrame || remaining != lastTicked
}
