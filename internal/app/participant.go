package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/protocol"
)

// ParticipantConfig tunes the participant's join handshake.
type ParticipantConfig struct {
	// RequestStateDelay is how long after PLAYER_JOIN the participant asks for a resync.
	RequestStateDelay time.Duration
	AvatarID          int
}

func DefaultParticipantConfig() ParticipantConfig {
	return ParticipantConfig{RequestStateDelay: 500 * time.Millisecond}
}

type ParticipantOption func(*Participant)

func WithParticipantClock(clock clockwork.Clock) ParticipantOption {
	return func(p *Participant) { p.clock = clock }
}

func WithParticipantFeedback(feedback Feedback) ParticipantOption {
	return func(p *Participant) { p.feedback = feedback }
}

// WithSyncHook is called with every accepted snapshot.
func WithSyncHook(hook func(domain.GameState)) ParticipantOption {
	return func(p *Participant) { p.onSync = hook }
}

// WithPlayerID fixes the local player id instead of generating one.
func WithPlayerID(id string) ParticipantOption {
	return func(p *Participant) { p.playerID = id }
}

// Participant mirrors the host's snapshots and submits join/answer events. It never mutates game
// state itself.
type Participant struct {
	conn     *Connection
	cfg      ParticipantConfig
	clock    clockwork.Clock
	feedback Feedback
	onSync   func(domain.GameState)

	mu          sync.Mutex
	playerID    string
	name        string
	room        string
	joined      bool
	state       *domain.GameState
	answered    int
	unsubscribe func()
	resync      clockwork.Timer
	log         zerolog.Logger
}

func NewParticipant(bus Bus, cfg ParticipantConfig, opts ...ParticipantOption) *Participant {
	p := &Participant{
		conn:     NewConnection(bus),
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		feedback: silent,
		answered: -1,
		log:      log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.playerID == "" {
		p.playerID = "player-" + uuid.NewString()
	}
	return p
}

func (p *Participant) PlayerID() string {
	return p.playerID
}

// Join connects to roomCode, announces the player and, after a short delay, asks the host to
// resend its snapshot in case the first broadcast was missed.
func (p *Participant) Join(ctx context.Context, roomCode, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.ErrMissingName
	}

	p.mu.Lock()
	p.stopLocked()
	p.joined = false
	p.state = nil
	p.answered = -1
	p.mu.Unlock()

	if err := p.conn.Open(ctx, roomCode); err != nil {
		return fmt.Errorf("join room %s: %w", roomCode, err)
	}
	unsubscribe, err := p.conn.Subscribe(p.HandleEvent)
	if err != nil {
		return fmt.Errorf("join room %s: %w", roomCode, err)
	}

	p.mu.Lock()
	p.unsubscribe = unsubscribe
	p.name = name
	p.room = roomCode
	p.joined = true
	p.log = log.With().Str("room", roomCode).Str("player_id", p.playerID).Logger()
	p.mu.Unlock()

	ev, err := protocol.NewPlayerJoin(domain.Player{ID: p.playerID, Name: name, AvatarID: p.cfg.AvatarID})
	if err == nil {
		err = p.conn.Publish(ctx, ev)
	}
	if err != nil {
		p.mu.Lock()
		p.stopLocked()
		p.joined = false
		p.room = ""
		p.mu.Unlock()
		return fmt.Errorf("announce join: %w", err)
	}

	p.mu.Lock()
	if p.joined && p.room == roomCode {
		p.resync = p.clock.AfterFunc(p.cfg.RequestStateDelay, func() { p.requestState(roomCode) })
	}
	p.mu.Unlock()
	p.log.Info().Str("name", name).Msg("joined room")
	return nil
}

func (p *Participant) requestState(roomCode string) {
	p.mu.Lock()
	current := p.joined && p.room == roomCode
	p.mu.Unlock()
	if !current {
		return
	}

	ev, err := protocol.NewRequestState(p.playerID)
	if err != nil {
		return
	}
	if err := p.conn.Publish(context.Background(), ev); err != nil {
		p.log.Warn().Err(err).Msg("request state")
	}
}

// HandleEvent applies host events. Snapshots for another room or older than the current one are
// discarded.
func (p *Participant) HandleEvent(ev protocol.Event) {
	if !protocol.ConsumedBy(ev.Type, protocol.RoleParticipant) {
		return
	}
	switch ev.Type {
	case protocol.KindSyncState:
		state, err := protocol.DecodeSyncState(ev)
		if err != nil {
			p.log.Warn().Err(err).Msg("dropping snapshot")
			return
		}
		p.applySnapshot(state)
	case protocol.KindPlaySound:
		sound, err := protocol.DecodePlaySound(ev)
		if err != nil {
			p.log.Debug().Err(err).Msg("dropping sound")
			return
		}
		p.feedback.Play(sound)
	}
}

func (p *Participant) applySnapshot(state domain.GameState) {
	p.mu.Lock()
	if !p.joined || state.RoomCode != p.room {
		p.mu.Unlock()
		return
	}
	if p.state != nil && state.Version < p.state.Version {
		p.log.Debug().Uint64("version", state.Version).Uint64("have", p.state.Version).Msg("stale snapshot dropped")
		p.mu.Unlock()
		return
	}
	p.state = &state
	hook := p.onSync
	p.mu.Unlock()

	if hook != nil {
		hook(state.Clone())
	}
}

// Answer submits optionID for the current round. Only the first answer per round is sent.
func (p *Participant) Answer(ctx context.Context, optionID string) error {
	p.mu.Lock()
	if !p.joined {
		p.mu.Unlock()
		return domain.ErrNotJoined
	}
	if p.state == nil {
		p.mu.Unlock()
		return domain.ErrNotSynced
	}
	if p.state.Phase != domain.PhasePlaying {
		phase := p.state.Phase
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrInvalidPhase, phase)
	}
	index := p.state.CurrentScenarioIndex
	me, _ := p.state.Player(p.playerID)
	if p.answered == index || me.HasAnswered() {
		p.mu.Unlock()
		return domain.ErrAlreadyAnswered
	}
	scenario, _ := p.state.CurrentScenario()
	if _, ok := scenario.Option(optionID); !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrUnknownOption, optionID)
	}
	taken := 0
	if p.state.RoundStartTime != nil {
		taken = max(int(p.clock.Since(*p.state.RoundStartTime)/time.Second), 0)
	}
	p.answered = index
	p.mu.Unlock()

	ev, err := protocol.NewPlayerAnswer(protocol.AnswerPayload{
		PlayerID:  p.playerID,
		AnswerID:  optionID,
		TimeTaken: taken,
	})
	if err == nil {
		err = p.conn.Publish(ctx, ev)
	}
	if err != nil {
		p.mu.Lock()
		if p.answered == index {
			p.answered = -1
		}
		p.mu.Unlock()
		return fmt.Errorf("submit answer: %w", err)
	}
	p.feedback.Play(protocol.SoundClick)
	return nil
}

// State returns the latest snapshot, if any.
func (p *Participant) State() (domain.GameState, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return domain.GameState{}, false
	}
	return p.state.Clone(), true
}

// Me returns this participant's roster entry from the latest snapshot.
func (p *Participant) Me() (domain.Player, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == nil {
		return domain.Player{}, false
	}
	return p.state.Player(p.playerID)
}

// Answered reports whether an answer was submitted for the current round.
func (p *Participant) Answered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != nil && p.answered == p.state.CurrentScenarioIndex
}

func (p *Participant) Close() error {
	p.mu.Lock()
	p.stopLocked()
	p.joined = false
	p.mu.Unlock()
	return p.conn.Close()
}

func (p *Participant) stopLocked() {
	if p.resync != nil {
		p.resync.Stop()
		p.resync = nil
	}
	if p.unsubscribe != nil {
		p.unsubscribe()
		p.unsubscribe = nil
	}
}
