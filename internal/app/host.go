package app

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/protocol"
)

// Feedback plays a local audio/visual cue.
type Feedback interface {
	Play(sound protocol.Sound)
}

// FeedbackFunc adapts a function to Feedback.
type FeedbackFunc func(protocol.Sound)

func (f FeedbackFunc) Play(sound protocol.Sound) { f(sound) }

var silent = FeedbackFunc(func(protocol.Sound) {})

// HostConfig tunes the auto-advance round timer.
type HostConfig struct {
	TickInterval   time.Duration
	RevealGrace    time.Duration
	TickWindow     time.Duration
	TickEveryFrame bool
}

func DefaultHostConfig() HostConfig {
	return HostConfig{
		TickInterval: 500 * time.Millisecond,
		RevealGrace:  time.Second,
		TickWindow:   5 * time.Second,
	}
}

type HostOption func(*Host)

func WithHostClock(clock clockwork.Clock) HostOption {
	return func(h *Host) { h.clock = clock }
}

func WithHostFeedback(feedback Feedback) HostOption {
	return func(h *Host) { h.feedback = feedback }
}

// WithSnapshotHook is called with every snapshot after it has been published.
func WithSnapshotHook(hook func(domain.GameState)) HostOption {
	return func(h *Host) { h.onSnapshot = hook }
}

// WithRoomCode fixes the room code instead of generating one.
func WithRoomCode(code string) HostOption {
	return func(h *Host) { h.roomCode = code }
}

type outbound struct {
	event    protocol.Event
	snapshot *domain.GameState
	local    protocol.Sound
}

// Host owns the authoritative GameState of one room. Every mutation bumps the snapshot version
// and queues a full SYNC_STATE; a single publisher goroutine sends the queue in order.
type Host struct {
	conn       *Connection
	cfg        HostConfig
	clock      clockwork.Clock
	feedback   Feedback
	onSnapshot func(domain.GameState)
	roomCode   string

	mu          sync.Mutex
	state       domain.GameState
	open        bool
	ctx         context.Context
	cancel      context.CancelFunc
	pending     []outbound
	wake        chan struct{}
	done        chan struct{}
	unsubscribe func()
	round       *roundTimer
	roundGen    uint64
	lastTick    int
	log         zerolog.Logger
}

func NewHost(bus Bus, cfg HostConfig, opts ...HostOption) *Host {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultHostConfig().TickInterval
	}
	h := &Host{
		conn:     NewConnection(bus),
		cfg:      cfg,
		clock:    clockwork.NewRealClock(),
		feedback: silent,
		log:      log.Logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Open creates the room: connects to its channel, resets state to LOBBY and broadcasts the first
// snapshot. Transport failures are returned as-is; there is no retry.
func (h *Host) Open(ctx context.Context) (string, error) {
	h.mu.Lock()
	if h.open {
		code := h.state.RoomCode
		h.mu.Unlock()
		return code, nil
	}
	h.mu.Unlock()

	code := h.roomCode
	if code == "" {
		code = GenerateRoomCode()
	}
	if err := h.conn.Open(ctx, code); err != nil {
		return "", fmt.Errorf("open room %s: %w", code, err)
	}

	h.mu.Lock()
	h.state = domain.NewGameState(code)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	h.pending = nil
	h.wake = make(chan struct{}, 1)
	h.done = make(chan struct{})
	h.open = true
	h.log = log.With().Str("room", code).Logger()
	h.enqueueSnapshotLocked()
	go h.runPublisher(h.ctx, h.done)
	h.mu.Unlock()

	unsubscribe, err := h.conn.Subscribe(h.HandleEvent)
	if err != nil {
		_ = h.Close()
		return "", fmt.Errorf("subscribe room %s: %w", code, err)
	}
	h.mu.Lock()
	h.unsubscribe = unsubscribe
	h.mu.Unlock()

	h.log.Info().Msg("room opened")
	return code, nil
}

// Close stops the round timer, flushes queued events and tears down the channel.
func (h *Host) Close() error {
	h.mu.Lock()
	if !h.open {
		h.mu.Unlock()
		return nil
	}
	h.open = false
	h.stopRoundLocked()
	select {
	case h.wake <- struct{}{}:
	default:
	}
	done, cancel, unsubscribe := h.done, h.cancel, h.unsubscribe
	h.unsubscribe = nil
	h.mu.Unlock()

	<-done
	cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	h.log.Info().Msg("room closed")
	return h.conn.Close()
}

// RoomCode returns the code of the open room.
func (h *Host) RoomCode() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.RoomCode
}

// Snapshot returns a copy of the authoritative state.
func (h *Host) Snapshot() domain.GameState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state.Clone()
}

// HandleEvent applies a participant event. Kinds the host does not consume are ignored.
func (h *Host) HandleEvent(ev protocol.Event) {
	if !protocol.ConsumedBy(ev.Type, protocol.RoleHost) {
		return
	}
	switch ev.Type {
	case protocol.KindPlayerJoin:
		player, err := protocol.DecodePlayerJoin(ev)
		if err != nil {
			h.log.Warn().Err(err).Msg("dropping join")
			return
		}
		h.join(player)
	case protocol.KindPlayerAnswer:
		answer, err := protocol.DecodePlayerAnswer(ev)
		if err != nil {
			h.log.Warn().Err(err).Msg("dropping answer")
			return
		}
		h.answer(answer)
	case protocol.KindRequestState:
		req, err := protocol.DecodeRequestState(ev)
		if err != nil {
			h.log.Debug().Err(err).Msg("state request without payload")
		}
		h.resync(req.PlayerID)
	}
}

func (h *Host) join(player domain.Player) {
	if player.ID == "" {
		h.log.Warn().Str("name", player.Name).Msg("join without player id")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return
	}
	if h.state.PlayerIndex(player.ID) >= 0 {
		h.log.Debug().Str("player_id", player.ID).Msg("duplicate join ignored")
		return
	}
	h.state.Players = append(h.state.Players, domain.Player{
		ID:       player.ID,
		Name:     player.Name,
		AvatarID: player.AvatarID,
	})
	h.log.Info().Str("player_id", player.ID).Str("name", player.Name).Int("players", len(h.state.Players)).Msg("player joined")
	h.commitLocked()
	h.enqueueLocked(outbound{local: protocol.SoundJoin})
}

func (h *Host) answer(answer protocol.AnswerPayload) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return
	}
	// Late answers are still accepted during the reveal, before scoring.
	if h.state.Phase != domain.PhasePlaying && h.state.Phase != domain.PhaseResultReveal {
		h.log.Debug().Str("player_id", answer.PlayerID).Str("phase", string(h.state.Phase)).Msg("answer outside round ignored")
		return
	}
	idx := h.state.PlayerIndex(answer.PlayerID)
	if idx < 0 || answer.AnswerID == "" {
		h.log.Debug().Str("player_id", answer.PlayerID).Msg("answer from unknown player ignored")
		return
	}
	player := &h.state.Players[idx]
	if player.HasAnswered() {
		return
	}
	taken := max(answer.TimeTaken, 0)
	player.LastAnswerID = answer.AnswerID
	player.LastAnswerTime = &taken
	h.log.Debug().Str("player_id", player.ID).Str("answer_id", answer.AnswerID).Int("time_taken", taken).Msg("answer recorded")
	h.commitLocked()
}

func (h *Host) resync(playerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return
	}
	h.log.Debug().Str("player_id", playerID).Msg("state requested")
	h.enqueueSnapshotLocked()
}

// Start moves LOBBY to PLAYING on the first scenario.
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requirePhaseLocked(domain.PhaseLobby); err != nil {
		return err
	}
	if len(h.state.Players) == 0 {
		return domain.ErrNoPlayers
	}
	if len(h.state.Scenarios) == 0 {
		return domain.ErrNoScenarios
	}
	h.state.Phase = domain.PhasePlaying
	h.state.CurrentScenarioIndex = 0
	h.beginRoundLocked()
	h.log.Info().Int("players", len(h.state.Players)).Int("scenarios", len(h.state.Scenarios)).Msg("game started")
	h.commitLocked()
	return nil
}

// Reveal ends the current round early.
func (h *Host) Reveal() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requirePhaseLocked(domain.PhasePlaying); err != nil {
		return err
	}
	h.revealLocked("manual")
	return nil
}

// Advance scores the round and moves RESULT_REVEAL to LEADERBOARD.
func (h *Host) Advance() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requirePhaseLocked(domain.PhaseResultReveal); err != nil {
		return err
	}
	scenario, ok := h.state.CurrentScenario()
	if !ok {
		return domain.ErrNoScenarios
	}
	scoreRound(h.state.Players, scenario)
	h.state.Phase = domain.PhaseLeaderboard
	h.commitLocked()
	return nil
}

// scoreRound applies one round's answers to players and re-sorts them by score, keeping the prior
// order among equal scores.
func scoreRound(players []domain.Player, scenario domain.ScenarioNode) {
	for i := range players {
		p := &players[i]
		opt, ok := scenario.Option(p.LastAnswerID)
		if !ok {
			p.Streak = 0
			continue
		}
		streak := 0
		if opt.IsOptimal {
			streak = p.Streak + 1
		}
		taken := 0
		if p.LastAnswerTime != nil {
			taken = *p.LastAnswerTime
		}
		added := Score(float64(scenario.TimeLimit-taken), float64(scenario.TimeLimit), streak, opt.IsOptimal)
		if added > 0 {
			p.Score += added
		}
		p.Streak = streak
	}
	sort.SliceStable(players, func(i, j int) bool {
		return players[i].Score > players[j].Score
	})
}

// Next moves LEADERBOARD to the next round, or to FINISHED after the last scenario.
func (h *Host) Next() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requirePhaseLocked(domain.PhaseLeaderboard); err != nil {
		return err
	}
	if h.state.IsLastScenario() {
		h.state.Phase = domain.PhaseFinished
		h.log.Info().Msg("game finished")
		h.commitLocked()
		if ev, err := protocol.NewPlaySound(protocol.SoundVictory); err == nil {
			h.enqueueLocked(outbound{event: ev, local: protocol.SoundVictory})
		}
		return nil
	}
	h.state.CurrentScenarioIndex++
	h.state.Phase = domain.PhasePlaying
	h.beginRoundLocked()
	h.commitLocked()
	return nil
}

// LoadScenarios replaces the scenario list while in the lobby.
func (h *Host) LoadScenarios(scenarios []domain.ScenarioNode) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requirePhaseLocked(domain.PhaseLobby); err != nil {
		return err
	}
	if len(scenarios) == 0 {
		return domain.ErrNoScenarios
	}
	h.state.Scenarios = normalizeScenarios(scenarios)
	h.log.Info().Int("scenarios", len(scenarios)).Msg("scenarios loaded")
	h.commitLocked()
	return nil
}

// SetTimeLimit applies a round length to every loaded scenario while in the lobby.
func (h *Host) SetTimeLimit(seconds int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.requirePhaseLocked(domain.PhaseLobby); err != nil {
		return err
	}
	if seconds <= 0 {
		return domain.ErrInvalidTimeLimit
	}
	h.state.Scenarios = WithTimeLimit(h.state.Scenarios, seconds)
	h.commitLocked()
	return nil
}

// ReplaceState makes a presentation-side edit of the room content the new authoritative snapshot
// and broadcasts it. Only the roster and the scenarios may change: the phase and scenario index move
// through the intents, so an edit that alters either is rejected with ErrInvalidPhase. The room code
// is immutable and duplicate player ids are collapsed to their first entry.
func (h *Host) ReplaceState(next domain.GameState) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return domain.ErrRoomNotOpen
	}
	if next.Phase != "" && next.Phase != h.state.Phase {
		return fmt.Errorf("%w: cannot replace %s with %s", domain.ErrInvalidPhase, h.state.Phase, next.Phase)
	}
	if next.CurrentScenarioIndex != h.state.CurrentScenarioIndex {
		return fmt.Errorf("%w: scenario index %d cannot become %d", domain.ErrInvalidPhase,
			h.state.CurrentScenarioIndex, next.CurrentScenarioIndex)
	}

	next = next.Clone()
	scenarios := normalizeScenarios(next.Scenarios)
	if h.state.Phase != domain.PhaseLobby && len(scenarios) <= h.state.CurrentScenarioIndex {
		return fmt.Errorf("%w: %d scenarios in %s at index %d", domain.ErrNoScenarios,
			len(scenarios), h.state.Phase, h.state.CurrentScenarioIndex)
	}
	h.state.Scenarios = scenarios
	h.state.Players = dedupePlayers(next.Players)
	h.commitLocked()
	return nil
}

func (h *Host) requirePhaseLocked(phase domain.Phase) error {
	if !h.open {
		return domain.ErrRoomNotOpen
	}
	if h.state.Phase != phase {
		return fmt.Errorf("%w: in %s, need %s", domain.ErrInvalidPhase, h.state.Phase, phase)
	}
	return nil
}

func (h *Host) beginRoundLocked() {
	for i := range h.state.Players {
		h.state.Players[i].LastAnswerID = ""
		h.state.Players[i].LastAnswerTime = nil
	}
	now := h.clock.Now()
	h.state.RoundStartTime = &now
	h.startRoundLocked()
}

func (h *Host) revealLocked(reason string) {
	h.stopRoundLocked()
	h.state.Phase = domain.PhaseResultReveal
	h.state.RoundStartTime = nil
	h.log.Info().Int("scenario", h.state.CurrentScenarioIndex).Str("reason", reason).Msg("round revealed")
	h.commitLocked()
}

// commitLocked bumps the version and queues the snapshot.
func (h *Host) commitLocked() {
	h.state.Version++
	h.enqueueSnapshotLocked()
}

func (h *Host) enqueueSnapshotLocked() {
	snapshot := h.state.Clone()
	ev, err := protocol.NewSyncState(snapshot)
	if err != nil {
		h.log.Error().Err(err).Msg("encode snapshot")
		return
	}
	h.enqueueLocked(outbound{event: ev, snapshot: &snapshot})
}

func (h *Host) enqueueLocked(item outbound) {
	if !h.open {
		return
	}
	h.pending = append(h.pending, item)
	select {
	case h.wake <- struct{}{}:
	default:
	}
}

func (h *Host) runPublisher(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		h.mu.Lock()
		batch := h.pending
		h.pending = nil
		open := h.open
		h.mu.Unlock()

		for _, item := range batch {
			if item.event.Type != "" {
				if err := h.conn.Publish(ctx, item.event); err != nil {
					h.log.Warn().Err(err).Str("event_type", string(item.event.Type)).Msg("publish failed")
				}
			}
			if item.local != "" {
				h.feedback.Play(item.local)
			}
			if item.snapshot != nil && h.onSnapshot != nil {
				h.onSnapshot(*item.snapshot)
			}
		}
		if !open {
			return
		}
		select {
		case <-h.wake:
		case <-ctx.Done():
			return
		}
	}
}

func normalizeScenarios(scenarios []domain.ScenarioNode) []domain.ScenarioNode {
	out := make([]domain.ScenarioNode, len(scenarios))
	for i, s := range scenarios {
		s.Options = append([]domain.Option(nil), s.Options...)
		if s.TimeLimit <= 0 {
			s.TimeLimit = DefaultTimeLimit
		}
		out[i] = s
	}
	return out
}

func dedupePlayers(players []domain.Player) []domain.Player {
	seen := make(map[string]struct{}, len(players))
	out := players[:0]
	for _, p := range players {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
