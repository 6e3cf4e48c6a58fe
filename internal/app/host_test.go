package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"scenario-quiz/internal/app"
	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/infra/memory"
	"scenario-quiz/internal/protocol"
)

const testRoom = "123456"

func TestHostOpenBroadcastsLobby(t *testing.T) {
	snaps := &snapshotLog{}
	host, _, _ := newTestHost(t, app.WithSnapshotHook(snaps.add))

	waitFor(t, "lobby snapshot", func() bool { return snaps.len() == 1 })
	first := snaps.last()
	if first.RoomCode != testRoom || first.Phase != domain.PhaseLobby || first.Version != 0 {
		t.Fatalf("unexpected first snapshot %+v", first)
	}

	req, _ := protocol.NewRequestState("p1")
	host.HandleEvent(req)
	waitFor(t, "resync", func() bool { return snaps.len() == 2 })
	if v := snaps.last().Version; v != 0 {
		t.Fatalf("resync must not bump version, got %d", v)
	}
}

func TestHostJoinIsIdempotent(t *testing.T) {
	var sounds soundLog
	host, _, _ := newTestHost(t, app.WithHostFeedback(app.FeedbackFunc(sounds.add)))

	ev, _ := protocol.NewPlayerJoin(domain.Player{ID: "p1", Name: "Ana", Score: 900, Streak: 4, AvatarID: 3})
	host.HandleEvent(ev)
	host.HandleEvent(ev)

	state := host.Snapshot()
	if len(state.Players) != 1 {
		t.Fatalf("expected one player, got %d", len(state.Players))
	}
	p := state.Players[0]
	if p.Score != 0 || p.Streak != 0 || p.AvatarID != 3 || p.Name != "Ana" {
		t.Fatalf("expected sanitized join, got %+v", p)
	}
	if state.Version != 1 {
		t.Fatalf("duplicate join must not bump version, got %d", state.Version)
	}
	waitFor(t, "join sound", func() bool { return sounds.count(protocol.SoundJoin) == 1 })
}

func TestHostStartPreconditions(t *testing.T) {
	host, _, _ := newTestHost(t)

	if err := host.Start(); !errors.Is(err, domain.ErrNoPlayers) {
		t.Fatalf("expected ErrNoPlayers, got %v", err)
	}
	joinPlayer(host, "p1", "Ana")
	if err := host.Start(); !errors.Is(err, domain.ErrNoScenarios) {
		t.Fatalf("expected ErrNoScenarios, got %v", err)
	}
	if err := host.LoadScenarios(testScenarios(30)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := host.Advance(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase for advance in lobby, got %v", err)
	}
	if err := host.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := host.Start(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase for second start, got %v", err)
	}
	if err := host.LoadScenarios(testScenarios(10)); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected scenarios locked after start, got %v", err)
	}

	state := host.Snapshot()
	if state.Phase != domain.PhasePlaying || state.CurrentScenarioIndex != 0 || state.RoundStartTime == nil {
		t.Fatalf("unexpected state after start %+v", state)
	}
}

func TestHostIntentsRequireOpenRoom(t *testing.T) {
	host := app.NewHost(memory.NewLocalBus(), app.DefaultHostConfig())
	if err := host.Start(); !errors.Is(err, domain.ErrRoomNotOpen) {
		t.Fatalf("expected ErrRoomNotOpen, got %v", err)
	}
	if err := host.ReplaceState(domain.GameState{}); !errors.Is(err, domain.ErrRoomNotOpen) {
		t.Fatalf("expected ErrRoomNotOpen, got %v", err)
	}
}

func TestHostLeaderboardScoring(t *testing.T) {
	host, _, _ := newTestHost(t)
	joinPlayer(host, "p1", "Ana")
	joinPlayer(host, "p2", "Bao")
	joinPlayer(host, "p3", "Chi")
	startGame(t, host, 30)

	answerAs(host, "p2", "B", 2)
	answerAs(host, "p1", "A", 10)
	if err := host.Reveal(); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if err := host.Advance(); err != nil {
		t.Fatalf("advance: %v", err)
	}

	state := host.Snapshot()
	if state.Phase != domain.PhaseLeaderboard {
		t.Fatalf("expected leaderboard, got %s", state.Phase)
	}
	leader := state.Players[0]
	if leader.ID != "p1" || leader.Score != 766 || leader.Streak != 1 {
		t.Fatalf("expected p1 with 766 and streak 1, got %+v", leader)
	}
	// Zero-score players keep their join order.
	if state.Players[1].ID != "p2" || state.Players[2].ID != "p3" {
		t.Fatalf("expected stable order for ties, got %s %s", state.Players[1].ID, state.Players[2].ID)
	}
	for _, p := range state.Players[1:] {
		if p.Score != 0 || p.Streak != 0 {
			t.Fatalf("expected no points for %s, got %+v", p.ID, p)
		}
	}
}

func TestHostFirstAnswerWins(t *testing.T) {
	host, _, _ := newTestHost(t)
	joinPlayer(host, "p1", "Ana")
	joinPlayer(host, "p2", "Bao")

	answerAs(host, "p1", "A", 1)
	if p, _ := host.Snapshot().Player("p1"); p.HasAnswered() {
		t.Fatalf("answers in lobby must be ignored")
	}

	startGame(t, host, 30)
	answerAs(host, "p1", "B", 4)
	answerAs(host, "p1", "A", 1)
	answerAs(host, "ghost", "A", 1)

	state := host.Snapshot()
	p1, _ := state.Player("p1")
	if p1.LastAnswerID != "B" || p1.LastAnswerTime == nil || *p1.LastAnswerTime != 4 {
		t.Fatalf("expected first answer kept, got %+v", p1)
	}
	if len(state.Players) != 2 {
		t.Fatalf("answer must not add players, got %d", len(state.Players))
	}

	if err := host.Reveal(); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	answerAs(host, "p2", "A", 31)
	p2, _ := host.Snapshot().Player("p2")
	if p2.LastAnswerID != "A" {
		t.Fatalf("expected late answer accepted during reveal, got %+v", p2)
	}
}

func TestHostRoundsToFinish(t *testing.T) {
	var sounds soundLog
	host, bus, _ := newTestHost(t, app.WithHostFeedback(app.FeedbackFunc(sounds.add)))
	watch := observe(t, bus)
	joinPlayer(host, "p1", "Ana")
	startGame(t, host, 30)

	for round := 0; round < 2; round++ {
		answerAs(host, "p1", "A", 0)
		mustDo(t, "reveal", host.Reveal)
		mustDo(t, "advance", host.Advance)
		mustDo(t, "next", host.Next)

		state := host.Snapshot()
		if round == 0 {
			if state.Phase != domain.PhasePlaying || state.CurrentScenarioIndex != 1 {
				t.Fatalf("expected second round, got %s at %d", state.Phase, state.CurrentScenarioIndex)
			}
			p, _ := state.Player("p1")
			if p.HasAnswered() || p.LastAnswerTime != nil {
				t.Fatalf("expected answers cleared for new round, got %+v", p)
			}
		}
	}

	state := host.Snapshot()
	if state.Phase != domain.PhaseFinished || state.CurrentScenarioIndex != 1 {
		t.Fatalf("expected FINISHED on last index, got %s at %d", state.Phase, state.CurrentScenarioIndex)
	}
	p, _ := state.Player("p1")
	if p.Score != 1100+1200 || p.Streak != 2 {
		t.Fatalf("unexpected final player %+v", p)
	}
	if err := host.Next(); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected no transition out of FINISHED, got %v", err)
	}
	waitFor(t, "victory sound", func() bool {
		return sounds.count(protocol.SoundVictory) == 1 && watch.sounds(protocol.SoundVictory) == 1
	})
}

func TestHostVersionsIncrease(t *testing.T) {
	snaps := &snapshotLog{}
	host, _, _ := newTestHost(t, app.WithSnapshotHook(snaps.add))
	joinPlayer(host, "p1", "Ana")
	startGame(t, host, 30)
	answerAs(host, "p1", "A", 3)
	mustDo(t, "reveal", host.Reveal)

	waitFor(t, "snapshots", func() bool { return snaps.len() >= 5 })
	var prev uint64
	for i, s := range snaps.all() {
		if i > 0 && s.Version <= prev {
			t.Fatalf("snapshot %d version %d not above %d", i, s.Version, prev)
		}
		prev = s.Version
	}
}

func TestHostRevealsOnTimeout(t *testing.T) {
	host, bus, clock := newTestHost(t)
	watch := observe(t, bus)
	joinPlayer(host, "p1", "Ana")
	joinPlayer(host, "p2", "Bao")
	startGame(t, host, 3)
	answerAs(host, "p1", "A", 1)
	start := clock.Now()

	advanceUntil(t, clock, 500*time.Millisecond, func() bool {
		return host.Snapshot().Phase == domain.PhaseResultReveal
	})
	if elapsed := clock.Since(start); elapsed < 3*time.Second {
		t.Fatalf("revealed after %s, before the time limit", elapsed)
	}
	if host.Snapshot().RoundStartTime != nil {
		t.Fatalf("expected round start cleared on reveal")
	}

	waitFor(t, "tick sounds", func() bool { return watch.sounds(protocol.SoundTick) >= 1 })
	if n := watch.sounds(protocol.SoundTick); n > 3 {
		t.Fatalf("expected at most one tick per remaining second, got %d", n)
	}
}

func TestHostRevealsWhenAllAnswered(t *testing.T) {
	host, _, clock := newTestHost(t)
	joinPlayer(host, "p1", "Ana")
	joinPlayer(host, "p2", "Bao")
	startGame(t, host, 30)
	start := clock.Now()

	answerAs(host, "p1", "A", 1)
	answerAs(host, "p2", "B", 2)

	// The first frame notices everyone answered and starts the grace delay.
	grace := app.DefaultHostConfig().RevealGrace
	time.Sleep(50 * time.Millisecond)
	clock.Advance(app.DefaultHostConfig().TickInterval)
	time.Sleep(50 * time.Millisecond)
	clock.Advance(grace - 100*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	if phase := host.Snapshot().Phase; phase != domain.PhasePlaying {
		t.Fatalf("expected reveal held for the grace delay, got %s", phase)
	}

	clock.Advance(200 * time.Millisecond)
	waitFor(t, "reveal after grace", func() bool {
		return host.Snapshot().Phase == domain.PhaseResultReveal
	})
	if elapsed := clock.Since(start); elapsed >= 30*time.Second {
		t.Fatalf("expected early reveal, took %s", elapsed)
	}
}

func TestHostIgnoresStaleTimer(t *testing.T) {
	host, _, clock := newTestHost(t)
	joinPlayer(host, "p1", "Ana")
	startGame(t, host, 5)

	mustDo(t, "reveal", host.Reveal)
	mustDo(t, "advance", host.Advance)
	mustDo(t, "next", host.Next)

	for i := 0; i < 8; i++ {
		clock.Advance(500 * time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}
	state := host.Snapshot()
	if state.Phase != domain.PhasePlaying || state.CurrentScenarioIndex != 1 {
		t.Fatalf("expected second round still playing, got %s at %d", state.Phase, state.CurrentScenarioIndex)
	}
}

func TestHostReplaceState(t *testing.T) {
	host, _, _ := newTestHost(t)
	joinPlayer(host, "p1", "Ana")
	before := host.Snapshot()

	edited := before.Clone()
	edited.RoomCode = "000000"
	edited.Players = append(edited.Players,
		domain.Player{ID: "p2", Name: "Bao"},
		domain.Player{ID: "p2", Name: "Bao again"},
	)
	edited.Scenarios = testScenarios(0)
	if err := host.ReplaceState(edited); err != nil {
		t.Fatalf("replace: %v", err)
	}

	after := host.Snapshot()
	if after.RoomCode != testRoom {
		t.Fatalf("room code must not change, got %s", after.RoomCode)
	}
	if after.Version != before.Version+1 {
		t.Fatalf("expected version bump, got %d -> %d", before.Version, after.Version)
	}
	if len(after.Players) != 2 || after.Players[1].Name != "Bao" {
		t.Fatalf("expected duplicate ids collapsed, got %+v", after.Players)
	}
	if after.Scenarios[0].TimeLimit != app.DefaultTimeLimit {
		t.Fatalf("expected default time limit, got %d", after.Scenarios[0].TimeLimit)
	}
}

func TestHostReplaceStateKeepsPhaseAndIndex(t *testing.T) {
	host, _, _ := newTestHost(t)
	joinPlayer(host, "p1", "Ana")
	startGame(t, host, 30)
	for _, step := range []func() error{host.Reveal, host.Advance, host.Next, host.Reveal, host.Advance, host.Next} {
		mustDo(t, "play through", step)
	}
	finished := host.Snapshot()
	if finished.Phase != domain.PhaseFinished || finished.CurrentScenarioIndex != 1 {
		t.Fatalf("expected finished at index 1, got %s at %d", finished.Phase, finished.CurrentScenarioIndex)
	}

	reopened := finished.Clone()
	reopened.Phase = domain.PhaseLobby
	reopened.CurrentScenarioIndex = 0
	if err := host.ReplaceState(reopened); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase reopening a finished game, got %v", err)
	}
	rewound := finished.Clone()
	rewound.CurrentScenarioIndex = 0
	if err := host.ReplaceState(rewound); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase moving the index back, got %v", err)
	}
	emptied := finished.Clone()
	emptied.Scenarios = nil
	if err := host.ReplaceState(emptied); !errors.Is(err, domain.ErrNoScenarios) {
		t.Fatalf("expected ErrNoScenarios dropping the current scenario, got %v", err)
	}

	after := host.Snapshot()
	if after.Phase != domain.PhaseFinished || after.CurrentScenarioIndex != 1 || after.Version != finished.Version {
		t.Fatalf("rejected edits must leave state unchanged, got %s at %d v%d", after.Phase, after.CurrentScenarioIndex, after.Version)
	}
	if len(after.Scenarios) != 2 {
		t.Fatalf("expected scenarios kept, got %d", len(after.Scenarios))
	}
}

func TestHostReplaceStateCannotSkipStart(t *testing.T) {
	host, _, _ := newTestHost(t)
	playing := domain.NewGameState(testRoom)
	playing.Phase = domain.PhasePlaying
	if err := host.ReplaceState(playing); !errors.Is(err, domain.ErrInvalidPhase) {
		t.Fatalf("expected ErrInvalidPhase, got %v", err)
	}
	state := host.Snapshot()
	if state.Phase != domain.PhaseLobby || state.Version != 0 {
		t.Fatalf("expected untouched lobby, got %s v%d", state.Phase, state.Version)
	}
}

func TestHostSetTimeLimit(t *testing.T) {
	host, _, _ := newTestHost(t)
	if err := host.LoadScenarios(testScenarios(30)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := host.SetTimeLimit(0); !errors.Is(err, domain.ErrInvalidTimeLimit) {
		t.Fatalf("expected ErrInvalidTimeLimit, got %v", err)
	}
	mustDo(t, "time limit", func() error { return host.SetTimeLimit(12) })
	for _, s := range host.Snapshot().Scenarios {
		if s.TimeLimit != 12 {
			t.Fatalf("expected 12s, got %d", s.TimeLimit)
		}
	}
}

func newTestHost(t *testing.T, opts ...app.HostOption) (*app.Host, *memory.Bus, *clockwork.FakeClock) {
	t.Helper()
	bus := memory.NewLocalBus()
	clock := clockwork.NewFakeClock()
	opts = append([]app.HostOption{app.WithHostClock(clock), app.WithRoomCode(testRoom)}, opts...)
	host := app.NewHost(bus, app.DefaultHostConfig(), opts...)
	code, err := host.Open(context.Background())
	if err != nil {
		t.Fatalf("open host: %v", err)
	}
	if code != testRoom {
		t.Fatalf("expected room %s, got %s", testRoom, code)
	}
	t.Cleanup(func() { _ = host.Close() })
	return host, bus, clock
}

func testScenarios(limit int) []domain.ScenarioNode {
	options := []domain.Option{
		{ID: "A", Text: "Acknowledge and propose a fix", Strategy: "Collaborate", IsOptimal: true},
		{ID: "B", Text: "Change the subject", Strategy: "Avoid"},
	}
	return []domain.ScenarioNode{
		{ID: "s1", OpponentName: "Manager", NPCDialogue: "Why is this late?", TimeLimit: limit, Options: options},
		{ID: "s2", OpponentName: "Roommate", NPCDialogue: "You ate my noodles.", TimeLimit: limit, Options: options},
	}
}

func startGame(t *testing.T, host *app.Host, limit int) {
	t.Helper()
	if err := host.LoadScenarios(testScenarios(limit)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := host.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
}

func joinPlayer(host *app.Host, id, name string) {
	ev, _ := protocol.NewPlayerJoin(domain.Player{ID: id, Name: name})
	host.HandleEvent(ev)
}

func answerAs(host *app.Host, id, answerID string, taken int) {
	ev, _ := protocol.NewPlayerAnswer(protocol.AnswerPayload{PlayerID: id, AnswerID: answerID, TimeTaken: taken})
	host.HandleEvent(ev)
}

func mustDo(t *testing.T, what string, fn func() error) {
	t.Helper()
	if err := fn(); err != nil {
		t.Fatalf("%s: %v", what, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// advanceUntil moves the fake clock in steps, yielding to timer goroutines between steps.
func advanceUntil(t *testing.T, clock *clockwork.FakeClock, step time.Duration, cond func() bool) {
	t.Helper()
	for i := 0; i < 400; i++ {
		if cond() {
			return
		}
		clock.Advance(step)
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not reached after %s of fake time", 400*step)
}

type snapshotLog struct {
	mu    sync.Mutex
	snaps []domain.GameState
}

func (l *snapshotLog) add(s domain.GameState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snaps = append(l.snaps, s)
}

func (l *snapshotLog) len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.snaps)
}

func (l *snapshotLog) last() domain.GameState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snaps[len(l.snaps)-1]
}

func (l *snapshotLog) all() []domain.GameState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]domain.GameState(nil), l.snaps...)
}

type soundLog struct {
	mu     sync.Mutex
	sounds []protocol.Sound
}

func (l *soundLog) add(s protocol.Sound) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sounds = append(l.sounds, s)
}

func (l *soundLog) count(s protocol.Sound) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, got := range l.sounds {
		if got == s {
			n++
		}
	}
	return n
}

// busWatcher records every event published on the test room.
type busWatcher struct {
	mu     sync.Mutex
	events []protocol.Event
}

func observe(t *testing.T, bus app.Bus) *busWatcher {
	t.Helper()
	ch, err := bus.Open(context.Background(), testRoom)
	if err != nil {
		t.Fatalf("observe: %v", err)
	}
	t.Cleanup(func() { _ = ch.Close() })
	w := &busWatcher{}
	ch.Subscribe(func(ev protocol.Event) {
		w.mu.Lock()
		w.events = append(w.events, ev)
		w.mu.Unlock()
	})
	return w
}

func (w *busWatcher) ofKind(kind protocol.Kind) []protocol.Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []protocol.Event
	for _, ev := range w.events {
		if ev.Type == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (w *busWatcher) sounds(sound protocol.Sound) int {
	n := 0
	for _, ev := range w.ofKind(protocol.KindPlaySound) {
		if got, err := protocol.DecodePlaySound(ev); err == nil && got == sound {
			n++
		}
	}
	return n
}
