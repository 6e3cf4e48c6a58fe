package domain

import "time"

// Phase is the host-driven stage of a room.
type Phase string

const (
	PhaseLobby        Phase = "LOBBY"
	PhasePlaying      Phase = "PLAYING"
	PhaseResultReveal Phase = "RESULT_REVEAL"
	PhaseLeaderboard  Phase = "LEADERBOARD"
	PhaseFinished     Phase = "FINISHED"
)

// Player represents a participant and their accumulated score.
type Player struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	Streak         int    `json:"streak"`
	LastAnswerID   string `json:"lastAnswerId,omitempty"`
	LastAnswerTime *int   `json:"lastAnswerTime,omitempty"` // whole seconds after round start
	AvatarID       int    `json:"avatarId"`
}

// HasAnswered reports whether the player answered the current round.
func (p Player) HasAnswered() bool {
	return p.LastAnswerID != ""
}

// Option is a candidate reply to a scenario.
type Option struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Strategy      string `json:"strategy"`
	IsOptimal     bool   `json:"isOptimal"`
	TensionChange int    `json:"tensionChange,omitempty"`
	TrustChange   int    `json:"trustChange,omitempty"`
	NPCReaction   string `json:"npcReaction"`
	Explanation   string `json:"explanation"`
}

// ScenarioNode is one prompt of a game.
type ScenarioNode struct {
	ID               string   `json:"id"`
	OpponentName     string   `json:"opponentName"`
	OpponentAvatarID int      `json:"opponentAvatarId"`
	SituationContext string   `json:"situationContext"`
	NPCDialogue      string   `json:"npcDialogue"`
	TimeLimit        int      `json:"timeLimit"` // seconds
	Options          []Option `json:"options"`
}

// Option returns the option with the given id.
func (s ScenarioNode) Option(id string) (Option, bool) {
	if id == "" {
		return Option{}, false
	}
	for _, opt := range s.Options {
		if opt.ID == id {
			return opt, true
		}
	}
	return Option{}, false
}

// OptimalOption returns the first option marked optimal. Content is trusted to mark at most one;
// when several are marked the earliest one is shown as the reveal answer.
func (s ScenarioNode) OptimalOption() (Option, bool) {
	for _, opt := range s.Options {
		if opt.IsOptimal {
			return opt, true
		}
	}
	return Option{}, false
}

// Deck is a stored, named list of scenarios.
type Deck struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Scenarios []ScenarioNode `json:"scenarios"`
}

// GameState is the snapshot broadcast by the host. Only the host mutates it; participants replace
// their copy wholesale.
type GameState struct {
	RoomCode             string         `json:"roomCode"`
	Phase                Phase          `json:"phase"`
	Players              []Player       `json:"players"`
	Scenarios            []ScenarioNode `json:"scenarios"`
	CurrentScenarioIndex int            `json:"currentScenarioIndex"`
	RoundStartTime       *time.Time     `json:"roundStartTime,omitempty"`
	Version              uint64         `json:"version"`
}

// NewGameState returns the lobby state of a freshly opened room.
func NewGameState(roomCode string) GameState {
	return GameState{
		RoomCode:  roomCode,
		Phase:     PhaseLobby,
		Players:   []Player{},
		Scenarios: []ScenarioNode{},
	}
}

// CurrentScenario returns the scenario under the cursor.
func (g GameState) CurrentScenario() (ScenarioNode, bool) {
	if g.CurrentScenarioIndex < 0 || g.CurrentScenarioIndex >= len(g.Scenarios) {
		return ScenarioNode{}, false
	}
	return g.Scenarios[g.CurrentScenarioIndex], true
}

// IsLastScenario reports whether the cursor is on the final scenario.
func (g GameState) IsLastScenario() bool {
	return g.CurrentScenarioIndex >= len(g.Scenarios)-1
}

// Player returns the player with the given id.
func (g GameState) Player(id string) (Player, bool) {
	if i := g.playerIndex(id); i >= 0 {
		return g.Players[i], true
	}
	return Player{}, false
}

func (g GameState) playerIndex(id string) int {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// PlayerIndex returns the position of a player in the roster, or -1.
func (g GameState) PlayerIndex(id string) int {
	return g.playerIndex(id)
}

// AllAnswered reports whether a non-empty roster has answered the current round.
func (g GameState) AllAnswered() bool {
	if len(g.Players) == 0 {
		return false
	}
	for _, p := range g.Players {
		if !p.HasAnswered() {
			return false
		}
	}
	return true
}

// AnswerCount is the number of players that picked an option.
type AnswerCount struct {
	OptionID  string `json:"optionId"`
	Strategy  string `json:"strategy"`
	IsOptimal bool   `json:"isOptimal"`
	Count     int    `json:"count"`
}

// AnswerDistribution counts the current round's answers per option, in option order.
func (g GameState) AnswerDistribution() []AnswerCount {
	scenario, ok := g.CurrentScenario()
	if !ok {
		return nil
	}
	counts := make([]AnswerCount, 0, len(scenario.Options))
	for _, opt := range scenario.Options {
		n := 0
		for _, p := range g.Players {
			if p.LastAnswerID == opt.ID {
				n++
			}
		}
		counts = append(counts, AnswerCount{
			OptionID:  opt.ID,
			Strategy:  opt.Strategy,
			IsOptimal: opt.IsOptimal,
			Count:     n,
		})
	}
	return counts
}

// Clone returns a deep copy that shares no slices or pointers with g.
func (g GameState) Clone() GameState {
	out := g
	out.Players = make([]Player, len(g.Players))
	for i, p := range g.Players {
		if p.LastAnswerTime != nil {
			t := *p.LastAnswerTime
			p.LastAnswerTime = &t
		}
		out.Players[i] = p
	}
	out.Scenarios = make([]ScenarioNode, len(g.Scenarios))
	for i, s := range g.Scenarios {
		s.Options = append([]Option(nil), s.Options...)
		out.Scenarios[i] = s
	}
	if g.RoundStartTime != nil {
		t := *g.RoundStartTime
		out.RoundStartTime = &t
	}
	return out
}
