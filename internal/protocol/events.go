package protocol

import (
	"encoding/json"
	"fmt"

	"scenario-quiz/internal/domain"
)

// Kind identifies an event on a room channel.
type Kind string

const (
	KindPlayerJoin   Kind = "PLAYER_JOIN"
	KindPlayerAnswer Kind = "PLAYER_ANSWER"
	KindRequestState Kind = "REQUEST_STATE"
	KindSyncState    Kind = "SYNC_STATE"
	KindPlaySound    Kind = "PLAY_SOUND"
	KindHostAction   Kind = "HOST_ACTION"
)

// Sound is a feedback cue carried by PLAY_SOUND.
type Sound string

const (
	SoundJoin    Sound = "join"
	SoundCorrect Sound = "correct"
	SoundWrong   Sound = "wrong"
	SoundTick    Sound = "tick"
	SoundVictory Sound = "victory"
	SoundClick   Sound = "click"
)

// Role is the side of a room that emits or consumes an event.
type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Event is the envelope sent over a room channel.
type Event struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AnswerPayload is the PLAYER_ANSWER body.
type AnswerPayload struct {
	PlayerID  string `json:"playerId"`
	AnswerID  string `json:"answerId"`
	TimeTaken int    `json:"timeTaken"`
}

// StateRequest is the REQUEST_STATE body.
type StateRequest struct {
	PlayerID string `json:"playerId"`
}

type route struct {
	emitter  Role
	consumer Role
}

var routes = map[Kind]route{
	KindPlayerJoin:   {emitter: RoleParticipant, consumer: RoleHost},
	KindPlayerAnswer: {emitter: RoleParticipant, consumer: RoleHost},
	KindRequestState: {emitter: RoleParticipant, consumer: RoleHost},
	KindSyncState:    {emitter: RoleHost, consumer: RoleParticipant},
	KindPlaySound:    {emitter: RoleHost, consumer: RoleParticipant},
	// HOST_ACTION is reserved for host-internal transitions and never acted on from the wire.
	KindHostAction: {emitter: RoleHost},
}

// ConsumedBy reports whether role acts on events of kind. Every other combination, including
// unknown kinds, is ignored.
func ConsumedBy(kind Kind, role Role) bool {
	r, ok := routes[kind]
	return ok && r.consumer == role
}

func encode(kind Kind, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s: %w", kind, err)
	}
	return Event{Type: kind, Payload: raw}, nil
}

func NewPlayerJoin(player domain.Player) (Event, error) {
	return encode(KindPlayerJoin, player)
}

func NewPlayerAnswer(answer AnswerPayload) (Event, error) {
	return encode(KindPlayerAnswer, answer)
}

func NewRequestState(playerID string) (Event, error) {
	return encode(KindRequestState, StateRequest{PlayerID: playerID})
}

func NewSyncState(state domain.GameState) (Event, error) {
	return encode(KindSyncState, state)
}

func NewPlaySound(sound Sound) (Event, error) {
	return encode(KindPlaySound, sound)
}

func decode[T any](ev Event, want Kind) (T, error) {
	var out T
	if ev.Type != want {
		return out, fmt.Errorf("%w: expected %s, got %s", domain.ErrMalformedEvent, want, ev.Type)
	}
	if len(ev.Payload) == 0 {
		return out, fmt.Errorf("%w: empty %s payload", domain.ErrMalformedEvent, want)
	}
	if err := json.Unmarshal(ev.Payload, &out); err != nil {
		return out, fmt.Errorf("%w: %s: %v", domain.ErrMalformedEvent, want, err)
	}
	return out, nil
}

func DecodePlayerJoin(ev Event) (domain.Player, error) {
	return decode[domain.Player](ev, KindPlayerJoin)
}

func DecodePlayerAnswer(ev Event) (AnswerPayload, error) {
	return decode[AnswerPayload](ev, KindPlayerAnswer)
}

func DecodeRequestState(ev Event) (StateRequest, error) {
	return decode[StateRequest](ev, KindRequestState)
}

func DecodeSyncState(ev Event) (domain.GameState, error) {
	return decode[domain.GameState](ev, KindSyncState)
}

func DecodePlaySound(ev Event) (Sound, error) {
	return decode[Sound](ev, KindPlaySound)
}

// Marshal encodes the envelope for the wire.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(ev)
}

// Unmarshal decodes a wire envelope. Unknown kinds decode successfully so callers can ignore them;
// a missing type is malformed.
func Unmarshal(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("%w: missing type", domain.ErrMalformedEvent)
	}
	return ev, nil
}
