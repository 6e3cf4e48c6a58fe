package protocol

import (
	"errors"
	"testing"

	"scenario-quiz/internal/domain"
)

func TestRoutingTable(t *testing.T) {
	cases := []struct {
		kind Kind
		host bool
		part bool
	}{
		{KindPlayerJoin, true, false},
		{KindPlayerAnswer, true, false},
		{KindRequestState, true, false},
		{KindSyncState, false, true},
		{KindPlaySound, false, true},
		{KindHostAction, false, false},
		{Kind("CHAT"), false, false},
	}
	for _, tc := range cases {
		if got := ConsumedBy(tc.kind, RoleHost); got != tc.host {
			t.Fatalf("%s consumed by host = %v, want %v", tc.kind, got, tc.host)
		}
		if got := ConsumedBy(tc.kind, RoleParticipant); got != tc.part {
			t.Fatalf("%s consumed by participant = %v, want %v", tc.kind, got, tc.part)
		}
	}
}

func TestWireRoundTripKeepsPayload(t *testing.T) {
	ev, err := NewPlayerAnswer(AnswerPayload{PlayerID: "p1", AnswerID: "opt-0-1", TimeTaken: 7})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	data, err := Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	back, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	answer, err := DecodePlayerAnswer(back)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if answer.PlayerID != "p1" || answer.AnswerID != "opt-0-1" || answer.TimeTaken != 7 {
		t.Fatalf("unexpected answer %+v", answer)
	}
}

func TestDecodeRejectsWrongKind(t *testing.T) {
	ev, _ := NewPlaySound(SoundTick)
	if _, err := DecodeSyncState(ev); !errors.Is(err, domain.ErrMalformedEvent) {
		t.Fatalf("expected malformed event, got %v", err)
	}
	if _, err := DecodePlayerJoin(Event{Type: KindPlayerJoin}); !errors.Is(err, domain.ErrMalformedEvent) {
		t.Fatalf("expected malformed event for empty payload, got %v", err)
	}
	sound, err := DecodePlaySound(ev)
	if err != nil || sound != SoundTick {
		t.Fatalf("expected tick, got %q (%v)", sound, err)
	}
}

func TestUnmarshalAcceptsUnknownKinds(t *testing.T) {
	ev, err := Unmarshal([]byte(`{"type":"EMOJI","payload":{"x":1}}`))
	if err != nil {
		t.Fatalf("unknown kinds should decode: %v", err)
	}
	if ev.Type != Kind("EMOJI") || ConsumedBy(ev.Type, RoleHost) || ConsumedBy(ev.Type, RoleParticipant) {
		t.Fatalf("EMOJI should decode but reach no role, got %s", ev.Type)
	}
	if _, err := Unmarshal([]byte(`{"payload":{}}`)); !errors.Is(err, domain.ErrMalformedEvent) {
		t.Fatalf("expected missing type to be malformed, got %v", err)
	}
	if _, err := Unmarshal([]byte(`not json`)); !errors.Is(err, domain.ErrMalformedEvent) {
		t.Fatalf("expected invalid json to be malformed, got %v", err)
	}
}

func TestSyncStateCarriesVersion(t *testing.T) {
	state := domain.NewGameState("123456")
	state.Version = 9
	ev, err := NewSyncState(state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeSyncState(ev)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != 9 || got.RoomCode != "123456" || got.Phase != domain.PhaseLobby {
		t.Fatalf("unexpected snapshot %+v", got)
	}
}
