package domain

import "errors"

var (
	// ErrRoomNotOpen is returned when an intent is issued before a room channel is open.
	ErrRoomNotOpen = errors.New("room not open")
	// ErrNoPlayers rejects starting a game with an empty roster.
	ErrNoPlayers = errors.New("at least one player is required to start")
	// ErrNoScenarios rejects starting a game without content.
	ErrNoScenarios = errors.New("at least one scenario is required to start")
	// ErrInvalidPhase indicates the intent is not allowed in the current phase.
	ErrInvalidPhase = errors.New("action not allowed in current phase")
	// ErrNotJoined is returned when a participant acts before joining a room.
	ErrNotJoined = errors.New("participant has not joined a room")
	// ErrNotSynced is returned when a participant has not received any snapshot yet.
	ErrNotSynced = errors.New("participant has not received game state")
	// ErrAlreadyAnswered is returned on a second answer within one round.
	ErrAlreadyAnswered = errors.New("already answered this round")
	// ErrUnknownOption indicates a submitted option id is not part of the current scenario.
	ErrUnknownOption = errors.New("option not found")
	// ErrInvalidTimeLimit rejects a non-positive round length.
	ErrInvalidTimeLimit = errors.New("time limit must be positive")
	// ErrMissingName rejects joining without a display name.
	ErrMissingName = errors.New("player name is required")
	// ErrMalformedContent rejects a scenario import that does not match the expected shape.
	ErrMalformedContent = errors.New("malformed scenario content")
	// ErrDeckNotFound indicates the deck could not be loaded.
	ErrDeckNotFound = errors.New("deck not found")
	// ErrMalformedEvent indicates an event envelope or payload could not be decoded.
	ErrMalformedEvent = errors.New("malformed event")
)
