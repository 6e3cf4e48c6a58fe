package app

import (
	"context"
	"sync"
	"time"

	"scenario-quiz/internal/domain"
	"scenario-quiz/internal/protocol"
)

// RoomRepository abstracts how relay rooms are tracked (in-memory, Redis-marked, etc).
type RoomRepository interface {
	GetOrCreate(code string) *Room
	Get(code string) (*Room, bool)
	DeleteIfEmpty(code string)
}

// RelayService is the room-scoped broadcast channel: every event published to a room reaches all
// of its subscribers, the publisher included. It holds no game state.
type RelayService struct {
	rooms RoomRepository
}

func NewRelayService(rooms RoomRepository) *RelayService {
	return &RelayService{rooms: rooms}
}

// NewRoom is exported for infrastructure layers that need to seed rooms.
func NewRoom(code string) *Room {
	return newRoom(code)
}

// Subscribe registers a subscriber on a room, creating the room on first use.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *RelayService) Subscribe(_ context.Context, code string) (<-chan protocol.Event, func(), error) {
	room := s.rooms.GetOrCreate(code)
	ch, cancel := room.subscribe()
	return ch, func() {
		cancel()
		if room.isEmpty() {
			s.rooms.DeleteIfEmpty(code)
		}
	}, nil
}

// Publish fans ev out to the room and returns how many subscribers it was queued for.
func (s *RelayService) Publish(_ context.Context, code string, ev protocol.Event) (int, error) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return 0, domain.ErrRoomNotOpen
	}
	return room.broadcast(ev), nil
}

// RoomStats is a point-in-time view of one relay room.
type RoomStats struct {
	Code        string
	Subscribers int
	Dropped     int
	LastEventAt time.Time
}

// Stats reports the live subscribers and delivery counters of a room.
func (s *RelayService) Stats(code string) (RoomStats, bool) {
	room, ok := s.rooms.Get(code)
	if !ok {
		return RoomStats{}, false
	}
	return RoomStats{
		Code:        room.Code(),
		Subscribers: room.SubscriberCount(),
		Dropped:     room.Dropped(),
		LastEventAt: room.LastEventAt(),
	}, true
}

// Room is the in-memory subscriber set of one room code.
type Room struct {
	code        string
	createdAt   time.Time
	now         func() time.Time
	mu          sync.RWMutex
	subscribers map[chan protocol.Event]struct{}
	lastEvent   time.Time
	dropped     int
}

const roomSubscriberBuffer = 64

func newRoom(code string) *Room {
	return newRoomWithClock(code, time.Now)
}

// newRoomWithClock allows deterministic timestamps in tests.
func newRoomWithClock(code string, now func() time.Time) *Room {
	return &Room{
		code:        code,
		createdAt:   now(),
		now:         now,
		subscribers: make(map[chan protocol.Event]struct{}),
	}
}

func (r *Room) Code() string {
	return r.code
}

func (r *Room) CreatedAt() time.Time {
	return r.createdAt
}

// LastEventAt returns when the room last carried an event, or its creation time.
func (r *Room) LastEventAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.lastEvent.IsZero() {
		return r.createdAt
	}
	return r.lastEvent
}

// Dropped reports how many queued events were discarded for slow subscribers.
func (r *Room) Dropped() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

func (r *Room) SubscriberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers)
}

func (r *Room) isEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subscribers) == 0
}

// IsEmpty reports whether the room has no subscribers.
func (r *Room) IsEmpty() bool {
	return r.isEmpty()
}

func (r *Room) subscribe() (<-chan protocol.Event, func()) {
	ch := make(chan protocol.Event, roomSubscriberBuffer)

	r.mu.Lock()
	r.subscribers[ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		if _, ok := r.subscribers[ch]; ok {
			delete(r.subscribers, ch)
			close(ch)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

func (r *Room) broadcast(ev protocol.Event) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastEvent = r.now()
	for ch := range r.subscribers {
		select {
		case ch <- ev:
		default:
			// Slow subscriber: drop its oldest queued event, the transport may lose messages.
			select {
			case <-ch:
				r.dropped++
			default:
			}
			ch <- ev
		}
	}
	return len(r.subscribers)
}
