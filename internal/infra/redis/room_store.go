package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"scenario-quiz/internal/app"
)

// RoomStore keeps relay rooms in process and marks their liveness in Redis so other instances and
// operators can see which room codes are in use.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*app.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*app.Room),
	}
}

func (s *RoomStore) GetOrCreate(code string) *app.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[code]; ok {
		return room
	}
	room := app.NewRoom(code)
	s.rooms[code] = room
	if err := s.client.Set(context.Background(), roomKey(code), room.CreatedAt().Unix(), s.ttl).Err(); err != nil {
		log.Warn().Err(err).Str("room", code).Msg("mark room live")
	}
	return room
}

func (s *RoomStore) Get(code string) (*app.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[code]
	return room, ok
}

func (s *RoomStore) DeleteIfEmpty(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[code]
	if !ok || !room.IsEmpty() {
		return
	}
	delete(s.rooms, code)
	_ = s.client.Del(context.Background(), roomKey(code)).Err()
}

// Codes lists the rooms held by this instance.
func (s *RoomStore) Codes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.rooms))
	for code := range s.rooms {
		codes = append(codes, code)
	}
	return codes
}

// Touch extends the liveness marker of an active room.
func (s *RoomStore) Touch(ctx context.Context, code string) error {
	if _, ok := s.Get(code); !ok {
		return nil
	}
	return s.client.Expire(ctx, roomKey(code), s.ttl).Err()
}

// Live reports whether any instance marked the room code as in use.
func (s *RoomStore) Live(ctx context.Context, code string) (bool, error) {
	n, err := s.client.Exists(ctx, roomKey(code)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func roomKey(code string) string {
	return "scenario:room:" + code
}
