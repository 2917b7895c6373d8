package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-room-service/internal/game"
)

// RoomStore is a Redis-aware implementation of app.RoomRepository.
// Notes:
//   - It still keeps a local in-memory map of rooms because a room's live
//     state (timers, connection mapping) is process-local by design.
//   - Redis is used to mark room liveness, so sibling instances and ops
//     tooling can see which rooms exist.
//   - For true distribution you'd pair this with a pub/sub projector that
//     fans out snapshots.
type RoomStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	rooms  map[string]*game.Room
}

func NewRoomStore(client *redis.Client, ttl time.Duration) *RoomStore {
	return &RoomStore{
		client: client,
		ttl:    ttl,
		rooms:  make(map[string]*game.Room),
	}
}

func (s *RoomStore) GetOrCreate(roomID string, create func() *game.Room) *game.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if room, ok := s.rooms[roomID]; ok {
		return room
	}
	room := create()
	s.rooms[roomID] = room
	// best-effort liveness marker
	_ = s.client.Set(context.Background(), s.key(roomID), "1", s.ttl).Err()
	return room
}

func (s *RoomStore) Get(roomID string) (*game.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// DeleteIfEmpty reclaims the room and its liveness marker once no player
// records remain. Reports whether the room went.
func (s *RoomStore) DeleteIfEmpty(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || !room.Empty() {
		return false
	}
	delete(s.rooms, roomID)
	room.Close()
	_ = s.client.Del(context.Background(), s.key(roomID)).Err()
	return true
}

func (s *RoomStore) key(roomID string) string {
	return "room:live:" + roomID
}
