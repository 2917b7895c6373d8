package memory

import (
	"sync"

	"trivia-room-service/internal/game"
)

// RoomStore is an in-memory implementation of app.RoomRepository.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*game.Room
}

func NewRoomStore() *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*game.Room),
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
	return room
}

func (s *RoomStore) Get(roomID string) (*game.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// DeleteIfEmpty reclaims a room once no player records remain; the room's
// timers are stopped as part of removal. Reports whether the room went.
func (s *RoomStore) DeleteIfEmpty(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	if !ok || !room.Empty() {
		return false
	}
	delete(s.rooms, roomID)
	room.Close()
	return true
}
