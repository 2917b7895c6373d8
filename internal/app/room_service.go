package app

import (
	"context"

	"github.com/rs/zerolog"

	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/game"
)

// RoomRepository abstracts how live rooms are stored (in-memory, Redis-backed, etc).
type RoomRepository interface {
	GetOrCreate(roomID string, create func() *game.Room) *game.Room
	Get(roomID string) (*game.Room, bool)
	// DeleteIfEmpty reclaims the room when no player records remain and
	// reports whether it did.
	DeleteIfEmpty(roomID string) bool
}

// QuestionRepository loads question content (from cache/backing store).
type QuestionRepository interface {
	GetQuestionSet(ctx context.Context, setID string) (domain.QuestionSet, error)
}

// RoomService resolves rooms for the transport layer. Each room id doubles as
// the id of the question set it plays.
type RoomService struct {
	rooms     RoomRepository
	questions QuestionRepository
	cfg       game.Config
	log       zerolog.Logger
}

func NewRoomService(rooms RoomRepository, questions QuestionRepository, cfg game.Config, log zerolog.Logger) *RoomService {
	return &RoomService{rooms: rooms, questions: questions, cfg: cfg, log: log}
}

// Room returns the live room, creating it with its question sequence on
// first access. The broadcaster is only consulted when the room is created;
// an existing room keeps its original one.
func (s *RoomService) Room(ctx context.Context, roomID string, out game.Broadcaster) (*game.Room, error) {
	if room, ok := s.rooms.Get(roomID); ok {
		return room, nil
	}
	set, err := s.questions.GetQuestionSet(ctx, roomID)
	if err != nil {
		return nil, err
	}
	return s.rooms.GetOrCreate(roomID, func() *game.Room {
		return game.NewRoom(roomID, set.Questions, out, s.cfg, s.log)
	}), nil
}

// Release drops the room if no player records remain, stopping its timers.
// It reports whether the room was actually reclaimed.
func (s *RoomService) Release(roomID string) bool {
	return s.rooms.DeleteIfEmpty(roomID)
}
