package game

import (
	"encoding/json"

	"trivia-room-service/internal/domain"
)

// Inbound message tags accepted by the room dispatcher.
const (
	msgJoin          = "join"
	msgPing          = "ping"
	msgSubmitAnswer  = "submit_answer"
	msgMediaFinished = "media_finished"

	msgAdminStart         = "admin_start"
	msgAdminReset         = "admin_reset"
	msgAdminNext          = "admin_next"
	msgAdminFinishRound   = "admin_finish_round"
	msgAdminJump          = "admin_jump"
	msgAdminRemovePlayer  = "admin_remove_player"
	msgAdminRemoveOffline = "admin_remove_offline"
	msgAdminRemoveAll     = "admin_remove_all"
	msgAdminGetQuestions  = "admin_get_questions"
	msgAdminVibrate       = "admin_vibrate"
)

// inboundEvent is the union of every inbound message shape. Fields that do
// not apply to a given type are simply left zero; unparseable messages are
// dropped by the caller.
type inboundEvent struct {
	Type       string          `json:"type"`
	PlayerID   string          `json:"playerId,omitempty"`
	Name       string          `json:"name,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`
	Index      json.RawMessage `json:"index,omitempty"`
	QuestionID string          `json:"questionId,omitempty"`
}

type helloMessage struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type stateMessage struct {
	Type string          `json:"type"`
	Data domain.Snapshot `json:"data"`
}

type answerAckMessage struct {
	Type        string `json:"type"`
	QuestionID  string `json:"questionId"`
	TimeLeft    int    `json:"timeLeft"`
	SubmittedAt int64  `json:"submittedAt"`
}

type questionIndexMessage struct {
	Type string                   `json:"type"`
	Data []domain.QuestionListing `json:"data"`
}

type vibrateMessage struct {
	Type string `json:"type"`
}
