package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"trivia-room-service/internal/app"
	"trivia-room-service/internal/domain"
	"trivia-room-service/internal/game"
	"trivia-room-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	loader := memory.NewStaticQuestionLoader(map[string]domain.QuestionSet{
		"friday": {ID: "friday", Questions: []domain.Question{
			{ID: "q1", Type: domain.TypeChoice, Prompt: "Pick a", Options: []string{"a", "b"}, Answers: []string{"a"}, Time: 30},
		}},
	})
	service := app.NewRoomService(
		memory.NewRoomStore(),
		memory.NewQuestionRepository(loader, time.Minute),
		game.Config{},
		zerolog.Nop(),
	)
	handler := NewWSHandler(service, zerolog.Nop())

	srv := httptest.NewServer(http.HandlerFunc(handler.ServeWS))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	return conn
}

// readUntil skips intermediate frames (state rebroadcasts, timer ticks) until
// one with the wanted type arrives, returning its raw payload.
func readUntil(t *testing.T, conn *websocket.Conn, msgType string) []byte {
	t.Helper()
	for i := 0; i < 50; i++ {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		var envelope struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			t.Fatalf("bad frame: %v", err)
		}
		if envelope.Type == msgType {
			return data
		}
	}
	t.Fatalf("no %q message within 50 reads", msgType)
	return nil
}

func readState(t *testing.T, conn *websocket.Conn) domain.Snapshot {
	t.Helper()
	data := readUntil(t, conn, "state")
	var msg struct {
		Data domain.Snapshot `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("bad state payload: %v", err)
	}
	return msg.Data
}

// readStateWhere drains states until one satisfies the predicate.
func readStateWhere(t *testing.T, conn *websocket.Conn, ok func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	for i := 0; i < 50; i++ {
		snap := readState(t, conn)
		if ok(snap) {
			return snap
		}
	}
	t.Fatalf("no matching state within 50 reads")
	return domain.Snapshot{}
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	if err := conn.WriteJSON(v); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestServeWSRejectsMissingRoom(t *testing.T) {
	srv := newTestServer(t)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected handshake rejection")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %+v", resp)
	}
}

func TestServeWSUnknownRoomSendsError(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "room=nope")

	data := readUntil(t, conn, "error")
	var msg struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.Message == "" {
		t.Fatalf("expected error payload, got %s", data)
	}
}

func TestServeWSHelloThenState(t *testing.T) {
	srv := newTestServer(t)
	conn := dial(t, srv, "room=friday")

	data := readUntil(t, conn, "hello")
	var hello struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &hello); err != nil || hello.ID == "" {
		t.Fatalf("expected hello with connection id, got %s", data)
	}

	snap := readState(t, conn)
	if snap.Status != domain.StatusLobby || snap.TotalQuestions != 1 {
		t.Fatalf("unexpected lobby state: %+v", snap)
	}
}

func TestJoinSubmitAndAdminFlow(t *testing.T) {
	srv := newTestServer(t)
	admin := dial(t, srv, "room=friday&role=admin")
	player := dial(t, srv, "room=friday")

	readUntil(t, admin, "hello")
	readUntil(t, player, "hello")

	writeJSON(t, player, map[string]any{"type": "join", "playerId": "p1", "name": "Alice"})
	snap := readStateWhere(t, player, func(s domain.Snapshot) bool {
		_, ok := s.Players["p1"]
		return ok
	})
	if snap.Players["p1"].Name != "Alice" {
		t.Fatalf("unexpected player view: %+v", snap.Players["p1"])
	}

	writeJSON(t, admin, map[string]any{"type": "admin_start"})
	snap = readStateWhere(t, player, func(s domain.Snapshot) bool {
		return s.Status == domain.StatusQuestion
	})
	if snap.Question == nil || snap.Question.Answers != nil {
		t.Fatalf("live question must not expose answers: %+v", snap.Question)
	}

	writeJSON(t, player, map[string]any{"type": "submit_answer", "answer": []string{"a"}})
	data := readUntil(t, player, "answer_ack")
	var ack struct {
		QuestionID string `json:"questionId"`
		TimeLeft   int    `json:"timeLeft"`
	}
	if err := json.Unmarshal(data, &ack); err != nil || ack.QuestionID != "q1" {
		t.Fatalf("expected ack for q1, got %s", data)
	}

	writeJSON(t, admin, map[string]any{"type": "admin_finish_round"})
	snap = readStateWhere(t, player, func(s domain.Snapshot) bool {
		return s.Status == domain.StatusReview
	})
	if snap.Players["p1"].Score != 10 {
		t.Fatalf("expected 10 points in review, got %+v", snap.Players["p1"])
	}
	if snap.Question == nil || len(snap.Question.Answers) != 1 {
		t.Fatalf("review must expose the correct set, got %+v", snap.Question)
	}
}

func TestReconnectAfterLastSocketCloses(t *testing.T) {
	srv := newTestServer(t)

	first := dial(t, srv, "room=friday")
	readUntil(t, first, "hello")
	writeJSON(t, first, map[string]any{"type": "join", "playerId": "p1", "name": "Alice"})
	readStateWhere(t, first, func(s domain.Snapshot) bool {
		_, ok := s.Players["p1"]
		return ok
	})

	// The sole socket drops with a player record still in the room.
	_ = first.Close()
	time.Sleep(100 * time.Millisecond)

	// A reconnecting client must still receive broadcasts for that room.
	second := dial(t, srv, "room=friday")
	readUntil(t, second, "hello")
	snap := readState(t, second)
	if _, ok := snap.Players["p1"]; !ok {
		t.Fatalf("expected surviving player record in the reconnect state, got %+v", snap)
	}

	// And room-wide mutations keep reaching it.
	writeJSON(t, second, map[string]any{"type": "join", "playerId": "p2", "name": "Bob"})
	readStateWhere(t, second, func(s domain.Snapshot) bool {
		_, ok := s.Players["p2"]
		return ok
	})
}

func TestPlayerCannotDriveTheGame(t *testing.T) {
	srv := newTestServer(t)
	player := dial(t, srv, "room=friday")
	readUntil(t, player, "hello")

	writeJSON(t, player, map[string]any{"type": "admin_start"})
	writeJSON(t, player, map[string]any{"type": "join", "playerId": "p1", "name": "Alice"})

	// The join broadcast arrives with the game still in the lobby.
	snap := readStateWhere(t, player, func(s domain.Snapshot) bool {
		_, ok := s.Players["p1"]
		return ok
	})
	if snap.Status != domain.StatusLobby {
		t.Fatalf("player should not be able to start the game, got %v", snap.Status)
	}
}
