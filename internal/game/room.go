package game

import (
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"trivia-room-service/internal/domain"
)

// Role is supplied by the transport at connection time and gates the
// administrative command set. It is a collaborator concern, not room state.
type Role string

const (
	RolePlayer Role = "player"
	RoleAdmin  Role = "admin"
)

// Connection is the per-connection surface the room consumes: a stable id, a
// role flag, and an addressable send for private replies.
type Connection interface {
	ID() string
	Role() Role
	Send(v any) error
}

// Broadcaster pushes a payload to every connection in the room.
type Broadcaster interface {
	Broadcast(v any)
}

// Config tunes room timing. Zero values fall back to the defaults below.
type Config struct {
	RoundSeconds    int           // default round duration when a question has no override
	PresenceTimeout time.Duration // heartbeat age after which a player counts as gone
	SweepInterval   time.Duration // presence watchdog cadence
	VibrateThrottle time.Duration // minimum gap between vibrate broadcasts
	TickInterval    time.Duration // round timer cadence; one tick = one timer unit
}

func (c Config) withDefaults() Config {
	if c.RoundSeconds <= 0 {
		c.RoundSeconds = 20
	}
	if c.PresenceTimeout <= 0 {
		c.PresenceTimeout = 25 * time.Second
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = 5 * time.Second
	}
	if c.VibrateThrottle <= 0 {
		c.VibrateThrottle = 800 * time.Millisecond
	}
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second
	}
	return c
}

// Room is the session engine for one live game: it owns the shared game
// state and applies every inbound event against it one at a time under a
// single mutex. Handlers that mutate state finish by broadcasting a fresh
// sanitized snapshot.
type Room struct {
	id        string
	questions []domain.Question
	cfg       Config
	out       Broadcaster
	log       zerolog.Logger
	now       func() time.Time

	mu            sync.Mutex
	status        domain.GameStatus
	questionIndex int
	timer         int
	roster        *roster
	answers       map[string]domain.Submission
	results       map[string]domain.RoundResult
	summary       *domain.RoundSummary

	timerStop    chan struct{}
	watchdogOnce sync.Once
	watchdogStop chan struct{}
	lastVibrate  time.Time
	closed       bool
}

// NewRoom creates a room around an immutable question sequence. The
// broadcaster is the transport's room-wide push primitive.
func NewRoom(id string, questions []domain.Question, out Broadcaster, cfg Config, log zerolog.Logger) *Room {
	return NewRoomWithClock(id, questions, out, cfg, log, time.Now)
}

// NewRoomWithClock allows deterministic timestamps in tests.
func NewRoomWithClock(id string, questions []domain.Question, out Broadcaster, cfg Config, log zerolog.Logger, now func() time.Time) *Room {
	return &Room{
		id:            id,
		questions:     questions,
		cfg:           cfg.withDefaults(),
		out:           out,
		log:           log.With().Str("room", id).Logger(),
		now:           now,
		status:        domain.StatusLobby,
		questionIndex: -1,
		roster:        newRoster(),
		answers:       make(map[string]domain.Submission),
		results:       make(map[string]domain.RoundResult),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// Empty reports whether no player records remain.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.roster.players) == 0
}

// Close stops the round timer and the presence watchdog. The room must not
// be used afterwards.
func (r *Room) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.stopTimerLocked()
	if r.watchdogStop != nil {
		close(r.watchdogStop)
		r.watchdogStop = nil
	}
}

// HandleConnect greets a new connection with its id and the current state.
// The presence watchdog starts lazily on the first connection and is not
// tied to any single connection's lifetime.
func (r *Room) HandleConnect(conn Connection) {
	r.ensureWatchdog()

	_ = conn.Send(helloMessage{Type: "hello", ID: conn.ID()})

	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcastLocked()
}

// HandleClose marks the connection's player offline, but only if this
// connection is still the player's authoritative one.
func (r *Room) HandleClose(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roster.disconnect(connID, r.now()) {
		r.broadcastLocked()
	}
}

// HandleMessage applies one inbound event. Unparseable payloads and events
// that make no sense in the current state are dropped without reply.
func (r *Room) HandleMessage(raw []byte, sender Connection) {
	var ev inboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}

	switch ev.Type {
	case msgJoin:
		r.handleJoin(ev, sender)
	case msgPing:
		r.handlePing(sender)
	case msgSubmitAnswer:
		r.handleSubmit(ev, sender)
	case msgMediaFinished:
		r.handleMediaFinished(ev)
	default:
		if sender.Role() == RoleAdmin {
			r.handleAdmin(ev, sender)
		}
	}
}

func (r *Room) handleJoin(ev inboundEvent, sender Connection) {
	playerID := strings.TrimSpace(ev.PlayerID)
	if playerID == "" {
		return
	}
	name := strings.TrimSpace(ev.Name)

	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.roster.join(playerID, name, sender.ID(), r.now())
	r.log.Debug().Str("player", p.ID).Str("name", p.Name).Msg("player joined")
	r.broadcastLocked()
}

// Pings are high frequency; they refresh presence but never broadcast.
func (r *Room) handlePing(sender Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.roster.touch(sender.ID(), r.now())
}

func (r *Room) handleSubmit(ev inboundEvent, sender Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusQuestion {
		return
	}
	q := r.currentQuestionLocked()
	if q == nil || q.IsMedia() {
		return
	}
	p, ok := r.roster.resolve(sender.ID())
	if !ok {
		return
	}

	var answer any
	if len(ev.Answer) > 0 {
		_ = json.Unmarshal(ev.Answer, &answer)
	}

	now := r.now()
	p.LastSeen = now
	// Keyed by player id: a resubmission overwrites, only the latest counts.
	r.answers[p.ID] = domain.Submission{Answer: answer, TimeLeft: r.timer, SubmittedAt: now}

	_ = sender.Send(answerAckMessage{
		Type:        "answer_ack",
		QuestionID:  q.ID,
		TimeLeft:    r.timer,
		SubmittedAt: now.UnixMilli(),
	})
	r.broadcastLocked()
}

func (r *Room) handleMediaFinished(ev inboundEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != domain.StatusQuestion {
		return
	}
	q := r.currentQuestionLocked()
	if q == nil || !q.IsMedia() {
		return
	}
	// Ignore signals for a question that is no longer active.
	if ev.QuestionID != "" && ev.QuestionID != q.ID {
		return
	}
	r.nextLocked()
}

func (r *Room) handleAdmin(ev inboundEvent, sender Connection) {
	switch ev.Type {
	case msgAdminStart:
		r.mu.Lock()
		defer r.mu.Unlock()
		r.log.Info().Msg("game started")
		// start works from any state, including finished
		r.status = domain.StatusLobby
		r.questionIndex = -1
		r.nextLocked()

	case msgAdminReset:
		r.mu.Lock()
		defer r.mu.Unlock()
		r.resetLocked()

	case msgAdminNext:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.status == domain.StatusQuestion {
			if q := r.currentQuestionLocked(); q != nil && q.IsMedia() {
				r.nextLocked()
			} else {
				r.endRoundLocked()
			}
		} else {
			r.nextLocked()
		}

	case msgAdminFinishRound:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.status != domain.StatusQuestion {
			return
		}
		if q := r.currentQuestionLocked(); q != nil && q.IsMedia() {
			r.nextLocked()
		} else {
			r.endRoundLocked()
		}

	case msgAdminJump:
		var index float64
		if err := json.Unmarshal(ev.Index, &index); err != nil {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		// Clamp in the float domain first: converting an out-of-range
		// float64 to int is platform-defined.
		index = math.Floor(index)
		if index < 0 {
			index = 0
		}
		if last := float64(len(r.questions) - 1); index > last {
			index = last
		}
		r.jumpLocked(int(index))

	case msgAdminRemovePlayer:
		playerID := strings.TrimSpace(ev.PlayerID)
		if playerID == "" {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.roster.remove(playerID) {
			r.broadcastLocked()
		}

	case msgAdminRemoveOffline:
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.roster.removeDisconnected() > 0 {
			r.broadcastLocked()
		}

	case msgAdminRemoveAll:
		r.mu.Lock()
		defer r.mu.Unlock()
		r.roster.removeAll()
		r.broadcastLocked()

	case msgAdminGetQuestions:
		_ = sender.Send(questionIndexMessage{Type: "admin_questions", Data: r.questionListings()})

	case msgAdminVibrate:
		r.mu.Lock()
		now := r.now()
		if now.Sub(r.lastVibrate) < r.cfg.VibrateThrottle {
			r.mu.Unlock()
			return
		}
		r.lastVibrate = now
		r.mu.Unlock()
		r.out.Broadcast(vibrateMessage{Type: "vibrate"})
	}
}

// nextLocked advances to the following question, or to finished after the
// last one. Entering a media interlude starts no timer; advancement there is
// driven by a media_finished signal or an admin override.
func (r *Room) nextLocked() {
	if r.status == domain.StatusFinished {
		return
	}
	r.stopTimerLocked()

	if r.questionIndex < len(r.questions)-1 {
		r.questionIndex++
		r.status = domain.StatusQuestion
		r.clearRoundLocked()

		q := r.questions[r.questionIndex]
		if q.IsMedia() {
			r.timer = 0
		} else {
			r.startTimerLocked(q.RoundSeconds(r.cfg.RoundSeconds))
		}
		r.log.Debug().Int("index", r.questionIndex).Str("question", q.ID).Msg("round started")
	} else {
		r.status = domain.StatusFinished
		r.timer = 0
		r.log.Info().Msg("game finished")
	}
	r.broadcastLocked()
}

// jumpLocked seeks directly to a question, clamping the index into range.
func (r *Room) jumpLocked(index int) {
	if len(r.questions) == 0 {
		return
	}
	if index < 0 {
		index = 0
	}
	if index > len(r.questions)-1 {
		index = len(r.questions) - 1
	}

	r.questionIndex = index
	r.status = domain.StatusQuestion
	r.clearRoundLocked()

	q := r.questions[index]
	if q.IsMedia() {
		r.stopTimerLocked()
		r.timer = 0
	} else {
		r.startTimerLocked(q.RoundSeconds(r.cfg.RoundSeconds))
	}
	r.log.Debug().Int("index", index).Msg("jumped to question")
	r.broadcastLocked()
}

// endRoundLocked closes the active round: the timer is cancelled before any
// other side effect, scores are recomputed wholesale from the submissions,
// and the room enters review. Calling it outside an active round is a no-op,
// which keeps the scoring pass from ever running twice for one round.
func (r *Room) endRoundLocked() {
	if r.status != domain.StatusQuestion {
		return
	}
	r.stopTimerLocked()
	r.timer = 0
	r.status = domain.StatusReview
	r.scoreRoundLocked()
	r.broadcastLocked()
}

// resetLocked returns to the lobby: scores zeroed, round state cleared,
// players and their connections preserved.
func (r *Room) resetLocked() {
	r.stopTimerLocked()
	for _, p := range r.roster.players {
		p.Score = 0
	}
	r.status = domain.StatusLobby
	r.questionIndex = -1
	r.timer = 0
	r.clearRoundLocked()
	r.log.Info().Msg("game reset to lobby")
	r.broadcastLocked()
}

func (r *Room) clearRoundLocked() {
	r.answers = make(map[string]domain.Submission)
	r.results = make(map[string]domain.RoundResult)
	r.summary = nil
}

// scoreRoundLocked rebuilds RoundResults from the submission set and applies
// each player's points exactly once. Results for players removed mid-round
// are discarded.
func (r *Room) scoreRoundLocked() {
	r.results = make(map[string]domain.RoundResult)
	r.summary = nil

	q := r.currentQuestionLocked()
	if q == nil || q.IsMedia() {
		return
	}

	for playerID, res := range scoreRound(*q, r.answers) {
		p, ok := r.roster.players[playerID]
		if !ok {
			continue
		}
		p.Score += res.Points
		r.results[playerID] = res
	}

	r.summary = estimateSummary(*q, r.answers, func(playerID string) (string, bool) {
		p, ok := r.roster.players[playerID]
		if !ok {
			return "", false
		}
		return p.Name, true
	})
	r.log.Debug().Str("question", q.ID).Int("scored", len(r.results)).Msg("round scored")
}

// startTimerLocked arms the round countdown. Any previous timer is stopped
// first; at most one timer runs per room.
func (r *Room) startTimerLocked(seconds int) {
	r.stopTimerLocked()
	r.timer = seconds

	stop := make(chan struct{})
	r.timerStop = stop

	go func() {
		ticker := time.NewTicker(r.cfg.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !r.tick(stop) {
					return
				}
			case <-stop:
				return
			}
		}
	}()
}

// tick decrements the countdown and either re-broadcasts or, on zero, ends
// the round. The channel identity check drops ticks from a superseded timer
// that raced a reset or restart.
func (r *Room) tick(stop chan struct{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timerStop != stop {
		return false
	}
	r.timer--
	if r.timer > 0 {
		r.broadcastLocked()
		return true
	}

	r.timerStop = nil
	if q := r.currentQuestionLocked(); q != nil && q.IsMedia() {
		r.nextLocked()
	} else {
		r.endRoundLocked()
	}
	return false
}

func (r *Room) stopTimerLocked() {
	if r.timerStop != nil {
		close(r.timerStop)
		r.timerStop = nil
	}
}

// ensureWatchdog starts the presence sweep once per room. Explicit disconnect
// events are not guaranteed to arrive, so presence decays by heartbeat age.
func (r *Room) ensureWatchdog() {
	r.watchdogOnce.Do(func() {
		stop := make(chan struct{})
		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			return
		}
		r.watchdogStop = stop
		r.mu.Unlock()

		go func() {
			ticker := time.NewTicker(r.cfg.SweepInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					r.sweepPresence()
				case <-stop:
					return
				}
			}
		}()
	})
}

func (r *Room) sweepPresence() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.roster.sweepStale(r.now(), r.cfg.PresenceTimeout) {
		r.broadcastLocked()
	}
}

func (r *Room) currentQuestionLocked() *domain.Question {
	if r.questionIndex < 0 || r.questionIndex >= len(r.questions) {
		return nil
	}
	return &r.questions[r.questionIndex]
}

func (r *Room) broadcastLocked() {
	r.out.Broadcast(stateMessage{Type: "state", Data: r.snapshotLocked()})
}

// Snapshot returns the current sanitized projection, as broadcast.
func (r *Room) Snapshot() domain.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}
