package domain

import "time"

// GameStatus is the lifecycle phase of a room.
type GameStatus string

const (
	StatusLobby    GameStatus = "lobby"
	StatusQuestion GameStatus = "question"
	StatusReview   GameStatus = "review"
	StatusFinished GameStatus = "finished"
)

// QuestionType discriminates the question variants. Scoring dispatches on
// this tag; unknown tags are never scored.
type QuestionType string

const (
	TypeChoice      QuestionType = "choice"
	TypeOrdering    QuestionType = "ordering"
	TypeEstimate    QuestionType = "estimate"
	TypeTimedChoice QuestionType = "timedChoice"
	TypeTapCount    QuestionType = "tapCount"
	TypeMedia       QuestionType = "media"
)

// EstimateUnit controls how numeric guesses are normalized before comparison.
type EstimateUnit string

const (
	UnitYear   EstimateUnit = "year"
	UnitNumber EstimateUnit = "number"
)

// EstimateDecay selects the curve mapping distance to points.
type EstimateDecay string

const (
	DecayLinear      EstimateDecay = "linear"
	DecayExponential EstimateDecay = "exponential"
)

// EstimateScoring configures the decay curve for estimate questions.
type EstimateScoring struct {
	MaxPoints     *int          `json:"maxPoints,omitempty"`
	Decay         EstimateDecay `json:"decay,omitempty"`
	ZeroAt        *float64      `json:"zeroAt,omitempty"`        // linear: distance at which score reaches 0
	HalfLife      *float64      `json:"halfLife,omitempty"`      // exponential: distance at which score halves
	CorrectWithin *float64      `json:"correctWithin,omitempty"` // distance threshold for the correctness flag
}

// EstimateConfig describes the guessing range and scoring of an estimate question.
type EstimateConfig struct {
	Min     *float64         `json:"min,omitempty"`
	Max     *float64         `json:"max,omitempty"`
	Step    *float64         `json:"step,omitempty"`
	Unit    EstimateUnit     `json:"unit,omitempty"`
	Scoring *EstimateScoring `json:"scoring,omitempty"`
}

// MediaRef points at an image asset shown on one side of a timed-choice step.
type MediaRef struct {
	Src string `json:"src"`
	Alt string `json:"alt,omitempty"`
}

// TimedChoiceStep is one binary decision: pick the good side, avoid the bad one.
type TimedChoiceStep struct {
	Good MediaRef `json:"good"`
	Bad  MediaRef `json:"bad"`
}

// TimedChoiceConfig holds the ordered step list. When Shuffle is set (the
// default), the good side alternates left/right per step; otherwise it stays
// on the left.
type TimedChoiceConfig struct {
	Shuffle *bool             `json:"shuffle,omitempty"`
	Steps   []TimedChoiceStep `json:"steps"`
}

// MediaItem is a playback instruction for a media interlude. The core carries
// these opaquely; only clients interpret them.
type MediaItem struct {
	Kind     string  `json:"kind"` // "video" or "image"
	Src      string  `json:"src"`
	Alt      string  `json:"alt,omitempty"`
	Poster   string  `json:"poster,omitempty"`
	Autoplay bool    `json:"autoplay,omitempty"`
	Controls bool    `json:"controls,omitempty"`
	Loop     bool    `json:"loop,omitempty"`
	Muted    bool    `json:"muted,omitempty"`
	StartAt  float64 `json:"startAt,omitempty"`
}

// Question is one slot in a room's fixed sequence. It is a closed tagged
// union: Type decides which of the optional blocks applies. Answers holds the
// correct set for choice/ordering questions and the correct value (as its
// decimal string) for estimate questions; it is stripped from broadcasts
// while the question is live.
type Question struct {
	ID           string             `json:"id"`
	Type         QuestionType       `json:"type"`
	Prompt       string             `json:"question"`
	IntroSound   string             `json:"introSound,omitempty"`
	Vibration    []int              `json:"vibration,omitempty"`
	VibrationEnd []int              `json:"vibrationEnd,omitempty"`
	Time         int                `json:"time,omitempty"` // round seconds, 0 means default
	Options      []string           `json:"options,omitempty"`
	Answers      []string           `json:"answers,omitempty"`
	Estimate     *EstimateConfig    `json:"estimate,omitempty"`
	TimedChoice  *TimedChoiceConfig `json:"timedChoice,omitempty"`
	Media        []MediaItem        `json:"media,omitempty"`
}

// IsMedia reports whether the question is a non-scored media interlude.
func (q Question) IsMedia() bool { return q.Type == TypeMedia }

// RoundSeconds returns the configured duration, falling back to def.
func (q Question) RoundSeconds(def int) int {
	if q.Time > 0 {
		return q.Time
	}
	return def
}

// QuestionSet is the immutable ordered question list a room plays through.
type QuestionSet struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
}

// Player is the authoritative per-player record. ConnID is the transport
// connection currently speaking for the player and never leaves the process.
type Player struct {
	ID        string
	Name      string
	Score     int
	Connected bool
	ConnID    string
	LastSeen  time.Time
}

// Submission is the latest answer a player handed in for the current round.
type Submission struct {
	Answer      any
	TimeLeft    int
	SubmittedAt time.Time
}

// RoundResult is the derived outcome of scoring one submission.
type RoundResult struct {
	Correct bool `json:"correct"`
	Points  int  `json:"points"`
}

// GuessCluster groups players who gave the same normalized estimate.
type GuessCluster struct {
	Value float64  `json:"value"`
	Count int      `json:"count"`
	Names []string `json:"names"`
}

// EstimateSummary is the review-phase dot-plot data for estimate rounds.
type EstimateSummary struct {
	Unit    EstimateUnit   `json:"unit,omitempty"`
	Guesses []GuessCluster `json:"guesses"`
}

// RoundSummary aggregates review-only display data. Only estimate rounds
// produce one today.
type RoundSummary struct {
	Estimate *EstimateSummary `json:"estimate,omitempty"`
}

// PlayerView is the public projection of a Player plus their round-scoped
// fields. Timestamps are epoch milliseconds for client consumption.
type PlayerView struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	Score                 int    `json:"score"`
	Connected             bool   `json:"connected"`
	LastSeen              int64  `json:"lastSeen"`
	Answered              bool   `json:"answered"`
	LastAnswerTimeLeft    *int   `json:"lastAnswerTimeLeft"`
	LastAnswerSubmittedAt *int64 `json:"lastAnswerSubmittedAt"`
	LastCorrect           *bool  `json:"lastCorrect"`
	LastPoints            *int   `json:"lastPoints"`
}

// QuestionView is the outward shape of a question. While a round is live the
// Answers field is cleared and Multiple tells clients whether more than one
// correct value exists.
type QuestionView struct {
	Question
	Multiple bool `json:"multiple,omitempty"`
}

// Snapshot is the sanitized room state broadcast to every connection.
type Snapshot struct {
	Status               GameStatus            `json:"status"`
	QuestionIndex        int                   `json:"questionIndex"`
	ActualQuestionIndex  int                   `json:"actualQuestionIndex"`
	Question             *QuestionView         `json:"question,omitempty"`
	TotalActualQuestions int                   `json:"totalActualQuestions"`
	TotalQuestions       int                   `json:"totalQuestions"`
	Timer                int                   `json:"timer"`
	Players              map[string]PlayerView `json:"players"`
	AnswerCount          int                   `json:"answerCount"`
	RoundSummary         *RoundSummary         `json:"roundSummary,omitempty"`
}

// QuestionListing is one row of the redacted admin question index.
// QuestionNumber counts only scoreable questions; MediaNumber counts only
// interludes. Exactly one of the two is set per row.
type QuestionListing struct {
	Index          int          `json:"index"`
	QuestionNumber *int         `json:"questionIndex"`
	MediaNumber    *int         `json:"mediaIndex"`
	ID             string       `json:"id"`
	Prompt         string       `json:"question"`
	Type           QuestionType `json:"type"`
	Time           int          `json:"time,omitempty"`
}
