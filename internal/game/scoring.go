package game

import (
	"fmt"
	"math"
	"strconv"

	"trivia-room-service/internal/domain"
)

// Fixed reward for a correct choice/ordering answer.
const choiceReward = 10

// Defaults for estimate scoring when the question config leaves them unset.
const (
	defaultMaxPoints = 10
	defaultZeroAt    = 10.0
	defaultHalfLife  = 10.0
)

// scoreRound derives a RoundResult per player from the latest submissions for
// one question. It is pure: calling it twice on the same inputs yields the
// same map. Submissions that cannot be scored (malformed estimate input,
// missing correct set) produce no entry.
func scoreRound(q domain.Question, answers map[string]domain.Submission) map[string]domain.RoundResult {
	results := make(map[string]domain.RoundResult, len(answers))
	for playerID, sub := range answers {
		if res, ok := scoreSubmission(q, sub.Answer); ok {
			results[playerID] = res
		}
	}
	return results
}

// scoreSubmission dispatches on the question's type tag. Media interludes and
// unknown tags are never scored.
func scoreSubmission(q domain.Question, answer any) (domain.RoundResult, bool) {
	switch q.Type {
	case domain.TypeChoice, domain.TypeOrdering:
		return scoreChoice(q, answer)
	case domain.TypeEstimate:
		return scoreEstimate(q, answer)
	case domain.TypeTimedChoice:
		return scoreTimedChoice(q, answer)
	case domain.TypeTapCount:
		return scoreTapCount(answer), true
	}
	return domain.RoundResult{}, false
}

// scoreChoice compares the submitted value against the configured correct set
// for exact set equality: same size, same elements, order irrelevant. Ordering
// questions score the same way; clients enforce ordering visually.
func scoreChoice(q domain.Question, answer any) (domain.RoundResult, bool) {
	if q.Answers == nil {
		return domain.RoundResult{}, false
	}
	submitted := coerceStrings(answer)

	correct := len(submitted) == len(q.Answers)
	if correct {
		for _, s := range submitted {
			if !containsString(q.Answers, s) {
				correct = false
				break
			}
		}
	}

	points := 0
	if correct {
		points = choiceReward
	}
	return domain.RoundResult{Correct: correct, Points: points}, true
}

// scoreEstimate normalizes guess and correct value to the question's unit and
// maps their distance through the configured decay curve. Non-numeric guesses
// or correct values are not scored at all.
func scoreEstimate(q domain.Question, answer any) (domain.RoundResult, bool) {
	var correctRaw string
	if len(q.Answers) > 0 {
		correctRaw = q.Answers[0]
	}
	correctNum, okCorrect := parseFloat(correctRaw)
	guessNum, okGuess := toFloat(answer)
	if !okCorrect || !okGuess {
		return domain.RoundResult{}, false
	}

	unit := estimateUnit(q.Estimate)
	distance := math.Abs(normalizeEstimate(guessNum, unit) - normalizeEstimate(correctNum, unit))

	var sc domain.EstimateScoring
	if q.Estimate != nil && q.Estimate.Scoring != nil {
		sc = *q.Estimate.Scoring
	}

	maxPoints := defaultMaxPoints
	if sc.MaxPoints != nil {
		maxPoints = *sc.MaxPoints
	}
	if maxPoints < 0 {
		maxPoints = 0
	}

	correctWithin := 0.0
	if sc.CorrectWithin != nil && *sc.CorrectWithin > 0 {
		correctWithin = *sc.CorrectWithin
	}

	raw := 0.0
	if maxPoints > 0 {
		if sc.Decay == domain.DecayExponential {
			halfLife := defaultHalfLife
			if sc.HalfLife != nil {
				halfLife = *sc.HalfLife
			}
			halfLife = math.Max(halfLife, 1e-4)
			raw = float64(maxPoints) * math.Exp(-math.Ln2*distance/halfLife)
		} else {
			zeroAt := defaultZeroAt
			if sc.ZeroAt != nil {
				zeroAt = *sc.ZeroAt
			}
			zeroAt = math.Max(zeroAt, 1e-4)
			raw = float64(maxPoints) * (1 - distance/zeroAt)
		}
	}

	points := int(math.Round(raw))
	if points < 0 {
		points = 0
	}
	return domain.RoundResult{Correct: distance <= correctWithin, Points: points}, true
}

// scoreTimedChoice awards one point per step where the pick matches that
// step's good side. With shuffle on, the good side alternates left/right per
// step; off, it stays left. Only a full clear counts as correct.
func scoreTimedChoice(q domain.Question, answer any) (domain.RoundResult, bool) {
	var steps int
	shuffle := true
	if q.TimedChoice != nil {
		steps = len(q.TimedChoice.Steps)
		if q.TimedChoice.Shuffle != nil {
			shuffle = *q.TimedChoice.Shuffle
		}
	}

	picks := coercePicks(answer)
	n := len(picks)
	if steps < n {
		n = steps
	}

	hits := 0
	for i := 0; i < n; i++ {
		goodSide := "left"
		if shuffle && i%2 == 1 {
			goodSide = "right"
		}
		if picks[i] == goodSide {
			hits++
		}
	}

	perfect := steps > 0 && hits == steps
	return domain.RoundResult{Correct: perfect, Points: hits}, true
}

// scoreTapCount treats the answer as a tap counter: points equal the floored
// non-negative count, and any point at all flags the round correct.
func scoreTapCount(answer any) domain.RoundResult {
	points := 0
	if n, ok := toFloat(answer); ok {
		points = int(math.Floor(n))
		if points < 0 {
			points = 0
		}
	}
	return domain.RoundResult{Correct: points > 0, Points: points}
}

func estimateUnit(cfg *domain.EstimateConfig) domain.EstimateUnit {
	if cfg != nil && cfg.Unit == domain.UnitNumber {
		return domain.UnitNumber
	}
	return domain.UnitYear
}

// normalizeEstimate rounds year values to whole years; plain numbers pass through.
func normalizeEstimate(v float64, unit domain.EstimateUnit) float64 {
	if unit == domain.UnitYear {
		return math.Round(v)
	}
	return v
}

// toFloat coerces a decoded JSON value to a finite float.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case string:
		return parseFloat(n)
	case int:
		return float64(n), true
	}
	return 0, false
}

func parseFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// coerceStrings turns a decoded JSON answer into a string set. A single
// non-list answer becomes a one-element set.
func coerceStrings(v any) []string {
	if list, ok := v.([]any); ok {
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, coerceString(item))
		}
		return out
	}
	return []string{coerceString(v)}
}

func coerceString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case nil:
		return ""
	}
	return fmt.Sprint(v)
}

// coercePicks extracts an ordered left/right pick list from either a bare
// array or an object wrapping one under "picks". Anything else yields none.
func coercePicks(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if m, isMap := v.(map[string]any); isMap {
			raw, _ = m["picks"].([]any)
		}
	}
	picks := make([]string, 0, len(raw))
	for _, p := range raw {
		if s, isStr := p.(string); isStr && (s == "left" || s == "right") {
			picks = append(picks, s)
		}
	}
	return picks
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
