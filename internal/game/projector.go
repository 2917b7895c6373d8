package game

import "trivia-room-service/internal/domain"

// snapshotLocked builds the role-neutral broadcast view from scratch on every
// call. State changes are seconds-scale, so recomputing beats maintaining an
// incremental cache.
func (r *Room) snapshotLocked() domain.Snapshot {
	snap := domain.Snapshot{
		Status:               r.status,
		QuestionIndex:        r.questionIndex,
		ActualQuestionIndex:  r.actualIndexLocked(),
		TotalActualQuestions: r.countScoreable(),
		TotalQuestions:       len(r.questions),
		Timer:                r.timer,
		Players:              make(map[string]domain.PlayerView, len(r.roster.players)),
		AnswerCount:          len(r.answers),
	}

	if q := r.currentQuestionLocked(); q != nil {
		snap.Question = r.projectQuestionLocked(*q)
	}

	for playerID, p := range r.roster.players {
		snap.Players[playerID] = r.projectPlayerLocked(p)
	}

	// The summary is review-phase display data only.
	if r.status == domain.StatusReview {
		snap.RoundSummary = r.summary
	}
	return snap
}

// projectQuestionLocked strips answer-revealing fields while the round is
// live; once the round is over the full definition goes out.
func (r *Room) projectQuestionLocked(q domain.Question) *domain.QuestionView {
	view := domain.QuestionView{Question: q}
	if r.status == domain.StatusQuestion {
		view.Multiple = len(q.Answers) > 1
		view.Answers = nil
	}
	return &view
}

// projectPlayerLocked exposes the public player fields plus round-scoped
// derivations; the connection id never leaves the process.
func (r *Room) projectPlayerLocked(p *domain.Player) domain.PlayerView {
	view := domain.PlayerView{
		ID:        p.ID,
		Name:      p.Name,
		Score:     p.Score,
		Connected: p.Connected,
		LastSeen:  p.LastSeen.UnixMilli(),
	}
	if sub, ok := r.answers[p.ID]; ok {
		view.Answered = true
		timeLeft := sub.TimeLeft
		submittedAt := sub.SubmittedAt.UnixMilli()
		view.LastAnswerTimeLeft = &timeLeft
		view.LastAnswerSubmittedAt = &submittedAt
	}
	if res, ok := r.results[p.ID]; ok {
		correct := res.Correct
		points := res.Points
		view.LastCorrect = &correct
		view.LastPoints = &points
	}
	return view
}

// actualIndexLocked counts how many scoreable questions have been reached,
// so players see "Question 3 of 8" even when interludes occupy extra slots.
func (r *Room) actualIndexLocked() int {
	n := 0
	for i := 0; i <= r.questionIndex && i < len(r.questions); i++ {
		if !r.questions[i].IsMedia() {
			n++
		}
	}
	return n
}

func (r *Room) countScoreable() int {
	n := 0
	for _, q := range r.questions {
		if !q.IsMedia() {
			n++
		}
	}
	return n
}

// questionListings builds the redacted admin index: ordering, type, prompt
// and timing, but no answers.
func (r *Room) questionListings() []domain.QuestionListing {
	listings := make([]domain.QuestionListing, 0, len(r.questions))
	questionNo, mediaNo := 0, 0
	for i, q := range r.questions {
		listing := domain.QuestionListing{
			Index:  i,
			ID:     q.ID,
			Prompt: q.Prompt,
			Type:   q.Type,
			Time:   q.Time,
		}
		if q.IsMedia() {
			n := mediaNo
			listing.MediaNumber = &n
			mediaNo++
		} else {
			n := questionNo
			listing.QuestionNumber = &n
			questionNo++
		}
		listings = append(listings, listing)
	}
	return listings
}
