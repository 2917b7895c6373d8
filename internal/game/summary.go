package game

import (
	"sort"

	"trivia-room-service/internal/domain"
)

// estimateSummary clusters every valid numeric submission by its normalized
// value for the review-phase dot-plot. Non-estimate questions get no summary;
// malformed guesses and submissions from since-removed players are skipped.
func estimateSummary(q domain.Question, answers map[string]domain.Submission, nameOf func(playerID string) (string, bool)) *domain.RoundSummary {
	if q.Type != domain.TypeEstimate {
		return nil
	}
	unit := estimateUnit(q.Estimate)

	byValue := make(map[float64]*domain.GuessCluster)
	for playerID, sub := range answers {
		name, ok := nameOf(playerID)
		if !ok {
			continue
		}
		n, ok := toFloat(sub.Answer)
		if !ok {
			continue
		}
		v := normalizeEstimate(n, unit)
		if cluster := byValue[v]; cluster != nil {
			cluster.Count++
			cluster.Names = append(cluster.Names, name)
		} else {
			byValue[v] = &domain.GuessCluster{Value: v, Count: 1, Names: []string{name}}
		}
	}

	guesses := make([]domain.GuessCluster, 0, len(byValue))
	for _, cluster := range byValue {
		sort.Strings(cluster.Names)
		guesses = append(guesses, *cluster)
	}
	sort.Slice(guesses, func(i, j int) bool { return guesses[i].Value < guesses[j].Value })

	return &domain.RoundSummary{Estimate: &domain.EstimateSummary{Unit: unit, Guesses: guesses}}
}
