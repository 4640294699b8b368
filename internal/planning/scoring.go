package planning

import (
	"sort"

	"github.com/fibredesk/backend/internal/models"
)

// Scoring weights, on a 0-100 scale. Distance dominates to keep travel
// waste down; load balances the fleet; skill match and urgency are
// secondary because eligibility already gates on them.
const (
	distanceWeight = 40.0
	loadWeight     = 25.0
	skillWeight    = 20.0
	urgencyFactor  = 3.75 // priority weight 1..4 -> 3.75..15
)

// ScoreCandidates fills in the composite score for every candidate and
// returns them ranked best-first. Ties keep their input order.
func ScoreCandidates(candidates []models.Candidate, itv models.Intervention) []models.Candidate {
	if len(candidates) == 0 {
		return candidates
	}

	maxDistance := 1.0
	for _, c := range candidates {
		if c.DistanceKm > maxDistance {
			maxDistance = c.DistanceKm
		}
	}

	required := RequiredSkills(itv.Type)
	urgency := float64(PriorityWeight(itv.Priority)) * urgencyFactor

	scored := make([]models.Candidate, len(candidates))
	for i, c := range candidates {
		distanceScore := (1 - c.DistanceKm/maxDistance) * distanceWeight

		maxDaily := c.MaxDailyInterventions
		if maxDaily <= 0 {
			maxDaily = 1
		}
		loadScore := (1 - float64(c.CurrentLoad)/float64(maxDaily)) * loadWeight

		matched := 0
		for _, r := range required {
			if containsString(c.Certifications, r) || containsString(c.Skills, r) {
				matched++
			}
		}
		skillScore := float64(matched) / float64(len(required)) * skillWeight

		c.Score = distanceScore + loadScore + skillScore + urgency
		scored[i] = c
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}
