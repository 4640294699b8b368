package planning

import (
	"github.com/fibredesk/backend/internal/models"
)

// EligibilityResult captures the hard-filter stage. Stages record how
// many technicians survived each rule so the debug endpoint can show
// where a given technician fell out.
type EligibilityResult struct {
	Candidates     []models.Candidate
	Stages         []EligibilityStage
	ReasonCode     string
	ReasonText     string
	RequiredSkills []string
}

type EligibilityStage struct {
	Name       string
	Candidates []models.Candidate
}

// FilterEligible applies the hard rules in order: skill coverage, zone
// radius, same-day load ceiling. The technicians passed in are already
// restricted to active+available in the intervention's country. Loads
// are measured against today's date regardless of the day the job will
// eventually land on; that mirrors the documented dispatch behaviour.
func FilterEligible(technicians []models.Technician, loads map[string]int, itv models.Intervention) EligibilityResult {
	required := RequiredSkills(itv.Type)
	result := EligibilityResult{RequiredSkills: required}

	pool := make([]models.Candidate, 0, len(technicians))
	for _, t := range technicians {
		pool = append(pool, models.Candidate{Technician: t, CurrentLoad: loads[t.ID]})
	}
	result.Stages = append(result.Stages, EligibilityStage{Name: "country_pool", Candidates: pool})

	if len(pool) == 0 {
		result.ReasonCode = "NO_TECHNICIANS_IN_COUNTRY"
		result.ReasonText = "No active technicians in intervention country"
		return result
	}

	afterSkills := filterCandidates(pool, func(c models.Candidate) bool {
		return hasAllSkills(required, c.Certifications, c.Skills)
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "skill_rule", Candidates: afterSkills})
	if len(afterSkills) == 0 {
		result.ReasonCode = "SKILLS_NOT_COVERED"
		result.ReasonText = "No technician covers the required skills"
		return result
	}

	afterZone := make([]models.Candidate, 0, len(afterSkills))
	for _, c := range afterSkills {
		lat, lon := c.Latitude, c.Longitude
		if c.CurrentLatitude != nil && c.CurrentLongitude != nil {
			lat, lon = *c.CurrentLatitude, *c.CurrentLongitude
		}
		// Missing intervention coordinates stay at (0,0); the resulting
		// distance exceeds any realistic zone radius and filters the
		// record out here.
		c.DistanceKm = HaversineKm(lat, lon, itv.Latitude, itv.Longitude)
		if c.DistanceKm > c.ZoneRadiusKm {
			continue
		}
		afterZone = append(afterZone, c)
	}
	result.Stages = append(result.Stages, EligibilityStage{Name: "zone_rule", Candidates: afterZone})
	if len(afterZone) == 0 {
		result.ReasonCode = "OUT_OF_ZONE"
		result.ReasonText = "No technician within service-zone radius"
		return result
	}

	afterLoad := filterCandidates(afterZone, func(c models.Candidate) bool {
		return c.CurrentLoad < c.MaxDailyInterventions
	})
	result.Stages = append(result.Stages, EligibilityStage{Name: "load_rule", Candidates: afterLoad})
	if len(afterLoad) == 0 {
		result.ReasonCode = "DAILY_LOAD_FULL"
		result.ReasonText = "All matching technicians are at their daily limit"
		return result
	}

	result.Candidates = afterLoad
	return result
}

func hasAllSkills(required []string, certifications []string, skills []string) bool {
	for _, r := range required {
		if !containsString(certifications, r) && !containsString(skills, r) {
			return false
		}
	}
	return true
}

func containsString(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}

func filterCandidates(candidates []models.Candidate, keep func(models.Candidate) bool) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}
