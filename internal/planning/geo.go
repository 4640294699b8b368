package planning

import "math"

const (
	earthRadiusKm = 6371.0

	// Average door-to-door speed assumed for travel estimates.
	avgSpeedKmh = 50.0

	defaultDurationMinutes = 90
)

// HaversineKm returns the great-circle distance between two points in
// kilometers. Symmetric; zero for identical points.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLon := degreesToRadians(lon2 - lon1)

	lat1R := degreesToRadians(lat1)
	lat2R := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Sin(dLon/2)*math.Sin(dLon/2)*math.Cos(lat1R)*math.Cos(lat2R)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

func degreesToRadians(d float64) float64 {
	return d * math.Pi / 180
}

// TravelMinutes estimates drive time for a distance at the assumed
// average speed, rounded up to whole minutes.
func TravelMinutes(distanceKm float64) int {
	if distanceKm <= 0 {
		return 0
	}
	return int(math.Ceil(distanceKm / avgSpeedKmh * 60))
}

var serviceDurations = map[string]int{
	"installation_fibre": 120,
	"depannage":          90,
	"maintenance":        60,
	"raccordement":       90,
	"soudure":            120,
	"tirage_cable":       180,
	"audit_technique":    60,
	"mise_en_service":    90,
}

// ServiceDurationMinutes returns the on-site duration estimate for an
// intervention type. Unknown types get the default.
func ServiceDurationMinutes(interventionType string) int {
	if d, ok := serviceDurations[interventionType]; ok {
		return d
	}
	return defaultDurationMinutes
}

var requiredSkillsByType = map[string][]string{
	"installation_fibre": {"fibre_optique"},
	"depannage":          {"fibre_optique"},
	"maintenance":        {"fibre_optique"},
	"raccordement":       {"fibre_optique", "FTTH"},
	"soudure":            {"fibre_optique", "soudure"},
	"tirage_cable":       {"fibre_optique"},
	"audit_technique":    {"fibre_optique"},
	"mise_en_service":    {"fibre_optique", "FTTH"},
}

// RequiredSkills returns the skill tags an intervention type demands.
func RequiredSkills(interventionType string) []string {
	if s, ok := requiredSkillsByType[interventionType]; ok {
		return s
	}
	return []string{"fibre_optique"}
}

var priorityWeights = map[string]int{
	"critique": 4,
	"haute":    3,
	"normale":  2,
	"basse":    1,
}

// PriorityWeight maps a priority to its urgency multiplier. Unknown
// priorities count as normal.
func PriorityWeight(priority string) int {
	if w, ok := priorityWeights[priority]; ok {
		return w
	}
	return 2
}
