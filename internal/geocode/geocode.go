// Package geocode resolves intervention addresses to coordinates when
// the caller did not supply any. Resolution failures are non-fatal:
// the intervention is stored at (0,0) and distance scoring degrades
// gracefully.
package geocode

import (
	"context"
	"errors"
	"strings"
)

var ErrNotFound = errors.New("geocode not found")

type Geocoder interface {
	Geocode(ctx context.Context, query string) (lat float64, lon float64, err error)
}

// BuildQuery joins the address parts into a single free-text query,
// skipping blanks.
func BuildQuery(address, postalCode, city, country string) string {
	parts := []string{}
	for _, p := range []string{address, postalCode, city, country} {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
