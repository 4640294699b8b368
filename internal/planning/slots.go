package planning

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fibredesk/backend/internal/models"
)

const (
	// Forward search horizon for the calendar scan.
	searchHorizonDays = 14

	// Buffer appended after every existing booking before the next job
	// can start.
	interJobBufferMinutes = 15

	// Deadline assumed when an intervention carries none.
	defaultDeadline = 7 * 24 * time.Hour
)

// findSlot walks the calendar day by day from today, bounded by the
// horizon and the intervention deadline, and returns the first window
// that fits service duration plus travel time.
func (e *Engine) findSlot(ctx context.Context, cand models.Candidate, itv models.Intervention) (*models.Slot, error) {
	needed := ServiceDurationMinutes(itv.Type) + TravelMinutes(cand.DistanceKm)

	now := e.now()
	deadline := now.Add(defaultDeadline)
	if itv.Deadline != nil {
		deadline = *itv.Deadline
	}

	for offset := 0; offset < searchHorizonDays; offset++ {
		day := now.AddDate(0, 0, offset)
		if day.After(deadline) {
			break
		}

		weekday := int(day.Weekday())
		if weekday == 0 {
			weekday = 7
		}
		if !containsInt(cand.WorkingDays, weekday) {
			continue
		}

		date := day.Format("2006-01-02")

		count, err := e.Store.CountScheduledOn(ctx, cand.ID, date)
		if err != nil {
			return nil, err
		}
		if count >= cand.MaxDailyInterventions {
			continue
		}

		bookings, err := e.Store.BookingsOn(ctx, cand.ID, date)
		if err != nil {
			return nil, err
		}

		start, end, ok := FindFreeWindow(cand.WorkStartTime, cand.WorkEndTime, bookings, needed)
		if ok {
			return &models.Slot{Date: date, Start: start, End: end}, nil
		}
	}

	return nil, nil
}

// FindFreeWindow scans one work day for the first gap of neededMinutes,
// walking past existing bookings in start order. Every booking is padded
// with the inter-job buffer at its end. The tail gap after the last
// booking is checked against the end of the work window.
func FindFreeWindow(workStart, workEnd string, bookings []models.Booking, neededMinutes int) (string, string, bool) {
	dayStart := toMinutes(workStart)
	dayEnd := toMinutes(workEnd)

	type interval struct{ start, end int }
	occupied := make([]interval, 0, len(bookings))
	for _, b := range bookings {
		if b.Start == "" || b.End == "" {
			continue
		}
		occupied = append(occupied, interval{
			start: toMinutes(b.Start),
			end:   toMinutes(b.End) + interJobBufferMinutes,
		})
	}
	sort.Slice(occupied, func(i, j int) bool { return occupied[i].start < occupied[j].start })

	searchStart := dayStart
	for _, o := range occupied {
		if o.start-searchStart >= neededMinutes {
			return fromMinutes(searchStart), fromMinutes(searchStart + neededMinutes), true
		}
		if o.end > searchStart {
			searchStart = o.end
		}
	}

	if dayEnd-searchStart >= neededMinutes {
		return fromMinutes(searchStart), fromMinutes(searchStart + neededMinutes), true
	}
	return "", "", false
}

func toMinutes(clock string) int {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return 0
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	return h*60 + m
}

func fromMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

func containsInt(list []int, target int) bool {
	for _, v := range list {
		if v == target {
			return true
		}
	}
	return false
}
