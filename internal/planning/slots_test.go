package planning

import (
	"testing"

	"github.com/fibredesk/backend/internal/models"
)

func TestFindFreeWindowEmptyDay(t *testing.T) {
	start, end, ok := FindFreeWindow("08:00", "18:00", nil, 120)
	if !ok {
		t.Fatalf("expected a window on an empty day")
	}
	if start != "08:00" || end != "10:00" {
		t.Fatalf("expected 08:00-10:00, got %s-%s", start, end)
	}
}

func TestFindFreeWindowAfterBookingWithBuffer(t *testing.T) {
	bookings := []models.Booking{{Start: "08:00", End: "10:00"}}
	start, end, ok := FindFreeWindow("08:00", "18:00", bookings, 120)
	if !ok {
		t.Fatalf("expected a window after the booking")
	}
	// 15-minute buffer after the 10:00 end.
	if start != "10:15" || end != "12:15" {
		t.Fatalf("expected 10:15-12:15, got %s-%s", start, end)
	}
}

func TestFindFreeWindowGapBetweenBookings(t *testing.T) {
	bookings := []models.Booking{
		{Start: "08:00", End: "09:00"},
		{Start: "12:00", End: "14:00"},
	}
	start, end, ok := FindFreeWindow("08:00", "18:00", bookings, 90)
	if !ok {
		t.Fatalf("expected the mid-day gap to fit")
	}
	if start != "09:15" || end != "10:45" {
		t.Fatalf("expected 09:15-10:45, got %s-%s", start, end)
	}
}

func TestFindFreeWindowGapTooSmall(t *testing.T) {
	// The 09:00-09:50 gap shrinks to 35 minutes after the buffer; the
	// search must skip it and land after the second booking.
	bookings := []models.Booking{
		{Start: "08:00", End: "09:00"},
		{Start: "09:50", End: "11:00"},
	}
	start, _, ok := FindFreeWindow("08:00", "18:00", bookings, 60)
	if !ok {
		t.Fatalf("expected a window")
	}
	if start != "11:15" {
		t.Fatalf("expected start at 11:15, got %s", start)
	}
}

func TestFindFreeWindowUnsortedBookings(t *testing.T) {
	bookings := []models.Booking{
		{Start: "12:00", End: "14:00"},
		{Start: "08:00", End: "11:45"},
	}
	start, _, ok := FindFreeWindow("08:00", "18:00", bookings, 60)
	if !ok {
		t.Fatalf("expected a window")
	}
	if start != "14:15" {
		t.Fatalf("expected start at 14:15, got %s", start)
	}
}

func TestFindFreeWindowFullDay(t *testing.T) {
	bookings := []models.Booking{{Start: "08:00", End: "17:30"}}
	if _, _, ok := FindFreeWindow("08:00", "18:00", bookings, 60); ok {
		t.Fatalf("expected no window on a full day")
	}
}

func TestFindFreeWindowTailExactFit(t *testing.T) {
	bookings := []models.Booking{{Start: "08:00", End: "15:45"}}
	start, end, ok := FindFreeWindow("08:00", "18:00", bookings, 120)
	if !ok {
		t.Fatalf("expected the tail to fit exactly")
	}
	if start != "16:00" || end != "18:00" {
		t.Fatalf("expected 16:00-18:00, got %s-%s", start, end)
	}
}
