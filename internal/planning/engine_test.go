package planning

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fibredesk/backend/internal/models"
)

// fakeStore is an in-memory Store for engine tests.
type fakeStore struct {
	interventions map[string]models.Intervention
	technicians   []models.Technician
	loads         map[string]int

	// fullCalendar marks technicians whose every day is at the ceiling.
	fullCalendar map[string]bool
	bookings     map[string][]models.Booking
	datesQueried []string

	autoAssigns   []models.AutoAssignment
	manualAssigns []models.ManualAssignment
	resets        []string

	overdue       []models.Intervention
	alreadyMarked map[string]bool
	delayMarks    []models.DelayMark
	supervisors   []string
	notifications []models.Notification
}

func (f *fakeStore) GetIntervention(ctx context.Context, id string) (models.Intervention, error) {
	itv, ok := f.interventions[id]
	if !ok {
		return models.Intervention{}, models.ErrNotFound
	}
	return itv, nil
}

func (f *fakeStore) ListAvailableTechnicians(ctx context.Context, country string) ([]models.Technician, error) {
	var out []models.Technician
	for _, t := range f.technicians {
		if t.Country == country && t.IsAvailable {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	for _, t := range f.technicians {
		if t.ID == id {
			return t, nil
		}
	}
	return models.Technician{}, models.ErrNotFound
}

func (f *fakeStore) DailyLoads(ctx context.Context, date string) (map[string]int, error) {
	return f.loads, nil
}

func (f *fakeStore) CountScheduledOn(ctx context.Context, technicianID, date string) (int, error) {
	f.datesQueried = append(f.datesQueried, date)
	if f.fullCalendar[technicianID] {
		return 1 << 10, nil
	}
	return 0, nil
}

func (f *fakeStore) BookingsOn(ctx context.Context, technicianID, date string) ([]models.Booking, error) {
	return f.bookings[technicianID], nil
}

func (f *fakeStore) AssignAuto(ctx context.Context, a models.AutoAssignment) error {
	f.autoAssigns = append(f.autoAssigns, a)
	itv := f.interventions[a.InterventionID]
	itv.Status = models.StatusAutoPlanned
	f.interventions[a.InterventionID] = itv
	return nil
}

func (f *fakeStore) AssignManual(ctx context.Context, a models.ManualAssignment) error {
	f.manualAssigns = append(f.manualAssigns, a)
	return nil
}

func (f *fakeStore) ResetForReplan(ctx context.Context, interventionID string) error {
	f.resets = append(f.resets, interventionID)
	itv := f.interventions[interventionID]
	itv.Status = models.StatusPending
	f.interventions[interventionID] = itv
	return nil
}

func (f *fakeStore) ListOverdueInterventions(ctx context.Context, now time.Time) ([]models.Intervention, error) {
	return f.overdue, nil
}

func (f *fakeStore) MarkDelayed(ctx context.Context, m models.DelayMark) (bool, error) {
	if f.alreadyMarked[m.InterventionID] {
		return false, nil
	}
	f.delayMarks = append(f.delayMarks, m)
	return true, nil
}

func (f *fakeStore) ListSupervisorIDs(ctx context.Context, country string) ([]string, error) {
	return f.supervisors, nil
}

func (f *fakeStore) InsertNotification(ctx context.Context, n models.Notification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

// monday is a fixed working-day clock for deterministic slot dates.
var monday = time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

func newEngine(store *fakeStore) *Engine {
	return &Engine{
		Store:  store,
		Logger: zerolog.Nop(),
		Now:    func() time.Time { return monday },
	}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		interventions: map[string]models.Intervention{},
		loads:         map[string]int{},
		fullCalendar:  map[string]bool{},
		bookings:      map[string][]models.Booking{},
		alreadyMarked: map[string]bool{},
	}
}

func TestAutoAssignSuccess(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("depannage")
	store.technicians = []models.Technician{baseTechnician("t1")}

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if result.TechnicianID != "t1" {
		t.Fatalf("expected t1, got %s", result.TechnicianID)
	}
	if result.ScheduledDate != "2025-03-03" {
		t.Fatalf("expected same-day slot, got %s", result.ScheduledDate)
	}
	if result.ScheduledStartTime != "08:00" {
		t.Fatalf("expected 08:00 start on an empty day, got %s", result.ScheduledStartTime)
	}
	if result.PlanningScore == nil || *result.PlanningScore <= 0 {
		t.Fatalf("expected a positive planning score")
	}
	if len(store.autoAssigns) != 1 {
		t.Fatalf("expected one committed assignment, got %d", len(store.autoAssigns))
	}
	a := store.autoAssigns[0]
	if a.ClientToken == "" {
		t.Fatalf("expected a client token")
	}
	if want := monday.Add(30 * 24 * time.Hour); !a.ClientTokenExpires.Equal(want) {
		t.Fatalf("expected token expiry %v, got %v", want, a.ClientTokenExpires)
	}
}

func TestAutoAssignInterventionNotFound(t *testing.T) {
	result, err := newEngine(newFakeStore()).AutoAssign(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != ReasonInterventionNotFound {
		t.Fatalf("expected %q, got %+v", ReasonInterventionNotFound, result)
	}
}

func TestAutoAssignStatusGate(t *testing.T) {
	store := newFakeStore()
	itv := parisIntervention("depannage")
	itv.Status = models.StatusCompleted
	store.interventions["itv-1"] = itv

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure for completed intervention")
	}
	if result.Reason != "intervention already in status: completed" {
		t.Fatalf("unexpected reason: %q", result.Reason)
	}
}

func TestAutoAssignNoTechnician(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("depannage")

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != ReasonNoTechnician {
		t.Fatalf("expected %q, got %+v", ReasonNoTechnician, result)
	}
}

func TestAutoAssignNoSlot(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("depannage")
	store.technicians = []models.Technician{baseTechnician("t1")}
	store.fullCalendar["t1"] = true

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != ReasonNoSlot {
		t.Fatalf("expected %q, got %+v", ReasonNoSlot, result)
	}
	if len(store.autoAssigns) != 0 {
		t.Fatalf("expected no committed assignment")
	}
}

func TestAutoAssignFallsBackToNextCandidate(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("depannage")

	near := baseTechnician("near")
	far := baseTechnician("far")
	far.Latitude = 48.60
	far.Longitude = 2.30

	store.technicians = []models.Technician{near, far}
	store.fullCalendar["near"] = true

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected fallback assignment, got reason %q", result.Reason)
	}
	if result.TechnicianID != "far" {
		t.Fatalf("expected the second-ranked technician, got %s", result.TechnicianID)
	}
}

func TestAutoAssignDeadlineBeforeNextWorkingDay(t *testing.T) {
	store := newFakeStore()
	itv := parisIntervention("depannage")
	// Tuesday-only technician, deadline Monday morning: nothing fits.
	deadline := monday.Add(2 * time.Hour)
	itv.Deadline = &deadline
	store.interventions["itv-1"] = itv

	tech := baseTechnician("t1")
	tech.WorkingDays = []int{2}
	store.technicians = []models.Technician{tech}

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != ReasonNoSlot {
		t.Fatalf("expected %q, got %+v", ReasonNoSlot, result)
	}
	if len(store.autoAssigns) != 0 {
		t.Fatalf("expected no committed assignment")
	}
}

func TestAutoAssignSkipsNonWorkingDays(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("depannage")
	store.technicians = []models.Technician{baseTechnician("t1")}

	// Saturday clock against a Mon-Fri technician.
	saturday := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	engine := newEngine(store)
	engine.Now = func() time.Time { return saturday }

	result, err := engine.AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if result.ScheduledDate != "2025-03-03" {
		t.Fatalf("expected the slot on Monday, got %s", result.ScheduledDate)
	}
	// The weekend must be skipped before any calendar read.
	for _, date := range store.datesQueried {
		if date == "2025-03-01" || date == "2025-03-02" {
			t.Fatalf("expected no calendar query for %s", date)
		}
	}
}

func TestAutoAssignGivesUpAfterSearchHorizon(t *testing.T) {
	store := newFakeStore()
	itv := parisIntervention("depannage")
	deadline := monday.Add(60 * 24 * time.Hour)
	itv.Deadline = &deadline
	store.interventions["itv-1"] = itv

	tech := baseTechnician("t1")
	tech.WorkingDays = []int{1, 2, 3, 4, 5, 6, 7}
	store.technicians = []models.Technician{tech}
	store.fullCalendar["t1"] = true

	result, err := newEngine(store).AutoAssign(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != ReasonNoSlot {
		t.Fatalf("expected %q, got %+v", ReasonNoSlot, result)
	}
	if len(store.datesQueried) != 14 {
		t.Fatalf("expected the scan to stop after 14 days, queried %d", len(store.datesQueried))
	}
	if last := store.datesQueried[len(store.datesQueried)-1]; last != "2025-03-16" {
		t.Fatalf("expected the scan to end on 2025-03-16, got %s", last)
	}
}

func TestReplanResetsThenReassigns(t *testing.T) {
	store := newFakeStore()
	itv := parisIntervention("depannage")
	itv.Status = models.StatusAutoPlanned
	store.interventions["itv-1"] = itv
	store.technicians = []models.Technician{baseTechnician("t1")}

	result, err := newEngine(store).Replan(context.Background(), "itv-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(store.resets) != 1 || store.resets[0] != "itv-1" {
		t.Fatalf("expected one reset for itv-1, got %v", store.resets)
	}
	if !result.Success {
		t.Fatalf("expected reassignment after reset, got reason %q", result.Reason)
	}
}

func TestManualAssignUnknownTechnician(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("depannage")

	result, err := newEngine(store).ManualAssign(context.Background(), ManualAssignParams{
		InterventionID: "itv-1",
		TechnicianID:   "ghost",
		Date:           "2025-03-04",
		StartTime:      "09:00",
		EndTime:        "10:30",
		Reason:         "client request",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Success || result.Reason != ReasonTechnicianNotFound {
		t.Fatalf("expected %q, got %+v", ReasonTechnicianNotFound, result)
	}
}

func TestManualAssignBypassesEligibility(t *testing.T) {
	store := newFakeStore()
	store.interventions["itv-1"] = parisIntervention("soudure")

	// No welding skill and a full load: manual assignment must not care.
	tech := baseTechnician("t1")
	tech.MaxDailyInterventions = 1
	store.technicians = []models.Technician{tech}
	store.loads["t1"] = 1

	result, err := newEngine(store).ManualAssign(context.Background(), ManualAssignParams{
		InterventionID: "itv-1",
		TechnicianID:   "t1",
		Date:           "2025-03-04",
		StartTime:      "09:00",
		EndTime:        "11:00",
		Reason:         "dispatcher decision",
		PerformedBy:    "admin-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Success {
		t.Fatalf("expected success, got reason %q", result.Reason)
	}
	if len(store.manualAssigns) != 1 {
		t.Fatalf("expected one manual assignment")
	}
	a := store.manualAssigns[0]
	if a.Reason != "dispatcher decision" || a.PerformedBy != "admin-1" {
		t.Fatalf("expected audit fields to pass through, got %+v", a)
	}
}

func TestCheckSLAViolations(t *testing.T) {
	store := newFakeStore()

	deadline := monday.Add(-2 * time.Hour)
	techID := "t1"
	overdue := parisIntervention("depannage")
	overdue.ID = "itv-1"
	overdue.Reference = "INT-1"
	overdue.Deadline = &deadline
	overdue.TechnicianID = &techID

	raced := parisIntervention("depannage")
	raced.ID = "itv-2"
	raced.Deadline = &deadline

	store.overdue = []models.Intervention{overdue, raced}
	store.alreadyMarked["itv-2"] = true
	store.technicians = []models.Technician{baseTechnician(techID)}
	store.supervisors = []string{"sup-1", "sup-2"}

	marked, err := newEngine(store).CheckSLAViolations(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if marked != 1 {
		t.Fatalf("expected 1 marked, got %d", marked)
	}
	if len(store.delayMarks) != 1 || store.delayMarks[0].InterventionID != "itv-1" {
		t.Fatalf("expected a delay mark for itv-1, got %+v", store.delayMarks)
	}
	if store.delayMarks[0].Country != "FR" {
		t.Fatalf("expected country from assigned technician, got %s", store.delayMarks[0].Country)
	}
	// One notification per supervisor, only for the freshly marked row.
	if len(store.notifications) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(store.notifications))
	}
	if store.notifications[0].Type != "sla_violation" {
		t.Fatalf("unexpected notification type %s", store.notifications[0].Type)
	}
}
