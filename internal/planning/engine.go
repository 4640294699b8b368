package planning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fibredesk/backend/internal/models"
)

const clientTokenTTL = 30 * 24 * time.Hour

// Failure reasons surfaced to the dispatcher UI. These are business
// outcomes, not errors.
const (
	ReasonInterventionNotFound = "intervention not found"
	ReasonNoTechnician         = "no technician available"
	ReasonNoSlot               = "no slot available for eligible technicians"
	ReasonTechnicianNotFound   = "technician not found"
)

// Store is the engine's view of the row store. The pgx implementation
// lives in internal/db; tests use an in-memory fake. Write methods
// commit atomically: no partial assignment is ever observable.
type Store interface {
	GetIntervention(ctx context.Context, id string) (models.Intervention, error)
	ListAvailableTechnicians(ctx context.Context, country string) ([]models.Technician, error)
	GetTechnician(ctx context.Context, id string) (models.Technician, error)

	// DailyLoads returns the non-cancelled, non-completed intervention
	// count per technician scheduled on the given date.
	DailyLoads(ctx context.Context, date string) (map[string]int, error)
	CountScheduledOn(ctx context.Context, technicianID, date string) (int, error)
	BookingsOn(ctx context.Context, technicianID, date string) ([]models.Booking, error)

	AssignAuto(ctx context.Context, a models.AutoAssignment) error
	AssignManual(ctx context.Context, a models.ManualAssignment) error
	ResetForReplan(ctx context.Context, interventionID string) error

	ListOverdueInterventions(ctx context.Context, now time.Time) ([]models.Intervention, error)
	MarkDelayed(ctx context.Context, m models.DelayMark) (bool, error)
	ListSupervisorIDs(ctx context.Context, country string) ([]string, error)
	InsertNotification(ctx context.Context, n models.Notification) error
}

// Engine implements auto-assignment, replanning, manual override and
// the SLA sweep. One instance is shared by the HTTP layer and the
// background sweep; every call is short-lived and runs read-then-write
// against the store.
type Engine struct {
	Store  Store
	Logger zerolog.Logger

	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// AutoAssign picks the best technician and slot for a pending
// intervention. Candidates are tried in score order until one has a
// feasible slot.
func (e *Engine) AutoAssign(ctx context.Context, interventionID string) (models.PlanningResult, error) {
	itv, err := e.Store.GetIntervention(ctx, interventionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return failure(ReasonInterventionNotFound), nil
		}
		return models.PlanningResult{}, err
	}

	if itv.Status != models.StatusPending {
		return failure(fmt.Sprintf("intervention already in status: %s", itv.Status)), nil
	}

	eligibility, err := e.eligibleCandidates(ctx, itv)
	if err != nil {
		return models.PlanningResult{}, err
	}
	if len(eligibility.Candidates) == 0 {
		e.Logger.Info().
			Str("intervention_id", itv.ID).
			Str("reason_code", eligibility.ReasonCode).
			Msg("no eligible technician")
		return failure(ReasonNoTechnician), nil
	}

	ranked := ScoreCandidates(eligibility.Candidates, itv)

	for _, cand := range ranked {
		slot, err := e.findSlot(ctx, cand, itv)
		if err != nil {
			return models.PlanningResult{}, err
		}
		if slot == nil {
			continue
		}
		return e.commitAuto(ctx, itv, cand, *slot)
	}

	return failure(ReasonNoSlot), nil
}

func (e *Engine) eligibleCandidates(ctx context.Context, itv models.Intervention) (EligibilityResult, error) {
	technicians, err := e.Store.ListAvailableTechnicians(ctx, itv.Country)
	if err != nil {
		return EligibilityResult{}, err
	}

	// Load is measured against today regardless of which day the job
	// lands on. Documented dispatch behaviour; do not "fix" silently.
	today := e.now().Format("2006-01-02")
	loads, err := e.Store.DailyLoads(ctx, today)
	if err != nil {
		return EligibilityResult{}, err
	}

	return FilterEligible(technicians, loads, itv), nil
}

// Eligibility exposes the staged filter for the debug endpoint.
func (e *Engine) Eligibility(ctx context.Context, itv models.Intervention) (EligibilityResult, error) {
	return e.eligibleCandidates(ctx, itv)
}

func (e *Engine) commitAuto(ctx context.Context, itv models.Intervention, cand models.Candidate, slot models.Slot) (models.PlanningResult, error) {
	assignment := models.AutoAssignment{
		InterventionID:     itv.ID,
		OldStatus:          itv.Status,
		TechnicianID:       cand.ID,
		TechnicianName:     cand.FullName(),
		Slot:               slot,
		Score:              cand.Score,
		DistanceKm:         cand.DistanceKm,
		ClientToken:        uuid.NewString(),
		ClientTokenExpires: e.now().Add(clientTokenTTL),
		Reference:          itv.Reference,
	}
	if err := e.Store.AssignAuto(ctx, assignment); err != nil {
		return models.PlanningResult{}, err
	}

	e.Logger.Info().
		Str("intervention_id", itv.ID).
		Str("technician_id", cand.ID).
		Str("date", slot.Date).
		Float64("score", cand.Score).
		Msg("intervention auto-planned")

	score := cand.Score
	return models.PlanningResult{
		Success:            true,
		TechnicianID:       cand.ID,
		TechnicianName:     cand.FullName(),
		ScheduledDate:      slot.Date,
		ScheduledStartTime: slot.Start,
		ScheduledEndTime:   slot.End,
		PlanningScore:      &score,
	}, nil
}

// Replan resets the intervention to pending, drops its schedule entry,
// records the reset in history and runs AutoAssign again. The result is
// either a fresh assignment or pending plus a failure reason; never a
// stale technician reference.
func (e *Engine) Replan(ctx context.Context, interventionID string) (models.PlanningResult, error) {
	if err := e.Store.ResetForReplan(ctx, interventionID); err != nil {
		return models.PlanningResult{}, err
	}
	return e.AutoAssign(ctx, interventionID)
}

type ManualAssignParams struct {
	InterventionID string
	TechnicianID   string
	Date           string
	StartTime      string
	EndTime        string
	Reason         string
	PerformedBy    string
}

// ManualAssign bypasses eligibility, scoring and slot search. The only
// business check is that the technician exists; everything else is the
// dispatcher's responsibility and is recorded as an override in the
// audit trail.
func (e *Engine) ManualAssign(ctx context.Context, p ManualAssignParams) (models.PlanningResult, error) {
	tech, err := e.Store.GetTechnician(ctx, p.TechnicianID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return failure(ReasonTechnicianNotFound), nil
		}
		return models.PlanningResult{}, err
	}

	assignment := models.ManualAssignment{
		InterventionID:     p.InterventionID,
		TechnicianID:       tech.ID,
		TechnicianName:     tech.FullName(),
		Slot:               models.Slot{Date: p.Date, Start: p.StartTime, End: p.EndTime},
		Reason:             p.Reason,
		PerformedBy:        p.PerformedBy,
		ClientToken:        uuid.NewString(),
		ClientTokenExpires: e.now().Add(clientTokenTTL),
	}
	if err := e.Store.AssignManual(ctx, assignment); err != nil {
		return models.PlanningResult{}, err
	}

	e.Logger.Info().
		Str("intervention_id", p.InterventionID).
		Str("technician_id", tech.ID).
		Str("performed_by", p.PerformedBy).
		Msg("manual assignment")

	return models.PlanningResult{
		Success:            true,
		TechnicianID:       tech.ID,
		TechnicianName:     tech.FullName(),
		ScheduledDate:      p.Date,
		ScheduledStartTime: p.StartTime,
		ScheduledEndTime:   p.EndTime,
	}, nil
}

// CheckSLAViolations flips every overdue, still-open intervention to
// delayed, records one violation row each and notifies supervisors in
// the relevant country. Per-intervention failures are logged and
// skipped so one bad row never blocks the sweep. Returns the number of
// interventions actually marked.
func (e *Engine) CheckSLAViolations(ctx context.Context) (int, error) {
	now := e.now()
	overdue, err := e.Store.ListOverdueInterventions(ctx, now)
	if err != nil {
		return 0, err
	}

	marked := 0
	for _, itv := range overdue {
		country := itv.Country
		if itv.TechnicianID != nil {
			if tech, err := e.Store.GetTechnician(ctx, *itv.TechnicianID); err == nil && tech.Country != "" {
				country = tech.Country
			}
		}

		ok, err := e.Store.MarkDelayed(ctx, models.DelayMark{
			InterventionID: itv.ID,
			OldStatus:      itv.Status,
			Deadline:       itv.Deadline,
			DetectedAt:     now,
			Country:        country,
		})
		if err != nil {
			e.Logger.Error().Err(err).Str("intervention_id", itv.ID).Msg("sla mark failed")
			continue
		}
		if !ok {
			// Lost a race with a concurrent sweep or a terminal
			// transition; nothing to record.
			continue
		}
		marked++

		e.notifySupervisors(ctx, itv, country)
	}

	return marked, nil
}

func (e *Engine) notifySupervisors(ctx context.Context, itv models.Intervention, country string) {
	supervisors, err := e.Store.ListSupervisorIDs(ctx, country)
	if err != nil {
		e.Logger.Error().Err(err).Str("country", country).Msg("supervisor lookup failed")
		return
	}
	data, _ := json.Marshal(map[string]string{"intervention_id": itv.ID})
	for _, supID := range supervisors {
		n := models.Notification{
			ID:      uuid.NewString(),
			UserID:  supID,
			Type:    "sla_violation",
			Title:   "SLA violation detected",
			Message: fmt.Sprintf("Intervention %s exceeded its SLA deadline", itv.Reference),
			Data:    data,
		}
		if err := e.Store.InsertNotification(ctx, n); err != nil {
			e.Logger.Error().Err(err).Str("user_id", supID).Msg("supervisor notification failed")
		}
	}
}

func failure(reason string) models.PlanningResult {
	return models.PlanningResult{Success: false, Reason: reason}
}
