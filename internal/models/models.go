package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by the store when a row addressed by id does
// not exist. Business code maps it to a failure reason, handlers to 404.
var ErrNotFound = errors.New("not found")

// Intervention statuses. Terminal states are completed and cancelled;
// the planning engine never transitions out of a terminal state.
const (
	StatusPending     = "pending"
	StatusAutoPlanned = "auto_planned"
	StatusConfirmed   = "confirmed"
	StatusInProgress  = "in_progress"
	StatusCompleted   = "completed"
	StatusDelayed     = "delayed"
	StatusPostponed   = "postponed"
	StatusCancelled   = "cancelled"
)

const (
	PriorityCritical = "critique"
	PriorityHigh     = "haute"
	PriorityNormal   = "normale"
	PriorityLow      = "basse"
)

const (
	PlanningModeAuto   = "auto"
	PlanningModeManual = "manual"
)

type Intervention struct {
	ID                   string     `json:"id"`
	Reference            string     `json:"reference"`
	Type                 string     `json:"type"`
	Description          string     `json:"description,omitempty"`
	ClientID             *string    `json:"client_id,omitempty"`
	TechnicianID         *string    `json:"technician_id,omitempty"`
	Address              string     `json:"address"`
	City                 string     `json:"city"`
	PostalCode           string     `json:"postal_code"`
	Country              string     `json:"country"`
	Latitude             float64    `json:"latitude"`
	Longitude            float64    `json:"longitude"`
	Priority             string     `json:"priority"`
	Status               string     `json:"status"`
	SLAHours             int        `json:"sla_hours"`
	Deadline             *time.Time `json:"deadline,omitempty"`
	ScheduledDate        *string    `json:"scheduled_date,omitempty"`
	ScheduledStartTime   *string    `json:"scheduled_start_time,omitempty"`
	ScheduledEndTime     *string    `json:"scheduled_end_time,omitempty"`
	ActualStartTime      *time.Time `json:"actual_start_time,omitempty"`
	ActualEndTime        *time.Time `json:"actual_end_time,omitempty"`
	PlanningMode         string     `json:"planning_mode"`
	PlanningScore        *float64   `json:"planning_score,omitempty"`
	ManualOverrideReason *string    `json:"manual_override_reason,omitempty"`
	ManualOverrideBy     *string    `json:"manual_override_by,omitempty"`
	ClientToken          *string    `json:"-"`
	ClientTokenExpires   *time.Time `json:"-"`
	Report               *string    `json:"report,omitempty"`
	CreatedBy            *string    `json:"created_by,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Technician is the merged view of a user row and its technician
// profile. Owned by user management; the engine only reads it.
type Technician struct {
	ID                    string   `json:"id"`
	FirstName             string   `json:"first_name"`
	LastName              string   `json:"last_name"`
	Country               string   `json:"country"`
	Region                string   `json:"region"`
	City                  string   `json:"city"`
	Certifications        []string `json:"certifications"`
	Skills                []string `json:"skills"`
	Latitude              float64  `json:"latitude"`
	Longitude             float64  `json:"longitude"`
	CurrentLatitude       *float64 `json:"current_latitude,omitempty"`
	CurrentLongitude      *float64 `json:"current_longitude,omitempty"`
	MaxDailyInterventions int      `json:"max_daily_interventions"`
	IsAvailable           bool     `json:"is_available"`
	WorkStartTime         string   `json:"work_start_time"`
	WorkEndTime           string   `json:"work_end_time"`
	WorkingDays           []int    `json:"working_days"`
	ZoneRadiusKm          float64  `json:"zone_radius_km"`
}

func (t Technician) FullName() string {
	return t.FirstName + " " + t.LastName
}

// Candidate is a technician evaluated for one specific intervention.
// Never persisted.
type Candidate struct {
	Technician
	DistanceKm  float64 `json:"distance_km"`
	CurrentLoad int     `json:"current_load"`
	Score       float64 `json:"score"`
}

// Slot is a contiguous window on a date, local wall-clock "HH:MM".
type Slot struct {
	Date  string `json:"date"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Booking is an occupied window in a technician's day.
type Booking struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type ScheduleEntry struct {
	ID             string    `json:"id"`
	TechnicianID   string    `json:"technician_id"`
	Date           string    `json:"date"`
	StartTime      string    `json:"start_time"`
	EndTime        string    `json:"end_time"`
	InterventionID string    `json:"intervention_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type HistoryEntry struct {
	ID               string    `json:"id"`
	InterventionID   string    `json:"intervention_id"`
	Action           string    `json:"action"`
	OldValue         string    `json:"old_value,omitempty"`
	NewValue         string    `json:"new_value,omitempty"`
	PerformedBy      string    `json:"performed_by"`
	PerformedByRole  string    `json:"performed_by_role"`
	Notes            string    `json:"notes,omitempty"`
	IsManualOverride bool      `json:"is_manual_override"`
	CreatedAt        time.Time `json:"created_at"`
}

type SLAViolation struct {
	ID             string     `json:"id"`
	InterventionID string     `json:"intervention_id"`
	ViolationType  string     `json:"violation_type"`
	ExpectedTime   *time.Time `json:"expected_time,omitempty"`
	ActualTime     time.Time  `json:"actual_time"`
	Justification  *string    `json:"justification,omitempty"`
	JustifiedBy    *string    `json:"justified_by,omitempty"`
	Country        string     `json:"country"`
	CreatedAt      time.Time  `json:"created_at"`
}

type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Data      []byte    `json:"data,omitempty"`
	IsRead    bool      `json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

// PlanningResult is the engine's answer to every operation. Business
// failures come back as Success=false with a reason; only data-access
// problems surface as Go errors.
type PlanningResult struct {
	Success            bool     `json:"success"`
	TechnicianID       string   `json:"technician_id,omitempty"`
	TechnicianName     string   `json:"technician_name,omitempty"`
	ScheduledDate      string   `json:"scheduled_date,omitempty"`
	ScheduledStartTime string   `json:"scheduled_start_time,omitempty"`
	ScheduledEndTime   string   `json:"scheduled_end_time,omitempty"`
	PlanningScore      *float64 `json:"planning_score,omitempty"`
	Reason             string   `json:"reason,omitempty"`
}

// AutoAssignment carries everything the store needs to commit one
// auto-planned assignment in a single transaction.
type AutoAssignment struct {
	InterventionID     string
	OldStatus          string
	TechnicianID       string
	TechnicianName     string
	Slot               Slot
	Score              float64
	DistanceKm         float64
	ClientToken        string
	ClientTokenExpires time.Time
	Reference          string
}

// ManualAssignment is the dispatcher-forced counterpart. It bypasses
// eligibility, scoring and slot search entirely.
type ManualAssignment struct {
	InterventionID     string
	TechnicianID       string
	TechnicianName     string
	Slot               Slot
	Reason             string
	PerformedBy        string
	ClientToken        string
	ClientTokenExpires time.Time
}

// DelayMark flips one overdue intervention to delayed and records the
// violation. Idempotent at the store level: a row already delayed,
// completed or cancelled is left untouched.
type DelayMark struct {
	InterventionID string
	OldStatus      string
	Deadline       *time.Time
	DetectedAt     time.Time
	Country        string
}
