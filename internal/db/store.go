package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fibredesk/backend/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

// EnsureSchema applies the embedded DDL. Every statement is CREATE IF
// NOT EXISTS, so this is safe to run on every start.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const interventionColumns = `id, reference, type, COALESCE(description, ''), client_id, technician_id,
	address, city, postal_code, country, latitude, longitude, priority, status, sla_hours,
	deadline, scheduled_date, scheduled_start_time, scheduled_end_time,
	actual_start_time, actual_end_time, planning_mode, planning_score,
	manual_override_reason, manual_override_by, client_token, client_token_expires,
	report, created_by, created_at, updated_at`

func scanIntervention(row pgx.Row) (models.Intervention, error) {
	var itv models.Intervention
	err := row.Scan(
		&itv.ID, &itv.Reference, &itv.Type, &itv.Description, &itv.ClientID, &itv.TechnicianID,
		&itv.Address, &itv.City, &itv.PostalCode, &itv.Country, &itv.Latitude, &itv.Longitude,
		&itv.Priority, &itv.Status, &itv.SLAHours,
		&itv.Deadline, &itv.ScheduledDate, &itv.ScheduledStartTime, &itv.ScheduledEndTime,
		&itv.ActualStartTime, &itv.ActualEndTime, &itv.PlanningMode, &itv.PlanningScore,
		&itv.ManualOverrideReason, &itv.ManualOverrideBy, &itv.ClientToken, &itv.ClientTokenExpires,
		&itv.Report, &itv.CreatedBy, &itv.CreatedAt, &itv.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Intervention{}, models.ErrNotFound
	}
	return itv, err
}

func (s *Store) GetIntervention(ctx context.Context, id string) (models.Intervention, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+interventionColumns+` FROM interventions WHERE id = $1`, id)
	return scanIntervention(row)
}

func (s *Store) CreateIntervention(ctx context.Context, itv models.Intervention) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO interventions (id, reference, type, description, client_id, address, city,
			postal_code, country, latitude, longitude, priority, status, sla_hours, deadline,
			planning_mode, client_token, client_token_expires, created_by)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
	`, itv.ID, itv.Reference, itv.Type, itv.Description, itv.ClientID, itv.Address, itv.City,
		itv.PostalCode, itv.Country, itv.Latitude, itv.Longitude, itv.Priority, itv.Status,
		itv.SLAHours, itv.Deadline, itv.PlanningMode, itv.ClientToken, itv.ClientTokenExpires,
		itv.CreatedBy)
	return err
}

type InterventionFilter struct {
	Country      string
	Status       string
	TechnicianID string
	Limit        int
	Offset       int
}

func (s *Store) ListInterventions(ctx context.Context, f InterventionFilter) ([]models.Intervention, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	query := `SELECT ` + interventionColumns + ` FROM interventions`
	var args []any
	var wheres []string
	if f.Country != "" {
		args = append(args, f.Country)
		wheres = append(wheres, fmt.Sprintf("country = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		wheres = append(wheres, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.TechnicianID != "" {
		args = append(args, f.TechnicianID)
		wheres = append(wheres, fmt.Sprintf("technician_id = $%d", len(args)))
	}
	if len(wheres) > 0 {
		query += " WHERE " + strings.Join(wheres, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Intervention
	for rows.Next() {
		itv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, itv)
	}
	return out, rows.Err()
}

const technicianQuery = `
	SELECT u.id, u.first_name, u.last_name, COALESCE(u.country, ''), COALESCE(u.region, ''), COALESCE(u.city, ''),
		tp.certifications, tp.skills, tp.latitude, tp.longitude,
		tp.current_latitude, tp.current_longitude, tp.max_daily_interventions,
		tp.is_available, tp.work_start_time, tp.work_end_time, tp.working_days, tp.zone_radius_km
	FROM users u
	JOIN technician_profiles tp ON u.id = tp.user_id
	WHERE u.role = 'technician'`

func scanTechnician(rows pgx.Rows) (models.Technician, error) {
	var (
		t          models.Technician
		certsJSON  []byte
		skillsJSON []byte
		daysJSON   []byte
	)
	if err := rows.Scan(
		&t.ID, &t.FirstName, &t.LastName, &t.Country, &t.Region, &t.City,
		&certsJSON, &skillsJSON, &t.Latitude, &t.Longitude,
		&t.CurrentLatitude, &t.CurrentLongitude, &t.MaxDailyInterventions,
		&t.IsAvailable, &t.WorkStartTime, &t.WorkEndTime, &daysJSON, &t.ZoneRadiusKm,
	); err != nil {
		return models.Technician{}, err
	}
	// Arrays live as JSON in the profile row; decode at this boundary
	// only.
	if err := json.Unmarshal(certsJSON, &t.Certifications); err != nil {
		t.Certifications = nil
	}
	if err := json.Unmarshal(skillsJSON, &t.Skills); err != nil {
		t.Skills = nil
	}
	if err := json.Unmarshal(daysJSON, &t.WorkingDays); err != nil {
		t.WorkingDays = []int{1, 2, 3, 4, 5}
	}
	return t, nil
}

func (s *Store) ListAvailableTechnicians(ctx context.Context, country string) ([]models.Technician, error) {
	rows, err := s.Pool.Query(ctx, technicianQuery+` AND u.is_active AND tp.is_available AND u.country = $1`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) ListTechnicians(ctx context.Context, country string) ([]models.Technician, error) {
	query := technicianQuery
	var args []any
	if country != "" {
		args = append(args, country)
		query += ` AND u.country = $1`
	}
	query += ` ORDER BY u.last_name, u.first_name`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetTechnician(ctx context.Context, id string) (models.Technician, error) {
	rows, err := s.Pool.Query(ctx, technicianQuery+` AND u.id = $1`, id)
	if err != nil {
		return models.Technician{}, err
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.Technician{}, err
		}
		return models.Technician{}, models.ErrNotFound
	}
	return scanTechnician(rows)
}

func (s *Store) UpdateTechnicianGPS(ctx context.Context, technicianID string, lat, lon float64) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE technician_profiles SET current_latitude = $1, current_longitude = $2 WHERE user_id = $3
	`, lat, lon, technicianID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DailyLoads counts non-cancelled, non-completed interventions per
// technician scheduled on the given date.
func (s *Store) DailyLoads(ctx context.Context, date string) (map[string]int, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT technician_id, COUNT(*)
		FROM interventions
		WHERE scheduled_date = $1
		  AND technician_id IS NOT NULL
		  AND status NOT IN ($2, $3)
		GROUP BY technician_id
	`, date, models.StatusCancelled, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	loads := map[string]int{}
	for rows.Next() {
		var id string
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		loads[id] = count
	}
	return loads, rows.Err()
}

func (s *Store) CountScheduledOn(ctx context.Context, technicianID, date string) (int, error) {
	var count int
	err := s.Pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM interventions
		WHERE technician_id = $1 AND scheduled_date = $2
		  AND status NOT IN ($3, $4)
	`, technicianID, date, models.StatusCancelled, models.StatusCompleted).Scan(&count)
	return count, err
}

func (s *Store) BookingsOn(ctx context.Context, technicianID, date string) ([]models.Booking, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT scheduled_start_time, scheduled_end_time FROM interventions
		WHERE technician_id = $1 AND scheduled_date = $2
		  AND status NOT IN ($3, $4)
		  AND scheduled_start_time IS NOT NULL AND scheduled_end_time IS NOT NULL
		ORDER BY scheduled_start_time
	`, technicianID, date, models.StatusCancelled, models.StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Booking
	for rows.Next() {
		var b models.Booking
		if err := rows.Scan(&b.Start, &b.End); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// lockTechnician serializes assignment commits per technician for the
// rest of the transaction. Two concurrent assignments against the same
// technician queue here instead of double-booking a gap they both saw.
func lockTechnician(ctx context.Context, tx pgx.Tx, technicianID string) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, technicianID)
	return err
}

func (s *Store) AssignAuto(ctx context.Context, a models.AutoAssignment) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockTechnician(ctx, tx, a.TechnicianID); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			UPDATE interventions SET
				technician_id = $1,
				status = $2,
				scheduled_date = $3,
				scheduled_start_time = $4,
				scheduled_end_time = $5,
				planning_mode = $6,
				planning_score = $7,
				client_token = $8,
				client_token_expires = $9,
				updated_at = now()
			WHERE id = $10
		`, a.TechnicianID, models.StatusAutoPlanned, a.Slot.Date, a.Slot.Start, a.Slot.End,
			models.PlanningModeAuto, a.Score, a.ClientToken, a.ClientTokenExpires, a.InterventionID)
		if err != nil {
			return err
		}

		if err := replaceScheduleEntry(ctx, tx, a.TechnicianID, a.Slot, a.InterventionID); err != nil {
			return err
		}

		note := fmt.Sprintf("Technician: %s, score: %.1f, distance: %.1f km",
			a.TechnicianName, a.Score, a.DistanceKm)
		if err := insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:  a.InterventionID,
			Action:          "auto_planning",
			OldValue:        a.OldStatus,
			NewValue:        models.StatusAutoPlanned,
			PerformedBy:     "system",
			PerformedByRole: "system",
			Notes:           note,
		}); err != nil {
			return err
		}

		data, _ := json.Marshal(map[string]string{
			"intervention_id": a.InterventionID,
			"date":            a.Slot.Date,
			"start":           a.Slot.Start,
			"end":             a.Slot.End,
		})
		return insertNotification(ctx, tx, models.Notification{
			ID:      uuid.NewString(),
			UserID:  a.TechnicianID,
			Type:    "new_assignment",
			Title:   "New intervention assigned",
			Message: fmt.Sprintf("Intervention %s scheduled on %s from %s to %s", a.Reference, a.Slot.Date, a.Slot.Start, a.Slot.End),
			Data:    data,
		})
	})
}

func (s *Store) AssignManual(ctx context.Context, a models.ManualAssignment) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if err := lockTechnician(ctx, tx, a.TechnicianID); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			UPDATE interventions SET
				technician_id = $1,
				status = $2,
				scheduled_date = $3,
				scheduled_start_time = $4,
				scheduled_end_time = $5,
				planning_mode = $6,
				manual_override_reason = $7,
				manual_override_by = $8,
				client_token = COALESCE(client_token, $9),
				client_token_expires = COALESCE(client_token_expires, $10),
				updated_at = now()
			WHERE id = $11
		`, a.TechnicianID, models.StatusAutoPlanned, a.Slot.Date, a.Slot.Start, a.Slot.End,
			models.PlanningModeManual, a.Reason, a.PerformedBy,
			a.ClientToken, a.ClientTokenExpires, a.InterventionID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return models.ErrNotFound
		}

		if err := replaceScheduleEntry(ctx, tx, a.TechnicianID, a.Slot, a.InterventionID); err != nil {
			return err
		}

		return insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:   a.InterventionID,
			Action:           "manual_assignment",
			NewValue:         models.StatusAutoPlanned,
			PerformedBy:      a.PerformedBy,
			PerformedByRole:  "admin",
			Notes:            fmt.Sprintf("Manual assignment: %s. Reason: %s", a.TechnicianName, a.Reason),
			IsManualOverride: true,
		})
	})
}

func (s *Store) ResetForReplan(ctx context.Context, interventionID string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE interventions SET
				status = $1,
				technician_id = NULL,
				scheduled_date = NULL,
				scheduled_start_time = NULL,
				scheduled_end_time = NULL,
				planning_mode = $2,
				planning_score = NULL,
				updated_at = now()
			WHERE id = $3
		`, models.StatusPending, models.PlanningModeAuto, interventionID)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `DELETE FROM technician_schedule WHERE intervention_id = $1`, interventionID); err != nil {
			return err
		}

		return insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:  interventionID,
			Action:          "replanning",
			NewValue:        models.StatusPending,
			PerformedBy:     "system",
			PerformedByRole: "system",
		})
	})
}

// MarkDelayed flips one overdue intervention to delayed, writing the
// violation and history rows in the same transaction. The status guard
// makes the sweep idempotent: a second pass affects zero rows and
// writes nothing.
func (s *Store) MarkDelayed(ctx context.Context, m models.DelayMark) (bool, error) {
	marked := false
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE interventions SET status = $1, updated_at = now()
			WHERE id = $2 AND status NOT IN ($3, $4, $5)
		`, models.StatusDelayed, m.InterventionID,
			models.StatusCompleted, models.StatusCancelled, models.StatusDelayed)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		marked = true

		_, err = tx.Exec(ctx, `
			INSERT INTO sla_violations (id, intervention_id, violation_type, expected_time, actual_time, country)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, uuid.NewString(), m.InterventionID, "deadline_exceeded", m.Deadline, m.DetectedAt, m.Country)
		if err != nil {
			return err
		}

		notes := "SLA deadline exceeded"
		if m.Deadline != nil {
			notes = fmt.Sprintf("SLA deadline exceeded. Deadline: %s", m.Deadline.Format(time.RFC3339))
		}
		return insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:  m.InterventionID,
			Action:          "sla_violation",
			OldValue:        m.OldStatus,
			NewValue:        models.StatusDelayed,
			PerformedBy:     "system",
			PerformedByRole: "system",
			Notes:           notes,
		})
	})
	return marked, err
}

func (s *Store) ListOverdueInterventions(ctx context.Context, now time.Time) ([]models.Intervention, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+interventionColumns+` FROM interventions
		WHERE deadline IS NOT NULL AND deadline < $1
		  AND status NOT IN ($2, $3, $4)
		ORDER BY deadline
	`, now, models.StatusCompleted, models.StatusCancelled, models.StatusDelayed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Intervention
	for rows.Next() {
		itv, err := scanIntervention(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, itv)
	}
	return out, rows.Err()
}

func (s *Store) ListSupervisorIDs(ctx context.Context, country string) ([]string, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id FROM users WHERE role = 'supervisor' AND is_active AND country = $1
	`, country)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) InsertNotification(ctx context.Context, n models.Notification) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data)
		VALUES ($1,$2,$3,$4,$5,COALESCE($6, '{}'::jsonb))
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, nullableJSON(n.Data))
	return err
}

func (s *Store) ListNotifications(ctx context.Context, userID string, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, user_id, type, title, message, data, is_read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Type, &n.Title, &n.Message, &n.Data, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (s *Store) GetInterventionHistory(ctx context.Context, interventionID string) ([]models.HistoryEntry, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, intervention_id, action, COALESCE(old_value, ''), COALESCE(new_value, ''),
			COALESCE(performed_by, ''), COALESCE(performed_by_role, ''), COALESCE(notes, ''),
			is_manual_override, created_at
		FROM intervention_history
		WHERE intervention_id = $1
		ORDER BY created_at
	`, interventionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.HistoryEntry
	for rows.Next() {
		var h models.HistoryEntry
		if err := rows.Scan(&h.ID, &h.InterventionID, &h.Action, &h.OldValue, &h.NewValue,
			&h.PerformedBy, &h.PerformedByRole, &h.Notes, &h.IsManualOverride, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// CancelIntervention is a terminal transition; it frees the schedule
// slot. Already-terminal rows are left untouched.
func (s *Store) CancelIntervention(ctx context.Context, id, performedBy, reason string) (bool, error) {
	cancelled := false
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE interventions SET status = $1, updated_at = now()
			WHERE id = $2 AND status NOT IN ($3, $4)
		`, models.StatusCancelled, id, models.StatusCompleted, models.StatusCancelled)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		cancelled = true

		if _, err := tx.Exec(ctx, `DELETE FROM technician_schedule WHERE intervention_id = $1`, id); err != nil {
			return err
		}

		return insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:  id,
			Action:          "cancellation",
			NewValue:        models.StatusCancelled,
			PerformedBy:     performedBy,
			PerformedByRole: "admin",
			Notes:           reason,
		})
	})
	return cancelled, err
}

func (s *Store) StartIntervention(ctx context.Context, id, performedBy string) (bool, error) {
	started := false
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE interventions SET status = $1, actual_start_time = now(), updated_at = now()
			WHERE id = $2 AND status IN ($3, $4, $5)
		`, models.StatusInProgress, id,
			models.StatusAutoPlanned, models.StatusConfirmed, models.StatusDelayed)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		started = true

		return insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:  id,
			Action:          "started",
			NewValue:        models.StatusInProgress,
			PerformedBy:     performedBy,
			PerformedByRole: "technician",
		})
	})
	return started, err
}

func (s *Store) CompleteIntervention(ctx context.Context, id, performedBy, report string) (bool, error) {
	completed := false
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE interventions SET status = $1, actual_end_time = now(), report = $2, updated_at = now()
			WHERE id = $3 AND status = $4
		`, models.StatusCompleted, report, id, models.StatusInProgress)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		completed = true

		return insertHistory(ctx, tx, models.HistoryEntry{
			InterventionID:  id,
			Action:          "completed",
			NewValue:        models.StatusCompleted,
			PerformedBy:     performedBy,
			PerformedByRole: "technician",
		})
	})
	return completed, err
}

func (s *Store) JustifyDelay(ctx context.Context, interventionID, justification, justifiedBy string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE sla_violations SET justification = $1, justified_by = $2 WHERE intervention_id = $3
	`, justification, justifiedBy, interventionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

type SLAReportRow struct {
	ViolationID    string     `json:"violation_id"`
	InterventionID string     `json:"intervention_id"`
	Reference      string     `json:"reference"`
	Type           string     `json:"type"`
	Priority       string     `json:"priority"`
	Country        string     `json:"country"`
	ExpectedTime   *time.Time `json:"expected_time,omitempty"`
	ActualTime     time.Time  `json:"actual_time"`
	Justification  *string    `json:"justification,omitempty"`
	JustifiedBy    *string    `json:"justified_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

func (s *Store) SLAReport(ctx context.Context, country string) ([]SLAReportRow, error) {
	query := `
		SELECT sv.id, sv.intervention_id, i.reference, i.type, i.priority, COALESCE(sv.country, ''),
			sv.expected_time, sv.actual_time, sv.justification, sv.justified_by, sv.created_at
		FROM sla_violations sv
		JOIN interventions i ON i.id = sv.intervention_id`
	var args []any
	if country != "" {
		args = append(args, country)
		query += ` WHERE sv.country = $1`
	}
	query += ` ORDER BY sv.created_at DESC`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SLAReportRow
	for rows.Next() {
		var r SLAReportRow
		if err := rows.Scan(&r.ViolationID, &r.InterventionID, &r.Reference, &r.Type, &r.Priority,
			&r.Country, &r.ExpectedTime, &r.ActualTime, &r.Justification, &r.JustifiedBy, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type DashboardStats struct {
	ByStatus      map[string]int `json:"by_status"`
	Total         int            `json:"total"`
	SLAViolations int            `json:"sla_violations"`
	SLARate       float64        `json:"sla_rate"`
}

func (s *Store) DashboardStats(ctx context.Context, country string) (DashboardStats, error) {
	stats := DashboardStats{ByStatus: map[string]int{}}

	query := `SELECT status, COUNT(*) FROM interventions`
	var args []any
	if country != "" {
		args = append(args, country)
		query += ` WHERE country = $1`
	}
	query += ` GROUP BY status`

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByStatus[status] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	violationsQuery := `SELECT COUNT(*) FROM sla_violations`
	if country != "" {
		violationsQuery += ` WHERE country = $1`
	}
	if err := s.Pool.QueryRow(ctx, violationsQuery, args...).Scan(&stats.SLAViolations); err != nil {
		return stats, err
	}

	completed := stats.ByStatus[models.StatusCompleted]
	if completed > 0 {
		onTimeQuery := `
			SELECT COUNT(*) FROM interventions i
			WHERE i.status = '` + models.StatusCompleted + `'
			  AND NOT EXISTS (SELECT 1 FROM sla_violations sv WHERE sv.intervention_id = i.id)`
		if country != "" {
			onTimeQuery += ` AND i.country = $1`
		}
		var onTime int
		if err := s.Pool.QueryRow(ctx, onTimeQuery, args...).Scan(&onTime); err != nil {
			return stats, err
		}
		stats.SLARate = float64(onTime) / float64(completed) * 100
	} else {
		stats.SLARate = 100
	}
	return stats, nil
}

func replaceScheduleEntry(ctx context.Context, tx pgx.Tx, technicianID string, slot models.Slot, interventionID string) error {
	// At most one live schedule entry per intervention.
	if _, err := tx.Exec(ctx, `DELETE FROM technician_schedule WHERE intervention_id = $1`, interventionID); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO technician_schedule (id, technician_id, date, start_time, end_time, intervention_id)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, uuid.NewString(), technicianID, slot.Date, slot.Start, slot.End, interventionID)
	return err
}

func insertHistory(ctx context.Context, tx pgx.Tx, h models.HistoryEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO intervention_history (id, intervention_id, action, old_value, new_value,
			performed_by, performed_by_role, notes, is_manual_override)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, uuid.NewString(), h.InterventionID, h.Action, h.OldValue, h.NewValue,
		h.PerformedBy, h.PerformedByRole, h.Notes, h.IsManualOverride)
	return err
}

func insertNotification(ctx context.Context, tx pgx.Tx, n models.Notification) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO notifications (id, user_id, type, title, message, data)
		VALUES ($1,$2,$3,$4,$5,COALESCE($6, '{}'::jsonb))
	`, n.ID, n.UserID, n.Type, n.Title, n.Message, nullableJSON(n.Data))
	return err
}

func nullableJSON(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return b
}
