package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/motion-hub/motion-hub/internal/models"
	"github.com/motion-hub/motion-hub/pkg/motion"
)

// ========== Event Log Methods ==========

// CreateEventLog creates an event log entry
func (s *PostgresStore) CreateEventLog(ctx context.Context, event *models.EventLog) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	query := `
        INSERT INTO event_logs (
            id, created_at, mac, type, level, description, details
        ) VALUES (
            $1, $2, $3, $4, $5, $6, $7
        )`

	_, err := s.db.ExecContext(ctx, query,
		event.ID, event.CreatedAt, event.MAC, event.Type, event.Level,
		event.Description, event.Details,
	)

	return err
}

// ListEventLogs lists event log entries with filters and pagination
func (s *PostgresStore) ListEventLogs(ctx context.Context, filters EventLogFilters, limit, offset int) ([]*models.EventLog, int64, error) {
	where := " WHERE 1=1"
	args := []interface{}{}
	arg := 0

	next := func() string {
		arg++
		return fmt.Sprintf("$%d", arg)
	}

	if filters.MAC != nil {
		where += " AND mac = " + next()
		args = append(args, *filters.MAC)
	}
	if filters.Type != nil {
		where += " AND type = " + next()
		args = append(args, *filters.Type)
	}
	if filters.Level != nil {
		where += " AND level = " + next()
		args = append(args, *filters.Level)
	}
	if filters.StartTime != nil {
		where += " AND created_at >= " + next()
		args = append(args, *filters.StartTime)
	}
	if filters.EndTime != nil {
		where += " AND created_at <= " + next()
		args = append(args, *filters.EndTime)
	}

	var total int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM event_logs"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
        SELECT id, created_at, mac, type, level, description, details
        FROM event_logs` + where + `
        ORDER BY created_at DESC
        LIMIT ` + next() + ` OFFSET ` + next()
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var events []*models.EventLog
	for rows.Next() {
		event := &models.EventLog{}
		var mac sql.NullString
		if err := rows.Scan(
			&event.ID, &event.CreatedAt, &mac, &event.Type,
			&event.Level, &event.Description, &event.Details,
		); err != nil {
			return nil, 0, err
		}
		if mac.Valid {
			parsed, err := motion.ParseMAC(mac.String)
			if err != nil {
				return nil, 0, fmt.Errorf("scan event mac: %w", err)
			}
			event.MAC = &parsed
		}
		events = append(events, event)
	}

	return events, total, rows.Err()
}
