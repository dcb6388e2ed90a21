package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"qlink/internal/models"
)

const queueColumns = `queue_id, user_id, dept_id, ticket_no, DATE_FORMAT(queue_date, '%Y-%m-%d'), status, created_at, started_at, finished_at`

type QueueRepository struct {
	db DBTX
}

func NewQueueRepository(db DBTX) *QueueRepository {
	return &QueueRepository{db: db}
}

func scanQueueEntry(row rowScanner) (*models.QueueEntry, error) {
	var (
		e        models.QueueEntry
		started  sql.NullTime
		finished sql.NullTime
	)
	err := row.Scan(&e.ID, &e.UserID, &e.DeptID, &e.TicketNo, &e.QueueDate, &e.Status, &e.CreatedAt, &started, &finished)
	if err != nil {
		return nil, err
	}
	if started.Valid {
		e.StartedAt = &started.Time
	}
	if finished.Valid {
		e.FinishedAt = &finished.Time
	}
	return &e, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// MaxTicketNo returns the highest ticket issued for the department on day, 0 if none.
func (r *QueueRepository) MaxTicketNo(ctx context.Context, deptID int64, day string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(ticket_no), 0) FROM queues WHERE dept_id = ? AND queue_date = ?`,
		deptID, day,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("max ticket: %w", err)
	}
	return n, nil
}

// CountIssued counts the day's tickets for the department, ignoring cancelled ones.
func (r *QueueRepository) CountIssued(ctx context.Context, deptID int64, day string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queues WHERE dept_id = ? AND queue_date = ? AND status <> 'cancelled'`,
		deptID, day,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count issued: %w", err)
	}
	return n, nil
}

func (r *QueueRepository) HasActiveEntry(ctx context.Context, userID, deptID int64, day string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM queues
			WHERE user_id = ? AND dept_id = ? AND queue_date = ? AND status IN ('waiting', 'serving')
		)`,
		userID, deptID, day,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active entry: %w", err)
	}
	return exists, nil
}

func (r *QueueRepository) Insert(ctx context.Context, e *models.QueueEntry) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO queues (user_id, dept_id, ticket_no, queue_date, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.UserID, e.DeptID, e.TicketNo, e.QueueDate, e.Status, e.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert queue entry: %w", err)
	}
	return res.LastInsertId()
}

// NextWaiting locks the lowest waiting ticket for the department on day.
func (r *QueueRepository) NextWaiting(ctx context.Context, deptID int64, day string) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE dept_id = ? AND queue_date = ? AND status = 'waiting'
		ORDER BY ticket_no ASC
		LIMIT 1
		FOR UPDATE`,
		deptID, day,
	)
	e, err := scanQueueEntry(row)
	if err != nil {
		return nil, notFound(err, "next waiting")
	}
	return e, nil
}

// Lock reads one entry with an exclusive row lock.
func (r *QueueRepository) Lock(ctx context.Context, queueID int64) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+queueColumns+` FROM queues WHERE queue_id = ? FOR UPDATE`, queueID)
	e, err := scanQueueEntry(row)
	if err != nil {
		return nil, notFound(err, "lock queue entry")
	}
	return e, nil
}

// Update writes the mutable lifecycle fields of e.
func (r *QueueRepository) Update(ctx context.Context, e *models.QueueEntry) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE queues
		SET ticket_no = ?, status = ?, started_at = ?, finished_at = ?
		WHERE queue_id = ?`,
		e.TicketNo, e.Status, nullTime(e.StartedAt), nullTime(e.FinishedAt), e.ID,
	)
	if err != nil {
		return fmt.Errorf("update queue entry: %w", err)
	}
	return nil
}

func (r *QueueRepository) SetNowServing(ctx context.Context, deptID int64, ticketNo int, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dept_now_serving (dept_id, now_serving, updated_at)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE now_serving = VALUES(now_serving), updated_at = VALUES(updated_at)`,
		deptID, ticketNo, at,
	)
	if err != nil {
		return fmt.Errorf("set now serving: %w", err)
	}
	return nil
}

// NowServingPointer returns the last called ticket for the department, 0 if never called.
func (r *QueueRepository) NowServingPointer(ctx context.Context, deptID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(now_serving), 0) FROM dept_now_serving WHERE dept_id = ?`,
		deptID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("now serving pointer: %w", err)
	}
	return n, nil
}

// LatestActiveForUser returns the caller's most recent waiting or serving entry on day.
func (r *QueueRepository) LatestActiveForUser(ctx context.Context, userID int64, day string) (*models.QueueEntry, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE user_id = ? AND queue_date = ? AND status IN ('waiting', 'serving')
		ORDER BY created_at DESC, queue_id DESC
		LIMIT 1`,
		userID, day,
	)
	e, err := scanQueueEntry(row)
	if err != nil {
		return nil, notFound(err, "latest active entry")
	}
	return e, nil
}

// ProgressTicket is the highest ticket on day that has been called (serving or done).
func (r *QueueRepository) ProgressTicket(ctx context.Context, deptID int64, day string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(ticket_no), 0)
		FROM queues
		WHERE dept_id = ? AND queue_date = ? AND status IN ('serving', 'done')`,
		deptID, day,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("progress ticket: %w", err)
	}
	return n, nil
}

func (r *QueueRepository) CountWaitingAhead(ctx context.Context, deptID int64, day string, ticketNo int) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM queues
		WHERE dept_id = ? AND queue_date = ? AND status = 'waiting' AND ticket_no < ?`,
		deptID, day, ticketNo,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count waiting ahead: %w", err)
	}
	return n, nil
}

// DepartmentStatuses builds the public board: every department with pointer and waiting count.
func (r *QueueRepository) DepartmentStatuses(ctx context.Context, day string) ([]models.DepartmentStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.dept_id, d.name, d.is_active,
		       COALESCE(dns.now_serving, 0) AS now_serving,
		       (
		         SELECT COUNT(*) FROM queues q
		         WHERE q.dept_id = d.dept_id AND q.status = 'waiting' AND q.queue_date = ?
		       ) AS waiting_count
		FROM departments d
		LEFT JOIN dept_now_serving dns ON dns.dept_id = d.dept_id
		ORDER BY d.name ASC`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("department statuses: %w", err)
	}
	defer rows.Close()

	out := []models.DepartmentStatus{}
	for rows.Next() {
		var s models.DepartmentStatus
		if err := rows.Scan(&s.DeptID, &s.Name, &s.IsActive, &s.NowServing, &s.WaitingCount); err != nil {
			return nil, fmt.Errorf("scan department status: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// NextInLine lists up to limit waiting customers with minutes waited as of now.
func (r *QueueRepository) NextInLine(ctx context.Context, deptID int64, day string, limit int, now time.Time) ([]models.WaitingCustomer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.queue_id, q.ticket_no, u.name AS customer_name,
		       GREATEST(TIMESTAMPDIFF(MINUTE, q.created_at, ?), 0) AS wait_time
		FROM queues q
		JOIN users u ON u.user_id = q.user_id
		WHERE q.dept_id = ? AND q.status = 'waiting' AND q.queue_date = ?
		ORDER BY q.ticket_no ASC
		LIMIT ?`,
		now, deptID, day, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("next in line: %w", err)
	}
	defer rows.Close()

	out := []models.WaitingCustomer{}
	for rows.Next() {
		var w models.WaitingCustomer
		if err := rows.Scan(&w.QueueID, &w.TicketNo, &w.CustomerName, &w.WaitTime); err != nil {
			return nil, fmt.Errorf("scan waiting customer: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (r *QueueRepository) CurrentlyServing(ctx context.Context, deptID int64, day string) ([]models.ServingCustomer, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT q.queue_id, q.ticket_no, u.name AS customer_name
		FROM queues q
		JOIN users u ON u.user_id = q.user_id
		WHERE q.dept_id = ? AND q.status = 'serving' AND q.queue_date = ?
		ORDER BY q.started_at DESC`,
		deptID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("currently serving: %w", err)
	}
	defer rows.Close()

	out := []models.ServingCustomer{}
	for rows.Next() {
		var s models.ServingCustomer
		if err := rows.Scan(&s.QueueID, &s.TicketNo, &s.CustomerName); err != nil {
			return nil, fmt.Errorf("scan serving customer: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// StaleServing locks serving entries whose service started before cutoff.
func (r *QueueRepository) StaleServing(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM queues
		WHERE status = 'serving' AND started_at < ?
		ORDER BY started_at ASC
		FOR UPDATE`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("stale serving: %w", err)
	}
	defer rows.Close()

	out := []models.QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stale entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}
