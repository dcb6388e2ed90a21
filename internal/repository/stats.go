package repository

import (
	"context"
	"database/sql"
	"fmt"

	"qlink/internal/models"
)

type StatsRepository struct {
	db DBTX
}

func NewStatsRepository(db DBTX) *StatsRepository {
	return &StatsRepository{db: db}
}

func (r *StatsRepository) count(ctx context.Context, op, query string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

func (r *StatsRepository) avgMinutes(ctx context.Context, op, query string, args ...any) (float64, error) {
	var avg sql.NullFloat64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&avg); err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return avg.Float64, nil
}

// Admin collects the dashboard KPIs for day.
func (r *StatsRepository) Admin(ctx context.Context, day string) (models.AdminStats, error) {
	var (
		s   models.AdminStats
		err error
	)

	if s.TotalUsers, err = r.count(ctx, "count users", `SELECT COUNT(*) FROM users`); err != nil {
		return s, err
	}
	if s.TotalDepartments, err = r.count(ctx, "count departments", `SELECT COUNT(*) FROM departments`); err != nil {
		return s, err
	}
	if s.ActiveQueues, err = r.count(ctx, "count active queues",
		`SELECT COUNT(*) FROM queues WHERE status IN ('waiting', 'serving') AND queue_date = ?`, day); err != nil {
		return s, err
	}

	avgWait, err := r.avgMinutes(ctx, "avg wait",
		`SELECT AVG(TIMESTAMPDIFF(MINUTE, created_at, started_at))
		 FROM queues
		 WHERE started_at IS NOT NULL AND queue_date = ?`, day)
	if err != nil {
		return s, err
	}
	avgService, err := r.avgMinutes(ctx, "avg service",
		`SELECT AVG(TIMESTAMPDIFF(MINUTE, started_at, finished_at))
		 FROM queues
		 WHERE finished_at IS NOT NULL AND started_at IS NOT NULL AND queue_date = ?`, day)
	if err != nil {
		return s, err
	}
	s.AvgWaitMinutes = roundMinutes(avgWait)
	s.AvgServiceMinutes = roundMinutes(avgService)

	if s.DoneToday, err = r.count(ctx, "count done",
		`SELECT COUNT(*) FROM queues WHERE status = 'done' AND queue_date = ?`, day); err != nil {
		return s, err
	}
	if s.CancelledToday, err = r.count(ctx, "count cancelled",
		`SELECT COUNT(*) FROM queues WHERE status = 'cancelled' AND queue_date = ?`, day); err != nil {
		return s, err
	}
	if s.MissedToday, err = r.count(ctx, "count missed",
		`SELECT COUNT(*) FROM queues WHERE status = 'missed' AND queue_date = ?`, day); err != nil {
		return s, err
	}
	s.ThroughputToday = s.DoneToday

	return s, nil
}

// Overview fills the analytics counters for day. Trends and top departments are separate queries.
func (r *StatsRepository) Overview(ctx context.Context, day string) (models.AnalyticsOverview, error) {
	var (
		o   models.AnalyticsOverview
		err error
	)

	counters := []struct {
		dst   *int
		op    string
		query string
		args  []any
	}{
		{&o.TotalUsers, "count users", `SELECT COUNT(*) FROM users`, nil},
		{&o.ActiveStaff, "count active staff", `SELECT COUNT(*) FROM users WHERE role = 'staff' AND is_active = 1`, nil},
		{&o.ActiveStudents, "count active students", `SELECT COUNT(*) FROM users WHERE role = 'student' AND is_active = 1`, nil},
		{&o.TotalDepartments, "count departments", `SELECT COUNT(*) FROM departments`, nil},
		{&o.TodayQueues, "count today queues", `SELECT COUNT(*) FROM queues WHERE queue_date = ?`, []any{day}},
		{&o.TodayWaiting, "count today waiting", `SELECT COUNT(*) FROM queues WHERE status = 'waiting' AND queue_date = ?`, []any{day}},
		{&o.TodayServing, "count today serving", `SELECT COUNT(*) FROM queues WHERE status = 'serving' AND queue_date = ?`, []any{day}},
		{&o.TodayDone, "count today done", `SELECT COUNT(*) FROM queues WHERE status = 'done' AND queue_date = ?`, []any{day}},
	}
	for _, c := range counters {
		if *c.dst, err = r.count(ctx, c.op, c.query, c.args...); err != nil {
			return o, err
		}
	}
	return o, nil
}

// TopDepartments ranks departments by tickets issued on day.
func (r *StatsRepository) TopDepartments(ctx context.Context, day string, limit int) ([]models.DepartmentCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT d.name, COUNT(*) AS cnt
		FROM queues q
		JOIN departments d ON d.dept_id = q.dept_id
		WHERE q.queue_date = ?
		GROUP BY d.dept_id, d.name
		ORDER BY cnt DESC, d.name ASC
		LIMIT ?`,
		day, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("top departments: %w", err)
	}
	defer rows.Close()

	out := []models.DepartmentCount{}
	for rows.Next() {
		var dc models.DepartmentCount
		if err := rows.Scan(&dc.Name, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan top department: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// DailyCounts groups tickets per day within [from, to]. Days without tickets are absent.
func (r *StatsRepository) DailyCounts(ctx context.Context, from, to string) ([]models.DailyCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DATE_FORMAT(queue_date, '%Y-%m-%d') AS d, COUNT(*) AS cnt
		FROM queues
		WHERE queue_date BETWEEN ? AND ?
		GROUP BY queue_date
		ORDER BY queue_date ASC`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("daily counts: %w", err)
	}
	defer rows.Close()

	out := []models.DailyCount{}
	for rows.Next() {
		var dc models.DailyCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan daily count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

func roundMinutes(v float64) int {
	if v < 0 {
		return 0
	}
	return int(v + 0.5)
}

// DepartmentDailyCounts groups tickets per department and day within [from, to].
func (r *StatsRepository) DepartmentDailyCounts(ctx context.Context, from, to string) ([]models.DepartmentDayCount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT dept_id, DATE_FORMAT(queue_date, '%Y-%m-%d') AS d, COUNT(*) AS cnt
		FROM queues
		WHERE queue_date BETWEEN ? AND ?
		GROUP BY dept_id, queue_date`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("department daily counts: %w", err)
	}
	defer rows.Close()

	out := []models.DepartmentDayCount{}
	for rows.Next() {
		var dc models.DepartmentDayCount
		if err := rows.Scan(&dc.DeptID, &dc.Date, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan department daily count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}
