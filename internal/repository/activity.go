package repository

import (
	"context"
	"database/sql"
	"fmt"

	"qlink/internal/models"
)

type ActivityRepository struct {
	db DBTX
}

func NewActivityRepository(db DBTX) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Log(ctx context.Context, a models.Activity) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO activity_log (user_id, action, description, ip_address, user_agent)
		VALUES (?, ?, ?, NULLIF(?, ''), NULLIF(?, ''))`,
		a.UserID, a.Action, a.Description, a.IPAddress, truncate(a.UserAgent, 255),
	)
	if err != nil {
		return fmt.Errorf("log activity %s: %w", a.Action, err)
	}
	return nil
}

// Recent returns the latest entries whose action starts with prefix.
func (r *ActivityRepository) Recent(ctx context.Context, prefix string, limit int) ([]models.Activity, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT activity_id, user_id, action, COALESCE(description, ''), created_at
		FROM activity_log
		WHERE action LIKE ?
		ORDER BY created_at DESC, activity_id DESC
		LIMIT ?`,
		prefix+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent activity: %w", err)
	}
	defer rows.Close()

	out := []models.Activity{}
	for rows.Next() {
		var (
			a      models.Activity
			userID sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &userID, &a.Action, &a.Description, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		if userID.Valid {
			id := userID.Int64
			a.UserID = &id
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
