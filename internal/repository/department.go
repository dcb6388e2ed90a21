package repository

import (
	"context"
	"fmt"

	"qlink/internal/models"
)

const departmentColumns = `dept_id, name, code, COALESCE(description, ''), is_active, daily_limit, created_at`

type DepartmentRepository struct {
	db DBTX
}

func NewDepartmentRepository(db DBTX) *DepartmentRepository {
	return &DepartmentRepository{db: db}
}

func scanDepartment(row rowScanner) (*models.Department, error) {
	d := &models.Department{}
	err := row.Scan(&d.ID, &d.Name, &d.Code, &d.Description, &d.IsActive, &d.DailyLimit, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *DepartmentRepository) List(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	query := `SELECT ` + departmentColumns + ` FROM departments WHERE 1=1`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	defer rows.Close()

	depts := []models.Department{}
	for rows.Next() {
		d, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan department: %w", err)
		}
		depts = append(depts, *d)
	}
	return depts, rows.Err()
}

func (r *DepartmentRepository) GetByID(ctx context.Context, id int64) (*models.Department, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE dept_id = ?`, id)
	d, err := scanDepartment(row)
	if err != nil {
		return nil, notFound(err, "get department")
	}
	return d, nil
}

// Lock reads the department row with an exclusive lock held until the transaction ends.
// Ticket numbering for the department is serialized behind this lock.
func (r *DepartmentRepository) Lock(ctx context.Context, id int64) (*models.Department, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+departmentColumns+` FROM departments WHERE dept_id = ? FOR UPDATE`, id)
	d, err := scanDepartment(row)
	if err != nil {
		return nil, notFound(err, "lock department")
	}
	return d, nil
}

func (r *DepartmentRepository) CodeExists(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM departments WHERE code = ?)`, code).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check department code: %w", err)
	}
	return exists, nil
}

func (r *DepartmentRepository) Create(ctx context.Context, d *models.Department) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO departments (name, code, description, is_active, daily_limit)
		VALUES (?, ?, ?, ?, ?)`,
		d.Name, d.Code, d.Description, d.IsActive, d.DailyLimit,
	)
	if err != nil {
		return 0, fmt.Errorf("insert department: %w", err)
	}
	return res.LastInsertId()
}

func (r *DepartmentRepository) Update(ctx context.Context, d *models.Department) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE departments
		SET name = ?, description = ?, is_active = ?, daily_limit = ?
		WHERE dept_id = ?`,
		d.Name, d.Description, d.IsActive, d.DailyLimit, d.ID,
	)
	if err != nil {
		return fmt.Errorf("update department: %w", err)
	}
	return nil
}
