package models

import "time"

type Department struct {
	ID          int64     `json:"dept_id"`
	Name        string    `json:"name"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	DailyLimit  int       `json:"daily_limit"` // 0 means unlimited
	CreatedAt   time.Time `json:"created_at"`
}

type CreateDepartmentRequest struct {
	Name        string `json:"name" form:"name"`
	Code        string `json:"code" form:"code"`
	Description string `json:"description" form:"description"`
	IsActive    bool   `json:"is_active" form:"is_active"`
	DailyLimit  int    `json:"daily_limit" form:"daily_limit"`
}

type UpdateDepartmentRequest struct {
	Name        *string `json:"name" form:"name"`
	Description *string `json:"description" form:"description"`
	IsActive    *bool   `json:"is_active" form:"is_active"`
	DailyLimit  *int    `json:"daily_limit" form:"daily_limit"`
}

// DepartmentStatus is one row of the public display board.
type DepartmentStatus struct {
	DeptID       int64  `json:"dept_id"`
	Name         string `json:"name"`
	IsActive     bool   `json:"is_active"`
	NowServing   int    `json:"now_serving"`
	WaitingCount int    `json:"waiting_count"`
}
