package models

type AdminStats struct {
	TotalUsers        int `json:"total_users"`
	TotalDepartments  int `json:"total_departments"`
	ActiveQueues      int `json:"active_queues"`
	AvgWaitMinutes    int `json:"avg_wait_minutes"`
	AvgServiceMinutes int `json:"avg_service_minutes"`
	DoneToday         int `json:"done_today"`
	CancelledToday    int `json:"cancelled_today"`
	MissedToday       int `json:"missed_today"`
	ThroughputToday   int `json:"throughput_today"`
}

type DepartmentCount struct {
	Name  string `json:"name"`
	Count int    `json:"cnt"`
}

type DailyCount struct {
	Date  string // YYYY-MM-DD
	Count int
}

type QueueTrend struct {
	Labels []string `json:"labels"`
	Counts []int    `json:"counts"`
}

type AnalyticsOverview struct {
	TotalUsers       int               `json:"total_users"`
	ActiveStaff      int               `json:"active_staff"`
	ActiveStudents   int               `json:"active_students"`
	TotalDepartments int               `json:"total_departments"`
	TodayQueues      int               `json:"today_queues"`
	TodayWaiting     int               `json:"today_waiting"`
	TodayServing     int               `json:"today_serving"`
	TodayDone        int               `json:"today_done"`
	TopDepartments   []DepartmentCount `json:"top_departments"`
	QueueTrends      QueueTrend        `json:"queue_trends"`
}

// DepartmentDayCount is one (department, day) bucket of issued tickets.
type DepartmentDayCount struct {
	DeptID int64
	Date   string // YYYY-MM-DD
	Count  int
}

type VisitorReportRow struct {
	No         int    `json:"no"`
	DeptID     int64  `json:"dept_id"`
	Department string `json:"department"`
	Counts     []int  `json:"counts"` // aligned with VisitorReport.Dates
	Total      int    `json:"total"`
}

// VisitorReport is the per-department ticket volume over a date range.
type VisitorReport struct {
	StartDate string             `json:"start_date"`
	EndDate   string             `json:"end_date"`
	Dates     []string           `json:"dates"`
	Rows      []VisitorReportRow `json:"rows"`
	Total     int                `json:"total"`
}

type UserPage struct {
	Users []UserResponse `json:"users"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
