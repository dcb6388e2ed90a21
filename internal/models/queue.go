package models

import (
	"time"
)

type QueueStatus string

const (
	StatusWaiting   QueueStatus = "waiting"
	StatusServing   QueueStatus = "serving"
	StatusDone      QueueStatus = "done"
	StatusCancelled QueueStatus = "cancelled"
	StatusMissed    QueueStatus = "missed"
)

// Active reports whether the entry still holds a place in line.
func (s QueueStatus) Active() bool {
	return s == StatusWaiting || s == StatusServing
}

type QueueEntry struct {
	ID         int64       `json:"queue_id"`
	UserID     int64       `json:"user_id"`
	DeptID     int64       `json:"dept_id"`
	TicketNo   int         `json:"ticket_no"`
	QueueDate  string      `json:"queue_date"` // YYYY-MM-DD in the service time zone
	Status     QueueStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	StartedAt  *time.Time  `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at"`
}

type JoinQueueRequest struct {
	DeptID int64 `json:"dept_id" form:"dept_id"`
}

type QueueActionRequest struct {
	QueueID int64 `json:"queue_id" form:"queue_id"`
}

type CallNextRequest struct {
	DeptID int64 `json:"dept_id" form:"dept_id"`
}

type JoinResult struct {
	QueueID  int64 `json:"queue_id"`
	TicketNo int   `json:"ticket_no"`
}

// QueueStatusView is the caller's active entry plus computed progress.
type QueueStatusView struct {
	QueueID    int64       `json:"queue_id"`
	TicketNo   int         `json:"ticket_no"`
	DeptID     int64       `json:"dept_id"`
	Status     QueueStatus `json:"status"`
	CreatedAt  time.Time   `json:"created_at"`
	NowServing int         `json:"now_serving"`
	Position   int         `json:"position"`
	ETA        int         `json:"eta"` // minutes
}

type WaitingCustomer struct {
	QueueID      int64  `json:"queue_id"`
	TicketNo     int    `json:"ticket_no"`
	CustomerName string `json:"customer_name"`
	WaitTime     int    `json:"wait_time"` // minutes since joining
}

type ServingCustomer struct {
	QueueID      int64  `json:"queue_id"`
	TicketNo     int    `json:"ticket_no"`
	CustomerName string `json:"customer_name"`
}

type StaffStatus struct {
	NowServing       int               `json:"now_serving"`
	NextInLine       []WaitingCustomer `json:"next_in_line"`
	CurrentlyServing []ServingCustomer `json:"currently_serving"`
}
