package models

import "time"

// Activity actions written by the queue and auth flows.
const (
	ActionQueueJoin     = "queue_join"
	ActionQueueCallNext = "queue_call_next"
	ActionQueueDone     = "queue_done"
	ActionQueueSkip     = "queue_skip"
	ActionQueueCancel   = "queue_cancel"
	ActionQueueMissed   = "queue_missed"
	ActionLogin         = "login"
	ActionLogout        = "logout"
	ActionRegister      = "register"
	ActionUpdateProfile = "update_profile"
	ActionChangePass    = "change_password"
	ActionResetPass     = "reset_password"
	ActionActivate      = "activate_user"
	ActionDeactivate    = "deactivate_user"
	ActionCreateDept    = "create_department"
	ActionUpdateDept    = "update_department"
)

type Activity struct {
	ID          int64     `json:"id"`
	UserID      *int64    `json:"user_id"`
	Action      string    `json:"action"`
	Description string    `json:"description"`
	IPAddress   string    `json:"-"`
	UserAgent   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
