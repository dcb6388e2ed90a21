package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"qlink/internal/apperror"
	"qlink/internal/audit"
	"qlink/internal/helper"
	"qlink/internal/models"
	"qlink/internal/repository"
)

const (
	dayLayout        = "2006-01-02"
	joinAttempts     = 3
	nextInLineLimit  = 10
	defaultETAMinute = 2
)

var (
	errInvalidDepartment = apperror.Invalid("Invalid department")
	errInvalidQueue      = apperror.Invalid("Invalid queue")
	errDeptUnavailable   = apperror.Precondition("Department not found or inactive")
	errAlreadyQueued     = apperror.Precondition("You are already queued for this department today")
	errDailyLimit        = apperror.Precondition("Daily limit reached for this department")
	errQueueClosed       = apperror.Precondition("Queue is closed")
	errNoneWaiting       = apperror.Precondition("No customers waiting")
	errNotServing        = apperror.Precondition("Queue not currently serving")
	errNotCancellable    = apperror.Precondition("Queue not found or not cancellable")
)

// Notifier hears about queue changes after they commit.
type Notifier interface {
	QueueChanged(deptID int64)
}

type Options struct {
	Now        func() time.Time
	Location   *time.Location
	OpenAt     string
	CloseAt    string
	ETAMinutes int
	Notifier   Notifier
	Logger     *slog.Logger
}

type Service struct {
	store      Store
	now        func() time.Time
	loc        *time.Location
	openAt     string
	closeAt    string
	etaMinutes int
	notifier   Notifier
	log        *slog.Logger
}

func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		now:        opts.Now,
		loc:        opts.Location,
		openAt:     opts.OpenAt,
		closeAt:    opts.CloseAt,
		etaMinutes: opts.ETAMinutes,
		notifier:   opts.Notifier,
		log:        opts.Logger,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.etaMinutes <= 0 {
		s.etaMinutes = defaultETAMinute
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

func (s *Service) clock() (time.Time, string) {
	now := s.now().In(s.loc)
	return now, now.Format(dayLayout)
}

// Join issues the next ticket for deptID to userID.
func (s *Service) Join(ctx context.Context, userID, deptID int64) (models.JoinResult, error) {
	if deptID <= 0 {
		return models.JoinResult{}, errInvalidDepartment
	}

	now, day := s.clock()
	if !helper.IsQueueOpen(s.openAt, s.closeAt, now) {
		return models.JoinResult{}, errQueueClosed
	}

	var (
		result   models.JoinResult
		deptName string
		err      error
	)
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		err = s.store.WithTx(ctx, func(tx Store) error {
			dept, err := tx.LockDepartment(ctx, deptID)
			if errors.Is(err, repository.ErrNotFound) {
				return errDeptUnavailable
			}
			if err != nil {
				return err
			}
			if !dept.IsActive {
				return errDeptUnavailable
			}
			deptName = dept.Name

			active, err := tx.HasActiveEntry(ctx, userID, deptID, day)
			if err != nil {
				return err
			}
			if active {
				return errAlreadyQueued
			}

			if dept.DailyLimit > 0 {
				issued, err := tx.CountIssued(ctx, deptID, day)
				if err != nil {
					return err
				}
				if issued >= dept.DailyLimit {
					return errDailyLimit
				}
			}

			maxNo, err := tx.MaxTicketNo(ctx, deptID, day)
			if err != nil {
				return err
			}

			entry := &models.QueueEntry{
				UserID:    userID,
				DeptID:    deptID,
				TicketNo:  maxNo + 1,
				QueueDate: day,
				Status:    models.StatusWaiting,
				CreatedAt: now,
			}
			id, err := tx.InsertEntry(ctx, entry)
			if err != nil {
				return err
			}

			result = models.JoinResult{QueueID: id, TicketNo: entry.TicketNo}
			return nil
		})
		if !repository.IsDuplicateKey(err) {
			break
		}
		s.log.Warn("ticket number collision, retrying", "dept_id", deptID, "attempt", attempt)
	}
	if err != nil {
		return models.JoinResult{}, s.wrap("join", err)
	}

	s.record(ctx, userID, models.ActionQueueJoin,
		fmt.Sprintf("Joined %s (Ticket #%d)", deptName, result.TicketNo))
	s.changed(deptID)
	return result, nil
}

// CallNext moves the lowest waiting ticket of deptID to serving and returns its number.
func (s *Service) CallNext(ctx context.Context, staffID, deptID int64) (int, error) {
	if deptID <= 0 {
		return 0, errInvalidDepartment
	}

	now, day := s.clock()
	var ticketNo int

	err := s.store.WithTx(ctx, func(tx Store) error {
		next, err := tx.NextWaiting(ctx, deptID, day)
		if errors.Is(err, repository.ErrNotFound) {
			return errNoneWaiting
		}
		if err != nil {
			return err
		}

		if err := Apply(next, EventCall, now); err != nil {
			return err
		}
		if err := tx.UpdateEntry(ctx, next); err != nil {
			return err
		}
		if err := tx.SetNowServing(ctx, deptID, next.TicketNo, now); err != nil {
			return err
		}

		ticketNo = next.TicketNo
		return nil
	})
	if err != nil {
		return 0, s.wrap("call next", err)
	}

	s.record(ctx, staffID, models.ActionQueueCallNext,
		fmt.Sprintf("Called next at %s (Ticket #%d)", s.store.DepartmentName(ctx, deptID), ticketNo))
	s.changed(deptID)
	return ticketNo, nil
}

// Done completes a serving entry.
func (s *Service) Done(ctx context.Context, staffID, queueID int64) error {
	if queueID <= 0 {
		return errInvalidQueue
	}

	now, _ := s.clock()
	var entry *models.QueueEntry

	err := s.store.WithTx(ctx, func(tx Store) error {
		e, err := s.lockServing(ctx, tx, queueID)
		if err != nil {
			return err
		}
		if err := Apply(e, EventDone, now); err != nil {
			return errNotServing
		}
		entry = e
		return tx.UpdateEntry(ctx, e)
	})
	if err != nil {
		return s.wrap("done", err)
	}

	s.record(ctx, staffID, models.ActionQueueDone,
		fmt.Sprintf("Ticket #%d served at %s", entry.TicketNo, s.store.DepartmentName(ctx, entry.DeptID)))
	s.changed(entry.DeptID)
	return nil
}

// Skip sends a serving entry to the back of today's line under a fresh ticket number.
func (s *Service) Skip(ctx context.Context, staffID, queueID int64) error {
	if queueID <= 0 {
		return errInvalidQueue
	}

	now, _ := s.clock()
	var entry *models.QueueEntry

	err := s.store.WithTx(ctx, func(tx Store) error {
		e, err := s.lockServing(ctx, tx, queueID)
		if err != nil {
			return err
		}

		// Serialize renumbering with joins on the same department.
		if _, err := tx.LockDepartment(ctx, e.DeptID); err != nil {
			return err
		}
		maxNo, err := tx.MaxTicketNo(ctx, e.DeptID, e.QueueDate)
		if err != nil {
			return err
		}

		if err := Apply(e, EventSkip, now); err != nil {
			return errNotServing
		}
		e.TicketNo = maxNo + 1
		entry = e
		return tx.UpdateEntry(ctx, e)
	})
	if err != nil {
		return s.wrap("skip", err)
	}

	s.record(ctx, staffID, models.ActionQueueSkip,
		fmt.Sprintf("Skipped current and reassigned ticket #%d at %s", entry.TicketNo, s.store.DepartmentName(ctx, entry.DeptID)))
	s.changed(entry.DeptID)
	return nil
}

func (s *Service) lockServing(ctx context.Context, tx Store, queueID int64) (*models.QueueEntry, error) {
	e, err := tx.LockEntry(ctx, queueID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errNotServing
	}
	if err != nil {
		return nil, err
	}
	if e.Status != models.StatusServing {
		return nil, errNotServing
	}
	return e, nil
}

// Cancel withdraws the caller's own active entry from today's line.
// Entries that belong to someone else or to another day are reported as not found.
func (s *Service) Cancel(ctx context.Context, userID, queueID int64) error {
	if queueID <= 0 {
		return errInvalidQueue
	}

	now, day := s.clock()
	var entry *models.QueueEntry

	err := s.store.WithTx(ctx, func(tx Store) error {
		e, err := tx.LockEntry(ctx, queueID)
		if errors.Is(err, repository.ErrNotFound) {
			return errNotCancellable
		}
		if err != nil {
			return err
		}
		if e.UserID != userID || e.QueueDate != day {
			return errNotCancellable
		}
		if err := Apply(e, EventCancel, now); err != nil {
			return errNotCancellable
		}
		entry = e
		return tx.UpdateEntry(ctx, e)
	})
	if err != nil {
		return s.wrap("cancel", err)
	}

	s.record(ctx, userID, models.ActionQueueCancel,
		fmt.Sprintf("Cancelled Ticket #%d at %s", entry.TicketNo, s.store.DepartmentName(ctx, entry.DeptID)))
	s.changed(entry.DeptID)
	return nil
}

// Status returns the caller's latest active entry today with progress, or nil when none.
func (s *Service) Status(ctx context.Context, userID int64) (*models.QueueStatusView, error) {
	_, day := s.clock()

	e, err := s.store.LatestActiveForUser(ctx, userID, day)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, s.wrap("status", err)
	}

	nowServing, err := s.store.ProgressTicket(ctx, e.DeptID, day)
	if err != nil {
		return nil, s.wrap("status", err)
	}

	position := 0
	if e.Status == models.StatusWaiting {
		position, err = s.store.CountWaitingAhead(ctx, e.DeptID, day, e.TicketNo)
		if err != nil {
			return nil, s.wrap("status", err)
		}
	}

	return &models.QueueStatusView{
		QueueID:    e.ID,
		TicketNo:   e.TicketNo,
		DeptID:     e.DeptID,
		Status:     e.Status,
		CreatedAt:  e.CreatedAt,
		NowServing: nowServing,
		Position:   position,
		ETA:        s.eta(position),
	}, nil
}

func (s *Service) eta(position int) int {
	if position < 0 {
		return 0
	}
	return position * s.etaMinutes
}

// DepartmentStatus is the public board for today.
func (s *Service) DepartmentStatus(ctx context.Context) ([]models.DepartmentStatus, error) {
	_, day := s.clock()
	rows, err := s.store.DepartmentStatuses(ctx, day)
	if err != nil {
		return nil, s.wrap("department status", err)
	}
	return rows, nil
}

// StaffStatus is the counter view for one department.
func (s *Service) StaffStatus(ctx context.Context, deptID int64) (models.StaffStatus, error) {
	if deptID <= 0 {
		return models.StaffStatus{}, errInvalidDepartment
	}
	now, day := s.clock()

	var (
		out models.StaffStatus
		err error
	)
	if out.NowServing, err = s.store.NowServingPointer(ctx, deptID); err != nil {
		return out, s.wrap("staff status", err)
	}
	if out.NextInLine, err = s.store.NextInLine(ctx, deptID, day, nextInLineLimit, now); err != nil {
		return out, s.wrap("staff status", err)
	}
	if out.CurrentlyServing, err = s.store.CurrentlyServing(ctx, deptID, day); err != nil {
		return out, s.wrap("staff status", err)
	}
	return out, nil
}

// ExpireStale marks entries serving for longer than after as missed and returns how many moved.
func (s *Service) ExpireStale(ctx context.Context, after time.Duration) (int, error) {
	if after <= 0 {
		return 0, nil
	}
	now, _ := s.clock()

	var expired []models.QueueEntry
	err := s.store.WithTx(ctx, func(tx Store) error {
		stale, err := tx.StaleServing(ctx, now.Add(-after))
		if err != nil {
			return err
		}
		for i := range stale {
			e := stale[i]
			if err := Apply(&e, EventExpire, now); err != nil {
				continue
			}
			if err := tx.UpdateEntry(ctx, &e); err != nil {
				return err
			}
			expired = append(expired, e)
		}
		return nil
	})
	if err != nil {
		return 0, s.wrap("expire stale", err)
	}

	depts := map[int64]struct{}{}
	for _, e := range expired {
		s.record(ctx, e.UserID, models.ActionQueueMissed,
			fmt.Sprintf("Ticket #%d missed at %s", e.TicketNo, s.store.DepartmentName(ctx, e.DeptID)))
		depts[e.DeptID] = struct{}{}
	}
	for id := range depts {
		s.changed(id)
	}
	return len(expired), nil
}

// record writes the activity log after commit. Failures are logged, never surfaced.
func (s *Service) record(ctx context.Context, userID int64, action, description string) {
	if err := s.store.LogActivity(ctx, audit.Entry(ctx, userID, action, description)); err != nil {
		s.log.Warn("activity log failed", "action", action, "error", err)
	}
}

func (s *Service) changed(deptID int64) {
	if s.notifier != nil {
		s.notifier.QueueChanged(deptID)
	}
}

// wrap passes domain errors through and hides everything else behind an internal error.
func (s *Service) wrap(op string, err error) error {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}
	if errors.Is(err, ErrIllegalTransition) {
		return apperror.Precondition(err.Error())
	}
	s.log.Error("queue operation failed", "op", op, "error", err)
	return apperror.Internal("", fmt.Errorf("%s: %w", op, err))
}

func departmentFallbackName(deptID int64) string {
	return "Department #" + strconv.FormatInt(deptID, 10)
}
