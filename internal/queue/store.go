package queue

import (
	"context"
	"database/sql"
	"time"

	"qlink/internal/models"
	"qlink/internal/repository"
)

// Store is the persistence the lifecycle needs. WithTx hands fn a Store bound to one
// transaction; calling WithTx on that Store reuses the same transaction.
// Lookups that find nothing return an error matching repository.ErrNotFound.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Store) error) error

	LockDepartment(ctx context.Context, deptID int64) (*models.Department, error)
	HasActiveEntry(ctx context.Context, userID, deptID int64, day string) (bool, error)
	CountIssued(ctx context.Context, deptID int64, day string) (int, error)
	MaxTicketNo(ctx context.Context, deptID int64, day string) (int, error)
	InsertEntry(ctx context.Context, e *models.QueueEntry) (int64, error)
	NextWaiting(ctx context.Context, deptID int64, day string) (*models.QueueEntry, error)
	LockEntry(ctx context.Context, queueID int64) (*models.QueueEntry, error)
	UpdateEntry(ctx context.Context, e *models.QueueEntry) error
	SetNowServing(ctx context.Context, deptID int64, ticketNo int, at time.Time) error
	StaleServing(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error)

	LatestActiveForUser(ctx context.Context, userID int64, day string) (*models.QueueEntry, error)
	ProgressTicket(ctx context.Context, deptID int64, day string) (int, error)
	CountWaitingAhead(ctx context.Context, deptID int64, day string, ticketNo int) (int, error)
	DepartmentStatuses(ctx context.Context, day string) ([]models.DepartmentStatus, error)
	NowServingPointer(ctx context.Context, deptID int64) (int, error)
	NextInLine(ctx context.Context, deptID int64, day string, limit int, now time.Time) ([]models.WaitingCustomer, error)
	CurrentlyServing(ctx context.Context, deptID int64, day string) ([]models.ServingCustomer, error)

	DepartmentName(ctx context.Context, deptID int64) string
	LogActivity(ctx context.Context, a models.Activity) error
}

// MySQLStore backs Store with the repository package.
type MySQLStore struct {
	db          *sql.DB
	queues      *repository.QueueRepository
	departments *repository.DepartmentRepository
	activity    *repository.ActivityRepository
	inTx        bool
}

func NewMySQLStore(db *sql.DB) *MySQLStore {
	return bind(db, db, false)
}

func bind(db *sql.DB, q repository.DBTX, inTx bool) *MySQLStore {
	return &MySQLStore{
		db:          db,
		queues:      repository.NewQueueRepository(q),
		departments: repository.NewDepartmentRepository(q),
		activity:    repository.NewActivityRepository(q),
		inTx:        inTx,
	}
}

func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return repository.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		return fn(bind(s.db, tx, true))
	})
}

func (s *MySQLStore) LockDepartment(ctx context.Context, deptID int64) (*models.Department, error) {
	return s.departments.Lock(ctx, deptID)
}

func (s *MySQLStore) HasActiveEntry(ctx context.Context, userID, deptID int64, day string) (bool, error) {
	return s.queues.HasActiveEntry(ctx, userID, deptID, day)
}

func (s *MySQLStore) CountIssued(ctx context.Context, deptID int64, day string) (int, error) {
	return s.queues.CountIssued(ctx, deptID, day)
}

func (s *MySQLStore) MaxTicketNo(ctx context.Context, deptID int64, day string) (int, error) {
	return s.queues.MaxTicketNo(ctx, deptID, day)
}

func (s *MySQLStore) InsertEntry(ctx context.Context, e *models.QueueEntry) (int64, error) {
	return s.queues.Insert(ctx, e)
}

func (s *MySQLStore) NextWaiting(ctx context.Context, deptID int64, day string) (*models.QueueEntry, error) {
	return s.queues.NextWaiting(ctx, deptID, day)
}

func (s *MySQLStore) LockEntry(ctx context.Context, queueID int64) (*models.QueueEntry, error) {
	return s.queues.Lock(ctx, queueID)
}

func (s *MySQLStore) UpdateEntry(ctx context.Context, e *models.QueueEntry) error {
	return s.queues.Update(ctx, e)
}

func (s *MySQLStore) SetNowServing(ctx context.Context, deptID int64, ticketNo int, at time.Time) error {
	return s.queues.SetNowServing(ctx, deptID, ticketNo, at)
}

func (s *MySQLStore) StaleServing(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	return s.queues.StaleServing(ctx, cutoff)
}

func (s *MySQLStore) LatestActiveForUser(ctx context.Context, userID int64, day string) (*models.QueueEntry, error) {
	return s.queues.LatestActiveForUser(ctx, userID, day)
}

func (s *MySQLStore) ProgressTicket(ctx context.Context, deptID int64, day string) (int, error) {
	return s.queues.ProgressTicket(ctx, deptID, day)
}

func (s *MySQLStore) CountWaitingAhead(ctx context.Context, deptID int64, day string, ticketNo int) (int, error) {
	return s.queues.CountWaitingAhead(ctx, deptID, day, ticketNo)
}

func (s *MySQLStore) DepartmentStatuses(ctx context.Context, day string) ([]models.DepartmentStatus, error) {
	return s.queues.DepartmentStatuses(ctx, day)
}

func (s *MySQLStore) NowServingPointer(ctx context.Context, deptID int64) (int, error) {
	return s.queues.NowServingPointer(ctx, deptID)
}

func (s *MySQLStore) NextInLine(ctx context.Context, deptID int64, day string, limit int, now time.Time) ([]models.WaitingCustomer, error) {
	return s.queues.NextInLine(ctx, deptID, day, limit, now)
}

func (s *MySQLStore) CurrentlyServing(ctx context.Context, deptID int64, day string) ([]models.ServingCustomer, error) {
	return s.queues.CurrentlyServing(ctx, deptID, day)
}

// DepartmentName is used for activity descriptions only; lookup failures fall back to the id.
func (s *MySQLStore) DepartmentName(ctx context.Context, deptID int64) string {
	d, err := s.departments.GetByID(ctx, deptID)
	if err != nil {
		return departmentFallbackName(deptID)
	}
	return d.Name
}

func (s *MySQLStore) LogActivity(ctx context.Context, a models.Activity) error {
	return s.activity.Log(ctx, a)
}
