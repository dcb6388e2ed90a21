package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"qlink/internal/models"
	"qlink/internal/repository"
)

type fakeState struct {
	depts      map[int64]models.Department
	entries    map[int64]models.QueueEntry
	nowServing map[int64]int
	users      map[int64]string
	activity   []models.Activity
	nextID     int64
}

func (st *fakeState) clone() *fakeState {
	c := &fakeState{
		depts:      map[int64]models.Department{},
		entries:    map[int64]models.QueueEntry{},
		nowServing: map[int64]int{},
		users:      st.users,
		activity:   append([]models.Activity(nil), st.activity...),
		nextID:     st.nextID,
	}
	for k, v := range st.depts {
		c.depts[k] = v
	}
	for k, v := range st.entries {
		c.entries[k] = v
	}
	for k, v := range st.nowServing {
		c.nowServing[k] = v
	}
	return c
}

// fakeStore is an in-memory Store. WithTx works on a copy of the state and swaps it in
// on success, so a failing closure leaves nothing behind. Transactions are serialized.
type fakeStore struct {
	mu    *sync.Mutex
	root  *fakeStore
	state *fakeState
	inTx  bool

	// duplicateOnInsert makes the next n inserts fail with a MySQL 1062 error.
	duplicateOnInsert int
	failUpdate        error
	txCount           int
}

func newFakeStore() *fakeStore {
	s := &fakeStore{
		mu: &sync.Mutex{},
		state: &fakeState{
			depts:      map[int64]models.Department{},
			entries:    map[int64]models.QueueEntry{},
			nowServing: map[int64]int{},
			users:      map[int64]string{},
		},
	}
	s.root = s
	return s
}

func (s *fakeStore) addDept(d models.Department) {
	s.state.depts[d.ID] = d
}

func (s *fakeStore) addUser(id int64, name string) {
	s.state.users[id] = name
}

func (s *fakeStore) entry(id int64) models.QueueEntry {
	return s.root.state.entries[id]
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txCount++
	tx := &fakeStore{mu: s.mu, root: s, state: s.state.clone(), inTx: true}
	if err := fn(tx); err != nil {
		return err
	}
	s.state = tx.state
	return nil
}

func (s *fakeStore) LockDepartment(ctx context.Context, deptID int64) (*models.Department, error) {
	d, ok := s.state.depts[deptID]
	if !ok {
		return nil, fmt.Errorf("lock department: %w", repository.ErrNotFound)
	}
	return &d, nil
}

func (s *fakeStore) HasActiveEntry(ctx context.Context, userID, deptID int64, day string) (bool, error) {
	for _, e := range s.state.entries {
		if e.UserID == userID && e.DeptID == deptID && e.QueueDate == day && e.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) CountIssued(ctx context.Context, deptID int64, day string) (int, error) {
	n := 0
	for _, e := range s.state.entries {
		if e.DeptID == deptID && e.QueueDate == day && e.Status != models.StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) MaxTicketNo(ctx context.Context, deptID int64, day string) (int, error) {
	max := 0
	for _, e := range s.state.entries {
		if e.DeptID == deptID && e.QueueDate == day && e.TicketNo > max {
			max = e.TicketNo
		}
	}
	return max, nil
}

func (s *fakeStore) InsertEntry(ctx context.Context, e *models.QueueEntry) (int64, error) {
	if s.root.duplicateOnInsert > 0 {
		s.root.duplicateOnInsert--
		return 0, fmt.Errorf("insert queue entry: %w", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	}
	for _, other := range s.state.entries {
		if other.DeptID == e.DeptID && other.QueueDate == e.QueueDate && other.TicketNo == e.TicketNo {
			return 0, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}
		}
	}
	s.state.nextID++
	e.ID = s.state.nextID
	s.state.entries[e.ID] = *e
	return e.ID, nil
}

func (s *fakeStore) sortedEntries(match func(models.QueueEntry) bool) []models.QueueEntry {
	out := []models.QueueEntry{}
	for _, e := range s.state.entries {
		if match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TicketNo < out[j].TicketNo })
	return out
}

func (s *fakeStore) NextWaiting(ctx context.Context, deptID int64, day string) (*models.QueueEntry, error) {
	waiting := s.sortedEntries(func(e models.QueueEntry) bool {
		return e.DeptID == deptID && e.QueueDate == day && e.Status == models.StatusWaiting
	})
	if len(waiting) == 0 {
		return nil, fmt.Errorf("next waiting: %w", repository.ErrNotFound)
	}
	e := waiting[0]
	return &e, nil
}

func (s *fakeStore) LockEntry(ctx context.Context, queueID int64) (*models.QueueEntry, error) {
	e, ok := s.state.entries[queueID]
	if !ok {
		return nil, fmt.Errorf("lock queue entry: %w", repository.ErrNotFound)
	}
	return &e, nil
}

func (s *fakeStore) UpdateEntry(ctx context.Context, e *models.QueueEntry) error {
	if s.root.failUpdate != nil {
		return s.root.failUpdate
	}
	if _, ok := s.state.entries[e.ID]; !ok {
		return errors.New("update of unknown entry")
	}
	s.state.entries[e.ID] = *e
	return nil
}

func (s *fakeStore) SetNowServing(ctx context.Context, deptID int64, ticketNo int, at time.Time) error {
	s.state.nowServing[deptID] = ticketNo
	return nil
}

func (s *fakeStore) StaleServing(ctx context.Context, cutoff time.Time) ([]models.QueueEntry, error) {
	return s.sortedEntries(func(e models.QueueEntry) bool {
		return e.Status == models.StatusServing && e.StartedAt != nil && e.StartedAt.Before(cutoff)
	}), nil
}

func (s *fakeStore) LatestActiveForUser(ctx context.Context, userID int64, day string) (*models.QueueEntry, error) {
	var latest *models.QueueEntry
	for _, e := range s.state.entries {
		if e.UserID != userID || e.QueueDate != day || !e.Status.Active() {
			continue
		}
		if latest == nil || e.ID > latest.ID {
			e := e
			latest = &e
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("latest active entry: %w", repository.ErrNotFound)
	}
	return latest, nil
}

func (s *fakeStore) ProgressTicket(ctx context.Context, deptID int64, day string) (int, error) {
	max := 0
	for _, e := range s.state.entries {
		if e.DeptID == deptID && e.QueueDate == day &&
			(e.Status == models.StatusServing || e.Status == models.StatusDone) && e.TicketNo > max {
			max = e.TicketNo
		}
	}
	return max, nil
}

func (s *fakeStore) CountWaitingAhead(ctx context.Context, deptID int64, day string, ticketNo int) (int, error) {
	return len(s.sortedEntries(func(e models.QueueEntry) bool {
		return e.DeptID == deptID && e.QueueDate == day && e.Status == models.StatusWaiting && e.TicketNo < ticketNo
	})), nil
}

func (s *fakeStore) DepartmentStatuses(ctx context.Context, day string) ([]models.DepartmentStatus, error) {
	out := []models.DepartmentStatus{}
	for _, d := range s.state.depts {
		waiting, _ := s.CountWaitingAhead(ctx, d.ID, day, int(^uint(0)>>1))
		out = append(out, models.DepartmentStatus{
			DeptID:       d.ID,
			Name:         d.Name,
			IsActive:     d.IsActive,
			NowServing:   s.state.nowServing[d.ID],
			WaitingCount: waiting,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *fakeStore) NowServingPointer(ctx context.Context, deptID int64) (int, error) {
	return s.state.nowServing[deptID], nil
}

func (s *fakeStore) NextInLine(ctx context.Context, deptID int64, day string, limit int, now time.Time) ([]models.WaitingCustomer, error) {
	waiting := s.sortedEntries(func(e models.QueueEntry) bool {
		return e.DeptID == deptID && e.QueueDate == day && e.Status == models.StatusWaiting
	})
	out := []models.WaitingCustomer{}
	for i, e := range waiting {
		if i == limit {
			break
		}
		out = append(out, models.WaitingCustomer{
			QueueID:      e.ID,
			TicketNo:     e.TicketNo,
			CustomerName: s.state.users[e.UserID],
			WaitTime:     int(now.Sub(e.CreatedAt).Minutes()),
		})
	}
	return out, nil
}

func (s *fakeStore) CurrentlyServing(ctx context.Context, deptID int64, day string) ([]models.ServingCustomer, error) {
	serving := s.sortedEntries(func(e models.QueueEntry) bool {
		return e.DeptID == deptID && e.QueueDate == day && e.Status == models.StatusServing
	})
	out := []models.ServingCustomer{}
	for _, e := range serving {
		out = append(out, models.ServingCustomer{QueueID: e.ID, TicketNo: e.TicketNo, CustomerName: s.state.users[e.UserID]})
	}
	return out, nil
}

func (s *fakeStore) DepartmentName(ctx context.Context, deptID int64) string {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if d, ok := s.state.depts[deptID]; ok {
		return d.Name
	}
	return departmentFallbackName(deptID)
}

func (s *fakeStore) LogActivity(ctx context.Context, a models.Activity) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	s.state.activity = append(s.state.activity, a)
	return nil
}
