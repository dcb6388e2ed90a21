// Package report builds the admin dashboard and visitor reports.
package report

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"qlink/internal/apperror"
	"qlink/internal/models"
)

const (
	dayLayout       = "2006-01-02"
	trendDays       = 7
	topDepartments  = 5
	recentActivity  = 20
	maxReportDays   = 92
	queueActionLike = "queue_"
)

var (
	ErrDateRequired = apperror.Invalid("start_date and end_date are required")
	ErrDateFormat   = apperror.Invalid("Invalid date format. Use YYYY-MM-DD")
	ErrDateOrder    = apperror.Invalid("end_date must be on or after start_date")
	ErrDateSpan     = apperror.Invalid("Date range cannot exceed 92 days")
)

type StatsStore interface {
	Admin(ctx context.Context, day string) (models.AdminStats, error)
	Overview(ctx context.Context, day string) (models.AnalyticsOverview, error)
	TopDepartments(ctx context.Context, day string, limit int) ([]models.DepartmentCount, error)
	DailyCounts(ctx context.Context, from, to string) ([]models.DailyCount, error)
	DepartmentDailyCounts(ctx context.Context, from, to string) ([]models.DepartmentDayCount, error)
}

type ActivityStore interface {
	Recent(ctx context.Context, prefix string, limit int) ([]models.Activity, error)
}

type UserStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	ListStaff(ctx context.Context) ([]models.User, error)
}

type DepartmentStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Department, error)
}

type Options struct {
	Now      func() time.Time
	Location *time.Location
	Logger   *slog.Logger
}

type Service struct {
	stats    StatsStore
	activity ActivityStore
	users    UserStore
	depts    DepartmentStore
	now      func() time.Time
	loc      *time.Location
	log      *slog.Logger
}

func NewService(stats StatsStore, activity ActivityStore, users UserStore, depts DepartmentStore, opts Options) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		stats:    stats,
		activity: activity,
		users:    users,
		depts:    depts,
		now:      opts.Now,
		loc:      opts.Location,
		log:      opts.Logger,
	}
}

func (s *Service) today() time.Time {
	now := s.now().In(s.loc)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
}

func (s *Service) internal(op string, err error) error {
	s.log.Error(op+" failed", "error", err)
	return apperror.Internal("", err)
}

func (s *Service) AdminStats(ctx context.Context) (models.AdminStats, error) {
	stats, err := s.stats.Admin(ctx, s.today().Format(dayLayout))
	if err != nil {
		return models.AdminStats{}, s.internal("admin stats", err)
	}
	return stats, nil
}

// Overview returns today's counters, the busiest departments and a zero-filled 7 day trend.
func (s *Service) Overview(ctx context.Context) (models.AnalyticsOverview, error) {
	today := s.today()
	day := today.Format(dayLayout)

	o, err := s.stats.Overview(ctx, day)
	if err != nil {
		return o, s.internal("analytics overview", err)
	}

	if o.TopDepartments, err = s.stats.TopDepartments(ctx, day, topDepartments); err != nil {
		return o, s.internal("top departments", err)
	}

	from := today.AddDate(0, 0, -(trendDays - 1))
	counts, err := s.stats.DailyCounts(ctx, from.Format(dayLayout), day)
	if err != nil {
		return o, s.internal("queue trend", err)
	}
	o.QueueTrends = Trend(from, trendDays, counts)
	return o, nil
}

// Trend lays counts over days consecutive days starting at from. Missing days are zero.
func Trend(from time.Time, days int, counts []models.DailyCount) models.QueueTrend {
	byDay := make(map[string]int, len(counts))
	for _, c := range counts {
		byDay[c.Date] = c.Count
	}

	t := models.QueueTrend{Labels: make([]string, 0, days), Counts: make([]int, 0, days)}
	for i := 0; i < days; i++ {
		d := from.AddDate(0, 0, i)
		t.Labels = append(t.Labels, d.Format("Jan 2"))
		t.Counts = append(t.Counts, byDay[d.Format(dayLayout)])
	}
	return t
}

func (s *Service) RecentActivity(ctx context.Context) ([]models.Activity, error) {
	items, err := s.activity.Recent(ctx, queueActionLike, recentActivity)
	if err != nil {
		return nil, s.internal("recent activity", err)
	}
	return items, nil
}

func (s *Service) Staff(ctx context.Context) ([]models.UserResponse, error) {
	users, err := s.users.ListStaff(ctx)
	if err != nil {
		return nil, s.internal("staff list", err)
	}
	return toResponses(users), nil
}

func (s *Service) Users(ctx context.Context, filter models.UserFilter) (models.UserPage, error) {
	filter.Search = strings.TrimSpace(filter.Search)
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return models.UserPage{}, s.internal("user list", err)
	}
	return models.UserPage{Users: toResponses(users), Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func toResponses(users []models.User) []models.UserResponse {
	out := make([]models.UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, models.ToUserResponse(u))
	}
	return out
}

// ParseRange validates a YYYY-MM-DD date range.
func ParseRange(start, end string) (time.Time, time.Time, error) {
	if start == "" || end == "" {
		return time.Time{}, time.Time{}, ErrDateRequired
	}
	from, err1 := time.Parse(dayLayout, start)
	to, err2 := time.Parse(dayLayout, end)
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, ErrDateFormat
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, ErrDateOrder
	}
	if int(to.Sub(from).Hours()/24)+1 > maxReportDays {
		return time.Time{}, time.Time{}, ErrDateSpan
	}
	return from, to, nil
}

// Visitors reports tickets issued per department and day. Every department gets a row,
// including inactive ones and those without tickets.
func (s *Service) Visitors(ctx context.Context, start, end string) (models.VisitorReport, error) {
	from, to, err := ParseRange(start, end)
	if err != nil {
		return models.VisitorReport{}, err
	}

	depts, err := s.depts.List(ctx, false)
	if err != nil {
		return models.VisitorReport{}, s.internal("report departments", err)
	}
	counts, err := s.stats.DepartmentDailyCounts(ctx, start, end)
	if err != nil {
		return models.VisitorReport{}, s.internal("report counts", err)
	}
	return BuildVisitorReport(from, to, depts, counts), nil
}

func BuildVisitorReport(from, to time.Time, depts []models.Department, counts []models.DepartmentDayCount) models.VisitorReport {
	report := models.VisitorReport{
		StartDate: from.Format(dayLayout),
		EndDate:   to.Format(dayLayout),
		Rows:      make([]models.VisitorReportRow, 0, len(depts)),
	}

	index := make(map[string]int)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		key := d.Format(dayLayout)
		index[key] = len(report.Dates)
		report.Dates = append(report.Dates, key)
	}

	rowOf := make(map[int64]int, len(depts))
	for i, d := range depts {
		rowOf[d.ID] = i
		report.Rows = append(report.Rows, models.VisitorReportRow{
			No:         i + 1,
			DeptID:     d.ID,
			Department: d.Name,
			Counts:     make([]int, len(report.Dates)),
		})
	}

	for _, c := range counts {
		r, ok := rowOf[c.DeptID]
		if !ok {
			continue
		}
		col, ok := index[c.Date]
		if !ok {
			continue
		}
		report.Rows[r].Counts[col] += c.Count
		report.Rows[r].Total += c.Count
		report.Total += c.Count
	}
	return report
}
