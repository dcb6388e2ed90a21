package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"qlink/internal/apperror"
	"qlink/internal/audit"
	"qlink/internal/models"
	"qlink/internal/repository"
)

var departmentCode = regexp.MustCompile(`^[A-Z0-9_-]{2,10}$`)

var (
	errDeptNameCode   = apperror.Invalid("Name and code are required")
	errDeptCodeFormat = apperror.Invalid("Code must be 2-10 characters (A-Z, 0-9, _ or -)")
	errDeptCodeTaken  = apperror.Invalid("Department code already exists")
	errDeptName       = apperror.Invalid("Name is required")
	errDeptLimit      = apperror.Invalid("Daily limit cannot be negative")
	errDeptNotFound   = apperror.NotFound("Department not found")
)

type DepartmentStore interface {
	List(ctx context.Context, activeOnly bool) ([]models.Department, error)
	GetByID(ctx context.Context, id int64) (*models.Department, error)
	CodeExists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, d *models.Department) (int64, error)
	Update(ctx context.Context, d *models.Department) error
}

type ActivityLogger interface {
	Log(ctx context.Context, a models.Activity) error
}

type DepartmentService struct {
	store    DepartmentStore
	activity ActivityLogger
	notifier Notifier
	log      *slog.Logger
}

func NewDepartmentService(store DepartmentStore, activity ActivityLogger, notifier Notifier, log *slog.Logger) *DepartmentService {
	if log == nil {
		log = slog.Default()
	}
	return &DepartmentService{store: store, activity: activity, notifier: notifier, log: log}
}

func (s *DepartmentService) List(ctx context.Context, activeOnly bool) ([]models.Department, error) {
	depts, err := s.store.List(ctx, activeOnly)
	if err != nil {
		s.log.Error("list departments failed", "error", err)
		return nil, apperror.Internal("", err)
	}
	return depts, nil
}

func (s *DepartmentService) Create(ctx context.Context, adminID int64, req models.CreateDepartmentRequest) (int64, error) {
	name := strings.TrimSpace(req.Name)
	code := strings.ToUpper(strings.TrimSpace(req.Code))

	if name == "" || code == "" {
		return 0, errDeptNameCode
	}
	if !departmentCode.MatchString(code) {
		return 0, errDeptCodeFormat
	}
	if req.DailyLimit < 0 {
		return 0, errDeptLimit
	}

	exists, err := s.store.CodeExists(ctx, code)
	if err != nil {
		s.log.Error("check department code failed", "error", err)
		return 0, apperror.Internal("", err)
	}
	if exists {
		return 0, errDeptCodeTaken
	}

	id, err := s.store.Create(ctx, &models.Department{
		Name:        name,
		Code:        code,
		Description: strings.TrimSpace(req.Description),
		IsActive:    req.IsActive,
		DailyLimit:  req.DailyLimit,
	})
	if repository.IsDuplicateKey(err) {
		return 0, errDeptCodeTaken
	}
	if err != nil {
		s.log.Error("create department failed", "error", err)
		return 0, apperror.Internal("Failed to create department", err)
	}

	s.logActivity(ctx, adminID, models.ActionCreateDept, fmt.Sprintf("Created department %s (%s)", name, code))
	s.changed(id)
	return id, nil
}

func (s *DepartmentService) Update(ctx context.Context, adminID, id int64, req models.UpdateDepartmentRequest) (*models.Department, error) {
	if id <= 0 {
		return nil, errInvalidDepartment
	}

	dept, err := s.store.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errDeptNotFound
	}
	if err != nil {
		s.log.Error("get department failed", "error", err)
		return nil, apperror.Internal("", err)
	}

	if req.Name != nil {
		dept.Name = strings.TrimSpace(*req.Name)
		if dept.Name == "" {
			return nil, errDeptName
		}
	}
	if req.Description != nil {
		dept.Description = strings.TrimSpace(*req.Description)
	}
	if req.IsActive != nil {
		dept.IsActive = *req.IsActive
	}
	if req.DailyLimit != nil {
		if *req.DailyLimit < 0 {
			return nil, errDeptLimit
		}
		dept.DailyLimit = *req.DailyLimit
	}

	if err := s.store.Update(ctx, dept); err != nil {
		s.log.Error("update department failed", "error", err)
		return nil, apperror.Internal("", err)
	}

	s.logActivity(ctx, adminID, models.ActionUpdateDept, fmt.Sprintf("Updated department %s (%s)", dept.Name, dept.Code))
	s.changed(id)
	return dept, nil
}

func (s *DepartmentService) logActivity(ctx context.Context, userID int64, action, description string) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Log(ctx, audit.Entry(ctx, userID, action, description)); err != nil {
		s.log.Warn("activity log failed", "action", action, "error", err)
	}
}

func (s *DepartmentService) changed(id int64) {
	if s.notifier != nil {
		s.notifier.QueueChanged(id)
	}
}
