package bans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dormship-backend/internal/authz"
	"github.com/angelmondragon/dormship-backend/internal/users"
	"github.com/angelmondragon/dormship-backend/pkg/db/models"
	"github.com/angelmondragon/dormship-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/dormship-backend/pkg/errors"
	"github.com/angelmondragon/dormship-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// FaultRecorder is the slice of the engine the order lifecycle depends on.
type FaultRecorder interface {
	RecordFault(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) (Outcome, error)
}

// Outcome reports the state of a student's counter after a fault.
type Outcome struct {
	StudentID   uuid.UUID
	Dormitory   string
	NumberFault int
	Threshold   int
	Banned      bool
}

// UnbanInput carries an administrator's unban request.
type UnbanInput struct {
	StudentID  uuid.UUID
	ActorRole  enums.UserRole
	Reactivate bool
}

// StudentStanding is returned after an unban.
type StudentStanding struct {
	StudentID   uuid.UUID           `json:"studentId"`
	NumberFault int                 `json:"numberFault"`
	Status      enums.AccountStatus `json:"status"`
}

// RegulationInput replaces a dormitory's regulation.
type RegulationInput struct {
	ActorRole    enums.UserRole
	Dormitory    string
	BanThreshold int
	TimeSlots    []string
}

type ServiceParams struct {
	Repo             *Repository
	Users            *users.Repository
	Tx               txRunner
	DefaultThreshold int
	Logger           *logger.Logger
}

// Service is the ban policy engine.
type Service struct {
	repo             *Repository
	users            *users.Repository
	tx               txRunner
	defaultThreshold int
	logg             *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("bans repository required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.DefaultThreshold <= 0 {
		return nil, fmt.Errorf("default ban threshold must be positive")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:             params.Repo,
		users:            params.Users,
		tx:               params.Tx,
		defaultThreshold: params.DefaultThreshold,
		logg:             logg,
	}, nil
}

// RecordFault increments the student's fault counter inside tx and bans the
// account once the counter reaches the dormitory threshold. The counter never
// exceeds the threshold.
func (s *Service) RecordFault(ctx context.Context, tx *gorm.DB, studentID uuid.UUID) (Outcome, error) {
	if tx == nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if studentID == uuid.Nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}

	repo := s.repo.WithTx(tx)
	student, err := repo.LockStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Outcome{}, pkgerrors.New(pkgerrors.CodeNotFound, "student not found")
		}
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock student")
	}

	threshold, err := s.threshold(ctx, repo, student.Dormitory)
	if err != nil {
		return Outcome{}, err
	}

	count := student.NumberFault + 1
	if count > threshold {
		count = threshold
	}
	if err := repo.UpdateFaults(ctx, studentID, count); err != nil {
		return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fault counter")
	}

	out := Outcome{
		StudentID:   studentID,
		Dormitory:   student.Dormitory,
		NumberFault: count,
		Threshold:   threshold,
	}
	if count == threshold {
		if err := s.users.WithTx(tx).UpdateStatus(ctx, studentID, enums.AccountStatusBanned); err != nil {
			return Outcome{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ban student")
		}
		out.Banned = true
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"student_id": studentID.String(),
			"dormitory":  student.Dormitory,
			"threshold":  threshold,
		}), "ban.student_banned")
	}
	return out, nil
}

// Unban lowers the counter by one, floored at zero. The account is only set
// back to ACTIVE when Reactivate is requested.
func (s *Service) Unban(ctx context.Context, input UnbanInput) (*StudentStanding, error) {
	if err := authz.Check(authz.OpUnbanStudent, input.ActorRole); err != nil {
		return nil, err
	}
	if input.StudentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student id required")
	}

	var standing *StudentStanding
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		userRepo := s.users.WithTx(tx)

		student, err := repo.LockStudent(ctx, input.StudentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "student not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock student")
		}
		count := student.NumberFault - 1
		if count < 0 {
			count = 0
		}
		if err := repo.UpdateFaults(ctx, input.StudentID, count); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update fault counter")
		}

		user, err := userRepo.FindByID(ctx, input.StudentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load student account")
		}
		status := user.Status
		if input.Reactivate && status != enums.AccountStatusActive {
			if err := userRepo.UpdateStatus(ctx, input.StudentID, enums.AccountStatusActive); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reactivate student")
			}
			status = enums.AccountStatusActive
		}
		standing = &StudentStanding{
			StudentID:   input.StudentID,
			NumberFault: count,
			Status:      status,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return standing, nil
}

// UpsertRegulation creates or replaces the regulation for a dormitory.
func (s *Service) UpsertRegulation(ctx context.Context, input RegulationInput) (*models.DormitoryRegulation, error) {
	if err := authz.Check(authz.OpManageRegulation, input.ActorRole); err != nil {
		return nil, err
	}
	dormitory := strings.TrimSpace(input.Dormitory)
	if dormitory == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "dormitory required")
	}
	if input.BanThreshold <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ban threshold must be positive")
	}
	slots, err := normalizeSlots(input.TimeSlots)
	if err != nil {
		return nil, err
	}

	reg := &models.DormitoryRegulation{
		Dormitory:    dormitory,
		BanThreshold: input.BanThreshold,
		TimeSlots:    slots,
	}
	if err := s.repo.UpsertRegulation(ctx, reg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save regulation")
	}
	return reg, nil
}

// GetRegulation returns the regulation for a dormitory.
func (s *Service) GetRegulation(ctx context.Context, role enums.UserRole, dormitory string) (*models.DormitoryRegulation, error) {
	if err := authz.Check(authz.OpManageRegulation, role); err != nil {
		return nil, err
	}
	reg, err := s.repo.FindRegulation(ctx, strings.TrimSpace(dormitory))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load regulation")
	}
	if reg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "regulation not found")
	}
	return reg, nil
}

// AllowsTimeSlot reports whether the dormitory accepts deliveries in slot.
// Dormitories without a regulation accept any slot.
func (s *Service) AllowsTimeSlot(ctx context.Context, dormitory, slot string) (bool, error) {
	reg, err := s.repo.FindRegulation(ctx, dormitory)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load regulation")
	}
	if reg == nil {
		return true, nil
	}
	return reg.AllowsTimeSlot(slot), nil
}

func (s *Service) threshold(ctx context.Context, repo *Repository, dormitory string) (int, error) {
	reg, err := repo.FindRegulation(ctx, dormitory)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load regulation")
	}
	if reg == nil || reg.BanThreshold <= 0 {
		return s.defaultThreshold, nil
	}
	return reg.BanThreshold, nil
}

func normalizeSlots(slots []string) ([]string, error) {
	out := make([]string, 0, len(slots))
	seen := make(map[string]struct{}, len(slots))
	for _, slot := range slots {
		slot = strings.TrimSpace(slot)
		if slot == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "time slot must not be empty")
		}
		if _, dup := seen[slot]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("duplicate time slot %q", slot))
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out, nil
}
