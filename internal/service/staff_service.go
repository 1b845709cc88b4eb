package service

import (
	"context"

	"studiodesk/internal/domain"
	"studiodesk/internal/models"

	"github.com/rs/zerolog"
)

type StaffService struct {
	repo   domain.StaffRepository
	logger *zerolog.Logger
}

func NewStaffService(repo domain.StaffRepository, logger *zerolog.Logger) *StaffService {
	return &StaffService{repo: repo, logger: logger}
}

// SyncFromConfig upserts the configured staff roster.
func (s *StaffService) SyncFromConfig(ctx context.Context, staff []*models.Staff) error {
	for _, member := range staff {
		if err := s.repo.UpsertStaff(ctx, member); err != nil {
			return err
		}
	}
	s.logger.Info().Int("staff", len(staff)).Msg("staff roster synced")
	return nil
}

func (s *StaffService) IsAdmin(ctx context.Context, id string) bool {
	member, err := s.repo.GetStaff(ctx, id)
	if err != nil {
		return false
	}
	return member.IsAdmin()
}

func (s *StaffService) GetAdmins(ctx context.Context) ([]*models.Staff, error) {
	return s.repo.GetStaffByRole(ctx, models.RoleAdmin)
}

func (s *StaffService) GetStaff(ctx context.Context, id string) (*models.Staff, error) {
	return s.repo.GetStaff(ctx, id)
}
