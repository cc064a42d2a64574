package service

import (
	"context"
	"fmt"

	"imgforge/internal/model"
	"imgforge/internal/repository"

	"github.com/rs/zerolog"
)

type UserService interface {
	// Create registers the caller's profile. An existing profile is returned unchanged.
	Create(ctx context.Context, u *model.User) (*model.User, error)
	Get(ctx context.Context, id string) (*model.User, error)
	// SetTier changes the account tier. Today's quota picks up the new limit on its next read.
	SetTier(ctx context.Context, id string, tier model.Tier) (*model.User, error)
}

type userService struct {
	userRepo repository.UserRepository
	logger   zerolog.Logger
}

func NewUserService(userRepo repository.UserRepository, logger zerolog.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		logger:   logger.With().Str("service", "UserService").Logger(),
	}
}

func (s *userService) Create(ctx context.Context, u *model.User) (*model.User, error) {
	existing, err := s.userRepo.GetUserByID(ctx, u.UserID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if u.Tier == "" {
		u.Tier = model.TierFree
	}
	if err := s.userRepo.CreateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", u.UserID).Str("tier", string(u.Tier)).Msg("User created")
	return u, nil
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	u, err := s.userRepo.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *userService) SetTier(ctx context.Context, id string, tier model.Tier) (*model.User, error) {
	if !tier.Valid() {
		return nil, &ValidationError{Field: "tier", Message: fmt.Sprintf("unknown tier %q", tier)}
	}
	u, err := s.userRepo.UpdateTier(ctx, id, tier)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	s.logger.Info().Str("user_id", id).Str("tier", string(tier)).Msg("User tier changed")
	return u, nil
}
