package services

import (
	"context"
	"fmt"

	"ecocycle/internal/domain"
	"ecocycle/internal/geo"
	"ecocycle/internal/repos"
)

type AccountService struct {
	Users *repos.UserRepo
}

func NewAccountService(users *repos.UserRepo) *AccountService {
	return &AccountService{Users: users}
}

func (s *AccountService) Me(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.Users.ByID(ctx, id)
	if err != nil {
		return nil, lookup(err, "user", id)
	}
	return u, nil
}

// SetLocation registers where the user is; collectors need one before they
// can browse nearby pickups.
func (s *AccountService) SetLocation(ctx context.Context, id string, lat, lng float64) (*domain.User, error) {
	if err := (geo.Point{Lat: lat, Lng: lng}).Validate(); err != nil {
		return nil, err
	}
	if err := s.Users.SetLocation(ctx, id, lat, lng); err != nil {
		return nil, fmt.Errorf("set location: %w", err)
	}
	return s.Me(ctx, id)
}
