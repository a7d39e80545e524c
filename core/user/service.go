package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core"
)

var (
	// errors
	ErrNotFound       = errors.New("user not found")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrNoEmail        = errors.New("user has no email address")
)

type (
	Repository interface {
		// CreateUser inserts the user along with its default Profile.
		CreateUser(ctx context.Context, schema core.Schema, usr User) (User, error)
		GetUser(ctx context.Context, schema core.Schema, id int64) (User, error)
		GetUserByUsername(ctx context.Context, schema core.Schema, username string) (User, error)
		QueryUsers(ctx context.Context, schema core.Schema, filter *QueryFilter, ordering ...core.DBOrdering) ([]User, error)
		GetProfile(ctx context.Context, schema core.Schema, userID int64) (Profile, error)
		UpdateProfile(ctx context.Context, schema core.Schema, p Profile) (Profile, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

func (svc *Service) Create(ctx context.Context, schema core.Schema, nu NewUser) (User, error) {
	if err := nu.Validate(svc.validate); err != nil {
		return User{}, err
	}
	if _, err := svc.repo.GetUserByUsername(ctx, schema, nu.Username); err == nil {
		return User{}, core.NewFieldValidationError("username", ErrUsernameExists)
	} else if errors.Cause(err) != ErrNotFound {
		return User{}, errors.Wrap(err, "checking username uniqueness")
	}

	usr := User{
		Username:  nu.Username,
		Email:     nu.Email,
		Name:      nu.Name,
		IsStaff:   nu.IsStaff,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	}
	return svc.repo.CreateUser(ctx, schema, usr)
}

func (svc *Service) GetByID(ctx context.Context, schema core.Schema, id int64) (User, error) {
	return svc.repo.GetUser(ctx, schema, id)
}

func (svc *Service) Filter(ctx context.Context, schema core.Schema, filter QueryFilter, ordering ...core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, schema, &filter, ordering...)
}

func (svc *Service) GetProfile(ctx context.Context, schema core.Schema, userID int64) (Profile, error) {
	return svc.repo.GetProfile(ctx, schema, userID)
}

// SetNotificationsByEmail turns the user's digest emails on or off.
func (svc *Service) SetNotificationsByEmail(ctx context.Context, schema core.Schema, userID int64, up UpdateProfile) (Profile, error) {
	if err := svc.validate.Struct(up); err != nil {
		return Profile{}, err
	}
	p, err := svc.repo.GetProfile(ctx, schema, userID)
	if err != nil {
		return Profile{}, err
	}
	p.GetNotificationsByEmail = *up.GetNotificationsByEmail
	return svc.repo.UpdateProfile(ctx, schema, p)
}
