package user

import (
	"net/mail"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/bytedeck/deck/core"
)

type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Email     string    `json:"email" db:"email"`
	Name      string    `json:"name" db:"name"`
	IsStaff   bool      `json:"is_staff" db:"is_staff"` // staff approve quest submissions
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"` // UTC
}

// DisplayName is the name used to greet the user.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}

// MailAddress returns the user's parsed email address.
func (u User) MailAddress() (mail.Address, error) {
	email := core.CleanString(u.Email)
	if email == "" {
		return mail.Address{}, ErrNoEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return mail.Address{}, err
	}
	addr.Name = u.Name
	return *addr, nil
}

// Profile holds the user's personal settings.
type Profile struct {
	UserID                  int64 `json:"user_id" db:"user_id"`
	GetNotificationsByEmail bool  `json:"get_notifications_by_email" db:"get_notifications_by_email"`
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Username string `json:"username" validate:"required,min=3,max=150,alphanum_"`
	Email    string `json:"email" validate:"omitempty,email"`
	Name     string `json:"name" validate:"max=150"`
	IsStaff  bool   `json:"is_staff"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Name = core.CleanString(nu.Name)
	return validate.Struct(nu)
}

// UpdateProfile defines what information may be provided to modify a Profile.
type UpdateProfile struct {
	GetNotificationsByEmail *bool `json:"get_notifications_by_email" validate:"required"`
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	IDs                     []int64
	IsActive                *bool
	IsStaff                 *bool
	GetNotificationsByEmail *bool
	// HasUnreadNotifications keeps users with at least one unread notification.
	HasUnreadNotifications bool
}
