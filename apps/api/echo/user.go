package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/user"
)

var userOrderingFields = []string{"id", "username", "created_at"}

type userApi struct {
	svc           *user.Service
	notifications *notification.Service
}

func registerUserAPI(g *echo.Group, opts *Options) {
	api := userApi{svc: opts.Users, notifications: opts.Notifications}

	ug := g.Group("/users")
	ug.GET("", api.query)
	ug.POST("", api.create)
	ug.GET("/:user_id/profile", api.retrieveProfile)
	ug.PUT("/:user_id/profile", api.updateProfile)
	ug.GET("/:user_id/notifications", api.queryUnread)
	ug.POST("/:user_id/notifications", api.notify)
	ug.POST("/:user_id/notifications/read", api.markRead)
}

// Handlers

func (api *userApi) query(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	var filter UserQuery
	filter.Bind(ctx)
	ordering := new(Ordering)
	ordering.Bind(ctx, userOrderingFields...)

	users, err := api.svc.Filter(ctx.Request().Context(), t.SchemaName, filter.QueryFilter(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) create(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}

	usr, err := api.svc.Create(ctx.Request().Context(), t.SchemaName, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) retrieveProfile(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}

	p, err := api.svc.GetProfile(ctx.Request().Context(), t.SchemaName, userID)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

// updateProfile turns the user's digest emails on or off.
func (api *userApi) updateProfile(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}

	var data user.UpdateProfile
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateProfile")
	}

	p, err := api.svc.SetNotificationsByEmail(ctx.Request().Context(), t.SchemaName, userID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *userApi) queryUnread(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}

	notifications, err := api.notifications.Unread(ctx.Request().Context(), t.SchemaName, userID)
	if err != nil {
		return errors.Wrap(err, "querying unread notifications")
	}
	if notifications == nil {
		notifications = []notification.Notification{}
	}
	return ctx.JSON(http.StatusOK, notifications)
}

func (api *userApi) notify(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}
	if _, err := api.svc.GetByID(ctx.Request().Context(), t.SchemaName, userID); err != nil {
		return errors.Wrap(err, "finding recipient")
	}

	var data notification.NewNotification
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewNotification")
	}
	data.RecipientID = userID

	n, err := api.notifications.Create(ctx.Request().Context(), t.SchemaName, data)
	if err != nil {
		return errors.Wrap(err, "creating notification")
	}
	return ctx.JSON(http.StatusCreated, n)
}

// markRead marks the listed notifications of the user read, or all of them when none is listed.
func (api *userApi) markRead(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}

	var data MarkReadRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to MarkReadRequest")
	}

	n, err := api.notifications.MarkRead(ctx.Request().Context(), t.SchemaName, userID, data.IDs...)
	if err != nil {
		return errors.Wrap(err, "marking notifications read")
	}
	return ctx.JSON(http.StatusOK, MarkReadResponse{Updated: n})
}

type (
	UserQuery struct {
		IsActive *bool
		IsStaff  *bool
		// DigestOn keeps users with digest emails turned on.
		DigestOn *bool
	}

	MarkReadRequest struct {
		IDs []int64 `json:"ids"`
	}

	MarkReadResponse struct {
		Updated int `json:"updated"`
	}
)

// Bind reads ?is_active=, ?is_staff= and ?digest=; unparsable values are ignored.
func (q *UserQuery) Bind(ctx echo.Context) {
	q.IsActive = queryBool(ctx, "is_active")
	q.IsStaff = queryBool(ctx, "is_staff")
	q.DigestOn = queryBool(ctx, "digest")
}

func (q UserQuery) QueryFilter() user.QueryFilter {
	return user.QueryFilter{
		IsActive:                q.IsActive,
		IsStaff:                 q.IsStaff,
		GetNotificationsByEmail: q.DigestOn,
	}
}
