package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/tenant"
)

type tenantApi struct {
	svc      *tenant.Service
	schedule *schedule.Service
}

func registerTenantAPI(g *echo.Group, jwt echo.MiddlewareFunc, opts *Options) {
	api := tenantApi{svc: opts.Tenants, schedule: opts.Schedule}

	tg := g.Group("/tenants", jwt, operatorMiddleware())
	tg.GET("", api.query)
	tg.POST("", api.create)
	tg.POST("/tasks", api.registerTasks)

	// detail endpoints
	dg := tg.Group("/:id", tenantMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.GET("/tasks", api.queryTasks)

	registerDigestAPI(dg, opts)
	registerUserAPI(dg, opts)
}

// Handlers

func (api *tenantApi) query(ctx echo.Context) error {
	tenants, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "listing tenants")
	}
	return ctx.JSON(http.StatusOK, tenants)
}

func (api *tenantApi) create(ctx echo.Context) error {
	var data tenant.NewTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTenant")
	}

	t, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating tenant")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *tenantApi) retrieve(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) update(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	var data tenant.UpdateTenant
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateTenant")
	}

	t, err = api.svc.Update(ctx.Request().Context(), t.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating tenant")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *tenantApi) queryTasks(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	tasks, err := api.schedule.List(ctx.Request().Context(), schedule.QueryFilter{TenantSchema: t.SchemaName})
	if err != nil {
		return errors.Wrap(err, "listing periodic tasks")
	}
	if tasks == nil {
		tasks = []schedule.PeriodicTask{}
	}
	return ctx.JSON(http.StatusOK, tasks)
}

func (api *tenantApi) registerTasks(ctx echo.Context) error {
	created, err := api.svc.RegisterTasks(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "registering periodic tasks")
	}
	return ctx.JSON(http.StatusOK, RegisterTasksResponse{Created: created})
}

type RegisterTasksResponse struct {
	Created int `json:"created"`
}
