package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/schedule"
)

type digestApi struct {
	builder    *digest.Builder
	schedule   *schedule.Service
	dispatcher schedule.Dispatcher
	rootURL    func(domain string) string
}

func registerDigestAPI(g *echo.Group, opts *Options) {
	api := digestApi{
		builder:    opts.Digests,
		schedule:   opts.Schedule,
		dispatcher: opts.Dispatcher,
		rootURL:    opts.RootURL,
	}

	dg := g.Group("/digest")
	dg.GET("/recipients", api.recipients)
	dg.GET("/preview/:user_id", api.preview)
	dg.POST("/send", api.send)
}

// Handlers

func (api *digestApi) recipients(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	emails, err := api.builder.RecipientEmails(ctx.Request().Context(), t.SchemaName, api.rootURL(t.DomainURL))
	if err != nil {
		return errors.Wrap(err, "selecting digest recipients")
	}
	if emails == nil {
		emails = []string{}
	}
	return ctx.JSON(http.StatusOK, RecipientsResponse{Emails: emails})
}

// preview renders the digest the user would receive, without sending it nor marking anything read.
func (api *digestApi) preview(ctx echo.Context) error {
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}
	userID, err := paramID(ctx, "user_id")
	if err != nil {
		return err
	}

	email, err := api.builder.BuildFor(ctx.Request().Context(), t.SchemaName, userID, api.rootURL(t.DomainURL))
	if err != nil {
		return errors.Wrap(err, "building digest")
	}
	return ctx.JSON(http.StatusOK, email)
}

// send enqueues a digest batch of the tenant outside of its schedule.
func (api *digestApi) send(ctx echo.Context) error {
	if api.dispatcher == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "job queue unavailable")
	}
	t, err := getContextTenant(ctx)
	if err != nil {
		return errors.Wrap(err, "retrieving object from context")
	}

	task, _, err := api.schedule.RegisterDigestTask(ctx.Request().Context(), t.SchemaName)
	if err != nil {
		return errors.Wrap(err, "registering digest task")
	}
	job := schedule.NewJob(task, time.Now())
	if err := api.dispatcher.Dispatch(ctx.Request().Context(), job); err != nil {
		return errors.Wrap(err, "dispatching digest job")
	}
	return ctx.JSON(http.StatusAccepted, job)
}

type RecipientsResponse struct {
	Emails []string `json:"emails"`
}
