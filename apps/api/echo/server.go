package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bytedeck/deck/core"
	"github.com/bytedeck/deck/core/digest"
	"github.com/bytedeck/deck/core/notification"
	"github.com/bytedeck/deck/core/schedule"
	"github.com/bytedeck/deck/core/tenant"
	"github.com/bytedeck/deck/core/user"
)

type (
	Options struct {
		Address        string
		DisableReqLogs bool
		Debug          bool
		TestMode       bool
		AppName        string
		SecretKey      string
		JWTExpiration  time.Duration

		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator
		Gatherer   prometheus.Gatherer // served under /metrics; nil disables the endpoint
		// StatusCheck reports whether the backing stores are reachable.
		StatusCheck func(ctx context.Context) error

		Tenants       *tenant.Service
		Users         *user.Service
		Notifications *notification.Service
		Schedule      *schedule.Service
		Digests       *digest.Builder
		Dispatcher    schedule.Dispatcher
		// RootURL returns the absolute URL of a tenant's site from its domain.
		RootURL func(domain string) string
	}

	Server interface {
		http.Handler
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
	}

	server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(opts *Options) Server {
	if opts.Logger == nil {
		opts.Logger = core.NewNopLogger()
	}
	s := &server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *server) setup() {
	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(s.opts.Debug || s.opts.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = s.opts.Debug

	s.app.GET("/", s.home)
	s.app.GET("/healthz", s.health)
	if s.opts.Gatherer != nil {
		s.app.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(s.opts.SecretKey))

	registerTenantAPI(v1, jwt, s.opts)
}

func (s *server) Start() {
	if err := s.app.Start(s.opts.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *server) Errors() <-chan error { return s.errors }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

func (s *server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *server) Close() error {
	return s.app.Close()
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.AppName+" API!")
}

func (s *server) health(ctx echo.Context) error {
	if s.opts.StatusCheck != nil {
		if err := s.opts.StatusCheck(ctx.Request().Context()); err != nil {
			s.opts.Logger.Warn("health check failed", err)
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
