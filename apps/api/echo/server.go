package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	glog "github.com/labstack/gommon/log"

	"github.com/kmunyaka/shule/core"
	"github.com/kmunyaka/shule/core/access"
	"github.com/kmunyaka/shule/core/identifier"
	"github.com/kmunyaka/shule/core/student"
)

type (
	// ServerDeps are the dependencies needed to set up the API server.
	ServerDeps struct {
		Conf          *core.Config
		Logger        core.Logger
		IdentifierSvc *identifier.Service
		AccessSvc     *access.Service
		StudentSvc    *student.Service
		Validate      *validator.Validate
		Translator    ut.Translator
	}

	Server interface {
		Start()
		Errors() <-chan error
		ShutdownSignal() <-chan os.Signal
		Shutdown(ctx context.Context) error
		Close() error
		ServeHTTP(w http.ResponseWriter, r *http.Request)
	}

	server struct {
		app      *echo.Echo
		addr     string
		errs     chan error
		shutdown chan os.Signal
	}
)

var _ Server = (*server)(nil)

func NewServer(deps ServerDeps) Server {
	app := echo.New()
	app.Debug = deps.Conf.Debug
	app.HideBanner = true
	if !deps.Conf.Debug {
		app.Logger.SetLevel(glog.WARN)
	}

	srv := &server{
		app:      app,
		addr:     deps.Conf.Server.Host,
		errs:     make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(srv.shutdown, os.Interrupt, syscall.SIGTERM)

	app.HTTPErrorHandler = newAppHTTPErrorHandler(deps.Logger, deps.Translator, srv.signalShutdown)
	app.Use(middleware.Recover())

	jwt := middleware.JWTWithConfig(newJWTConfig(deps.Conf))

	v1 := app.Group("/v1")
	registerIdentifierAPI(v1, jwt, &deps)
	registerAccessAPI(v1, jwt, &deps)
	registerStudentAPI(v1, jwt, &deps)

	return srv
}

func (s *server) Start() {
	s.errs <- s.app.Start(s.addr)
}

func (s *server) Errors() <-chan error { return s.errs }

func (s *server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// signalShutdown is handed to the error handler so an unrecoverable error
// can gracefully stop the server.
func (s *server) signalShutdown() {
	s.shutdown <- syscall.SIGTERM
}

func (s *server) Shutdown(ctx context.Context) error { return s.app.Shutdown(ctx) }

func (s *server) Close() error { return s.app.Close() }

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.app.ServeHTTP(w, r) }
