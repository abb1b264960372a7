package echoapi

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		UserSvc        user.Service
		LogSvc         progress.Service
		MailSvc        core.EmailService
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool
		// ReqLogOutput receives the request logs, stdout if nil.
		ReqLogOutput   io.Writer
	}

	Server struct {
		opts     Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

// reqLogFormat logs the path without its query string, which carries verification tokens.
const reqLogFormat = `{"time":"${time_rfc3339_nano}","id":"${id}","remote_ip":"${remote_ip}",` +
	`"host":"${host}","method":"${method}","path":"${path}","user_agent":"${user_agent}",` +
	`"status":${status},"error":"${error}","latency":${latency},"latency_human":"${latency_human}"` +
	`,"bytes_in":${bytes_in},"bytes_out":${bytes_out}}` + "\n"

func NewServer(opts Options) *Server {
	vala.BeginValidation().Validate(
		vala.IsNotNil(opts.Conf, "Conf"),
		vala.IsNotNil(opts.Logger, "Logger"),
		vala.IsNotNil(opts.UserSvc, "UserSvc"),
		vala.IsNotNil(opts.LogSvc, "LogSvc"),
		vala.IsNotNil(opts.MailSvc, "MailSvc"),
		vala.IsNotNil(opts.Validate, "Validate"),
		vala.IsNotNil(opts.Translator, "Translator"),
	).CheckAndPanic()

	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
			Format: reqLogFormat,
			Output: s.opts.ReqLogOutput,
		}))
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	registerVerifyAPI(s.app, conf.AppName, s.opts.LogSvc)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))
	sess := sessionMiddleware(s.opts.UserSvc)

	registerUserAPI(v1, jwt, sess, s.opts)
	registerLogAPI(v1, jwt, sess, s.opts.LogSvc)
	registerMailAPI(v1, jwt, sess, s.opts.MailSvc, s.opts.Validate)
}

// Start listens on the configured address; failures are reported through Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error             { return s.errors }
func (s *Server) ShutdownSignal() <-chan os.Signal { return s.shutdown }

// SignalShutdown asks main to stop the server gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
