package digcontainer

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/weeklog/apps/api/echo"
	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
	emailsvc "github.com/trezcool/weeklog/services/email"
	logsvc "github.com/trezcool/weeklog/services/logger"
	"github.com/trezcool/weeklog/storage"
)

// DBLoggerParam is the logger dedicated to storage.
type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) (core.Logger, *logsvc.RollbarLogger) {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	return logger, logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	return logsvc.NewRollbarLogger(stdLogger, conf)
}

func newStore(conf *core.Config, loggerParam DBLoggerParam) (*storage.Store, user.Repository, progress.Repository) {
	s, err := storage.Open(context.Background(), conf)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up %s database: %v", conf.Database.Engine, err), err)
	}
	return s, s.Users, s.Logs
}

func newEmailService(conf *core.Config) core.EmailService {
	return emailsvc.NewService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags))
}

func newValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

type serverParams struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	UserSvc    user.Service
	LogSvc     progress.Service
	MailSvc    core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Options{
		Conf:       p.Conf,
		Logger:     p.Logger,
		UserSvc:    p.UserSvc,
		LogSvc:     p.LogSvc,
		MailSvc:    p.MailSvc,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container. newConfig defaults to core.NewConfig.
func New(newConfig ...func() *core.Config) *dig.Container {
	c := dig.New()

	confFunc := core.NewConfig
	if len(newConfig) > 0 {
		confFunc = newConfig[0]
	}

	must(c.Provide(confFunc))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newStore))
	must(c.Provide(newEmailService))
	must(c.Provide(newValidator))
	must(c.Provide(user.NewService))
	must(c.Provide(progress.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
