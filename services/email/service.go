package emailsvc

import (
	"log"

	"github.com/trezcool/weeklog/core"
)

// Mail backends
const (
	BackendConsole  = "console"
	BackendSMTP     = "smtp"
	BackendSendgrid = "sendgrid"
)

// NewService returns the EmailService of the configured backend. Unknown backends fall back to the console.
func NewService(conf *core.Config, std *log.Logger) core.EmailService {
	switch conf.Mail.Backend {
	case BackendSMTP:
		return NewSMTPService(conf)
	case BackendSendgrid:
		return NewSendgridService(conf)
	default:
		return NewConsoleService(conf, std)
	}
}
