package emailsvc

import (
	"context"
	"crypto/tls"
	"net/mail"
	"time"

	gomail "github.com/go-mail/mail/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
)

const smtpTimeout = 10 * time.Second

type smtpService struct {
	conf       *core.Config
	dialer     *gomail.Dialer
	subjPrefix string
}

var _ core.EmailService = (*smtpService)(nil)

// NewSMTPService returns a service delivering emails through an authenticated SMTP relay using STARTTLS.
func NewSMTPService(conf *core.Config) core.EmailService {
	mc := conf.Mail
	d := gomail.NewDialer(mc.SMTPHost, mc.SMTPPort, mc.SMTPUser, mc.SMTPPassword)
	d.StartTLSPolicy = gomail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         mc.SMTPHost,
		InsecureSkipVerify: mc.SMTPSkipVerify, // nolint:gosec
	}
	d.Timeout = smtpTimeout

	return &smtpService{
		conf:       conf,
		dialer:     d,
		subjPrefix: "[" + conf.AppName + "] ",
	}
}

func (svc smtpService) SendMessage(_ context.Context, msg *core.EmailMessage) error {
	if err := msg.Render(svc.conf); err != nil {
		return errors.Wrap(err, "rendering email")
	}
	if !msg.HasRecipients() || !msg.HasContent() {
		return nil
	}
	if err := svc.dialer.DialAndSend(svc.prepare(*msg)); err != nil {
		return errors.Wrap(err, "sending email")
	}
	return nil
}

func (svc smtpService) prepare(msg core.EmailMessage) *gomail.Message {
	from := svc.conf.DefaultFromEmail()

	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Address, from.Name)
	m.SetHeader("To", addressList(m, msg.To)...)
	if len(msg.Cc) > 0 {
		m.SetHeader("Cc", addressList(m, msg.Cc)...)
	}
	if len(msg.Bcc) > 0 {
		m.SetHeader("Bcc", addressList(m, msg.Bcc)...)
	}
	m.SetHeader("Subject", svc.subjPrefix+msg.Subject)

	m.SetBody("text/plain", msg.TextContent)
	if msg.HTMLContent != "" {
		m.AddAlternative("text/html", msg.HTMLContent)
	}
	return m
}

func addressList(m *gomail.Message, addrs []mail.Address) []string {
	list := make([]string, 0, len(addrs))
	for _, a := range addrs {
		list = append(list, m.FormatAddress(a.Address, a.Name))
	}
	return list
}
