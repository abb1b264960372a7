package progress

import (
	"fmt"
	"net/mail"

	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
)

const verificationTemplate = "log_verification"

type verificationData struct {
	StudentName  string
	StudentEmail string
	WeekNumber   int
	Content      string
	ApproveURL   string
	RejectURL    string
}

// verificationMessage builds the email asking the supervisor of le to approve or reject it.
func verificationMessage(le LogEntry, approveURL, rejectURL string) (*core.EmailMessage, error) {
	to, err := mail.ParseAddress(le.SupervisorEmail)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing supervisor email %q", le.SupervisorEmail)
	}
	return &core.EmailMessage{
		To:           []mail.Address{*to},
		Subject:      fmt.Sprintf("Log Verification Required - %s (Week %d)", le.StudentName, le.WeekNumber),
		TemplateName: verificationTemplate,
		TemplateData: verificationData{
			StudentName:  le.StudentName,
			StudentEmail: le.StudentEmail,
			WeekNumber:   le.WeekNumber,
			Content:      le.Content,
			ApproveURL:   approveURL,
			RejectURL:    rejectURL,
		},
	}, nil
}
