package progress

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/user"
)

var (
	// errors
	ErrNotFound      = errors.New("log not found")
	ErrDuplicateWeek = errors.New("a log for this week has already been submitted")
	ErrInvalidStatus = errors.New("invalid status")
	ErrInvalidAction = errors.New("invalid action: must be 'approved' or 'rejected'")
	ErrMissingToken  = errors.New("missing verification token")
	ErrNotStudent    = errors.New("only students can submit logs")
	ErrForbidden     = errors.New("permission denied")
)

type (
	// Repository is the storage contract of the token workflow.
	Repository interface {
		// InsertLog stores a new entry and returns it with its ID set.
		// It returns ErrDuplicateWeek if the student already has a log for that week.
		InsertLog(ctx context.Context, le LogEntry) (LogEntry, error)
		// SetToken binds token to the log identified by id. Only a null token is overwritten,
		// otherwise ErrNotFound is returned.
		SetToken(ctx context.Context, id, token string) error
		// FindByToken returns the log currently bound to token, or ErrNotFound.
		FindByToken(ctx context.Context, token string) (LogEntry, error)
		// ResolveByToken atomically sets status and clears the token of the pending log bound to token,
		// as one conditional write keyed on the token value. It returns the entry as it was before the
		// write, or ErrNotFound when no log holds the token anymore.
		ResolveByToken(ctx context.Context, token string, status Status) (LogEntry, error)
		GetLog(ctx context.Context, id string) (LogEntry, error)
		QueryLogs(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering) ([]LogEntry, error)
	}

	Service interface {
		// Submit stores a weekly log of student and issues its verification token.
		Submit(ctx context.Context, student user.User, nl NewLogEntry) (Submission, error)
		// Issue binds a fresh token to the log identified by id and mails the approve and reject
		// links to the supervisor. A mail failure is reported in Issuance.MailErr, the token stays valid.
		Issue(ctx context.Context, id string) (Issuance, error)
		// Redeem applies action to the log bound to token, at most once per token.
		// ok is false when no log is bound to token (never issued, already used or malformed).
		Redeem(ctx context.Context, token, action string) (le LogEntry, ok bool, err error)
		// Query lists the logs viewer is allowed to see.
		Query(ctx context.Context, viewer user.User, filter QueryFilter, ordering []core.DBOrdering) ([]LogEntry, error)
		Summary(ctx context.Context, viewer user.User, filter QueryFilter) (Summary, error)
	}

	Issuance struct {
		Token      string
		ApproveURL string
		RejectURL  string
		MailErr    error
	}

	Submission struct {
		Entry   LogEntry
		Warning string
	}

	service struct {
		repo     Repository
		mailSvc  core.EmailService
		conf     *core.Config
		logger   core.Logger
		validate *validator.Validate
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config, logger core.Logger, validate *validator.Validate) Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(mailSvc, "mailSvc"),
		vala.IsNotNil(conf, "conf"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
	).CheckAndPanic()

	return &service{
		repo:     repo,
		mailSvc:  mailSvc,
		conf:     conf,
		logger:   logger,
		validate: validate,
	}
}

func (svc *service) Submit(ctx context.Context, student user.User, nl NewLogEntry) (Submission, error) {
	if !student.IsStudent() {
		return Submission{}, ErrNotStudent
	}
	nl.Clean()
	if err := svc.validate.Struct(nl); err != nil {
		return Submission{}, err
	}

	now := time.Now().UTC()
	le, err := svc.repo.InsertLog(ctx, LogEntry{
		StudentUsername: student.Username,
		StudentName:     student.Name,
		StudentEmail:    student.Email,
		SupervisorEmail: student.SupervisorEmail,
		Department:      student.Department,
		WeekNumber:      nl.WeekNumber,
		Content:         nl.Content,
		Status:          StatusPending,
		SubmittedAt:     now,
		UpdatedAt:       now,
	})
	if err != nil {
		if errors.Cause(err) != ErrDuplicateWeek {
			return Submission{}, errors.Wrap(err, "inserting log")
		}
		// a previous attempt may have stored the log but failed to issue its token
		if le, err = svc.unissued(ctx, student.Username, nl.WeekNumber); err != nil {
			return Submission{}, err
		}
	}

	iss, err := svc.Issue(ctx, le.ID)
	if err != nil {
		return Submission{}, errors.Wrap(err, "issuing verification token")
	}

	sub := Submission{Entry: le}
	if iss.MailErr != nil {
		sub.Warning = "Log saved, but the verification email could not be sent to your supervisor. Please contact your administrator."
	}
	return sub, nil
}

// unissued returns the pending log of username for week that never got a token.
// Any other state means the week is taken and ErrDuplicateWeek is returned.
func (svc *service) unissued(ctx context.Context, username string, week int) (LogEntry, error) {
	logs, err := svc.repo.QueryLogs(ctx, QueryFilter{StudentUsername: username, WeekNumber: week}, nil)
	if err != nil {
		return LogEntry{}, errors.Wrap(err, "looking up existing log")
	}
	if len(logs) != 1 || logs[0].Status != StatusPending || logs[0].HasToken() {
		return LogEntry{}, ErrDuplicateWeek
	}
	return logs[0], nil
}

func (svc *service) Issue(ctx context.Context, id string) (Issuance, error) {
	le, err := svc.repo.GetLog(ctx, id)
	if err != nil {
		return Issuance{}, err
	}

	token, err := NewToken()
	if err != nil {
		return Issuance{}, errors.Wrap(err, "generating token")
	}
	if err = svc.repo.SetToken(ctx, id, token); err != nil {
		return Issuance{}, errors.Wrap(err, "setting token")
	}

	iss := Issuance{
		Token:      token,
		ApproveURL: VerifyURL(svc.conf.BaseURL, token, StatusApproved),
		RejectURL:  VerifyURL(svc.conf.BaseURL, token, StatusRejected),
	}

	// the token is durable from here: a mail failure must not undo it
	msg, err := verificationMessage(le, iss.ApproveURL, iss.RejectURL)
	if err == nil {
		err = svc.mailSvc.SendMessage(ctx, msg)
	}
	if err != nil {
		iss.MailErr = err
		svc.logger.Warn(fmt.Sprintf("sending verification email for log %s: %v", le.ID, err), err, le)
	}
	return iss, nil
}

func (svc *service) Redeem(ctx context.Context, token, action string) (LogEntry, bool, error) {
	status, err := ParseAction(action)
	if err != nil {
		return LogEntry{}, false, err
	}
	if token == "" {
		return LogEntry{}, false, ErrMissingToken
	}

	le, err := svc.repo.ResolveByToken(ctx, token, status)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return LogEntry{}, false, nil
		}
		return LogEntry{}, false, errors.Wrap(err, "resolving token")
	}
	return le, true, nil
}

// scope restricts filter to what viewer may see.
func scope(viewer user.User, filter *QueryFilter) error {
	filter.Clean()
	switch {
	case viewer.IsStudent():
		filter.StudentUsername = viewer.Username
	case viewer.IsSuperAdmin():
	case viewer.IsAdmin():
		filter.Department = viewer.Department
	default:
		return ErrForbidden
	}
	return nil
}

func (svc *service) Query(ctx context.Context, viewer user.User, filter QueryFilter, ordering []core.DBOrdering) ([]LogEntry, error) {
	if err := scope(viewer, &filter); err != nil {
		return nil, err
	}
	if filter.Status != "" {
		if _, err := ParseStatus(filter.Status); err != nil {
			return []LogEntry{}, nil
		}
	}
	if len(ordering) == 0 {
		ordering = DefaultOrdering
	}
	logs, err := svc.repo.QueryLogs(ctx, filter, ordering)
	return logs, errors.Wrap(err, "querying logs")
}

func (svc *service) Summary(ctx context.Context, viewer user.User, filter QueryFilter) (Summary, error) {
	filter.Status = ""
	logs, err := svc.Query(ctx, viewer, filter, nil)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(logs), nil
}
