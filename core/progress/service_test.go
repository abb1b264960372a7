package progress_test

import (
	"bytes"
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
	"github.com/trezcool/weeklog/services/email"
	"github.com/trezcool/weeklog/storage/database/inmem"
	"github.com/trezcool/weeklog/testutil"
)

var (
	content    = "This week I set up the staging cluster and wrote the first migration scripts."
	approveRgx = regexp.MustCompile(`Approve: (\S+)`)
)

type fixture struct {
	svc     progress.Service
	logRepo progress.Repository
	usrRepo user.Repository
	logger  *testutil.Logger
	student user.User
}

func setup(t *testing.T, mailSvc core.EmailService) fixture {
	t.Helper()
	conf := core.NewTestConfig()
	if mailSvc == nil {
		mailSvc = emailsvc.NewConsoleServiceMock(conf)
	}
	emailsvc.ClearSentMessages()

	db := inmemdb.Open()
	f := fixture{
		logRepo: inmemdb.NewLogRepository(db),
		usrRepo: inmemdb.NewUserRepository(db),
		logger:  testutil.NewLogger(),
	}
	validate, _ := testutil.NewValidator()
	f.svc = progress.NewService(f.logRepo, mailSvc, conf, f.logger, validate)
	f.student = testutil.CreateUser(t, f.usrRepo, user.RoleStudent, "CS", "alice", "")
	return f
}

func tokenOf(t *testing.T, repo progress.Repository, id string) string {
	t.Helper()
	le, err := repo.GetLog(context.Background(), id)
	require.NoError(t, err)
	require.True(t, le.HasToken())
	return *le.VerificationToken
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	sub, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 5, Content: "  " + content + "  "})
	require.NoError(t, err)
	assert.Empty(t, sub.Warning)
	assert.NotEmpty(t, sub.Entry.ID)
	assert.Equal(t, progress.StatusPending, sub.Entry.Status)
	assert.Equal(t, content, sub.Entry.Content)
	assert.Equal(t, "alice", sub.Entry.StudentUsername)
	assert.Equal(t, f.student.Name, sub.Entry.StudentName)
	assert.Equal(t, f.student.SupervisorEmail, sub.Entry.SupervisorEmail)
	assert.Equal(t, "CS", sub.Entry.Department)

	token := tokenOf(t, f.logRepo, sub.Entry.ID)

	msgs := emailsvc.SentMessages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, f.student.SupervisorEmail, msg.To[0].Address)
	assert.Equal(t, "Log Verification Required - User alice (Week 5)", msg.Subject)
	assert.Contains(t, msg.TextContent, "http://weeklog.test/verify?token="+token+"&action=approved")
	assert.Contains(t, msg.TextContent, "http://weeklog.test/verify?token="+token+"&action=rejected")
	assert.Contains(t, msg.HTMLContent, content)
}

func TestService_Submit_errors(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	admin := testutil.CreateUser(t, f.usrRepo, user.RoleDepartmentAdmin, "CS", "bob", "")

	_, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 3, Content: content})
	require.NoError(t, err)

	tests := []struct {
		name    string
		usr     user.User
		nl      progress.NewLogEntry
		wantErr error
		field   string
	}{
		{name: "not a student", usr: admin, nl: progress.NewLogEntry{WeekNumber: 4, Content: content}, wantErr: progress.ErrNotStudent},
		{name: "duplicate week", usr: f.student, nl: progress.NewLogEntry{WeekNumber: 3, Content: content}, wantErr: progress.ErrDuplicateWeek},
		{name: "week too low", usr: f.student, nl: progress.NewLogEntry{WeekNumber: 0, Content: content}, field: "week_number"},
		{name: "week too high", usr: f.student, nl: progress.NewLogEntry{WeekNumber: 53, Content: content}, field: "week_number"},
		{name: "content too short", usr: f.student, nl: progress.NewLogEntry{WeekNumber: 4, Content: strings.Repeat("x", 49)}, field: "content"},
		{name: "blank content padded", usr: f.student, nl: progress.NewLogEntry{WeekNumber: 4, Content: strings.Repeat(" ", 60)}, field: "content"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.usr, tt.nl)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, errors.Cause(err))
				return
			}
			var vErrs validator.ValidationErrors
			require.True(t, errors.As(err, &vErrs))
			assert.Equal(t, tt.field, vErrs[0].Field())
		})
	}

	logs, err := f.svc.Query(ctx, f.student, progress.QueryFilter{}, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestService_Submit_mailFailure(t *testing.T) {
	ctx := context.Background()
	mailSvc := &testutil.FailingMailService{Err: errors.New("smtp: connection refused")}
	f := setup(t, mailSvc)

	sub, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 7, Content: content})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.Warning)
	assert.Equal(t, 1, mailSvc.Tries)
	assert.Equal(t, 1, f.logger.Count("WARN"))

	// the log and its token survive the failed delivery
	token := tokenOf(t, f.logRepo, sub.Entry.ID)
	le, ok, err := f.svc.Redeem(ctx, token, "approved")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sub.Entry.ID, le.ID)
}

// tokenFailRepo fails the next `failures` SetToken calls.
type tokenFailRepo struct {
	progress.Repository
	failures int
}

func (r *tokenFailRepo) SetToken(ctx context.Context, id, token string) error {
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	return r.Repository.SetToken(ctx, id, token)
}

func TestService_Submit_retryAfterIssueFailure(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	repo := &tokenFailRepo{Repository: f.logRepo, failures: 1}
	validate, _ := testutil.NewValidator()
	svc := progress.NewService(repo, emailsvc.NewConsoleServiceMock(core.NewTestConfig()), core.NewTestConfig(), f.logger, validate)
	nl := progress.NewLogEntry{WeekNumber: 9, Content: content}

	_, err := svc.Submit(ctx, f.student, nl)
	require.Error(t, err)
	assert.NotEqual(t, progress.ErrDuplicateWeek, errors.Cause(err))
	assert.Empty(t, emailsvc.SentMessages())

	// the stored log has no token yet: a retry issues one instead of reporting a duplicate
	sub, err := svc.Submit(ctx, f.student, nl)
	require.NoError(t, err)
	assert.Empty(t, sub.Warning)
	assert.Equal(t, progress.StatusPending, sub.Entry.Status)
	token := tokenOf(t, f.logRepo, sub.Entry.ID)
	require.Len(t, emailsvc.SentMessages(), 1)
	assert.Contains(t, emailsvc.SentMessages()[0].TextContent, "token="+token)

	logs, err := f.logRepo.QueryLogs(ctx, progress.QueryFilter{StudentUsername: "alice"}, nil)
	require.NoError(t, err)
	assert.Len(t, logs, 1)

	tests := []struct {
		name   string
		before func(t *testing.T)
	}{
		{name: "token issued", before: func(t *testing.T) {}},
		{name: "log resolved", before: func(t *testing.T) {
			_, ok, err := svc.Redeem(ctx, token, "approved")
			require.NoError(t, err)
			require.True(t, ok)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.before(t)
			_, err := svc.Submit(ctx, f.student, nl)
			assert.Equal(t, progress.ErrDuplicateWeek, errors.Cause(err))
			assert.Len(t, emailsvc.SentMessages(), 1)
		})
	}
}

func TestService_Issue(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	le, err := f.logRepo.InsertLog(ctx, progress.LogEntry{
		StudentUsername: f.student.Username,
		StudentName:     f.student.Name,
		SupervisorEmail: f.student.SupervisorEmail,
		Department:      f.student.Department,
		WeekNumber:      9,
		Content:         content,
		Status:          progress.StatusPending,
	})
	require.NoError(t, err)

	iss, err := f.svc.Issue(ctx, le.ID)
	require.NoError(t, err)
	assert.NoError(t, iss.MailErr)
	assert.Equal(t, tokenOf(t, f.logRepo, le.ID), iss.Token)
	assert.Equal(t, progress.VerifyURL("http://weeklog.test", iss.Token, progress.StatusApproved), iss.ApproveURL)
	assert.Equal(t, progress.VerifyURL("http://weeklog.test", iss.Token, progress.StatusRejected), iss.RejectURL)

	// a bound token is never overwritten
	_, err = f.svc.Issue(ctx, le.ID)
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err))
	assert.Equal(t, iss.Token, tokenOf(t, f.logRepo, le.ID))

	_, err = f.svc.Issue(ctx, "unknown")
	assert.Equal(t, progress.ErrNotFound, errors.Cause(err))
}

func TestService_Redeem(t *testing.T) {
	ctx := context.Background()

	for _, action := range []progress.Status{progress.StatusApproved, progress.StatusRejected} {
		t.Run(action.String(), func(t *testing.T) {
			f := setup(t, nil)
			sub, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 2, Content: content})
			require.NoError(t, err)
			token := tokenOf(t, f.logRepo, sub.Entry.ID)

			le, ok, err := f.svc.Redeem(ctx, token, action.String())
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, sub.Entry.ID, le.ID)
			assert.Equal(t, progress.StatusPending, le.Status)

			stored, err := f.logRepo.GetLog(ctx, sub.Entry.ID)
			require.NoError(t, err)
			assert.Equal(t, action, stored.Status)
			assert.False(t, stored.HasToken())

			_, err = f.logRepo.FindByToken(ctx, token)
			assert.Equal(t, progress.ErrNotFound, err)

			// at most once
			for _, again := range []string{"approved", "rejected"} {
				_, ok, err = f.svc.Redeem(ctx, token, again)
				assert.NoError(t, err)
				assert.False(t, ok)
			}
			stored, err = f.logRepo.GetLog(ctx, sub.Entry.ID)
			require.NoError(t, err)
			assert.Equal(t, action, stored.Status)
		})
	}
}

func TestService_Redeem_invalid(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	sub, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 2, Content: content})
	require.NoError(t, err)
	token := tokenOf(t, f.logRepo, sub.Entry.ID)

	for _, action := range []string{"", "pending", "maybe", "APPROVED"} {
		_, ok, err := f.svc.Redeem(ctx, token, action)
		assert.Equal(t, progress.ErrInvalidAction, err, action)
		assert.False(t, ok)
	}
	_, _, err = f.svc.Redeem(ctx, "", "approved")
	assert.Equal(t, progress.ErrMissingToken, err)

	for _, bad := range []string{"nope", token + "x", strings.ToUpper(token)} {
		_, ok, err := f.svc.Redeem(ctx, bad, "approved")
		assert.NoError(t, err)
		assert.False(t, ok)
	}

	// nothing changed
	stored, err := f.logRepo.GetLog(ctx, sub.Entry.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusPending, stored.Status)
	assert.Equal(t, token, *stored.VerificationToken)
}

func TestService_Redeem_concurrent(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	sub, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 11, Content: content})
	require.NoError(t, err)
	token := tokenOf(t, f.logRepo, sub.Entry.ID)

	const n = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < n; i++ {
		action := "approved"
		if i%2 == 1 {
			action = "rejected"
		}
		wg.Add(1)
		go func(action string) {
			defer wg.Done()
			_, ok, err := f.svc.Redeem(ctx, token, action)
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(action)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	stored, err := f.logRepo.GetLog(ctx, sub.Entry.ID)
	require.NoError(t, err)
	assert.True(t, stored.Status.IsTerminal())
	assert.False(t, stored.HasToken())
}

// TestService_scenario walks a week 5 submission through the supervisor's approval link.
func TestService_scenario(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)

	sub, err := f.svc.Submit(ctx, f.student, progress.NewLogEntry{WeekNumber: 5, Content: content})
	require.NoError(t, err)

	msgs := emailsvc.SentMessages()
	require.Len(t, msgs, 1)
	m := approveRgx.FindStringSubmatch(msgs[0].TextContent)
	require.Len(t, m, 2)
	link, err := url.Parse(m[1])
	require.NoError(t, err)
	assert.Equal(t, "/verify", link.Path)

	le, ok, err := f.svc.Redeem(ctx, link.Query().Get("token"), link.Query().Get("action"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 5, le.WeekNumber)

	logs, err := f.svc.Query(ctx, f.student, progress.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, progress.StatusApproved, logs[0].Status)

	summary, err := f.svc.Summary(ctx, f.student, progress.QueryFilter{})
	require.NoError(t, err)
	assert.Equal(t, progress.Summary{Total: 1, Approved: 1}, summary)
	assert.Equal(t, sub.Entry.ID, logs[0].ID)
}

func TestService_Query(t *testing.T) {
	ctx := context.Background()
	f := setup(t, nil)
	bob := testutil.CreateUser(t, f.usrRepo, user.RoleStudent, "CS", "bob", "")
	carol := testutil.CreateUser(t, f.usrRepo, user.RoleStudent, "EE", "carol", "")
	csAdmin := testutil.CreateUser(t, f.usrRepo, user.RoleDepartmentAdmin, "CS", "csadmin", "")
	root := testutil.CreateUser(t, f.usrRepo, user.RoleSuperAdmin, "", "root", "")

	for _, s := range []struct {
		usr  user.User
		week int
	}{{f.student, 1}, {f.student, 2}, {bob, 1}, {carol, 1}} {
		_, err := f.svc.Submit(ctx, s.usr, progress.NewLogEntry{WeekNumber: s.week, Content: content})
		require.NoError(t, err)
	}

	tests := []struct {
		name   string
		viewer user.User
		filter progress.QueryFilter
		want   int
	}{
		{name: "student sees own logs", viewer: f.student, want: 2},
		{name: "student cannot widen scope", viewer: f.student, filter: progress.QueryFilter{StudentUsername: "bob"}, want: 2},
		{name: "dept admin sees dept", viewer: csAdmin, want: 3},
		{name: "dept admin cannot leave dept", viewer: csAdmin, filter: progress.QueryFilter{Department: "EE"}, want: 3},
		{name: "dept admin filters student", viewer: csAdmin, filter: progress.QueryFilter{StudentUsername: "bob"}, want: 1},
		{name: "super admin sees all", viewer: root, want: 4},
		{name: "super admin filters dept", viewer: root, filter: progress.QueryFilter{Department: "EE"}, want: 1},
		{name: "filter by week", viewer: root, filter: progress.QueryFilter{WeekNumber: 1}, want: 3},
		{name: "filter by status", viewer: root, filter: progress.QueryFilter{Status: "approved"}, want: 0},
		{name: "invalid status", viewer: root, filter: progress.QueryFilter{Status: "lost"}, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := f.svc.Query(ctx, tt.viewer, tt.filter, nil)
			require.NoError(t, err)
			assert.Len(t, logs, tt.want)
		})
	}

	logs, err := f.svc.Query(ctx, f.student, progress.QueryFilter{}, nil)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].WeekNumber, "latest week first")

	_, err = f.svc.Query(ctx, user.User{Role: "visitor"}, progress.QueryFilter{}, nil)
	assert.Equal(t, progress.ErrForbidden, err)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	err := progress.WriteCSV(&buf, []progress.LogEntry{
		{StudentUsername: "alice", WeekNumber: 5, Status: progress.StatusApproved, Content: "line one, with comma"},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(progress.CSVHeader, ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "alice,"))
	assert.Contains(t, lines[1], ",5,approved,")
	assert.True(t, strings.HasSuffix(lines[1], `"line one, with comma"`))
}
