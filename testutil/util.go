package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/user"
)

// NewValidator returns a validator with all the app validators registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	return validate, translator
}

// CreateUser stores an active user straight through repo, bypassing the service rules.
// Students get a supervisor email derived from their department.
func CreateUser(t *testing.T, repo user.Repository, role user.Role, dept, uname, pwd string, mustChangePwd ...bool) user.User {
	t.Helper()

	now := time.Now().UTC()
	usr := user.User{
		Username:   uname,
		Name:       "User " + uname,
		Email:      uname + "@example.com",
		Role:       role,
		Department: dept,
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if role == user.RoleSuperAdmin {
		usr.Department = user.AllDepartments
	}
	if role == user.RoleStudent {
		usr.SupervisorEmail = "supervisor." + strings.ToLower(dept) + "@example.com"
	}
	if len(mustChangePwd) > 0 {
		usr.MustChangePassword = mustChangePwd[0]
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// LogRecord is one entry written to a Logger.
type LogRecord struct {
	Level string
	Msg   string
	Args  []interface{}
}

// Logger records its entries in memory.
type Logger struct {
	mu      sync.Mutex
	Records []LogRecord
}

var _ core.Logger = (*Logger)(nil)

func NewLogger() *Logger { return &Logger{} }

func (l *Logger) log(level, msg string, args []interface{}) {
	l.mu.Lock()
	l.Records = append(l.Records, LogRecord{Level: level, Msg: msg, Args: args})
	l.mu.Unlock()
}

// Count returns the number of entries logged at level.
func (l *Logger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int
	for _, r := range l.Records {
		if r.Level == level {
			n++
		}
	}
	return n
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log("DEBUG", msg, args) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log("INFO", msg, args) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log("WARN", msg, args) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log("ERROR", msg, args) }
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.log("FATAL", msg, args)
	panic(fmt.Sprintf("fatal: %s", msg))
}

// FailingMailService rejects every message with Err.
type FailingMailService struct {
	Err   error
	mu    sync.Mutex
	Tries int
}

var _ core.EmailService = (*FailingMailService)(nil)

func (svc *FailingMailService) SendMessage(_ context.Context, _ *core.EmailMessage) error {
	svc.mu.Lock()
	svc.Tries++
	svc.mu.Unlock()
	return svc.Err
}
