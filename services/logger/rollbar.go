package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
)

// RollbarLogger reports to Rollbar and mirrors every entry to a standard logger.
//
// Besides errors and map[string]interface{} extras, entries accept a user.User, reported as the
// Rollbar person, and progress.LogEntry values, reduced to fields that identify the log.
// Log content and verification tokens are never reported.
type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

type level struct {
	name   string
	report func(...interface{})
}

var (
	levelDebug = level{name: "DEBUG", report: rollbar.Debug}
	levelInfo  = level{name: "INFO", report: rollbar.Info}
	levelWarn  = level{name: "WARN", report: rollbar.Warning}
	levelError = level{name: "ERROR", report: rollbar.Error}
	levelFatal = level{name: "FATAL", report: rollbar.Critical}
)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "" && !conf.TestMode)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close flushes pending reports.
func (l RollbarLogger) Close() {
	rollbar.Close()
}

// logFields identifies le in reports.
func logFields(le progress.LogEntry) map[string]interface{} {
	return map[string]interface{}{
		"log_id":  le.ID,
		"student": le.StudentUsername,
		"week":    le.WeekNumber,
		"status":  le.Status.String(),
	}
}

func (l RollbarLogger) log(lvl level, msg string, args []interface{}) {
	var person *user.User
	extras := make(map[string]interface{})
	report := []interface{}{msg}

	l.std.Printf("%s: %s\n", lvl.name, msg)
	for _, arg := range args {
		switch v := arg.(type) {
		case user.User:
			// only the first user is reported
			if person == nil {
				person = &v
			}
		case progress.LogEntry:
			for k, val := range logFields(v) {
				extras[k] = val
			}
			l.std.Printf("log %s: %s, week %d, %s\n", v.ID, v.StudentUsername, v.WeekNumber, v.Status)
		case map[string]interface{}:
			for k, val := range v {
				extras[k] = val
			}
			l.std.Printf("%v\n", v)
		default:
			report = append(report, arg)
			l.std.Printf("%+v\n", arg)
		}
	}

	if person != nil {
		rollbar.SetPerson(person.ID, person.Username, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	// rollbar keeps a single extras map per item
	if len(extras) > 0 {
		report = append(report, extras)
	}
	lvl.report(report...)
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) { l.log(levelDebug, msg, args) }
func (l RollbarLogger) Info(msg string, args ...interface{})  { l.log(levelInfo, msg, args) }
func (l RollbarLogger) Warn(msg string, args ...interface{})  { l.log(levelWarn, msg, args) }
func (l RollbarLogger) Error(msg string, args ...interface{}) { l.log(levelError, msg, args) }

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.log(levelFatal, msg, args)
	rollbar.Close()
	l.std.Fatal(msg)
}
