package progress

import (
	"time"

	"github.com/trezcool/weeklog/core"
)

const (
	MinWeek          = 1
	MaxWeek          = 52
	MinContentLength = 50
)

// Status is the verification state of a LogEntry.
// pending is the only initial state; approved and rejected are terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// ParseStatus validates a status received at the boundary.
func ParseStatus(s string) (Status, error) {
	switch st := Status(core.CleanString(s, true /* lower */)); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// ParseAction validates the action of a verification link: only terminal states are actions.
func ParseAction(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusApproved, StatusRejected:
		return st, nil
	}
	return "", ErrInvalidAction
}

func (s Status) String() string { return string(s) }
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// LogEntry is one weekly submission of a student.
type LogEntry struct {
	ID              string    `json:"id"`
	StudentUsername string    `json:"student_username"`
	StudentName     string    `json:"student_name"`
	StudentEmail    string    `json:"student_email"`
	SupervisorEmail string    `json:"supervisor_email"`
	Department      string    `json:"department"`
	WeekNumber      int       `json:"week_number"`
	Content         string    `json:"content"`
	Status          Status    `json:"status"`
	SubmittedAt     time.Time `json:"submitted_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"`   // UTC

	// VerificationToken is nil until issued and once resolved.
	VerificationToken *string `json:"-"`
}

// HasToken reports whether a redeemable token is bound to the entry.
func (le LogEntry) HasToken() bool {
	return le.VerificationToken != nil && *le.VerificationToken != ""
}

// NewLogEntry is the content of a weekly submission.
type NewLogEntry struct {
	WeekNumber int    `json:"week_number" validate:"required,min=1,max=52"`
	Content    string `json:"content" validate:"required,min=50"`
}

func (nl *NewLogEntry) Clean() {
	nl.Content = core.CleanString(nl.Content)
}

type QueryFilter struct {
	StudentUsername string `query:"student"`
	Department      string `query:"department"`
	Status          string `query:"status"`
	WeekNumber      int    `query:"week"`
}

func (qf *QueryFilter) Clean() {
	qf.StudentUsername = core.CleanString(qf.StudentUsername, true /* lower */)
	qf.Department = core.CleanString(qf.Department)
	qf.Status = core.CleanString(qf.Status, true /* lower */)
}

// OrderingFields are the fields logs can be sorted by.
var OrderingFields = []string{"week_number", "submitted_at", "status"}

// DefaultOrdering lists the latest weeks first.
var DefaultOrdering = []core.DBOrdering{{Field: "week_number", Ascending: false}}

// Summary counts a set of logs per status.
type Summary struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
}

func Summarize(entries []LogEntry) Summary {
	s := Summary{Total: len(entries)}
	for _, le := range entries {
		switch le.Status {
		case StatusPending:
			s.Pending++
		case StatusApproved:
			s.Approved++
		case StatusRejected:
			s.Rejected++
		}
	}
	return s
}
