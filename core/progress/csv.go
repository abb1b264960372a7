package progress

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// CSVHeader lists the columns of a log export.
var CSVHeader = []string{
	"student_username", "student_name", "student_email", "supervisor_email",
	"department", "week_number", "status", "submitted_at", "updated_at", "content",
}

// WriteCSV writes entries to w, one row per log.
func WriteCSV(w io.Writer, entries []LogEntry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, le := range entries {
		rec := []string{
			le.StudentUsername,
			le.StudentName,
			le.StudentEmail,
			le.SupervisorEmail,
			le.Department,
			strconv.Itoa(le.WeekNumber),
			le.Status.String(),
			le.SubmittedAt.Format(time.RFC3339),
			le.UpdatedAt.Format(time.RFC3339),
			le.Content,
		}
		if err := cw.Write(rec); err != nil {
			return errors.Wrapf(err, "writing log %s", le.ID)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flushing csv")
}
