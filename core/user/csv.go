package user

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/weeklog/core"
)

// StudentCSVHeader lists the columns of a student import file. department is optional.
var StudentCSVHeader = []string{"username", "name", "email", "supervisor_email", "password", "department"}

var errMissingColumns = errors.New("missing required columns: username, name, email, supervisor_email, password")

// ImportResult reports the outcome of one CSV row.
type ImportResult struct {
	Line     int    `json:"line"`
	Username string `json:"username"`
	Created  bool   `json:"created"`
	Error    string `json:"error,omitempty"`
}

// ImportStudentsCSV creates one student per CSV row on behalf of creator.
// Rows failing validation are reported and skipped; only read and storage errors abort the import.
func ImportStudentsCSV(ctx context.Context, svc Service, creator *User, r io.Reader, translate func(validator.ValidationErrors) map[string]string) ([]ImportResult, error) {
	rdr := csv.NewReader(r)
	rdr.TrimLeadingSpace = true
	rdr.FieldsPerRecord = -1

	header, err := rdr.Read()
	if err != nil {
		if err == io.EOF {
			return []ImportResult{}, nil
		}
		return nil, core.NewValidationError(errors.Wrap(err, "reading header"))
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[core.CleanString(name, true /* lower */)] = i
	}
	for _, name := range StudentCSVHeader[:5] {
		if _, ok := cols[name]; !ok {
			return nil, core.NewValidationError(errMissingColumns)
		}
	}
	get := func(rec []string, name string) string {
		if i, ok := cols[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	results := make([]ImportResult, 0)
	for line := 2; ; line++ {
		rec, err := rdr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return results, core.NewValidationError(errors.Wrapf(err, "reading line %d", line))
		}

		pwd := get(rec, "password")
		nu := NewUser{
			Username:        get(rec, "username"),
			Name:            get(rec, "name"),
			Email:           get(rec, "email"),
			Role:            string(RoleStudent),
			Department:      get(rec, "department"),
			SupervisorEmail: get(rec, "supervisor_email"),
			Password:        pwd,
			PasswordConfirm: pwd,
		}
		res := ImportResult{Line: line, Username: core.CleanString(nu.Username, true /* lower */)}

		_, err = svc.Create(ctx, creator, nu)
		switch e := errors.Cause(err).(type) {
		case nil:
			res.Created = true
		case validator.ValidationErrors:
			res.Error = joinFieldErrors(translate(e))
		case *core.ValidationError:
			res.Error = e.Error()
		default:
			if err == ErrForbidden {
				res.Error = err.Error()
				break
			}
			return results, err
		}
		results = append(results, res)
	}
	return results, nil
}

func joinFieldErrors(fldErrs map[string]string) string {
	parts := make([]string, 0, len(fldErrs))
	for _, f := range StudentCSVHeader {
		if msg, ok := fldErrs[f]; ok {
			parts = append(parts, f+": "+msg)
		}
	}
	if len(parts) == 0 {
		for f, msg := range fldErrs {
			parts = append(parts, f+": "+msg)
		}
	}
	return strings.Join(parts, "; ")
}
