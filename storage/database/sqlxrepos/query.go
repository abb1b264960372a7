package sqlxrepos

import (
	"strconv"
	"strings"

	"github.com/trezcool/weeklog/core"
)

func placeholder(n int) string { return "$" + strconv.Itoa(n) }

// orderBy renders ordering as an ORDER BY clause; fields outside allowed are dropped.
func orderBy(ordering []core.DBOrdering, allowed map[string]bool, fallback string) string {
	clauses := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if allowed[ord.Field] {
			clauses = append(clauses, ord.String())
		}
	}
	if len(clauses) == 0 {
		clauses = append(clauses, fallback)
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}
