package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/weeklog/core"
	"github.com/trezcool/weeklog/core/progress"
)

type logRepository struct {
	db *logTable
}

var _ progress.Repository = (*logRepository)(nil) // interface compliance check

func NewLogRepository(db *DB) progress.Repository {
	return &logRepository{db: db.log}
}

// clone returns a copy of le that does not share its token pointer.
func clone(le *progress.LogEntry) progress.LogEntry {
	c := *le
	if le.VerificationToken != nil {
		token := *le.VerificationToken
		c.VerificationToken = &token
	}
	return c
}

func (repo *logRepository) InsertLog(_ context.Context, le progress.LogEntry) (progress.LogEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, l := range repo.db.table {
		if l.StudentUsername == le.StudentUsername && l.WeekNumber == le.WeekNumber {
			return progress.LogEntry{}, progress.ErrDuplicateWeek
		}
	}
	le.ID = uuid.New().String()
	le.VerificationToken = nil
	repo.db.table[le.ID] = &le
	return clone(&le), nil
}

func (repo *logRepository) SetToken(_ context.Context, id, token string) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	le, ok := repo.db.table[id]
	if !ok || le.VerificationToken != nil || le.Status != progress.StatusPending {
		return progress.ErrNotFound
	}
	if _, taken := repo.db.byToken[token]; taken {
		return progress.ErrNotFound
	}
	le.VerificationToken = &token
	repo.db.byToken[token] = id
	return nil
}

func (repo *logRepository) FindByToken(_ context.Context, token string) (progress.LogEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if id, ok := repo.db.byToken[token]; ok {
		return clone(repo.db.table[id]), nil
	}
	return progress.LogEntry{}, progress.ErrNotFound
}

func (repo *logRepository) ResolveByToken(_ context.Context, token string, status progress.Status) (progress.LogEntry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	id, ok := repo.db.byToken[token]
	if !ok {
		return progress.LogEntry{}, progress.ErrNotFound
	}
	le := repo.db.table[id]
	if le.Status != progress.StatusPending {
		return progress.LogEntry{}, progress.ErrNotFound
	}
	before := clone(le)

	le.Status = status
	le.VerificationToken = nil
	le.UpdatedAt = time.Now().UTC()
	delete(repo.db.byToken, token)
	return before, nil
}

func (repo *logRepository) GetLog(_ context.Context, id string) (progress.LogEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if le, ok := repo.db.table[id]; ok {
		return clone(le), nil
	}
	return progress.LogEntry{}, progress.ErrNotFound
}

func (repo *logRepository) QueryLogs(_ context.Context, filter progress.QueryFilter, ordering []core.DBOrdering) ([]progress.LogEntry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	logs := make([]progress.LogEntry, 0)
	for _, le := range repo.db.table {
		if filter.StudentUsername != "" && le.StudentUsername != filter.StudentUsername {
			continue
		}
		if filter.Department != "" && le.Department != filter.Department {
			continue
		}
		if filter.Status != "" && string(le.Status) != filter.Status {
			continue
		}
		if filter.WeekNumber != 0 && le.WeekNumber != filter.WeekNumber {
			continue
		}
		logs = append(logs, clone(le))
	}

	sortLogs(logs, ordering)
	return logs, nil
}

func sortLogs(logs []progress.LogEntry, ordering []core.DBOrdering) {
	if len(ordering) == 0 {
		ordering = progress.DefaultOrdering
	}
	sort.SliceStable(logs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareLogs(logs[i], logs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return logs[i].SubmittedAt.Before(logs[j].SubmittedAt)
	})
}

func compareLogs(a, b progress.LogEntry, field string) int {
	switch field {
	case "week_number":
		return a.WeekNumber - b.WeekNumber
	case "submitted_at":
		switch {
		case a.SubmittedAt.Before(b.SubmittedAt):
			return -1
		case a.SubmittedAt.After(b.SubmittedAt):
			return 1
		}
	case "status":
		switch {
		case a.Status < b.Status:
			return -1
		case a.Status > b.Status:
			return 1
		}
	}
	return 0
}
