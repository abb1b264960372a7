package inmemdb

import (
	"sync"

	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
)

type (
	// DB is a process-local store. Each table guards its rows with its own lock.
	DB struct {
		user *userTable
		log  *logTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	logTable struct {
		sync.RWMutex
		table   map[string]*progress.LogEntry
		byToken map[string]string // {token: logID}
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		log: &logTable{
			table:   make(map[string]*progress.LogEntry),
			byToken: make(map[string]string),
		},
	}
}
