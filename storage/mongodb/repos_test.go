package mongodb_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/trezcool/weeklog/core/progress"
	"github.com/trezcool/weeklog/core/user"
	"github.com/trezcool/weeklog/storage/mongodb"
	"github.com/trezcool/weeklog/testutil"
)

func prepareDB(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("TEST_MONGO_URI")
	if uri == "" {
		t.Skip("TEST_MONGO_URI not set")
	}
	ctx := context.Background()
	db, err := mongodb.Connect(ctx, uri, "weeklog_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mongodb.Disconnect(ctx, db) })

	require.NoError(t, mongodb.Drop(ctx, db))
	require.NoError(t, mongodb.EnsureIndexes(ctx, db))
	return db
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := mongodb.NewUserRepository(prepareDB(t))

	alice := testutil.CreateUser(t, repo, user.RoleStudent, "CS", "alice", "s3cure-Passw0rd")
	testutil.CreateUser(t, repo, user.RoleDepartmentAdmin, "EE", "eeadmin", "")

	assert.Equal(t, user.ErrUsernameExists, repo.CheckUsernameUniqueness(ctx, "alice", "new@uni.edu"))
	assert.Equal(t, user.ErrEmailExists, repo.CheckUsernameUniqueness(ctx, "new", alice.Email))
	assert.NoError(t, repo.CheckUsernameUniqueness(ctx, "alice", alice.Email, alice))

	_, err := repo.CreateUser(ctx, user.User{Username: "other", Email: alice.Email})
	assert.Equal(t, user.ErrEmailExists, err)

	got, err := repo.GetUser(ctx, user.GetFilter{UsernameOrEmail: "alice"})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)
	assert.NoError(t, got.CheckPassword("s3cure-Passw0rd"))

	got.LastLogin = time.Now().UTC()
	_, err = repo.UpdateUser(ctx, got)
	require.NoError(t, err)
	got, err = repo.GetUser(ctx, user.GetFilter{ID: alice.ID})
	require.NoError(t, err)
	assert.False(t, got.LastLogin.IsZero())

	_, err = repo.UpdateUser(ctx, user.User{ID: "missing"})
	assert.Equal(t, user.ErrNotFound, err)

	users, err := repo.QueryUsers(ctx, user.QueryFilter{Search: "ALI"}, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)
	users, err = repo.QueryUsers(ctx, user.QueryFilter{Department: "EE"}, nil)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestLogRepository(t *testing.T) {
	ctx := context.Background()
	repo := mongodb.NewLogRepository(prepareDB(t))

	newLog := func(week int) progress.LogEntry {
		return progress.LogEntry{StudentUsername: "alice", Department: "CS", WeekNumber: week, Status: progress.StatusPending}
	}
	le, err := repo.InsertLog(ctx, newLog(5))
	require.NoError(t, err)
	_, err = repo.InsertLog(ctx, newLog(5))
	assert.Equal(t, progress.ErrDuplicateWeek, err)
	other, err := repo.InsertLog(ctx, newLog(6))
	require.NoError(t, err)

	require.NoError(t, repo.SetToken(ctx, le.ID, "tok-1"))
	assert.Equal(t, progress.ErrNotFound, repo.SetToken(ctx, le.ID, "tok-2"))
	assert.Equal(t, progress.ErrNotFound, repo.SetToken(ctx, other.ID, "tok-1"))

	before, err := repo.ResolveByToken(ctx, "tok-1", progress.StatusApproved)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusPending, before.Status)
	_, err = repo.ResolveByToken(ctx, "tok-1", progress.StatusRejected)
	assert.Equal(t, progress.ErrNotFound, err)

	_, err = repo.FindByToken(ctx, "tok-1")
	assert.Equal(t, progress.ErrNotFound, err)
	after, err := repo.GetLog(ctx, le.ID)
	require.NoError(t, err)
	assert.Equal(t, progress.StatusApproved, after.Status)
	assert.Nil(t, after.VerificationToken)

	logs, err := repo.QueryLogs(ctx, progress.QueryFilter{Department: "CS"}, progress.DefaultOrdering)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 6, logs[0].WeekNumber)
}

func TestLogRepository_concurrentResolve(t *testing.T) {
	ctx := context.Background()
	repo := mongodb.NewLogRepository(prepareDB(t))

	le, err := repo.InsertLog(ctx, progress.LogEntry{StudentUsername: "bob", Department: "CS", WeekNumber: 1, Status: progress.StatusPending})
	require.NoError(t, err)
	require.NoError(t, repo.SetToken(ctx, le.ID, "race"))

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []progress.LogEntry
		losers  int
	)
	for i := 0; i < 20; i++ {
		status := progress.StatusApproved
		if i%2 == 1 {
			status = progress.StatusRejected
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			before, err := repo.ResolveByToken(ctx, "race", status)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners = append(winners, before)
			} else if err == progress.ErrNotFound {
				losers++
			}
		}()
	}
	wg.Wait()
	require.Len(t, winners, 1)
	assert.Equal(t, 19, losers)
	assert.Equal(t, progress.StatusPending, winners[0].Status)

	after, err := repo.GetLog(ctx, le.ID)
	require.NoError(t, err)
	assert.NotEqual(t, progress.StatusPending, after.Status)
	assert.Nil(t, after.VerificationToken)
}
