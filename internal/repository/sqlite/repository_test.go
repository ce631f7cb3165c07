package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tasklist/internal/domain"
	"tasklist/internal/repository"
	"tasklist/internal/sqlitedb"
)

func openTestDB(t *testing.T) (repository.UserRepository, repository.TaskRepository) {
	t.Helper()
	db, err := sqlitedb.Open(filepath.Join(t.TempDir(), "nested", "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := NewUserRepository(db)
	tasks := NewTaskRepository(db)
	ctx := context.Background()
	require.NoError(t, users.Init(ctx))
	require.NoError(t, tasks.Init(ctx))
	// Init is idempotent
	require.NoError(t, tasks.Init(ctx))
	return users, tasks
}

func TestUserRepository(t *testing.T) {
	users, _ := openTestDB(t)
	ctx := context.Background()

	u := &domain.User{Email: "a@x.com", PasswordHash: "hash"}
	id, err := users.Create(ctx, u)
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)

	byEmail, err := users.GetByEmail(ctx, "A@X.com")
	require.NoError(t, err)
	assert.Equal(t, id, byEmail.ID)
	assert.Equal(t, "hash", byEmail.PasswordHash)

	byID, err := users.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	_, err = users.Create(ctx, &domain.User{Email: "a@x.com", PasswordHash: "other"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
	_, err = users.Create(ctx, &domain.User{Email: "A@X.COM", PasswordHash: "other"})
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)

	_, err = users.GetByEmail(ctx, "nobody@x.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = users.GetByID(ctx, 999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestTaskRepository(t *testing.T) {
	users, tasks := openTestDB(t)
	ctx := context.Background()

	owner := &domain.User{Email: "owner@x.com", PasswordHash: "h"}
	_, err := users.Create(ctx, owner)
	require.NoError(t, err)

	desc := "details"
	first := &domain.Task{UserID: owner.ID, Title: "first", Description: &desc}
	_, err = tasks.Create(ctx, first)
	require.NoError(t, err)
	second := &domain.Task{UserID: owner.ID, Title: "second"}
	_, err = tasks.Create(ctx, second)
	require.NoError(t, err)

	list, err := tasks.ListByUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID, "newest first")
	require.NotNil(t, list[1].Description)
	assert.Equal(t, "details", *list[1].Description)
	assert.Nil(t, list[0].Description)

	first.Completed = true
	first.Title = "renamed"
	require.NoError(t, tasks.Update(ctx, first))

	got, err := tasks.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, got.Completed)
	assert.Equal(t, "renamed", got.Title)

	require.NoError(t, tasks.Delete(ctx, first.ID))
	_, err = tasks.Get(ctx, first.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.ErrorIs(t, tasks.Delete(ctx, first.ID), repository.ErrNotFound)

	empty, err := tasks.ListByUser(ctx, owner.ID+100)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
