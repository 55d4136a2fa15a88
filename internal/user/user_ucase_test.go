package user

import (
	"context"
	"testing"
	"time"

	"github.com/roundy-world/lesson-server/internal/infrastructure/driver"
	"github.com/roundy-world/lesson-server/internal/infrastructure/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUseCase(t *testing.T) (*UserUseCaseImpl, *UserSQL) {
	t.Helper()
	conn, err := driver.NewSQLiteConn(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(context.Background()) })
	require.NoError(t, driver.Migrate(context.Background(), conn))

	repo := NewUserRepository(conn)
	return NewUserUseCase(repo, uuid.NewNanoIDGenerator(16), 3, time.Minute), repo
}

func signUp(t *testing.T, uu *UserUseCaseImpl, name string) *UserModel {
	t.Helper()
	u, err := uu.SignUp(context.Background(), &UserModel{
		Username: name,
		Email:    name + "@roundy.dev",
		Password: "secreto123",
	})
	require.NoError(t, err)
	return u
}

func TestUserUseCase_SignUp(t *testing.T) {
	uu, _ := newTestUseCase(t)
	ctx := context.Background()

	u := signUp(t, uu, "ana")
	assert.Len(t, u.ID, 16)
	assert.NotEqual(t, "secreto123", u.Password)

	_, err := uu.SignUp(ctx, &UserModel{Username: "ana", Email: "otra@roundy.dev", Password: "secreto123"})
	assert.ErrorIs(t, err, ErrDuplicatedUser)

	exists, err := uu.Exists(ctx, &UserModel{Username: "ana"})
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = uu.Exists(ctx, &UserModel{Email: "nadie@roundy.dev"})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUserUseCase_SignIn(t *testing.T) {
	uu, _ := newTestUseCase(t)
	ctx := context.Background()
	signUp(t, uu, "luis")

	u, err := uu.SignIn(ctx, &UserModel{Username: "luis", Password: "secreto123"})
	require.NoError(t, err)
	assert.Equal(t, "luis", u.Username)

	u, err = uu.SignIn(ctx, &UserModel{Username: "luis@roundy.dev", Password: "secreto123"})
	require.NoError(t, err)
	assert.Equal(t, "luis", u.Username)

	_, err = uu.SignIn(ctx, &UserModel{Username: "luis", Password: "incorrecto"})
	assert.ErrorIs(t, err, ErrNoSuchUser)

	_, err = uu.SignIn(ctx, &UserModel{Username: "nadie", Password: "secreto123"})
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestUserUseCase_SignInLockout(t *testing.T) {
	uu, repo := newTestUseCase(t)
	ctx := context.Background()
	signUp(t, uu, "eva")

	now := time.Now()
	uu.Now = func() time.Time { return now }
	for i := 0; i < 3; i++ {
		_, err := uu.SignIn(ctx, &UserModel{Username: "eva", Password: "mal"})
		assert.ErrorIs(t, err, ErrNoSuchUser)
	}

	_, err := uu.SignIn(ctx, &UserModel{Username: "eva", Password: "secreto123"})
	assert.ErrorIs(t, err, ErrTooManyRetry)

	uu.Now = func() time.Time { return now.Add(2 * time.Minute) }
	_, err = uu.SignIn(ctx, &UserModel{Username: "eva", Password: "secreto123"})
	require.NoError(t, err)

	stored, err := repo.FindByCredential(ctx, &UserModel{Username: "eva"})
	require.NoError(t, err)
	assert.Equal(t, 0, stored.LoginRetry)
}

func TestUserSQL_DuplicatedInsert(t *testing.T) {
	_, repo := newTestUseCase(t)
	ctx := context.Background()
	u := &UserModel{ID: "a", Username: "dup", Email: "dup@roundy.dev", Password: "x"}
	require.NoError(t, repo.SaveUser(ctx, u))

	u2 := &UserModel{ID: "b", Username: "dup", Email: "otro@roundy.dev", Password: "x"}
	assert.ErrorIs(t, repo.SaveUser(ctx, u2), ErrDuplicatedUser)
}
