package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestUserService(env *testEnv) UserService {
	svc := NewUserService(env.users)
	svc.(*userService).cost = bcrypt.MinCost
	return svc
}

func TestUserServiceRegisterAndAuthenticate(t *testing.T) {
	env := newTestEnv(t)
	svc := newTestUserService(env)
	ctx := context.Background()

	user, err := svc.Register(ctx, " alice ", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Empty(t, user.PasswordHash, "hash never leaves the service")
	assert.True(t, user.Balance.IsZero())

	_, err = svc.Register(ctx, "alice", "another-pass")
	assert.ErrorIs(t, err, ErrUserAlreadyExists)

	authed, err := svc.Authenticate(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = svc.Authenticate(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Authenticate(ctx, "nobody", "whatever1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUserServiceRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := newTestUserService(env)

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "empty username", username: " ", password: "longenough"},
		{name: "empty password", username: "bob", password: ""},
		{name: "short password", username: "bob", password: "short"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(context.Background(), tt.username, tt.password)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestUserServiceBalance(t *testing.T) {
	env := newTestEnv(t)
	svc := newTestUserService(env)
	user := env.createUser(t, "carol", "12.50")

	first, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	second, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, first.Equal(dec("12.5")))
	assert.True(t, first.Equal(second))

	_, err = svc.Balance(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	got, err := svc.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Empty(t, got.PasswordHash)
}
