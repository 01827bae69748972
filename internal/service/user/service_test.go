package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/fin-advisor/backend/internal/model/user"
	"github.com/zhouzirui/fin-advisor/backend/internal/store/memory"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(memory.New(), nil)
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	return svc
}

func TestCreateHashesPassword(t *testing.T) {
	svc := newTestService(t)
	u, err := svc.Register(context.Background(), "alice", "Alice@Example.com", "s3cret-pass")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, user.RoleUser, u.Role)
	assert.True(t, u.IsActive)
	assert.NotEqual(t, "s3cret-pass", u.PasswordHash)
	assert.True(t, u.CheckPassword("s3cret-pass"))
}

func TestCreateValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := map[string]struct {
		in   CreateInput
		want error
	}{
		"username": {CreateInput{Email: "a@example.com", Password: "password1"}, ErrUsernameRequired},
		"email":    {CreateInput{Username: "a", Email: "nope", Password: "password1"}, ErrInvalidEmail},
		"short":    {CreateInput{Username: "a", Email: "a@example.com", Password: "short"}, ErrInvalidPassword},
		"role":     {CreateInput{Username: "a", Email: "a@example.com", Password: "password1", Role: "root"}, ErrInvalidRole},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
			assert.True(t, IsValidationError(err))
		})
	}
}

func TestCreateDuplicate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	_, err := svc.Register(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "other@example.com", "password1")
	require.ErrorIs(t, err, ErrUserExists)
}

func TestAuthenticate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created, err := svc.Register(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	u, err := svc.Authenticate(ctx, "ALICE@example.com", "password1")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
	require.NotNil(t, u.LastLogin)
	assert.Equal(t, svc.now().UTC(), *u.LastLogin)

	stored, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastLogin)

	_, err = svc.Authenticate(ctx, "alice", "password1")
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(ctx, "nobody@example.com", "password1")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateInactive(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created, err := svc.Register(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, created.ID, UpdateInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "alice", "password1")
	require.ErrorIs(t, err, ErrInactiveUser)
}

func TestUpdateAndDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	created, err := svc.Register(ctx, "alice", "alice@example.com", "password1")
	require.NoError(t, err)

	role := user.RoleAdmin
	password := "new-password"
	updated, err := svc.Update(ctx, created.ID, UpdateInput{Role: &role, Password: &password})
	require.NoError(t, err)
	assert.Equal(t, user.RoleAdmin, updated.Role)
	assert.True(t, updated.CheckPassword("new-password"))

	bad := user.Role("owner")
	_, err = svc.Update(ctx, created.ID, UpdateInput{Role: &bad})
	require.ErrorIs(t, err, ErrInvalidRole)

	require.NoError(t, svc.Delete(ctx, created.ID))
	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, ErrUserNotFound)
	_, err = svc.Update(ctx, created.ID, UpdateInput{})
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestSeedOnlyOnEmptyStore(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, err := svc.Seed(ctx, "admin@example.com", "admin-pass")
	require.NoError(t, err)
	assert.True(t, created)

	users, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "admin", users[0].Username)
	assert.Equal(t, user.RoleAdmin, users[0].Role)

	created, err = svc.Seed(ctx, "other@example.com", "admin-pass")
	require.NoError(t, err)
	assert.False(t, created)
}
