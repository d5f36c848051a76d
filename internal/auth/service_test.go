package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type stubRepo struct {
	user *auth.User
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func newService(t *testing.T, repo auth.Repository) (*auth.Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := auth.NewSessionManager(client, time.Hour)
	return auth.NewService(repo, sessions), mr
}

func testUser(t *testing.T) *auth.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{
		ID:           7,
		CompanyID:    1,
		Email:        "jane@example.com",
		Name:         "Jane",
		PasswordHash: string(hash),
		IsActive:     true,
	}
}

func TestLoginIssuesResolvableToken(t *testing.T) {
	svc, _ := newService(t, &stubRepo{user: testUser(t)})

	user, token, err := svc.Login(context.Background(), "jane@example.com", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.Equal(t, int64(7), user.ID)

	tenant, err := svc.Resolve(context.Background(), token)
	require.NoError(t, err)
	require.Equal(t, shared.Tenant{CompanyID: 1, UserID: 7}, tenant)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _ := newService(t, &stubRepo{user: testUser(t)})

	_, _, err := svc.Login(context.Background(), "jane@example.com", "wrong-password")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(context.Background(), "nobody@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	inactive := testUser(t)
	inactive.IsActive = false
	svc, _ = newService(t, &stubRepo{user: inactive})
	_, _, err = svc.Login(context.Background(), "jane@example.com", "correct-horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestLogoutRevokesToken(t *testing.T) {
	svc, _ := newService(t, &stubRepo{user: testUser(t)})

	_, token, err := svc.Login(context.Background(), "jane@example.com", "correct-horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), token))

	_, err = svc.Resolve(context.Background(), token)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
}

func TestExpiredSessionIsGone(t *testing.T) {
	svc, mr := newService(t, &stubRepo{user: testUser(t)})

	_, token, err := svc.Login(context.Background(), "jane@example.com", "correct-horse")
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)

	_, err = svc.Resolve(context.Background(), token)
	require.ErrorIs(t, err, auth.ErrSessionNotFound)
}
