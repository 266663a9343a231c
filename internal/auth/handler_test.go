package auth_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/labgig/labgig-crm/internal/auth"
	"github.com/labgig/labgig-crm/internal/shared"
	_ "github.com/labgig/labgig-crm/testing"
)

type stubRepo struct {
	user        *auth.User
	memberships []auth.Membership
	sessions    []string
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.user == nil || s.user.Email != email {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) Memberships(ctx context.Context, userID int64) ([]auth.Membership, error) {
	return s.memberships, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID, companyID int64, expiresAt time.Time, ip, ua string) error {
	s.sessions = append(s.sessions, id)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	for i, sid := range s.sessions {
		if sid == id {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	return nil
}

func newAuthHandler(t *testing.T, repo auth.Repository) (*auth.Handler, *shared.SessionManager) {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	handler := auth.NewHandler(discardLogger(), auth.NewService(repo), sessionManager, csrfManager)
	return handler, sessionManager
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func loginRouter(handler *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/auth", handler.MountRoutes)
	return r
}

func testRepo(t *testing.T, password string) *stubRepo {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &stubRepo{
		user: &auth.User{
			ID:           1,
			Email:        "tech@labgig.test",
			Name:         "Lab Tech",
			PasswordHash: string(hashed),
			IsActive:     true,
		},
		memberships: []auth.Membership{{CompanyID: 10, CompanyName: "Helix Labs"}},
	}
}

func postLogin(t *testing.T, handler *auth.Handler, sessionManager *shared.SessionManager, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := loginRouter(handler)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	sess, err := sessionManager.Load(context.Background(), req)
	require.NoError(t, err)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))

	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	require.NoError(t, sessionManager.Commit(req.Context(), res, req, sess))
	return res
}

func TestLoginSuccess(t *testing.T) {
	repo := testRepo(t, "correct-horse")
	handler, sessionManager := newAuthHandler(t, repo)

	res := postLogin(t, handler, sessionManager, `{"email":"tech@labgig.test","password":"correct-horse","company_id":10}`)
	require.Equal(t, http.StatusOK, res.Code)

	var payload struct {
		UserID    int64  `json:"user_id"`
		CompanyID int64  `json:"company_id"`
		CSRFToken string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &payload))
	require.Equal(t, int64(1), payload.UserID)
	require.Equal(t, int64(10), payload.CompanyID)
	require.NotEmpty(t, payload.CSRFToken)
	require.Len(t, repo.sessions, 1)
}

func TestLoginInvalidCredentials(t *testing.T) {
	repo := testRepo(t, "correct-horse")
	handler, sessionManager := newAuthHandler(t, repo)

	res := postLogin(t, handler, sessionManager, `{"email":"tech@labgig.test","password":"wrong-password","company_id":10}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)
	require.Empty(t, repo.sessions)
}

func TestLoginWrongCompany(t *testing.T) {
	repo := testRepo(t, "correct-horse")
	handler, sessionManager := newAuthHandler(t, repo)

	res := postLogin(t, handler, sessionManager, `{"email":"tech@labgig.test","password":"correct-horse","company_id":99}`)
	require.Equal(t, http.StatusForbidden, res.Code)
	require.Empty(t, repo.sessions)
}

func TestLoginValidation(t *testing.T) {
	repo := testRepo(t, "correct-horse")
	handler, sessionManager := newAuthHandler(t, repo)

	res := postLogin(t, handler, sessionManager, `{"email":"not-an-email","password":"short","company_id":0}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.Code)
}
